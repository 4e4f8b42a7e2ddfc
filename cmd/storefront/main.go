package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Skotchmaster/storefront/internal/config"
)

const usage = `usage: storefront <command> [flags]

Commands:
  products list|show|categories       browse the catalog
  cart show|add|update|remove|clear   inspect or change the cart
  checkout                            reserve stock and place an order
  track [token]                       look an order up, or list recent ones
  register | verify | login | logout  manage the account session
  admin list|get|history|status|cancel
                                      order administration (admin role)
`

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"products": runProducts,
	"cart":     runCart,
	"checkout": runCheckout,
	"track":    runTrack,
	"register": runRegister,
	"verify":   runVerify,
	"login":    runLogin,
	"logout":   runLogout,
	"admin":    runAdmin,
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	cfg := config.Load()

	logOut, closeLog, err := logWriter(cfg, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
		return 1
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logOut, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "storefront: %v\n", err)
		return 1
	}
	defer a.close()

	err = cmd(ctx, a, args[1:])
	a.saveSession(context.WithoutCancel(ctx))

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 2
	default:
		fmt.Fprintf(os.Stderr, "storefront: %s\n", describe(err))
		return 1
	}
}

// logWriter keeps logs off stdout. The checkout screen owns the terminal, so
// it logs to a file even when none is configured.
func logWriter(cfg config.Config, cmd string) (io.Writer, func(), error) {
	path := cfg.LogFile
	if path == "" && cmd == "checkout" {
		path = "storefront.log"
	}
	if path == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
