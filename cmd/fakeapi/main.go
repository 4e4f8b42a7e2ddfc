package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Skotchmaster/storefront/internal/config"
	"github.com/Skotchmaster/storefront/internal/fakeapi"
	"github.com/Skotchmaster/storefront/internal/logging"
)

func main() {
	cfg := config.Load()

	logger := logging.New(cfg.LogLevel).With("app", "fakeapi")
	slog.SetDefault(logger)

	srv, err := fakeapi.New(fakeapi.Config{
		JWTSecret:      cfg.FakeAPI.JWTSecret,
		ReservationTTL: cfg.FakeAPI.ReservationTTL,
		AdminEmail:     cfg.FakeAPI.AdminEmail,
		AdminPassword:  cfg.FakeAPI.AdminPassword,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("fakeapi_init_error", "error", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("fakeapi_listening", "addr", cfg.FakeAPI.Addr, "base_path", fakeapi.BasePath)
		if err := srv.Start(cfg.FakeAPI.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("fakeapi_start_error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("fakeapi_shutdown_error", "error", err)
	}
}
