package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Skotchmaster/storefront/internal/apiclient"
	"github.com/Skotchmaster/storefront/internal/auth"
	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/catalog"
	"github.com/Skotchmaster/storefront/internal/checkout"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/order"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func subcommand(args []string, names ...string) (string, []string, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("expected one of: %s", strings.Join(names, ", "))
	}
	for _, n := range names {
		if args[0] == n {
			return n, args[1:], nil
		}
	}
	return "", nil, fmt.Errorf("unknown subcommand %q, expected one of: %s", args[0], strings.Join(names, ", "))
}

func runCart(ctx context.Context, a *app, args []string) error {
	sub, rest, err := subcommand(args, "show", "add", "update", "remove", "clear")
	if err != nil {
		return err
	}

	var c models.Cart
	switch sub {
	case "show":
		c, err = a.cart.Load(ctx)
	case "add":
		fs := newFlagSet("cart add")
		sku := fs.Int64("sku", 0, "SKU id")
		product := fs.Int64("product", 0, "product id, with -size and -color instead of -sku")
		size := fs.String("size", "", "variant size")
		color := fs.String("color", "", "variant colour")
		qty := fs.Int("qty", 1, "quantity")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *sku == 0 && *product > 0 {
			if *sku, err = resolveSku(ctx, a, *product, *size, *color); err != nil {
				return err
			}
		}
		c, err = a.cart.Add(ctx, *sku, *qty)
	case "update":
		fs := newFlagSet("cart update")
		item := fs.Int64("item", 0, "cart item id")
		qty := fs.Int("qty", 1, "new quantity")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		c, err = a.cart.Update(ctx, *item, *qty)
	case "remove":
		fs := newFlagSet("cart remove")
		item := fs.Int64("item", 0, "cart item id")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		c, err = a.cart.Remove(ctx, *item)
	case "clear":
		c, err = a.cart.Clear(ctx)
	}
	if err != nil {
		return err
	}

	printCart(a.out, c)
	return nil
}

func printCart(w io.Writer, c models.Cart) {
	if len(c.Items) == 0 {
		fmt.Fprintln(w, "Your cart is empty.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tSKU\tPRODUCT\tVARIANT\tQTY\tIN STOCK\tTOTAL\t")
	for _, it := range c.Items {
		mark := ""
		if !it.InStock() {
			mark = "!"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s/%s\t%d%s\t%d\t%s\t\n",
			it.ID, it.SkuCode, it.ProductName, it.Size, it.Color, it.Quantity, mark, it.AvailableStock, it.ItemTotal.StringFixed(0))
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\nSubtotal: %s\n", c.Subtotal.StringFixed(0))
	for _, warn := range c.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warn.Message)
	}
	if !cart.CanCheckout(c) {
		fmt.Fprintln(w, "Some items exceed the available stock. Update them before checking out.")
	}
}

func runCheckout(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("checkout")
	name := fs.String("name", "", "recipient name")
	phone := fs.String("phone", "", "phone number")
	address := fs.String("address", "", "shipping address")
	notes := fs.String("notes", "", "delivery notes")
	payment := fs.String("payment", string(models.PaymentCOD), "COD or BANK_TRANSFER")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := []checkout.Option{
		checkout.WithIntervals(a.cfg.CheckoutTick, a.cfg.CheckoutLapseCheck),
		checkout.WithPublisher(a.publisher),
		checkout.WithRecorder(a.store),
		checkout.WithObserver(a.metrics),
		checkout.WithLogger(a.log),
	}

	info := checkout.ShippingInfo{RecipientName: *name, PhoneNumber: *phone, Address: *address, Notes: *notes}
	method := models.PaymentMethod(strings.ToUpper(strings.TrimSpace(*payment)))

	// every shipping field given on the command line: no interactive screen
	if *name != "" && *phone != "" && *address != "" {
		o := checkout.New(a.api, a.cart, opts...)
		defer o.Close()

		if _, err := o.Start(ctx); err != nil {
			return stockHint(a, err)
		}
		placed, err := o.Submit(ctx, info, method)
		if err != nil {
			return err
		}
		printPlaced(a.out, placed)
		return nil
	}

	return stockHint(a, runCheckoutScreen(ctx, a, opts, info, method))
}

// stockHint shows the offending rows when checkout was blocked by stock.
func stockHint(a *app, err error) error {
	if errors.Is(err, checkout.ErrStockShortfall) {
		printCart(a.out, a.cart.Cart())
	}
	return err
}

func printPlaced(w io.Writer, o models.Order) {
	fmt.Fprintln(w, "Order placed.")
	printOrder(w, o)
	if bt := o.BankTransferInfo; bt != nil {
		fmt.Fprintf(w, "\nTransfer %s to %s (%s, %s) with reference %q.\n",
			bt.Amount.StringFixed(0), bt.AccountNumber, bt.BankName, bt.AccountName, bt.TransferContent)
	}
	fmt.Fprintf(w, "\nTrack it any time with: storefront track %s\n", o.TrackingToken)
}

func printOrder(w io.Writer, o models.Order) {
	p := order.Present(o.Status)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Order\t#%d\n", o.OrderID)
	fmt.Fprintf(tw, "Tracking\t%s\n", o.TrackingToken)
	fmt.Fprintf(tw, "Status\t%s %s\n", p.Icon, p.Colorize(p.Label))
	fmt.Fprintf(tw, "Placed\t%s\n", o.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(tw, "Recipient\t%s (%s)\n", o.CustomerName, o.CustomerPhone)
	fmt.Fprintf(tw, "Address\t%s\n", o.ShippingAddress)
	fmt.Fprintf(tw, "Payment\t%s\n", o.PaymentMethod)
	if o.Note != "" {
		fmt.Fprintf(tw, "Notes\t%s\n", o.Note)
	}
	_ = tw.Flush()

	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w)
	for _, it := range o.Items {
		fmt.Fprintf(tw, "  %s\t%s/%s\tx%d\t%s\t\n", it.ProductName, it.Size, it.Color, it.Quantity, it.TotalPrice.StringFixed(0))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "Total: %s\n", o.TotalAmount.StringFixed(0))
}

func runTrack(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		recent, err := a.store.RecentOrders(ctx, 10)
		if err != nil {
			return err
		}
		if len(recent) == 0 {
			fmt.Fprintln(a.out, "No orders placed from this device yet. Usage: storefront track <token>")
			return nil
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PLACED\tORDER\tSTATUS\tTOTAL\tTRACKING")
		for _, r := range recent {
			fmt.Fprintf(tw, "%s\t#%d\t%s\t%s\t%s\n", r.PlacedAt.Local().Format(time.DateTime), r.OrderID, r.Status, r.TotalAmount, r.TrackingToken)
		}
		return tw.Flush()
	}

	o, err := a.orders.Track(ctx, args[0])
	if errors.Is(err, order.ErrNotFound) {
		fmt.Fprintln(a.out, "We could not find an order with that tracking code. Check it and try again.")
		return nil
	}
	if err != nil {
		return err
	}
	if err := a.store.RememberOrder(ctx, o); err != nil {
		a.log.Warn("remember_order_error", "error", err)
	}
	printOrder(a.out, o)
	return nil
}

func runRegister(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("register")
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "full name")
	password := fs.String("password", "", "password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *password == "" {
		*password = prompt("Password: ")
	}

	res, err := a.auth.Register(ctx, *email, *name, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s\nThe code is valid for %s. Run: storefront verify -email %s -code <code>\n",
		res.Message, time.Duration(res.OTPExpirySeconds)*time.Second, res.Email)
	return nil
}

func runVerify(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("verify")
	email := fs.String("email", "", "account email")
	code := fs.String("code", "", "verification code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.auth.VerifyOTP(ctx, *email, *code); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Account verified, you are signed in.")
	return nil
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *password == "" {
		*password = prompt("Password: ")
	}
	if err := a.auth.Login(ctx, *email, *password); err != nil {
		return err
	}

	role := "customer"
	if a.session.IsAdmin() {
		role = "admin"
	}
	fmt.Fprintf(a.out, "Signed in as %s.\n", role)
	return nil
}

func runLogout(ctx context.Context, a *app, _ []string) error {
	if err := a.resumeSession(ctx); err != nil {
		fmt.Fprintln(a.out, "Not signed in.")
		return nil
	}
	if err := a.auth.Logout(ctx); err != nil {
		a.log.Warn("logout_error", "error", err)
	}
	fmt.Fprintln(a.out, "Signed out.")
	return nil
}

func prompt(label string) string {
	fmt.Fprint(os.Stderr, label)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}

// describe turns err into the text shown to the user.
func describe(err error) string {
	var verr *checkout.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, order.ErrUnauthenticated):
		return "sign in first: storefront login -email <email>"
	case errors.Is(err, checkout.ErrExpired):
		return "your reservation expired; review your cart and start checkout again"
	case errors.Is(err, checkout.ErrNoCartToken), errors.Is(err, checkout.ErrEmptyCart):
		return "your cart is empty; add items with: storefront cart add -sku <id> -qty <n>"
	case errors.Is(err, checkout.ErrStockShortfall):
		return "some items exceed the available stock; lower them with: storefront cart update -item <id> -qty <n>"
	case errors.Is(err, checkout.ErrStartFailed):
		if apiErr, ok := apiclient.AsError(err); ok {
			return "could not start checkout: " + apiErr.Message
		}
		return "could not start checkout; please try again"
	case errors.Is(err, catalog.ErrNotFound):
		return "no such product; browse with: storefront products list"
	case errors.Is(err, catalog.ErrNoSuchVariant), errors.Is(err, catalog.ErrSkuUnavailable):
		return err.Error() + "; see the variants with: storefront products show -id <id>"
	case errors.Is(err, catalog.ErrInvalidFilter):
		return err.Error()
	case errors.Is(err, cart.ErrRowBusy):
		return "that item is already being updated"
	case errors.Is(err, cart.ErrValidation), errors.Is(err, auth.ErrValidation):
		return err.Error()
	}
	if apiErr, ok := apiclient.AsError(err); ok {
		return apiErr.Message
	}
	return err.Error()
}
