package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/order"
)

func runAdmin(ctx context.Context, a *app, args []string) error {
	sub, rest, err := subcommand(args, "list", "get", "history", "status", "cancel")
	if err != nil {
		return err
	}
	if err := a.resumeSession(ctx); err != nil {
		return err
	}
	if !a.session.IsAdmin() {
		return errors.New("this account does not have the admin role")
	}

	switch sub {
	case "list":
		return adminList(ctx, a, rest)
	case "get":
		return adminGet(ctx, a, rest)
	case "history":
		return adminHistory(ctx, a, rest)
	case "status":
		return adminStatus(ctx, a, rest)
	default:
		return adminCancel(ctx, a, rest)
	}
}

func adminList(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("admin list")
	page := fs.Int("page", 0, "page number, from 0")
	size := fs.Int("size", order.DefaultPageSize, "page size")
	status := fs.String("status", "", "only orders in this status")
	from := fs.String("from", "", "placed on or after YYYY-MM-DD")
	to := fs.String("to", "", "placed on or before YYYY-MM-DD")
	search := fs.String("search", "", "match id, tracking code, name, phone or email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f := order.Filter{Page: *page, Size: *size, Search: *search}
	if *status != "" {
		st, err := models.ParseStatus(strings.ToUpper(*status))
		if err != nil {
			return err
		}
		f.Status = &st
	}
	var err error
	if f.StartDate, err = parseDay(*from); err != nil {
		return err
	}
	if f.EndDate, err = parseDay(*to); err != nil {
		return err
	}

	res, err := a.orders.List(ctx, f)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tPLACED\tSTATUS\tCUSTOMER\tPHONE\tTOTAL")
	for _, o := range res.Content {
		p := order.Present(o.Status)
		fmt.Fprintf(tw, "#%d\t%s\t%s %s\t%s\t%s\t%s\n", o.OrderID, o.CreatedAt.Local().Format(time.DateTime),
			p.Icon, p.Label, o.CustomerName, o.CustomerPhone, o.TotalAmount.StringFixed(0))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "\nPage %d of %d, %d orders\n", res.CurrentPage+1, max(res.TotalPages, 1), res.TotalElements)
	return nil
}

func parseDay(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", v)
	}
	return t, nil
}

func orderIDFlag(name string, args []string) (int64, []string, error) {
	fs := newFlagSet(name)
	id := fs.Int64("id", 0, "order id")
	if err := fs.Parse(args); err != nil {
		return 0, nil, err
	}
	if *id <= 0 {
		return 0, nil, errors.New("-id is required")
	}
	return *id, fs.Args(), nil
}

func adminGet(ctx context.Context, a *app, args []string) error {
	id, _, err := orderIDFlag("admin get", args)
	if err != nil {
		return err
	}
	o, err := a.orders.Get(ctx, id)
	if err != nil {
		return err
	}
	printOrder(a.out, o)
	printOffered(a, o.Status)
	return nil
}

func printOffered(a *app, s models.OrderStatus) {
	next := order.NextStatuses(s)
	if len(next) == 0 {
		return
	}
	names := make([]string, 0, len(next))
	for _, n := range next {
		names = append(names, n.String())
	}
	fmt.Fprintf(a.out, "\nCan move to: %s\n", strings.Join(names, ", "))
}

func adminHistory(ctx context.Context, a *app, args []string) error {
	id, _, err := orderIDFlag("admin history", args)
	if err != nil {
		return err
	}
	hist, err := a.orders.History(ctx, id)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tFROM\tTO\tNOTE")
	for _, h := range hist {
		from := "-"
		if h.OldStatus != nil {
			from = h.OldStatus.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", h.ChangedAt.Local().Format(time.DateTime), from, h.NewStatus, h.Note)
	}
	return tw.Flush()
}

func adminStatus(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("admin status")
	id := fs.Int64("id", 0, "order id")
	to := fs.String("to", "", "target status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	target, err := models.ParseStatus(strings.ToUpper(*to))
	if err != nil {
		return err
	}
	return transition(ctx, a, *id, target, "")
}

func adminCancel(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("admin cancel")
	id := fs.Int64("id", 0, "order id")
	reason := fs.String("reason", "", "why the order is cancelled")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return transition(ctx, a, *id, models.StatusCancelled, *reason)
}

func transition(ctx context.Context, a *app, id int64, target models.OrderStatus, reason string) error {
	if id <= 0 {
		return errors.New("-id is required")
	}
	current, err := a.orders.Get(ctx, id)
	if err != nil {
		return err
	}

	o, err := a.orders.Transition(ctx, id, current.Status, target, reason)
	if errors.Is(err, order.ErrTransitionNotOffered) {
		fmt.Fprintf(a.out, "Order #%d is %s.\n", id, order.Present(current.Status).Label)
		printOffered(a, current.Status)
		return err
	}
	if err != nil {
		return err
	}

	p := order.Present(o.Status)
	fmt.Fprintf(a.out, "Order #%d is now %s %s.\n", o.OrderID, p.Icon, p.Colorize(p.Label))
	return nil
}
