package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Skotchmaster/storefront/internal/apiclient"
	"github.com/Skotchmaster/storefront/internal/auth"
	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/catalog"
	"github.com/Skotchmaster/storefront/internal/config"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/metrics"
	"github.com/Skotchmaster/storefront/internal/order"
	"github.com/Skotchmaster/storefront/internal/session"
	"github.com/Skotchmaster/storefront/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app holds every component for one invocation. Nothing here is global;
// commands receive the app explicitly.
type app struct {
	cfg config.Config
	log *slog.Logger
	out io.Writer

	store     *storage.Store
	session   *session.Session
	api       *apiclient.Client
	cart      *cart.Holder
	catalog   *catalog.Service
	orders    *order.Service
	auth      *auth.Service
	metrics   *metrics.Metrics
	publisher events.Publisher

	metricsSrv *http.Server
	closers    []func() error
}

func newApp(ctx context.Context, cfg config.Config, logOut io.Writer, out io.Writer) (*app, error) {
	a := &app{
		cfg:     cfg,
		log:     logging.NewWithWriter(logOut, cfg.LogLevel).With("app", "storefront"),
		out:     out,
		session: session.New(),
	}
	slog.SetDefault(a.log)

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := storage.Open(initCtx, cfg.StateDSN)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(reg)
	if cfg.MetricsAddr != "" {
		a.serveMetrics(reg)
	}

	api, err := apiclient.New(cfg.APIURL, a.session,
		apiclient.WithTimeout(cfg.HTTPTimeout),
		apiclient.WithLogger(a.log),
		apiclient.WithObserver(a.metrics),
		apiclient.WithSessionExpired(func() {
			fmt.Fprintln(os.Stderr, "Your session has expired. Run `storefront login` to sign in again.")
		}),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	a.api = api

	cookies, err := store.SessionCookies(initCtx)
	if err != nil {
		a.log.Warn("session_restore_error", "error", err)
	}
	api.RestoreSessionCookies(cookies)

	a.publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		p, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("kafka publisher: %w", err)
		}
		a.publisher = p
		a.closers = append(a.closers, p.Close)
	}

	a.cart = cart.NewHolder(api, store, a.log)
	if err := a.cart.Restore(initCtx); err != nil {
		a.close()
		return nil, fmt.Errorf("restore cart token: %w", err)
	}
	a.catalog = catalog.NewService(api)
	a.orders = order.NewService(api, a.session)
	a.auth = auth.NewService(api, a.session)

	return a, nil
}

func (a *app) serveMetrics(g prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	a.metricsSrv = &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics_server_error", "addr", a.cfg.MetricsAddr, "error", err)
		}
	}()
}

// resumeSession trades a saved refresh cookie for an access token.
func (a *app) resumeSession(ctx context.Context) error {
	if a.session.IsAuthenticated() {
		return nil
	}
	if len(a.api.SessionCookies()) == 0 {
		return order.ErrUnauthenticated
	}
	if err := a.auth.Refresh(ctx); err != nil {
		a.log.Info("session_resume_failed", "error", err)
		return order.ErrUnauthenticated
	}
	return nil
}

// saveSession persists whatever refresh cookie the jar holds now.
func (a *app) saveSession(ctx context.Context) {
	if err := a.store.SaveSessionCookies(ctx, a.api.SessionCookies()); err != nil {
		a.log.Warn("session_save_error", "error", err)
	}
}

func (a *app) close() {
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			a.log.Warn("metrics_shutdown_error", "error", err)
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close_error", "error", err)
		}
	}
}
