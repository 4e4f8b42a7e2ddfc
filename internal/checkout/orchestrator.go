package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Skotchmaster/storefront/internal/apiclient"
	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/models"
)

type State uint8

const (
	StateInitializing State = iota
	StateAwaitingInput
	StateSubmitting
	StateSucceeded
	StateExpired
	// StateAborted means initialization failed and the user is back at the cart.
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAwaitingInput:
		return "awaiting_input"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateExpired:
		return "expired"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

var (
	ErrNoCartToken    = errors.New("no cart token")
	ErrEmptyCart      = errors.New("cart is empty")
	ErrStockShortfall = errors.New("cart has items exceeding available stock")
	ErrStartFailed    = errors.New("could not start checkout")
	ErrExpired        = errors.New("reservation expired")
	ErrBusy           = errors.New("order submission already in progress")
	ErrNotReady       = errors.New("checkout is not awaiting input")
	ErrClosed         = errors.New("checkout was closed")
)

// reservation-state failures during place order are handled like expiry
var reservationCodes = map[string]bool{
	apiclient.CodeReservationExpired:  true,
	apiclient.CodeReservationNotFound: true,
	apiclient.CodeNoActiveReservation: true,
	apiclient.CodeCheckoutFailed:      true,
	apiclient.CodeInsufficientStock:   true,
	apiclient.CodeInvalidCartToken:    true,
	apiclient.CodeCartNotFound:        true,
}

type API interface {
	Do(ctx context.Context, r apiclient.Request, out any) error
}

// CartSource is the part of the cart holder checkout needs.
type CartSource interface {
	Token() string
	Load(ctx context.Context) (models.Cart, error)
}

type OrderRecorder interface {
	RememberOrder(ctx context.Context, o models.Order) error
}

type Observer interface {
	ObserveCheckout(outcome string)
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIntervals sets the display tick and the coarser lapse check.
func WithIntervals(tick, lapseCheck time.Duration) Option {
	return func(o *Orchestrator) {
		if tick > 0 {
			o.tick = tick
		}
		if lapseCheck > 0 {
			o.lapseCheck = lapseCheck
		}
	}
}

// WithTickHandler is called from the timer goroutine on every display tick.
// It must not call Close.
func WithTickHandler(fn func(remaining time.Duration)) Option {
	return func(o *Orchestrator) { o.onTick = fn }
}

func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithRecorder(r OrderRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// Orchestrator drives one checkout attempt from reservation to placed order.
// It is single use: after Succeeded, Expired or Aborted a new one is needed.
type Orchestrator struct {
	api  API
	cart CartSource

	now        func() time.Time
	tick       time.Duration
	lapseCheck time.Duration
	onTick     func(time.Duration)
	publisher  events.Publisher
	recorder   OrderRecorder
	observer   Observer
	log        *slog.Logger

	mu      sync.Mutex
	state   State
	closed  bool
	token   string
	session models.CheckoutSession
	order   models.Order
	input   ShippingInfo
	method  models.PaymentMethod

	expired    chan struct{}
	expireOnce sync.Once
	stop       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func New(api API, cart CartSource, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		api:        api,
		cart:       cart,
		now:        time.Now,
		tick:       time.Second,
		lapseCheck: 10 * time.Second,
		publisher:  events.Nop{},
		log:        slog.Default(),
		method:     models.PaymentCOD,
		expired:    make(chan struct{}),
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With("component", "checkout")
	return o
}

// Start reserves stock for every item currently in the cart and arms the
// expiry timers. Any failure leaves the orchestrator Aborted.
func (o *Orchestrator) Start(ctx context.Context) (models.CheckoutSession, error) {
	o.mu.Lock()
	if o.state != StateInitializing || o.closed {
		o.mu.Unlock()
		return models.CheckoutSession{}, ErrNotReady
	}
	o.mu.Unlock()

	token := o.cart.Token()
	if token == "" {
		return models.CheckoutSession{}, o.abort(ErrNoCartToken)
	}

	c, err := o.cart.Load(ctx)
	if err != nil {
		return models.CheckoutSession{}, o.abort(fmt.Errorf("%w: %w", ErrStartFailed, err))
	}
	if len(c.Items) == 0 {
		return models.CheckoutSession{}, o.abort(ErrEmptyCart)
	}
	if !cart.CanCheckout(c) {
		return models.CheckoutSession{}, o.abort(ErrStockShortfall)
	}

	ids := make([]int64, 0, len(c.Items))
	for _, it := range c.Items {
		ids = append(ids, it.ID)
	}

	var session models.CheckoutSession
	err = o.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/checkout/start",
		Header: apiclient.CartHeader(token),
		Body:   models.StartCheckoutRequest{SelectedItemIDs: ids},
	}, &session)
	if err != nil {
		return models.CheckoutSession{}, o.abort(fmt.Errorf("%w: %w", ErrStartFailed, err))
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return models.CheckoutSession{}, ErrClosed
	}
	o.state = StateAwaitingInput
	o.token = token
	o.session = session
	o.wg.Add(2)
	go o.run(o.tick, true)
	go o.run(o.lapseCheck, false)
	o.mu.Unlock()

	o.log.Info("checkout_started", "items", len(ids), "expires_at", session.ExpiresAt)
	o.publish(events.Event{Type: events.TypeCheckoutStarted, CartToken: token})

	o.check(false)
	return session, nil
}

func (o *Orchestrator) abort(err error) error {
	o.mu.Lock()
	o.state = StateAborted
	o.mu.Unlock()

	o.log.Warn("checkout_start_error", "error", err)
	o.outcome("aborted")
	return err
}

func (o *Orchestrator) run(interval time.Duration, display bool) {
	defer o.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-t.C:
			o.check(display)
		}
	}
}

func (o *Orchestrator) check(display bool) {
	o.mu.Lock()
	live := o.state == StateAwaitingInput || o.state == StateSubmitting
	remaining := o.remainingLocked()
	o.mu.Unlock()
	if !live {
		return
	}

	if display && o.onTick != nil {
		o.onTick(remaining)
	}
	if remaining <= 0 {
		o.expire("timer")
	}
}

func (o *Orchestrator) remainingLocked() time.Duration {
	return o.session.ExpiresAt.Sub(o.now())
}

// Remaining is the time left on the reservation; negative once lapsed.
func (o *Orchestrator) Remaining() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.remainingLocked()
}

// expire moves a live checkout to Expired. It is a no-op in any other state.
func (o *Orchestrator) expire(reason string) {
	o.mu.Lock()
	if o.state != StateAwaitingInput && o.state != StateSubmitting {
		o.mu.Unlock()
		return
	}
	o.state = StateExpired
	token := o.token
	o.mu.Unlock()

	o.expireOnce.Do(func() { close(o.expired) })
	o.stopTimers()

	o.log.Info("checkout_expired", "reason", reason)
	o.outcome("expired")
	o.publish(events.Event{Type: events.TypeCheckoutExpired, CartToken: token, Reason: reason})
}

// Submit places the order. The reservation is re-checked first: a lapsed one
// moves the checkout to Expired without calling the backend. Entered input is
// kept on every failure so the caller can re-offer it.
func (o *Orchestrator) Submit(ctx context.Context, info ShippingInfo, method models.PaymentMethod) (models.Order, error) {
	o.mu.Lock()
	switch o.state {
	case StateAwaitingInput:
	case StateSubmitting:
		o.mu.Unlock()
		return models.Order{}, ErrBusy
	case StateExpired:
		o.mu.Unlock()
		return models.Order{}, ErrExpired
	default:
		o.mu.Unlock()
		return models.Order{}, ErrNotReady
	}
	if o.closed {
		o.mu.Unlock()
		return models.Order{}, ErrClosed
	}

	o.input, o.method = info, method
	if o.remainingLocked() <= 0 {
		o.mu.Unlock()
		o.expire("submit")
		return models.Order{}, ErrExpired
	}

	fields := Validate(info)
	if !method.Valid() {
		fields[FieldPaymentMethod] = "Choose a payment method"
	}
	if len(fields) > 0 {
		o.mu.Unlock()
		return models.Order{}, &ValidationError{Fields: fields}
	}

	o.state = StateSubmitting
	token := o.token
	o.mu.Unlock()

	req := models.PlaceOrderRequest{
		CartToken:     token,
		RecipientName: strings.TrimSpace(info.RecipientName),
		PhoneNumber:   NormalizePhone(info.PhoneNumber),
		Address:       strings.TrimSpace(info.Address),
		Notes:         strings.TrimSpace(info.Notes),
		PaymentMethod: method,
	}

	var placed models.Order
	err := o.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/order",
		Header: apiclient.CartHeader(token),
		Body:   req,
	}, &placed)

	o.mu.Lock()
	if o.closed || o.state != StateSubmitting {
		state, closed := o.state, o.closed
		o.mu.Unlock()
		o.log.Warn("checkout_response_discarded", "state", state.String(), "closed", closed,
			"tracking_token", placed.TrackingToken, "error", err)
		// the order exists server-side; keep it findable by track
		if err == nil && o.recorder != nil {
			if rerr := o.recorder.RememberOrder(context.WithoutCancel(ctx), placed); rerr != nil {
				o.log.Warn("remember_order_error", "error", rerr)
			}
		}
		if state == StateExpired {
			return models.Order{}, ErrExpired
		}
		return models.Order{}, ErrClosed
	}

	if err != nil {
		if isReservationFailure(err) {
			o.mu.Unlock()
			o.log.Warn("place_order_reservation_error", "status", apiclient.StatusOf(err), "code", apiclient.CodeOf(err))
			o.expire("reservation_rejected")
			return models.Order{}, fmt.Errorf("%w: %w", ErrExpired, err)
		}
		o.state = StateAwaitingInput
		o.mu.Unlock()

		o.log.Warn("place_order_error", "status", apiclient.StatusOf(err), "error", err)
		o.publish(events.Event{Type: events.TypeCheckoutFailed, CartToken: token, Reason: err.Error()})
		return models.Order{}, err
	}

	o.state = StateSucceeded
	o.order = placed
	o.mu.Unlock()
	o.stopTimers()

	o.log.Info("order_placed", "order_id", placed.OrderID, "status", placed.Status.String())
	o.outcome("succeeded")
	o.publish(events.Event{
		Type:          events.TypeOrderPlaced,
		CartToken:     token,
		OrderID:       placed.OrderID,
		TrackingToken: placed.TrackingToken,
	})
	if o.recorder != nil {
		if err := o.recorder.RememberOrder(ctx, placed); err != nil {
			o.log.Warn("remember_order_error", "error", err)
		}
	}
	return placed, nil
}

func isReservationFailure(err error) bool {
	apiErr, ok := apiclient.AsError(err)
	if !ok {
		return false
	}
	switch apiErr.Status {
	case http.StatusConflict:
		return true
	case http.StatusBadRequest, http.StatusNotFound:
		return reservationCodes[apiErr.Code]
	}
	return false
}

// Close tears down the timers. A place-order response that arrives later is
// not surfaced, though the order is still recorded.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.stopTimers()
	o.wg.Wait()
}

func (o *Orchestrator) stopTimers() {
	o.stopOnce.Do(func() { close(o.stop) })
}

// Expired is closed when the checkout reaches Expired.
func (o *Orchestrator) Expired() <-chan struct{} { return o.expired }

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Session() models.CheckoutSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// Order is the placed order once Succeeded.
func (o *Orchestrator) Order() (models.Order, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.order, o.state == StateSucceeded
}

// Input returns the last shipping data and payment method passed to Submit.
func (o *Orchestrator) Input() (ShippingInfo, models.PaymentMethod) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.input, o.method
}

func (o *Orchestrator) publish(ev events.Event) {
	if ev.At.IsZero() {
		ev.At = o.now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.publisher.Publish(ctx, ev); err != nil {
		o.log.Warn("checkout_event_publish_error", "type", ev.Type, "error", err)
	}
}

func (o *Orchestrator) outcome(name string) {
	if o.observer != nil {
		o.observer.ObserveCheckout(name)
	}
}
