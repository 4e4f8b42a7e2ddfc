package checkout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Skotchmaster/storefront/internal/apiclient"
	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/fakeapi"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memStore struct {
	mu    sync.Mutex
	token string
}

func (m *memStore) CartToken(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *memStore) SaveCartToken(_ context.Context, t string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = t
	return nil
}

type recPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recPublisher) Close() error { return nil }

func (p *recPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type recOrders struct {
	mu     sync.Mutex
	orders []models.Order
}

func (r *recOrders) RememberOrder(_ context.Context, o models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, o)
	return nil
}

func (r *recOrders) all() []models.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Order(nil), r.orders...)
}

type fixture struct {
	srv    *fakeapi.Server
	clock  *fakeapi.ManualClock
	api    *apiclient.Client
	cart   *cart.Holder
	events *recPublisher
	orders *recOrders
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := fakeapi.NewManualClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	srv, err := fakeapi.New(fakeapi.Config{
		JWTSecret:  []byte("test-secret"),
		Now:        clock.Now,
		Logger:     logging.Discard(),
		BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	api, err := apiclient.New(ts.URL+fakeapi.BasePath, session.New(), apiclient.WithLogger(logging.Discard()))
	require.NoError(t, err)

	return &fixture{
		srv:    srv,
		clock:  clock,
		api:    api,
		cart:   cart.NewHolder(api, &memStore{}, logging.Discard()),
		events: &recPublisher{},
		orders: &recOrders{},
	}
}

// orchestrator builds a checkout whose timers never fire on their own.
func (f *fixture) orchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	base := []Option{
		WithClock(f.clock.Now),
		WithIntervals(time.Hour, time.Hour),
		WithPublisher(f.events),
		WithRecorder(f.orders),
		WithLogger(logging.Discard()),
	}
	o := New(f.api, f.cart, append(base, opts...)...)
	t.Cleanup(o.Close)
	return o
}

var validInfo = ShippingInfo{
	RecipientName: "Nguyen Van A",
	PhoneNumber:   "091 234 5678",
	Address:       "123 Main St",
}

func TestCheckout_PlacesOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.cart.Add(ctx, 5, 2)
	require.NoError(t, err)

	o := f.orchestrator(t)
	cs, err := o.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingInput, o.State())
	assert.Equal(t, 15*time.Minute, o.Remaining())
	require.Len(t, cs.Reservations, 1)

	order, err := o.Submit(ctx, validInfo, models.PaymentCOD)
	require.NoError(t, err)

	assert.NotEmpty(t, order.TrackingToken)
	assert.Equal(t, models.StatusPendingPayment, order.Status)
	assert.Equal(t, "0912345678", order.CustomerPhone)
	assert.Equal(t, StateSucceeded, o.State())

	got, ok := o.Order()
	assert.True(t, ok)
	assert.Equal(t, order.OrderID, got.OrderID)

	require.Len(t, f.orders.orders, 1)
	assert.Equal(t, order.TrackingToken, f.orders.orders[0].TrackingToken)
	assert.Equal(t, []string{events.TypeCheckoutStarted, events.TypeOrderPlaced}, f.events.types())
}

func TestCheckout_SubmitAfterLapseMakesNoCall(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.cart.Add(ctx, 5, 2)
	require.NoError(t, err)

	o := f.orchestrator(t)
	_, err = o.Start(ctx)
	require.NoError(t, err)

	f.clock.Advance(15*time.Minute + time.Second)

	_, err = o.Submit(ctx, validInfo, models.PaymentCOD)
	require.ErrorIs(t, err, ErrExpired)

	assert.Equal(t, 0, f.srv.Calls(http.MethodPost, "/order"))
	assert.Equal(t, StateExpired, o.State())
	select {
	case <-o.Expired():
	default:
		t.Fatal("expired channel not closed")
	}
	assert.Contains(t, f.events.types(), events.TypeCheckoutExpired)

	_, err = o.Submit(ctx, validInfo, models.PaymentCOD)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestCheckout_ConflictFromServerExpires(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.cart.Add(ctx, 5, 2)
	require.NoError(t, err)

	// the local clock lags the server by a minute
	lagging := func() time.Time { return f.clock.Now().Add(-time.Minute) }
	o := f.orchestrator(t, WithClock(lagging))
	_, err = o.Start(ctx)
	require.NoError(t, err)

	f.clock.Advance(15*time.Minute + time.Second)
	require.Positive(t, o.Remaining())

	_, err = o.Submit(ctx, validInfo, models.PaymentCOD)
	require.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, http.StatusConflict, apiclient.StatusOf(err))
	assert.Equal(t, 1, f.srv.Calls(http.MethodPost, "/order"))
	assert.Equal(t, StateExpired, o.State())
}

func TestCheckout_TimerExpires(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.cart.Add(ctx, 5, 1)
	require.NoError(t, err)

	ticks := make(chan time.Duration, 64)
	o := f.orchestrator(t,
		WithIntervals(5*time.Millisecond, 20*time.Millisecond),
		WithTickHandler(func(d time.Duration) {
			select {
			case ticks <- d:
			default:
			}
		}),
	)
	_, err = o.Start(ctx)
	require.NoError(t, err)

	select {
	case d := <-ticks:
		assert.LessOrEqual(t, d, 15*time.Minute)
	case <-time.After(2 * time.Second):
		t.Fatal("no tick")
	}

	f.clock.Advance(16 * time.Minute)

	select {
	case <-o.Expired():
	case <-time.After(2 * time.Second):
		t.Fatal("checkout did not expire")
	}
	assert.Equal(t, StateExpired, o.State())
	assert.Equal(t, 0, f.srv.Calls(http.MethodPost, "/order"))
}

func TestCheckout_LapseCheckExpiresWithoutDisplayTick(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		withHandler bool
	}{
		{name: "no tick handler"},
		{name: "tick handler never fires", withHandler: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ctx := context.Background()

			_, err := f.cart.Add(ctx, 5, 1)
			require.NoError(t, err)

			var ticked atomic.Int32
			opts := []Option{WithIntervals(time.Hour, 10*time.Millisecond)}
			if tt.withHandler {
				opts = append(opts, WithTickHandler(func(time.Duration) { ticked.Add(1) }))
			}
			o := f.orchestrator(t, opts...)
			_, err = o.Start(ctx)
			require.NoError(t, err)

			f.clock.Advance(16 * time.Minute)

			select {
			case <-o.Expired():
			case <-time.After(2 * time.Second):
				t.Fatal("lapse check did not expire the checkout")
			}
			assert.Equal(t, StateExpired, o.State())
			assert.Zero(t, ticked.Load())
			assert.Equal(t, 0, f.srv.Calls(http.MethodPost, "/order"))
			assert.Contains(t, f.events.types(), events.TypeCheckoutExpired)
		})
	}
}

func TestCheckout_ValidationKeepsInput(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.cart.Add(ctx, 5, 1)
	require.NoError(t, err)

	o := f.orchestrator(t)
	_, err = o.Start(ctx)
	require.NoError(t, err)

	bad := ShippingInfo{RecipientName: "A", PhoneNumber: "12345", Address: "B", Notes: "ring twice"}
	_, err = o.Submit(ctx, bad, models.PaymentBankTransfer)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, FieldPhoneNumber)
	assert.Equal(t, StateAwaitingInput, o.State())

	info, method := o.Input()
	assert.Equal(t, bad, info)
	assert.Equal(t, models.PaymentBankTransfer, method)
	assert.Equal(t, 0, f.srv.Calls(http.MethodPost, "/order"))

	_, err = o.Submit(ctx, validInfo, "CARD")
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, FieldPaymentMethod)
}

func TestCheckout_Start_NoCartToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	o := f.orchestrator(t)
	_, err := o.Start(context.Background())
	require.ErrorIs(t, err, ErrNoCartToken)

	assert.Equal(t, StateAborted, o.State())
	assert.Equal(t, 0, f.srv.Calls(http.MethodGet, "/cart"))
	assert.Equal(t, 0, f.srv.Calls(http.MethodPost, "/checkout/start"))
}

func TestCheckout_Start_EmptyCart(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.cart.Add(ctx, 5, 1)
	require.NoError(t, err)
	_, err = f.cart.Remove(ctx, c.Items[0].ID)
	require.NoError(t, err)

	o := f.orchestrator(t)
	_, err = o.Start(ctx)
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, 0, f.srv.Calls(http.MethodPost, "/checkout/start"))
}

func TestCheckout_Start_StockShortfallMakesNoReservation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.cart.Add(ctx, 7, 3)
	require.NoError(t, err)
	f.srv.SetStock(7, 1)

	o := f.orchestrator(t)
	_, err = o.Start(ctx)
	require.ErrorIs(t, err, ErrStockShortfall)
	assert.Equal(t, StateAborted, o.State())
	assert.Equal(t, 0, f.srv.Calls(http.MethodPost, "/checkout/start"))
	assert.Equal(t, 1, f.srv.Stock(7))
}

func TestCheckout_Start_ShortfallOnStubCart(t *testing.T) {
	t.Parallel()

	api := &stubAPI{now: time.Now}
	sc := stubCart{token: "tok", cart: models.Cart{Items: []models.CartItem{
		{ID: 1, Quantity: 1, AvailableStock: 4},
		{ID: 2, Quantity: 5, AvailableStock: 2},
	}}}
	o := New(api, sc, WithIntervals(time.Hour, time.Hour), WithLogger(logging.Discard()))
	t.Cleanup(o.Close)

	_, err := o.Start(context.Background())
	require.ErrorIs(t, err, ErrStockShortfall)
	assert.Zero(t, api.startCalls)
	assert.Equal(t, StateAborted, o.State())
}

func TestCheckout_Start_ReservationRejected(t *testing.T) {
	t.Parallel()

	api := &stubAPI{now: time.Now, startErr: &apiclient.Error{
		Kind:   apiclient.KindClient,
		Status: http.StatusBadRequest,
		Code:   apiclient.CodeInsufficientStock,
	}}
	sc := stubCart{token: "tok", cart: models.Cart{Items: []models.CartItem{{ID: 1, Quantity: 1, AvailableStock: 1}}}}
	o := New(api, sc, WithIntervals(time.Hour, time.Hour), WithLogger(logging.Discard()))
	t.Cleanup(o.Close)

	_, err := o.Start(context.Background())
	require.ErrorIs(t, err, ErrStartFailed)
	assert.Equal(t, apiclient.CodeInsufficientStock, apiclient.CodeOf(err))
	assert.Equal(t, 1, api.startCalls)
	assert.Equal(t, StateAborted, o.State())
}

type stubCart struct {
	token string
	cart  models.Cart
}

func (s stubCart) Token() string                              { return s.token }
func (s stubCart) Load(context.Context) (models.Cart, error) { return s.cart, nil }

type stubAPI struct {
	placeOrder func(ctx context.Context) (models.Order, error)
	now        func() time.Time
	startErr   error
	startCalls int
}

func (s *stubAPI) Do(ctx context.Context, r apiclient.Request, out any) error {
	switch r.Path {
	case "/checkout/start":
		s.startCalls++
		if s.startErr != nil {
			return s.startErr
		}
		*out.(*models.CheckoutSession) = models.CheckoutSession{ExpiresAt: s.now().Add(10 * time.Minute)}
		return nil
	case "/order":
		o, err := s.placeOrder(ctx)
		if err != nil {
			return err
		}
		*out.(*models.Order) = o
		return nil
	}
	return errors.New("unexpected path " + r.Path)
}

func stubCheckout(t *testing.T, api *stubAPI, opts ...Option) *Orchestrator {
	t.Helper()
	clock := fakeapi.NewManualClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	api.now = clock.Now
	sc := stubCart{token: "tok", cart: models.Cart{Items: []models.CartItem{{ID: 1, Quantity: 1, AvailableStock: 3}}}}

	base := []Option{WithClock(clock.Now), WithIntervals(time.Hour, time.Hour), WithLogger(logging.Discard())}
	o := New(api, sc, append(base, opts...)...)
	t.Cleanup(o.Close)
	_, err := o.Start(context.Background())
	require.NoError(t, err)
	return o
}

func TestCheckout_ServerErrorReturnsToInput(t *testing.T) {
	t.Parallel()

	calls := 0
	api := &stubAPI{placeOrder: func(context.Context) (models.Order, error) {
		calls++
		if calls == 1 {
			return models.Order{}, &apiclient.Error{Kind: apiclient.KindServer, Status: http.StatusInternalServerError, Message: apiclient.MsgGeneric}
		}
		return models.Order{OrderID: 9, TrackingToken: "trk", Status: models.StatusPendingPayment}, nil
	}}
	o := stubCheckout(t, api)

	_, err := o.Submit(context.Background(), validInfo, models.PaymentCOD)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExpired)
	assert.True(t, apiclient.IsKind(err, apiclient.KindServer))
	assert.Equal(t, StateAwaitingInput, o.State())

	info, _ := o.Input()
	assert.Equal(t, validInfo, info)

	order, err := o.Submit(context.Background(), validInfo, models.PaymentCOD)
	require.NoError(t, err)
	assert.Equal(t, "trk", order.TrackingToken)
}

func TestCheckout_ReservationCodeOn400Expires(t *testing.T) {
	t.Parallel()

	api := &stubAPI{placeOrder: func(context.Context) (models.Order, error) {
		return models.Order{}, &apiclient.Error{Kind: apiclient.KindClient, Status: http.StatusBadRequest, Code: apiclient.CodeNoActiveReservation}
	}}
	o := stubCheckout(t, api)

	_, err := o.Submit(context.Background(), validInfo, models.PaymentCOD)
	require.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, StateExpired, o.State())
}

func TestCheckout_CartGoneOn404Expires(t *testing.T) {
	t.Parallel()

	calls := 0
	api := &stubAPI{placeOrder: func(context.Context) (models.Order, error) {
		calls++
		return models.Order{}, &apiclient.Error{Kind: apiclient.KindNotFound, Status: http.StatusNotFound, Code: apiclient.CodeCartNotFound}
	}}
	o := stubCheckout(t, api)

	_, err := o.Submit(context.Background(), validInfo, models.PaymentCOD)
	require.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, StateExpired, o.State())

	_, err = o.Submit(context.Background(), validInfo, models.PaymentCOD)
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, 1, calls)
}

func TestCheckout_OtherNotFoundReturnsToInput(t *testing.T) {
	t.Parallel()

	api := &stubAPI{placeOrder: func(context.Context) (models.Order, error) {
		return models.Order{}, &apiclient.Error{Kind: apiclient.KindNotFound, Status: http.StatusNotFound, Code: apiclient.CodeSkuNotFound}
	}}
	o := stubCheckout(t, api)

	_, err := o.Submit(context.Background(), validInfo, models.PaymentCOD)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExpired)
	assert.Equal(t, StateAwaitingInput, o.State())
}

func TestCheckout_ResponseAfterCloseIsDiscarded(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	api := &stubAPI{placeOrder: func(context.Context) (models.Order, error) {
		close(entered)
		<-release
		return models.Order{OrderID: 9, TrackingToken: "late", Status: models.StatusPendingPayment}, nil
	}}
	rec := &recOrders{}
	o := stubCheckout(t, api, WithRecorder(rec))

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), validInfo, models.PaymentCOD)
		done <- err
	}()
	<-entered

	_, err := o.Submit(context.Background(), validInfo, models.PaymentCOD)
	assert.ErrorIs(t, err, ErrBusy)

	o.Close()
	close(release)

	assert.ErrorIs(t, <-done, ErrClosed)
	_, ok := o.Order()
	assert.False(t, ok)

	// the discarded order is still remembered for tracking
	require.Len(t, rec.all(), 1)
	assert.Equal(t, "late", rec.all()[0].TrackingToken)
}
