package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Skotchmaster/storefront/internal/apiclient"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
)

const DefaultPageSize = 20

var (
	ErrEmptyToken           = errors.New("tracking token is empty")
	ErrNotFound             = errors.New("order not found")
	ErrUnauthenticated      = errors.New("sign in required")
	ErrTransitionNotOffered = errors.New("transition not offered")
	ErrReasonRequired       = errors.New("cancellation reason required")
)

type API interface {
	Do(ctx context.Context, r apiclient.Request, out any) error
}

// Auth reports whether a signed-in session exists.
type Auth interface {
	IsAuthenticated() bool
}

type Service struct {
	api  API
	auth Auth
}

func NewService(api API, auth Auth) *Service {
	return &Service{api: api, auth: auth}
}

// Track looks an order up by its public tracking token. An unknown token
// yields ErrNotFound, which callers show as a normal outcome.
func (s *Service) Track(ctx context.Context, token string) (models.Order, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.Order{}, ErrEmptyToken
	}

	var o models.Order
	err := s.api.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   "/order/track/" + url.PathEscape(token),
		Route:  "/order/track/{token}",
	}, &o)
	if err != nil {
		return models.Order{}, notFound(err)
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, id int64) (models.Order, error) {
	if err := s.requireSession(); err != nil {
		return models.Order{}, err
	}

	var o models.Order
	if err := s.api.Do(ctx, s.byID(http.MethodGet, id, ""), &o); err != nil {
		return models.Order{}, notFound(err)
	}
	return o, nil
}

func (s *Service) History(ctx context.Context, id int64) ([]models.OrderHistory, error) {
	if err := s.requireSession(); err != nil {
		return nil, err
	}

	var out []models.OrderHistory
	if err := s.api.Do(ctx, s.byID(http.MethodGet, id, "/history"), &out); err != nil {
		return nil, notFound(err)
	}
	return out, nil
}

// Filter narrows the admin order list. Dates are whole days, inclusive.
type Filter struct {
	Page      int
	Size      int
	Status    *models.OrderStatus
	StartDate time.Time
	EndDate   time.Time
	Search    string
}

func (f Filter) Query() url.Values {
	q := url.Values{}
	size := f.Size
	if size <= 0 {
		size = DefaultPageSize
	}
	q.Set("page", strconv.Itoa(max(f.Page, 0)))
	q.Set("size", strconv.Itoa(size))
	if f.Status != nil {
		q.Set("status", f.Status.String())
	}
	if !f.StartDate.IsZero() {
		q.Set("startDate", f.StartDate.Format(time.DateOnly))
	}
	if !f.EndDate.IsZero() {
		q.Set("endDate", f.EndDate.Format(time.DateOnly))
	}
	if v := strings.TrimSpace(f.Search); v != "" {
		q.Set("search", v)
	}
	return q
}

func (s *Service) List(ctx context.Context, f Filter) (models.Page[models.Order], error) {
	if err := s.requireSession(); err != nil {
		return models.Page[models.Order]{}, err
	}

	var page models.Page[models.Order]
	err := s.api.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   "/order",
		Query:  f.Query(),
	}, &page)
	if err != nil {
		return models.Page[models.Order]{}, err
	}
	return page, nil
}

// Transition moves an order from current to target. Only the targets
// NextStatuses offers are sent; the backend stays the authority and may still
// refuse. Cancelling needs a non-empty reason.
func (s *Service) Transition(ctx context.Context, id int64, current, target models.OrderStatus, reason string) (models.Order, error) {
	l := logging.FromContext(ctx).With("svc", "order.transition", "order_id", id)

	if err := s.requireSession(); err != nil {
		return models.Order{}, err
	}
	if !CanTransition(current, target) {
		return models.Order{}, fmt.Errorf("%w: %s to %s", ErrTransitionNotOffered, current, target)
	}

	var r apiclient.Request
	if target == models.StatusCancelled {
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return models.Order{}, ErrReasonRequired
		}
		r = s.byID(http.MethodPost, id, "/cancel")
		r.Body = models.CancelOrderRequest{Reason: reason}
	} else {
		r = s.byID(http.MethodPut, id, "/status")
		r.Body = models.UpdateStatusRequest{NewStatus: target}
	}

	var o models.Order
	if err := s.api.Do(ctx, r, &o); err != nil {
		l.Warn("transition_error", "from", current.String(), "to", target.String(),
			"status", apiclient.StatusOf(err), "code", apiclient.CodeOf(err))
		return models.Order{}, notFound(err)
	}
	l.Info("order status changed", "from", current.String(), "to", o.Status.String())
	return o, nil
}

func (s *Service) requireSession() error {
	if s.auth == nil || !s.auth.IsAuthenticated() {
		return ErrUnauthenticated
	}
	return nil
}

func (s *Service) byID(method string, id int64, suffix string) apiclient.Request {
	return apiclient.Request{
		Method: method,
		Path:   "/order/" + strconv.FormatInt(id, 10) + suffix,
		Route:  "/order/{id}" + suffix,
	}
}

// notFound keeps the api error in the chain so callers can still read it.
func notFound(err error) error {
	if apiclient.IsKind(err, apiclient.KindNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
