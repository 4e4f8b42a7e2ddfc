package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync"

	"github.com/Skotchmaster/storefront/internal/apiclient"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrValidation = errors.New("validation")
	ErrRowBusy    = errors.New("cart row has a request in flight")
)

type API interface {
	Do(ctx context.Context, r apiclient.Request, out any) error
}

// TokenStore persists the cart token across runs.
type TokenStore interface {
	CartToken(ctx context.Context) (string, error)
	SaveCartToken(ctx context.Context, token string) error
}

// Holder owns the current cart for one client session. Every mutation is a
// round trip whose response replaces the local cart wholesale.
type Holder struct {
	api   API
	store TokenStore
	log   *slog.Logger

	mu    sync.Mutex
	token string
	cart  models.Cart
	busy  map[int64]bool
}

func NewHolder(api API, store TokenStore, log *slog.Logger) *Holder {
	if log == nil {
		log = slog.Default()
	}
	return &Holder{
		api:   api,
		store: store,
		log:   log.With("component", "cart"),
		busy:  make(map[int64]bool),
	}
}

// Restore loads a previously saved token without creating one.
func (h *Holder) Restore(ctx context.Context) error {
	tok, err := h.store.CartToken(ctx)
	if err != nil {
		return fmt.Errorf("restore cart token: %w", err)
	}
	h.mu.Lock()
	h.token = tok
	h.mu.Unlock()
	return nil
}

func (h *Holder) Token() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.token
}

// EnsureToken returns the cart token, generating and persisting one if the
// client has none yet.
func (h *Holder) EnsureToken(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.token != "" {
		return h.token, nil
	}

	tok, err := h.store.CartToken(ctx)
	if err != nil {
		return "", fmt.Errorf("load cart token: %w", err)
	}
	if tok == "" {
		tok = uuid.NewString()
		if err := h.store.SaveCartToken(ctx, tok); err != nil {
			return "", fmt.Errorf("save cart token: %w", err)
		}
		h.log.Info("cart_token_created")
	}
	h.token = tok
	return tok, nil
}

func (h *Holder) Cart() models.Cart {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.cart
	c.Items = slices.Clone(h.cart.Items)
	c.Warnings = slices.Clone(h.cart.Warnings)
	return c
}

// Load fetches the authoritative cart. A missing token or a 404/400 from
// the backend means the cart does not exist yet and yields an empty cart.
func (h *Holder) Load(ctx context.Context) (models.Cart, error) {
	tok := h.Token()
	if tok == "" {
		h.replace(models.Cart{})
		return models.Cart{}, nil
	}

	var next models.Cart
	err := h.api.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   "/cart",
		Header: apiclient.CartHeader(tok),
	}, &next)
	if err != nil {
		switch apiclient.StatusOf(err) {
		case http.StatusNotFound, http.StatusBadRequest:
			h.log.Info("cart_not_created_yet", "status", apiclient.StatusOf(err))
			h.replace(models.Cart{CartToken: tok})
			return h.Cart(), nil
		}
		h.log.Error("cart_load_error", "error", err)
		return models.Cart{}, err
	}

	h.replace(next)
	return next, nil
}

func (h *Holder) Add(ctx context.Context, skuID int64, quantity int) (models.Cart, error) {
	if skuID <= 0 || quantity < 1 {
		return models.Cart{}, fmt.Errorf("%w: skuId and quantity>0 required", ErrValidation)
	}
	tok, err := h.EnsureToken(ctx)
	if err != nil {
		return models.Cart{}, err
	}
	return h.mutate(ctx, 0, tok, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/cart/items",
		Body:   models.AddItemRequest{SkuID: skuID, Quantity: quantity},
	})
}

func (h *Holder) Update(ctx context.Context, itemID int64, quantity int) (models.Cart, error) {
	if quantity < 1 {
		return models.Cart{}, fmt.Errorf("%w: quantity must be > 0", ErrValidation)
	}
	return h.mutate(ctx, itemID, h.Token(), apiclient.Request{
		Method: http.MethodPut,
		Path:   "/cart/items/" + strconv.FormatInt(itemID, 10),
		Route:  "/cart/items/{id}",
		Body:   models.UpdateItemRequest{Quantity: quantity},
	})
}

func (h *Holder) Remove(ctx context.Context, itemID int64) (models.Cart, error) {
	return h.mutate(ctx, itemID, h.Token(), apiclient.Request{
		Method: http.MethodDelete,
		Path:   "/cart/items/" + strconv.FormatInt(itemID, 10),
		Route:  "/cart/items/{id}",
	})
}

func (h *Holder) Clear(ctx context.Context) (models.Cart, error) {
	return h.mutate(ctx, 0, h.Token(), apiclient.Request{
		Method: http.MethodDelete,
		Path:   "/cart",
	})
}

// Busy reports whether a request for the row is outstanding.
func (h *Holder) Busy(itemID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.busy[itemID]
}

func (h *Holder) mutate(ctx context.Context, rowID int64, tok string, r apiclient.Request) (models.Cart, error) {
	if tok == "" {
		return models.Cart{}, fmt.Errorf("%w: no cart yet", ErrValidation)
	}
	if rowID != 0 {
		if !h.acquire(rowID) {
			return models.Cart{}, ErrRowBusy
		}
		defer h.release(rowID)
	}

	r.Header = apiclient.CartHeader(tok)
	var next models.Cart
	if err := h.api.Do(ctx, r, &next); err != nil {
		h.log.Warn("cart_mutation_error", "method", r.Method, "path", r.Path, "status", apiclient.StatusOf(err), "error", err)
		return models.Cart{}, err
	}

	h.replace(next)
	return next, nil
}

func (h *Holder) replace(c models.Cart) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cart = c
}

func (h *Holder) acquire(rowID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.busy[rowID] {
		return false
	}
	h.busy[rowID] = true
	return true
}

func (h *Holder) release(rowID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.busy, rowID)
}

// StockIssues lists items whose requested quantity exceeds reported stock.
func (h *Holder) StockIssues() []models.CartItem {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []models.CartItem
	for _, it := range h.cart.Items {
		if !it.InStock() {
			out = append(out, it)
		}
	}
	return out
}

func (h *Holder) CanCheckout() bool {
	return CanCheckout(h.Cart())
}

// CanCheckout is true for a non-empty cart where every item is covered by
// the stock the server last reported.
func CanCheckout(c models.Cart) bool {
	if len(c.Items) == 0 {
		return false
	}
	for _, it := range c.Items {
		if !it.InStock() {
			return false
		}
	}
	return true
}

func (h *Holder) ItemCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, it := range h.cart.Items {
		n += it.Quantity
	}
	return n
}

func (h *Holder) Subtotal() decimal.Decimal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cart.Subtotal
}
