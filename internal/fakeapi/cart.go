package fakeapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

const cartTokenHeader = "X-Cart-Token"

type cartLine struct {
	id       int64
	skuID    int64
	quantity int
}

type heldLine struct {
	id       int64
	itemID   int64
	skuID    int64
	quantity int
}

type reservation struct {
	lines     []heldLine
	expiresAt time.Time
}

type cartState struct {
	id       int64
	token    string
	lines    []*cartLine
	reserved *reservation
}

func (c *cartState) line(id int64) (*cartLine, int) {
	for i, l := range c.lines {
		if l.id == id {
			return l, i
		}
	}
	return nil, -1
}

func cartToken(c echo.Context) (string, error) {
	tok := strings.TrimSpace(c.Request().Header.Get(cartTokenHeader))
	if tok == "" {
		return "", newAPIError(http.StatusBadRequest, codeInvalidCartToken, "X-Cart-Token header required")
	}
	return tok, nil
}

// loadCart returns the cart for the request's token. s.mu must be held.
func (s *Server) loadCart(c echo.Context, create bool) (*cartState, error) {
	tok, err := cartToken(c)
	if err != nil {
		return nil, err
	}
	cs, ok := s.carts[tok]
	if !ok {
		if !create {
			return nil, newAPIError(http.StatusNotFound, codeCartNotFound, "cart not found")
		}
		cs = &cartState{id: s.newID(), token: tok}
		s.carts[tok] = cs
	}
	s.releaseIfExpired(cs)
	return cs, nil
}

// releaseIfExpired returns held stock once a reservation lapses. It reports
// whether a reservation was released. s.mu must be held.
func (s *Server) releaseIfExpired(cs *cartState) bool {
	if cs.reserved == nil || s.now().Before(cs.reserved.expiresAt) {
		return false
	}
	s.releaseReservation(cs)
	return true
}

// releaseReservation returns held stock. Cart mutations call it too, since a
// changed cart no longer matches what was reserved. s.mu must be held.
func (s *Server) releaseReservation(cs *cartState) {
	if cs.reserved == nil {
		return
	}
	for _, h := range cs.reserved.lines {
		if sku, ok := s.skus[h.skuID]; ok {
			sku.Stock += h.quantity
		}
	}
	cs.reserved = nil
}

func (s *Server) heldBy(cs *cartState, skuID int64) int {
	if cs.reserved == nil {
		return 0
	}
	n := 0
	for _, h := range cs.reserved.lines {
		if h.skuID == skuID {
			n += h.quantity
		}
	}
	return n
}

// cartView renders the authoritative cart. s.mu must be held.
func (s *Server) cartView(cs *cartState) models.Cart {
	out := models.Cart{
		CartID:    cs.id,
		CartToken: cs.token,
		Items:     make([]models.CartItem, 0, len(cs.lines)),
		Subtotal:  decimal.Zero,
	}
	for _, l := range cs.lines {
		sku, ok := s.skus[l.skuID]
		if !ok {
			continue
		}
		available := sku.Stock + s.heldBy(cs, sku.ID)
		total := sku.Price.Mul(decimal.NewFromInt(int64(l.quantity)))
		item := models.CartItem{
			ID:             l.id,
			SkuID:          sku.ID,
			SkuCode:        sku.Code,
			ProductName:    sku.ProductName,
			Size:           sku.Size,
			Color:          sku.Color,
			ImageURL:       sku.ImageURL,
			UnitPrice:      sku.Price,
			Quantity:       l.quantity,
			AvailableStock: available,
			Sufficient:     l.quantity <= available,
			ItemTotal:      total,
		}
		out.Items = append(out.Items, item)
		out.Subtotal = out.Subtotal.Add(total)
		if !item.Sufficient {
			out.Warnings = append(out.Warnings, models.StockWarning{
				SkuID:        sku.ID,
				Message:      "only " + strconv.Itoa(available) + " left in stock",
				RequestedQty: l.quantity,
				AvailableQty: available,
			})
		}
	}
	return out
}

func (s *Server) getCart(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, err := s.loadCart(c, false)
	if err != nil {
		return err
	}
	return s.respond(c, http.StatusOK, "cart", s.cartView(cs))
}

func (s *Server) addItem(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "add.cart.item")

	var req models.AddItemRequest
	if err := c.Bind(&req); err != nil {
		return newAPIError(http.StatusBadRequest, codeValidationError, "invalid body")
	}
	if req.SkuID <= 0 || req.Quantity < 1 {
		return newAPIError(http.StatusBadRequest, codeValidationError, "skuId and quantity>0 required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sku, ok := s.skus[req.SkuID]
	if !ok {
		return newAPIError(http.StatusNotFound, codeSkuNotFound, "sku not found")
	}
	cs, err := s.loadCart(c, true)
	if err != nil {
		return err
	}
	s.releaseReservation(cs)

	var existing *cartLine
	for _, ln := range cs.lines {
		if ln.skuID == sku.ID {
			existing = ln
			break
		}
	}
	want := req.Quantity
	if existing != nil {
		want += existing.quantity
	}
	if want > sku.Stock+s.heldBy(cs, sku.ID) {
		return newAPIError(http.StatusBadRequest, codeInsufficientStock, "insufficient stock")
	}

	if existing != nil {
		existing.quantity = want
	} else {
		cs.lines = append(cs.lines, &cartLine{id: s.newID(), skuID: sku.ID, quantity: want})
	}

	l.Info("item added to cart", "sku_id", sku.ID, "quantity", want)
	return s.respond(c, http.StatusOK, "item added", s.cartView(cs))
}

func (s *Server) updateItem(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req models.UpdateItemRequest
	if err := c.Bind(&req); err != nil {
		return newAPIError(http.StatusBadRequest, codeValidationError, "invalid body")
	}
	if req.Quantity < 1 {
		return newAPIError(http.StatusBadRequest, codeValidationError, "quantity must be > 0")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cs, err := s.loadCart(c, false)
	if err != nil {
		return err
	}
	s.releaseReservation(cs)
	ln, _ := cs.line(id)
	if ln == nil {
		return newAPIError(http.StatusNotFound, codeCartItemNotFound, "cart item not found")
	}
	if sku := s.skus[ln.skuID]; sku != nil && req.Quantity > sku.Stock+s.heldBy(cs, sku.ID) {
		return newAPIError(http.StatusBadRequest, codeInsufficientStock, "insufficient stock")
	}
	ln.quantity = req.Quantity

	return s.respond(c, http.StatusOK, "item updated", s.cartView(cs))
}

func (s *Server) removeItem(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cs, err := s.loadCart(c, false)
	if err != nil {
		return err
	}
	s.releaseReservation(cs)
	_, idx := cs.line(id)
	if idx < 0 {
		return newAPIError(http.StatusNotFound, codeCartItemNotFound, "cart item not found")
	}
	cs.lines = append(cs.lines[:idx], cs.lines[idx+1:]...)

	return s.respond(c, http.StatusOK, "item removed", s.cartView(cs))
}

func (s *Server) clearCart(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, err := s.loadCart(c, false)
	if err != nil {
		return err
	}
	s.releaseReservation(cs)
	cs.lines = nil

	return s.respond(c, http.StatusOK, "cart cleared", s.cartView(cs))
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, newAPIError(http.StatusBadRequest, codeValidationError, "invalid id")
	}
	return id, nil
}
