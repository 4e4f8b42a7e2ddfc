package fakeapi

import (
	"net/http"

	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

func (s *Server) startCheckout(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "start.checkout")

	var req models.StartCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return newAPIError(http.StatusBadRequest, codeValidationError, "invalid body")
	}
	if len(req.SelectedItemIDs) == 0 {
		return newAPIError(http.StatusBadRequest, codeValidationError, "selectedItemIds required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cs, err := s.loadCart(c, false)
	if err != nil {
		return err
	}
	// re-entering checkout replaces any earlier hold
	s.releaseReservation(cs)

	seen := make(map[int64]bool, len(req.SelectedItemIDs))
	var selected []*cartLine
	for _, id := range req.SelectedItemIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		ln, _ := cs.line(id)
		if ln == nil {
			return newAPIError(http.StatusNotFound, codeCartItemNotFound, "cart item not found")
		}
		sku, ok := s.skus[ln.skuID]
		if !ok {
			return newAPIError(http.StatusNotFound, codeSkuNotFound, "sku not found")
		}
		if ln.quantity > sku.Stock {
			l.Warn("start_checkout_error", "status", 400, "sku_id", sku.ID, "requested", ln.quantity, "available", sku.Stock)
			return newAPIError(http.StatusBadRequest, codeInsufficientStock, "insufficient stock for "+sku.Code)
		}
		selected = append(selected, ln)
	}

	expiresAt := s.now().Add(s.cfg.ReservationTTL)
	res := &reservation{expiresAt: expiresAt}
	session := models.CheckoutSession{
		CartID:            cs.id,
		ExpiresAt:         expiresAt,
		ExpirationSeconds: int64(s.cfg.ReservationTTL.Seconds()),
		TotalAmount:       decimal.Zero,
	}

	for _, ln := range selected {
		sku := s.skus[ln.skuID]
		sku.Stock -= ln.quantity

		h := heldLine{id: s.newID(), itemID: ln.id, skuID: sku.ID, quantity: ln.quantity}
		res.lines = append(res.lines, h)
		session.Reservations = append(session.Reservations, models.Reservation{
			ReservationID: h.id,
			SkuID:         sku.ID,
			SkuCode:       sku.Code,
			Quantity:      h.quantity,
			Status:        "ACTIVE",
			ExpiresAt:     expiresAt,
		})
		session.TotalAmount = session.TotalAmount.Add(sku.Price.Mul(decimal.NewFromInt(int64(h.quantity))))
	}
	cs.reserved = res

	l.Info("stock reserved", "cart_id", cs.id, "lines", len(res.lines), "expires_at", expiresAt)
	return s.respond(c, http.StatusOK, "checkout started", session)
}
