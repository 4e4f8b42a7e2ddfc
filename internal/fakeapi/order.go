package fakeapi

import (
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

var phoneDigits = regexp.MustCompile(`^0\d{9,10}$`)

// allowedNext is the server-side authority on status changes.
var allowedNext = map[models.OrderStatus][]models.OrderStatus{
	models.StatusPendingPayment: {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed:      {models.StatusShipping, models.StatusCancelled},
	models.StatusShipping:       {models.StatusDelivered},
}

type orderState struct {
	order   models.Order
	history []models.OrderHistory
}

func canMove(from, to models.OrderStatus) bool {
	for _, s := range allowedNext[from] {
		if s == to {
			return true
		}
	}
	return false
}

func validateOrder(req models.PlaceOrderRequest) string {
	var bad []string
	if strings.TrimSpace(req.RecipientName) == "" {
		bad = append(bad, "recipientName")
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, req.PhoneNumber)
	if !phoneDigits.MatchString(digits) {
		bad = append(bad, "phoneNumber")
	}
	if strings.TrimSpace(req.Address) == "" {
		bad = append(bad, "address")
	}
	if !req.PaymentMethod.Valid() {
		bad = append(bad, "paymentMethod")
	}
	if len(bad) == 0 {
		return ""
	}
	return "invalid fields: " + strings.Join(bad, ", ")
}

func (s *Server) placeOrder(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "place.order")

	var req models.PlaceOrderRequest
	if err := c.Bind(&req); err != nil {
		return newAPIError(http.StatusBadRequest, codeValidationError, "invalid body")
	}
	tok := strings.TrimSpace(req.CartToken)
	if tok == "" {
		tok = strings.TrimSpace(c.Request().Header.Get(cartTokenHeader))
	}
	if tok == "" {
		return newAPIError(http.StatusBadRequest, codeInvalidCartToken, "cartToken required")
	}
	if msg := validateOrder(req); msg != "" {
		return newAPIError(http.StatusBadRequest, codeValidationError, msg)
	}
	caller := s.optionalClaims(c)

	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.carts[tok]
	if !ok {
		return newAPIError(http.StatusNotFound, codeCartNotFound, "cart not found")
	}
	if cs.reserved == nil {
		return newAPIError(http.StatusBadRequest, codeNoActiveReservation, "no active reservation")
	}
	if s.releaseIfExpired(cs) {
		l.Warn("place_order_error", "status", 409, "cart_id", cs.id, "reason", "reservation expired")
		return newAPIError(http.StatusConflict, codeReservationExpired, "reservation expired")
	}

	now := s.now()
	o := models.Order{
		OrderID:         s.newID(),
		TrackingToken:   uuid.NewString(),
		Status:          models.StatusPendingPayment,
		PaymentMethod:   req.PaymentMethod,
		TotalAmount:     decimal.Zero,
		CustomerName:    strings.TrimSpace(req.RecipientName),
		CustomerPhone:   req.PhoneNumber,
		ShippingAddress: strings.TrimSpace(req.Address),
		Note:            req.Notes,
		CreatedAt:       now,
	}
	if caller != nil {
		o.CustomerEmail = caller.Email
	}

	bought := make(map[int64]bool, len(cs.reserved.lines))
	for _, h := range cs.reserved.lines {
		sku := s.skus[h.skuID]
		total := sku.Price.Mul(decimal.NewFromInt(int64(h.quantity)))
		o.Items = append(o.Items, models.OrderItem{
			SkuID:       sku.ID,
			SkuCode:     sku.Code,
			ProductName: sku.ProductName,
			Size:        sku.Size,
			Color:       sku.Color,
			Quantity:    h.quantity,
			UnitPrice:   sku.Price,
			TotalPrice:  total,
		})
		o.TotalAmount = o.TotalAmount.Add(total)
		bought[h.itemID] = true
	}
	if o.PaymentMethod == models.PaymentBankTransfer {
		o.BankTransferInfo = &models.BankTransferInfo{
			BankName:        "Demo Bank",
			AccountNumber:   "0123456789",
			AccountName:     "STOREFRONT LTD",
			Amount:          o.TotalAmount,
			TransferContent: "ORDER " + strconv.FormatInt(o.OrderID, 10),
		}
	}

	// the reservation is consumed: held stock stays sold
	cs.reserved = nil
	kept := cs.lines[:0]
	for _, ln := range cs.lines {
		if !bought[ln.id] {
			kept = append(kept, ln)
		}
	}
	cs.lines = kept

	s.orders[o.OrderID] = &orderState{
		order: o,
		history: []models.OrderHistory{{
			ID:        s.newID(),
			NewStatus: models.StatusPendingPayment,
			Note:      "order placed",
			ChangedAt: now,
		}},
	}
	s.tracking[o.TrackingToken] = o.OrderID

	l.Info("order placed", "order_id", o.OrderID, "total", o.TotalAmount.String())
	return s.respond(c, http.StatusCreated, "order placed", o)
}

func (s *Server) trackOrder(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.tracking[c.Param("token")]
	if !ok {
		return newAPIError(http.StatusNotFound, codeOrderNotFound, "order not found")
	}
	return s.respond(c, http.StatusOK, "order", s.orders[id].order)
}

// findOrder looks up the path id. s.mu must be held.
func (s *Server) findOrder(c echo.Context) (*orderState, error) {
	id, err := pathID(c)
	if err != nil {
		return nil, err
	}
	st, ok := s.orders[id]
	if !ok {
		return nil, newAPIError(http.StatusNotFound, codeOrderNotFound, "order not found")
	}
	return st, nil
}

func (s *Server) getOrder(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.findOrder(c)
	if err != nil {
		return err
	}
	return s.respond(c, http.StatusOK, "order", st.order)
}

func (s *Server) orderHistory(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.findOrder(c)
	if err != nil {
		return err
	}
	out := append([]models.OrderHistory(nil), st.history...)
	return s.respond(c, http.StatusOK, "history", out)
}

type orderFilter struct {
	page, size int
	status     *models.OrderStatus
	from, to   time.Time
	search     string
}

func parseOrderFilter(c echo.Context) (orderFilter, error) {
	var f orderFilter
	bad := func(field string) error {
		return newAPIError(http.StatusBadRequest, codeValidationError, "invalid "+field)
	}

	if v := c.QueryParam("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, bad("page")
		}
		f.page = n
	}
	if v := c.QueryParam("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, bad("size")
		}
		f.size = n
	}
	if v := c.QueryParam("status"); v != "" {
		st, err := models.ParseStatus(v)
		if err != nil {
			return f, bad("status")
		}
		f.status = &st
	}
	if v := c.QueryParam("startDate"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return f, bad("startDate")
		}
		f.from = t
	}
	if v := c.QueryParam("endDate"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return f, bad("endDate")
		}
		f.to = t.AddDate(0, 0, 1)
	}
	f.search = strings.ToLower(strings.TrimSpace(c.QueryParam("search")))
	return f, nil
}

func (f orderFilter) match(o models.Order) bool {
	if f.status != nil && o.Status != *f.status {
		return false
	}
	if !f.from.IsZero() && o.CreatedAt.Before(f.from) {
		return false
	}
	if !f.to.IsZero() && !o.CreatedAt.Before(f.to) {
		return false
	}
	if f.search == "" {
		return true
	}
	for _, field := range []string{
		strconv.FormatInt(o.OrderID, 10), o.TrackingToken, o.CustomerName, o.CustomerPhone, o.CustomerEmail,
	} {
		if strings.Contains(strings.ToLower(field), f.search) {
			return true
		}
	}
	return false
}

func (s *Server) listOrders(c echo.Context) error {
	f, err := parseOrderFilter(c)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.Order
	for _, st := range s.orders {
		if f.match(st.order) {
			matched = append(matched, st.order)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].OrderID > matched[j].OrderID
	})

	page, size, from := pageBounds(f.page, f.size)
	var content []models.Order
	if from < len(matched) {
		end := min(from+size, len(matched))
		content = matched[from:end]
	}
	return s.respond(c, http.StatusOK, "orders", models.NewPage(content, page, size, int64(len(matched))))
}

// moveOrder applies one status change. s.mu must be held.
func (s *Server) moveOrder(st *orderState, to models.OrderStatus, note string) error {
	from := st.order.Status
	if !canMove(from, to) {
		return newAPIError(http.StatusBadRequest, codeInvalidOrderStatus,
			"cannot move order from "+from.String()+" to "+to.String())
	}

	st.order.Status = to
	st.history = append(st.history, models.OrderHistory{
		ID:        s.newID(),
		OldStatus: &from,
		NewStatus: to,
		Note:      note,
		ChangedAt: s.now(),
	})

	if to == models.StatusCancelled {
		for _, it := range st.order.Items {
			if sku, ok := s.skus[it.SkuID]; ok {
				sku.Stock += it.Quantity
			}
		}
	}
	return nil
}

func (s *Server) updateStatus(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "update.order.status")

	var req models.UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return newAPIError(http.StatusBadRequest, codeValidationError, "invalid newStatus")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.findOrder(c)
	if err != nil {
		return err
	}
	if err := s.moveOrder(st, req.NewStatus, ""); err != nil {
		l.Warn("update_status_error", "status", 400, "order_id", st.order.OrderID, "error", err)
		return err
	}

	l.Info("order status updated", "order_id", st.order.OrderID, "new_status", req.NewStatus.String())
	return s.respond(c, http.StatusOK, "status updated", st.order)
}

func (s *Server) cancelOrder(c echo.Context) error {
	var req models.CancelOrderRequest
	if err := c.Bind(&req); err != nil {
		return newAPIError(http.StatusBadRequest, codeValidationError, "invalid body")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return newAPIError(http.StatusBadRequest, codeValidationError, "reason required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.findOrder(c)
	if err != nil {
		return err
	}
	if err := s.moveOrder(st, models.StatusCancelled, reason); err != nil {
		return err
	}
	return s.respond(c, http.StatusOK, "order cancelled", st.order)
}
