// Package fakeapi is an in-memory implementation of the storefront REST API.
// It backs cmd/fakeapi and the integration tests of the client packages.
package fakeapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

const (
	BasePath  = "/api/v1"
	roleAdmin = "ADMIN"
	roleUser  = "CUSTOMER"
)

type Config struct {
	JWTSecret      []byte
	ReservationTTL time.Duration
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	OTPTTL         time.Duration
	AdminEmail     string
	AdminPassword  string
	SecureCookies  bool
	BcryptCost     int
	Now            func() time.Time
	Logger         *slog.Logger
	Catalog        []SKU
	Products       []Product
	Categories     []models.Category
}

func (c *Config) applyDefaults() {
	if len(c.JWTSecret) == 0 {
		c.JWTSecret = []byte("dev-secret")
	}
	if c.ReservationTTL <= 0 {
		c.ReservationTTL = 15 * time.Minute
	}
	if c.AccessTTL <= 0 {
		c.AccessTTL = 15 * time.Minute
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.OTPTTL <= 0 {
		c.OTPTTL = 5 * time.Minute
	}
	if c.AdminEmail == "" {
		c.AdminEmail = "admin@shop.local"
	}
	if c.AdminPassword == "" {
		c.AdminPassword = "admin123"
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Catalog == nil {
		c.Catalog = DefaultCatalog()
	}
	if c.Products == nil {
		c.Products = DefaultProducts()
	}
	if c.Categories == nil {
		c.Categories = DefaultCategories()
	}
}

// SKU is a purchasable variant. Stock counts units neither sold nor held by
// a reservation.
type SKU struct {
	ID          int64
	ProductID   int64
	Code        string
	ProductName string
	Size        string
	Color       string
	ImageURL    string
	Price       decimal.Decimal
	Stock       int
}

func DefaultCatalog() []SKU {
	return []SKU{
		{ID: 1, ProductID: 1, Code: "TEE-S-WHT", ProductName: "Basic Tee", Size: "S", Color: "White", Price: decimal.NewFromInt(150000), Stock: 20},
		{ID: 5, ProductID: 1, Code: "TEE-M-BLK", ProductName: "Basic Tee", Size: "M", Color: "Black", Price: decimal.NewFromInt(100000), Stock: 10},
		{ID: 7, ProductID: 2, Code: "HOOD-L-GRY", ProductName: "Hoodie", Size: "L", Color: "Grey", Price: decimal.NewFromInt(450000), Stock: 3},
		{ID: 9, ProductID: 3, Code: "LIN-M-BLU", ProductName: "Linen Shirt", Size: "M", Color: "Blue", Price: decimal.NewFromInt(320000), Stock: 0},
	}
}

type Server struct {
	cfg Config
	e   *echo.Echo
	log *slog.Logger

	mu       sync.Mutex
	nextID   int64
	skus     map[int64]*SKU
	carts    map[string]*cartState
	orders   map[int64]*orderState
	products map[int64]*Product
	tracking map[string]int64
	users    map[string]*user
	refresh  map[string]string
	calls    map[string]int
}

func New(cfg Config) (*Server, error) {
	cfg.applyDefaults()

	s := &Server{
		cfg:      cfg,
		log:      cfg.Logger.With("component", "fakeapi"),
		nextID:   100,
		skus:     make(map[int64]*SKU),
		carts:    make(map[string]*cartState),
		orders:   make(map[int64]*orderState),
		products: make(map[int64]*Product),
		tracking: make(map[string]int64),
		users:    make(map[string]*user),
		refresh:  make(map[string]string),
		calls:    make(map[string]int),
	}
	for _, sku := range cfg.Catalog {
		s.SeedSKU(sku)
	}
	for _, p := range cfg.Products {
		cp := p
		s.products[p.ID] = &cp
	}

	hash, err := hashPassword(cfg.AdminPassword, cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	s.users[cfg.AdminEmail] = &user{
		id:       s.newID(),
		email:    cfg.AdminEmail,
		fullName: "Administrator",
		hash:     hash,
		role:     roleAdmin,
		verified: true,
	}

	s.e = s.routes()
	return s, nil
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(s.log))
	e.Use(s.countCalls)

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	g := e.Group(BasePath)

	g.GET("/cart", s.getCart)
	g.POST("/cart/items", s.addItem)
	g.PUT("/cart/items/:id", s.updateItem)
	g.DELETE("/cart/items/:id", s.removeItem)
	g.DELETE("/cart", s.clearCart)

	g.GET("/product", s.listProducts)
	g.GET("/product/:id", s.getProduct)
	g.GET("/product/slug/:slug", s.productBySlug)
	g.GET("/category", s.listCategories)

	g.POST("/checkout/start", s.startCheckout)

	g.POST("/order", s.placeOrder)
	g.GET("/order/track/:token", s.trackOrder)
	g.GET("/order", s.listOrders, s.requireAdmin)
	g.GET("/order/:id", s.getOrder, s.requireAdmin)
	g.GET("/order/:id/history", s.orderHistory, s.requireAdmin)
	g.PUT("/order/:id/status", s.updateStatus, s.requireAdmin)
	g.POST("/order/:id/cancel", s.cancelOrder, s.requireAdmin)

	g.POST("/auth/register", s.register)
	g.POST("/auth/verify-otp", s.verifyOTP)
	g.POST("/auth/login", s.login)
	g.POST("/auth/refresh", s.refreshToken)
	g.POST("/auth/logout", s.logout, s.requireAuth)

	return e
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) now() time.Time {
	return s.cfg.Now().UTC()
}

// newID must be called with s.mu held or before the server is shared.
func (s *Server) newID() int64 {
	s.nextID++
	return s.nextID
}

func (s *Server) SeedSKU(sku SKU) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := sku
	s.skus[sku.ID] = &cp
}

// SetStock overwrites the free stock of a SKU, e.g. to simulate another
// shopper buying it.
func (s *Server) SetStock(skuID int64, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sku, ok := s.skus[skuID]; ok {
		sku.Stock = stock
	}
}

func (s *Server) Stock(skuID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sku, ok := s.skus[skuID]; ok {
		return sku.Stock
	}
	return 0
}

// Calls returns how many requests hit a route, e.g. Calls("POST", "/order").
func (s *Server) Calls(method, route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+route]
}

// OTP returns the pending verification code for email.
func (s *Server) OTP(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[email]; ok {
		return u.otp
	}
	return ""
}

// ManualClock is a settable time source shared by the server and the client
// under test.
type ManualClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{t: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

var _ http.Handler = (*Server)(nil)
