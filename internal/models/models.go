package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Envelope wraps every backend response.
type Envelope struct {
	Timestamp  time.Time       `json:"timestamp"`
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Code       string          `json:"code,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

type CartItem struct {
	ID             int64           `json:"id"`
	SkuID          int64           `json:"skuId"`
	SkuCode        string          `json:"skuCode"`
	ProductName    string          `json:"productName"`
	Size           string          `json:"size"`
	Color          string          `json:"color"`
	ImageURL       string          `json:"imageUrl,omitempty"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Quantity       int             `json:"quantity"`
	AvailableStock int             `json:"availableStock"`
	Sufficient     bool            `json:"sufficient"`
	ItemTotal      decimal.Decimal `json:"itemTotal"`
}

// InStock reports whether the requested quantity is covered by the stock the
// server last reported.
func (i CartItem) InStock() bool {
	return i.Quantity <= i.AvailableStock
}

type StockWarning struct {
	SkuID        int64  `json:"skuId"`
	Message      string `json:"message"`
	RequestedQty int    `json:"requestedQty"`
	AvailableQty int    `json:"availableQty"`
}

type Cart struct {
	CartID    int64           `json:"cartId"`
	CartToken string          `json:"cartToken"`
	Items     []CartItem      `json:"items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Warnings  []StockWarning  `json:"warnings,omitempty"`
}

type AddItemRequest struct {
	SkuID    int64 `json:"skuId"`
	Quantity int   `json:"quantity"`
}

type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}

type StartCheckoutRequest struct {
	SelectedItemIDs []int64 `json:"selectedItemIds"`
}

type Reservation struct {
	ReservationID int64     `json:"reservationId"`
	SkuID         int64     `json:"skuId"`
	SkuCode       string    `json:"skuCode"`
	Quantity      int       `json:"quantity"`
	Status        string    `json:"status"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

type CheckoutSession struct {
	CartID            int64           `json:"cartId"`
	Reservations      []Reservation   `json:"reservations"`
	ExpiresAt         time.Time       `json:"expiresAt"`
	ExpirationSeconds int64           `json:"expirationSeconds"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
}

type PaymentMethod string

const (
	PaymentCOD          PaymentMethod = "COD"
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
)

func (p PaymentMethod) Valid() bool {
	return p == PaymentCOD || p == PaymentBankTransfer
}

type PlaceOrderRequest struct {
	CartToken     string        `json:"cartToken"`
	RecipientName string        `json:"recipientName"`
	PhoneNumber   string        `json:"phoneNumber"`
	Address       string        `json:"address"`
	Notes         string        `json:"notes,omitempty"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
}

type OrderItem struct {
	SkuID       int64           `json:"skuId"`
	SkuCode     string          `json:"skuCode"`
	ProductName string          `json:"productName"`
	Size        string          `json:"size"`
	Color       string          `json:"color"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
}

type BankTransferInfo struct {
	BankName        string          `json:"bankName"`
	AccountNumber   string          `json:"accountNumber"`
	AccountName     string          `json:"accountName"`
	Amount          decimal.Decimal `json:"amount"`
	TransferContent string          `json:"transferContent"`
}

type Order struct {
	OrderID          int64             `json:"orderId"`
	TrackingToken    string            `json:"trackingToken"`
	Status           OrderStatus       `json:"status"`
	PaymentMethod    PaymentMethod     `json:"paymentMethod"`
	TotalAmount      decimal.Decimal   `json:"totalAmount"`
	CustomerName     string            `json:"customerName"`
	CustomerPhone    string            `json:"customerPhone"`
	CustomerEmail    string            `json:"customerEmail,omitempty"`
	ShippingAddress  string            `json:"shippingAddress"`
	Note             string            `json:"note,omitempty"`
	Items            []OrderItem       `json:"items"`
	CreatedAt        time.Time         `json:"createdAt"`
	BankTransferInfo *BankTransferInfo `json:"bankTransferInfo,omitempty"`
}

type OrderHistory struct {
	ID        int64        `json:"id"`
	OldStatus *OrderStatus `json:"oldStatus,omitempty"`
	NewStatus OrderStatus  `json:"newStatus"`
	Note      string       `json:"note,omitempty"`
	ChangedAt time.Time    `json:"changedAt"`
}

type UpdateStatusRequest struct {
	NewStatus OrderStatus `json:"newStatus"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	Email            string `json:"email"`
	Message          string `json:"message"`
	OTPExpirySeconds int64  `json:"otpExpirySeconds"`
}

type VerifyOTPRequest struct {
	Email   string `json:"email"`
	OTPCode string `json:"otpCode"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	AccessToken string `json:"accessToken"`
}
