package fakeapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	codeCartNotFound        = "CART_NOT_FOUND"
	codeCartItemNotFound    = "CART_ITEM_NOT_FOUND"
	codeInsufficientStock   = "INSUFFICIENT_STOCK"
	codeSkuNotFound         = "SKU_NOT_FOUND"
	codeReservationExpired  = "RESERVATION_EXPIRED"
	codeNoActiveReservation = "NO_ACTIVE_RESERVATION"
	codeOrderNotFound       = "ORDER_NOT_FOUND"
	codeInvalidOrderStatus  = "INVALID_ORDER_STATUS"
	codeInvalidCredentials  = "INVALID_CREDENTIALS"
	codeEmailAlreadyExists  = "EMAIL_ALREADY_EXISTS"
	codeUserNotFound        = "USER_NOT_FOUND"
	codeInvalidOTP          = "INVALID_OTP"
	codeOTPExpired          = "OTP_EXPIRED"
	codeInvalidToken        = "INVALID_TOKEN"
	codeTokenExpired        = "TOKEN_EXPIRED"
	codeUnauthorized        = "UNAUTHORIZED"
	codeValidationError     = "VALIDATION_ERROR"
	codeInvalidCartToken    = "INVALID_CART_TOKEN"
	codeBadRequest          = "BAD_REQUEST"
	codeNotFound            = "NOT_FOUND"
	codeInternal            = "INTERNAL_SERVER_ERROR"
)

type envelope struct {
	Timestamp  time.Time `json:"timestamp"`
	StatusCode int       `json:"statusCode"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	Result     any       `json:"result,omitempty"`
}

// apiError is returned by handlers and rendered by handleError.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func newAPIError(status int, code, msg string) *apiError {
	return &apiError{Status: status, Code: code, Message: msg}
}

func (s *Server) respond(c echo.Context, status int, msg string, result any) error {
	return c.JSON(status, envelope{
		Timestamp:  s.now(),
		StatusCode: status,
		Message:    msg,
		Result:     result,
	})
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var ae *apiError
	var he *echo.HTTPError
	switch {
	case errors.As(err, &ae):
	case errors.As(err, &he):
		ae = newAPIError(he.Code, codeForStatus(he.Code), fmt.Sprint(he.Message))
	default:
		ae = newAPIError(http.StatusInternalServerError, codeInternal, "internal server error")
	}

	_ = c.JSON(ae.Status, envelope{
		Timestamp:  s.now(),
		StatusCode: ae.Status,
		Message:    ae.Message,
		Code:       ae.Code,
	})
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusNotFound:
		return codeNotFound
	case status == http.StatusUnauthorized:
		return codeUnauthorized
	case status >= 500:
		return codeInternal
	default:
		return codeBadRequest
	}
}
