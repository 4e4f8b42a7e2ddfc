package apiclient

const (
	CodeCartNotFound        = "CART_NOT_FOUND"
	CodeCartItemNotFound    = "CART_ITEM_NOT_FOUND"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeProductNotFound     = "PRODUCT_NOT_FOUND"
	CodeSkuNotFound         = "SKU_NOT_FOUND"
	CodeProductOutOfStock   = "PRODUCT_OUT_OF_STOCK"
	CodeOrderNotFound       = "ORDER_NOT_FOUND"
	CodeReservationExpired  = "RESERVATION_EXPIRED"
	CodeReservationNotFound = "RESERVATION_NOT_FOUND"
	CodeNoActiveReservation = "NO_ACTIVE_RESERVATION"
	CodeCheckoutFailed      = "CHECKOUT_FAILED"
	CodeInvalidOrderStatus  = "INVALID_ORDER_STATUS"
	CodeInvalidCartToken    = "INVALID_CART_TOKEN"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeEmailAlreadyExists  = "EMAIL_ALREADY_EXISTS"
	CodeUserAlreadyExists   = "USER_ALREADY_EXISTS"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeInvalidOTP          = "INVALID_OTP"
	CodeOTPExpired          = "OTP_EXPIRED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeValidationError     = "VALIDATION_ERROR"
	CodeInternalServerError = "INTERNAL_SERVER_ERROR"
	CodeBadRequest          = "BAD_REQUEST"
	CodeNotFound            = "NOT_FOUND"
)

var messages = map[string]string{
	CodeCartNotFound:        "Your cart could not be found.",
	CodeCartItemNotFound:    "This item is no longer in your cart.",
	CodeInsufficientStock:   "Not enough stock for the requested quantity.",
	CodeProductNotFound:     "Product not found.",
	CodeSkuNotFound:         "This product variant does not exist.",
	CodeProductOutOfStock:   "This product is out of stock.",
	CodeOrderNotFound:       "Order not found.",
	CodeReservationExpired:  "Your reservation has expired. Please check out again.",
	CodeReservationNotFound: "Reservation not found. Please check out again.",
	CodeNoActiveReservation: "There is no active reservation for this cart.",
	CodeCheckoutFailed:      "Checkout failed. Please try again from your cart.",
	CodeInvalidOrderStatus:  "This status change is not allowed.",
	CodeInvalidCartToken:    "Your cart session is invalid.",
	CodeInvalidCredentials:  "Incorrect email or password.",
	CodeEmailAlreadyExists:  "This email is already registered.",
	CodeUserAlreadyExists:   "This account already exists.",
	CodeUserNotFound:        "Account not found.",
	CodeInvalidToken:        "Your session is invalid. Please sign in again.",
	CodeTokenExpired:        "Your session has expired. Please sign in again.",
	CodeInvalidOTP:          "The verification code is incorrect.",
	CodeOTPExpired:          "The verification code has expired.",
	CodeUnauthorized:        "You are not allowed to do this.",
	CodeInvalidInput:        "Some of the information entered is invalid.",
	CodeValidationError:     "Some of the information entered is invalid.",
	CodeInternalServerError: "Something went wrong on our side.",
	CodeBadRequest:          "The request could not be processed.",
	CodeNotFound:            "Not found.",
}

// MessageFor maps a backend error code to a user-facing message. Unknown
// codes get the generic message.
func MessageFor(code string) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return MsgGeneric
}
