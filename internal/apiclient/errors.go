package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed call for callers that need to branch on it.
type Kind uint8

const (
	KindTransport Kind = iota + 1
	KindClient
	KindUnauthorized
	KindNotFound
	KindConflict
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindClient:
		return "client"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindServer:
		return "server"
	}
	return "unknown"
}

const (
	MsgNoResponse = "No response from server"
	MsgGeneric    = "An error occurred. Please try again."
)

// Error is the single normalized value every failed call returns.
type Error struct {
	Kind    Kind
	Status  int
	Code    string
	Message string

	// ServerMessage is the backend's own text, kept for logs.
	ServerMessage string
	Err           error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindTransport:
		return fmt.Sprintf("api: %s: %v", e.Message, e.Err)
	case e.Code != "":
		return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
	default:
		return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func IsKind(err error, k Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == k
}

func StatusOf(err error) int {
	if e, ok := AsError(err); ok {
		return e.Status
	}
	return 0
}

func CodeOf(err error) string {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

func kindFor(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status >= 500:
		return KindServer
	default:
		return KindClient
	}
}

func newStatusError(status int, code, serverMessage string) *Error {
	return &Error{
		Kind:          kindFor(status),
		Status:        status,
		Code:          code,
		Message:       MessageFor(code),
		ServerMessage: serverMessage,
	}
}

func newTransportError(err error) *Error {
	return &Error{Kind: KindTransport, Message: MsgNoResponse, Err: err}
}
