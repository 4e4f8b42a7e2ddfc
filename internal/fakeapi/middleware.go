package fakeapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/labstack/echo/v4"
)

const ctxClaims = "claims"

func requestLogger(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Response().Header().Get(echo.HeaderXRequestID)

			l := base.With(
				"method", c.Request().Method,
				"path", c.Path(),
				"url", c.Request().URL.Path,
				"remote_ip", c.RealIP(),
			)
			if rid != "" {
				l = l.With("request_id", rid)
			}

			req := c.Request().WithContext(logging.IntoContext(c.Request().Context(), l))
			c.SetRequest(req)

			start := time.Now()
			err := next(c)
			dur := time.Since(start)

			if err != nil {
				c.Echo().HTTPErrorHandler(err, c)
			}
			status := c.Response().Status

			switch {
			case status >= 500:
				l.Error("request completed", "status", status, "duration_ms", dur.Milliseconds(), "error", errStr(err))
			case status >= 400:
				l.Warn("request completed", "status", status, "duration_ms", dur.Milliseconds(), "error", errStr(err))
			default:
				l.Info("request completed", "status", status, "duration_ms", dur.Milliseconds(), "bytes", c.Response().Size)
			}
			return nil
		}
	}
}

func errStr(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%v", err)
}

func (s *Server) countCalls(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		route := strings.TrimPrefix(c.Path(), BasePath)
		s.mu.Lock()
		s.calls[c.Request().Method+" "+route]++
		s.mu.Unlock()
		return next(c)
	}
}

type claimsValidator func(cl *claims) error

func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return s.authWith(next, nil)
}

func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return s.authWith(next, func(cl *claims) error {
		if cl.Role != roleAdmin {
			return newAPIError(http.StatusForbidden, codeUnauthorized, "admin access required")
		}
		return nil
	})
}

func (s *Server) authWith(next echo.HandlerFunc, validate claimsValidator) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, ok := bearer(c.Request())
		if !ok {
			return newAPIError(http.StatusUnauthorized, codeUnauthorized, "missing access token")
		}

		cl, err := s.parseToken(raw, tokenAccess)
		if err != nil {
			return tokenError(err)
		}
		if validate != nil {
			if verr := validate(cl); verr != nil {
				return verr
			}
		}

		c.Set(ctxClaims, cl)
		return next(c)
	}
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get(echo.HeaderAuthorization)
	tok, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || strings.TrimSpace(tok) == "" {
		return "", false
	}
	return strings.TrimSpace(tok), true
}

// optionalClaims returns the caller's claims when a valid bearer token is
// present, nil otherwise.
func (s *Server) optionalClaims(c echo.Context) *claims {
	raw, ok := bearer(c.Request())
	if !ok {
		return nil
	}
	cl, err := s.parseToken(raw, tokenAccess)
	if err != nil {
		return nil
	}
	return cl
}
