package fakeapi

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/labstack/echo/v4"
)

type user struct {
	id         int64
	email      string
	fullName   string
	hash       string
	role       string
	verified   bool
	otp        string
	otpExpires time.Time
}

func (s *Server) register(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "register")

	var req models.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return newAPIError(http.StatusBadRequest, codeValidationError, "invalid body")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") || strings.TrimSpace(req.FullName) == "" || len(req.Password) < 6 {
		return newAPIError(http.StatusBadRequest, codeValidationError, "email, fullName and a password of 6+ characters required")
	}

	hash, err := hashPassword(req.Password, s.cfg.BcryptCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[email]
	if ok && u.verified {
		return newAPIError(http.StatusConflict, codeEmailAlreadyExists, "email already registered")
	}
	if !ok {
		u = &user{id: s.newID(), email: email, role: roleUser}
		s.users[email] = u
	}
	u.fullName = strings.TrimSpace(req.FullName)
	u.hash = hash
	u.otp = fmt.Sprintf("%06d", rand.IntN(1_000_000))
	u.otpExpires = s.now().Add(s.cfg.OTPTTL)

	l.Info("otp issued", "email", email, "otp", u.otp)
	return s.respond(c, http.StatusCreated, "verification code sent", models.RegisterResponse{
		Email:            email,
		Message:          "A verification code was sent to " + email,
		OTPExpirySeconds: int64(s.cfg.OTPTTL.Seconds()),
	})
}

func (s *Server) verifyOTP(c echo.Context) error {
	var req models.VerifyOTPRequest
	if err := c.Bind(&req); err != nil {
		return newAPIError(http.StatusBadRequest, codeValidationError, "invalid body")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[email]
	if !ok {
		return newAPIError(http.StatusNotFound, codeUserNotFound, "user not found")
	}
	if u.otp == "" || u.otp != strings.TrimSpace(req.OTPCode) {
		return newAPIError(http.StatusBadRequest, codeInvalidOTP, "invalid code")
	}
	if !s.now().Before(u.otpExpires) {
		return newAPIError(http.StatusBadRequest, codeOTPExpired, "code expired")
	}

	u.verified = true
	u.otp = ""
	return s.signIn(c, u, "account verified")
}

func (s *Server) login(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "login")

	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return newAPIError(http.StatusBadRequest, codeValidationError, "invalid body")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[email]
	if !ok || !checkPassword(u.hash, req.Password) {
		l.Warn("login_error", "status", 401)
		return newAPIError(http.StatusUnauthorized, codeInvalidCredentials, "invalid credentials")
	}
	if !u.verified {
		return newAPIError(http.StatusForbidden, codeUnauthorized, "account not verified")
	}
	return s.signIn(c, u, "logged in")
}

// signIn issues a token pair. s.mu must be held.
func (s *Server) signIn(c echo.Context, u *user, msg string) error {
	access, cookie, err := s.issueTokens(u)
	if err != nil {
		return err
	}
	c.SetCookie(cookie)
	return s.respond(c, http.StatusOK, msg, models.AuthResponse{AccessToken: access})
}

func (s *Server) refreshToken(c echo.Context) error {
	ck, err := c.Cookie(refreshCookie)
	if err != nil || ck.Value == "" {
		return newAPIError(http.StatusUnauthorized, codeInvalidToken, "refresh token missing")
	}
	cl, err := s.parseToken(ck.Value, tokenRefresh)
	if err != nil {
		c.SetCookie(s.deleteCookie(refreshCookie))
		return tokenError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.refresh[cl.ID]
	if !ok {
		c.SetCookie(s.deleteCookie(refreshCookie))
		return newAPIError(http.StatusUnauthorized, codeInvalidToken, "refresh token revoked")
	}
	delete(s.refresh, cl.ID)

	u, ok := s.users[email]
	if !ok {
		return newAPIError(http.StatusUnauthorized, codeInvalidToken, "user not found")
	}
	return s.signIn(c, u, "token refreshed")
}

func (s *Server) logout(c echo.Context) error {
	if ck, err := c.Cookie(refreshCookie); err == nil && ck.Value != "" {
		if cl, err := s.parseToken(ck.Value, tokenRefresh); err == nil {
			s.mu.Lock()
			delete(s.refresh, cl.ID)
			s.mu.Unlock()
		}
	}
	c.SetCookie(s.deleteCookie(refreshCookie))
	return s.respond(c, http.StatusOK, "logged out", nil)
}
