package fakeapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"

	refreshCookie     = "refreshToken"
	refreshCookiePath = BasePath + "/auth"
)

type claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

func (s *Server) signToken(u *user, typ string, ttl time.Duration) (string, *claims, error) {
	now := s.now()
	cl := &claims{
		Email: u.email,
		Role:  u.role,
		Type:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.id, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(s.cfg.JWTSecret)
	if err != nil {
		return "", nil, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return tok, cl, nil
}

func (s *Server) parseToken(raw, typ string) (*claims, error) {
	var cl claims
	tkn, err := jwt.ParseWithClaims(raw, &cl, func(t *jwt.Token) (any, error) {
		return s.cfg.JWTSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if !tkn.Valid || cl.Type != typ {
		return nil, errors.New("unexpected token type")
	}
	return &cl, nil
}

func tokenError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return newAPIError(http.StatusUnauthorized, codeTokenExpired, "token expired")
	}
	return newAPIError(http.StatusUnauthorized, codeInvalidToken, "invalid token")
}

// issueTokens signs a fresh pair, records the refresh jti and returns the
// access token plus the cookie carrying the refresh token.
// s.mu must be held.
func (s *Server) issueTokens(u *user) (string, *http.Cookie, error) {
	access, _, err := s.signToken(u, tokenAccess, s.cfg.AccessTTL)
	if err != nil {
		return "", nil, err
	}
	refresh, rc, err := s.signToken(u, tokenRefresh, s.cfg.RefreshTTL)
	if err != nil {
		return "", nil, err
	}
	s.refresh[rc.ID] = u.email
	return access, s.createCookie(refreshCookie, refresh, rc.ExpiresAt.Time), nil
}

// createCookie sets Max-Age as well as Expires: clients age cookies against
// their own wall clock, which differs from a test clock.
func (s *Server) createCookie(name, value string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     refreshCookiePath,
		Expires:  exp,
		MaxAge:   int(exp.Sub(s.now()).Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Server) deleteCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     refreshCookiePath,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}
