package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const RoleAdmin = "ADMIN"

var ErrNoSession = errors.New("no active session")

// Claims is what the client reads from its own access token. The signature
// is not checked here; the backend verifies it on every call.
type Claims struct {
	Subject   string
	Email     string
	Role      string
	ExpiresAt time.Time
}

type accessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Session keeps the access token in memory only. It is safe for concurrent
// use and satisfies apiclient.TokenStore.
type Session struct {
	mu    sync.RWMutex
	token string
}

func New() *Session { return &Session{} }

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) SetAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *Session) Clear() {
	s.SetAccessToken("")
}

func (s *Session) IsAuthenticated() bool {
	return s.AccessToken() != ""
}

func (s *Session) Claims() (Claims, error) {
	tok := s.AccessToken()
	if tok == "" {
		return Claims{}, ErrNoSession
	}

	var c accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &c); err != nil {
		return Claims{}, err
	}

	out := Claims{Subject: c.Subject, Email: c.Email, Role: c.Role}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, nil
}

func (s *Session) IsAdmin() bool {
	c, err := s.Claims()
	if err != nil {
		return false
	}
	return strings.EqualFold(c.Role, RoleAdmin)
}
