package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"github.com/Skotchmaster/storefront/internal/apiclient"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
)

const minPasswordLen = 6

var ErrValidation = errors.New("validation")

type API interface {
	Do(ctx context.Context, r apiclient.Request, out any) error
	Refresh(ctx context.Context) error
}

// Session receives the access token issued by login, verification and
// refresh.
type Session interface {
	SetAccessToken(token string)
	Clear()
}

type Service struct {
	api     API
	session Session
}

func NewService(api API, session Session) *Service {
	return &Service{api: api, session: session}
}

// Register creates an unverified account; the backend mails a one-time code
// that VerifyOTP redeems.
func (s *Service) Register(ctx context.Context, email, fullName, password string) (models.RegisterResponse, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	email, err := normalizeEmail(email)
	if err != nil {
		return models.RegisterResponse{}, err
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return models.RegisterResponse{}, fmt.Errorf("%w: full name required", ErrValidation)
	}
	if len(password) < minPasswordLen {
		return models.RegisterResponse{}, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLen)
	}

	var res models.RegisterResponse
	err = s.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/register",
		Body:   models.RegisterRequest{Email: email, FullName: fullName, Password: password},
	}, &res)
	if err != nil {
		l.Warn("register_error", "status", apiclient.StatusOf(err), "code", apiclient.CodeOf(err))
		return models.RegisterResponse{}, err
	}
	return res, nil
}

func (s *Service) VerifyOTP(ctx context.Context, email, code string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("%w: verification code required", ErrValidation)
	}
	return s.signIn(ctx, "/auth/verify-otp", models.VerifyOTPRequest{Email: email, OTPCode: code})
}

func (s *Service) Login(ctx context.Context, email, password string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("%w: password required", ErrValidation)
	}
	return s.signIn(ctx, "/auth/login", models.LoginRequest{Email: email, Password: password})
}

func (s *Service) signIn(ctx context.Context, path string, body any) error {
	l := logging.FromContext(ctx).With("svc", "auth.signin", "path", path)

	var res models.AuthResponse
	if err := s.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: path, Body: body}, &res); err != nil {
		l.Warn("login failed", "status", apiclient.StatusOf(err), "code", apiclient.CodeOf(err))
		return err
	}
	if res.AccessToken == "" {
		return errors.New("backend returned an empty access token")
	}
	s.session.SetAccessToken(res.AccessToken)
	l.Info("signed in")
	return nil
}

// Refresh trades the refresh cookie for a new access token.
func (s *Service) Refresh(ctx context.Context) error {
	return s.api.Refresh(ctx)
}

// Logout revokes the refresh token server side. The local session is cleared
// whatever the backend answers.
func (s *Service) Logout(ctx context.Context) error {
	defer s.session.Clear()

	err := s.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: "/auth/logout"}, nil)
	if err != nil {
		logging.FromContext(ctx).Warn("logout_error", "status", apiclient.StatusOf(err), "error", err)
	}
	return err
}

func normalizeEmail(v string) (string, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "", fmt.Errorf("%w: email required", ErrValidation)
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v {
		return "", fmt.Errorf("%w: invalid email", ErrValidation)
	}
	return v, nil
}
