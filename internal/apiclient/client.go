package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/Skotchmaster/storefront/internal/models"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTimeout = 15 * time.Second

	CartTokenHeader = "X-Cart-Token"

	refreshPath = "/auth/refresh"
	loginPath   = "/auth/login"

	maxBodyBytes = 4 << 20
)

// TokenStore holds the access token between calls. The refresh token never
// passes through it; it lives in the client's cookie jar.
type TokenStore interface {
	AccessToken() string
	SetAccessToken(token string)
	Clear()
}

// Observer receives per-call measurements.
type Observer interface {
	ObserveRequest(method, route string, status int, d time.Duration)
	ObserveRefresh(ok bool)
}

type Request struct {
	Method string
	Path   string
	// Route is the path template used as a metrics label, e.g. "/order/{id}".
	Route  string
	Query  url.Values
	Header http.Header
	Body   any
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenStore
	log        *slog.Logger
	observer   Observer
	onExpired  func()
	timeout    time.Duration

	refreshGroup singleflight.Group
}

type Option func(*Client)

// WithHTTPClient supplies the transport. The client is copied, so the
// timeout and cookie jar set by New do not leak into hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		cp := *hc
		c.httpClient = &cp
	}
}

// WithTimeout overrides the per-request timeout applied to every call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithSessionExpired registers the hook fired once a refresh fails on a
// non-auth request. The terminal client uses it to point the user at login.
func WithSessionExpired(fn func()) Option {
	return func(c *Client) { c.onExpired = fn }
}

func New(baseURL string, tokens TokenStore, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		log:     slog.Default(),
		timeout: DefaultTimeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.Timeout = c.timeout
	if c.httpClient.Jar == nil {
		c.httpClient.Jar = jar
	}
	return c, nil
}

// CartHeader builds the header set carried by every cart and checkout call.
func CartHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set(CartTokenHeader, token)
	}
	return h
}

// SessionCookies returns the cookies the jar holds for the refresh endpoint,
// so a later process can resume the session.
func (c *Client) SessionCookies() []*http.Cookie {
	u, err := url.Parse(c.baseURL + refreshPath)
	if err != nil || c.httpClient.Jar == nil {
		return nil
	}
	return c.httpClient.Jar.Cookies(u)
}

// RestoreSessionCookies puts cookies saved by SessionCookies back into the jar.
func (c *Client) RestoreSessionCookies(cookies []*http.Cookie) {
	u, err := url.Parse(c.baseURL + refreshPath)
	if err != nil || c.httpClient.Jar == nil || len(cookies) == 0 {
		return
	}
	c.httpClient.Jar.SetCookies(u, cookies)
}

// Do sends r and decodes the envelope's result into out (when non-nil).
// A 401 outside the login/refresh endpoints triggers one refresh and one
// replay; a 401 on the replay is returned as is.
func (c *Client) Do(ctx context.Context, r Request, out any) error {
	var payload []byte
	if r.Body != nil {
		b, err := json.Marshal(r.Body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", r.Method, r.Path, err)
		}
		payload = b
	}

	status, env, err := c.send(ctx, r, payload, true)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && !skipsRefresh(r.Path) {
		if rerr := c.Refresh(ctx); rerr != nil {
			c.log.Warn("session_refresh_failed", "path", r.Path, "error", rerr)
			c.expire(r.Path)
			return errorFromEnvelope(status, env)
		}
		status, env, err = c.send(ctx, r, payload, true)
		if err != nil {
			return err
		}
	}

	if status >= http.StatusBadRequest {
		return errorFromEnvelope(status, env)
	}
	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode %s %s result: %w", r.Method, r.Path, err)
	}
	return nil
}

// Refresh exchanges the refresh cookie for a new access token. Concurrent
// callers share one in-flight refresh.
func (c *Client) Refresh(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		status, env, err := c.send(ctx, Request{Method: http.MethodPost, Path: refreshPath}, nil, false)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, errorFromEnvelope(status, env)
		}

		var res models.AuthResponse
		if err := json.Unmarshal(env.Result, &res); err != nil {
			return nil, fmt.Errorf("decode refresh result: %w", err)
		}
		if res.AccessToken == "" {
			return nil, errors.New("refresh returned an empty access token")
		}
		c.tokens.SetAccessToken(res.AccessToken)
		return nil, nil
	})

	if c.observer != nil {
		c.observer.ObserveRefresh(err == nil)
	}
	return err
}

func (c *Client) send(ctx context.Context, r Request, payload []byte, bearer bool) (int, *models.Envelope, error) {
	target := c.baseURL + r.Path
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if bearer {
		if tok := c.tokens.AccessToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(r, 0, start)
		c.log.Warn("api_transport_error", "method", r.Method, "path", r.Path, "error", err)
		return 0, nil, newTransportError(err)
	}
	defer resp.Body.Close()
	c.observe(r, resp.StatusCode, start)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, newTransportError(err)
	}

	env := &models.Envelope{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, env); err != nil {
			if resp.StatusCode < http.StatusBadRequest {
				return 0, nil, fmt.Errorf("decode %s %s envelope: %w", r.Method, r.Path, err)
			}
			env = &models.Envelope{}
		}
	}

	c.log.Debug("api_call", "method", r.Method, "path", r.Path, "status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())
	return resp.StatusCode, env, nil
}

func (c *Client) observe(r Request, status int, start time.Time) {
	if c.observer == nil {
		return
	}
	route := r.Route
	if route == "" {
		route = r.Path
	}
	c.observer.ObserveRequest(r.Method, route, status, time.Since(start))
}

func (c *Client) expire(path string) {
	c.tokens.Clear()
	if c.onExpired != nil && !isAuthPath(path) {
		c.onExpired()
	}
}

func errorFromEnvelope(status int, env *models.Envelope) *Error {
	if env == nil {
		env = &models.Envelope{}
	}
	return newStatusError(status, env.Code, env.Message)
}

func skipsRefresh(path string) bool {
	return path == refreshPath || path == loginPath
}

func isAuthPath(path string) bool {
	return strings.HasPrefix(path, "/auth/")
}
