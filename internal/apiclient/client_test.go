package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTokens struct {
	mu    sync.Mutex
	token string
}

func (m *memTokens) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *memTokens) SetAccessToken(t string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = t
}

func (m *memTokens) Clear() { m.SetAccessToken("") }

func writeEnvelope(w http.ResponseWriter, status int, code string, result any) {
	body := map[string]any{
		"timestamp":  time.Now().UTC(),
		"statusCode": status,
		"message":    http.StatusText(status),
	}
	if code != "" {
		body["code"] = code
	}
	if result != nil {
		body["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newTestClient(t *testing.T, h http.Handler, tokens TokenStore, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	c, err := New(srv.URL+"/api/v1", tokens, opts...)
	require.NoError(t, err)
	return c
}

type item struct {
	Name string `json:"name"`
}

func TestClient_Do_RefreshesOnceAndReplays(t *testing.T) {
	t.Parallel()

	var refreshes, calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		writeEnvelope(w, http.StatusOK, "", map[string]string{"accessToken": "fresh"})
	})
	mux.HandleFunc("GET /api/v1/items", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			writeEnvelope(w, http.StatusUnauthorized, CodeTokenExpired, nil)
			return
		}
		writeEnvelope(w, http.StatusOK, "", item{Name: "tee"})
	})

	tokens := &memTokens{token: "stale"}
	c := newTestClient(t, mux, tokens)

	var got item
	require.NoError(t, c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/items"}, &got))

	assert.Equal(t, "tee", got.Name)
	assert.Equal(t, int32(1), refreshes.Load())
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "fresh", tokens.AccessToken())
}

func TestClient_Do_ReplayUnauthorizedIsNotRetried(t *testing.T) {
	t.Parallel()

	var refreshes, calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		writeEnvelope(w, http.StatusOK, "", map[string]string{"accessToken": "fresh"})
	})
	mux.HandleFunc("GET /api/v1/items", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeEnvelope(w, http.StatusUnauthorized, CodeUnauthorized, nil)
	})

	var expired atomic.Int32
	tokens := &memTokens{token: "stale"}
	c := newTestClient(t, mux, tokens, WithSessionExpired(func() { expired.Add(1) }))

	err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/items"}, nil)
	require.Error(t, err)

	assert.True(t, IsKind(err, KindUnauthorized))
	assert.Equal(t, int32(1), refreshes.Load())
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(0), expired.Load())
	assert.Equal(t, "fresh", tokens.AccessToken())
}

func TestClient_Do_RefreshFailureClearsSession(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, CodeInvalidToken, nil)
	})
	mux.HandleFunc("GET /api/v1/order/7", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, CodeTokenExpired, nil)
	})

	var expired atomic.Int32
	tokens := &memTokens{token: "stale"}
	c := newTestClient(t, mux, tokens, WithSessionExpired(func() { expired.Add(1) }))

	err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/order/7"}, nil)
	require.Error(t, err)

	apiErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, CodeTokenExpired, apiErr.Code)
	assert.Empty(t, tokens.AccessToken())
	assert.Equal(t, int32(1), expired.Load())
}

func TestClient_Do_LoginUnauthorizedSkipsRefresh(t *testing.T) {
	t.Parallel()

	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		writeEnvelope(w, http.StatusOK, "", map[string]string{"accessToken": "x"})
	})
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, CodeInvalidCredentials, nil)
	})

	var expired atomic.Int32
	c := newTestClient(t, mux, &memTokens{}, WithSessionExpired(func() { expired.Add(1) }))

	err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/auth/login", Body: map[string]string{"email": "a@b.c"}}, nil)
	require.Error(t, err)

	assert.Equal(t, MessageFor(CodeInvalidCredentials), err.(*Error).Message)
	assert.Equal(t, int32(0), refreshes.Load())
	assert.Equal(t, int32(0), expired.Load())
}

func TestClient_Do_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		<-release
		writeEnvelope(w, http.StatusOK, "", map[string]string{"accessToken": "fresh"})
	})
	mux.HandleFunc("GET /api/v1/items", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			writeEnvelope(w, http.StatusUnauthorized, "", nil)
			return
		}
		writeEnvelope(w, http.StatusOK, "", item{Name: "ok"})
	})

	c := newTestClient(t, mux, &memTokens{token: "stale"})

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/items"}, nil)
		}(i)
	}

	require.Eventually(t, func() bool { return refreshes.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), refreshes.Load())
}

func TestClient_Do_RefreshUsesCookieJar(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: "r1", Path: "/api/v1/auth", HttpOnly: true})
		writeEnvelope(w, http.StatusOK, "", map[string]string{"accessToken": "a1"})
	})
	mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("refreshToken")
		if err != nil || ck.Value != "r1" {
			writeEnvelope(w, http.StatusUnauthorized, CodeInvalidToken, nil)
			return
		}
		assert.Empty(t, r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, "", map[string]string{"accessToken": "a2"})
	})

	tokens := &memTokens{}
	c := newTestClient(t, mux, tokens)

	require.NoError(t, c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/auth/login"}, nil))
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, "a2", tokens.AccessToken())
}

func TestClient_SessionCookiesRoundTrip(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: "r1", Path: "/api/v1/auth", HttpOnly: true})
		writeEnvelope(w, http.StatusOK, "", map[string]string{"accessToken": "a1"})
	})
	mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("refreshToken"); err != nil || ck.Value != "r1" {
			writeEnvelope(w, http.StatusUnauthorized, CodeInvalidToken, nil)
			return
		}
		writeEnvelope(w, http.StatusOK, "", map[string]string{"accessToken": "a2"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	first, err := New(srv.URL+"/api/v1", &memTokens{}, WithLogger(logging.Discard()))
	require.NoError(t, err)
	require.NoError(t, first.Do(context.Background(), Request{Method: http.MethodPost, Path: "/auth/login"}, nil))

	saved := first.SessionCookies()
	require.Len(t, saved, 1)
	assert.Equal(t, "r1", saved[0].Value)

	tokens := &memTokens{}
	second, err := New(srv.URL+"/api/v1", tokens, WithLogger(logging.Discard()))
	require.NoError(t, err)
	assert.Error(t, second.Refresh(context.Background()))

	second.RestoreSessionCookies(saved)
	require.NoError(t, second.Refresh(context.Background()))
	assert.Equal(t, "a2", tokens.AccessToken())
}

func TestClient_Do_NormalizesErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		code    string
		kind    Kind
		message string
	}{
		{name: "not found", status: http.StatusNotFound, code: CodeOrderNotFound, kind: KindNotFound, message: MessageFor(CodeOrderNotFound)},
		{name: "conflict", status: http.StatusConflict, code: CodeReservationExpired, kind: KindConflict, message: MessageFor(CodeReservationExpired)},
		{name: "stock", status: http.StatusBadRequest, code: CodeInsufficientStock, kind: KindClient, message: MessageFor(CodeInsufficientStock)},
		{name: "unknown code", status: http.StatusBadRequest, code: "SOMETHING_NEW", kind: KindClient, message: MsgGeneric},
		{name: "server", status: http.StatusInternalServerError, kind: KindServer, message: MsgGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, tt.status, tt.code, nil)
			})
			c := newTestClient(t, h, &memTokens{})

			err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"}, nil)
			require.Error(t, err)

			apiErr, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestClient_Do_TransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(base, &memTokens{}, WithLogger(logging.Discard()))
	require.NoError(t, err)

	err = c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/cart"}, nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransport))
	assert.Equal(t, MsgNoResponse, err.(*Error).Message)
}

func TestClient_Do_SendsCartHeaderAndQuery(t *testing.T) {
	t.Parallel()

	var gotToken, gotQuery string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get(CartTokenHeader)
		gotQuery = r.URL.RawQuery
		writeEnvelope(w, http.StatusOK, "", nil)
	})
	c := newTestClient(t, h, &memTokens{})

	err := c.Do(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "/order",
		Query:  url.Values{"page": {"0"}, "size": {"20"}},
		Header: CartHeader("tok-1"),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "tok-1", gotToken)
	assert.Equal(t, "page=0&size=20", gotQuery)
}

func TestNew_Timeout(t *testing.T) {
	t.Parallel()

	c, err := New("http://localhost:8080/api/v1", &memTokens{})
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, c.httpClient.Timeout)

	_, err = New("::bad", &memTokens{})
	assert.Error(t, err)
}

func TestNew_WithHTTPClientLeavesCallerClientUntouched(t *testing.T) {
	t.Parallel()

	hc := &http.Client{}
	c, err := New("http://localhost:8080/api/v1", &memTokens{}, WithHTTPClient(hc), WithTimeout(3*time.Second))
	require.NoError(t, err)

	assert.Zero(t, hc.Timeout)
	assert.Nil(t, hc.Jar)
	assert.Equal(t, 3*time.Second, c.httpClient.Timeout)
	assert.NotNil(t, c.httpClient.Jar)
}
