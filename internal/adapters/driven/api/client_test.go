package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
	"github.com/custodia-labs/m365ctl/internal/testutil/fakeapi"
)

// stubSession implements driven.SessionSource for testing.
type stubSession struct {
	mu      sync.Mutex
	token   string
	expired []string
}

func (s *stubSession) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *stubSession) Expire(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired = append(s.expired, token)
}

func (s *stubSession) Expired() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.expired...)
}

// newTestClient starts a fake backend with one admin and returns a logged-in client.
func newTestClient(t *testing.T) (*Client, *fakeapi.Server, *stubSession) {
	t.Helper()
	srv, baseURL := fakeapi.Start(t)
	session := &stubSession{token: srv.SeedAdmin("admin", "secret1")}
	c, err := New(Options{BaseURL: baseURL, UserAgent: "m365ctl-test"}, session)
	require.NoError(t, err)
	return c, srv, session
}

func TestNew_InvalidBaseURL(t *testing.T) {
	_, err := New(Options{BaseURL: "ftp://example.com"}, nil)
	assert.Error(t, err)
}

func TestNew_DefaultBaseURL(t *testing.T) {
	c, err := New(Options{}, nil)

	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
}

func TestClient_AttachesBearerAndRequestID(t *testing.T) {
	c, srv, session := newTestClient(t)

	_, err := c.Tenants().List(context.Background())
	require.NoError(t, err)

	calls := srv.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "Bearer "+session.Token(), calls[len(calls)-1].Auth)
}

func TestClient_NoHeaderWithoutSession(t *testing.T) {
	srv, baseURL := fakeapi.Start(t)
	c, err := New(Options{BaseURL: baseURL}, &stubSession{})
	require.NoError(t, err)

	status, err := c.Auth().SystemStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.NeedsInitialization)

	calls := srv.Calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Auth)
}

func TestClient_RequestHeaders(t *testing.T) {
	var got http.Header
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"needs_initialization":false,"user_count":1}`))
	}))
	defer ts.Close()

	c, err := New(Options{BaseURL: ts.URL, UserAgent: "m365ctl/1.0"}, &stubSession{token: "tok"})
	require.NoError(t, err)

	_, err = c.Auth().SystemStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", got.Get("Authorization"))
	assert.Equal(t, "m365ctl/1.0", got.Get("User-Agent"))
	assert.Len(t, got.Get(requestIDHeader), 36)
}

func TestClient_ErrorNormalisation(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantErr     error
	}{
		{
			name:        "detail string",
			status:      http.StatusBadRequest,
			body:        `{"detail":"Tenant already exists"}`,
			wantMessage: "Tenant already exists",
			wantErr:     domain.ErrInvalidInput,
		},
		{
			name:        "validation list",
			status:      http.StatusUnprocessableEntity,
			body:        `{"detail":[{"loc":["body","email"],"msg":"value is not a valid email address"}]}`,
			wantMessage: "value is not a valid email address",
			wantErr:     domain.ErrInvalidInput,
		},
		{
			name:        "no detail",
			status:      http.StatusInternalServerError,
			body:        `{}`,
			wantMessage: "request failed with status code 500",
			wantErr:     domain.ErrServer,
		},
		{
			name:        "not json",
			status:      http.StatusBadGateway,
			body:        `<html>bad gateway</html>`,
			wantMessage: "request failed with status code 502",
			wantErr:     domain.ErrServer,
		},
		{
			name:        "empty detail",
			status:      http.StatusConflict,
			body:        `{"detail":""}`,
			wantMessage: "request failed with status code 409",
			wantErr:     domain.ErrInvalidInput,
		},
		{
			name:        "not found",
			status:      http.StatusNotFound,
			body:        `{"detail":"Tenant not found"}`,
			wantMessage: "Tenant not found",
			wantErr:     domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			c, err := New(Options{BaseURL: ts.URL}, &stubSession{token: "tok"})
			require.NoError(t, err)

			_, err = c.Tenants().Get(context.Background(), 1)

			require.Error(t, err)
			assert.Equal(t, tt.wantMessage, err.Error())
			assert.ErrorIs(t, err, tt.wantErr)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.NotEmpty(t, apiErr.RequestID)
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	baseURL := ts.URL
	ts.Close()

	c, err := New(Options{BaseURL: baseURL}, nil)
	require.NoError(t, err)

	_, err = c.Tenants().List(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.NotEqual(t, fallbackMessage, err.Error())
	assert.Contains(t, err.Error(), "connect")
}

func TestClient_Timeout(t *testing.T) {
	srv, baseURL := fakeapi.Start(t)
	srv.SetLatency(200 * time.Millisecond)

	c, err := New(Options{BaseURL: baseURL, Timeout: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	_, err = c.Auth().SystemStatus(context.Background())

	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestClient_401ExpiresSentToken(t *testing.T) {
	c, srv, session := newTestClient(t)
	session.mu.Lock()
	session.token = srv.IssueExpiredToken("admin")
	sent := session.token
	session.mu.Unlock()

	_, err := c.Tenants().List(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
	assert.Equal(t, []string{sent}, session.Expired())
}

func TestClient_401WithoutSessionDoesNotExpire(t *testing.T) {
	srv, baseURL := fakeapi.Start(t)
	srv.SeedAdmin("admin", "secret1")
	session := &stubSession{}
	c, err := New(Options{BaseURL: baseURL}, session)
	require.NoError(t, err)

	_, err = c.Auth().Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "wrong"})

	require.Error(t, err)
	assert.Equal(t, "Incorrect username or password", err.Error())
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.NotErrorIs(t, err, domain.ErrSessionExpired)
	assert.Empty(t, session.Expired())
}

func TestClient_NoRetry(t *testing.T) {
	c, srv, _ := newTestClient(t)
	tenant := srv.SeedTenant("Contoso")
	srv.FailNext(http.MethodGet, "/tenants/1/validate", http.StatusServiceUnavailable, "upstream unavailable")

	_, err := c.Tenants().Validate(context.Background(), tenant.ID)

	assert.ErrorIs(t, err, domain.ErrServer)
	assert.Equal(t, 1, srv.CallCount(http.MethodGet, "/tenants/1/validate"))
}

func TestIsThrottled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"detail":"Too many requests"}`))
	}))
	defer ts.Close()

	c, err := New(Options{BaseURL: ts.URL}, nil)
	require.NoError(t, err)

	_, err = c.Tenants().CheckSpo(context.Background(), 1)

	wait, ok := IsThrottled(err)
	assert.True(t, ok)
	assert.Equal(t, 7*time.Second, wait)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, ok = IsThrottled(errors.New("other"))
	assert.False(t, ok)
}

func TestServerDetail(t *testing.T) {
	assert.Equal(t, "boom", serverDetail([]byte(`{"detail":"boom"}`)))
	assert.Equal(t, "first", serverDetail([]byte(`{"detail":[{"msg":"first"},{"msg":"second"}]}`)))
	assert.Empty(t, serverDetail([]byte(`{"detail":{"code":1}}`)))
	assert.Empty(t, serverDetail([]byte(`not json`)))
	assert.Empty(t, serverDetail(nil))
}

func TestSeg_EscapesPathSegments(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	c, err := New(Options{BaseURL: ts.URL}, nil)
	require.NoError(t, err)

	_, err = c.Users().Get(context.Background(), 1, "a/b c")
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(gotPath, "/o365/users/a%2Fb%20c"), gotPath)
}
