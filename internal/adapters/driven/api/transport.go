package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/m365ctl/internal/core/ports/driven"
	"github.com/custodia-labs/m365ctl/internal/logger"
)

// requestIDHeader correlates client and backend logs.
const requestIDHeader = "X-Request-ID"

// sentTokenKey carries a *string the transport fills with the token it attached.
type sentTokenKey struct{}

// bearerTransport attaches the session token to every request and tears the
// session down when the backend rejects it.
type bearerTransport struct {
	base      http.RoundTripper
	session   driven.SessionSource
	userAgent string
}

// RoundTrip implements http.RoundTripper.
func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())

	if req.Header.Get(requestIDHeader) == "" {
		req.Header.Set(requestIDHeader, newRequestID())
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	var token string
	if t.session != nil {
		token = t.session.Token()
	}
	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)
	}
	if sent, ok := req.Context().Value(sentTokenKey{}).(*string); ok {
		*sent = token
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		logger.Debug("request %s %s rejected with 401, expiring session", req.Method, req.URL.Path)
		t.session.Expire(token)
	}

	return resp, nil
}

// withSentToken returns a context that records the token attached to the request.
func withSentToken(ctx context.Context) (context.Context, *string) {
	sent := new(string)
	return context.WithValue(ctx, sentTokenKey{}, sent), sent
}

func newRequestID() string {
	return uuid.NewString()
}
