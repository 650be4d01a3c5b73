// Package api is the typed HTTP client for the m365ctl backend REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/custodia-labs/m365ctl/internal/core/ports/driven"
	"github.com/custodia-labs/m365ctl/internal/logger"
)

// DefaultBaseURL is where a locally run backend listens.
const DefaultBaseURL = "http://localhost:8000/api"

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 1 << 20

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. https://console.example.com/api.
	BaseURL string
	// Timeout bounds each request. Zero leaves the transport defaults in place.
	Timeout time.Duration
	// UserAgent is sent on every request when set.
	UserAgent string
	// Transport replaces the pooled cleanhttp transport. Used by tests.
	Transport http.RoundTripper
}

// Client talks to the backend. It is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// New creates a client. session supplies the bearer token and receives
// Expire calls on 401; it may be nil for unauthenticated use.
func New(opts Options, session driven.SessionSource) (*Client, error) {
	raw := opts.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", raw)
	}

	transport := opts.Transport
	if transport == nil {
		transport = cleanhttp.DefaultPooledTransport()
	}

	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: opts.Timeout,
			Transport: &bearerTransport{
				base:      transport,
				session:   session,
				userAgent: opts.UserAgent,
			},
		},
	}, nil
}

// BaseURL returns the API root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// call describes one request.
type call struct {
	method string
	path   string
	query  url.Values
	body   any
}

// do sends the request and decodes a JSON response into out (which may be nil).
func (c *Client) do(ctx context.Context, cl call, out any) error {
	data, err := c.raw(ctx, cl)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", cl.method, cl.path, err)
	}
	return nil
}

// raw sends the request and returns the successful response body.
func (c *Client) raw(ctx context.Context, cl call) ([]byte, error) {
	req, err := c.newRequest(ctx, cl)
	if err != nil {
		return nil, err
	}
	requestID := req.Header.Get(requestIDHeader)

	ctx, sent := withSentToken(req.Context())
	req = req.WithContext(ctx)

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Debug("%s %s failed: %v", cl.method, cl.path, err)
		return nil, newTransportError(err, requestID)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := newResponseError(resp, body, requestID, *sent != "")
		logger.Debug("%s %s -> %d (request %s): %s", cl.method, cl.path, resp.StatusCode, requestID, apiErr.Message)
		return nil, apiErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransportError(err, requestID)
	}
	logger.Debug("%s %s -> %d (request %s)", cl.method, cl.path, resp.StatusCode, requestID)
	return body, nil
}

func (c *Client) newRequest(ctx context.Context, cl call) (*http.Request, error) {
	// Path segments arrive escaped, so parse rather than assign u.Path.
	u, err := url.Parse(c.baseURL.String() + cl.path)
	if err != nil {
		return nil, fmt.Errorf("failed to build request URL: %w", err)
	}
	if len(cl.query) > 0 {
		u.RawQuery = cl.query.Encode()
	}

	var body io.Reader = http.NoBody
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(requestIDHeader, newRequestID())
	return req, nil
}

// tenantQuery scopes a directory call to a local tenant.
func tenantQuery(tenantID int64) url.Values {
	return url.Values{"tenant_id": {strconv.FormatInt(tenantID, 10)}}
}

// idPath formats a numeric path segment.
func idPath(format string, id int64) string {
	return fmt.Sprintf(format, id)
}

// seg escapes a path segment.
func seg(s string) string {
	return url.PathEscape(s)
}
