package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
)

// fallbackMessage is shown when neither the server nor the transport says anything useful.
const fallbackMessage = "request failed"

// APIError is the single normalised failure of a backend call.
type APIError struct {
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int
	// Message is the operator-facing text, shown verbatim.
	Message string
	// RequestID is the X-Request-ID sent with the request.
	RequestID string
	// RetryAfter is the server's Retry-After hint on throttled responses.
	RetryAfter time.Duration

	sessionBound bool
	err          error
}

// Error returns the operator-facing message.
func (e *APIError) Error() string {
	return e.Message
}

// Unwrap returns the transport error, if any.
func (e *APIError) Unwrap() error {
	return e.err
}

// Is maps the failure onto the domain error taxonomy.
func (e *APIError) Is(target error) bool {
	kind := classify(e.StatusCode, e.sessionBound)
	return kind != nil && kind == target
}

// classify converts an HTTP status code to a domain sentinel.
func classify(statusCode int, sessionBound bool) error {
	switch {
	case statusCode == 0:
		return domain.ErrTransport
	case statusCode == http.StatusUnauthorized:
		if sessionBound {
			return domain.ErrSessionExpired
		}
		return domain.ErrNotAuthenticated
	case statusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case statusCode >= 500:
		return domain.ErrServer
	case statusCode >= 400:
		return domain.ErrInvalidInput
	default:
		return nil
	}
}

// IsThrottled reports whether err is a 429 from the backend.
func IsThrottled(err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return apiErr.RetryAfter, true
	}
	return 0, false
}

// serverDetail extracts the backend's "detail" field. FastAPI sends either a
// string or a list of validation errors; for the latter the first msg is used.
func serverDetail(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	detail := gjson.GetBytes(body, "detail")
	switch {
	case !detail.Exists():
		return ""
	case detail.Type == gjson.String:
		return detail.String()
	case detail.IsArray():
		return detail.Get("0.msg").String()
	default:
		return ""
	}
}

// newResponseError builds the error for a non-2xx response.
func newResponseError(resp *http.Response, body []byte, requestID string, sessionBound bool) *APIError {
	msg := serverDetail(body)
	if msg == "" {
		msg = fmt.Sprintf("%s with status code %d", fallbackMessage, resp.StatusCode)
	}
	return &APIError{
		StatusCode:   resp.StatusCode,
		Message:      msg,
		RequestID:    requestID,
		RetryAfter:   retryAfter(resp.Header.Get("Retry-After")),
		sessionBound: sessionBound,
	}
}

// newTransportError builds the error for a request that produced no response.
func newTransportError(err error, requestID string) *APIError {
	msg := fallbackMessage
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &APIError{
		Message:   msg,
		RequestID: requestID,
		err:       err,
	}
}

// retryAfter parses the seconds form of Retry-After.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
