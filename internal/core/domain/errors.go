package domain

import "errors"

// Domain errors.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the request was rejected as invalid,
	// either locally or by the server (4xx).
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotAuthenticated indicates no session exists for a protected action.
	ErrNotAuthenticated = errors.New("not logged in")

	// ErrSessionExpired indicates the server rejected the bearer token (401).
	// The session has already been torn down when this error is returned.
	ErrSessionExpired = errors.New("session expired")

	// ErrAlreadyInitialised indicates registration was attempted after the
	// first admin account already exists.
	ErrAlreadyInitialised = errors.New("system already initialised")

	// ErrOperationInFlight indicates the same action is already pending for
	// the same tenant.
	ErrOperationInFlight = errors.New("operation already in progress")

	// ErrMissingConsentURL indicates a permission bootstrap response carried
	// no usable admin-consent URL.
	ErrMissingConsentURL = errors.New("no admin consent URL returned")

	// ErrServer indicates a server-side failure (5xx).
	ErrServer = errors.New("server error")

	// ErrTransport indicates the request never produced an HTTP response.
	ErrTransport = errors.New("transport error")
)
