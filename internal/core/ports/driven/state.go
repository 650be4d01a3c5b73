package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
)

// SessionStore persists the operator session between invocations.
type SessionStore interface {
	// Load returns the persisted session, or nil if there is none.
	Load(ctx context.Context) (*domain.Session, error)

	// Save replaces the persisted session.
	Save(ctx context.Context, s *domain.Session) error

	// Clear removes the persisted session. Clearing an absent session is not an error.
	Clear(ctx context.Context) error
}

// SessionWatcher notifies when the persisted session changes outside this process.
type SessionWatcher interface {
	// Watch calls fn after each external change until ctx is cancelled.
	Watch(ctx context.Context, fn func()) error
}

// SessionSource is what the HTTP client needs from the session.
type SessionSource interface {
	// Token returns the current bearer token, or "" when logged out.
	Token() string

	// Expire tears the session down after the server rejected token.
	// Only the first call for the current token has any effect.
	Expire(token string)
}

// LoginRedirector sends the operator to the login entry point.
type LoginRedirector interface {
	RedirectToLogin(reason string)
}

// QueryCache is the client-side read-through cache. Entries are invalidated
// after mutations and never patched in place.
type QueryCache interface {
	// Get returns the cached value for key. ok is false on a miss or when the
	// entry is older than maxAge.
	Get(ctx context.Context, key string, maxAge time.Duration) (value []byte, ok bool, err error)

	// Put stores value under key.
	Put(ctx context.Context, key string, value []byte) error

	// Invalidate removes key and every key nested below it ("key:..."). An
	// empty key clears the whole cache.
	Invalidate(ctx context.Context, key string) error
}
