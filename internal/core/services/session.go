package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
	"github.com/custodia-labs/m365ctl/internal/core/ports/driven"
	"github.com/custodia-labs/m365ctl/internal/core/ports/driving"
	"github.com/custodia-labs/m365ctl/internal/logger"
)

// Reasons passed to the LoginRedirector.
const (
	ReasonSessionExpired = "session expired, please log in again"
	ReasonSignedOut      = "signed out in another window"
)

// Verify interface compliance.
var (
	_ driving.SessionService = (*SessionManager)(nil)
	_ driven.SessionSource   = (*SessionManager)(nil)
)

// SessionManager owns the operator session. It is created once, handed to
// the HTTP client as its SessionSource and to the route guard.
type SessionManager struct {
	store    driven.SessionStore
	cache    driven.QueryCache
	redirect driven.LoginRedirector
	now      func() time.Time

	mu      sync.Mutex
	auth    driven.AuthAPI
	session *domain.Session
}

// NewSessionManager creates a manager. cache and redirect may be nil.
func NewSessionManager(
	store driven.SessionStore,
	cache driven.QueryCache,
	redirect driven.LoginRedirector,
) *SessionManager {
	return &SessionManager{
		store:    store,
		cache:    cache,
		redirect: redirect,
		now:      time.Now,
	}
}

// SetAuthAPI binds the backend. The API client needs the manager as its token
// source, so the two are wired in this order.
func (m *SessionManager) SetAuthAPI(auth driven.AuthAPI) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auth = auth
}

func (m *SessionManager) api() (driven.AuthAPI, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.auth == nil {
		return nil, errors.New("session manager has no auth API")
	}
	return m.auth, nil
}

// Init hydrates the session from persisted storage.
func (m *SessionManager) Init(ctx context.Context) error {
	s, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Valid() {
		m.session = s
		logger.Debug("restored session for %q", s.Username())
	} else {
		m.session = nil
	}
	return nil
}

// Current returns a copy of the active session, or nil.
func (m *SessionManager) Current() *domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	cp := *m.session
	return &cp
}

// Token implements driven.SessionSource.
func (m *SessionManager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ""
	}
	return m.session.Token
}

// Expire implements driven.SessionSource. Only a call carrying the active
// token tears the session down; repeats and stale tokens are ignored, so
// concurrent 401s redirect exactly once.
func (m *SessionManager) Expire(token string) {
	m.mu.Lock()
	if token == "" || m.session == nil || m.session.Token != token {
		m.mu.Unlock()
		return
	}
	m.session = nil
	m.mu.Unlock()

	logger.Info("session expired, logging out")
	m.teardown(context.Background())
	if m.redirect != nil {
		m.redirect.RedirectToLogin(ReasonSessionExpired)
	}
}

// Login authenticates and persists the session.
func (m *SessionManager) Login(ctx context.Context, req domain.LoginRequest) (*domain.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	auth, err := m.api()
	if err != nil {
		return nil, err
	}

	tok, err := auth.Login(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.establish(ctx, auth, tok)
}

// Register creates the first admin account and logs it in.
func (m *SessionManager) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	auth, err := m.api()
	if err != nil {
		return nil, err
	}

	status, err := auth.SystemStatus(ctx)
	if err != nil {
		return nil, err
	}
	if !status.NeedsInitialization {
		return nil, domain.ErrAlreadyInitialised
	}

	tok, err := auth.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.establish(ctx, auth, tok)
}

// establish activates tok, loads the profile and persists the result.
func (m *SessionManager) establish(ctx context.Context, auth driven.AuthAPI, tok *domain.TokenResponse) (*domain.Session, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, errors.New("server returned no access token")
	}

	s := &domain.Session{
		Token:     tok.AccessToken,
		TokenType: tok.TokenType,
		ExpiresAt: tokenExpiry(tok.AccessToken),
		CreatedAt: m.now().UTC(),
	}

	m.mu.Lock()
	prev := m.session
	m.session = s
	m.mu.Unlock()

	user, err := auth.Me(ctx)
	if err != nil {
		m.mu.Lock()
		if m.session == s {
			m.session = prev
		}
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	m.mu.Lock()
	s.User = user
	m.mu.Unlock()

	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	// Anything cached belongs to the previous operator.
	m.invalidateCache(ctx)

	logger.Info("logged in as %q", user.Username)
	return m.Current(), nil
}

// Logout tears the session down. It does not contact the server.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
	return m.teardown(ctx)
}

func (m *SessionManager) teardown(ctx context.Context) error {
	m.invalidateCache(ctx)
	if err := m.store.Clear(ctx); err != nil {
		logger.Warn("failed to clear persisted session: %v", err)
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (m *SessionManager) invalidateCache(ctx context.Context) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Invalidate(context.WithoutCancel(ctx), ""); err != nil {
		logger.Warn("failed to clear query cache: %v", err)
	}
}

// Refresh reloads the operator profile for the current token.
func (m *SessionManager) Refresh(ctx context.Context) (*domain.AuthUser, error) {
	if m.Token() == "" {
		return nil, domain.ErrNotAuthenticated
	}
	auth, err := m.api()
	if err != nil {
		return nil, err
	}

	user, err := auth.Me(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return nil, domain.ErrSessionExpired
	}
	m.session.User = user
	cp := *m.session
	m.mu.Unlock()

	if err := m.store.Save(ctx, &cp); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return user, nil
}

// ChangePassword rotates the operator's password. The session stays valid.
func (m *SessionManager) ChangePassword(ctx context.Context, req domain.ChangePasswordRequest) (*domain.MessageResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if m.Token() == "" {
		return nil, domain.ErrNotAuthenticated
	}
	auth, err := m.api()
	if err != nil {
		return nil, err
	}
	return auth.ChangePassword(ctx, req)
}

// SystemStatus reports whether the system still needs its first admin.
func (m *SessionManager) SystemStatus(ctx context.Context) (*domain.SystemStatus, error) {
	auth, err := m.api()
	if err != nil {
		return nil, err
	}
	return auth.SystemStatus(ctx)
}

// Sync reconciles memory with the persisted session after an external change.
// A logout elsewhere tears this session down; a login elsewhere is adopted.
func (m *SessionManager) Sync(ctx context.Context) error {
	s, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	m.mu.Lock()
	had := m.session != nil
	switch {
	case !s.Valid():
		m.session = nil
	case m.session == nil || m.session.Token != s.Token:
		m.session = s
	default:
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if !s.Valid() && had {
		logger.Info("session removed by another process")
		m.invalidateCache(ctx)
		if m.redirect != nil {
			m.redirect.RedirectToLogin(ReasonSignedOut)
		}
	}
	return nil
}

// Follow keeps the session in step with the persisted file until ctx ends.
func (m *SessionManager) Follow(ctx context.Context, w driven.SessionWatcher) error {
	return w.Watch(ctx, func() {
		if err := m.Sync(ctx); err != nil {
			logger.Warn("session sync failed: %v", err)
		}
	})
}

// tokenExpiry reads the exp claim without verifying the signature. It is for
// display only; the server's 401 decides whether a token is still good.
func tokenExpiry(token string) *time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	t := claims.ExpiresAt.UTC()
	return &t
}

// Guard resolves the entry point for the operator.
type Guard struct {
	session driving.SessionService
}

// Verify interface compliance.
var _ driving.RouteGuard = (*Guard)(nil)

// NewGuard creates a route guard.
func NewGuard(session driving.SessionService) *Guard {
	return &Guard{session: session}
}

// Resolve sends an uninitialised system to registration, a logged-out
// operator to login and everyone else to the dashboard.
func (g *Guard) Resolve(ctx context.Context) (driving.Route, error) {
	status, err := g.session.SystemStatus(ctx)
	if err != nil {
		return "", err
	}
	if status.NeedsInitialization {
		return driving.RouteRegister, nil
	}
	if g.session.Current() == nil {
		return driving.RouteLogin, nil
	}
	return driving.RouteDashboard, nil
}
