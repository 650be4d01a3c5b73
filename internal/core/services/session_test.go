package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
	"github.com/custodia-labs/m365ctl/internal/core/ports/driving"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return tok
}

type sessionFixture struct {
	manager  *SessionManager
	auth     *mockAuthAPI
	store    *mockSessionStore
	cache    *mockCache
	redirect *mockRedirector
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		auth: &mockAuthAPI{
			token: signedToken(t, time.Now().Add(time.Hour)),
			user:  domain.AuthUser{ID: 1, Username: "admin"},
		},
		store:    &mockSessionStore{},
		cache:    newMockCache(),
		redirect: &mockRedirector{},
	}
	f.manager = NewSessionManager(f.store, f.cache, f.redirect)
	f.manager.SetAuthAPI(f.auth)
	return f
}

func (f *sessionFixture) login(t *testing.T) *domain.Session {
	t.Helper()
	s, err := f.manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "secret1"})
	require.NoError(t, err)
	return s
}

func TestSessionManager_Init(t *testing.T) {
	f := newSessionFixture(t)
	f.store.set(&domain.Session{Token: "persisted", User: &domain.AuthUser{Username: "admin"}})

	require.NoError(t, f.manager.Init(context.Background()))

	assert.Equal(t, "persisted", f.manager.Token())
	assert.Equal(t, "admin", f.manager.Current().Username())
}

func TestSessionManager_Init_Empty(t *testing.T) {
	f := newSessionFixture(t)

	require.NoError(t, f.manager.Init(context.Background()))

	assert.Nil(t, f.manager.Current())
	assert.Empty(t, f.manager.Token())
}

func TestSessionManager_Init_LoadError(t *testing.T) {
	f := newSessionFixture(t)
	f.store.loadErr = errBoom

	err := f.manager.Init(context.Background())

	assert.ErrorIs(t, err, errBoom)
}

func TestSessionManager_Login(t *testing.T) {
	f := newSessionFixture(t)
	f.cache.entries[keyTenants] = cacheEntry{data: []byte(`{}`), at: time.Now()}

	s := f.login(t)

	assert.Equal(t, f.auth.token, s.Token)
	assert.Equal(t, "admin", s.Username())
	require.NotNil(t, s.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *s.ExpiresAt, 5*time.Second)
	assert.Equal(t, 1, f.store.saves)
	assert.False(t, f.cache.has(keyTenants), "cache from a previous operator must not survive login")
}

func TestSessionManager_Login_InvalidInput(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.manager.Login(context.Background(), domain.LoginRequest{Username: "admin"})

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, f.manager.Current())
}

func TestSessionManager_Login_Rejected(t *testing.T) {
	f := newSessionFixture(t)
	f.auth.loginErr = domain.ErrNotAuthenticated

	_, err := f.manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "wrong"})

	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Nil(t, f.manager.Current())
	assert.Zero(t, f.store.saves)
}

func TestSessionManager_Login_ProfileFailureRestoresPrevious(t *testing.T) {
	f := newSessionFixture(t)
	f.store.set(&domain.Session{Token: "old"})
	require.NoError(t, f.manager.Init(context.Background()))
	f.auth.meErr = domain.ErrServer

	_, err := f.manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "secret1"})

	assert.ErrorIs(t, err, domain.ErrServer)
	assert.Equal(t, "old", f.manager.Token())
}

func TestSessionManager_Login_OpaqueToken(t *testing.T) {
	f := newSessionFixture(t)
	f.auth.token = "not-a-jwt"

	s := f.login(t)

	assert.Nil(t, s.ExpiresAt)
}

func TestSessionManager_RegisterScenario(t *testing.T) {
	f := newSessionFixture(t)
	f.auth.status = domain.SystemStatus{NeedsInitialization: true}
	guard := NewGuard(f.manager)
	ctx := context.Background()

	route, err := guard.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, driving.RouteRegister, route)

	s, err := f.manager.Register(ctx, domain.RegisterRequest{
		Username: "admin", Email: "admin@example.com", Password: "secret1", Confirm: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, "admin", s.Username())

	route, err = guard.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, driving.RouteDashboard, route)
}

func TestSessionManager_Register_AlreadyInitialised(t *testing.T) {
	f := newSessionFixture(t)
	f.auth.status = domain.SystemStatus{NeedsInitialization: false, UserCount: 1}

	_, err := f.manager.Register(context.Background(), domain.RegisterRequest{
		Username: "admin", Email: "admin@example.com", Password: "secret1", Confirm: "secret1",
	})

	assert.ErrorIs(t, err, domain.ErrAlreadyInitialised)
	assert.Zero(t, f.auth.registered)
}

func TestSessionManager_Register_Mismatch(t *testing.T) {
	f := newSessionFixture(t)
	f.auth.status = domain.SystemStatus{NeedsInitialization: true}

	_, err := f.manager.Register(context.Background(), domain.RegisterRequest{
		Username: "admin", Email: "admin@example.com", Password: "secret1", Confirm: "secret2",
	})

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, f.auth.registered)
}

func TestSessionManager_Expire_ExactlyOnce(t *testing.T) {
	f := newSessionFixture(t)
	s := f.login(t)
	f.cache.entries[usersKey(1)] = cacheEntry{data: []byte(`[]`), at: time.Now()}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.manager.Expire(s.Token)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.redirect.count())
	assert.Equal(t, 1, f.store.clears)
	assert.Nil(t, f.manager.Current())
	assert.False(t, f.cache.has(usersKey(1)))
	assert.Equal(t, []string{ReasonSessionExpired}, f.redirect.reasons)
}

func TestSessionManager_Expire_StaleToken(t *testing.T) {
	f := newSessionFixture(t)
	f.login(t)

	f.manager.Expire("some-older-token")
	f.manager.Expire("")

	assert.Zero(t, f.redirect.count())
	assert.NotNil(t, f.manager.Current())
}

func TestSessionManager_Expire_AfterRelogin(t *testing.T) {
	f := newSessionFixture(t)
	first := f.login(t)
	f.manager.Expire(first.Token)

	f.auth.token = signedToken(t, time.Now().Add(2*time.Hour))
	f.login(t)
	f.manager.Expire(first.Token)

	assert.Equal(t, 1, f.redirect.count())
	assert.Equal(t, f.auth.token, f.manager.Token())
}

func TestSessionManager_Logout(t *testing.T) {
	f := newSessionFixture(t)
	f.login(t)
	before := f.cache.invalidations("")

	require.NoError(t, f.manager.Logout(context.Background()))

	assert.Nil(t, f.manager.Current())
	assert.Nil(t, f.store.session)
	assert.Zero(t, f.redirect.count())
	assert.Equal(t, before+1, f.cache.invalidations(""))
}

func TestSessionManager_Refresh(t *testing.T) {
	f := newSessionFixture(t)
	f.login(t)
	f.auth.user.Email = "new@example.com"

	u, err := f.manager.Refresh(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "new@example.com", u.Email)
	assert.Equal(t, "new@example.com", f.store.session.User.Email)
}

func TestSessionManager_Refresh_LoggedOut(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.manager.Refresh(context.Background())

	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestSessionManager_ChangePassword(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.manager.ChangePassword(ctx, domain.ChangePasswordRequest{OldPassword: "secret1", NewPassword: "secret2"})
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)

	f.login(t)
	_, err = f.manager.ChangePassword(ctx, domain.ChangePasswordRequest{OldPassword: "secret1", NewPassword: "short"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	res, err := f.manager.ChangePassword(ctx, domain.ChangePasswordRequest{OldPassword: "secret1", NewPassword: "secret2"})
	require.NoError(t, err)
	assert.Equal(t, "Password changed successfully", res.Message)
	assert.Equal(t, 1, f.auth.changeCalls)
	assert.NotNil(t, f.manager.Current())
}

func TestSessionManager_NoAuthAPI(t *testing.T) {
	m := NewSessionManager(&mockSessionStore{}, nil, nil)

	_, err := m.SystemStatus(context.Background())

	assert.Error(t, err)
}

func TestSessionManager_Sync_ExternalLogout(t *testing.T) {
	f := newSessionFixture(t)
	f.login(t)
	f.store.set(nil)

	require.NoError(t, f.manager.Sync(context.Background()))
	require.NoError(t, f.manager.Sync(context.Background()))

	assert.Nil(t, f.manager.Current())
	assert.Equal(t, []string{ReasonSignedOut}, f.redirect.reasons)
}

func TestSessionManager_Sync_ExternalLogin(t *testing.T) {
	f := newSessionFixture(t)
	f.store.set(&domain.Session{Token: "from-elsewhere"})

	require.NoError(t, f.manager.Sync(context.Background()))

	assert.Equal(t, "from-elsewhere", f.manager.Token())
	assert.Zero(t, f.redirect.count())
}

func TestSessionManager_Follow(t *testing.T) {
	f := newSessionFixture(t)
	f.login(t)
	w := &mockWatcher{changes: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.manager.Follow(ctx, w) }()

	f.store.set(nil)
	w.changes <- struct{}{}

	require.Eventually(t, func() bool { return f.manager.Current() == nil }, time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 1, f.redirect.count())
}

func TestGuard_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		status   domain.SystemStatus
		loggedIn bool
		want     driving.Route
	}{
		{name: "needs initialization", status: domain.SystemStatus{NeedsInitialization: true}, want: driving.RouteRegister},
		{name: "needs initialization wins over session", status: domain.SystemStatus{NeedsInitialization: true}, loggedIn: true, want: driving.RouteRegister},
		{name: "logged out", status: domain.SystemStatus{UserCount: 1}, want: driving.RouteLogin},
		{name: "logged in", status: domain.SystemStatus{UserCount: 1}, loggedIn: true, want: driving.RouteDashboard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSessionFixture(t)
			if tt.loggedIn {
				f.login(t)
			}
			f.auth.status = tt.status

			got, err := NewGuard(f.manager).Resolve(context.Background())

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
