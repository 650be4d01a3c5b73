package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
)

// mockSessionStore is an in-memory SessionStore.
type mockSessionStore struct {
	mu      sync.Mutex
	session *domain.Session
	saves   int
	clears  int
	loadErr error
}

func (m *mockSessionStore) Load(_ context.Context) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.session == nil {
		return nil, nil
	}
	cp := *m.session
	return &cp, nil
}

func (m *mockSessionStore) Save(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.session = &cp
	m.saves++
	return nil
}

func (m *mockSessionStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	m.clears++
	return nil
}

func (m *mockSessionStore) set(s *domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
}

// mockWatcher fires its callback once per value sent on changes.
type mockWatcher struct {
	changes chan struct{}
}

func (m *mockWatcher) Watch(ctx context.Context, fn func()) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.changes:
			fn()
		}
	}
}

// mockRedirector counts redirects.
type mockRedirector struct {
	mu      sync.Mutex
	reasons []string
}

func (m *mockRedirector) RedirectToLogin(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reasons = append(m.reasons, reason)
}

func (m *mockRedirector) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reasons)
}

// mockCache is an in-memory QueryCache with nested-key invalidation.
type mockCache struct {
	mu          sync.Mutex
	entries     map[string]cacheEntry
	invalidated []string
}

type cacheEntry struct {
	data []byte
	at   time.Time
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]cacheEntry)}
}

func (m *mockCache) Get(_ context.Context, key string, maxAge time.Duration) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || time.Since(e.at) > maxAge {
		return nil, false, nil
	}
	return e.data, true, nil
}

func (m *mockCache) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = cacheEntry{data: value, at: time.Now()}
	return nil
}

func (m *mockCache) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, key)
	for k := range m.entries {
		if key == "" || k == key || strings.HasPrefix(k, key+":") {
			delete(m.entries, k)
		}
	}
	return nil
}

func (m *mockCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

func (m *mockCache) invalidations(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, k := range m.invalidated {
		if k == key {
			n++
		}
	}
	return n
}

// mockAuthAPI is a scriptable AuthAPI.
type mockAuthAPI struct {
	mu          sync.Mutex
	status      domain.SystemStatus
	token       string
	user        domain.AuthUser
	loginErr    error
	meErr       error
	registered  int
	changeCalls int
}

func (m *mockAuthAPI) SystemStatus(_ context.Context) (*domain.SystemStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.status
	return &s, nil
}

func (m *mockAuthAPI) Register(_ context.Context, req domain.RegisterRequest) (*domain.TokenResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered++
	m.status = domain.SystemStatus{NeedsInitialization: false, UserCount: 1}
	m.user = domain.AuthUser{ID: 1, Username: req.Username, Email: req.Email, IsActive: true}
	return &domain.TokenResponse{AccessToken: m.token, TokenType: "bearer"}, nil
}

func (m *mockAuthAPI) Login(_ context.Context, _ domain.LoginRequest) (*domain.TokenResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return &domain.TokenResponse{AccessToken: m.token, TokenType: "bearer"}, nil
}

func (m *mockAuthAPI) Me(_ context.Context) (*domain.AuthUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meErr != nil {
		return nil, m.meErr
	}
	u := m.user
	return &u, nil
}

func (m *mockAuthAPI) ChangePassword(_ context.Context, _ domain.ChangePasswordRequest) (*domain.MessageResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeCalls++
	return &domain.MessageResult{Message: "Password changed successfully"}, nil
}

// mockTenantAPI is a scriptable TenantAPI.
type mockTenantAPI struct {
	mu         sync.Mutex
	tenants    []domain.Tenant
	listCalls  int
	errs       map[string]error
	spo        map[int64]domain.SpoStatus
	consentURL string
	rotateOpts []domain.RotateSecretOptions
	block      chan struct{}
	started    chan struct{}
	calls      map[string]int
}

func newMockTenantAPI(tenants ...domain.Tenant) *mockTenantAPI {
	return &mockTenantAPI{
		tenants:    tenants,
		errs:       make(map[string]error),
		spo:        make(map[int64]domain.SpoStatus),
		calls:      make(map[string]int),
		consentURL: "https://login.microsoftonline.com/contoso.onmicrosoft.com/adminconsent?client_id=app",
	}
}

func (m *mockTenantAPI) enter(op string) error {
	m.mu.Lock()
	m.calls[op]++
	err := m.errs[op]
	block, started := m.block, m.started
	m.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return err
}

func (m *mockTenantAPI) callCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *mockTenantAPI) List(_ context.Context) (*domain.TenantList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if err := m.errs["list"]; err != nil {
		return nil, err
	}
	items := append([]domain.Tenant(nil), m.tenants...)
	return &domain.TenantList{Total: len(items), Items: items}, nil
}

func (m *mockTenantAPI) Get(_ context.Context, id int64) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tenants {
		if m.tenants[i].ID == id {
			t := m.tenants[i]
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockTenantAPI) Create(_ context.Context, req domain.TenantCreate) (*domain.Tenant, error) {
	if err := m.enter("create"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := domain.Tenant{ID: int64(len(m.tenants) + 1), TenantID: req.TenantID, ClientID: req.ClientID, TenantName: req.TenantName}
	m.tenants = append(m.tenants, t)
	return &t, nil
}

func (m *mockTenantAPI) Update(_ context.Context, id int64, req domain.TenantUpdate) (*domain.Tenant, error) {
	if err := m.enter("update"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tenants {
		if m.tenants[i].ID == id {
			if req.TenantName != nil {
				m.tenants[i].TenantName = *req.TenantName
			}
			t := m.tenants[i]
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockTenantAPI) Delete(_ context.Context, id int64) error {
	if err := m.enter("delete"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tenants {
		if m.tenants[i].ID == id {
			m.tenants = append(m.tenants[:i], m.tenants[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockTenantAPI) Validate(_ context.Context, id int64) (*domain.MessageResult, error) {
	if err := m.enter("validate"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["validate:"+strconv.FormatInt(id, 10)]; err != nil {
		return nil, err
	}
	return &domain.MessageResult{Message: "Tenant credentials validated successfully"}, nil
}

func (m *mockTenantAPI) CheckSpo(_ context.Context, id int64) (*domain.SpoCheckResult, error) {
	if err := m.enter("spo"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.spo[id]
	if !ok {
		status = domain.SpoAvailable
	}
	return &domain.SpoCheckResult{Status: status, Message: status.Label(), CheckedAt: time.Now()}, nil
}

func (m *mockTenantAPI) RotateSecret(_ context.Context, _ int64, opts domain.RotateSecretOptions) (*domain.MessageResult, error) {
	if err := m.enter("rotate"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotateOpts = append(m.rotateOpts, opts)
	return &domain.MessageResult{Message: "Client secret updated", Detail: "new secret expires 2099-12-31T23:59:59Z"}, nil
}

func (m *mockTenantAPI) ConfigurePermissions(_ context.Context, _ int64) (*domain.PermissionsResult, error) {
	if err := m.enter("permissions"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &domain.PermissionsResult{
		Message:     "Permissions configured, admin consent required",
		ConsentURL:  m.consentURL,
		Permissions: []string{"User.ReadWrite.All", "Domain.ReadWrite.All"},
	}, nil
}

// mockLicenseAPI returns a snapshot whose consumed units track upstream.
type mockLicenseAPI struct {
	mu       sync.Mutex
	upstream int
	server   *int
	refresh  []bool
	err      error
}

func (m *mockLicenseAPI) List(_ context.Context, _ int64, refresh bool) ([]domain.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh = append(m.refresh, refresh)
	if m.err != nil {
		return nil, m.err
	}
	if m.server == nil || refresh {
		v := m.upstream
		m.server = &v
	}
	l := domain.License{SkuPartNumber: "ENTERPRISEPACK", EnabledUnits: 25, ConsumedUnits: *m.server}
	l.Normalise()
	return []domain.License{l}, nil
}

// mockUserAPI records calls.
type mockUserAPI struct {
	mu    sync.Mutex
	users []domain.DirectoryUser
	calls []string
}

func (m *mockUserAPI) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockUserAPI) List(_ context.Context, _ int64, _ int) ([]domain.DirectoryUser, error) {
	m.record("list")
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DirectoryUser(nil), m.users...), nil
}

func (m *mockUserAPI) Search(_ context.Context, _ int64, keyword string) ([]domain.DirectoryUser, error) {
	m.record("search:" + keyword)
	return nil, nil
}

func (m *mockUserAPI) Get(_ context.Context, _ int64, userID string) (*domain.DirectoryUser, error) {
	m.record("get:" + userID)
	return &domain.DirectoryUser{ID: userID}, nil
}

func (m *mockUserAPI) Create(_ context.Context, _ int64, req domain.UserCreate) (*domain.DirectoryUser, error) {
	m.record("create:" + req.UserPrincipalName)
	m.mu.Lock()
	defer m.mu.Unlock()
	u := domain.DirectoryUser{ID: "u" + strconv.Itoa(len(m.users)+1), UserPrincipalName: req.UserPrincipalName, DisplayName: req.DisplayName}
	m.users = append(m.users, u)
	return &u, nil
}

func (m *mockUserAPI) BatchCreate(_ context.Context, _ int64, reqs []domain.UserCreate) ([]domain.BatchCreateResult, error) {
	m.record("batch")
	out := make([]domain.BatchCreateResult, len(reqs))
	for i := range reqs {
		out[i] = domain.BatchCreateResult{Success: i%2 == 0}
	}
	return out, nil
}

func (m *mockUserAPI) Update(_ context.Context, _ int64, userID string, _ domain.UserUpdate) (*domain.DirectoryUser, error) {
	m.record("update:" + userID)
	return &domain.DirectoryUser{ID: userID}, nil
}

func (m *mockUserAPI) Delete(_ context.Context, _ int64, userID string) error {
	m.record("delete:" + userID)
	return nil
}

func (m *mockUserAPI) Enable(_ context.Context, _ int64, userID string) error {
	m.record("enable:" + userID)
	return nil
}

func (m *mockUserAPI) Disable(_ context.Context, _ int64, userID string) error {
	m.record("disable:" + userID)
	return nil
}

// mockDomainAPI keeps domains listed after deletion, like the real backend.
type mockDomainAPI struct {
	mu        sync.Mutex
	domains   []domain.OrgDomain
	listCalls int
	deleted   []string
}

func (m *mockDomainAPI) List(_ context.Context, _ int64) ([]domain.OrgDomain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	return append([]domain.OrgDomain(nil), m.domains...), nil
}

func (m *mockDomainAPI) Get(_ context.Context, _ int64, name string) (*domain.OrgDomain, error) {
	return &domain.OrgDomain{Name: name}, nil
}

func (m *mockDomainAPI) Create(_ context.Context, _ int64, name string) (*domain.OrgDomain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := domain.OrgDomain{Name: name}
	m.domains = append(m.domains, d)
	return &d, nil
}

func (m *mockDomainAPI) Verify(_ context.Context, _ int64, name string) (*domain.OrgDomain, error) {
	return &domain.OrgDomain{Name: name, IsVerified: true}, nil
}

func (m *mockDomainAPI) Delete(_ context.Context, _ int64, name string) (*domain.MessageResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, name)
	return &domain.MessageResult{Message: "Domain deletion started", Detail: "Microsoft may take up to 24 hours to remove the domain"}, nil
}

// mockRoleAPI records the last call.
type mockRoleAPI struct {
	last string
}

func (m *mockRoleAPI) List(_ context.Context, _ int64) ([]domain.DirectoryRole, error) {
	m.last = "list"
	return []domain.DirectoryRole{{ID: domain.GlobalAdminRoleID, DisplayName: "Global Administrator"}}, nil
}

func (m *mockRoleAPI) Members(_ context.Context, _ int64, roleID string) ([]domain.RoleMember, error) {
	m.last = "members:" + roleID
	return nil, nil
}

func (m *mockRoleAPI) Assign(_ context.Context, _ int64, a domain.RoleAssignment) (*domain.MessageResult, error) {
	m.last = "assign:" + a.UserID + ":" + a.RoleID
	return &domain.MessageResult{Message: "Role assigned successfully"}, nil
}

func (m *mockRoleAPI) Revoke(_ context.Context, _ int64, a domain.RoleAssignment) (*domain.MessageResult, error) {
	m.last = "revoke:" + a.UserID + ":" + a.RoleID
	return &domain.MessageResult{Message: "Role revoked successfully"}, nil
}

func (m *mockRoleAPI) Promote(_ context.Context, _ int64, userID string) (*domain.MessageResult, error) {
	m.last = "promote:" + userID
	return &domain.MessageResult{Message: "Role assigned successfully"}, nil
}

func (m *mockRoleAPI) Demote(_ context.Context, _ int64, userID string) (*domain.MessageResult, error) {
	m.last = "demote:" + userID
	return &domain.MessageResult{Message: "Role revoked successfully"}, nil
}

// mockReportAPI returns a fixed CSV.
type mockReportAPI struct {
	kind   domain.ReportKind
	period domain.ReportPeriod
}

func (m *mockReportAPI) Organization(_ context.Context, _ int64) (*domain.Organization, error) {
	return &domain.Organization{Raw: []byte(`{"value":[{"displayName":"Contoso"}]}`)}, nil
}

func (m *mockReportAPI) Usage(_ context.Context, _ int64, kind domain.ReportKind, period domain.ReportPeriod) ([]byte, error) {
	m.kind, m.period = kind, period
	return []byte("Report Refresh Date\n2026-10-16\n"), nil
}

var errBoom = errors.New("boom")
