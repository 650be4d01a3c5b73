package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
	"github.com/custodia-labs/m365ctl/internal/core/ports/driving"
)

// result captures one CLI invocation.
type result struct {
	out    string
	stderr string
	err    error
}

// runCLI executes the root command with args, feeding stdin to prompts.
// Flag values are reset around each call so invocations do not leak into
// each other.
func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return result{out: out.String(), stderr: errOut.String(), err: err}
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue) //nolint:errcheck // defaults always parse
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// withServices installs s for the duration of the test. A nil Guard is
// replaced by one that lets every command through.
func withServices(t *testing.T, s *Services) {
	t.Helper()
	saved := Services{
		Session:    sessionService,
		Guard:      routeGuard,
		Tenants:    tenantWorkflow,
		Users:      userService,
		Licenses:   licenseService,
		Domains:    domainService,
		Roles:      roleService,
		Reports:    reportService,
		Sweeper:    sweeper,
		Config:     settings,
		ConfigPath: configPath,
	}
	t.Cleanup(func() { SetServices(&saved) })

	if s.Guard == nil {
		s.Guard = &mockGuard{route: driving.RouteDashboard}
	}
	SetServices(s)
}

// mockGuard implements driving.RouteGuard for testing.
type mockGuard struct {
	route driving.Route
	err   error
	calls int
}

func (m *mockGuard) Resolve(_ context.Context) (driving.Route, error) {
	m.calls++
	return m.route, m.err
}

// mockSession implements driving.SessionService for testing.
type mockSession struct {
	status   domain.SystemStatus
	current  *domain.Session
	err      error
	calls    []string
	login    domain.LoginRequest
	register domain.RegisterRequest
	change   domain.ChangePasswordRequest
}

func sessionFor(username string) *domain.Session {
	return &domain.Session{
		Token:     "tok",
		User:      &domain.AuthUser{ID: 1, Username: username, IsActive: true},
		CreatedAt: time.Now(),
	}
}

func (m *mockSession) Init(_ context.Context) error { return nil }

func (m *mockSession) Login(_ context.Context, req domain.LoginRequest) (*domain.Session, error) {
	m.calls = append(m.calls, "login")
	m.login = req
	if m.err != nil {
		return nil, m.err
	}
	m.current = sessionFor(req.Username)
	return m.current, nil
}

func (m *mockSession) Register(_ context.Context, req domain.RegisterRequest) (*domain.Session, error) {
	m.calls = append(m.calls, "register")
	m.register = req
	if m.err != nil {
		return nil, m.err
	}
	m.current = sessionFor(req.Username)
	return m.current, nil
}

func (m *mockSession) Logout(_ context.Context) error {
	m.calls = append(m.calls, "logout")
	m.current = nil
	return nil
}

func (m *mockSession) Current() *domain.Session { return m.current }

func (m *mockSession) Refresh(_ context.Context) (*domain.AuthUser, error) {
	m.calls = append(m.calls, "refresh")
	if m.err != nil {
		return nil, m.err
	}
	return m.current.User, nil
}

func (m *mockSession) ChangePassword(_ context.Context, req domain.ChangePasswordRequest) (*domain.MessageResult, error) {
	m.calls = append(m.calls, "change-password")
	m.change = req
	if m.err != nil {
		return nil, m.err
	}
	return &domain.MessageResult{Message: "Password updated"}, nil
}

func (m *mockSession) SystemStatus(_ context.Context) (*domain.SystemStatus, error) {
	return &m.status, nil
}

// mockTenants implements driving.TenantWorkflow for testing.
type mockTenants struct {
	list    domain.TenantList
	errs    map[string]error
	calls   []string
	created domain.TenantCreate
	updated domain.TenantUpdate
	rotate  domain.RotateSecretOptions
	handoff *domain.ConsentHandoff
}

func newMockTenants(ts ...domain.Tenant) *mockTenants {
	return &mockTenants{
		list: domain.TenantList{Total: len(ts), Items: ts},
		errs: map[string]error{},
	}
}

func (m *mockTenants) call(op string) error {
	m.calls = append(m.calls, op)
	return m.errs[op]
}

func (m *mockTenants) List(_ context.Context) (*domain.TenantList, error) {
	if err := m.call("list"); err != nil {
		return nil, err
	}
	return &m.list, nil
}

func (m *mockTenants) Get(_ context.Context, id int64) (*domain.Tenant, error) {
	if err := m.call("get"); err != nil {
		return nil, err
	}
	if t, ok := m.list.Find(id); ok {
		return t, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockTenants) Create(_ context.Context, req domain.TenantCreate) (*domain.Tenant, error) {
	m.created = req
	if err := m.call("create"); err != nil {
		return nil, err
	}
	return &domain.Tenant{ID: 9, TenantID: req.TenantID, ClientID: req.ClientID, TenantName: req.TenantName}, nil
}

func (m *mockTenants) Update(_ context.Context, id int64, req domain.TenantUpdate) (*domain.Tenant, error) {
	m.updated = req
	if err := m.call("update"); err != nil {
		return nil, err
	}
	return &domain.Tenant{ID: id, TenantName: "Contoso"}, nil
}

func (m *mockTenants) Delete(_ context.Context, _ int64) error {
	return m.call("delete")
}

func (m *mockTenants) Validate(_ context.Context, _ int64) (*domain.MessageResult, error) {
	if err := m.call("validate"); err != nil {
		return nil, err
	}
	return &domain.MessageResult{Message: "Credentials are valid"}, nil
}

func (m *mockTenants) CheckSpo(_ context.Context, _ int64) (*domain.SpoCheckResult, error) {
	if err := m.call("spo"); err != nil {
		return nil, err
	}
	return &domain.SpoCheckResult{Status: domain.SpoAvailable, Message: "SharePoint Online is available"}, nil
}

func (m *mockTenants) RotateSecret(_ context.Context, _ int64, opts domain.RotateSecretOptions) (*domain.MessageResult, error) {
	m.rotate = opts
	if err := m.call("rotate"); err != nil {
		return nil, err
	}
	return &domain.MessageResult{Message: "Client secret updated"}, nil
}

func (m *mockTenants) ConfigurePermissions(_ context.Context, id int64) (*domain.ConsentHandoff, error) {
	if err := m.call("permissions"); err != nil {
		return nil, err
	}
	m.handoff = &domain.ConsentHandoff{
		TenantID:    id,
		Message:     "Permissions configured",
		ConsentURL:  "https://login.microsoftonline.com/contoso/adminconsent?client_id=app",
		Permissions: []string{"User.ReadWrite.All"},
		State:       domain.ConsentAwaitingAdmin,
		IssuedAt:    time.Now(),
	}
	return m.handoff, nil
}

func (m *mockTenants) PendingConsent(_ int64) (*domain.ConsentHandoff, bool) {
	return m.handoff, m.handoff != nil
}

func (m *mockTenants) DismissConsent(_ int64) { m.handoff = nil }

func (m *mockTenants) Busy(_ int64, _ domain.Operation) bool { return false }

func (m *mockTenants) Pending(_ int64) []domain.Operation { return nil }

// mockUsers implements driving.UserService for testing.
type mockUsers struct {
	users   []domain.DirectoryUser
	err     error
	calls   []string
	tenant  int64
	top     int
	created domain.UserCreate
	batch   []domain.UserCreate
	updated domain.UserUpdate
}

func (m *mockUsers) record(tenantID int64, call string) error {
	m.tenant = tenantID
	m.calls = append(m.calls, call)
	return m.err
}

func (m *mockUsers) List(_ context.Context, tenantID int64, top int) ([]domain.DirectoryUser, error) {
	m.top = top
	return m.users, m.record(tenantID, "list")
}

func (m *mockUsers) Search(_ context.Context, tenantID int64, keyword string) ([]domain.DirectoryUser, error) {
	return m.users, m.record(tenantID, "search:"+keyword)
}

func (m *mockUsers) Get(_ context.Context, tenantID int64, userID string) (*domain.DirectoryUser, error) {
	if err := m.record(tenantID, "get:"+userID); err != nil {
		return nil, err
	}
	return &m.users[0], nil
}

func (m *mockUsers) Create(_ context.Context, tenantID int64, req domain.UserCreate) (*domain.DirectoryUser, error) {
	m.created = req
	if err := m.record(tenantID, "create"); err != nil {
		return nil, err
	}
	return &domain.DirectoryUser{ID: "u-new", DisplayName: req.DisplayName, UserPrincipalName: req.UserPrincipalName}, nil
}

func (m *mockUsers) BatchCreate(_ context.Context, tenantID int64, reqs []domain.UserCreate) ([]domain.BatchCreateResult, error) {
	m.batch = reqs
	if err := m.record(tenantID, "batch"); err != nil {
		return nil, err
	}
	results := make([]domain.BatchCreateResult, len(reqs))
	for i, r := range reqs {
		if strings.HasPrefix(r.UserPrincipalName, "taken") {
			results[i] = domain.BatchCreateResult{Error: "user already exists"}
			continue
		}
		results[i] = domain.BatchCreateResult{Success: true}
	}
	return results, nil
}

func (m *mockUsers) Update(_ context.Context, tenantID int64, userID string, req domain.UserUpdate) (*domain.DirectoryUser, error) {
	m.updated = req
	if err := m.record(tenantID, "update:"+userID); err != nil {
		return nil, err
	}
	return &domain.DirectoryUser{ID: userID, UserPrincipalName: "alice@contoso.com"}, nil
}

func (m *mockUsers) Delete(_ context.Context, tenantID int64, userID string) error {
	return m.record(tenantID, "delete:"+userID)
}

func (m *mockUsers) SetEnabled(_ context.Context, tenantID int64, userID string, enabled bool) error {
	if enabled {
		return m.record(tenantID, "enable:"+userID)
	}
	return m.record(tenantID, "disable:"+userID)
}

// mockLicenses implements driving.LicenseService for testing.
type mockLicenses struct {
	licenses []domain.License
	calls    []string
}

func (m *mockLicenses) List(_ context.Context, _ int64) ([]domain.License, error) {
	m.calls = append(m.calls, "list")
	return m.licenses, nil
}

func (m *mockLicenses) Refresh(_ context.Context, _ int64) ([]domain.License, error) {
	m.calls = append(m.calls, "refresh")
	return m.licenses, nil
}

// mockDomains implements driving.DomainService for testing.
type mockDomains struct {
	domains []domain.OrgDomain
	calls   []string
}

func (m *mockDomains) List(_ context.Context, _ int64) ([]domain.OrgDomain, error) {
	m.calls = append(m.calls, "list")
	return m.domains, nil
}

func (m *mockDomains) Get(_ context.Context, _ int64, name string) (*domain.OrgDomain, error) {
	m.calls = append(m.calls, "get:"+name)
	return &domain.OrgDomain{Name: name, IsVerified: true}, nil
}

func (m *mockDomains) Create(_ context.Context, _ int64, name string) (*domain.OrgDomain, error) {
	m.calls = append(m.calls, "create:"+name)
	return &domain.OrgDomain{Name: name}, nil
}

func (m *mockDomains) Verify(_ context.Context, _ int64, name string) (*domain.OrgDomain, error) {
	m.calls = append(m.calls, "verify:"+name)
	return &domain.OrgDomain{Name: name, IsVerified: true}, nil
}

func (m *mockDomains) Delete(_ context.Context, _ int64, name string) (*domain.MessageResult, error) {
	m.calls = append(m.calls, "delete:"+name)
	return &domain.MessageResult{
		Message: "Domain deletion started",
		Detail:  "removal can take up to 24 hours",
	}, nil
}

// mockRoles implements driving.RoleService for testing.
type mockRoles struct {
	roles []domain.DirectoryRole
	calls []string
}

func (m *mockRoles) ack(call string) (*domain.MessageResult, error) {
	m.calls = append(m.calls, call)
	return &domain.MessageResult{Message: "done: " + call}, nil
}

func (m *mockRoles) List(_ context.Context, _ int64) ([]domain.DirectoryRole, error) {
	m.calls = append(m.calls, "list")
	return m.roles, nil
}

func (m *mockRoles) Members(_ context.Context, _ int64, roleID string) ([]domain.RoleMember, error) {
	m.calls = append(m.calls, "members:"+roleID)
	return []domain.RoleMember{{ID: "u1", DisplayName: "Alice", UserPrincipalName: "alice@contoso.com"}}, nil
}

func (m *mockRoles) Assign(_ context.Context, _ int64, a domain.RoleAssignment) (*domain.MessageResult, error) {
	return m.ack("assign:" + a.UserID + ":" + a.RoleID)
}

func (m *mockRoles) Revoke(_ context.Context, _ int64, a domain.RoleAssignment) (*domain.MessageResult, error) {
	return m.ack("revoke:" + a.UserID + ":" + a.RoleID)
}

func (m *mockRoles) Promote(_ context.Context, _ int64, userID string) (*domain.MessageResult, error) {
	return m.ack("promote:" + userID)
}

func (m *mockRoles) Demote(_ context.Context, _ int64, userID string) (*domain.MessageResult, error) {
	return m.ack("demote:" + userID)
}

// mockReports implements driving.ReportService for testing.
type mockReports struct {
	org    []byte
	kind   domain.ReportKind
	period domain.ReportPeriod
}

func (m *mockReports) Organization(_ context.Context, _ int64) (*domain.Organization, error) {
	return &domain.Organization{Raw: m.org}, nil
}

func (m *mockReports) Usage(_ context.Context, _ int64, kind domain.ReportKind, period domain.ReportPeriod) (*domain.Report, error) {
	m.kind = kind
	m.period = period
	return &domain.Report{
		Kind:     kind,
		Period:   period,
		Filename: domain.ReportFilename(kind, period, time.UnixMilli(1700000000000)),
		Data:     []byte("Report Refresh Date,User Principal Name\n2024-01-01,alice@contoso.com\n"),
	}, nil
}

// mockSweeper implements driving.Sweeper for testing.
type mockSweeper struct {
	results []driving.SweepResult
	err     error
	ids     []int64
	check   driving.SweepCheck
}

func (m *mockSweeper) Run(_ context.Context, ids []int64, check driving.SweepCheck) ([]driving.SweepResult, error) {
	m.ids = ids
	m.check = check
	return m.results, m.err
}
