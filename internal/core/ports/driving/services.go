package driving

import (
	"context"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
)

// Route is where the route guard sends the operator.
type Route string

const (
	// RouteRegister is the first-run admin registration flow.
	RouteRegister Route = "register"
	// RouteLogin is the login flow.
	RouteLogin Route = "login"
	// RouteDashboard is any protected view.
	RouteDashboard Route = "dashboard"
)

// SessionService manages the operator session.
type SessionService interface {
	// Init hydrates the session from persisted storage.
	Init(ctx context.Context) error

	// Login authenticates and persists the session.
	Login(ctx context.Context, req domain.LoginRequest) (*domain.Session, error)

	// Register creates the first admin account and logs it in.
	// Returns ErrAlreadyInitialised if an admin already exists.
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.Session, error)

	// Logout tears the session down.
	Logout(ctx context.Context) error

	// Current returns the active session, or nil.
	Current() *domain.Session

	// Refresh reloads the operator profile for the current token.
	Refresh(ctx context.Context) (*domain.AuthUser, error)

	// ChangePassword rotates the operator's password.
	ChangePassword(ctx context.Context, req domain.ChangePasswordRequest) (*domain.MessageResult, error)

	// SystemStatus reports whether the system still needs its first admin.
	SystemStatus(ctx context.Context) (*domain.SystemStatus, error)
}

// RouteGuard decides which entry point the operator may use.
type RouteGuard interface {
	Resolve(ctx context.Context) (Route, error)
}

// TenantWorkflow drives tenant lifecycle actions.
type TenantWorkflow interface {
	List(ctx context.Context) (*domain.TenantList, error)
	Get(ctx context.Context, id int64) (*domain.Tenant, error)
	Create(ctx context.Context, req domain.TenantCreate) (*domain.Tenant, error)
	Update(ctx context.Context, id int64, req domain.TenantUpdate) (*domain.Tenant, error)
	Delete(ctx context.Context, id int64) error

	Validate(ctx context.Context, id int64) (*domain.MessageResult, error)
	CheckSpo(ctx context.Context, id int64) (*domain.SpoCheckResult, error)
	RotateSecret(ctx context.Context, id int64, opts domain.RotateSecretOptions) (*domain.MessageResult, error)

	// ConfigurePermissions starts the permission bootstrap. On success the
	// returned handoff is also retained until dismissed.
	ConfigurePermissions(ctx context.Context, id int64) (*domain.ConsentHandoff, error)

	// PendingConsent returns the retained handoff for a tenant.
	PendingConsent(id int64) (*domain.ConsentHandoff, bool)

	// DismissConsent forgets the handoff. The server is not contacted.
	DismissConsent(id int64)

	// Busy reports whether op is pending for the tenant.
	Busy(id int64, op domain.Operation) bool

	// Pending lists the operations pending for the tenant.
	Pending(id int64) []domain.Operation
}

// UserService manages directory users of a tenant.
type UserService interface {
	List(ctx context.Context, tenantID int64, top int) ([]domain.DirectoryUser, error)
	Search(ctx context.Context, tenantID int64, keyword string) ([]domain.DirectoryUser, error)
	Get(ctx context.Context, tenantID int64, userID string) (*domain.DirectoryUser, error)
	Create(ctx context.Context, tenantID int64, req domain.UserCreate) (*domain.DirectoryUser, error)
	BatchCreate(ctx context.Context, tenantID int64, reqs []domain.UserCreate) ([]domain.BatchCreateResult, error)
	Update(ctx context.Context, tenantID int64, userID string, req domain.UserUpdate) (*domain.DirectoryUser, error)
	Delete(ctx context.Context, tenantID int64, userID string) error
	SetEnabled(ctx context.Context, tenantID int64, userID string, enabled bool) error
}

// LicenseService reads license snapshots.
type LicenseService interface {
	List(ctx context.Context, tenantID int64) ([]domain.License, error)

	// Refresh forces a refetch that bypasses every cache.
	Refresh(ctx context.Context, tenantID int64) ([]domain.License, error)
}

// DomainService manages custom domains.
type DomainService interface {
	List(ctx context.Context, tenantID int64) ([]domain.OrgDomain, error)
	Get(ctx context.Context, tenantID int64, name string) (*domain.OrgDomain, error)
	Create(ctx context.Context, tenantID int64, name string) (*domain.OrgDomain, error)
	Verify(ctx context.Context, tenantID int64, name string) (*domain.OrgDomain, error)

	// Delete requests removal. The domain can stay listed for up to 24 hours.
	Delete(ctx context.Context, tenantID int64, name string) (*domain.MessageResult, error)
}

// RoleService manages directory roles.
type RoleService interface {
	List(ctx context.Context, tenantID int64) ([]domain.DirectoryRole, error)
	Members(ctx context.Context, tenantID int64, roleID string) ([]domain.RoleMember, error)
	Assign(ctx context.Context, tenantID int64, a domain.RoleAssignment) (*domain.MessageResult, error)
	Revoke(ctx context.Context, tenantID int64, a domain.RoleAssignment) (*domain.MessageResult, error)
	Promote(ctx context.Context, tenantID int64, userID string) (*domain.MessageResult, error)
	Demote(ctx context.Context, tenantID int64, userID string) (*domain.MessageResult, error)
}

// ReportService fetches organisation info and usage reports.
type ReportService interface {
	Organization(ctx context.Context, tenantID int64) (*domain.Organization, error)
	Usage(ctx context.Context, tenantID int64, kind domain.ReportKind, period domain.ReportPeriod) (*domain.Report, error)
}

// SweepCheck selects which checks a sweep runs.
type SweepCheck struct {
	Validate bool
	Spo      bool
}

// SweepResult is the outcome for one tenant of a sweep.
type SweepResult struct {
	Tenant      domain.Tenant
	Validate    *domain.MessageResult
	ValidateErr error
	Spo         *domain.SpoCheckResult
	SpoErr      error
}

// Failed reports whether any check failed for the tenant.
func (r *SweepResult) Failed() bool {
	return r.ValidateErr != nil || r.SpoErr != nil
}

// Sweeper runs checks across many tenants.
type Sweeper interface {
	// Run checks the given tenants, or every tenant when ids is empty.
	// Per-tenant failures are reported in the results, never returned.
	Run(ctx context.Context, ids []int64, check SweepCheck) ([]SweepResult, error)
}
