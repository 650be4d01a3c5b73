package driven

import (
	"context"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
)

// AuthAPI is the backend's operator account surface.
type AuthAPI interface {
	// SystemStatus reports whether the first admin account still needs creating.
	SystemStatus(ctx context.Context) (*domain.SystemStatus, error)

	// Register creates the first admin account and returns its token.
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.TokenResponse, error)

	// Login exchanges credentials for a bearer token.
	Login(ctx context.Context, req domain.LoginRequest) (*domain.TokenResponse, error)

	// Me returns the profile bound to the current token.
	Me(ctx context.Context) (*domain.AuthUser, error)

	// ChangePassword rotates the current operator's password.
	ChangePassword(ctx context.Context, req domain.ChangePasswordRequest) (*domain.MessageResult, error)
}

// TenantAPI is the backend's tenant surface.
type TenantAPI interface {
	List(ctx context.Context) (*domain.TenantList, error)
	Get(ctx context.Context, id int64) (*domain.Tenant, error)
	Create(ctx context.Context, req domain.TenantCreate) (*domain.Tenant, error)
	Update(ctx context.Context, id int64, req domain.TenantUpdate) (*domain.Tenant, error)
	Delete(ctx context.Context, id int64) error

	// Validate asks the backend to acquire a token with the stored credentials.
	// The backend persists the resulting credential status.
	Validate(ctx context.Context, id int64) (*domain.MessageResult, error)

	// CheckSpo asks the backend to probe SharePoint Online.
	CheckSpo(ctx context.Context, id int64) (*domain.SpoCheckResult, error)

	// RotateSecret creates a new client secret for the tenant's app.
	RotateSecret(ctx context.Context, id int64, opts domain.RotateSecretOptions) (*domain.MessageResult, error)

	// ConfigurePermissions adds the Graph application permissions to the
	// tenant's app and returns the admin-consent URL.
	ConfigurePermissions(ctx context.Context, id int64) (*domain.PermissionsResult, error)
}

// UserAPI is the backend's directory user surface.
type UserAPI interface {
	List(ctx context.Context, tenantID int64, top int) ([]domain.DirectoryUser, error)
	Search(ctx context.Context, tenantID int64, keyword string) ([]domain.DirectoryUser, error)
	Get(ctx context.Context, tenantID int64, userID string) (*domain.DirectoryUser, error)
	Create(ctx context.Context, tenantID int64, req domain.UserCreate) (*domain.DirectoryUser, error)
	BatchCreate(ctx context.Context, tenantID int64, reqs []domain.UserCreate) ([]domain.BatchCreateResult, error)
	Update(ctx context.Context, tenantID int64, userID string, req domain.UserUpdate) (*domain.DirectoryUser, error)
	Delete(ctx context.Context, tenantID int64, userID string) error
	Enable(ctx context.Context, tenantID int64, userID string) error
	Disable(ctx context.Context, tenantID int64, userID string) error
}

// LicenseAPI is the backend's license snapshot surface.
type LicenseAPI interface {
	// List returns the tenant's SKUs. With refresh set the backend bypasses
	// its own cache and refetches from Microsoft Graph.
	List(ctx context.Context, tenantID int64, refresh bool) ([]domain.License, error)
}

// DomainAPI is the backend's custom domain surface.
type DomainAPI interface {
	List(ctx context.Context, tenantID int64) ([]domain.OrgDomain, error)
	Get(ctx context.Context, tenantID int64, name string) (*domain.OrgDomain, error)
	Create(ctx context.Context, tenantID int64, name string) (*domain.OrgDomain, error)
	Verify(ctx context.Context, tenantID int64, name string) (*domain.OrgDomain, error)
	Delete(ctx context.Context, tenantID int64, name string) (*domain.MessageResult, error)
}

// RoleAPI is the backend's directory role surface.
type RoleAPI interface {
	List(ctx context.Context, tenantID int64) ([]domain.DirectoryRole, error)
	Members(ctx context.Context, tenantID int64, roleID string) ([]domain.RoleMember, error)
	Assign(ctx context.Context, tenantID int64, a domain.RoleAssignment) (*domain.MessageResult, error)
	Revoke(ctx context.Context, tenantID int64, a domain.RoleAssignment) (*domain.MessageResult, error)
	Promote(ctx context.Context, tenantID int64, userID string) (*domain.MessageResult, error)
	Demote(ctx context.Context, tenantID int64, userID string) (*domain.MessageResult, error)
}

// ReportAPI is the backend's report surface.
type ReportAPI interface {
	Organization(ctx context.Context, tenantID int64) (*domain.Organization, error)

	// Usage downloads a CSV usage report as raw bytes.
	Usage(ctx context.Context, tenantID int64, kind domain.ReportKind, period domain.ReportPeriod) ([]byte, error)
}
