package domain

import "time"

// Operation names a tenant-scoped action that can be in flight.
type Operation string

const (
	// OpValidate checks the tenant's client credentials.
	OpValidate Operation = "validate"
	// OpCheckSpo checks SharePoint Online availability.
	OpCheckSpo Operation = "check_spo"
	// OpRotateSecret creates a new client secret.
	OpRotateSecret Operation = "rotate_secret"
	// OpConfigurePermissions bootstraps Graph application permissions.
	OpConfigurePermissions Operation = "configure_permissions"
	// OpRefreshLicenses forces a license snapshot refetch.
	OpRefreshLicenses Operation = "refresh_licenses"
	// OpUpdate edits tenant fields.
	OpUpdate Operation = "update"
	// OpDelete removes the tenant.
	OpDelete Operation = "delete"
)

// Operations lists every tenant operation.
func Operations() []Operation {
	return []Operation{
		OpValidate, OpCheckSpo, OpRotateSecret, OpConfigurePermissions,
		OpRefreshLicenses, OpUpdate, OpDelete,
	}
}

// MessageResult is the generic server acknowledgement.
type MessageResult struct {
	Message string `json:"message" yaml:"message"`
	Detail  string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Combined joins message and detail the way they are shown to the operator.
func (m MessageResult) Combined() string {
	if m.Detail == "" {
		return m.Message
	}
	return m.Message + " (" + m.Detail + ")"
}

// SpoCheckResult is the outcome of a SharePoint Online check.
type SpoCheckResult struct {
	Status    SpoStatus `json:"status" yaml:"status"`
	Message   string    `json:"message" yaml:"message"`
	CheckedAt time.Time `json:"checked_at" yaml:"checked_at"`
}

// RotateSecretOptions controls client secret rotation.
// The zero value keeps all previous secrets.
type RotateSecretOptions struct {
	// DeleteOld removes the previously active secret after the new one is
	// created. Dependents still using it will break.
	DeleteOld bool `json:"delete_old"`
}

// ConsentState is the client-side state of a permission bootstrap.
type ConsentState string

// ConsentAwaitingAdmin is terminal on the client: completion happens out of
// band at the identity provider and cannot be observed from here.
const ConsentAwaitingAdmin ConsentState = "awaiting_admin_consent"

// PermissionsResult is the backend response to a permission bootstrap.
type PermissionsResult struct {
	Message     string   `json:"message"`
	Detail      string   `json:"detail,omitempty"`
	ConsentURL  string   `json:"consent_url"`
	Permissions []string `json:"permissions_configured,omitempty"`
}

// ConsentHandoff is held in memory while the operator forwards the consent
// URL to a Global Administrator.
type ConsentHandoff struct {
	TenantID    int64        `json:"tenant_id" yaml:"tenant_id"`
	Message     string       `json:"message" yaml:"message"`
	ConsentURL  string       `json:"consent_url" yaml:"consent_url"`
	Permissions []string     `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	State       ConsentState `json:"state" yaml:"state"`
	IssuedAt    time.Time    `json:"issued_at" yaml:"issued_at"`
}
