package domain

import (
	"fmt"
	"strings"
	"time"
)

// GlobalAdminRoleID is the well-known directory role template ID of Global Administrator.
const GlobalAdminRoleID = "62e90394-69f5-4237-9190-012177145e10"

// DefaultUsageLocation is applied to new users that do not specify one.
const DefaultUsageLocation = "US"

// MinUserPasswordLength is the minimum initial password length for directory users.
const MinUserPasswordLength = 8

// DirectoryUser is an account in a tenant's Microsoft 365 directory.
type DirectoryUser struct {
	ID                string `json:"id" yaml:"id"`
	DisplayName       string `json:"display_name" yaml:"display_name"`
	UserPrincipalName string `json:"user_principal_name" yaml:"user_principal_name"`
	Mail              string `json:"mail,omitempty" yaml:"mail,omitempty"`
	AccountEnabled    bool   `json:"account_enabled" yaml:"account_enabled"`
	UsageLocation     string `json:"usage_location,omitempty" yaml:"usage_location,omitempty"`
	CreatedDateTime   string `json:"created_datetime,omitempty" yaml:"created_datetime,omitempty"`
}

// UserCreate is the payload for creating a directory user.
type UserCreate struct {
	DisplayName         string `json:"display_name"`
	UserPrincipalName   string `json:"user_principal_name"`
	MailNickname        string `json:"mail_nickname"`
	Password            string `json:"password"`
	ForceChangePassword bool   `json:"force_change_password"`
	UsageLocation       string `json:"usage_location,omitempty"`
	AccountEnabled      bool   `json:"account_enabled"`
}

// NewUserCreate returns a UserCreate with the server defaults applied.
func NewUserCreate(displayName, upn, password string) UserCreate {
	return UserCreate{
		DisplayName:         displayName,
		UserPrincipalName:   upn,
		MailNickname:        MailNicknameFromUPN(upn),
		Password:            password,
		ForceChangePassword: true,
		UsageLocation:       DefaultUsageLocation,
		AccountEnabled:      true,
	}
}

// MailNicknameFromUPN derives the mail nickname from the local part of a UPN.
func MailNicknameFromUPN(upn string) string {
	local, _, _ := strings.Cut(upn, "@")
	return local
}

// Validate checks the payload before it is sent.
func (u *UserCreate) Validate() error {
	if strings.TrimSpace(u.DisplayName) == "" {
		return fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	if !strings.Contains(u.UserPrincipalName, "@") {
		return fmt.Errorf("%w: user principal name must be an address (user@domain)", ErrInvalidInput)
	}
	if u.MailNickname == "" {
		u.MailNickname = MailNicknameFromUPN(u.UserPrincipalName)
	}
	if len(u.Password) < MinUserPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinUserPasswordLength)
	}
	if u.UsageLocation == "" {
		u.UsageLocation = DefaultUsageLocation
	}
	return nil
}

// UserUpdate is a partial update of a directory user. The principal name is immutable.
type UserUpdate struct {
	DisplayName    *string `json:"display_name,omitempty"`
	AccountEnabled *bool   `json:"account_enabled,omitempty"`
	UsageLocation  *string `json:"usage_location,omitempty"`
}

// BatchCreateResult is the per-user outcome of a batch create.
type BatchCreateResult struct {
	Success bool           `json:"success" yaml:"success"`
	Data    map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
	Error   string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// License is a subscribed SKU pool of a tenant.
type License struct {
	SkuID          string     `json:"sku_id" yaml:"sku_id"`
	SkuPartNumber  string     `json:"sku_part_number" yaml:"sku_part_number"`
	SkuName        string     `json:"sku_name_cn,omitempty" yaml:"sku_name,omitempty"`
	ConsumedUnits  int        `json:"consumed_units" yaml:"consumed_units"`
	EnabledUnits   int        `json:"enabled_units" yaml:"enabled_units"`
	AvailableUnits int        `json:"available_units" yaml:"available_units"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// Name returns the localised SKU name, falling back to the part number.
func (l *License) Name() string {
	if l.SkuName != "" {
		return l.SkuName
	}
	return l.SkuPartNumber
}

// Normalise recomputes AvailableUnits as enabled minus consumed.
func (l *License) Normalise() {
	l.AvailableUnits = l.EnabledUnits - l.ConsumedUnits
}

// LicenseTotals aggregates unit counts across SKUs.
type LicenseTotals struct {
	Enabled   int `json:"enabled" yaml:"enabled"`
	Consumed  int `json:"consumed" yaml:"consumed"`
	Available int `json:"available" yaml:"available"`
}

// SumLicenses totals the unit counts of a snapshot.
func SumLicenses(ls []License) LicenseTotals {
	var t LicenseTotals
	for i := range ls {
		t.Enabled += ls[i].EnabledUnits
		t.Consumed += ls[i].ConsumedUnits
		t.Available += ls[i].AvailableUnits
	}
	return t
}

// OrgDomain is a domain registered to a tenant's organisation.
type OrgDomain struct {
	Name               string   `json:"id" yaml:"name"`
	AuthenticationType string   `json:"authentication_type" yaml:"authentication_type"`
	IsDefault          bool     `json:"is_default" yaml:"is_default"`
	IsVerified         bool     `json:"is_verified" yaml:"is_verified"`
	SupportedServices  []string `json:"supported_services" yaml:"supported_services"`
}

// DirectoryRole is an activated directory role.
type DirectoryRole struct {
	ID             string `json:"id" yaml:"id"`
	DisplayName    string `json:"displayName" yaml:"display_name"`
	Description    string `json:"description,omitempty" yaml:"description,omitempty"`
	RoleTemplateID string `json:"roleTemplateId,omitempty" yaml:"role_template_id,omitempty"`
}

// IsGlobalAdmin reports whether the role is Global Administrator.
func (r *DirectoryRole) IsGlobalAdmin() bool {
	return r.RoleTemplateID == GlobalAdminRoleID || r.ID == GlobalAdminRoleID
}

// RoleMember is a principal holding a directory role.
type RoleMember struct {
	ID                string `json:"id" yaml:"id"`
	DisplayName       string `json:"displayName" yaml:"display_name"`
	UserPrincipalName string `json:"userPrincipalName,omitempty" yaml:"user_principal_name,omitempty"`
}

// RoleAssignment names a user and a role template.
type RoleAssignment struct {
	UserID string `json:"user_id"`
	RoleID string `json:"role_id"`
}
