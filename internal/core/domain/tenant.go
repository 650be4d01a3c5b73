package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Tenant is one managed Microsoft 365 organisation as held by the backend.
// The client secret is write-only and never appears here.
type Tenant struct {
	ID                    int64            `json:"id" yaml:"id"`
	TenantID              string           `json:"tenant_id" yaml:"tenant_id"`
	ClientID              string           `json:"client_id" yaml:"client_id"`
	TenantName            string           `json:"tenant_name,omitempty" yaml:"tenant_name,omitempty"`
	Remarks               string           `json:"remarks,omitempty" yaml:"remarks,omitempty"`
	IsActive              bool             `json:"is_active" yaml:"is_active"`
	IsSelected            bool             `json:"is_selected" yaml:"is_selected"`
	CredentialStatus      CredentialStatus `json:"credential_status" yaml:"credential_status"`
	CredentialMessage     string           `json:"credential_message,omitempty" yaml:"credential_message,omitempty"`
	CredentialCheckedAt   *time.Time       `json:"credential_checked_at,omitempty" yaml:"credential_checked_at,omitempty"`
	SpoStatus             SpoStatus        `json:"spo_status" yaml:"spo_status"`
	SpoMessage            string           `json:"spo_message,omitempty" yaml:"spo_message,omitempty"`
	SpoCheckedAt          *time.Time       `json:"spo_checked_at,omitempty" yaml:"spo_checked_at,omitempty"`
	ClientSecretExpiresAt *time.Time       `json:"client_secret_expires_at,omitempty" yaml:"client_secret_expires_at,omitempty"`
	CreatedAt             time.Time        `json:"created_at" yaml:"created_at"`
	UpdatedAt             *time.Time       `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// UnmarshalJSON normalises nullable status fields to their unknown variants.
func (t *Tenant) UnmarshalJSON(data []byte) error {
	type alias Tenant
	var raw struct {
		alias
		CredentialStatus *string `json:"credential_status"`
		SpoStatus        *string `json:"spo_status"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Tenant(raw.alias)
	t.CredentialStatus = CredentialUnknown
	if raw.CredentialStatus != nil {
		t.CredentialStatus = ParseCredentialStatus(*raw.CredentialStatus)
	}
	t.SpoStatus = SpoUnknown
	if raw.SpoStatus != nil {
		t.SpoStatus = ParseSpoStatus(*raw.SpoStatus)
	}
	return nil
}

// DisplayName returns the friendly name, falling back to the directory ID.
func (t *Tenant) DisplayName() string {
	if t.TenantName != "" {
		return t.TenantName
	}
	return t.TenantID
}

// TenantList is a page of tenants with the server-side total.
type TenantList struct {
	Total int      `json:"total" yaml:"total"`
	Items []Tenant `json:"items" yaml:"items"`
}

// Find returns the tenant with the given local ID.
func (l *TenantList) Find(id int64) (*Tenant, bool) {
	for i := range l.Items {
		if l.Items[i].ID == id {
			return &l.Items[i], true
		}
	}
	return nil, false
}

// TenantCreate is the payload for registering a tenant.
type TenantCreate struct {
	TenantID     string `json:"tenant_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TenantName   string `json:"tenant_name,omitempty"`
	Remarks      string `json:"remarks,omitempty"`
}

// Validate checks the required fields.
func (c *TenantCreate) Validate() error {
	var missing []string
	if strings.TrimSpace(c.TenantID) == "" {
		missing = append(missing, "tenant_id")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		missing = append(missing, "client_id")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		missing = append(missing, "client_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// TenantUpdate is a partial update. Nil fields are left unchanged.
// The directory tenant ID cannot be changed after creation, so it has no field here.
type TenantUpdate struct {
	ClientID     *string `json:"client_id,omitempty"`
	ClientSecret *string `json:"client_secret,omitempty"`
	TenantName   *string `json:"tenant_name,omitempty"`
	Remarks      *string `json:"remarks,omitempty"`
	IsActive     *bool   `json:"is_active,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u *TenantUpdate) IsEmpty() bool {
	return u.ClientID == nil && u.ClientSecret == nil && u.TenantName == nil &&
		u.Remarks == nil && u.IsActive == nil
}
