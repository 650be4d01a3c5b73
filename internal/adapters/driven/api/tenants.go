package api

import (
	"context"
	"net/http"
	"time"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
	"github.com/custodia-labs/m365ctl/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.TenantAPI = (*TenantsAPI)(nil)

// TenantsAPI maps the /tenants endpoints.
type TenantsAPI struct {
	c *Client
}

// Tenants returns the tenant endpoints.
func (c *Client) Tenants() *TenantsAPI {
	return &TenantsAPI{c: c}
}

// List returns every tenant with the server-side total.
func (a *TenantsAPI) List(ctx context.Context) (*domain.TenantList, error) {
	var out domain.TenantList
	if err := a.c.do(ctx, call{method: http.MethodGet, path: "/tenants"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns one tenant.
func (a *TenantsAPI) Get(ctx context.Context, id int64) (*domain.Tenant, error) {
	var out domain.Tenant
	if err := a.c.do(ctx, call{method: http.MethodGet, path: idPath("/tenants/%d", id)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create registers a tenant.
func (a *TenantsAPI) Create(ctx context.Context, req domain.TenantCreate) (*domain.Tenant, error) {
	var out domain.Tenant
	if err := a.c.do(ctx, call{method: http.MethodPost, path: "/tenants", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update applies a partial update.
func (a *TenantsAPI) Update(ctx context.Context, id int64, req domain.TenantUpdate) (*domain.Tenant, error) {
	var out domain.Tenant
	cl := call{method: http.MethodPut, path: idPath("/tenants/%d", id), body: req}
	if err := a.c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a tenant.
func (a *TenantsAPI) Delete(ctx context.Context, id int64) error {
	return a.c.do(ctx, call{method: http.MethodDelete, path: idPath("/tenants/%d", id)}, nil)
}

// Validate checks the stored credentials.
func (a *TenantsAPI) Validate(ctx context.Context, id int64) (*domain.MessageResult, error) {
	var out domain.MessageResult
	if err := a.c.do(ctx, call{method: http.MethodGet, path: idPath("/tenants/%d/validate", id)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// spoStatusResponse is the wire form of a SPO check.
type spoStatusResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CheckedAt time.Time `json:"checked_at"`
}

// CheckSpo probes SharePoint Online for the tenant.
func (a *TenantsAPI) CheckSpo(ctx context.Context, id int64) (*domain.SpoCheckResult, error) {
	var out spoStatusResponse
	if err := a.c.do(ctx, call{method: http.MethodGet, path: idPath("/tenants/%d/spo-status", id)}, &out); err != nil {
		return nil, err
	}
	return &domain.SpoCheckResult{
		Status:    domain.ParseSpoStatus(out.Status),
		Message:   out.Message,
		CheckedAt: out.CheckedAt,
	}, nil
}

// RotateSecret creates a new client secret. opts.DeleteOld is always sent.
func (a *TenantsAPI) RotateSecret(ctx context.Context, id int64, opts domain.RotateSecretOptions) (*domain.MessageResult, error) {
	var out domain.MessageResult
	cl := call{method: http.MethodPost, path: idPath("/tenants/%d/update-secret", id), body: opts}
	if err := a.c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfigurePermissions adds the Graph permissions to the tenant's app.
func (a *TenantsAPI) ConfigurePermissions(ctx context.Context, id int64) (*domain.PermissionsResult, error) {
	var out domain.PermissionsResult
	cl := call{method: http.MethodPost, path: idPath("/tenants/%d/configure-permissions", id)}
	if err := a.c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
