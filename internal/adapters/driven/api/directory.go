package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
	"github.com/custodia-labs/m365ctl/internal/core/ports/driven"
)

// Verify interface compliance.
var (
	_ driven.UserAPI    = (*UsersAPI)(nil)
	_ driven.LicenseAPI = (*LicensesAPI)(nil)
	_ driven.DomainAPI  = (*DomainsAPI)(nil)
	_ driven.RoleAPI    = (*RolesAPI)(nil)
	_ driven.ReportAPI  = (*ReportsAPI)(nil)
)

// UsersAPI maps the /o365/users endpoints.
type UsersAPI struct {
	c *Client
}

// Users returns the directory user endpoints.
func (c *Client) Users() *UsersAPI {
	return &UsersAPI{c: c}
}

// List returns up to top users. top <= 0 leaves the server default.
func (a *UsersAPI) List(ctx context.Context, tenantID int64, top int) ([]domain.DirectoryUser, error) {
	q := tenantQuery(tenantID)
	if top > 0 {
		q.Set("top", strconv.Itoa(top))
	}
	var out []domain.DirectoryUser
	if err := a.c.do(ctx, call{method: http.MethodGet, path: "/o365/users", query: q}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Search finds users by keyword.
func (a *UsersAPI) Search(ctx context.Context, tenantID int64, keyword string) ([]domain.DirectoryUser, error) {
	q := tenantQuery(tenantID)
	q.Set("keyword", keyword)
	var out []domain.DirectoryUser
	if err := a.c.do(ctx, call{method: http.MethodGet, path: "/o365/users/search", query: q}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one user by ID or principal name.
func (a *UsersAPI) Get(ctx context.Context, tenantID int64, userID string) (*domain.DirectoryUser, error) {
	var out domain.DirectoryUser
	cl := call{method: http.MethodGet, path: "/o365/users/" + seg(userID), query: tenantQuery(tenantID)}
	if err := a.c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create adds a user.
func (a *UsersAPI) Create(ctx context.Context, tenantID int64, req domain.UserCreate) (*domain.DirectoryUser, error) {
	var out domain.DirectoryUser
	cl := call{method: http.MethodPost, path: "/o365/users", query: tenantQuery(tenantID), body: req}
	if err := a.c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BatchCreate adds several users. The server reports success per user.
func (a *UsersAPI) BatchCreate(ctx context.Context, tenantID int64, reqs []domain.UserCreate) ([]domain.BatchCreateResult, error) {
	var out []domain.BatchCreateResult
	cl := call{method: http.MethodPost, path: "/o365/users/batch", query: tenantQuery(tenantID), body: reqs}
	if err := a.c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update patches a user.
func (a *UsersAPI) Update(ctx context.Context, tenantID int64, userID string, req domain.UserUpdate) (*domain.DirectoryUser, error) {
	var out domain.DirectoryUser
	cl := call{method: http.MethodPatch, path: "/o365/users/" + seg(userID), query: tenantQuery(tenantID), body: req}
	if err := a.c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a user.
func (a *UsersAPI) Delete(ctx context.Context, tenantID int64, userID string) error {
	cl := call{method: http.MethodDelete, path: "/o365/users/" + seg(userID), query: tenantQuery(tenantID)}
	return a.c.do(ctx, cl, nil)
}

// Enable allows the user to sign in.
func (a *UsersAPI) Enable(ctx context.Context, tenantID int64, userID string) error {
	cl := call{method: http.MethodPost, path: "/o365/users/" + seg(userID) + "/enable", query: tenantQuery(tenantID)}
	return a.c.do(ctx, cl, nil)
}

// Disable blocks the user from signing in.
func (a *UsersAPI) Disable(ctx context.Context, tenantID int64, userID string) error {
	cl := call{method: http.MethodPost, path: "/o365/users/" + seg(userID) + "/disable", query: tenantQuery(tenantID)}
	return a.c.do(ctx, cl, nil)
}

// LicensesAPI maps the /o365/licenses endpoints.
type LicensesAPI struct {
	c *Client
}

// Licenses returns the license endpoints.
func (c *Client) Licenses() *LicensesAPI {
	return &LicensesAPI{c: c}
}

// List returns the tenant's SKUs, normalising available units.
func (a *LicensesAPI) List(ctx context.Context, tenantID int64, refresh bool) ([]domain.License, error) {
	cl := call{method: http.MethodGet, path: idPath("/o365/licenses/tenant/%d", tenantID)}
	if refresh {
		cl.query = url.Values{"refresh": {"true"}}
	}
	var out []domain.License
	if err := a.c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Normalise()
	}
	return out, nil
}

// DomainsAPI maps the /o365/domains endpoints.
type DomainsAPI struct {
	c *Client
}

// Domains returns the domain endpoints.
func (c *Client) Domains() *DomainsAPI {
	return &DomainsAPI{c: c}
}

// List returns the organisation's domains.
func (a *DomainsAPI) List(ctx context.Context, tenantID int64) ([]domain.OrgDomain, error) {
	var out []domain.OrgDomain
	if err := a.c.do(ctx, call{method: http.MethodGet, path: "/o365/domains", query: tenantQuery(tenantID)}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one domain.
func (a *DomainsAPI) Get(ctx context.Context, tenantID int64, name string) (*domain.OrgDomain, error) {
	var out domain.OrgDomain
	cl := call{method: http.MethodGet, path: "/o365/domains/" + seg(name), query: tenantQuery(tenantID)}
	if err := a.c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create adds an unverified domain.
func (a *DomainsAPI) Create(ctx context.Context, tenantID int64, name string) (*domain.OrgDomain, error) {
	q := tenantQuery(tenantID)
	q.Set("domain_name", name)
	var out domain.OrgDomain
	if err := a.c.do(ctx, call{method: http.MethodPost, path: "/o365/domains", query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify asks Microsoft to check the DNS challenge.
func (a *DomainsAPI) Verify(ctx context.Context, tenantID int64, name string) (*domain.OrgDomain, error) {
	var out domain.OrgDomain
	cl := call{method: http.MethodPost, path: "/o365/domains/" + seg(name) + "/verify", query: tenantQuery(tenantID)}
	if err := a.c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete requests domain removal.
func (a *DomainsAPI) Delete(ctx context.Context, tenantID int64, name string) (*domain.MessageResult, error) {
	var out domain.MessageResult
	cl := call{method: http.MethodDelete, path: "/o365/domains/" + seg(name), query: tenantQuery(tenantID)}
	if err := a.c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RolesAPI maps the /o365/roles endpoints.
type RolesAPI struct {
	c *Client
}

// Roles returns the directory role endpoints.
func (c *Client) Roles() *RolesAPI {
	return &RolesAPI{c: c}
}

// List returns the activated directory roles.
func (a *RolesAPI) List(ctx context.Context, tenantID int64) ([]domain.DirectoryRole, error) {
	var out []domain.DirectoryRole
	if err := a.c.do(ctx, call{method: http.MethodGet, path: "/o365/roles", query: tenantQuery(tenantID)}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Members returns the principals holding a role.
func (a *RolesAPI) Members(ctx context.Context, tenantID int64, roleID string) ([]domain.RoleMember, error) {
	var out []domain.RoleMember
	cl := call{method: http.MethodGet, path: "/o365/roles/" + seg(roleID) + "/members", query: tenantQuery(tenantID)}
	if err := a.c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Assign grants a role to a user.
func (a *RolesAPI) Assign(ctx context.Context, tenantID int64, as domain.RoleAssignment) (*domain.MessageResult, error) {
	return a.post(ctx, tenantID, "/o365/roles/assign", as)
}

// Revoke removes a role from a user.
func (a *RolesAPI) Revoke(ctx context.Context, tenantID int64, as domain.RoleAssignment) (*domain.MessageResult, error) {
	return a.post(ctx, tenantID, "/o365/roles/revoke", as)
}

// Promote makes a user Global Administrator.
func (a *RolesAPI) Promote(ctx context.Context, tenantID int64, userID string) (*domain.MessageResult, error) {
	return a.post(ctx, tenantID, "/o365/roles/"+seg(userID)+"/promote", nil)
}

// Demote removes Global Administrator from a user.
func (a *RolesAPI) Demote(ctx context.Context, tenantID int64, userID string) (*domain.MessageResult, error) {
	return a.post(ctx, tenantID, "/o365/roles/"+seg(userID)+"/demote", nil)
}

func (a *RolesAPI) post(ctx context.Context, tenantID int64, path string, body any) (*domain.MessageResult, error) {
	var out domain.MessageResult
	cl := call{method: http.MethodPost, path: path, query: tenantQuery(tenantID), body: body}
	if err := a.c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReportsAPI maps the /o365/reports endpoints.
type ReportsAPI struct {
	c *Client
}

// Reports returns the report endpoints.
func (c *Client) Reports() *ReportsAPI {
	return &ReportsAPI{c: c}
}

// Organization returns the raw organisation profile.
func (a *ReportsAPI) Organization(ctx context.Context, tenantID int64) (*domain.Organization, error) {
	data, err := a.c.raw(ctx, call{method: http.MethodGet, path: "/o365/reports/organization", query: tenantQuery(tenantID)})
	if err != nil {
		return nil, err
	}
	return &domain.Organization{Raw: json.RawMessage(data)}, nil
}

// Usage downloads a CSV usage report.
func (a *ReportsAPI) Usage(ctx context.Context, tenantID int64, kind domain.ReportKind, period domain.ReportPeriod) ([]byte, error) {
	q := tenantQuery(tenantID)
	q.Set("period", string(period))
	return a.c.raw(ctx, call{method: http.MethodGet, path: "/o365/reports/" + seg(string(kind)), query: q})
}
