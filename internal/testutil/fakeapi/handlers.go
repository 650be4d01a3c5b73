package fakeapi

import (
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
	"github.com/custodia-labs/m365ctl/internal/microsoft"
)

func (s *Server) handleSystemStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	n := len(s.accounts)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, domain.SystemStatus{NeedsInitialization: n == 0, UserCount: n})
}

type registerBody struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if !decode(r, &body) {
		writeValidation(w, "invalid body")
		return
	}
	if n := len(body.Username); n < domain.MinUsernameLength || n > domain.MaxUsernameLength {
		writeValidation(w, "String should have at least 3 characters")
		return
	}
	if _, err := mail.ParseAddress(body.Email); err != nil {
		writeValidation(w, "value is not a valid email address")
		return
	}
	if len(body.Password) < domain.MinPasswordLength {
		writeValidation(w, "String should have at least 6 characters")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.accounts) > 0 {
		writeDetail(w, http.StatusBadRequest, "System already initialized")
		return
	}
	acc := s.addAccountLocked(body.Username, body.Email, body.Password)
	s.writeTokenLocked(w, acc)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body domain.LoginRequest
	if !decode(r, &body) {
		writeValidation(w, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[body.Username]
	if !ok || acc.password != body.Password {
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	s.writeTokenLocked(w, acc)
}

func (s *Server) writeTokenLocked(w http.ResponseWriter, acc *account) {
	token, err := s.issueLocked(acc)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, domain.TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, accountFrom(r).user)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var body domain.ChangePasswordRequest
	if !decode(r, &body) {
		writeValidation(w, "invalid body")
		return
	}
	acc := accountFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if acc.password != body.OldPassword {
		writeDetail(w, http.StatusBadRequest, "Incorrect old password")
		return
	}
	if len(body.NewPassword) < domain.MinPasswordLength {
		writeValidation(w, "String should have at least 6 characters")
		return
	}
	acc.password = body.NewPassword
	writeJSON(w, http.StatusOK, domain.MessageResult{Message: "Password changed successfully"})
}

func (s *Server) handleListTenants(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := domain.TenantList{Items: []domain.Tenant{}}
	for id := int64(1); id < s.nextID; id++ {
		if ts, ok := s.tenants[id]; ok {
			list.Items = append(list.Items, ts.tenant)
		}
	}
	list.Total = len(list.Items)
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var body domain.TenantCreate
	if !decode(r, &body) {
		writeValidation(w, "invalid body")
		return
	}
	if err := body.Validate(); err != nil {
		writeValidation(w, "Field required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ts := range s.tenants {
		if ts.tenant.TenantID == body.TenantID {
			writeDetail(w, http.StatusBadRequest, "Tenant already exists")
			return
		}
	}
	ts := s.addTenantLocked(body)
	writeJSON(w, http.StatusCreated, ts.tenant)
}

func (s *Server) handleGetTenant(w http.ResponseWriter, _ *http.Request, ts *tenantState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, ts.tenant)
}

func (s *Server) handleUpdateTenant(w http.ResponseWriter, r *http.Request, ts *tenantState) {
	var body domain.TenantUpdate
	if !decode(r, &body) {
		writeValidation(w, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if body.ClientID != nil {
		ts.tenant.ClientID = *body.ClientID
	}
	if body.ClientSecret != nil {
		ts.clientSecret = *body.ClientSecret
		ts.secrets = append(ts.secrets, *body.ClientSecret)
	}
	if body.TenantName != nil {
		ts.tenant.TenantName = *body.TenantName
	}
	if body.Remarks != nil {
		ts.tenant.Remarks = *body.Remarks
	}
	if body.IsActive != nil {
		ts.tenant.IsActive = *body.IsActive
	}
	now := time.Now().UTC()
	ts.tenant.UpdatedAt = &now
	writeJSON(w, http.StatusOK, ts.tenant)
}

func (s *Server) handleDeleteTenant(w http.ResponseWriter, _ *http.Request, ts *tenantState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tenants, ts.tenant.ID)
	writeJSON(w, http.StatusOK, domain.MessageResult{Message: "Tenant deleted successfully"})
}

func (s *Server) handleValidate(w http.ResponseWriter, _ *http.Request, ts *tenantState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	ts.tenant.CredentialCheckedAt = &now
	if !ts.credsValid {
		ts.tenant.CredentialStatus = domain.CredentialInvalid
		ts.tenant.CredentialMessage = "AADSTS7000215: Invalid client secret provided."
		writeDetail(w, http.StatusBadRequest, "Invalid credentials: "+ts.tenant.CredentialMessage)
		return
	}
	ts.tenant.CredentialStatus = domain.CredentialValid
	ts.tenant.CredentialMessage = ""
	writeJSON(w, http.StatusOK, domain.MessageResult{Message: "Tenant credentials validated successfully"})
}

func (s *Server) handleSpoStatus(w http.ResponseWriter, _ *http.Request, ts *tenantState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ts.credsValid {
		writeDetail(w, http.StatusBadRequest, "Invalid tenant credentials: AADSTS7000215")
		return
	}
	now := time.Now().UTC()
	ts.tenant.SpoStatus = ts.spo
	ts.tenant.SpoMessage = ts.spo.Label()
	ts.tenant.SpoCheckedAt = &now
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     string(ts.spo),
		"message":    ts.tenant.SpoMessage,
		"checked_at": now,
	})
}

func (s *Server) handleUpdateSecret(w http.ResponseWriter, r *http.Request, ts *tenantState) {
	var body domain.RotateSecretOptions
	if !decode(r, &body) {
		writeValidation(w, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !ts.credsValid {
		writeDetail(w, http.StatusBadRequest, "Invalid tenant credentials: AADSTS7000215")
		return
	}

	s.secretSeq++
	secret := fmt.Sprintf("secret-%d", s.secretSeq)
	removed := 0
	if body.DeleteOld {
		removed = len(ts.secrets)
		ts.secrets = nil
	}
	ts.secrets = append(ts.secrets, secret)
	ts.clientSecret = secret
	expiry := microsoft.SecretExpiry
	ts.tenant.ClientSecretExpiresAt = &expiry

	detail := "new secret expires " + expiry.Format(time.RFC3339)
	if removed > 0 {
		detail += fmt.Sprintf("; removed %d old secret(s)", removed)
	}
	writeJSON(w, http.StatusOK, domain.MessageResult{Message: "Client secret updated", Detail: detail})
}

func (s *Server) handleConfigurePermissions(w http.ResponseWriter, _ *http.Request, ts *tenantState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ts.prerequisite {
		writeDetail(w, http.StatusBadRequest,
			"Failed to configure application permissions: Authorization_RequestDenied: "+
				"Insufficient privileges to complete the operation.")
		return
	}
	ts.permissions = microsoft.PermissionNames()
	writeJSON(w, http.StatusOK, domain.PermissionsResult{
		Message:     "Permissions configured, admin consent required",
		ConsentURL:  microsoft.BuildConsentURL(ts.tenant.TenantID, ts.tenant.ClientID, ""),
		Permissions: ts.permissions,
	})
}

func (s *Server) handleLicenses(w http.ResponseWriter, r *http.Request, ts *tenantState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts.licenseCache == nil || r.URL.Query().Get("refresh") == "true" {
		ts.licenseCache = append([]domain.License{}, ts.upstream...)
	}
	out := make([]domain.License, len(ts.licenseCache))
	copy(out, ts.licenseCache)
	for i := range out {
		out[i].AvailableUnits = 0
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ts := tenantFrom(r)
	top, _ := strconv.Atoi(r.URL.Query().Get("top"))

	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.DirectoryUser{}
	for _, id := range sortedKeys(ts.users) {
		if top > 0 && len(out) == top {
			break
		}
		out = append(out, ts.users[id])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	ts := tenantFrom(r)
	keyword := strings.ToLower(r.URL.Query().Get("keyword"))

	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.DirectoryUser{}
	for _, id := range sortedKeys(ts.users) {
		u := ts.users[id]
		if strings.Contains(strings.ToLower(u.DisplayName), keyword) ||
			strings.Contains(strings.ToLower(u.UserPrincipalName), keyword) {
			out = append(out, u)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createUserLocked(ts *tenantState, req domain.UserCreate) (domain.DirectoryUser, error) {
	for _, u := range ts.users {
		if strings.EqualFold(u.UserPrincipalName, req.UserPrincipalName) {
			return domain.DirectoryUser{}, fmt.Errorf("user %s already exists", req.UserPrincipalName)
		}
	}
	s.nextUserID++
	u := domain.DirectoryUser{
		ID:                fmt.Sprintf("user-%04d", s.nextUserID),
		DisplayName:       req.DisplayName,
		UserPrincipalName: req.UserPrincipalName,
		Mail:              req.UserPrincipalName,
		AccountEnabled:    req.AccountEnabled,
		UsageLocation:     req.UsageLocation,
		CreatedDateTime:   time.Now().UTC().Format(time.RFC3339),
	}
	ts.users[u.ID] = u
	return u, nil
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body domain.UserCreate
	if !decode(r, &body) {
		writeValidation(w, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.createUserLocked(tenantFrom(r), body)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleBatchCreateUsers(w http.ResponseWriter, r *http.Request) {
	var body []domain.UserCreate
	if !decode(r, &body) {
		writeValidation(w, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.BatchCreateResult, 0, len(body))
	for _, req := range body {
		u, err := s.createUserLocked(tenantFrom(r), req)
		if err != nil {
			out = append(out, domain.BatchCreateResult{Success: false, Error: err.Error()})
			continue
		}
		out = append(out, domain.BatchCreateResult{Success: true, Data: map[string]any{
			"id": u.ID, "user_principal_name": u.UserPrincipalName,
		}})
	}
	writeJSON(w, http.StatusOK, out)
}

// findUserLocked resolves a user by ID or principal name.
func findUserLocked(ts *tenantState, key string) (domain.DirectoryUser, bool) {
	if u, ok := ts.users[key]; ok {
		return u, true
	}
	for _, u := range ts.users {
		if strings.EqualFold(u.UserPrincipalName, key) {
			return u, true
		}
	}
	return domain.DirectoryUser{}, false
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := findUserLocked(tenantFrom(r), chi.URLParam(r, "userID"))
	if !ok {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var body domain.UserUpdate
	if !decode(r, &body) {
		writeValidation(w, "invalid body")
		return
	}
	ts := tenantFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := findUserLocked(ts, chi.URLParam(r, "userID"))
	if !ok {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	if body.DisplayName != nil {
		u.DisplayName = *body.DisplayName
	}
	if body.AccountEnabled != nil {
		u.AccountEnabled = *body.AccountEnabled
	}
	if body.UsageLocation != nil {
		u.UsageLocation = *body.UsageLocation
	}
	ts.users[u.ID] = u
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	ts := tenantFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := findUserLocked(ts, chi.URLParam(r, "userID"))
	if !ok {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	delete(ts.users, u.ID)
	for _, members := range ts.roleMembers {
		delete(members, u.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ts := tenantFrom(r)

		s.mu.Lock()
		defer s.mu.Unlock()
		u, ok := findUserLocked(ts, chi.URLParam(r, "userID"))
		if !ok {
			writeDetail(w, http.StatusNotFound, "User not found")
			return
		}
		u.AccountEnabled = enabled
		ts.users[u.ID] = u
		writeJSON(w, http.StatusOK, u)
	}
}

func (s *Server) handleListDomains(w http.ResponseWriter, r *http.Request) {
	ts := tenantFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.OrgDomain{}
	for _, name := range sortedKeys(ts.domains) {
		out = append(out, ts.domains[name])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateDomain(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("domain_name")))
	if name == "" || !strings.Contains(name, ".") {
		writeValidation(w, "domain_name is required")
		return
	}
	ts := tenantFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := ts.domains[name]; ok {
		writeDetail(w, http.StatusBadRequest, "Domain already exists")
		return
	}
	d := domain.OrgDomain{Name: name, AuthenticationType: "Managed", SupportedServices: []string{}}
	ts.domains[name] = d
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleGetDomain(w http.ResponseWriter, r *http.Request) {
	ts := tenantFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := ts.domains[chi.URLParam(r, "name")]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Domain not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleVerifyDomain(w http.ResponseWriter, r *http.Request) {
	ts := tenantFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	name := chi.URLParam(r, "name")
	d, ok := ts.domains[name]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Domain not found")
		return
	}
	d.IsVerified = true
	d.SupportedServices = []string{"Email"}
	ts.domains[name] = d
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDomain(w http.ResponseWriter, r *http.Request) {
	ts := tenantFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	name := chi.URLParam(r, "name")
	d, ok := ts.domains[name]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Domain not found")
		return
	}
	if d.IsDefault {
		writeDetail(w, http.StatusBadRequest, "Cannot delete the default domain")
		return
	}
	ts.deleting[name] = true
	writeJSON(w, http.StatusOK, domain.MessageResult{
		Message: "Domain deletion started",
		Detail:  "Microsoft may take up to 24 hours to remove the domain",
	})
}

func (s *Server) handleListRoles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, []domain.DirectoryRole{
		{ID: domain.GlobalAdminRoleID, DisplayName: "Global Administrator", RoleTemplateID: domain.GlobalAdminRoleID},
		{ID: "fe930be7-5e62-47db-91af-98c3a49a38b1", DisplayName: "User Administrator", RoleTemplateID: "fe930be7-5e62-47db-91af-98c3a49a38b1"},
	})
}

func (s *Server) handleRoleMembers(w http.ResponseWriter, r *http.Request) {
	ts := tenantFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.RoleMember{}
	for _, id := range sortedKeys(ts.roleMembers[chi.URLParam(r, "roleID")]) {
		u := ts.users[id]
		out = append(out, domain.RoleMember{ID: u.ID, DisplayName: u.DisplayName, UserPrincipalName: u.UserPrincipalName})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) setRoleLocked(ts *tenantState, userKey, roleID string, grant bool) (string, int) {
	u, ok := findUserLocked(ts, userKey)
	if !ok {
		return "User not found", http.StatusNotFound
	}
	members, ok := ts.roleMembers[roleID]
	if !ok {
		members = make(map[string]bool)
		ts.roleMembers[roleID] = members
	}
	if grant {
		members[u.ID] = true
		return "Role assigned successfully", http.StatusOK
	}
	delete(members, u.ID)
	return "Role revoked successfully", http.StatusOK
}

func (s *Server) handleRoleChange(grant bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body domain.RoleAssignment
		if !decode(r, &body) || body.UserID == "" || body.RoleID == "" {
			writeValidation(w, "user_id and role_id are required")
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		msg, status := s.setRoleLocked(tenantFrom(r), body.UserID, body.RoleID, grant)
		if status != http.StatusOK {
			writeDetail(w, status, msg)
			return
		}
		writeJSON(w, status, domain.MessageResult{Message: msg})
	}
}

func (s *Server) handlePromote(grant bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		msg, status := s.setRoleLocked(tenantFrom(r), chi.URLParam(r, "userID"), domain.GlobalAdminRoleID, grant)
		if status != http.StatusOK {
			writeDetail(w, status, msg)
			return
		}
		writeJSON(w, status, domain.MessageResult{Message: msg})
	}
}

func (s *Server) handleOrganization(w http.ResponseWriter, r *http.Request) {
	ts := tenantFrom(r)

	s.mu.Lock()
	org := ts.organization
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(org))
}

func (s *Server) handleUsageReport(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseReportKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Report not found")
		return
	}
	period, err := domain.ParseReportPeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeValidation(w, "period must be one of D7, D30, D90, D180")
		return
	}

	s.mu.Lock()
	directoryID := tenantFrom(r).tenant.TenantID
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = fmt.Fprintf(w, "Report Refresh Date,Report Kind,User Principal Name,Report Period\n%s,%s,admin@%s,%s\n",
		time.Now().UTC().Format("2006-01-02"), kind, directoryID, strings.TrimPrefix(string(period), "D"))
}
