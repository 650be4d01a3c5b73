package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
	"github.com/custodia-labs/m365ctl/internal/core/ports/driven"
	"github.com/custodia-labs/m365ctl/internal/core/ports/driving"
	"github.com/custodia-labs/m365ctl/internal/logger"
)

// Verify interface compliance.
var (
	_ driving.LicenseService = (*LicenseService)(nil)
	_ driving.UserService    = (*UserService)(nil)
	_ driving.DomainService  = (*DomainService)(nil)
	_ driving.RoleService    = (*RoleService)(nil)
	_ driving.ReportService  = (*ReportService)(nil)
)

// LicenseService serves license snapshots.
type LicenseService struct {
	api      driven.LicenseAPI
	cache    queryCache
	inflight *InFlight
}

// NewLicenseService creates a LicenseService. store may be nil.
func NewLicenseService(api driven.LicenseAPI, store driven.QueryCache, ttl time.Duration, inflight *InFlight) *LicenseService {
	if inflight == nil {
		inflight = NewInFlight()
	}
	return &LicenseService{api: api, cache: newQueryCache(store, ttl), inflight: inflight}
}

// List returns the snapshot, from cache while fresh.
func (s *LicenseService) List(ctx context.Context, tenantID int64) ([]domain.License, error) {
	return readThrough(ctx, s.cache, licensesKey(tenantID), func() ([]domain.License, error) {
		return s.api.List(ctx, tenantID, false)
	})
}

// Refresh discards the cached snapshot and asks the server to refetch from
// Microsoft Graph. The result replaces the cache entry.
func (s *LicenseService) Refresh(ctx context.Context, tenantID int64) ([]domain.License, error) {
	release, err := s.inflight.Begin(tenantID, domain.OpRefreshLicenses)
	if err != nil {
		return nil, err
	}
	defer release()

	key := licensesKey(tenantID)
	s.cache.invalidate(ctx, key)

	ls, err := s.api.List(ctx, tenantID, true)
	if err != nil {
		return nil, err
	}
	s.cache.put(ctx, key, ls)
	return ls, nil
}

// UserService manages directory users.
type UserService struct {
	api   driven.UserAPI
	cache queryCache
}

// NewUserService creates a UserService. store may be nil.
func NewUserService(api driven.UserAPI, store driven.QueryCache, ttl time.Duration) *UserService {
	return &UserService{api: api, cache: newQueryCache(store, ttl)}
}

// List returns up to top users; top <= 0 uses the server default.
func (s *UserService) List(ctx context.Context, tenantID int64, top int) ([]domain.DirectoryUser, error) {
	key := usersKey(tenantID)
	if top > 0 {
		key = fmt.Sprintf("%s:top=%d", key, top)
	}
	return readThrough(ctx, s.cache, key, func() ([]domain.DirectoryUser, error) {
		return s.api.List(ctx, tenantID, top)
	})
}

// Search finds users by name or principal name.
func (s *UserService) Search(ctx context.Context, tenantID int64, keyword string) ([]domain.DirectoryUser, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("%w: search keyword is required", domain.ErrInvalidInput)
	}
	return s.api.Search(ctx, tenantID, keyword)
}

// Get returns one user by ID or principal name.
func (s *UserService) Get(ctx context.Context, tenantID int64, userID string) (*domain.DirectoryUser, error) {
	if err := requireUserID(userID); err != nil {
		return nil, err
	}
	return s.api.Get(ctx, tenantID, userID)
}

// Create adds a user.
func (s *UserService) Create(ctx context.Context, tenantID int64, req domain.UserCreate) (*domain.DirectoryUser, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	defer s.cache.invalidate(ctx, usersKey(tenantID))
	return s.api.Create(ctx, tenantID, req)
}

// BatchCreate adds several users. A failure of one user does not fail the batch.
func (s *UserService) BatchCreate(ctx context.Context, tenantID int64, reqs []domain.UserCreate) ([]domain.BatchCreateResult, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: no users to create", domain.ErrInvalidInput)
	}
	for i := range reqs {
		if err := reqs[i].Validate(); err != nil {
			return nil, fmt.Errorf("user %d (%s): %w", i+1, reqs[i].UserPrincipalName, err)
		}
	}
	defer s.cache.invalidate(ctx, usersKey(tenantID))

	results, err := s.api.BatchCreate(ctx, tenantID, reqs)
	if err != nil {
		return nil, err
	}
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	if failed > 0 {
		logger.Warn("batch create: %d of %d users failed", failed, len(results))
	}
	return results, nil
}

// Update patches a user.
func (s *UserService) Update(ctx context.Context, tenantID int64, userID string, req domain.UserUpdate) (*domain.DirectoryUser, error) {
	if err := requireUserID(userID); err != nil {
		return nil, err
	}
	if req.DisplayName == nil && req.AccountEnabled == nil && req.UsageLocation == nil {
		return nil, fmt.Errorf("%w: nothing to update", domain.ErrInvalidInput)
	}
	defer s.cache.invalidate(ctx, usersKey(tenantID))
	return s.api.Update(ctx, tenantID, userID, req)
}

// Delete removes a user.
func (s *UserService) Delete(ctx context.Context, tenantID int64, userID string) error {
	if err := requireUserID(userID); err != nil {
		return err
	}
	defer s.cache.invalidate(ctx, usersKey(tenantID))
	return s.api.Delete(ctx, tenantID, userID)
}

// SetEnabled enables or blocks sign-in for a user.
func (s *UserService) SetEnabled(ctx context.Context, tenantID int64, userID string, enabled bool) error {
	if err := requireUserID(userID); err != nil {
		return err
	}
	defer s.cache.invalidate(ctx, usersKey(tenantID))
	if enabled {
		return s.api.Enable(ctx, tenantID, userID)
	}
	return s.api.Disable(ctx, tenantID, userID)
}

func requireUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user ID is required", domain.ErrInvalidInput)
	}
	return nil
}

// DomainService manages custom domains.
type DomainService struct {
	api   driven.DomainAPI
	cache queryCache
}

// NewDomainService creates a DomainService. store may be nil.
func NewDomainService(api driven.DomainAPI, store driven.QueryCache, ttl time.Duration) *DomainService {
	return &DomainService{api: api, cache: newQueryCache(store, ttl)}
}

// List returns the organisation's domains.
func (s *DomainService) List(ctx context.Context, tenantID int64) ([]domain.OrgDomain, error) {
	return readThrough(ctx, s.cache, domainsKey(tenantID), func() ([]domain.OrgDomain, error) {
		return s.api.List(ctx, tenantID)
	})
}

// Get returns one domain.
func (s *DomainService) Get(ctx context.Context, tenantID int64, name string) (*domain.OrgDomain, error) {
	name, err := normaliseDomain(name)
	if err != nil {
		return nil, err
	}
	return s.api.Get(ctx, tenantID, name)
}

// Create adds an unverified domain.
func (s *DomainService) Create(ctx context.Context, tenantID int64, name string) (*domain.OrgDomain, error) {
	name, err := normaliseDomain(name)
	if err != nil {
		return nil, err
	}
	defer s.cache.invalidate(ctx, domainsKey(tenantID))
	return s.api.Create(ctx, tenantID, name)
}

// Verify asks Microsoft to check the domain's DNS records.
func (s *DomainService) Verify(ctx context.Context, tenantID int64, name string) (*domain.OrgDomain, error) {
	name, err := normaliseDomain(name)
	if err != nil {
		return nil, err
	}
	defer s.cache.invalidate(ctx, domainsKey(tenantID))
	return s.api.Verify(ctx, tenantID, name)
}

// Delete requests removal. The cached list is invalidated, not edited: the
// domain stays listed until the server stops returning it.
func (s *DomainService) Delete(ctx context.Context, tenantID int64, name string) (*domain.MessageResult, error) {
	name, err := normaliseDomain(name)
	if err != nil {
		return nil, err
	}
	defer s.cache.invalidate(ctx, domainsKey(tenantID))
	return s.api.Delete(ctx, tenantID, name)
}

func normaliseDomain(name string) (string, error) {
	name = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
	if name == "" || !strings.Contains(name, ".") || strings.ContainsAny(name, " /@") {
		return "", fmt.Errorf("%w: invalid domain name %q", domain.ErrInvalidInput, name)
	}
	return name, nil
}

// RoleService manages directory roles.
type RoleService struct {
	api driven.RoleAPI
}

// NewRoleService creates a RoleService.
func NewRoleService(api driven.RoleAPI) *RoleService {
	return &RoleService{api: api}
}

// List returns the activated roles.
func (s *RoleService) List(ctx context.Context, tenantID int64) ([]domain.DirectoryRole, error) {
	return s.api.List(ctx, tenantID)
}

// Members returns the principals holding a role.
func (s *RoleService) Members(ctx context.Context, tenantID int64, roleID string) ([]domain.RoleMember, error) {
	if strings.TrimSpace(roleID) == "" {
		return nil, fmt.Errorf("%w: role ID is required", domain.ErrInvalidInput)
	}
	return s.api.Members(ctx, tenantID, roleID)
}

// Assign grants a role.
func (s *RoleService) Assign(ctx context.Context, tenantID int64, a domain.RoleAssignment) (*domain.MessageResult, error) {
	if err := validateAssignment(a); err != nil {
		return nil, err
	}
	return s.api.Assign(ctx, tenantID, a)
}

// Revoke removes a role.
func (s *RoleService) Revoke(ctx context.Context, tenantID int64, a domain.RoleAssignment) (*domain.MessageResult, error) {
	if err := validateAssignment(a); err != nil {
		return nil, err
	}
	return s.api.Revoke(ctx, tenantID, a)
}

// Promote grants Global Administrator.
func (s *RoleService) Promote(ctx context.Context, tenantID int64, userID string) (*domain.MessageResult, error) {
	if err := requireUserID(userID); err != nil {
		return nil, err
	}
	return s.api.Promote(ctx, tenantID, userID)
}

// Demote removes Global Administrator.
func (s *RoleService) Demote(ctx context.Context, tenantID int64, userID string) (*domain.MessageResult, error) {
	if err := requireUserID(userID); err != nil {
		return nil, err
	}
	return s.api.Demote(ctx, tenantID, userID)
}

func validateAssignment(a domain.RoleAssignment) error {
	if strings.TrimSpace(a.UserID) == "" || strings.TrimSpace(a.RoleID) == "" {
		return fmt.Errorf("%w: user ID and role ID are required", domain.ErrInvalidInput)
	}
	return nil
}

// ReportService downloads organisation info and usage reports.
type ReportService struct {
	api driven.ReportAPI
	now func() time.Time
}

// NewReportService creates a ReportService.
func NewReportService(api driven.ReportAPI) *ReportService {
	return &ReportService{api: api, now: time.Now}
}

// Organization returns the raw organisation profile.
func (s *ReportService) Organization(ctx context.Context, tenantID int64) (*domain.Organization, error) {
	return s.api.Organization(ctx, tenantID)
}

// Usage downloads a CSV usage report and names it.
func (s *ReportService) Usage(ctx context.Context, tenantID int64, kind domain.ReportKind, period domain.ReportPeriod) (*domain.Report, error) {
	kind, err := domain.ParseReportKind(string(kind))
	if err != nil {
		return nil, err
	}
	period, err = domain.ParseReportPeriod(string(period))
	if err != nil {
		return nil, err
	}

	data, err := s.api.Usage(ctx, tenantID, kind, period)
	if err != nil {
		return nil, err
	}
	return &domain.Report{
		Kind:     kind,
		Period:   period,
		Filename: domain.ReportFilename(kind, period, s.now()),
		Data:     data,
	}, nil
}
