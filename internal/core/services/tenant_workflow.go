package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
	"github.com/custodia-labs/m365ctl/internal/core/ports/driven"
	"github.com/custodia-labs/m365ctl/internal/core/ports/driving"
	"github.com/custodia-labs/m365ctl/internal/logger"
	"github.com/custodia-labs/m365ctl/internal/microsoft"
)

// Verify interface compliance.
var _ driving.TenantWorkflow = (*TenantWorkflow)(nil)

// TenantWorkflow runs tenant lifecycle actions. Every action is guarded by
// the in-flight tracker, and every state-changing call invalidates the tenant
// list whether it succeeded or not. Nothing is updated optimistically.
type TenantWorkflow struct {
	api      driven.TenantAPI
	cache    queryCache
	inflight *InFlight
	now      func() time.Time

	mu      sync.Mutex
	consent map[int64]*domain.ConsentHandoff
}

// NewTenantWorkflow creates a workflow. store may be nil to disable caching.
func NewTenantWorkflow(api driven.TenantAPI, store driven.QueryCache, ttl time.Duration, inflight *InFlight) *TenantWorkflow {
	if inflight == nil {
		inflight = NewInFlight()
	}
	return &TenantWorkflow{
		api:      api,
		cache:    newQueryCache(store, ttl),
		inflight: inflight,
		now:      time.Now,
		consent:  make(map[int64]*domain.ConsentHandoff),
	}
}

// List returns all tenants, served from cache while fresh.
func (w *TenantWorkflow) List(ctx context.Context) (*domain.TenantList, error) {
	return readThrough(ctx, w.cache, keyTenants, func() (*domain.TenantList, error) {
		return w.api.List(ctx)
	})
}

// Get returns one tenant from the server.
func (w *TenantWorkflow) Get(ctx context.Context, id int64) (*domain.Tenant, error) {
	return w.api.Get(ctx, id)
}

// Create registers a tenant.
func (w *TenantWorkflow) Create(ctx context.Context, req domain.TenantCreate) (*domain.Tenant, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	defer w.cache.invalidate(ctx, keyTenants)

	t, err := w.api.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.Info("tenant %d (%s) created", t.ID, t.DisplayName())
	return t, nil
}

// Update applies a partial update.
func (w *TenantWorkflow) Update(ctx context.Context, id int64, req domain.TenantUpdate) (*domain.Tenant, error) {
	if req.IsEmpty() {
		return nil, fmt.Errorf("%w: nothing to update", domain.ErrInvalidInput)
	}
	release, err := w.inflight.Begin(id, domain.OpUpdate)
	if err != nil {
		return nil, err
	}
	defer release()
	defer w.cache.invalidate(ctx, keyTenants)

	return w.api.Update(ctx, id, req)
}

// Delete removes a tenant and forgets everything cached for it.
func (w *TenantWorkflow) Delete(ctx context.Context, id int64) error {
	release, err := w.inflight.Begin(id, domain.OpDelete)
	if err != nil {
		return err
	}
	defer release()
	defer w.cache.invalidate(ctx, keyTenants)

	if err := w.api.Delete(ctx, id); err != nil {
		return err
	}
	w.cache.invalidate(ctx, tenantKeys(id)...)
	w.DismissConsent(id)
	logger.Info("tenant %d deleted", id)
	return nil
}

// Validate asks the server to test the tenant's credentials. The resulting
// credential status is read back through the tenant list.
func (w *TenantWorkflow) Validate(ctx context.Context, id int64) (*domain.MessageResult, error) {
	release, err := w.inflight.Begin(id, domain.OpValidate)
	if err != nil {
		return nil, err
	}
	defer release()
	defer w.cache.invalidate(ctx, keyTenants)

	return w.api.Validate(ctx, id)
}

// CheckSpo asks the server to probe SharePoint Online.
func (w *TenantWorkflow) CheckSpo(ctx context.Context, id int64) (*domain.SpoCheckResult, error) {
	release, err := w.inflight.Begin(id, domain.OpCheckSpo)
	if err != nil {
		return nil, err
	}
	defer release()
	defer w.cache.invalidate(ctx, keyTenants)

	return w.api.CheckSpo(ctx, id)
}

// RotateSecret creates a new client secret. Previous secrets survive unless
// opts.DeleteOld is set. Credentials are not re-validated afterwards.
func (w *TenantWorkflow) RotateSecret(ctx context.Context, id int64, opts domain.RotateSecretOptions) (*domain.MessageResult, error) {
	release, err := w.inflight.Begin(id, domain.OpRotateSecret)
	if err != nil {
		return nil, err
	}
	defer release()
	defer w.cache.invalidate(ctx, keyTenants)

	res, err := w.api.RotateSecret(ctx, id, opts)
	if err != nil {
		return nil, err
	}
	logger.Info("tenant %d: client secret rotated (delete_old=%t)", id, opts.DeleteOld)
	return res, nil
}

// ConfigurePermissions starts the permission bootstrap. The server needs
// microsoft.PrerequisitePermission on the tenant's app; that is not checked
// here. On success the handoff is retained in memory in the
// ConsentAwaitingAdmin state. Completion happens at the identity provider
// and is never polled.
func (w *TenantWorkflow) ConfigurePermissions(ctx context.Context, id int64) (*domain.ConsentHandoff, error) {
	release, err := w.inflight.Begin(id, domain.OpConfigurePermissions)
	if err != nil {
		return nil, err
	}
	defer release()
	defer w.cache.invalidate(ctx, keyTenants)

	res, err := w.api.ConfigurePermissions(ctx, id)
	if err != nil {
		return nil, err
	}

	consentURL, err := microsoft.ParseConsentURL(res.ConsentURL)
	if err != nil {
		logger.Warn("tenant %d: permission bootstrap returned unusable consent URL %q", id, res.ConsentURL)
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingConsentURL, res.Message)
	}

	h := &domain.ConsentHandoff{
		TenantID:    id,
		Message:     domain.MessageResult{Message: res.Message, Detail: res.Detail}.Combined(),
		ConsentURL:  consentURL,
		Permissions: append([]string(nil), res.Permissions...),
		State:       domain.ConsentAwaitingAdmin,
		IssuedAt:    w.now().UTC(),
	}

	w.mu.Lock()
	w.consent[id] = h
	w.mu.Unlock()

	cp := *h
	return &cp, nil
}

// PendingConsent returns the retained handoff for a tenant.
func (w *TenantWorkflow) PendingConsent(id int64) (*domain.ConsentHandoff, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	h, ok := w.consent[id]
	if !ok {
		return nil, false
	}
	cp := *h
	return &cp, true
}

// DismissConsent forgets the handoff without contacting the server.
func (w *TenantWorkflow) DismissConsent(id int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.consent, id)
}

// Busy reports whether op is pending for the tenant.
func (w *TenantWorkflow) Busy(id int64, op domain.Operation) bool {
	return w.inflight.Busy(id, op)
}

// Pending lists the operations pending for the tenant.
func (w *TenantWorkflow) Pending(id int64) []domain.Operation {
	return w.inflight.Pending(id)
}
