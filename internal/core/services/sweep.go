package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
	"github.com/custodia-labs/m365ctl/internal/core/ports/driving"
	"github.com/custodia-labs/m365ctl/internal/logger"
	"github.com/custodia-labs/m365ctl/internal/microsoft"
)

// DefaultSweepConcurrency bounds how many tenants are checked at once.
const DefaultSweepConcurrency = 4

// Verify interface compliance.
var _ driving.Sweeper = (*Sweep)(nil)

// SweepOptions configures a Sweep.
type SweepOptions struct {
	// Concurrency bounds parallel tenants. Non-positive uses DefaultSweepConcurrency.
	Concurrency int
	// Limiter paces every check. Nil uses microsoft.DefaultRateLimit.
	Limiter *microsoft.RateLimiter
	// Throttled reports whether err is a throttling response and how long to back off.
	Throttled func(err error) (time.Duration, bool)
}

// Sweep runs credential and SPO checks across tenants. Each check goes
// through the tenant workflow, so in-flight guards and cache invalidation apply.
type Sweep struct {
	tenants     driving.TenantWorkflow
	concurrency int
	limiter     *microsoft.RateLimiter
	throttled   func(error) (time.Duration, bool)
}

// NewSweep creates a Sweep.
func NewSweep(tenants driving.TenantWorkflow, opts SweepOptions) *Sweep {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultSweepConcurrency
	}
	if opts.Limiter == nil {
		opts.Limiter = microsoft.NewRateLimiter()
	}
	if opts.Throttled == nil {
		opts.Throttled = func(error) (time.Duration, bool) { return 0, false }
	}
	return &Sweep{
		tenants:     tenants,
		concurrency: opts.Concurrency,
		limiter:     opts.Limiter,
		throttled:   opts.Throttled,
	}
}

// Run checks the given tenants, or all of them when ids is empty. With no
// check selected both run. A failing tenant never stops the others, and
// nothing is retried. Results keep the order of the tenant list.
func (s *Sweep) Run(ctx context.Context, ids []int64, check driving.SweepCheck) ([]driving.SweepResult, error) {
	if !check.Validate && !check.Spo {
		check = driving.SweepCheck{Validate: true, Spo: true}
	}

	targets, err := s.targets(ctx, ids)
	if err != nil {
		return nil, err
	}
	logger.Debug("sweeping %d tenant(s) with concurrency %d", len(targets), s.concurrency)

	results := make([]driving.SweepResult, len(targets))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range targets {
		i := i
		g.Go(func() error {
			results[i] = s.checkOne(ctx, targets[i], check)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (s *Sweep) targets(ctx context.Context, ids []int64) ([]domain.Tenant, error) {
	list, err := s.tenants.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	if len(ids) == 0 {
		return list.Items, nil
	}

	out := make([]domain.Tenant, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		t, ok := list.Find(id)
		if !ok {
			return nil, fmt.Errorf("tenant %d: %w", id, domain.ErrNotFound)
		}
		out = append(out, *t)
	}
	return out, nil
}

func (s *Sweep) checkOne(ctx context.Context, t domain.Tenant, check driving.SweepCheck) driving.SweepResult {
	r := driving.SweepResult{Tenant: t}

	if check.Validate {
		r.ValidateErr = s.paced(ctx, func() error {
			res, err := s.tenants.Validate(ctx, t.ID)
			r.Validate = res
			return err
		})
	}
	if check.Spo {
		r.SpoErr = s.paced(ctx, func() error {
			res, err := s.tenants.CheckSpo(ctx, t.ID)
			r.Spo = res
			return err
		})
	}

	if r.Failed() {
		logger.Debug("tenant %d (%s): check failed", t.ID, t.DisplayName())
	}
	return r
}

// paced waits for the limiter, runs fn once and backs the limiter off when
// the server reports throttling.
func (s *Sweep) paced(ctx context.Context, fn func() error) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	err := fn()
	if wait, ok := s.throttled(err); ok {
		logger.Warn("throttled by server, backing off for %s", wait)
		s.limiter.Throttled(wait)
	}
	return err
}
