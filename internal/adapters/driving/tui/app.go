// Package tui runs the interactive dashboard.
package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/m365ctl/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/m365ctl/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/m365ctl/internal/adapters/driving/tui/views/tenants"
	"github.com/custodia-labs/m365ctl/internal/core/domain"
	"github.com/custodia-labs/m365ctl/internal/core/ports/driving"
	"github.com/custodia-labs/m365ctl/internal/logger"
)

// Config holds what the dashboard needs.
type Config struct {
	Workflow driving.TenantWorkflow

	// Licenses adds license totals for the selected tenant. Optional.
	Licenses driving.LicenseService

	// Follow watches the persisted session until ctx is done. Optional.
	Follow func(ctx context.Context) error

	// OnSessionEnd registers fn to be called when the session is torn down.
	// Optional.
	OnSessionEnd func(fn func(reason string))

	// Options are extra program options (tests use tea.WithInput/WithOutput).
	Options []tea.ProgramOption
}

// Run starts the dashboard and blocks until the operator quits or the
// session ends.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Workflow == nil {
		return errors.New("tenant service not configured")
	}

	view := tenants.NewView(styles.DefaultStyles(), cfg.Workflow).WithLicenses(cfg.Licenses)
	opts := append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, cfg.Options...)
	p := tea.NewProgram(view, opts...)

	if cfg.OnSessionEnd != nil {
		cfg.OnSessionEnd(func(reason string) {
			p.Send(messages.SessionEnded{Reason: reason})
		})
	}

	if cfg.Follow != nil {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := cfg.Follow(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("session watch stopped: %v", err)
			}
		}()
	}

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}
	if v, ok := final.(*tenants.View); ok && v.EndedReason() != "" {
		return fmt.Errorf("%w: %s", domain.ErrNotAuthenticated, v.EndedReason())
	}
	return nil
}
