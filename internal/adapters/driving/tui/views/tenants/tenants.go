// Package tenants implements the interactive tenant dashboard view.
package tenants

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/m365ctl/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/m365ctl/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/m365ctl/internal/core/domain"
	"github.com/custodia-labs/m365ctl/internal/core/ports/driving"
	"github.com/custodia-labs/m365ctl/internal/microsoft"
)

// tenantsLoaded carries a fresh tenant list.
type tenantsLoaded struct {
	list *domain.TenantList
	err  error
}

// actionFinished reports the end of a tenant action.
type actionFinished struct {
	tenantID int64
	op       domain.Operation
	message  string
	err      error
}

// consentIssued reports the end of a permission bootstrap.
type consentIssued struct {
	tenantID int64
	handoff  *domain.ConsentHandoff
	err      error
}

// licensesLoaded carries the license totals of one tenant.
type licensesLoaded struct {
	tenantID int64
	totals   domain.LicenseTotals
	err      error
}

// licenseSummary is the cached license state of one tenant.
type licenseSummary struct {
	totals domain.LicenseTotals
	err    error
	ready  bool
}

// View lists tenants with their status badges and runs tenant actions.
type View struct {
	styles   *styles.Styles
	workflow driving.TenantWorkflow
	licenses driving.LicenseService
	spinner  spinner.Model

	tenants  []domain.Tenant
	total    int
	selected int
	loading  bool

	// summaries holds license totals per tenant ID; an entry without
	// ready set is being fetched.
	summaries map[int64]*licenseSummary

	// confirmRotate is the tenant awaiting a second key press before its
	// client secret is rotated, or 0.
	confirmRotate int64

	notice string
	err    error
	ended  string

	width  int
	height int
	ready  bool
}

// NewView creates the dashboard. A nil style set uses the defaults.
func NewView(s *styles.Styles, workflow driving.TenantWorkflow) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = s.Selected
	return &View{
		styles:    s,
		workflow:  workflow,
		spinner:   sp,
		loading:   true,
		summaries: make(map[int64]*licenseSummary),
	}
}

// WithLicenses shows license totals for the selected tenant.
func (v *View) WithLicenses(svc driving.LicenseService) *View {
	v.licenses = svc
	return v
}

// Init loads the tenant list.
func (v *View) Init() tea.Cmd {
	return tea.Batch(v.spinner.Tick, v.load())
}

// EndedReason returns why the session ended, or "" if it did not.
func (v *View) EndedReason() string {
	return v.ended
}

func (v *View) load() tea.Cmd {
	workflow := v.workflow
	return func() tea.Msg {
		if workflow == nil {
			return messages.ErrorOccurred{Err: errors.New("tenant service not configured")}
		}
		list, err := workflow.List(context.Background())
		return tenantsLoaded{list: list, err: err}
	}
}

// loadLicenses fetches the selected tenant's license totals once.
func (v *View) loadLicenses() tea.Cmd {
	t := v.current()
	if t == nil || v.licenses == nil {
		return nil
	}
	if _, ok := v.summaries[t.ID]; ok {
		return nil
	}
	v.summaries[t.ID] = &licenseSummary{}

	svc, id := v.licenses, t.ID
	return func() tea.Msg {
		ls, err := svc.List(context.Background(), id)
		if err != nil {
			return licensesLoaded{tenantID: id, err: err}
		}
		return licensesLoaded{tenantID: id, totals: domain.SumLicenses(ls)}
	}
}

// Update handles a message.
//
//nolint:gocyclo // message switch
func (v *View) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width, v.height = msg.Width, msg.Height
		v.ready = true
		return v, nil

	case tenantsLoaded:
		v.loading = false
		if msg.err != nil {
			v.err = msg.err
			return v, nil
		}
		v.tenants = msg.list.Items
		v.total = msg.list.Total
		if v.selected >= len(v.tenants) {
			v.selected = max(len(v.tenants)-1, 0)
		}
		return v, v.loadLicenses()

	case licensesLoaded:
		v.summaries[msg.tenantID] = &licenseSummary{totals: msg.totals, err: msg.err, ready: true}
		return v, nil

	case actionFinished:
		if msg.err != nil {
			v.err = fmt.Errorf("%s: %w", msg.op, msg.err)
			v.notice = ""
		} else {
			v.err = nil
			v.notice = msg.message
		}
		// Statuses are owned by the server; always refetch.
		v.loading = true
		return v, tea.Batch(v.spinner.Tick, v.load())

	case consentIssued:
		if msg.err != nil {
			v.err = fmt.Errorf("%s: %w", domain.OpConfigurePermissions, msg.err)
			v.notice = ""
		} else {
			v.err = nil
			v.notice = msg.handoff.Message
		}
		v.loading = true
		return v, tea.Batch(v.spinner.Tick, v.load())

	case messages.ErrorOccurred:
		v.loading = false
		v.err = msg.Err
		return v, nil

	case messages.StatusNotice:
		v.notice = msg.Text
		return v, nil

	case messages.SessionEnded:
		v.ended = msg.Reason
		return v, tea.Quit

	case spinner.TickMsg:
		if !v.loading && !v.anyPending() {
			return v, nil
		}
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return v, cmd

	case tea.KeyMsg:
		return v.handleKey(msg)
	}
	return v, nil
}

//nolint:gocyclo // key switch
func (v *View) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if v.confirmRotate != 0 && key != "ctrl+c" {
		return v.resolveRotate(key)
	}

	switch key {
	case "q", "ctrl+c":
		return v, tea.Quit
	case "up", "k":
		if v.selected > 0 {
			v.selected--
		}
		return v, v.loadLicenses()
	case "down", "j":
		if v.selected < len(v.tenants)-1 {
			v.selected++
		}
		return v, v.loadLicenses()
	case "r":
		v.loading = true
		clear(v.summaries)
		return v, tea.Batch(v.spinner.Tick, v.load())
	case "v":
		return v.start(domain.OpValidate)
	case "s":
		return v.start(domain.OpCheckSpo)
	case "x":
		v.askRotate()
	case "p":
		return v.start(domain.OpConfigurePermissions)
	case "d":
		if t := v.current(); t != nil && v.workflow != nil {
			v.workflow.DismissConsent(t.ID)
		}
	}
	return v, nil
}

// askRotate arms the rotation prompt for the selected tenant.
func (v *View) askRotate() {
	t := v.current()
	if t == nil || v.workflow == nil {
		return
	}
	if v.workflow.Busy(t.ID, domain.OpRotateSecret) {
		v.notice = fmt.Sprintf("%s already in progress for %s", domain.OpRotateSecret, t.DisplayName())
		return
	}
	v.err = nil
	v.notice = ""
	v.confirmRotate = t.ID
}

// resolveRotate handles the key pressed while the rotation prompt is shown.
// x or y confirms; any other key cancels.
func (v *View) resolveRotate(key string) (tea.Model, tea.Cmd) {
	id := v.confirmRotate
	v.confirmRotate = 0
	if t := v.current(); (key == "x" || key == "y") && t != nil && t.ID == id {
		return v.start(domain.OpRotateSecret)
	}
	v.notice = "Secret rotation cancelled"
	return v, nil
}

// start launches op for the selected tenant unless it is already pending.
func (v *View) start(op domain.Operation) (tea.Model, tea.Cmd) {
	t := v.current()
	if t == nil || v.workflow == nil {
		return v, nil
	}
	if v.workflow.Busy(t.ID, op) {
		v.notice = fmt.Sprintf("%s already in progress for %s", op, t.DisplayName())
		return v, nil
	}
	v.err = nil
	v.notice = fmt.Sprintf("%s %s...", op, t.DisplayName())
	return v, tea.Batch(v.spinner.Tick, runAction(v.workflow, t.ID, op))
}

func runAction(w driving.TenantWorkflow, id int64, op domain.Operation) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		switch op {
		case domain.OpValidate:
			res, err := w.Validate(ctx, id)
			if err != nil {
				return actionFinished{tenantID: id, op: op, err: err}
			}
			return actionFinished{tenantID: id, op: op, message: res.Combined()}
		case domain.OpCheckSpo:
			res, err := w.CheckSpo(ctx, id)
			if err != nil {
				return actionFinished{tenantID: id, op: op, err: err}
			}
			return actionFinished{tenantID: id, op: op, message: res.Status.Label() + ": " + res.Message}
		case domain.OpRotateSecret:
			res, err := w.RotateSecret(ctx, id, domain.RotateSecretOptions{})
			if err != nil {
				return actionFinished{tenantID: id, op: op, err: err}
			}
			return actionFinished{tenantID: id, op: op, message: res.Combined()}
		case domain.OpConfigurePermissions:
			h, err := w.ConfigurePermissions(ctx, id)
			return consentIssued{tenantID: id, handoff: h, err: err}
		case domain.OpRefreshLicenses, domain.OpUpdate, domain.OpDelete:
			return actionFinished{tenantID: id, op: op, err: fmt.Errorf("%w: %s is not available here", domain.ErrInvalidInput, op)}
		default:
			return actionFinished{tenantID: id, op: op, err: fmt.Errorf("%w: unknown operation %q", domain.ErrInvalidInput, op)}
		}
	}
}

func (v *View) current() *domain.Tenant {
	if v.selected < 0 || v.selected >= len(v.tenants) {
		return nil
	}
	return &v.tenants[v.selected]
}

func (v *View) anyPending() bool {
	if v.workflow == nil {
		return false
	}
	for i := range v.tenants {
		if len(v.workflow.Pending(v.tenants[i].ID)) > 0 {
			return true
		}
	}
	return false
}

// View renders the dashboard.
func (v *View) View() string {
	var b strings.Builder

	b.WriteString(v.styles.Title.Render("Microsoft 365 tenants"))
	if v.loading {
		b.WriteString(" " + v.spinner.View())
	}
	b.WriteString("\n\n")

	if len(v.tenants) == 0 && !v.loading {
		b.WriteString(v.styles.Subtle.Render("No tenants registered. Add one with 'm365ctl tenant add'."))
		b.WriteString("\n")
	}

	for i := range v.tenants {
		b.WriteString(v.renderRow(i))
		b.WriteString("\n")
	}
	if v.total > len(v.tenants) {
		b.WriteString(v.styles.Subtle.Render(fmt.Sprintf("showing %d of %d", len(v.tenants), v.total)))
		b.WriteString("\n")
	}

	if t := v.current(); t != nil && v.licenses != nil {
		b.WriteString("\n")
		b.WriteString(v.renderLicenses(t))
		b.WriteString("\n")
	}

	if t := v.current(); t != nil && v.workflow != nil {
		if h, ok := v.workflow.PendingConsent(t.ID); ok {
			b.WriteString("\n")
			b.WriteString(v.renderConsent(h))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if t := v.current(); t != nil && v.confirmRotate == t.ID {
		b.WriteString(v.styles.Warning.Render(fmt.Sprintf(
			"Rotate the client secret of %s? Press x or y to confirm, any other key cancels.", t.DisplayName())))
		b.WriteString("\n")
	} else if v.err != nil {
		b.WriteString(v.styles.Error.Render("Error: " + v.err.Error()))
		b.WriteString("\n")
	} else if v.notice != "" {
		b.WriteString(v.styles.Success.Render(v.notice))
		b.WriteString("\n")
	}
	b.WriteString(v.styles.Help.Render("↑/↓ select • v validate • s SPO • x rotate secret • p permissions • d dismiss consent • r reload • q quit"))
	return b.String()
}

func (v *View) renderRow(i int) string {
	t := &v.tenants[i]
	cursor := "  "
	name := t.DisplayName()
	if i == v.selected {
		cursor = v.styles.Selected.Render("> ")
		name = v.styles.Selected.Render(name)
	}

	pending := ""
	if v.workflow != nil {
		if ops := v.workflow.Pending(t.ID); len(ops) > 0 {
			names := make([]string, len(ops))
			for j, op := range ops {
				names[j] = string(op)
			}
			pending = " " + v.spinner.View() + " " + v.styles.Subtle.Render(strings.Join(names, ", "))
		}
	}

	inactive := ""
	if !t.IsActive {
		inactive = v.styles.Subtle.Render(" (inactive)")
	}

	return fmt.Sprintf("%s%-4d %s%s  %s  %s%s",
		cursor, t.ID, name, inactive,
		styles.CredentialBadge(t.CredentialStatus),
		styles.SpoBadge(t.SpoStatus),
		pending,
	)
}

func (v *View) renderLicenses(t *domain.Tenant) string {
	label := "Licenses (" + t.DisplayName() + "): "
	sum, ok := v.summaries[t.ID]
	switch {
	case !ok || !sum.ready:
		return v.styles.Subtle.Render(label + "loading...")
	case sum.err != nil:
		return v.styles.Subtle.Render(label + "unavailable: " + sum.err.Error())
	default:
		return label + fmt.Sprintf("%d enabled • %d consumed • %d available",
			sum.totals.Enabled, sum.totals.Consumed, sum.totals.Available)
	}
}

func (v *View) renderConsent(h *domain.ConsentHandoff) string {
	lines := []string{
		lipgloss.NewStyle().Bold(true).Render("Awaiting admin consent"),
		h.Message,
		"Send this URL to a Global Administrator of the tenant:",
		h.ConsentURL,
		v.styles.Subtle.Render(fmt.Sprintf("Requires %s to be granted beforehand.", microsoft.PrerequisitePermission)),
	}
	return v.styles.Box.Render(strings.Join(lines, "\n"))
}
