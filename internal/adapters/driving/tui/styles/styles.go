// Package styles holds the lipgloss styles shared by the TUI and CLI tables.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
)

// Palette.
var (
	ColorPrimary = lipgloss.Color("#2563EB")
	ColorSuccess = lipgloss.Color("#16A34A")
	ColorWarning = lipgloss.Color("#D97706")
	ColorError   = lipgloss.Color("#DC2626")
	ColorMuted   = lipgloss.Color("#6B7280")
)

// Styles groups the styles used across views.
type Styles struct {
	Title    lipgloss.Style
	Subtle   lipgloss.Style
	Selected lipgloss.Style
	Header   lipgloss.Style
	Cell     lipgloss.Style
	Error    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Help     lipgloss.Style
	Box      lipgloss.Style
}

// DefaultStyles returns the standard style set.
func DefaultStyles() *Styles {
	return &Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary),
		Subtle:   lipgloss.NewStyle().Foreground(ColorMuted),
		Selected: lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary),
		Header:   lipgloss.NewStyle().Bold(true).Padding(0, 1),
		Cell:     lipgloss.NewStyle().Padding(0, 1),
		Error:    lipgloss.NewStyle().Foreground(ColorError),
		Success:  lipgloss.NewStyle().Foreground(ColorSuccess),
		Warning:  lipgloss.NewStyle().Foreground(ColorWarning),
		Help:     lipgloss.NewStyle().Foreground(ColorMuted).Italic(true),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorWarning).
			Padding(0, 1),
	}
}

func badge(color lipgloss.Color, label string) string {
	return lipgloss.NewStyle().Foreground(color).Render("● " + label)
}

// CredentialColor maps a credential status to its badge colour.
func CredentialColor(s domain.CredentialStatus) lipgloss.Color {
	switch s {
	case domain.CredentialValid:
		return ColorSuccess
	case domain.CredentialInvalid:
		return ColorError
	case domain.CredentialUnknown:
		return ColorMuted
	default:
		return ColorMuted
	}
}

// SpoColor maps an SPO status to its badge colour.
func SpoColor(s domain.SpoStatus) lipgloss.Color {
	switch s {
	case domain.SpoAvailable:
		return ColorSuccess
	case domain.SpoUnavailable, domain.SpoNoSubscription:
		return ColorWarning
	case domain.SpoError:
		return ColorError
	case domain.SpoUnknown:
		return ColorMuted
	default:
		return ColorMuted
	}
}

// CredentialBadge renders a coloured credential status.
func CredentialBadge(s domain.CredentialStatus) string {
	return badge(CredentialColor(s), s.Label())
}

// SpoBadge renders a coloured SPO status.
func SpoBadge(s domain.SpoStatus) string {
	return badge(SpoColor(s), s.Label())
}
