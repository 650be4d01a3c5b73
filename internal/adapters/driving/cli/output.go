package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/m365ctl/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/m365ctl/internal/core/domain"
)

// format is an output format.
type format string

const (
	formatTable format = "table"
	formatJSON  format = "json"
	formatYAML  format = "yaml"
)

func parseFormat(s string) (format, error) {
	switch f := format(strings.ToLower(s)); f {
	case formatTable, formatJSON, formatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown output format %q (use table, json or yaml)", domain.ErrInvalidInput, s)
	}
}

func currentFormat() format {
	f, err := parseFormat(outputFormat)
	if err != nil {
		return formatTable
	}
	return f
}

// render writes v in the selected format. tbl builds the table view.
func render(cmd *cobra.Command, v any, tbl func() *table.Table) error {
	out := cmd.OutOrStdout()
	switch currentFormat() {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	case formatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case formatTable:
		fmt.Fprintln(out, tbl().String())
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", outputFormat)
	}
}

// renderMessage writes a server acknowledgement.
func renderMessage(cmd *cobra.Command, res *domain.MessageResult) error {
	if currentFormat() != formatTable {
		return render(cmd, res, nil)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Combined())
	return nil
}

var tableStyles = styles.DefaultStyles()

// newTable returns a bordered table with the standard header style.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableStyles.Subtle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableStyles.Header
			}
			return tableStyles.Cell
		})
}

// keyValueTable renders label/value pairs.
func keyValueTable(pairs [][2]string) *table.Table {
	t := newTable("FIELD", "VALUE")
	for _, p := range pairs {
		t.Row(p[0], p[1])
	}
	return t
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// formatTime renders an optional timestamp.
func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
