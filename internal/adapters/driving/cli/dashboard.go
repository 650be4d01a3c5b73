package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/m365ctl/internal/adapters/driving/tui"
)

// tuiConfig holds the dashboard dependencies.
var tuiConfig *tui.Config

// SetTUIConfig sets the dashboard dependencies.
func SetTUIConfig(cfg *tui.Config) {
	tuiConfig = cfg
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open the interactive tenant dashboard",
	Long: `Open the interactive tenant dashboard.

Keys:
  up/down  select a tenant
  v        validate credentials
  s        check SharePoint Online
  x        rotate the client secret
  p        configure permissions and show the admin consent link
  d        dismiss the consent link
  r        reload
  q        quit

The dashboard closes when the session ends, including a logout from
another terminal.`,
	Aliases: []string{"ui"},
	RunE:    runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, _ []string) error {
	if tuiConfig == nil {
		return errors.New("dashboard not configured")
	}
	return tui.Run(ctxOf(cmd), *tuiConfig)
}
