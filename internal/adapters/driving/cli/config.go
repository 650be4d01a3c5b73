package cli

import (
	"errors"
	"strconv"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/m365ctl/internal/config"
)

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Show or change m365ctl settings",
	Annotations: public(),
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective settings",
	RunE:  runConfigShow,
}

var configSetServerCmd = &cobra.Command{
	Use:   "set-server <url>",
	Short: "Set the backend API base URL",
	Long: `Set the backend API base URL and save it to the config file.

The change takes effect on the next command. Log in again if the new server
is a different installation.`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigSetServer,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetServerCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if settings == nil {
		return errors.New("settings not loaded")
	}
	cfg := settings
	return render(cmd, cfg, func() *table.Table {
		return keyValueTable([][2]string{
			{"Config file", configPath},
			{"server.base_url", cfg.Server.BaseURL},
			{"server.timeout", cfg.Server.Timeout.Std().String()},
			{"cache.ttl", cfg.Cache.TTL.Std().String()},
			{"sweep.concurrency", strconv.Itoa(cfg.Sweep.Concurrency)},
			{"sweep.requests_per_second", strconv.FormatFloat(cfg.Sweep.RequestsPerSecond, 'g', -1, 64)},
			{"log.format", cfg.Log.Format},
			{"log.verbose", strconv.FormatBool(cfg.Log.Verbose)},
		})
	})
}

func runConfigSetServer(cmd *cobra.Command, args []string) error {
	if err := config.ValidateBaseURL(args[0]); err != nil {
		return err
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	cfg.Server.BaseURL = args[0]
	if err := config.Save(configPath, cfg); err != nil {
		return err
	}
	if settings != nil {
		settings.Server.BaseURL = args[0]
	}
	cmd.Printf("Server set to %s\n", args[0])
	return nil
}
