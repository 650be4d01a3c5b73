package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Fetch organisation details and usage reports",
}

var reportOrgCmd = &cobra.Command{
	Use:   "organization",
	Short: "Show the organisation profile",
	Long: `Show a summary of the tenant's organisation profile. With -o json the
profile is printed exactly as returned by the server.`,
	Aliases: []string{"org"},
	RunE:    runReportOrg,
}

var reportOneDriveCmd = &cobra.Command{
	Use:   "onedrive",
	Short: "Download the OneDrive usage report (CSV)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runReportUsage(cmd, domain.ReportOneDrive)
	},
}

var reportExchangeCmd = &cobra.Command{
	Use:   "exchange",
	Short: "Download the Exchange mailbox usage report (CSV)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runReportUsage(cmd, domain.ReportExchange)
	},
}

// Flags for report commands.
var (
	reportPeriod string
	reportOut    string
)

func init() {
	for _, c := range []*cobra.Command{reportOneDriveCmd, reportExchangeCmd} {
		c.Flags().StringVar(&reportPeriod, "period", string(domain.DefaultReportPeriod), "look-back period: D7, D30, D90 or D180")
		c.Flags().StringVar(&reportOut, "out", "", "output file, or - for stdout (default: generated file name)")
	}

	addTenantFlag(reportCmd)
	reportCmd.AddCommand(reportOrgCmd)
	reportCmd.AddCommand(reportOneDriveCmd)
	reportCmd.AddCommand(reportExchangeCmd)
	rootCmd.AddCommand(reportCmd)
}

var errReportsNotConfigured = errors.New("report service not configured")

// orgSummary extracts the fields shown for an organisation profile.
// Graph wraps the profile in a value array; a bare object is accepted too.
func orgSummary(raw []byte) [][2]string {
	org := gjson.ParseBytes(raw)
	if first := org.Get("value.0"); first.Exists() {
		org = first
	}
	return [][2]string{
		{"Name", org.Get("displayName").String()},
		{"Tenant ID", org.Get("id").String()},
		{"Country", org.Get("countryLetterCode").String()},
		{"Type", org.Get("tenantType").String()},
		{"Default domain", org.Get(`verifiedDomains.#(isDefault==true).name`).String()},
		{"Verified domains", org.Get("verifiedDomains.#").String()},
	}
}

func runReportOrg(cmd *cobra.Command, _ []string) error {
	if reportService == nil {
		return errReportsNotConfigured
	}
	tid, err := tenantFlag()
	if err != nil {
		return err
	}
	org, err := reportService.Organization(ctxOf(cmd), tid)
	if err != nil {
		return fmt.Errorf("failed to get organisation: %w", err)
	}
	if !gjson.ValidBytes(org.Raw) {
		return fmt.Errorf("%w: organisation profile is not valid JSON", domain.ErrServer)
	}

	var doc any
	if currentFormat() != formatTable {
		if err := json.Unmarshal(org.Raw, &doc); err != nil {
			return fmt.Errorf("failed to decode organisation: %w", err)
		}
	}
	return render(cmd, doc, func() *table.Table { return keyValueTable(orgSummary(org.Raw)) })
}

func runReportUsage(cmd *cobra.Command, kind domain.ReportKind) error {
	if reportService == nil {
		return errReportsNotConfigured
	}
	tid, err := tenantFlag()
	if err != nil {
		return err
	}
	period, err := domain.ParseReportPeriod(reportPeriod)
	if err != nil {
		return err
	}
	rep, err := reportService.Usage(ctxOf(cmd), tid, kind, period)
	if err != nil {
		return fmt.Errorf("failed to download report: %w", err)
	}

	if reportOut == "-" {
		_, err := cmd.OutOrStdout().Write(rep.Data)
		return err
	}
	path := reportOut
	if path == "" {
		path = rep.Filename
	}
	if err := os.WriteFile(path, rep.Data, 0o600); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	cmd.Printf("Saved %s report (%s) to %s (%d bytes).\n", kind, period, path, len(rep.Data))
	return nil
}
