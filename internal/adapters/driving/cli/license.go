package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
)

var licenseCmd = &cobra.Command{
	Use:   "license",
	Short: "Show license pools of a tenant",
}

var licenseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscribed SKUs with unit counts",
	Long: `List the subscribed SKUs of a tenant. Snapshots are cached briefly;
use --refresh to fetch current counts from Microsoft.`,
	RunE: runLicenseList,
}

var licenseRefresh bool

func init() {
	licenseListCmd.Flags().BoolVar(&licenseRefresh, "refresh", false, "bypass the cache and fetch current counts")

	addTenantFlag(licenseCmd)
	licenseCmd.AddCommand(licenseListCmd)
	rootCmd.AddCommand(licenseCmd)
}

var errLicensesNotConfigured = errors.New("license service not configured")

// licenseReport is the structured output of license list.
type licenseReport struct {
	Licenses []domain.License     `json:"licenses" yaml:"licenses"`
	Totals   domain.LicenseTotals `json:"totals" yaml:"totals"`
}

func runLicenseList(cmd *cobra.Command, _ []string) error {
	if licenseService == nil {
		return errLicensesNotConfigured
	}
	tid, err := tenantFlag()
	if err != nil {
		return err
	}

	var ls []domain.License
	if licenseRefresh {
		ls, err = licenseService.Refresh(ctxOf(cmd), tid)
	} else {
		ls, err = licenseService.List(ctxOf(cmd), tid)
	}
	if err != nil {
		return fmt.Errorf("failed to list licenses: %w", err)
	}

	rep := licenseReport{Licenses: ls, Totals: domain.SumLicenses(ls)}
	return render(cmd, rep, func() *table.Table {
		t := newTable("SKU", "PART NUMBER", "ENABLED", "CONSUMED", "AVAILABLE", "EXPIRES")
		for i := range ls {
			l := &ls[i]
			t.Row(l.Name(), l.SkuPartNumber,
				strconv.Itoa(l.EnabledUnits), strconv.Itoa(l.ConsumedUnits), strconv.Itoa(l.AvailableUnits),
				formatTime(l.ExpiresAt))
		}
		t.Row("Total", "",
			strconv.Itoa(rep.Totals.Enabled), strconv.Itoa(rep.Totals.Consumed), strconv.Itoa(rep.Totals.Available), "")
		return t
	})
}
