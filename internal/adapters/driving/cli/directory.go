package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
)

// dirTenant is the --tenant flag shared by the directory command groups.
var dirTenant int64

// addTenantFlag registers the required --tenant flag on a command group.
func addTenantFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Int64VarP(&dirTenant, "tenant", "t", 0, "local tenant id (see 'm365ctl tenant list')")
	_ = cmd.MarkPersistentFlagRequired("tenant") //nolint:errcheck // flag registered above
}

// tenantFlag returns the validated --tenant value.
func tenantFlag() (int64, error) {
	if dirTenant <= 0 {
		return 0, fmt.Errorf("%w: --tenant must be a positive tenant id", domain.ErrInvalidInput)
	}
	return dirTenant, nil
}
