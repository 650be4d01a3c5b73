package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
)

var domainCmd = &cobra.Command{
	Use:   "domain",
	Short: "Manage organisation domains of a tenant",
}

var domainListCmd = &cobra.Command{
	Use:   "list",
	Short: "List domains",
	RunE:  runDomainList,
}

var domainGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show a domain",
	Args:  cobra.ExactArgs(1),
	RunE:  runDomainGet,
}

var domainAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a domain to the organisation",
	Args:  cobra.ExactArgs(1),
	RunE:  runDomainAdd,
}

var domainVerifyCmd = &cobra.Command{
	Use:   "verify <name>",
	Short: "Ask Microsoft to verify domain ownership",
	Args:  cobra.ExactArgs(1),
	RunE:  runDomainVerify,
}

var domainDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a domain",
	Long: `Delete a domain from the organisation. Microsoft completes the removal
asynchronously, which can take up to 24 hours; the domain stays listed
until then.`,
	Args: cobra.ExactArgs(1),
	RunE: runDomainDelete,
}

var domainYes bool

func init() {
	domainDeleteCmd.Flags().BoolVarP(&domainYes, "yes", "y", false, "do not ask for confirmation")

	addTenantFlag(domainCmd)
	domainCmd.AddCommand(domainListCmd)
	domainCmd.AddCommand(domainGetCmd)
	domainCmd.AddCommand(domainAddCmd)
	domainCmd.AddCommand(domainVerifyCmd)
	domainCmd.AddCommand(domainDeleteCmd)
	rootCmd.AddCommand(domainCmd)
}

var errDomainsNotConfigured = errors.New("domain service not configured")

func domainPairs(d *domain.OrgDomain) [][2]string {
	return [][2]string{
		{"Name", d.Name},
		{"Authentication", d.AuthenticationType},
		{"Default", yesNo(d.IsDefault)},
		{"Verified", yesNo(d.IsVerified)},
		{"Services", strings.Join(d.SupportedServices, ", ")},
	}
}

func runDomainList(cmd *cobra.Command, _ []string) error {
	if domainService == nil {
		return errDomainsNotConfigured
	}
	tid, err := tenantFlag()
	if err != nil {
		return err
	}
	ds, err := domainService.List(ctxOf(cmd), tid)
	if err != nil {
		return fmt.Errorf("failed to list domains: %w", err)
	}
	return render(cmd, ds, func() *table.Table {
		t := newTable("NAME", "AUTHENTICATION", "DEFAULT", "VERIFIED")
		for i := range ds {
			t.Row(ds[i].Name, ds[i].AuthenticationType, yesNo(ds[i].IsDefault), yesNo(ds[i].IsVerified))
		}
		return t
	})
}

func runDomainGet(cmd *cobra.Command, args []string) error {
	if domainService == nil {
		return errDomainsNotConfigured
	}
	tid, err := tenantFlag()
	if err != nil {
		return err
	}
	d, err := domainService.Get(ctxOf(cmd), tid, args[0])
	if err != nil {
		return fmt.Errorf("failed to get domain: %w", err)
	}
	return render(cmd, d, func() *table.Table { return keyValueTable(domainPairs(d)) })
}

func runDomainAdd(cmd *cobra.Command, args []string) error {
	if domainService == nil {
		return errDomainsNotConfigured
	}
	tid, err := tenantFlag()
	if err != nil {
		return err
	}
	d, err := domainService.Create(ctxOf(cmd), tid, args[0])
	if err != nil {
		return fmt.Errorf("failed to add domain: %w", err)
	}
	cmd.Printf("Domain %s added. Publish the DNS records shown in the Microsoft 365 admin centre, then run 'm365ctl domain verify %s'.\n",
		d.Name, d.Name)
	return nil
}

func runDomainVerify(cmd *cobra.Command, args []string) error {
	if domainService == nil {
		return errDomainsNotConfigured
	}
	tid, err := tenantFlag()
	if err != nil {
		return err
	}
	d, err := domainService.Verify(ctxOf(cmd), tid, args[0])
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	if d.IsVerified {
		cmd.Printf("Domain %s verified.\n", d.Name)
	} else {
		cmd.Printf("Domain %s is not verified yet. DNS changes can take a while to propagate.\n", d.Name)
	}
	return nil
}

func runDomainDelete(cmd *cobra.Command, args []string) error {
	if domainService == nil {
		return errDomainsNotConfigured
	}
	tid, err := tenantFlag()
	if err != nil {
		return err
	}
	if !domainYes {
		ok, err := newPrompter(cmd).confirm(fmt.Sprintf("Delete domain %s?", args[0]))
		if err != nil {
			return err
		}
		if !ok {
			cmd.Println("Aborted.")
			return nil
		}
	}
	res, err := domainService.Delete(ctxOf(cmd), tid, args[0])
	if err != nil {
		return fmt.Errorf("failed to delete domain: %w", err)
	}
	return renderMessage(cmd, res)
}
