package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/m365ctl/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/m365ctl/internal/core/domain"
	"github.com/custodia-labs/m365ctl/internal/core/ports/driving"
	"github.com/custodia-labs/m365ctl/internal/microsoft"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage registered tenants",
	Long: `Register Microsoft 365 tenants (Entra ID app registrations), check their
credentials and SharePoint Online availability, rotate client secrets and
bootstrap Graph permissions.`,
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenants",
	RunE:  runTenantList,
}

var tenantGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a tenant",
	Args:  cobra.ExactArgs(1),
	RunE:  runTenantGet,
}

var tenantAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a tenant",
	Long: `Register a tenant by its directory ID and app registration.

The client secret is always prompted for and never shown again.

Examples:
  m365ctl tenant add --tenant-id contoso.onmicrosoft.com --client-id <app-id> --name Contoso`,
	RunE: runTenantAdd,
}

var tenantUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a tenant",
	Long: `Update tenant fields. Only the flags given are changed.

The directory tenant ID cannot be changed; delete and re-add the tenant instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runTenantUpdate,
}

var tenantDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a tenant",
	Args:  cobra.ExactArgs(1),
	RunE:  runTenantDelete,
}

var tenantValidateCmd = &cobra.Command{
	Use:   "validate <id>",
	Short: "Check the tenant's client credentials",
	Args:  cobra.ExactArgs(1),
	RunE:  runTenantValidate,
}

var tenantSpoCmd = &cobra.Command{
	Use:   "spo <id>",
	Short: "Check SharePoint Online availability",
	Args:  cobra.ExactArgs(1),
	RunE:  runTenantSpo,
}

var tenantRotateSecretCmd = &cobra.Command{
	Use:   "rotate-secret <id>",
	Short: "Create a new client secret",
	Long: `Create a new client secret for the tenant's app registration.

Previous secrets are kept unless --delete-old is given. Deleting the old secret
breaks anything else still using it.`,
	Args: cobra.ExactArgs(1),
	RunE: runTenantRotateSecret,
}

var tenantConfigurePermissionsCmd = &cobra.Command{
	Use:   "configure-permissions <id>",
	Short: "Configure Graph permissions and print the admin consent URL",
	Long: fmt.Sprintf(`Add the Graph application permissions m365ctl needs to the tenant's app
registration and print the admin consent URL.

%s must already be granted to the app. A Global Administrator of the
tenant has to open the consent URL; m365ctl cannot observe when that happens.
Run 'm365ctl tenant validate' afterwards.`, microsoft.PrerequisitePermission),
	Args: cobra.ExactArgs(1),
	RunE: runTenantConfigurePermissions,
}

var tenantCheckCmd = &cobra.Command{
	Use:   "check [id...]",
	Short: "Check several tenants at once",
	Long: `Validate credentials and/or check SharePoint Online for several tenants.

Without --validate or --spo both checks run. Failures are reported per tenant
and do not stop the other checks.

Examples:
  m365ctl tenant check --all
  m365ctl tenant check 1 3 --spo`,
	RunE: runTenantCheck,
}

// Flags for tenant commands.
var (
	tenantDirectoryID string
	tenantClientID    string
	tenantName        string
	tenantRemarks     string
	tenantActive      bool
	tenantNewSecret   bool
	tenantYes         bool
	tenantDeleteOld   bool
	tenantCheckAll    bool
	tenantCheckVal    bool
	tenantCheckSpo    bool
)

func init() {
	tenantAddCmd.Flags().StringVar(&tenantDirectoryID, "tenant-id", "", "directory (tenant) ID or initial domain")
	tenantAddCmd.Flags().StringVar(&tenantClientID, "client-id", "", "application (client) ID")
	tenantAddCmd.Flags().StringVar(&tenantName, "name", "", "display name")
	tenantAddCmd.Flags().StringVar(&tenantRemarks, "remarks", "", "free-form remarks")

	tenantUpdateCmd.Flags().StringVar(&tenantClientID, "client-id", "", "new application (client) ID")
	tenantUpdateCmd.Flags().StringVar(&tenantName, "name", "", "new display name")
	tenantUpdateCmd.Flags().StringVar(&tenantRemarks, "remarks", "", "new remarks")
	tenantUpdateCmd.Flags().BoolVar(&tenantActive, "active", true, "mark the tenant active or inactive")
	tenantUpdateCmd.Flags().BoolVar(&tenantNewSecret, "client-secret", false, "prompt for a replacement client secret")

	tenantDeleteCmd.Flags().BoolVarP(&tenantYes, "yes", "y", false, "do not ask for confirmation")

	tenantRotateSecretCmd.Flags().BoolVar(&tenantDeleteOld, "delete-old", false, "delete the previous secret")
	tenantRotateSecretCmd.Flags().BoolVarP(&tenantYes, "yes", "y", false, "do not ask for confirmation")

	tenantCheckCmd.Flags().BoolVar(&tenantCheckAll, "all", false, "check every tenant")
	tenantCheckCmd.Flags().BoolVar(&tenantCheckVal, "validate", false, "validate credentials")
	tenantCheckCmd.Flags().BoolVar(&tenantCheckSpo, "spo", false, "check SharePoint Online")

	tenantCmd.AddCommand(tenantListCmd)
	tenantCmd.AddCommand(tenantGetCmd)
	tenantCmd.AddCommand(tenantAddCmd)
	tenantCmd.AddCommand(tenantUpdateCmd)
	tenantCmd.AddCommand(tenantDeleteCmd)
	tenantCmd.AddCommand(tenantValidateCmd)
	tenantCmd.AddCommand(tenantSpoCmd)
	tenantCmd.AddCommand(tenantRotateSecretCmd)
	tenantCmd.AddCommand(tenantConfigurePermissionsCmd)
	tenantCmd.AddCommand(tenantCheckCmd)
	rootCmd.AddCommand(tenantCmd)
}

var errTenantsNotConfigured = errors.New("tenant service not configured")

// parseID parses a local tenant ID argument.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid tenant id %q", domain.ErrInvalidInput, s)
	}
	return id, nil
}

func runTenantList(cmd *cobra.Command, _ []string) error {
	if tenantWorkflow == nil {
		return errTenantsNotConfigured
	}
	list, err := tenantWorkflow.List(ctxOf(cmd))
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}
	if len(list.Items) == 0 && currentFormat() == formatTable {
		cmd.Println("No tenants registered. Add one with 'm365ctl tenant add'.")
		return nil
	}
	return render(cmd, list, func() *table.Table {
		t := newTable("ID", "NAME", "TENANT ID", "ACTIVE", "CREDENTIALS", "SPO", "SECRET EXPIRES")
		for i := range list.Items {
			tn := &list.Items[i]
			t.Row(
				strconv.FormatInt(tn.ID, 10),
				tn.DisplayName(),
				tn.TenantID,
				yesNo(tn.IsActive),
				styles.CredentialBadge(tn.CredentialStatus),
				styles.SpoBadge(tn.SpoStatus),
				formatTime(tn.ClientSecretExpiresAt),
			)
		}
		return t
	})
}

func runTenantGet(cmd *cobra.Command, args []string) error {
	if tenantWorkflow == nil {
		return errTenantsNotConfigured
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	tn, err := tenantWorkflow.Get(ctxOf(cmd), id)
	if err != nil {
		return fmt.Errorf("failed to get tenant: %w", err)
	}
	return render(cmd, tn, func() *table.Table {
		return keyValueTable([][2]string{
			{"ID", strconv.FormatInt(tn.ID, 10)},
			{"Name", tn.TenantName},
			{"Tenant ID", tn.TenantID},
			{"Client ID", tn.ClientID},
			{"Active", yesNo(tn.IsActive)},
			{"Remarks", tn.Remarks},
			{"Credentials", styles.CredentialBadge(tn.CredentialStatus)},
			{"Credential message", tn.CredentialMessage},
			{"Credentials checked", formatTime(tn.CredentialCheckedAt)},
			{"SharePoint Online", styles.SpoBadge(tn.SpoStatus)},
			{"SPO message", tn.SpoMessage},
			{"SPO checked", formatTime(tn.SpoCheckedAt)},
			{"Secret expires", formatTime(tn.ClientSecretExpiresAt)},
			{"Created", formatTime(&tn.CreatedAt)},
			{"Updated", formatTime(tn.UpdatedAt)},
		})
	})
}

func runTenantAdd(cmd *cobra.Command, _ []string) error {
	if tenantWorkflow == nil {
		return errTenantsNotConfigured
	}

	p := newPrompter(cmd)
	req := domain.TenantCreate{TenantName: tenantName, Remarks: tenantRemarks}
	var err error
	if req.TenantID, err = p.valueOr(tenantDirectoryID, "Tenant ID"); err != nil {
		return err
	}
	if req.ClientID, err = p.valueOr(tenantClientID, "Client ID"); err != nil {
		return err
	}
	if req.ClientSecret, err = p.secret("Client secret"); err != nil {
		return err
	}

	tn, err := tenantWorkflow.Create(ctxOf(cmd), req)
	if err != nil {
		return fmt.Errorf("failed to add tenant: %w", err)
	}
	cmd.Printf("Tenant %d (%s) registered. Check it with 'm365ctl tenant validate %d'.\n", tn.ID, tn.DisplayName(), tn.ID)
	return nil
}

func runTenantUpdate(cmd *cobra.Command, args []string) error {
	if tenantWorkflow == nil {
		return errTenantsNotConfigured
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	var req domain.TenantUpdate
	flags := cmd.Flags()
	if flags.Changed("client-id") {
		req.ClientID = &tenantClientID
	}
	if flags.Changed("name") {
		req.TenantName = &tenantName
	}
	if flags.Changed("remarks") {
		req.Remarks = &tenantRemarks
	}
	if flags.Changed("active") {
		req.IsActive = &tenantActive
	}
	if tenantNewSecret {
		secret, err := newPrompter(cmd).secret("New client secret")
		if err != nil {
			return err
		}
		req.ClientSecret = &secret
	}

	tn, err := tenantWorkflow.Update(ctxOf(cmd), id, req)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	cmd.Printf("Tenant %d (%s) updated.\n", tn.ID, tn.DisplayName())
	return nil
}

func runTenantDelete(cmd *cobra.Command, args []string) error {
	if tenantWorkflow == nil {
		return errTenantsNotConfigured
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	if !tenantYes {
		ok, err := newPrompter(cmd).confirm(fmt.Sprintf("Delete tenant %d?", id))
		if err != nil {
			return err
		}
		if !ok {
			cmd.Println("Aborted.")
			return nil
		}
	}

	if err := tenantWorkflow.Delete(ctxOf(cmd), id); err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	cmd.Printf("Tenant %d deleted.\n", id)
	return nil
}

func runTenantValidate(cmd *cobra.Command, args []string) error {
	if tenantWorkflow == nil {
		return errTenantsNotConfigured
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	res, err := tenantWorkflow.Validate(ctxOf(cmd), id)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return renderMessage(cmd, res)
}

func runTenantSpo(cmd *cobra.Command, args []string) error {
	if tenantWorkflow == nil {
		return errTenantsNotConfigured
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	res, err := tenantWorkflow.CheckSpo(ctxOf(cmd), id)
	if err != nil {
		return fmt.Errorf("SharePoint Online check failed: %w", err)
	}
	if currentFormat() != formatTable {
		return render(cmd, res, nil)
	}
	cmd.Printf("%s  %s\n", styles.SpoBadge(res.Status), res.Message)
	return nil
}

func runTenantRotateSecret(cmd *cobra.Command, args []string) error {
	if tenantWorkflow == nil {
		return errTenantsNotConfigured
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	opts := domain.RotateSecretOptions{DeleteOld: tenantDeleteOld}
	if opts.DeleteOld && !tenantYes {
		ok, err := newPrompter(cmd).confirm("The previous secret will be deleted and anything using it will stop working. Continue?")
		if err != nil {
			return err
		}
		if !ok {
			cmd.Println("Aborted.")
			return nil
		}
	}

	res, err := tenantWorkflow.RotateSecret(ctxOf(cmd), id, opts)
	if err != nil {
		return fmt.Errorf("secret rotation failed: %w", err)
	}
	return renderMessage(cmd, res)
}

func runTenantConfigurePermissions(cmd *cobra.Command, args []string) error {
	if tenantWorkflow == nil {
		return errTenantsNotConfigured
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	h, err := tenantWorkflow.ConfigurePermissions(ctxOf(cmd), id)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return fmt.Errorf("permission setup failed: %w (is %s granted to the app?)", err, microsoft.PrerequisitePermission)
		}
		return fmt.Errorf("permission setup failed: %w", err)
	}

	if currentFormat() != formatTable {
		return render(cmd, h, nil)
	}
	cmd.Println(h.Message)
	if len(h.Permissions) > 0 {
		cmd.Printf("Permissions: %s\n", strings.Join(h.Permissions, ", "))
	}
	cmd.Println()
	cmd.Println("Awaiting admin consent. Send this URL to a Global Administrator of the tenant:")
	fmt.Fprintln(cmd.OutOrStdout(), h.ConsentURL)
	cmd.Println()
	cmd.Printf("After consent is granted, run 'm365ctl tenant validate %d'.\n", id)
	return nil
}

func runTenantCheck(cmd *cobra.Command, args []string) error {
	if sweeper == nil {
		return errors.New("sweeper not configured")
	}
	if len(args) == 0 && !tenantCheckAll {
		return fmt.Errorf("%w: give tenant ids or --all", domain.ErrInvalidInput)
	}
	if len(args) > 0 && tenantCheckAll {
		return fmt.Errorf("%w: tenant ids and --all are mutually exclusive", domain.ErrInvalidInput)
	}

	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := parseID(a)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	results, err := sweeper.Run(ctxOf(cmd), ids, driving.SweepCheck{Validate: tenantCheckVal, Spo: tenantCheckSpo})
	if err != nil && len(results) == 0 {
		return fmt.Errorf("tenant check failed: %w", err)
	}

	if rerr := render(cmd, sweepRows(results), func() *table.Table { return sweepTable(results) }); rerr != nil {
		return rerr
	}
	if err != nil {
		return fmt.Errorf("tenant check interrupted: %w", err)
	}

	failed := 0
	for i := range results {
		if results[i].Failed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tenants had failing checks", failed, len(results))
	}
	return nil
}

// sweepRow is the serialisable form of a sweep result.
type sweepRow struct {
	ID          int64            `json:"id" yaml:"id"`
	Name        string           `json:"name" yaml:"name"`
	Validate    string           `json:"validate,omitempty" yaml:"validate,omitempty"`
	ValidateErr string           `json:"validate_error,omitempty" yaml:"validate_error,omitempty"`
	Spo         domain.SpoStatus `json:"spo,omitempty" yaml:"spo,omitempty"`
	SpoMessage  string           `json:"spo_message,omitempty" yaml:"spo_message,omitempty"`
	SpoErr      string           `json:"spo_error,omitempty" yaml:"spo_error,omitempty"`
}

func sweepRows(results []driving.SweepResult) []sweepRow {
	rows := make([]sweepRow, len(results))
	for i := range results {
		r := &results[i]
		row := sweepRow{ID: r.Tenant.ID, Name: r.Tenant.DisplayName()}
		if r.Validate != nil {
			row.Validate = r.Validate.Combined()
		}
		if r.ValidateErr != nil {
			row.ValidateErr = r.ValidateErr.Error()
		}
		if r.Spo != nil {
			row.Spo = r.Spo.Status
			row.SpoMessage = r.Spo.Message
		}
		if r.SpoErr != nil {
			row.SpoErr = r.SpoErr.Error()
		}
		rows[i] = row
	}
	return rows
}

func sweepTable(results []driving.SweepResult) *table.Table {
	t := newTable("ID", "NAME", "CREDENTIALS", "SPO")
	for i := range results {
		r := &results[i]
		cred := "-"
		switch {
		case r.ValidateErr != nil:
			cred = tableStyles.Error.Render(r.ValidateErr.Error())
		case r.Validate != nil:
			cred = r.Validate.Combined()
		}
		spo := "-"
		switch {
		case r.SpoErr != nil:
			spo = tableStyles.Error.Render(r.SpoErr.Error())
		case r.Spo != nil:
			spo = styles.SpoBadge(r.Spo.Status)
		}
		t.Row(strconv.FormatInt(r.Tenant.ID, 10), r.Tenant.DisplayName(), cred, spo)
	}
	return t
}
