package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage directory users of a tenant",
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE:  runUserList,
}

var userSearchCmd = &cobra.Command{
	Use:   "search <keyword>",
	Short: "Search users by name or address",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserSearch,
}

var userGetCmd = &cobra.Command{
	Use:   "get <user-id>",
	Short: "Show a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserGet,
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user",
	Long: `Create a directory user. The initial password is prompted for.

Examples:
  m365ctl user create -t 1 --display-name "Alice Smith" --upn alice@contoso.com`,
	RunE: runUserCreate,
}

var userBatchCreateCmd = &cobra.Command{
	Use:   "batch-create",
	Short: "Create users from a YAML or JSON file",
	Long: `Create several users from a file holding a list of users:

  - display_name: Alice Smith
    user_principal_name: alice@contoso.com
    password: Initial-Passw0rd
    usage_location: GB

Every entry is checked before anything is sent. The server reports success
or failure per user.`,
	RunE: runUserBatchCreate,
}

var userUpdateCmd = &cobra.Command{
	Use:   "update <user-id>",
	Short: "Update a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserUpdate,
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Delete a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserDelete,
}

var userEnableCmd = &cobra.Command{
	Use:   "enable <user-id>",
	Short: "Enable sign-in for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setUserEnabled(cmd, args[0], true)
	},
}

var userDisableCmd = &cobra.Command{
	Use:   "disable <user-id>",
	Short: "Block sign-in for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setUserEnabled(cmd, args[0], false)
	},
}

// Flags for user commands.
var (
	userTop           int
	userDisplayName   string
	userUPN           string
	userUsageLocation string
	userNoForceChange bool
	userDisabled      bool
	userEnabled       bool
	userNewName       string
	userNewLocation   string
	userFile          string
	userYes           bool
)

func init() {
	userListCmd.Flags().IntVar(&userTop, "top", 0, "maximum number of users (0 for the server default)")

	userCreateCmd.Flags().StringVar(&userDisplayName, "display-name", "", "display name")
	userCreateCmd.Flags().StringVar(&userUPN, "upn", "", "user principal name (user@domain)")
	userCreateCmd.Flags().StringVar(&userUsageLocation, "usage-location", domain.DefaultUsageLocation, "two-letter usage location")
	userCreateCmd.Flags().BoolVar(&userNoForceChange, "no-force-change", false, "do not require a password change at first sign-in")
	userCreateCmd.Flags().BoolVar(&userDisabled, "disabled", false, "create the account blocked")

	userBatchCreateCmd.Flags().StringVarP(&userFile, "file", "f", "", "file with the users to create")
	_ = userBatchCreateCmd.MarkFlagRequired("file") //nolint:errcheck // flag registered above

	userUpdateCmd.Flags().StringVar(&userNewName, "display-name", "", "new display name")
	userUpdateCmd.Flags().StringVar(&userNewLocation, "usage-location", "", "new usage location")
	userUpdateCmd.Flags().BoolVar(&userEnabled, "enabled", true, "enable or block sign-in")

	userDeleteCmd.Flags().BoolVarP(&userYes, "yes", "y", false, "do not ask for confirmation")

	addTenantFlag(userCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userSearchCmd)
	userCmd.AddCommand(userGetCmd)
	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userBatchCreateCmd)
	userCmd.AddCommand(userUpdateCmd)
	userCmd.AddCommand(userDeleteCmd)
	userCmd.AddCommand(userEnableCmd)
	userCmd.AddCommand(userDisableCmd)
	rootCmd.AddCommand(userCmd)
}

var errUsersNotConfigured = errors.New("user service not configured")

func usersTable(users []domain.DirectoryUser) *table.Table {
	t := newTable("ID", "DISPLAY NAME", "USER PRINCIPAL NAME", "ENABLED", "LOCATION")
	for i := range users {
		u := &users[i]
		t.Row(u.ID, u.DisplayName, u.UserPrincipalName, yesNo(u.AccountEnabled), u.UsageLocation)
	}
	return t
}

func runUserList(cmd *cobra.Command, _ []string) error {
	if userService == nil {
		return errUsersNotConfigured
	}
	tid, err := tenantFlag()
	if err != nil {
		return err
	}
	users, err := userService.List(ctxOf(cmd), tid, userTop)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	return render(cmd, users, func() *table.Table { return usersTable(users) })
}

func runUserSearch(cmd *cobra.Command, args []string) error {
	if userService == nil {
		return errUsersNotConfigured
	}
	tid, err := tenantFlag()
	if err != nil {
		return err
	}
	users, err := userService.Search(ctxOf(cmd), tid, args[0])
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return render(cmd, users, func() *table.Table { return usersTable(users) })
}

func runUserGet(cmd *cobra.Command, args []string) error {
	if userService == nil {
		return errUsersNotConfigured
	}
	tid, err := tenantFlag()
	if err != nil {
		return err
	}
	u, err := userService.Get(ctxOf(cmd), tid, args[0])
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	return render(cmd, u, func() *table.Table {
		return keyValueTable([][2]string{
			{"ID", u.ID},
			{"Display name", u.DisplayName},
			{"User principal name", u.UserPrincipalName},
			{"Mail", u.Mail},
			{"Enabled", yesNo(u.AccountEnabled)},
			{"Usage location", u.UsageLocation},
			{"Created", u.CreatedDateTime},
		})
	})
}

func runUserCreate(cmd *cobra.Command, _ []string) error {
	if userService == nil {
		return errUsersNotConfigured
	}
	tid, err := tenantFlag()
	if err != nil {
		return err
	}

	p := newPrompter(cmd)
	name, err := p.valueOr(userDisplayName, "Display name")
	if err != nil {
		return err
	}
	upn, err := p.valueOr(userUPN, "User principal name")
	if err != nil {
		return err
	}
	password, err := p.secret("Initial password")
	if err != nil {
		return err
	}

	req := domain.NewUserCreate(name, upn, password)
	req.UsageLocation = userUsageLocation
	req.ForceChangePassword = !userNoForceChange
	req.AccountEnabled = !userDisabled

	u, err := userService.Create(ctxOf(cmd), tid, req)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	cmd.Printf("User %s created (id %s).\n", u.UserPrincipalName, u.ID)
	return nil
}

// batchUser is one entry of a batch-create file.
type batchUser struct {
	DisplayName         string `yaml:"display_name"`
	UserPrincipalName   string `yaml:"user_principal_name"`
	Password            string `yaml:"password"`
	UsageLocation       string `yaml:"usage_location"`
	ForceChangePassword *bool  `yaml:"force_change_password"`
	AccountEnabled      *bool  `yaml:"account_enabled"`
}

func (b batchUser) toCreate() domain.UserCreate {
	req := domain.NewUserCreate(b.DisplayName, b.UserPrincipalName, b.Password)
	if b.UsageLocation != "" {
		req.UsageLocation = b.UsageLocation
	}
	if b.ForceChangePassword != nil {
		req.ForceChangePassword = *b.ForceChangePassword
	}
	if b.AccountEnabled != nil {
		req.AccountEnabled = *b.AccountEnabled
	}
	return req
}

// readBatchFile parses a YAML (or JSON) list of users.
func readBatchFile(path string) ([]domain.UserCreate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var entries []batchUser
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	reqs := make([]domain.UserCreate, len(entries))
	for i, e := range entries {
		reqs[i] = e.toCreate()
	}
	return reqs, nil
}

func runUserBatchCreate(cmd *cobra.Command, _ []string) error {
	if userService == nil {
		return errUsersNotConfigured
	}
	tid, err := tenantFlag()
	if err != nil {
		return err
	}
	reqs, err := readBatchFile(userFile)
	if err != nil {
		return err
	}

	results, err := userService.BatchCreate(ctxOf(cmd), tid, reqs)
	if err != nil {
		return fmt.Errorf("batch create failed: %w", err)
	}

	failed := 0
	for i := range results {
		if !results[i].Success {
			failed++
		}
	}
	if rerr := render(cmd, results, func() *table.Table {
		t := newTable("#", "USER", "RESULT")
		for i := range results {
			upn := ""
			if i < len(reqs) {
				upn = reqs[i].UserPrincipalName
			}
			res := tableStyles.Success.Render("created")
			if !results[i].Success {
				res = tableStyles.Error.Render(results[i].Error)
			}
			t.Row(strconv.Itoa(i+1), upn, res)
		}
		return t
	}); rerr != nil {
		return rerr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d users could not be created", failed, len(results))
	}
	return nil
}

func runUserUpdate(cmd *cobra.Command, args []string) error {
	if userService == nil {
		return errUsersNotConfigured
	}
	tid, err := tenantFlag()
	if err != nil {
		return err
	}

	var req domain.UserUpdate
	flags := cmd.Flags()
	if flags.Changed("display-name") {
		req.DisplayName = &userNewName
	}
	if flags.Changed("usage-location") {
		req.UsageLocation = &userNewLocation
	}
	if flags.Changed("enabled") {
		req.AccountEnabled = &userEnabled
	}

	u, err := userService.Update(ctxOf(cmd), tid, args[0], req)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	cmd.Printf("User %s updated.\n", u.UserPrincipalName)
	return nil
}

func runUserDelete(cmd *cobra.Command, args []string) error {
	if userService == nil {
		return errUsersNotConfigured
	}
	tid, err := tenantFlag()
	if err != nil {
		return err
	}
	if !userYes {
		ok, err := newPrompter(cmd).confirm(fmt.Sprintf("Delete user %s?", args[0]))
		if err != nil {
			return err
		}
		if !ok {
			cmd.Println("Aborted.")
			return nil
		}
	}
	if err := userService.Delete(ctxOf(cmd), tid, args[0]); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	cmd.Printf("User %s deleted.\n", args[0])
	return nil
}

func setUserEnabled(cmd *cobra.Command, userID string, enabled bool) error {
	if userService == nil {
		return errUsersNotConfigured
	}
	tid, err := tenantFlag()
	if err != nil {
		return err
	}
	if err := userService.SetEnabled(ctxOf(cmd), tid, userID, enabled); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if enabled {
		cmd.Printf("User %s enabled.\n", userID)
	} else {
		cmd.Printf("User %s disabled.\n", userID)
	}
	return nil
}
