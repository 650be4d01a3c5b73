package cli

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
)

var roleCmd = &cobra.Command{
	Use:   "role",
	Short: "Manage directory role assignments of a tenant",
}

var roleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List activated directory roles",
	RunE:  runRoleList,
}

var roleMembersCmd = &cobra.Command{
	Use:   "members <role-id>",
	Short: "List members of a role",
	Args:  cobra.ExactArgs(1),
	RunE:  runRoleMembers,
}

var roleAssignCmd = &cobra.Command{
	Use:   "assign <user-id> <role-id>",
	Short: "Assign a role to a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRoleChange(cmd, func(tid int64) (*domain.MessageResult, error) {
			return roleService.Assign(ctxOf(cmd), tid, domain.RoleAssignment{UserID: args[0], RoleID: args[1]})
		})
	},
}

var roleRevokeCmd = &cobra.Command{
	Use:   "revoke <user-id> <role-id>",
	Short: "Remove a role from a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRoleChange(cmd, func(tid int64) (*domain.MessageResult, error) {
			return roleService.Revoke(ctxOf(cmd), tid, domain.RoleAssignment{UserID: args[0], RoleID: args[1]})
		})
	},
}

var rolePromoteCmd = &cobra.Command{
	Use:   "promote <user-id>",
	Short: "Make a user Global Administrator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRoleChange(cmd, func(tid int64) (*domain.MessageResult, error) {
			return roleService.Promote(ctxOf(cmd), tid, args[0])
		})
	},
}

var roleDemoteCmd = &cobra.Command{
	Use:   "demote <user-id>",
	Short: "Remove Global Administrator from a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRoleChange(cmd, func(tid int64) (*domain.MessageResult, error) {
			return roleService.Demote(ctxOf(cmd), tid, args[0])
		})
	},
}

func init() {
	addTenantFlag(roleCmd)
	roleCmd.AddCommand(roleListCmd)
	roleCmd.AddCommand(roleMembersCmd)
	roleCmd.AddCommand(roleAssignCmd)
	roleCmd.AddCommand(roleRevokeCmd)
	roleCmd.AddCommand(rolePromoteCmd)
	roleCmd.AddCommand(roleDemoteCmd)
	rootCmd.AddCommand(roleCmd)
}

var errRolesNotConfigured = errors.New("role service not configured")

func runRoleList(cmd *cobra.Command, _ []string) error {
	if roleService == nil {
		return errRolesNotConfigured
	}
	tid, err := tenantFlag()
	if err != nil {
		return err
	}
	roles, err := roleService.List(ctxOf(cmd), tid)
	if err != nil {
		return fmt.Errorf("failed to list roles: %w", err)
	}
	return render(cmd, roles, func() *table.Table {
		t := newTable("ID", "NAME", "DESCRIPTION")
		for i := range roles {
			name := roles[i].DisplayName
			if roles[i].IsGlobalAdmin() {
				name = tableStyles.Warning.Render(name + " *")
			}
			t.Row(roles[i].ID, name, roles[i].Description)
		}
		return t
	})
}

func runRoleMembers(cmd *cobra.Command, args []string) error {
	if roleService == nil {
		return errRolesNotConfigured
	}
	tid, err := tenantFlag()
	if err != nil {
		return err
	}
	members, err := roleService.Members(ctxOf(cmd), tid, args[0])
	if err != nil {
		return fmt.Errorf("failed to list role members: %w", err)
	}
	return render(cmd, members, func() *table.Table {
		t := newTable("ID", "DISPLAY NAME", "USER PRINCIPAL NAME")
		for i := range members {
			t.Row(members[i].ID, members[i].DisplayName, members[i].UserPrincipalName)
		}
		return t
	})
}

// runRoleChange runs a role mutation and prints the server acknowledgement.
func runRoleChange(cmd *cobra.Command, fn func(tid int64) (*domain.MessageResult, error)) error {
	if roleService == nil {
		return errRolesNotConfigured
	}
	tid, err := tenantFlag()
	if err != nil {
		return err
	}
	res, err := fn(tid)
	if err != nil {
		return fmt.Errorf("role change failed: %w", err)
	}
	return renderMessage(cmd, res)
}
