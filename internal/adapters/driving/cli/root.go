package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/m365ctl/internal/config"
	"github.com/custodia-labs/m365ctl/internal/core/ports/driving"
	"github.com/custodia-labs/m365ctl/internal/logger"
)

var (
	// Version is set by goreleaser ldflags.
	version = "dev"

	// Verbose enables debug logging.
	verbose bool

	// outputFormat selects table, json or yaml output.
	outputFormat string

	// Services holds injected service implementations for CLI commands.
	sessionService driving.SessionService
	routeGuard     driving.RouteGuard
	tenantWorkflow driving.TenantWorkflow
	userService    driving.UserService
	licenseService driving.LicenseService
	domainService  driving.DomainService
	roleService    driving.RoleService
	reportService  driving.ReportService
	sweeper        driving.Sweeper

	// Settings as loaded at startup and where they live.
	settings   *config.Config
	configPath string
)

// Services holds configuration for CLI commands.
type Services struct {
	Session  driving.SessionService
	Guard    driving.RouteGuard
	Tenants  driving.TenantWorkflow
	Users    driving.UserService
	Licenses driving.LicenseService
	Domains  driving.DomainService
	Roles    driving.RoleService
	Reports  driving.ReportService
	Sweeper  driving.Sweeper

	Config     *config.Config
	ConfigPath string
}

// SetServices injects service implementations for CLI commands.
func SetServices(s *Services) {
	if s == nil {
		return
	}
	sessionService = s.Session
	routeGuard = s.Guard
	tenantWorkflow = s.Tenants
	userService = s.Users
	licenseService = s.Licenses
	domainService = s.Domains
	roleService = s.Roles
	reportService = s.Reports
	sweeper = s.Sweeper
	settings = s.Config
	configPath = s.ConfigPath
}

// annotationPublic marks commands that run without a session.
const annotationPublic = "m365ctl/public"

// Errors returned by the route guard.
var (
	ErrNeedsRegistration = errors.New("no admin account exists yet; run 'm365ctl auth register'")
	ErrLoginRequired     = errors.New("not logged in; run 'm365ctl auth login'")
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "m365ctl",
	Short: "Manage Microsoft 365 tenants from the command line",
	Long: `m365ctl is the operator console for Microsoft 365 tenant administration.

It registers tenants (Entra ID app registrations), validates their credentials,
bootstraps Graph permissions and manages users, licenses, domains, roles and
usage reports through the m365ctl backend.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version string for the CLI.
func SetVersion(v string) {
	version = v
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose debug output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", string(formatTable), "output format: table, json or yaml")

	// Use PersistentPreRunE to set verbose mode and check the session before any command executes
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose || (settings != nil && settings.Log.Verbose))
		if _, err := parseFormat(outputFormat); err != nil {
			return err
		}
		if isPublic(cmd) {
			return nil
		}
		return requireSession(cmd)
	}
}

// isPublic reports whether cmd or any parent is marked public.
func isPublic(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationPublic] == "true" {
			return true
		}
	}
	return cmd == rootCmd
}

func public() map[string]string {
	return map[string]string{annotationPublic: "true"}
}

// requireSession runs the route guard for protected commands.
func requireSession(cmd *cobra.Command) error {
	if routeGuard == nil {
		return errors.New("route guard not configured")
	}
	route, err := routeGuard.Resolve(ctxOf(cmd))
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	switch route {
	case driving.RouteRegister:
		return ErrNeedsRegistration
	case driving.RouteLogin:
		return ErrLoginRequired
	case driving.RouteDashboard:
		return nil
	default:
		return fmt.Errorf("unexpected route %q", route)
	}
}

// ctxOf returns the command context, falling back to Background for
// commands run outside Execute.
func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
