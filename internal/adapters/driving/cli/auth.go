package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the operator session",
	Long:  `Register the first admin account, log in and out, and change your password.`,
}

var authStatusCmd = &cobra.Command{
	Use:         "status",
	Short:       "Show system and session status",
	Annotations: public(),
	RunE:        runAuthStatus,
}

var authRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Create the first admin account",
	Long: `Create the first admin account of a fresh installation and log in with it.

Registration is refused once an admin account exists.`,
	Annotations: public(),
	RunE:        runAuthRegister,
}

var authLoginCmd = &cobra.Command{
	Use:         "login",
	Short:       "Log in to the backend",
	Annotations: public(),
	RunE:        runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:         "logout",
	Short:       "End the current session",
	Annotations: public(),
	RunE:        runAuthLogout,
}

var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in operator",
	RunE:  runAuthWhoami,
}

var authChangePasswordCmd = &cobra.Command{
	Use:   "change-password",
	Short: "Change your password",
	RunE:  runAuthChangePassword,
}

// Flags for auth commands.
var (
	authUsername string
	authEmail    string
)

func init() {
	authRegisterCmd.Flags().StringVar(&authUsername, "username", "", "admin username (prompted if omitted)")
	authRegisterCmd.Flags().StringVar(&authEmail, "email", "", "admin email (prompted if omitted)")
	authLoginCmd.Flags().StringVar(&authUsername, "username", "", "username (prompted if omitted)")

	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRegisterCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authWhoamiCmd)
	authCmd.AddCommand(authChangePasswordCmd)
	rootCmd.AddCommand(authCmd)
}

var errSessionNotConfigured = errors.New("session service not configured")

// authStatus is the output of 'auth status'.
type authStatus struct {
	NeedsInitialization bool       `json:"needs_initialization" yaml:"needs_initialization"`
	LoggedIn            bool       `json:"logged_in" yaml:"logged_in"`
	Username            string     `json:"username,omitempty" yaml:"username,omitempty"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

func runAuthStatus(cmd *cobra.Command, _ []string) error {
	if sessionService == nil {
		return errSessionNotConfigured
	}

	sys, err := sessionService.SystemStatus(ctxOf(cmd))
	if err != nil {
		return fmt.Errorf("failed to get system status: %w", err)
	}

	st := authStatus{NeedsInitialization: sys.NeedsInitialization}
	if s := sessionService.Current(); s != nil {
		st.LoggedIn = true
		st.Username = s.Username()
		st.ExpiresAt = s.ExpiresAt
	}

	return render(cmd, st, func() *table.Table {
		return keyValueTable([][2]string{
			{"Needs registration", yesNo(st.NeedsInitialization)},
			{"Logged in", yesNo(st.LoggedIn)},
			{"Username", st.Username},
			{"Token expires", formatTime(st.ExpiresAt)},
		})
	})
}

func runAuthRegister(cmd *cobra.Command, _ []string) error {
	if sessionService == nil {
		return errSessionNotConfigured
	}
	ctx := ctxOf(cmd)

	// Check first so the operator is not asked for a password in vain.
	sys, err := sessionService.SystemStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to get system status: %w", err)
	}
	if !sys.NeedsInitialization {
		return fmt.Errorf("%w; run 'm365ctl auth login' instead", domain.ErrAlreadyInitialised)
	}

	p := newPrompter(cmd)
	var req domain.RegisterRequest
	if req.Username, err = p.valueOr(authUsername, "Username"); err != nil {
		return err
	}
	if req.Email, err = p.valueOr(authEmail, "Email"); err != nil {
		return err
	}
	if req.Password, err = p.secret("Password"); err != nil {
		return err
	}
	if req.Confirm, err = p.secret("Confirm password"); err != nil {
		return err
	}

	s, err := sessionService.Register(ctx, req)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	cmd.Printf("Admin account %q created. You are logged in.\n", s.Username())
	return nil
}

func runAuthLogin(cmd *cobra.Command, _ []string) error {
	if sessionService == nil {
		return errSessionNotConfigured
	}

	p := newPrompter(cmd)
	username, err := p.valueOr(authUsername, "Username")
	if err != nil {
		return err
	}
	password, err := p.secret("Password")
	if err != nil {
		return err
	}

	s, err := sessionService.Login(ctxOf(cmd), domain.LoginRequest{Username: username, Password: password})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	cmd.Printf("Logged in as %s.\n", s.Username())
	return nil
}

func runAuthLogout(cmd *cobra.Command, _ []string) error {
	if sessionService == nil {
		return errSessionNotConfigured
	}
	if sessionService.Current() == nil {
		cmd.Println("Not logged in.")
		return nil
	}
	if err := sessionService.Logout(ctxOf(cmd)); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	cmd.Println("Logged out.")
	return nil
}

func runAuthWhoami(cmd *cobra.Command, _ []string) error {
	if sessionService == nil {
		return errSessionNotConfigured
	}
	user, err := sessionService.Refresh(ctxOf(cmd))
	if err != nil {
		return err
	}
	return render(cmd, user, func() *table.Table {
		return keyValueTable([][2]string{
			{"ID", strconv.FormatInt(user.ID, 10)},
			{"Username", user.Username},
			{"Email", user.Email},
			{"Active", yesNo(user.IsActive)},
			{"Superuser", yesNo(user.IsSuperuser)},
			{"Created", formatTime(&user.CreatedAt)},
		})
	})
}

func runAuthChangePassword(cmd *cobra.Command, _ []string) error {
	if sessionService == nil {
		return errSessionNotConfigured
	}

	p := newPrompter(cmd)
	var (
		req domain.ChangePasswordRequest
		err error
	)
	if req.OldPassword, err = p.secret("Current password"); err != nil {
		return err
	}
	if req.NewPassword, err = p.secret("New password"); err != nil {
		return err
	}
	if req.Confirm, err = p.secret("Confirm new password"); err != nil {
		return err
	}

	res, err := sessionService.ChangePassword(ctxOf(cmd), req)
	if err != nil {
		return fmt.Errorf("password change failed: %w", err)
	}
	return renderMessage(cmd, res)
}
