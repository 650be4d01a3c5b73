package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Account constraints enforced before calling the backend.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
	MinPasswordLength = 6
)

// SystemStatus reports whether the console has an admin account yet.
type SystemStatus struct {
	NeedsInitialization bool `json:"needs_initialization" yaml:"needs_initialization"`
	UserCount           int  `json:"user_count" yaml:"user_count"`
}

// AuthUser is the console operator profile.
type AuthUser struct {
	ID          int64     `json:"id" yaml:"id"`
	Username    string    `json:"username" yaml:"username"`
	Email       string    `json:"email,omitempty" yaml:"email,omitempty"`
	IsActive    bool      `json:"is_active" yaml:"is_active"`
	IsSuperuser bool      `json:"is_superuser" yaml:"is_superuser"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// LoginRequest holds operator credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate checks that both fields are present.
func (r *LoginRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" || r.Password == "" {
		return fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	return nil
}

// RegisterRequest bootstraps the first admin account.
// Confirm is checked locally and never sent.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Confirm  string `json:"-"`
}

// Validate applies the registration rules.
func (r *RegisterRequest) Validate() error {
	if r.Username == "" || r.Email == "" || r.Password == "" || r.Confirm == "" {
		return fmt.Errorf("%w: all fields are required", ErrInvalidInput)
	}
	if n := len([]rune(r.Username)); n < MinUsernameLength || n > MaxUsernameLength {
		return fmt.Errorf("%w: username must be %d-%d characters", ErrInvalidInput, MinUsernameLength, MaxUsernameLength)
	}
	if addr, err := mail.ParseAddress(r.Email); err != nil || addr.Address != r.Email {
		return fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if len(r.Password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	if r.Password != r.Confirm {
		return fmt.Errorf("%w: passwords do not match", ErrInvalidInput)
	}
	return nil
}

// ChangePasswordRequest rotates the operator's own password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
	Confirm     string `json:"-"`
}

// Validate applies the password rules.
func (r *ChangePasswordRequest) Validate() error {
	if r.OldPassword == "" || r.NewPassword == "" {
		return fmt.Errorf("%w: all fields are required", ErrInvalidInput)
	}
	if len(r.NewPassword) < MinPasswordLength {
		return fmt.Errorf("%w: new password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	if r.Confirm != "" && r.Confirm != r.NewPassword {
		return fmt.Errorf("%w: passwords do not match", ErrInvalidInput)
	}
	return nil
}

// TokenResponse is returned by login and register.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Session is the authenticated operator state held by the client.
type Session struct {
	Token     string     `json:"token"`
	TokenType string     `json:"token_type,omitempty"`
	User      *AuthUser  `json:"user,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Valid reports whether the session carries a token.
func (s *Session) Valid() bool {
	return s != nil && s.Token != ""
}

// Username returns the operator name, if the profile is known.
func (s *Session) Username() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.Username
}
