package api

import (
	"context"
	"net/http"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
	"github.com/custodia-labs/m365ctl/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.AuthAPI = (*AuthAPI)(nil)

// AuthAPI maps the /auth endpoints.
type AuthAPI struct {
	c *Client
}

// Auth returns the auth endpoints.
func (c *Client) Auth() *AuthAPI {
	return &AuthAPI{c: c}
}

// SystemStatus reports whether an admin account exists yet.
func (a *AuthAPI) SystemStatus(ctx context.Context) (*domain.SystemStatus, error) {
	var out domain.SystemStatus
	if err := a.c.do(ctx, call{method: http.MethodGet, path: "/auth/system-status"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates the first admin account.
func (a *AuthAPI) Register(ctx context.Context, req domain.RegisterRequest) (*domain.TokenResponse, error) {
	var out domain.TokenResponse
	if err := a.c.do(ctx, call{method: http.MethodPost, path: "/auth/register", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for a token.
func (a *AuthAPI) Login(ctx context.Context, req domain.LoginRequest) (*domain.TokenResponse, error) {
	var out domain.TokenResponse
	if err := a.c.do(ctx, call{method: http.MethodPost, path: "/auth/login", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the current operator.
func (a *AuthAPI) Me(ctx context.Context) (*domain.AuthUser, error) {
	var out domain.AuthUser
	if err := a.c.do(ctx, call{method: http.MethodGet, path: "/auth/me"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword rotates the operator's password.
func (a *AuthAPI) ChangePassword(ctx context.Context, req domain.ChangePasswordRequest) (*domain.MessageResult, error) {
	var out domain.MessageResult
	if err := a.c.do(ctx, call{method: http.MethodPost, path: "/auth/change-password", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
