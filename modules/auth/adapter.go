package auth

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/task-manager/domain/user"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// AuthPort is what other modules use to reach authentication.
type AuthPort interface {
	Register(ctx context.Context, email, password string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	ValidateToken(ctx context.Context, token string) (*domain.Identity, error)
}

// AuthAdapter implements AuthPort using the service container.
type AuthAdapter struct {
	container mono.ServiceContainer
}

var _ AuthPort = (*AuthAdapter)(nil)

// NewAuthAdapter creates a new AuthAdapter.
func NewAuthAdapter(container mono.ServiceContainer) *AuthAdapter {
	return &AuthAdapter{
		container: container,
	}
}

func (a *AuthAdapter) call(ctx context.Context, service string, req, resp any) error {
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		&resp,
	); err != nil {
		return fmt.Errorf("%s request failed: %w", service, err)
	}
	return nil
}

func (a *AuthAdapter) Register(ctx context.Context, email, password string) (*domain.User, error) {
	req := RegisterRequest{Email: email, Password: password}
	var resp RegisterResponse
	if err := a.call(ctx, "register", &req, &resp); err != nil {
		return nil, err
	}
	if resp.Failure != "" {
		return nil, failureError(resp.Failure)
	}

	return &domain.User{
		ID:        resp.ID,
		Email:     resp.Email,
		CreatedAt: resp.CreatedAt,
	}, nil
}

func (a *AuthAdapter) Login(ctx context.Context, email, password string) (*domain.TokenPair, error) {
	req := LoginRequest{Email: email, Password: password}
	var resp TokenResponse
	if err := a.call(ctx, "login", &req, &resp); err != nil {
		return nil, err
	}
	return tokensFrom(resp)
}

func (a *AuthAdapter) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	req := RefreshRequest{RefreshToken: refreshToken}
	var resp TokenResponse
	if err := a.call(ctx, "refresh-token", &req, &resp); err != nil {
		return nil, err
	}
	return tokensFrom(resp)
}

func tokensFrom(resp TokenResponse) (*domain.TokenPair, error) {
	if resp.Failure != "" {
		return nil, failureError(resp.Failure)
	}
	if resp.Tokens == nil {
		return nil, fmt.Errorf("auth service returned no tokens")
	}
	return resp.Tokens, nil
}

// ValidateToken resolves the identity behind an access token.
func (a *AuthAdapter) ValidateToken(ctx context.Context, token string) (*domain.Identity, error) {
	req := ValidateTokenRequest{Token: token}
	var resp ValidateTokenResponse
	if err := a.call(ctx, "validate-token", &req, &resp); err != nil {
		return nil, err
	}
	if !resp.Valid {
		return nil, failureError(resp.Failure)
	}

	return &domain.Identity{
		OwnerID: resp.OwnerID,
		Email:   resp.Email,
	}, nil
}
