package auth

import (
	"errors"
	"fmt"
	"time"

	domain "github.com/example/task-manager/domain/user"
)

// Failure codes returned in auth responses. They map one to one onto the
// package's sentinel errors.
const (
	FailureInvalidEmail       = "invalid_email"
	FailureWeakPassword       = "weak_password"
	FailurePasswordTooLong    = "password_too_long"
	FailureUserExists         = "user_exists"
	FailureInvalidCredentials = "invalid_credentials"
	FailureInvalidToken       = "invalid_token"
	FailureExpiredToken       = "expired_token"
	FailureInternal           = "internal"
)

var failureErrors = map[string]error{
	FailureInvalidEmail:       ErrInvalidEmail,
	FailureWeakPassword:       ErrWeakPassword,
	FailurePasswordTooLong:    ErrPasswordTooLong,
	FailureUserExists:         ErrUserExists,
	FailureInvalidCredentials: ErrInvalidCredentials,
	FailureInvalidToken:       ErrInvalidToken,
	FailureExpiredToken:       ErrExpiredToken,
}

// failureCode classifies err for the wire.
func failureCode(err error) string {
	for code, sentinel := range failureErrors {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return FailureInternal
}

// failureError rebuilds the sentinel error for a code.
func failureError(code string) error {
	if err, ok := failureErrors[code]; ok {
		return err
	}
	return fmt.Errorf("auth service failure: %s", code)
}

// RegisterRequest represents a user registration request.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterResponse represents a user registration response.
type RegisterResponse struct {
	ID        string    `json:"id,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Failure   string    `json:"failure,omitempty"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest represents a token refresh request.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	Tokens  *domain.TokenPair `json:"tokens,omitempty"`
	Failure string            `json:"failure,omitempty"`
}

// ValidateTokenRequest represents a token validation request.
type ValidateTokenRequest struct {
	Token string `json:"token"`
}

// ValidateTokenResponse represents a token validation response.
type ValidateTokenResponse struct {
	Valid   bool   `json:"valid"`
	OwnerID string `json:"owner_id,omitempty"`
	Email   string `json:"email,omitempty"`
	Failure string `json:"failure,omitempty"`
}
