package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	domain "github.com/example/task-manager/domain/user"
	"github.com/google/uuid"
)

var (
	// ErrInvalidCredentials is returned when login credentials are invalid.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidEmail is returned when email format is invalid.
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrWeakPassword is returned when password is too short.
	ErrWeakPassword = errors.New("password must be at least 8 characters")
	// ErrPasswordTooLong is returned when password exceeds bcrypt's 72-byte limit.
	ErrPasswordTooLong = errors.New("password must be at most 72 characters")
)

// AuthService registers accounts and resolves identities from tokens.
type AuthService struct {
	repo   *UserRepository
	hasher *PasswordHasher
	tokens *TokenIssuer
}

var _ AuthPort = (*AuthService)(nil)

// NewAuthService creates a new AuthService.
func NewAuthService(repo *UserRepository, hasher *PasswordHasher, tokens *TokenIssuer) *AuthService {
	return &AuthService{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
	}
}

// Register creates an account. Emails are compared case-insensitively.
func (s *AuthService) Register(ctx context.Context, email, password string) (*domain.User, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, ErrInvalidEmail
	}
	email = strings.ToLower(addr.Address)

	if len(password) < 8 {
		return nil, ErrWeakPassword
	}
	if len(password) > 72 {
		return nil, ErrPasswordTooLong
	}

	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserExists
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks credentials and issues a token pair.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.TokenPair, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return s.issuePair(user.ID, user.Email)
}

// Refresh exchanges a refresh token for a new pair, provided the account
// still exists.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.tokens.Verify(TokenRefresh, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.FindByID(ctx, claims.OwnerID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return s.issuePair(user.ID, user.Email)
}

// ValidateToken resolves the identity behind an access token.
func (s *AuthService) ValidateToken(_ context.Context, token string) (*domain.Identity, error) {
	claims, err := s.tokens.Verify(TokenAccess, token)
	if err != nil {
		return nil, err
	}
	return &domain.Identity{OwnerID: claims.OwnerID, Email: claims.Email}, nil
}

func (s *AuthService) issuePair(ownerID, email string) (*domain.TokenPair, error) {
	access, err := s.tokens.Issue(TokenAccess, ownerID, email)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := s.tokens.Issue(TokenRefresh, ownerID, email)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    s.tokens.AccessTTLSeconds(),
		TokenType:    "Bearer",
	}, nil
}
