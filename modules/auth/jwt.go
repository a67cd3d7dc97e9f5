package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, forged or of the wrong kind.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// TokenConfig holds signing configuration.
type TokenConfig struct {
	SecretKey  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
}

// DefaultTokenConfig returns development defaults. The secret must be
// overridden with JWT_SECRET_KEY outside development.
func DefaultTokenConfig() TokenConfig {
	return TokenConfig{
		SecretKey:  "task-manager-dev-secret-change-me",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Issuer:     "task-manager",
	}
}

// TokenClaims are the claims carried by both token kinds.
type TokenClaims struct {
	OwnerID string    `json:"owner_id"`
	Email   string    `json:"email"`
	Kind    TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 tokens.
type TokenIssuer struct {
	config TokenConfig
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer.
func NewTokenIssuer(config TokenConfig) *TokenIssuer {
	return &TokenIssuer{
		config: config,
		now:    time.Now,
	}
}

// Issue signs a token of the given kind for ownerID.
func (i *TokenIssuer) Issue(kind TokenKind, ownerID, email string) (string, error) {
	ttl := i.config.AccessTTL
	if kind == TokenRefresh {
		ttl = i.config.RefreshTTL
	}

	now := i.now()
	claims := TokenClaims{
		OwnerID: ownerID,
		Email:   email,
		Kind:    kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.config.Issuer,
			Subject:   ownerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(i.config.SecretKey))
}

// Verify parses tokenString and checks that it is a valid token of kind.
func (i *TokenIssuer) Verify(kind TokenKind, tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(i.config.SecretKey), nil
	},
		jwt.WithIssuer(i.config.Issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid || claims.Kind != kind || claims.OwnerID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// AccessTTLSeconds returns the access token lifetime in seconds.
func (i *TokenIssuer) AccessTTLSeconds() int64 {
	return int64(i.config.AccessTTL.Seconds())
}
