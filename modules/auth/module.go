package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	domain "github.com/example/task-manager/domain/user"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AuthModule owns accounts and issues the tokens that carry owner IDs.
type AuthModule struct {
	db      *gorm.DB
	service *AuthService
	dbPath  string
	hasher  *PasswordHasher
}

var (
	_ mono.Module                = (*AuthModule)(nil)
	_ mono.ServiceProviderModule = (*AuthModule)(nil)
	_ mono.HealthCheckableModule = (*AuthModule)(nil)
)

// NewModule creates an AuthModule backed by the SQLite file named by
// AUTH_DB_PATH (default "auth.db").
func NewModule() *AuthModule {
	dbPath := os.Getenv("AUTH_DB_PATH")
	if dbPath == "" {
		dbPath = "auth.db"
	}
	return NewModuleWithPath(dbPath, NewPasswordHasher())
}

// NewModuleWithPath creates an AuthModule with an explicit database path and
// hasher.
func NewModuleWithPath(dbPath string, hasher *PasswordHasher) *AuthModule {
	return &AuthModule{
		dbPath: dbPath,
		hasher: hasher,
	}
}

func (m *AuthModule) Name() string {
	return "auth"
}

func (m *AuthModule) Start(_ context.Context) error {
	db, err := gorm.Open(sqlite.Open(m.dbPath), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	m.db = db

	if err := db.AutoMigrate(&domain.User{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	config := loadTokenConfig()
	m.service = NewAuthService(NewUserRepository(db), m.hasher, NewTokenIssuer(config))

	log.Printf("[auth] Module started (database: %s, issuer: %s)", m.dbPath, config.Issuer)
	return nil
}

func (m *AuthModule) Stop(_ context.Context) error {
	if m.db != nil {
		if sqlDB, err := m.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	log.Println("[auth] Module stopped")
	return nil
}

func (m *AuthModule) Health(ctx context.Context) mono.HealthStatus {
	if m.db == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "database not initialized",
		}
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("failed to get database connection: %v", err),
		}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"database": m.dbPath,
		},
	}
}

// Service returns the auth service. It is nil until Start.
func (m *AuthModule) Service() *AuthService {
	return m.service
}

func (m *AuthModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, "register", json.Unmarshal, json.Marshal, m.handleRegister,
	); err != nil {
		return fmt.Errorf("failed to register register service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "login", json.Unmarshal, json.Marshal, m.handleLogin,
	); err != nil {
		return fmt.Errorf("failed to register login service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "refresh-token", json.Unmarshal, json.Marshal, m.handleRefresh,
	); err != nil {
		return fmt.Errorf("failed to register refresh-token service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "validate-token", json.Unmarshal, json.Marshal, m.handleValidateToken,
	); err != nil {
		return fmt.Errorf("failed to register validate-token service: %w", err)
	}

	log.Printf("[auth] Registered services: register, login, refresh-token, validate-token")
	return nil
}

// Known failures travel in the response body; only unexpected errors are
// returned to the framework.

func (m *AuthModule) handleRegister(ctx context.Context, req RegisterRequest, _ *mono.Msg) (RegisterResponse, error) {
	user, err := m.service.Register(ctx, req.Email, req.Password)
	if err != nil {
		if code := failureCode(err); code != FailureInternal {
			return RegisterResponse{Failure: code}, nil
		}
		log.Printf("[auth] register failed: %v", err)
		return RegisterResponse{}, err
	}

	return RegisterResponse{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}, nil
}

func (m *AuthModule) handleLogin(ctx context.Context, req LoginRequest, _ *mono.Msg) (TokenResponse, error) {
	tokens, err := m.service.Login(ctx, req.Email, req.Password)
	return m.tokenResponse("login", tokens, err)
}

func (m *AuthModule) handleRefresh(ctx context.Context, req RefreshRequest, _ *mono.Msg) (TokenResponse, error) {
	tokens, err := m.service.Refresh(ctx, req.RefreshToken)
	return m.tokenResponse("refresh", tokens, err)
}

func (m *AuthModule) tokenResponse(op string, tokens *domain.TokenPair, err error) (TokenResponse, error) {
	if err != nil {
		if code := failureCode(err); code != FailureInternal {
			return TokenResponse{Failure: code}, nil
		}
		log.Printf("[auth] %s failed: %v", op, err)
		return TokenResponse{}, err
	}
	return TokenResponse{Tokens: tokens}, nil
}

func (m *AuthModule) handleValidateToken(ctx context.Context, req ValidateTokenRequest, _ *mono.Msg) (ValidateTokenResponse, error) {
	identity, err := m.service.ValidateToken(ctx, req.Token)
	if err != nil {
		return ValidateTokenResponse{
			Valid:   false,
			Failure: failureCode(err),
		}, nil
	}

	return ValidateTokenResponse{
		Valid:   true,
		OwnerID: identity.OwnerID,
		Email:   identity.Email,
	}, nil
}

// loadTokenConfig overlays JWT_SECRET_KEY, JWT_ISSUER and JWT_ACCESS_TTL on
// the defaults.
func loadTokenConfig() TokenConfig {
	config := DefaultTokenConfig()

	if secret := os.Getenv("JWT_SECRET_KEY"); secret != "" {
		config.SecretKey = secret
	} else {
		log.Println("[auth] WARNING: JWT_SECRET_KEY not set, using development secret")
	}

	if issuer := os.Getenv("JWT_ISSUER"); issuer != "" {
		config.Issuer = issuer
	}

	if ttl := os.Getenv("JWT_ACCESS_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil && d > 0 {
			config.AccessTTL = d
		} else {
			log.Printf("[auth] ignoring invalid JWT_ACCESS_TTL %q", ttl)
		}
	}

	return config
}
