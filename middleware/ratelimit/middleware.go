package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-monolith/mono"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Middleware owns the Redis connection and produces a Fiber handler that
// enforces a per-client request budget. Until Start succeeds, and whenever
// Redis fails, requests pass through.
type Middleware struct {
	config  Config
	client  *redis.Client
	limiter atomic.Pointer[Limiter]
	logger  *slog.Logger
}

var _ mono.Module = (*Middleware)(nil)

// New creates a new rate limiting middleware.
func New(opts ...Option) *Middleware {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &Middleware{
		config: config,
		logger: slog.Default().With("module", "rate-limit"),
	}
}

func (m *Middleware) Name() string {
	return "rate-limit"
}

// Start connects to Redis.
func (m *Middleware) Start(ctx context.Context) error {
	m.client = redis.NewClient(&redis.Options{
		Addr:         m.config.RedisAddr,
		Password:     m.config.RedisPassword,
		DB:           m.config.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis at %s: %w", m.config.RedisAddr, err)
	}

	m.limiter.Store(NewLimiter(m.client, m.config.KeyPrefix))
	m.logger.Info("Rate limiting middleware started",
		"redis", m.config.RedisAddr,
		"limit", m.config.Limit,
		"window", m.config.Window)
	return nil
}

// Stop closes the Redis connection.
func (m *Middleware) Stop(_ context.Context) error {
	m.limiter.Store(nil)
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			m.logger.Error("Failed to close Redis connection", "error", err)
			return err
		}
	}
	m.logger.Info("Rate limiting middleware stopped")
	return nil
}

// Handler returns the Fiber middleware.
func (m *Middleware) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		limiter := m.limiter.Load()
		if limiter == nil {
			return c.Next()
		}

		key := m.clientKey(c)
		result, err := limiter.Allow(c.UserContext(), key, m.config.Limit, m.config.Window)
		if err != nil {
			m.logger.Error("Rate limit check failed", "client", key, "error", err)
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retry := int(math.Ceil(time.Until(result.ResetAt).Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retry))
			m.logger.Warn("Rate limit exceeded", "client", key, "reset_at", result.ResetAt)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests, please retry later",
			})
		}

		return c.Next()
	}
}

// maxClientIDLength limits key length.
const maxClientIDLength = 128

// clientKey is "owner:<id>" for authenticated requests and "ip:<addr>"
// otherwise.
func (m *Middleware) clientKey(c *fiber.Ctx) string {
	if owner, ok := c.Locals(m.config.OwnerLocal).(string); ok && owner != "" {
		if len(owner) > maxClientIDLength {
			owner = owner[:maxClientIDLength]
		}
		return "owner:" + owner
	}
	return "ip:" + c.IP()
}
