package ratelimit

import (
	"time"
)

// Config holds rate limiter configuration.
type Config struct {
	// RedisAddr is the Redis server address (e.g., "localhost:6379")
	RedisAddr string

	// RedisPassword is the Redis authentication password (optional)
	RedisPassword string

	// RedisDB is the Redis database number (default: 0)
	RedisDB int

	// Limit is the number of requests a client may make per Window.
	Limit int

	// Window is the sliding window length.
	Window time.Duration

	// KeyPrefix is the prefix for Redis keys (default: "ratelimit:")
	KeyPrefix string

	// OwnerLocal is the fiber.Ctx local holding the authenticated owner ID.
	// Requests without one are keyed by client IP.
	OwnerLocal string
}

// DefaultConfig returns a config allowing 120 requests per minute.
func DefaultConfig() Config {
	return Config{
		RedisAddr:  "localhost:6379",
		Limit:      120,
		Window:     time.Minute,
		KeyPrefix:  "ratelimit:",
		OwnerLocal: "owner_id",
	}
}

// Option is a function that modifies Config.
type Option func(*Config)

// WithRedisAddr sets the Redis server address.
func WithRedisAddr(addr string) Option {
	return func(c *Config) {
		c.RedisAddr = addr
	}
}

// WithRedisPassword sets the Redis authentication password.
func WithRedisPassword(password string) Option {
	return func(c *Config) {
		c.RedisPassword = password
	}
}

// WithRedisDB sets the Redis database number.
func WithRedisDB(db int) Option {
	return func(c *Config) {
		c.RedisDB = db
	}
}

// WithLimit sets the request budget per window. Non-positive values are
// ignored.
func WithLimit(limit int, window time.Duration) Option {
	return func(c *Config) {
		if limit > 0 {
			c.Limit = limit
		}
		if window > 0 {
			c.Window = window
		}
	}
}

// WithKeyPrefix sets the Redis key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(c *Config) {
		c.KeyPrefix = prefix
	}
}

// WithOwnerLocal sets the fiber local read for the owner ID.
func WithOwnerLocal(key string) Option {
	return func(c *Config) {
		c.OwnerLocal = key
	}
}
