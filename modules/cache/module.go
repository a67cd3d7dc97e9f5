package cache

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/storage"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/storage/redis/v3"
)

// Config holds the Redis connection and entry settings of the task list cache.
type Config struct {
	Addr     string
	Prefix   string
	TTL      time.Duration
	PoolSize int
}

// PluginModule provides the task list cache to the task module. It is
// registered as a plugin under the alias "cache", so it starts before and
// stops after every regular module.
type PluginModule struct {
	config    Config
	container types.ServiceContainer
	storage   storage.Storage
	service   *cacheService
}

var (
	_ mono.PluginModule          = (*PluginModule)(nil)
	_ mono.HealthCheckableModule = (*PluginModule)(nil)
)

// NewPluginModule creates a cache plugin with the default prefix and TTL.
func NewPluginModule(redisAddr string) *PluginModule {
	return NewPluginModuleWithConfig(redisAddr, "tasks:", 5*time.Minute)
}

// NewPluginModuleWithConfig creates a cache plugin with a custom prefix and TTL.
func NewPluginModuleWithConfig(redisAddr, prefix string, ttl time.Duration) *PluginModule {
	return &PluginModule{config: Config{
		Addr:     redisAddr,
		Prefix:   prefix,
		TTL:      ttl,
		PoolSize: 50,
	}}
}

func (m *PluginModule) Name() string {
	return "cache"
}

// Start connects to Redis. gofiber/storage/redis panics when the server is
// down, so the address is dialed before the storage is built.
func (m *PluginModule) Start(_ context.Context) error {
	host, port, err := splitRedisAddr(m.config.Addr)
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), 2*time.Second)
	if err != nil {
		return fmt.Errorf("redis not reachable at %s: %w", m.config.Addr, err)
	}
	_ = conn.Close()

	m.storage = redis.New(redis.Config{
		Host:     host,
		Port:     port,
		PoolSize: m.config.PoolSize,
	})
	m.service = newCacheService(m.storage, m.config.Prefix, m.config.TTL)
	log.Printf("[cache] Task list cache on %s (prefix %q, TTL %s)", m.config.Addr, m.config.Prefix, m.config.TTL)
	return nil
}

func (m *PluginModule) Stop(_ context.Context) error {
	if m.service == nil {
		return nil
	}
	hits, misses := m.service.Stats()
	if err := m.service.Close(); err != nil {
		return fmt.Errorf("failed to close task list cache: %w", err)
	}
	log.Printf("[cache] Stopped (hits: %d, misses: %d)", hits, misses)
	return nil
}

func (m *PluginModule) SetContainer(container types.ServiceContainer) {
	m.container = container
}

func (m *PluginModule) Container() types.ServiceContainer {
	return m.container
}

// Port returns the cache for the task module, or nil before Start.
func (m *PluginModule) Port() CacheService {
	if m.service == nil {
		return nil
	}
	return m.service
}

// Health round-trips a probe key through Redis without touching the hit
// counters.
func (m *PluginModule) Health(ctx context.Context) mono.HealthStatus {
	if m.service == nil {
		return mono.HealthStatus{Healthy: false, Message: "cache not started"}
	}

	key := m.config.Prefix + "health"
	stamp := []byte(strconv.FormatInt(time.Now().UnixMilli(), 10))
	if err := m.storage.SetWithContext(ctx, key, stamp, time.Minute); err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("probe write failed: %v", err)}
	}
	if got, err := m.storage.GetWithContext(ctx, key); err != nil || string(got) != string(stamp) {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("probe read failed: %v", err)}
	}

	hits, misses := m.service.Stats()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"addr":   m.config.Addr,
			"ttl":    m.config.TTL.String(),
			"hits":   hits,
			"misses": misses,
		},
	}
}

// splitRedisAddr parses "host:port". An empty host means 127.0.0.1.
func splitRedisAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid redis address %q: %w", addr, err)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid redis port in %q", addr)
	}
	return host, port, nil
}
