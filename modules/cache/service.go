// Package cache provides a read-through cache for task lists on top of the
// mono storage interface.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-monolith/mono/pkg/storage"
	"github.com/google/uuid"
)

// CacheService defines the caching operations used by the task module.
type CacheService interface {
	// Get retrieves a value and unmarshals it into dest.
	// Returns true on a cache hit.
	Get(ctx context.Context, key string, dest any) (bool, error)

	// Set stores a value with the default TTL.
	Set(ctx context.Context, key string, value any) error

	// Delete removes a single key.
	Delete(ctx context.Context, key string) error

	// OwnerKey scopes key to the owner's current generation.
	OwnerKey(ctx context.Context, ownerID, key string) (string, error)

	// InvalidateOwner drops every key built with OwnerKey for ownerID by
	// rotating the owner's generation.
	InvalidateOwner(ctx context.Context, ownerID string) error

	// Close closes the underlying storage connection.
	Close() error
}

type cacheService struct {
	storage storage.Storage
	prefix  string
	ttl     time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCacheService wraps s. Keys are stored under prefix and expire after ttl.
func NewCacheService(s storage.Storage, prefix string, ttl time.Duration) CacheService {
	return newCacheService(s, prefix, ttl)
}

func newCacheService(s storage.Storage, prefix string, ttl time.Duration) *cacheService {
	return &cacheService{storage: s, prefix: prefix, ttl: ttl}
}

// Stats returns the hit and miss counts of Get.
func (c *cacheService) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *cacheService) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.storage.GetWithContext(ctx, c.prefix+key)
	if err != nil {
		return false, fmt.Errorf("cache get error: %w", err)
	}

	if len(data) == 0 {
		c.misses.Add(1)
		return false, nil
	}
	c.hits.Add(1)

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal error: %w", err)
	}
	return true, nil
}

func (c *cacheService) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}

	if err := c.storage.SetWithContext(ctx, c.prefix+key, data, c.ttl); err != nil {
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

func (c *cacheService) Delete(ctx context.Context, key string) error {
	if err := c.storage.DeleteWithContext(ctx, c.prefix+key); err != nil {
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

func generationKey(ownerID string) string {
	return "gen:" + ownerID
}

func (c *cacheService) OwnerKey(ctx context.Context, ownerID, key string) (string, error) {
	data, err := c.storage.GetWithContext(ctx, c.prefix+generationKey(ownerID))
	if err != nil {
		return "", fmt.Errorf("cache generation error: %w", err)
	}

	gen := string(data)
	if gen == "" {
		gen = "0"
	}
	return "owner:" + ownerID + ":" + gen + ":" + key, nil
}

// InvalidateOwner writes a fresh generation. Entries of older generations are
// never read again and expire with their TTL.
func (c *cacheService) InvalidateOwner(ctx context.Context, ownerID string) error {
	gen := []byte(uuid.New().String())
	// The generation outlives every entry it scopes.
	if err := c.storage.SetWithContext(ctx, c.prefix+generationKey(ownerID), gen, 2*c.ttl); err != nil {
		return fmt.Errorf("cache invalidate error: %w", err)
	}
	return nil
}

func (c *cacheService) Close() error {
	return c.storage.Close()
}
