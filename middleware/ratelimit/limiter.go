package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is a sliding-window request counter kept in Redis sorted sets, one
// set per client key.
type Limiter struct {
	client    *redis.Client
	keyPrefix string
}

// NewLimiter creates a limiter storing its windows under keyPrefix.
func NewLimiter(client *redis.Client, keyPrefix string) *Limiter {
	return &Limiter{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	Limit     int
}

// slidingWindow takes the clock from Redis so every API instance shares one
// time source. It returns {allowed, remaining, reset_ms}.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local seq_key = key .. ':seq'
	local limit = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])

	local t = redis.call('TIME')
	local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window_ms)
	local used = redis.call('ZCARD', key)

	if used < limit then
		local seq = redis.call('INCR', seq_key)
		redis.call('ZADD', key, now, now .. '-' .. seq)
		redis.call('PEXPIRE', key, window_ms)
		redis.call('PEXPIRE', seq_key, window_ms)
		return {1, limit - used - 1, now + window_ms}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if #oldest < 2 then
		return {0, 0, now + window_ms}
	end
	return {0, 0, tonumber(oldest[2]) + window_ms}
`)

// Allow counts a request for key and reports whether it fits in limit
// requests per window.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	out, err := slidingWindow.Run(ctx, l.client, []string{l.keyPrefix + key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script failed: %w", err)
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("rate limit script returned %d values, want 3", len(out))
	}

	return &Result{
		Allowed:   out[0] == 1,
		Remaining: int(out[1]),
		ResetAt:   time.UnixMilli(out[2]),
		Limit:     limit,
	}, nil
}

// Reset forgets every request recorded for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	k := l.keyPrefix + key
	return l.client.Del(ctx, k, k+":seq").Err()
}
