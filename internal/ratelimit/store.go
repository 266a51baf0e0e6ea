package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Result is the outcome of one limit check.
type Result struct {
	Success   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Store performs an atomic check-and-add against a bucket.
type Store interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

// slidingWindow trims entries older than the window, admits the hit when the
// bucket has room and reports the time the oldest entry leaves the window.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
redis.call('PEXPIRE', key, window)
return {allowed, limit - count, reset}
`)

// RedisStore keeps one sorted set per bucket.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns a store backed by client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Hit runs the sliding window script for key.
func (s *RedisStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	nowMs := now.UnixMilli()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())
	vals, err := slidingWindow.Run(ctx, s.client, []string{key}, nowMs, window.Milliseconds(), limit, member).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: hit %s: %w", key, err)
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("ratelimit: hit %s: unexpected reply %v", key, vals)
	}
	return Result{
		Success:   vals[0] == 1,
		Limit:     limit,
		Remaining: int(max(vals[1], 0)),
		Reset:     time.UnixMilli(vals[2]),
	}, nil
}
