package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const limiterKeyPrefix = "rl:"

// slidingWindowScript is the atomic check-and-record step: prune, count,
// and either deny with the retry delay or record the request and refresh the
// key's expiry. Running it as one script removes the race a client-side
// read-then-write sequence would reintroduce.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local retry = window
	if oldest[2] then
		retry = (tonumber(oldest[2]) + window) - now
	end
	return {0, retry}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, 0}
`)

// RedisLimiter is the shared-store sliding-window limiter. Request timestamps
// live in a sorted set per client key; the whole key expires after one idle
// window. Coordination through Redis makes the limit hold across service
// instances.
type RedisLimiter struct {
	client *redis.Client
	window time.Duration
	limit  int
}

// NewRedisLimiter builds a Redis-backed limiter allowing limit requests per
// window.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		window: window,
		limit:  limit,
	}
}

// Allow runs the check-and-record script for the client key.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	nowMs := time.Now().UnixMilli()
	windowMs := r.window.Milliseconds()
	// Member must be unique: two requests in the same millisecond would
	// otherwise collapse into one sorted-set entry.
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	vals, err := slidingWindowScript.Run(ctx, r.client,
		[]string{limiterKeyPrefix + key}, nowMs, windowMs, r.limit, member).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit script failed: %w", err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("rate limit script returned %d values", len(vals))
	}

	if vals[0] == 1 {
		return Result{Allowed: true}, nil
	}
	retry := time.Duration(vals[1]) * time.Millisecond
	if retry < 0 {
		retry = 0
	}
	return Result{Allowed: false, RetryAfter: retry}, nil
}
