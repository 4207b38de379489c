package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis-backed strategy variants for multi-replica deployments, where every
// gateway instance must draw from the same quota. State lives in Redis and
// each check runs as a Lua script so the read-modify-write is atomic.
// Idle keys expire server-side via TTL, so Sweep is a no-op here.

// tokenBucketScript refills and consumes in one round trip. Timestamps are
// passed in microseconds to keep sub-second refill precision.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local bucket = redis.call('HMGET', key, 'tokens', 'last')
local tokens = tonumber(bucket[1])
local last = tonumber(bucket[2])
if tokens == nil then
  tokens = capacity
  last = now
end
local elapsed = math.max(0, now - last) / 1000000
tokens = math.min(capacity, tokens + elapsed * rate)
local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end
redis.call('HMSET', key, 'tokens', tokens, 'last', now)
redis.call('EXPIRE', key, ttl)
return {allowed, tostring(tokens)}
`)

// slidingWindowScript prunes the sorted set, then records the request only
// when under the limit. Returns the oldest surviving timestamp so the
// caller can compute retry-after.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, now)
  allowed = 1
  count = count + 1
end
redis.call('EXPIRE', key, ttl)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldest_score = 0
if oldest[2] ~= nil then
  oldest_score = tonumber(oldest[2])
end
return {allowed, count, tostring(oldest_score)}
`)

// RedisTokenBucket is the distributed counterpart of TokenBucket.
type RedisTokenBucket struct {
	client *redis.Client
}

// NewRedisTokenBucket creates a Redis-backed token bucket strategy.
func NewRedisTokenBucket(client *redis.Client) *RedisTokenBucket {
	return &RedisTokenBucket{client: client}
}

// Name implements Strategy.
func (tb *RedisTokenBucket) Name() string { return AlgorithmTokenBucket }

// Check implements Strategy.
func (tb *RedisTokenBucket) Check(ctx context.Context, key string, cfg Config) (Result, error) {
	now := time.Now()

	if cfg.RequestsPerSecond <= 0 {
		return Result{
			Allowed:    false,
			Limit:      cfg.BurstSize,
			ResetAt:    now,
			RetryAfter: time.Second,
		}, nil
	}

	// TTL long enough to outlive any realistic refill gap.
	ttl := int(2 * float64(cfg.BurstSize) / cfg.RequestsPerSecond)
	if ttl < 60 {
		ttl = 60
	}

	res, err := tokenBucketScript.Run(ctx, tb.client, []string{"rl:tb:" + key},
		cfg.BurstSize, cfg.RequestsPerSecond, now.UnixMicro(), ttl).Result()
	if err != nil {
		return Result{}, fmt.Errorf("redis token bucket: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return Result{}, fmt.Errorf("redis token bucket: unexpected script result %v", res)
	}
	allowed, _ := vals[0].(int64)
	tokens := parseScriptFloat(vals[1])

	if allowed == 1 {
		return Result{
			Allowed:   true,
			Remaining: int(tokens),
			Limit:     cfg.BurstSize,
			ResetAt:   now.Add(time.Duration(float64(time.Second) / cfg.RequestsPerSecond)),
		}, nil
	}

	wait := time.Duration((1 - tokens) / cfg.RequestsPerSecond * float64(time.Second))
	return Result{
		Allowed:    false,
		Remaining:  int(tokens),
		Limit:      cfg.BurstSize,
		ResetAt:    now.Add(wait),
		RetryAfter: wait,
	}, nil
}

// Sweep implements Strategy. Redis expires idle keys via TTL.
func (tb *RedisTokenBucket) Sweep(time.Time) int { return 0 }

// RedisSlidingWindow is the distributed counterpart of SlidingWindow.
type RedisSlidingWindow struct {
	client *redis.Client
	window time.Duration
}

// NewRedisSlidingWindow creates a Redis-backed sliding window strategy.
func NewRedisSlidingWindow(client *redis.Client, window time.Duration) *RedisSlidingWindow {
	return &RedisSlidingWindow{client: client, window: window}
}

// Name implements Strategy.
func (sw *RedisSlidingWindow) Name() string { return AlgorithmSlidingWindow }

func (sw *RedisSlidingWindow) limitFor(cfg Config) int {
	if sw.window <= time.Minute {
		return cfg.RequestsPerMinute
	}
	return cfg.RequestsPerHour
}

// Check implements Strategy.
func (sw *RedisSlidingWindow) Check(ctx context.Context, key string, cfg Config) (Result, error) {
	now := time.Now()
	limit := sw.limitFor(cfg)
	ttl := int(sw.window/time.Second) + 1

	res, err := slidingWindowScript.Run(ctx, sw.client, []string{"rl:sw:" + key},
		now.UnixMicro(), sw.window.Microseconds(), limit, ttl).Result()
	if err != nil {
		return Result{}, fmt.Errorf("redis sliding window: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 3 {
		return Result{}, fmt.Errorf("redis sliding window: unexpected script result %v", res)
	}
	allowed, _ := vals[0].(int64)
	count, _ := vals[1].(int64)
	oldest := time.UnixMicro(int64(parseScriptFloat(vals[2])))

	reset := oldest.Add(sw.window)
	if oldest.IsZero() || oldest.UnixMicro() == 0 {
		reset = now.Add(sw.window)
	}

	if allowed == 1 {
		return Result{
			Allowed:   true,
			Remaining: limit - int(count),
			Limit:     limit,
			ResetAt:   reset,
		}, nil
	}

	retryAfter := reset.Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Result{
		Allowed:    false,
		Remaining:  0,
		Limit:      limit,
		ResetAt:    reset,
		RetryAfter: retryAfter,
	}, nil
}

// Sweep implements Strategy. Redis expires idle keys via TTL.
func (sw *RedisSlidingWindow) Sweep(time.Time) int { return 0 }

func parseScriptFloat(v interface{}) float64 {
	switch n := v.(type) {
	case string:
		var f float64
		fmt.Sscanf(n, "%f", &f)
		return f
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
