package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a thread-safe, in-memory token bucket limiter.
// Capacity accrues continuously at RequestsPerSecond up to BurstSize; each
// allowed request spends one token. A denied request never consumes partial
// capacity: the refilled balance is stored unchanged.
type TokenBucket struct {
	mu      sync.Mutex
	buckets map[string]*bucketState
	now     func() time.Time
}

type bucketState struct {
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket creates a token bucket strategy. State is created lazily
// per key on first check, starting at full burst capacity.
func NewTokenBucket() *TokenBucket {
	return &TokenBucket{
		buckets: make(map[string]*bucketState),
		now:     time.Now,
	}
}

// Name implements Strategy.
func (tb *TokenBucket) Name() string { return AlgorithmTokenBucket }

// Check implements Strategy.
func (tb *TokenBucket) Check(_ context.Context, key string, cfg Config) (Result, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()

	// A zero refill rate can never mint a token; deny instead of dividing
	// by zero. The one-second retry hint is arbitrary since no wait helps.
	if cfg.RequestsPerSecond <= 0 {
		return Result{
			Allowed:    false,
			Remaining:  0,
			Limit:      cfg.BurstSize,
			ResetAt:    now,
			RetryAfter: time.Second,
		}, nil
	}

	st, ok := tb.buckets[key]
	if !ok {
		st = &bucketState{tokens: float64(cfg.BurstSize), lastRefill: now}
		tb.buckets[key] = st
	} else {
		elapsed := now.Sub(st.lastRefill).Seconds()
		if elapsed > 0 {
			st.tokens += elapsed * cfg.RequestsPerSecond
			if st.tokens > float64(cfg.BurstSize) {
				st.tokens = float64(cfg.BurstSize)
			}
		}
		st.lastRefill = now
	}

	if st.tokens >= 1 {
		st.tokens--
		return Result{
			Allowed:   true,
			Remaining: int(st.tokens),
			Limit:     cfg.BurstSize,
			ResetAt:   now.Add(time.Duration(float64(time.Second) / cfg.RequestsPerSecond)),
		}, nil
	}

	wait := time.Duration((1 - st.tokens) / cfg.RequestsPerSecond * float64(time.Second))
	return Result{
		Allowed:    false,
		Remaining:  int(st.tokens),
		Limit:      cfg.BurstSize,
		ResetAt:    now.Add(wait),
		RetryAfter: wait,
	}, nil
}

// Sweep implements Strategy.
func (tb *TokenBucket) Sweep(cutoff time.Time) int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	removed := 0
	for key, st := range tb.buckets {
		if st.lastRefill.Before(cutoff) {
			delete(tb.buckets, key)
			removed++
		}
	}
	return removed
}

func (tb *TokenBucket) keyCount() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.buckets)
}
