package ratelimit

import (
	"context"
	"sync"
	"time"
)

// FixedWindow implements a thread-safe, in-memory fixed window limiter over
// timestamp-aligned, non-overlapping windows. Counting resets at every
// window boundary, which permits up to 2x the limit across a boundary.
// That is the documented accuracy/simplicity tradeoff of this algorithm,
// not a bug; callers wanting strict boundary behavior should pick the
// sliding window instead.
type FixedWindow struct {
	window time.Duration
	mu     sync.Mutex
	counts map[string]*fixedWindowState
	now    func() time.Time
}

type fixedWindowState struct {
	count       int
	windowStart time.Time
	lastSeen    time.Time
}

// NewFixedWindow creates a fixed window strategy over the given window size.
func NewFixedWindow(window time.Duration) *FixedWindow {
	return &FixedWindow{
		window: window,
		counts: make(map[string]*fixedWindowState),
		now:    time.Now,
	}
}

// Name implements Strategy.
func (fw *FixedWindow) Name() string { return AlgorithmFixedWindow }

func (fw *FixedWindow) limitFor(cfg Config) int {
	if fw.window <= time.Minute {
		return cfg.RequestsPerMinute
	}
	return cfg.RequestsPerHour
}

// Check implements Strategy.
func (fw *FixedWindow) Check(_ context.Context, key string, cfg Config) (Result, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	now := fw.now()
	limit := fw.limitFor(cfg)
	windowStart := now.Truncate(fw.window)

	st, ok := fw.counts[key]
	if !ok || !st.windowStart.Equal(windowStart) {
		st = &fixedWindowState{windowStart: windowStart}
		fw.counts[key] = st
	}
	st.lastSeen = now

	reset := windowStart.Add(fw.window)

	if st.count < limit {
		st.count++
		return Result{
			Allowed:   true,
			Remaining: limit - st.count,
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

// Sweep implements Strategy.
func (fw *FixedWindow) Sweep(cutoff time.Time) int {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	removed := 0
	for key, st := range fw.counts {
		if st.lastSeen.Before(cutoff) {
			delete(fw.counts, key)
			removed++
		}
	}
	return removed
}

func (fw *FixedWindow) keyCount() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.counts)
}
