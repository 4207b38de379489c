package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow implements a thread-safe, in-memory sliding window limiter.
// Per-key state is the list of request timestamps inside the trailing
// window; every check prunes entries older than the window, which is what
// bounds state growth. Checks are O(n) in window occupancy. Do not replace
// the timestamp list with a counter approximation: the boundary behavior
// (a slot frees exactly when the oldest request ages out) is load-bearing.
type SlidingWindow struct {
	window  time.Duration
	mu      sync.Mutex
	entries map[string]*windowEntries
	now     func() time.Time
}

type windowEntries struct {
	stamps   []time.Time
	lastSeen time.Time
}

// NewSlidingWindow creates a sliding window strategy over the given window
// size. The per-minute config limit applies to windows up to one minute;
// larger windows use the per-hour limit.
func NewSlidingWindow(window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		window:  window,
		entries: make(map[string]*windowEntries),
		now:     time.Now,
	}
}

// Name implements Strategy.
func (sw *SlidingWindow) Name() string { return AlgorithmSlidingWindow }

func (sw *SlidingWindow) limitFor(cfg Config) int {
	if sw.window <= time.Minute {
		return cfg.RequestsPerMinute
	}
	return cfg.RequestsPerHour
}

// Check implements Strategy.
func (sw *SlidingWindow) Check(_ context.Context, key string, cfg Config) (Result, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	limit := sw.limitFor(cfg)

	e, ok := sw.entries[key]
	if !ok {
		e = &windowEntries{}
		sw.entries[key] = e
	}
	e.lastSeen = now

	// Drop timestamps at or before the window edge.
	edge := now.Add(-sw.window)
	idx := 0
	for idx < len(e.stamps) && !e.stamps[idx].After(edge) {
		idx++
	}
	if idx > 0 {
		e.stamps = e.stamps[idx:]
	}

	if len(e.stamps) < limit {
		e.stamps = append(e.stamps, now)
		reset := now.Add(sw.window)
		if len(e.stamps) > 0 {
			reset = e.stamps[0].Add(sw.window)
		}
		return Result{
			Allowed:   true,
			Remaining: limit - len(e.stamps),
			Limit:     limit,
			ResetAt:   reset,
		}, nil
	}

	var retryAfter time.Duration
	reset := now.Add(sw.window)
	if len(e.stamps) > 0 {
		reset = e.stamps[0].Add(sw.window)
		retryAfter = reset.Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
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
func (sw *SlidingWindow) Sweep(cutoff time.Time) int {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	removed := 0
	for key, e := range sw.entries {
		if e.lastSeen.Before(cutoff) {
			delete(sw.entries, key)
			removed++
		}
	}
	return removed
}

func (sw *SlidingWindow) keyCount() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return len(sw.entries)
}
