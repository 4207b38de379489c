// Package ratelimit implements the gateway's request rate limiting: three
// strategy algorithms (token bucket, sliding window, fixed window), a
// composing limiter with per-endpoint overrides and exempt paths, and an
// optional Redis-backed store for multi-replica deployments.
package ratelimit

import (
	"context"
	"time"
)

// Strategy algorithm names.
const (
	AlgorithmTokenBucket   = "token_bucket"
	AlgorithmSlidingWindow = "sliding_window"
	AlgorithmFixedWindow   = "fixed_window"
)

// Default strategy tier names. Tiers are evaluated in this order and the
// composite state key is "<identity>:<tier>".
const (
	TierBurst  = "burst"
	TierMinute = "minute"
	TierHour   = "hour"
)

// ExemptRemaining is the sentinel remaining quota reported for requests that
// bypass rate limiting (disabled limiter or exempt path).
const ExemptRemaining = 1 << 30

// Config holds the rate limiting policy for one scope. A Config is never
// mutated after construction; endpoint overrides produce derived copies.
type Config struct {
	Enabled           bool
	RequestsPerSecond float64
	RequestsPerMinute int
	RequestsPerHour   int
	BurstSize         int

	// HourTierAlgorithm selects the algorithm backing the hour tier.
	// The fixed window default trades boundary accuracy for O(1) state;
	// operators who care about the double-burst boundary behavior can set
	// it to AlgorithmSlidingWindow.
	HourTierAlgorithm string

	// EndpointOverrides is scanned in order; the first PathPrefix match
	// wins, so more specific prefixes must be listed first.
	EndpointOverrides []EndpointOverride

	ExemptPaths []string
}

// EndpointOverride replaces base limits for paths under PathPrefix.
// Zero-valued fields inherit the base config.
type EndpointOverride struct {
	PathPrefix        string
	RequestsPerSecond float64
	RequestsPerMinute int
	RequestsPerHour   int
	BurstSize         int
}

// resolve returns the effective config for a request path: the base config,
// or a derived copy with the first matching override applied.
func (c Config) resolve(path string) Config {
	for _, o := range c.EndpointOverrides {
		if hasPathPrefix(path, o.PathPrefix) {
			eff := c
			if o.RequestsPerSecond > 0 {
				eff.RequestsPerSecond = o.RequestsPerSecond
			}
			if o.RequestsPerMinute > 0 {
				eff.RequestsPerMinute = o.RequestsPerMinute
			}
			if o.RequestsPerHour > 0 {
				eff.RequestsPerHour = o.RequestsPerHour
			}
			if o.BurstSize > 0 {
				eff.BurstSize = o.BurstSize
			}
			return eff
		}
	}
	return c
}

func (c Config) exempt(path string) bool {
	for _, p := range c.ExemptPaths {
		if path == p {
			return true
		}
	}
	return false
}

// hasPathPrefix matches on path segment boundaries, so "/v1/completion"
// matches the prefix "/v1" but "/v1x" does not.
func hasPathPrefix(path, prefix string) bool {
	if prefix == "" || len(path) < len(prefix) || path[:len(prefix)] != prefix {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/' || prefix[len(prefix)-1] == '/'
}

// Result is the outcome of one rate limit check.
//
// Invariants: Allowed implies RetryAfter == 0; !Allowed implies
// Remaining <= 0 and RetryAfter > 0 (clamped to a minimum of zero).
type Result struct {
	Allowed    bool          `json:"allowed"`
	Remaining  int           `json:"remaining"`
	Limit      int           `json:"limit"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Strategy is one rate limiting algorithm applied to a composite key.
// In-memory strategies ignore ctx and never return an error; Redis-backed
// strategies use both. The limiter fails closed on a strategy error.
type Strategy interface {
	Name() string
	Check(ctx context.Context, key string, cfg Config) (Result, error)
	// Sweep evicts state for keys idle since before cutoff and reports how
	// many were removed. Stores with server-side expiry may return 0.
	Sweep(cutoff time.Time) int
}
