package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	limiterDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "helix",
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limit decisions by tier and outcome",
		},
		[]string{"tier", "outcome"},
	)

	limiterDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "helix",
			Subsystem: "ratelimit",
			Name:      "check_duration_seconds",
			Help:      "Time spent evaluating rate limit checks",
		},
	)
)

// KeyFunc derives the rate limit identity for a request.
type KeyFunc func(*http.Request) string

// Limiter composes multiple named strategies into one policy gate. Each
// inbound request must pass every tier; tiers are evaluated in registration
// order and the first denial short-circuits. The limiter itself holds no
// per-key state beyond what its strategies track.
type Limiter struct {
	cfg     Config
	tiers   []tier
	keyFunc KeyFunc
	logger  *zap.Logger
	stats   Stats

	defaultTiers bool
}

type tier struct {
	name     string
	strategy Strategy
}

// Stats tracks aggregate limiter counters. Increments are best-effort
// observability state: the totals are atomic, the per-key denial map is
// mutex-guarded.
type Stats struct {
	TotalRequests   atomic.Int64
	AllowedRequests atomic.Int64
	DeniedRequests  atomic.Int64

	mu           sync.Mutex
	denialsByKey map[string]int64
}

func (s *Stats) recordDenial(key string) {
	s.DeniedRequests.Add(1)
	s.mu.Lock()
	if s.denialsByKey == nil {
		s.denialsByKey = make(map[string]int64)
	}
	s.denialsByKey[key]++
	s.mu.Unlock()
}

// DenialsByKey returns a copy of the per-key denial counts.
func (s *Stats) DenialsByKey() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.denialsByKey))
	for k, v := range s.denialsByKey {
		out[k] = v
	}
	return out
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithKeyFunc overrides the default identity function (user id from the
// bearer token, falling back to client IP).
func WithKeyFunc(fn KeyFunc) Option {
	return func(l *Limiter) { l.keyFunc = fn }
}

// WithTier appends a named strategy tier, replacing the defaults the first
// time it is used.
func WithTier(name string, s Strategy) Option {
	return func(l *Limiter) {
		if l.defaultTiers {
			l.tiers = nil
			l.defaultTiers = false
		}
		l.tiers = append(l.tiers, tier{name: name, strategy: s})
	}
}

// New creates a limiter with the default tier set: burst (token bucket),
// minute (sliding window over 60s) and hour (fixed window over 3600s, or
// sliding window when cfg.HourTierAlgorithm selects it).
func New(cfg Config, logger *zap.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		cfg:          cfg,
		keyFunc:      KeyFromRequest,
		logger:       logger,
		defaultTiers: true,
	}

	var hour Strategy
	if cfg.HourTierAlgorithm == AlgorithmSlidingWindow {
		hour = NewSlidingWindow(time.Hour)
	} else {
		hour = NewFixedWindow(time.Hour)
	}
	l.tiers = []tier{
		{name: TierBurst, strategy: NewTokenBucket()},
		{name: TierMinute, strategy: NewSlidingWindow(time.Minute)},
		{name: TierHour, strategy: hour},
	}

	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check evaluates the request against every configured tier. Disabled
// limiters and exempt paths bypass with a sentinel result. On a strategy
// error the request is denied (fail closed).
func (l *Limiter) Check(ctx context.Context, r *http.Request) Result {
	start := time.Now()
	defer func() {
		limiterDuration.Observe(time.Since(start).Seconds())
	}()

	if !l.cfg.Enabled || l.cfg.exempt(r.URL.Path) {
		limiterDecisions.WithLabelValues("none", "bypassed").Inc()
		return Result{
			Allowed:   true,
			Remaining: ExemptRemaining,
			Limit:     ExemptRemaining,
			ResetAt:   time.Now(),
		}
	}

	l.stats.TotalRequests.Add(1)

	key := l.keyFunc(r)
	eff := l.cfg.resolve(r.URL.Path)

	var most Result
	haveMost := false
	for _, t := range l.tiers {
		res, err := t.strategy.Check(ctx, key+":"+t.name, eff)
		if err != nil {
			l.logger.Error("rate limit strategy error, denying request",
				zap.String("tier", t.name),
				zap.String("key", key),
				zap.Error(err))
			limiterDecisions.WithLabelValues(t.name, "error").Inc()
			l.stats.recordDenial(key)
			return Result{
				Allowed:    false,
				Remaining:  0,
				Limit:      res.Limit,
				ResetAt:    time.Now().Add(time.Minute),
				RetryAfter: time.Minute,
			}
		}
		if !res.Allowed {
			limiterDecisions.WithLabelValues(t.name, "denied").Inc()
			l.stats.recordDenial(key)
			return res
		}
		if !haveMost || res.Remaining < most.Remaining {
			most = res
			haveMost = true
		}
	}

	limiterDecisions.WithLabelValues("all", "allowed").Inc()
	l.stats.AllowedRequests.Add(1)
	return most
}

// Stats returns the limiter's aggregate counters.
func (l *Limiter) Stats() *Stats { return &l.stats }

// Sweep evicts per-key state idle since before cutoff across all tiers and
// returns the total number of evicted keys.
func (l *Limiter) Sweep(cutoff time.Time) int {
	removed := 0
	for _, t := range l.tiers {
		removed += t.strategy.Sweep(cutoff)
	}
	return removed
}
