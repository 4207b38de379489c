package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically evicts per-key limiter state that has gone idle, so
// keys that stop sending traffic do not grow the maps forever. MaxIdle
// should be a multiple of the largest window in use; anything past the hour
// window can no longer influence a decision.
type Sweeper struct {
	limiter  *Limiter
	interval time.Duration
	maxIdle  time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a sweeper for the limiter. Non-positive interval or
// maxIdle fall back to 10 minutes and 2 hours respectively.
func NewSweeper(l *Limiter, interval, maxIdle time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if maxIdle <= 0 {
		maxIdle = 2 * time.Hour
	}
	return &Sweeper{
		limiter:  l,
		interval: interval,
		maxIdle:  maxIdle,
		logger:   logger,
	}
}

// Run sweeps on every tick until ctx is cancelled. Intended to be started
// as a goroutine at application assembly.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.maxIdle)
			if removed := s.limiter.Sweep(cutoff); removed > 0 {
				s.logger.Debug("swept idle rate limit keys",
					zap.Int("removed", removed),
					zap.Duration("max_idle", s.maxIdle))
			}
		}
	}
}
