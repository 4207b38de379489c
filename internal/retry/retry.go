// Package retry wraps outbound calls with bounded exponential backoff.
// Which failures are retried is the core contract: transient network
// failures and a fixed set of HTTP statuses are worth another attempt,
// everything else fails fast on the first try.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// HTTPStatusError reports a non-2xx upstream response. It preserves the
// original status and body so exhausted retries surface the real failure.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("upstream returned %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("upstream returned %s", e.Status)
}

// retryableStatuses are the HTTP codes that signal a transient condition.
// 429 and the 5xx gateway/availability codes mean "try again later"; every
// other 4xx is a permanent request problem and retrying only wastes time.
var retryableStatuses = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// IsRetryable classifies an error as transient (worth retrying) or
// permanent. Transient: network timeouts (including per-attempt deadline
// expiry), connection refused/reset, and HTTPStatusError with a retryable
// status. Cancellation is never retried; the caller gave up. When the
// parent context itself has expired, the backoff wait exits immediately
// regardless of classification.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return retryableStatuses[statusErr.StatusCode]
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	return false
}

// Policy bounds a retry sequence. The attempt count is authoritative; there
// is no separate wall-clock deadline beyond the caller's context.
type Policy struct {
	MaxAttempts int
	MinWait     time.Duration
	MaxWait     time.Duration

	// Retryable classifies failures; nil means IsRetryable.
	Retryable func(error) bool

	// OnRetry, if set, observes each retry (attempt counted from 0).
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DefaultPolicy matches the upstream-call defaults: three attempts with
// backoff between 500ms and 8s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		MinWait:     500 * time.Millisecond,
		MaxWait:     8 * time.Second,
	}
}

// wait returns the backoff before the attempt following failed attempt i:
// min(MaxWait, MinWait * 2^i).
func (p Policy) wait(attempt int) time.Duration {
	w := p.MinWait << uint(attempt)
	if w <= 0 || w > p.MaxWait {
		return p.MaxWait
	}
	return w
}

// Do executes op up to p.MaxAttempts times, sleeping with exponential
// backoff between attempts. A non-retryable failure returns immediately;
// on exhaustion the last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !retryable(err) || attempt == attempts-1 {
			return zero, lastErr
		}

		w := p.wait(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, w, err)
		}

		timer := time.NewTimer(w)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}
