// Package health aggregates dependency checks into a single gateway status.
package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helix-gateway/helix/pkg/metrics"
)

// Aggregate status values.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// ErrUnknownService is returned when a single-service lookup names a check
// that was never registered.
var ErrUnknownService = errors.New("unknown health check service")

// Result is the outcome of one dependency check.
type Result struct {
	OK        bool      `json:"ok"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary is the aggregate of all registered checks. Status is healthy iff
// every service is ok.
type Summary struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]Result `json:"services"`
}

// CheckFunc probes one dependency. It should honor ctx; the monitor applies
// a per-check timeout on top.
type CheckFunc func(ctx context.Context) Result

// Monitor runs a fixed registry of named checks. The registry is an
// explicit map resolved at construction time, so an unknown service name is
// a predictable not-found rather than a reflection miss.
type Monitor struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	names   []string // registration order, for stable display
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a monitor applying the given per-check timeout (10s when
// non-positive).
func New(logger *zap.Logger, timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Monitor{
		checks:  make(map[string]CheckFunc),
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a named check. Registering the same name again replaces the
// previous check.
func (m *Monitor) Register(name string, check CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.checks[name]; !exists {
		m.names = append(m.names, name)
	}
	m.checks[name] = check
}

// Services returns the registered check names in registration order.
func (m *Monitor) Services() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.names...)
}

// Summary fans out every registered check concurrently, waits for all of
// them, and reduces the results. Total latency tracks the slowest check,
// not the sum. A check that errors or panics degrades only its own entry.
func (m *Monitor) Summary(ctx context.Context) Summary {
	m.mu.RLock()
	checks := make(map[string]CheckFunc, len(m.checks))
	for name, check := range m.checks {
		checks[name] = check
	}
	m.mu.RUnlock()

	services := make(map[string]Result, len(checks))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			res := m.runCheck(ctx, name, check)
			mu.Lock()
			services[name] = res
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	status := StatusHealthy
	for name, res := range services {
		if res.OK {
			metrics.HealthStatus.WithLabelValues(name).Set(1)
		} else {
			metrics.HealthStatus.WithLabelValues(name).Set(0)
			status = StatusDegraded
		}
	}

	return Summary{
		Status:    status,
		Timestamp: time.Now(),
		Services:  services,
	}
}

// ServiceStatus runs the one named check. Returns ErrUnknownService when the
// name was never registered.
func (m *Monitor) ServiceStatus(ctx context.Context, name string) (Result, error) {
	m.mu.RLock()
	check, ok := m.checks[name]
	m.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	return m.runCheck(ctx, name, check), nil
}

// runCheck applies the per-check timeout and converts panics into a failed
// result so one misbehaving probe never takes down the aggregate.
func (m *Monitor) runCheck(ctx context.Context, name string, check CheckFunc) (res Result) {
	checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("health check panicked",
				zap.String("service", name),
				zap.Any("panic", r))
			res = Result{
				OK:        false,
				Detail:    fmt.Sprintf("Unexpected error: %v", r),
				Timestamp: time.Now(),
			}
		}
	}()

	res = check(checkCtx)
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now()
	}
	return res
}
