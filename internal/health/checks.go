package health

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger is anything that can verify its own reachability, e.g. an upstream
// provider client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger into a CheckFunc.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) Result {
		start := time.Now()
		if err := p.Ping(ctx); err != nil {
			return Result{
				OK:        false,
				Detail:    fmt.Sprintf("Unexpected error: %v", err),
				Timestamp: time.Now(),
			}
		}
		return Result{
			OK:        true,
			Detail:    fmt.Sprintf("reachable in %s", time.Since(start).Round(time.Millisecond)),
			Timestamp: time.Now(),
		}
	}
}

// RedisCheck probes the shared rate limit store.
func RedisCheck(client *redis.Client) CheckFunc {
	return func(ctx context.Context) Result {
		if err := client.Ping(ctx).Err(); err != nil {
			return Result{
				OK:        false,
				Detail:    fmt.Sprintf("Unexpected error: redis ping failed: %v", err),
				Timestamp: time.Now(),
			}
		}
		return Result{OK: true, Detail: "redis reachable", Timestamp: time.Now()}
	}
}

// RuntimeCheck reports process-level vitals. It never fails; the numbers are
// for operators reading the health payload.
func RuntimeCheck() CheckFunc {
	return func(ctx context.Context) Result {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return Result{
			OK:        true,
			Detail:    fmt.Sprintf("goroutines=%d heap_alloc=%dMB", runtime.NumGoroutine(), ms.HeapAlloc/(1<<20)),
			Timestamp: time.Now(),
		}
	}
}
