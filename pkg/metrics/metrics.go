package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPRequests counts gateway requests by method, path and response status.
var HTTPRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "helix_http_requests_total",
		Help: "Total number of HTTP requests handled by the gateway",
	},
	[]string{"method", "path", "status"},
)

// CompletionLatency records upstream completion latency per provider.
var CompletionLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "helix_completion_latency_seconds",
		Help:    "Latency in seconds of upstream completion calls",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"provider"},
)

// UpstreamRetries counts retry attempts against upstream providers.
var UpstreamRetries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "helix_upstream_retries_total",
		Help: "Total number of retried upstream calls",
	},
	[]string{"provider"},
)

// HealthStatus reports the last observed health of each dependency (1 up, 0 down).
var HealthStatus = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "helix_dependency_healthy",
		Help: "Whether a dependency passed its last health check",
	},
	[]string{"service"},
)

func init() {
	prometheus.MustRegister(HTTPRequests, CompletionLatency)
	prometheus.MustRegister(UpstreamRetries, HealthStatus)
}
