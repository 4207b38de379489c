// Package gateway binds the rate limiter, retry policy, health monitor and
// upstream providers together behind the HTTP request-handling surface.
package gateway

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/helix-gateway/helix/internal/config"
	"github.com/helix-gateway/helix/internal/health"
	"github.com/helix-gateway/helix/internal/provider"
	"github.com/helix-gateway/helix/internal/ratelimit"
	"github.com/helix-gateway/helix/internal/retry"
)

// Server is the gateway HTTP server.
type Server struct {
	router    *gin.Engine
	logger    *zap.Logger
	limiter   *ratelimit.Limiter
	providers *provider.Registry
	monitor   *health.Monitor
	retry     retry.Policy
}

// NewServer wires the router. The limiter, registry and monitor are
// constructed at application start and injected here; the server owns no
// hidden global state.
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	limiter *ratelimit.Limiter,
	providers *provider.Registry,
	monitor *health.Monitor,
) *Server {
	s := &Server{
		logger:    logger,
		limiter:   limiter,
		providers: providers,
		monitor:   monitor,
		retry: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			MinWait:     cfg.Retry.MinWait,
			MaxWait:     cfg.Retry.MaxWait,
		},
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware("helix-gateway"))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}))
	router.Use(RequestID())
	router.Use(Metrics())

	router.GET("/health", s.handleHealth)
	router.GET("/healthz", s.handleHealth)
	router.GET("/healthz/:service", s.handleServiceHealth)

	if cfg.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	gated := router.Group("/", RateLimit(limiter))
	gated.POST("/completion", s.handleCompletion)

	s.router = router
	return s
}

// Router returns the gin engine, for tests and for the http.Server in main.
func (s *Server) Router() *gin.Engine { return s.router }

// handleHealth serves the aggregate summary: 200 when healthy, 503 when any
// dependency is degraded.
func (s *Server) handleHealth(c *gin.Context) {
	summary := s.monitor.Summary(c.Request.Context())

	status := http.StatusOK
	if summary.Status != health.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, summary)
}

// handleServiceHealth serves one dependency's result, 404 for unknown names.
func (s *Server) handleServiceHealth(c *gin.Context) {
	name := c.Param("service")
	res, err := s.monitor.ServiceStatus(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown service", "service": name})
		return
	}

	status := http.StatusOK
	if !res.OK {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"service": name, "result": res})
}
