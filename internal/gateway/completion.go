package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/helix-gateway/helix/internal/provider"
	"github.com/helix-gateway/helix/internal/retry"
	"github.com/helix-gateway/helix/pkg/metrics"
)

// completionRequest is the inbound /completion payload.
type completionRequest struct {
	Prompt      string  `json:"prompt" binding:"required"`
	Agent       string  `json:"agent" binding:"required"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Stream      bool    `json:"stream"`
}

// completionResponse is the outbound /completion payload.
type completionResponse struct {
	Content string          `json:"content"`
	Agent   string          `json:"agent"`
	Model   string          `json:"model"`
	Usage   *provider.Usage `json:"usage,omitempty"`
}

// handleCompletion dispatches to the named upstream agent. The call is
// wrapped with the retry policy; only transient failures are retried and
// exhaustion surfaces the last real error.
func (s *Server) handleCompletion(c *gin.Context) {
	var req completionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	p, err := s.providers.Get(req.Agent)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "unknown agent",
			"agent":  req.Agent,
			"agents": s.providers.Names(),
		})
		return
	}

	policy := s.retry
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		metrics.UpstreamRetries.WithLabelValues(p.Name()).Inc()
		s.logger.Warn("retrying upstream call",
			zap.String("provider", p.Name()),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	start := time.Now()
	completion, err := retry.Do(c.Request.Context(), policy,
		func(ctx context.Context) (*provider.Completion, error) {
			return p.Complete(ctx, provider.Request{
				Prompt:      req.Prompt,
				Model:       req.Model,
				Temperature: req.Temperature,
				MaxTokens:   req.MaxTokens,
				Stream:      req.Stream,
			})
		})
	metrics.CompletionLatency.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		s.writeUpstreamError(c, p.Name(), err)
		return
	}

	c.JSON(http.StatusOK, completionResponse{
		Content: completion.Content,
		Agent:   p.Name(),
		Model:   completion.Model,
		Usage:   completion.Usage,
	})
}

// writeUpstreamError maps an upstream failure onto the gateway response:
// missing credentials and exhausted transient failures are 503, permanent
// upstream 4xx codes pass through, anything else is a 502. The original
// error text is preserved in the body.
func (s *Server) writeUpstreamError(c *gin.Context, providerName string, err error) {
	s.logger.Error("upstream call failed",
		zap.String("provider", providerName),
		zap.Error(err))

	if errors.Is(err, provider.ErrNotConfigured) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":    "provider not configured",
			"provider": providerName,
		})
		return
	}

	var statusErr *retry.HTTPStatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 && statusErr.StatusCode != http.StatusTooManyRequests {
			c.JSON(statusErr.StatusCode, gin.H{
				"error":    statusErr.Error(),
				"provider": providerName,
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":    statusErr.Error(),
			"provider": providerName,
		})
		return
	}

	c.JSON(http.StatusBadGateway, gin.H{
		"error":    err.Error(),
		"provider": providerName,
	})
}
