package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/helix-gateway/helix/internal/config"
	"github.com/helix-gateway/helix/internal/gateway"
	"github.com/helix-gateway/helix/internal/health"
	"github.com/helix-gateway/helix/internal/provider"
	"github.com/helix-gateway/helix/internal/ratelimit"
	"github.com/helix-gateway/helix/pkg/logger"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load("./config.yaml", "./configs/config.yaml", "/etc/helix/config.yaml")
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	log.Info("starting helix gateway",
		zap.String("environment", cfg.Environment),
		zap.String("addr", cfg.Server.Addr()))

	limiterCfg := ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		RequestsPerHour:   cfg.RateLimit.RequestsPerHour,
		BurstSize:         cfg.RateLimit.BurstSize,
		HourTierAlgorithm: cfg.RateLimit.HourTierAlgorithm,
		ExemptPaths:       cfg.RateLimit.ExemptPaths,
	}
	for _, o := range cfg.RateLimit.EndpointOverrides {
		limiterCfg.EndpointOverrides = append(limiterCfg.EndpointOverrides, ratelimit.EndpointOverride{
			PathPrefix:        o.PathPrefix,
			RequestsPerSecond: o.RequestsPerSecond,
			RequestsPerMinute: o.RequestsPerMinute,
			RequestsPerHour:   o.RequestsPerHour,
			BurstSize:         o.BurstSize,
		})
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	var limiter *ratelimit.Limiter
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		// Shared quota across replicas: burst and minute tiers move to
		// Redis; the hour tier keeps the configured local algorithm since
		// an hourly window tolerates per-replica drift.
		limiter = ratelimit.New(limiterCfg, log,
			ratelimit.WithTier(ratelimit.TierBurst, ratelimit.NewRedisTokenBucket(redisClient)),
			ratelimit.WithTier(ratelimit.TierMinute, ratelimit.NewRedisSlidingWindow(redisClient, time.Minute)),
			ratelimit.WithTier(ratelimit.TierHour, hourTier(limiterCfg)),
		)
		log.Info("rate limiter using redis store", zap.String("addr", cfg.Redis.Addr))
	} else {
		limiter = ratelimit.New(limiterCfg, log)
	}

	sweeper := ratelimit.NewSweeper(limiter, cfg.RateLimit.SweepInterval, cfg.RateLimit.SweepMaxIdle, log)
	go sweeper.Run(rootCtx)

	openAI := provider.NewOpenAI(provider.Config{
		APIKey:  cfg.Providers.OpenAI.APIKey,
		BaseURL: cfg.Providers.OpenAI.BaseURL,
		Model:   cfg.Providers.OpenAI.Model,
		Timeout: cfg.Providers.OpenAI.Timeout,
	})
	anthropic := provider.NewAnthropic(provider.Config{
		APIKey:  cfg.Providers.Anthropic.APIKey,
		BaseURL: cfg.Providers.Anthropic.BaseURL,
		Model:   cfg.Providers.Anthropic.Model,
		Timeout: cfg.Providers.Anthropic.Timeout,
	})
	registry := provider.NewRegistry(openAI, anthropic)

	monitor := health.New(log, cfg.Health.CheckTimeout)
	monitor.Register("openai", health.PingCheck(openAI))
	monitor.Register("anthropic", health.PingCheck(anthropic))
	monitor.Register("runtime", health.RuntimeCheck())
	if redisClient != nil {
		monitor.Register("redis", health.RedisCheck(redisClient))
	}

	server := gateway.NewServer(cfg, log, limiter, registry, monitor)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}

func hourTier(cfg ratelimit.Config) ratelimit.Strategy {
	if cfg.HourTierAlgorithm == ratelimit.AlgorithmSlidingWindow {
		return ratelimit.NewSlidingWindow(time.Hour)
	}
	return ratelimit.NewFixedWindow(time.Hour)
}
