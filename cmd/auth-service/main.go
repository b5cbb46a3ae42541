// Package main is the entry point for the vehicert auth service.
// The auth service fronts the identity provider's self-service flows and
// derives the session and permission view the vehicert web apps consume.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vehicert/vehicert/internal/common/config"
	"github.com/vehicert/vehicert/internal/common/logger"
	"github.com/vehicert/vehicert/internal/common/tracing"
	"github.com/vehicert/vehicert/internal/server"
)

var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "unknown"
)

func main() {
	// Initialize logger
	log := logger.New()
	defer log.Sync()

	log.Info("Starting Auth Service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", CommitHash),
	)

	// Load configuration
	cfg, err := config.Load("auth-service")
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	cfg.LogSecurityWarnings(log)

	// Initialize tracing
	tracingCfg := tracing.ConfigFromEnv("auth-service", cfg.Environment)
	shutdownTracer, err := tracing.Init(context.Background(), tracingCfg, log)
	if err != nil {
		log.Error("Failed to initialize tracing, continuing without it", zap.Error(err))
	}

	// Initialize Redis connection (profile cache + distributed rate limiter).
	// The service degrades without it, so a bad Redis URL is not fatal.
	var rdb redis.UniversalClient
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Error("Invalid Redis URL, continuing without Redis", zap.Error(err))
		} else {
			rdb = redis.NewClient(opts)
		}
	}

	srv := server.New(cfg, log, rdb)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	gs := server.NewGraceful(server.GracefulConfig{
		Server:          httpServer,
		Logger:          log,
		ShutdownTimeout: 30 * time.Second,
	})
	if rdb != nil {
		gs.AddShutdownable(server.CloseRedis(rdb))
	}
	if shutdownTracer != nil {
		gs.AddShutdownable(server.CloseTracer(shutdownTracer))
	}

	if err := gs.ListenAndServe(); err != nil {
		log.Fatal("Server error", zap.Error(err))
	}

	log.Info("Server exited")
}
