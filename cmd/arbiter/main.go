// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

// Package main is the entry point for the Arbiter authorization engine.
//
// Arbiter answers role-based access control questions: it stores users,
// roles, and permissions, expands role hierarchies, and evaluates
// permission checks through a two-tier cache (in-process decision
// cache plus an optional shared Redis layer).
//
// # Startup order
//
//  1. Configuration: Koanf v2 layered load (defaults, YAML file,
//     ARBITER_* environment variables)
//  2. Logging: zerolog global logger
//  3. Distributed cache: Redis connection when redis.addr is set;
//     startup continues without it on failure (the engine evaluates
//     every check directly)
//  4. Core: entity store, hierarchy resolver, evaluator, facade
//  5. Metrics: Prometheus exposition on metrics.addr
//
// # Configuration
//
// Environment variables use the ARBITER_ prefix:
//
//	export ARBITER_REDIS_ADDR=localhost:6379
//	export ARBITER_CACHE_BASE_TTL=5m
//	export ARBITER_LOG_LEVEL=debug
//	./arbiter
//
// A YAML file is read from ARBITER_CONFIG_PATH or ./arbiter.yaml.
//
// # Signal handling
//
// SIGINT and SIGTERM shut the process down gracefully: the metrics
// listener stops, the evaluator's background sweeper is released, and
// the Redis connection is closed.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arbiterhq/arbiter/internal/authz"
	"github.com/arbiterhq/arbiter/internal/config"
	"github.com/arbiterhq/arbiter/internal/engine"
	"github.com/arbiterhq/arbiter/internal/hierarchy"
	"github.com/arbiterhq/arbiter/internal/logging"
	"github.com/arbiterhq/arbiter/internal/rediscache"
	"github.com/arbiterhq/arbiter/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	logging.Info().
		Str("redis_addr", cfg.Redis.Addr).
		Str("namespace", cfg.Cache.Namespace).
		Dur("base_ttl", cfg.Cache.BaseTTL).
		Msg("Starting Arbiter")

	remote := connectCache(cfg)
	if remote != nil {
		defer func() {
			if err := remote.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing cache connection")
			}
		}()
	}

	st := store.New()
	resolver, err := hierarchy.NewResolver(st, cfg.Cache.HierarchySize)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize hierarchy resolver")
	}
	evaluator := engine.NewEvaluator(st, resolver, cfg.Cache.DecisionTTL)

	svc, err := authz.NewService(st, resolver, evaluator, remote, authz.ServiceConfig{
		BulkConcurrency: cfg.Bulk.Concurrency,
		AuditCapacity:   cfg.Audit.Capacity,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authorization service")
	}
	defer svc.Close()

	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		metricsSrv = startMetricsServer(cfg.Metrics.Addr)
	}

	logging.Info().Msg("Arbiter ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logging.Info().Str("signal", sig.String()).Msg("Shutting down")

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("Metrics server shutdown error")
		}
	}
}

// connectCache dials Redis if configured. A failed connection is
// logged and the engine runs without the distributed layer rather than
// refusing to start.
func connectCache(cfg *config.Config) *rediscache.Cache {
	if cfg.Redis.Addr == "" {
		logging.Info().Msg("Distributed cache disabled (no redis address)")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.DialTimeout)
	defer cancel()

	remote, err := rediscache.New(ctx, rediscache.Config{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		Namespace:   cfg.Cache.Namespace,
		BaseTTL:     cfg.Cache.BaseTTL,
		DialTimeout: cfg.Redis.DialTimeout,
		OpTimeout:   cfg.Redis.OpTimeout,
	})
	if err != nil {
		logging.Warn().Err(err).Str("addr", cfg.Redis.Addr).
			Msg("Distributed cache unavailable, continuing with direct evaluation")
		return nil
	}

	logging.Info().Str("addr", cfg.Redis.Addr).Msg("Distributed cache connected")
	return remote
}

// startMetricsServer exposes Prometheus metrics and a health probe.
func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logging.Info().Str("addr", addr).Msg("Metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return srv
}
