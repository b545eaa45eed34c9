// Package main is the entry point for the token risk engine.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/odinsmash/engine/internal/api"
	"github.com/odinsmash/engine/internal/cache"
	"github.com/odinsmash/engine/internal/config"
	"github.com/odinsmash/engine/internal/ingest"
	"github.com/odinsmash/engine/internal/metrics"
	"github.com/odinsmash/engine/internal/pipeline"
	"github.com/odinsmash/engine/internal/risk"
	"github.com/odinsmash/engine/internal/store"
	"github.com/odinsmash/engine/internal/ui"
)

const (
	// JobChannelBuffer is the size of the buffered token id channel
	JobChannelBuffer = 500
	// MaintenanceInterval is how often stale state is pruned
	MaintenanceInterval = 5 * time.Minute
	// ReportMaxAge is how long a report survives without being refreshed
	ReportMaxAge = time.Hour
	// ShutdownTimeout bounds the graceful shutdown of each component
	ShutdownTimeout = 5 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger := setupLogger(cfg.LogLevel, cfg.EnableTUI)
	slog.SetDefault(logger)

	slog.Info("risk engine starting",
		"version", "1.0.0",
	)

	// Log configuration (secrets masked)
	slog.Info("config_loaded",
		"odin_api_url", cfg.OdinAPIURL,
		"odin_api_key", cfg.MaskedAPIKey(),
		"redis_url", cfg.MaskedRedisURL(),
		"poll_interval", cfg.PollInterval,
		"token_limit", cfg.TokenLimit,
		"worker_count", cfg.WorkerCount,
		"cache_ttl", cfg.CacheTTL,
		"max_retries", cfg.MaxRetries,
		"db_path", cfg.DBPath,
		"http_port", cfg.HTTPPort,
		"enable_tui", cfg.EnableTUI,
		"trusted_tokens", len(cfg.TrustedTokens),
		"trusted_developers", len(cfg.TrustedDevelopers),
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Upstream cache
	upstreamCache := setupCache(ctx, cfg)
	defer upstreamCache.Close()

	// Holder history
	history, err := store.OpenHistory(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open history store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer history.Close()

	// Upstream client
	client := ingest.NewClient(cfg.OdinAPIURL, cfg.OdinAPIKey, cfg.HTTPTimeout, cfg.MaxRetries)
	source := ingest.NewCachedSource(client, upstreamCache, ingest.DefaultTTLs(cfg.CacheTTL))

	// Assessor with the built-in allowlists extended by config
	assessor := risk.NewAssessor(
		mergeLists(risk.TrustedTokens, cfg.TrustedTokens),
		mergeLists(risk.TrustedDevelopers, cfg.TrustedDevelopers),
	)

	tracker := metrics.NewMetricsTracker()
	evaluator := pipeline.NewEvaluator(source, history, assessor)

	jobs := make(chan string, JobChannelBuffer)

	// Token poller
	poller := ingest.NewTokenPoller(source, cfg.TokenLimit, cfg.PollInterval, jobs)
	poller.OnPoll = func(tokens []store.Token, err error) {
		if err != nil {
			tracker.SetPollStatus("error")
		} else {
			tracker.SetPollStatus("ok")
			tracker.SetLastPoll(time.Now(), len(tokens))
		}
		tracker.SetChannelBuffer(len(jobs), cap(jobs))
		tracker.SetCacheStats(source.Stats())
	}
	go poller.Start(ctx)

	// Worker pool
	workersDone := make(chan struct{})
	go func() {
		evaluator.Run(ctx, cfg.WorkerCount, jobs, tracker)
		close(workersDone)
	}()

	// Periodic maintenance
	go maintain(ctx, tracker, upstreamCache, history, cfg.HistoryRetention)

	// HTTP API
	var server *api.Server
	if cfg.HTTPPort > 0 {
		server = api.NewServer(fmt.Sprintf(":%d", cfg.HTTPPort), tracker, evaluator)
		if err := server.Start(ctx); err != nil {
			slog.Error("failed to start api server", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("engine_started",
		"status", "polling tokens",
		"workers", cfg.WorkerCount,
		"api_enabled", server != nil,
		"tui_enabled", cfg.EnableTUI,
	)

	// Start TUI or run in background mode
	if cfg.EnableTUI {
		slog.Info("starting_tui")
		app := ui.NewApp(tracker, cfg.UIRefreshRate, func() {
			go func() {
				if err := poller.Poll(ctx); err != nil {
					slog.Warn("manual_poll_failed", "error", err)
				}
			}()
		})

		// Start TUI in goroutine so we can still handle signals
		go func() {
			if err := app.Run(); err != nil {
				slog.Error("tui_error", "error", err)
			}
			cancel()
		}()

		// Wait for shutdown signal or the TUI quitting
		select {
		case sig := <-sigChan:
			slog.Info("shutdown_signal_received", "signal", sig.String())
			app.Stop()
		case <-ctx.Done():
		}
	} else {
		// Background mode - just wait for signal
		sig := <-sigChan
		slog.Info("shutdown_signal_received", "signal", sig.String())
	}

	cancel()

	// Graceful shutdown
	slog.Info("shutting_down", "status", "stopping api and workers")
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		if err := server.Stop(shutdownCtx); err != nil {
			slog.Warn("api_shutdown_failed", "error", err)
		}
		shutdownCancel()
	}

	select {
	case <-workersDone:
	case <-time.After(ShutdownTimeout):
		slog.Warn("workers_shutdown_timeout")
	}

	// Drain remaining jobs
	drainJobs(jobs)

	slog.Info("shutdown_complete")
}

// setupCache connects to Redis when configured and falls back to an
// in-process cache. A zero TTL disables caching.
func setupCache(ctx context.Context, cfg *config.Config) cache.Cache {
	if cfg.CacheTTL == 0 {
		slog.Info("cache_disabled")
		return cache.NoOpCache{}
	}

	if cfg.RedisURL != "" {
		pingCtx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
		defer cancel()

		rc, err := cache.NewRedisCache(pingCtx, cfg.RedisURL, cache.DefaultKeyPrefix)
		if err == nil {
			slog.Info("cache_ready", "backend", "redis")
			return rc
		}
		slog.Warn("redis_unavailable_using_memory_cache", "error", err)
	}

	slog.Info("cache_ready", "backend", "memory")
	return cache.NewMemoryCache()
}

// maintain prunes stale reports, expired cache entries and old history rows.
func maintain(ctx context.Context, tracker *metrics.MetricsTracker, c cache.Cache, history *store.HistoryStore, retention time.Duration) {
	ticker := time.NewTicker(MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reports := tracker.Cleanup(ReportMaxAge)

			expired := 0
			if mc, ok := c.(*cache.MemoryCache); ok {
				expired = mc.Cleanup()
			}

			var pruned int64
			if retention > 0 {
				n, err := history.Prune(ctx, time.Now().Add(-retention))
				if err != nil {
					slog.Warn("history_prune_failed", "error", err)
				}
				pruned = n
			}

			slog.Debug("maintenance_complete",
				"reports_removed", reports,
				"cache_expired", expired,
				"history_pruned", pruned,
			)
		}
	}
}

// drainJobs discards token ids still queued at shutdown.
func drainJobs(jobs <-chan string) {
	timeout := time.After(ShutdownTimeout)
	drained := 0

	for {
		select {
		case <-jobs:
			drained++
		case <-timeout:
			if drained > 0 {
				slog.Info("jobs_drained", "count", drained)
			}
			return
		default:
			if drained > 0 {
				slog.Info("jobs_drained", "count", drained)
			}
			return
		}
	}
}

// mergeLists returns base followed by extra without duplicates.
func mergeLists(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// setupLogger creates a structured logger with the specified level.
// Format: 2025-01-04 14:32:01 [INFO]  message key=value
// With the TUI enabled, logs go to stderr so they can be redirected away
// from the dashboard.
func setupLogger(levelStr string, tui bool) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05"))
				}
			}
			return a
		},
	}

	out := os.Stdout
	if tui {
		out = os.Stderr
	}

	handler := slog.NewTextHandler(out, opts)
	return slog.New(handler)
}
