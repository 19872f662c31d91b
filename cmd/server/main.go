// Package main is the entrypoint for the NoteGraph API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/notegraphhq/notegraph/internal/api"
	"github.com/notegraphhq/notegraph/internal/api/handler"
	mw "github.com/notegraphhq/notegraph/internal/api/middleware"
	"github.com/notegraphhq/notegraph/internal/api/response"
	"github.com/notegraphhq/notegraph/internal/cache"
	"github.com/notegraphhq/notegraph/internal/config"
	"github.com/notegraphhq/notegraph/internal/extract"
	"github.com/notegraphhq/notegraph/internal/insight"
	"github.com/notegraphhq/notegraph/internal/job"
	"github.com/notegraphhq/notegraph/internal/op"
	"github.com/notegraphhq/notegraph/internal/report"
	"github.com/notegraphhq/notegraph/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "engine_url", cfg.Engine.BaseURL, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Build the insight engine client
	transport := insight.NewHTTPTransport(cfg.Engine.BaseURL, cfg.Engine.APIKey)
	executor, err := insight.NewExecutor(transport, insight.RetryConfig{
		MaxRetries:        cfg.Engine.MaxRetries,
		BaseDelay:         cfg.Engine.BaseDelay,
		MaxDelay:          cfg.Engine.MaxDelay,
		BaseTimeout:       cfg.Engine.BaseTimeout,
		MaxTimeout:        cfg.Engine.MaxTimeout,
		TimeoutMultiplier: cfg.Engine.TimeoutMultiplier,
	}, slog.Default())
	if err != nil {
		return fmt.Errorf("create engine executor: %w", err)
	}

	merger := extract.NewMerger(
		extract.NewEngineExtractor(executor, cfg.Engine.ExtractPath),
		extract.Config{ChunkSize: cfg.Extract.ChunkSize, ChunkThreshold: cfg.Extract.ChunkThreshold},
		slog.Default(),
	)

	poller := job.NewPoller(executor, job.PollConfig{
		FastInterval:         cfg.Poll.FastInterval,
		MediumInterval:       cfg.Poll.MediumInterval,
		SlowInterval:         cfg.Poll.SlowInterval,
		FastUntil:            cfg.Poll.FastUntil,
		MediumUntil:          cfg.Poll.MediumUntil,
		MaxElapsed:           cfg.Poll.MaxElapsed,
		MaxConsecutiveErrors: cfg.Poll.MaxConsecutiveErrors,
	}, job.Endpoints{
		Submit:   cfg.Engine.SubmitPath,
		Status:   cfg.Engine.StatusPath,
		Download: cfg.Engine.DownloadPath,
	}, slog.Default())

	// 6. Create store and report service
	pgStore := store.NewPostgresStore(pool)
	ops := op.NewRegistry()
	reports := report.NewService(poller, pgStore, redisCache, ops, slog.Default())

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler:       healthHandler(pgStore, redisCache),
		ExtractHandler:      handler.NewExtractHandler(merger),
		StartReportHandler:  handler.NewStartReportHandler(reports),
		GetReportHandler:    handler.NewGetReportHandler(reports),
		CancelReportHandler: handler.NewCancelReportHandler(reports),
		LatestReportHandler: handler.NewLatestReportHandler(reports),
		CreateKeyHandler:    handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:     handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler:    handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
