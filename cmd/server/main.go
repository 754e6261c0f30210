// Package main is the entrypoint for the BrandLens API server.
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

	"github.com/brandlens/brandlens/internal/api"
	"github.com/brandlens/brandlens/internal/api/handler"
	mw "github.com/brandlens/brandlens/internal/api/middleware"
	"github.com/brandlens/brandlens/internal/api/response"
	"github.com/brandlens/brandlens/internal/cache"
	"github.com/brandlens/brandlens/internal/config"
	"github.com/brandlens/brandlens/internal/provider"
	"github.com/brandlens/brandlens/internal/scan"
	"github.com/brandlens/brandlens/internal/store"
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
	slog.Info("config loaded", "providers", cfg.Providers.Enabled, "env", cfg.Server.Env)

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

	// 5. Create AI providers
	providers, err := provider.NewProviders(cfg.Providers)
	if err != nil {
		return fmt.Errorf("create providers: %w", err)
	}
	for _, p := range providers {
		slog.Info("provider initialized", "provider", p.Name(), "cost_per_call", p.CostPerCall())
	}

	// 6. Create store and execution engine
	pgStore := store.NewPostgresStore(pool)
	breaker := scan.NewBreaker(cfg.Scan.BreakerThreshold, cfg.Scan.BreakerCooldown)
	notifier := scan.NewCacheNotifier(redisCache, 24*time.Hour)
	engine := scan.NewEngine(pgStore, redisCache, providers, breaker, notifier, cfg.Scan)

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	defaults := handler.ScanDefaults{
		IterationsPerProvider: cfg.Scan.DefaultIterations,
		CallTimeoutSecs:       int(cfg.Scan.CallTimeout / time.Second),
		Concurrency:           cfg.Scan.Concurrency,
		StatusCheckEvery:      cfg.Scan.StatusCheckEvery,
	}

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache),

		CreateScanHandler:  handler.NewCreateScanHandler(pgStore, providers, defaults),
		ListScansHandler:   handler.NewListScansHandler(pgStore),
		GetScanHandler:     handler.NewGetScanHandler(pgStore),
		StartScanHandler:   handler.NewStartScanHandler(pgStore, engine),
		ScanActionHandler:  handler.NewScanActionHandler(pgStore, engine),
		ScanMetricsHandler: handler.NewScanMetricsHandler(pgStore, redisCache),
		ListQuestions:      handler.NewListQuestionsHandler(pgStore),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
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
