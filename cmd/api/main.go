package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/accounts"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/aggregator"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/analytics"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/billing"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/cache"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/config"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/database"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/logging"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/metrics"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/middleware"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/plans"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/queue"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/quota"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/search"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/tracing"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize tracing
	tracer, err := tracing.InitTracer(cfg.Tracing.Enabled, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint)
	if err != nil {
		logger.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer tracer.Close()

	// Initialize database
	db, err := database.New(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			logger.Fatalf("Failed to run migrations: %v", err)
		}
		logger.Info("Database migrations applied")
	}

	repo := database.NewRepository(db, logger)
	checks := map[string]HealthCheck{"database": db.Health}

	// Upstream search, optionally behind the page cache
	searchClient := search.NewClient(search.Config{
		BaseURL:  cfg.Search.BaseURL,
		APIKey:   cfg.Search.APIKey,
		EngineID: cfg.Search.EngineID,
		PageSize: cfg.Search.PageSize,
		Timeout:  cfg.Search.Timeout,
	}, logger)
	var fetcher search.PageFetcher = searchClient

	if cfg.Redis.Enabled {
		pageCache, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PageTTL)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer pageCache.Close()

		fetcher = search.NewCachedFetcher(fetcher, pageCache, searchClient.CacheScope(), logger)
		checks["cache"] = pageCache.Ping
		logger.Info("Upstream page cache enabled")
	}

	// Events
	var usageEvents aggregator.EventPublisher
	var planEvents billing.EventPublisher
	if cfg.Queue.Enabled {
		q, err := queue.New(cfg.Queue, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to queue: %v", err)
		}
		defer q.Close()

		usageEvents = q
		planEvents = q
	}

	// Federated login
	var google accounts.IdentityVerifier
	if cfg.Auth.GoogleClientID != "" {
		verifier, err := accounts.NewGoogleVerifier(cfg.Auth.GoogleClientID, cfg.Auth.GoogleJWKSURL)
		if err != nil {
			logger.Fatalf("Failed to initialize Google verifier: %v", err)
		}
		google = verifier
	}

	catalog := plans.DefaultCatalog()
	tokens := middleware.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	go limiter.Cleanup(ctx, 10*time.Minute, 30*time.Minute)

	api := &API{
		accounts: accounts.NewService(repo, tokens, google, catalog, logger),
		billing:  billing.NewService(catalog, repo, planEvents, logger),
		history:  analytics.NewService(repo),
		pipeline: aggregator.NewPipeline(aggregator.ConfigFrom(cfg.Search), quota.NewLedger(repo), fetcher, usageEvents, logger),
		catalog:  catalog,
		checks:   checks,
		logger:   logger,
	}

	router := setupRouter(api, RouterConfig{
		AllowOrigins: cfg.Server.AllowOrigins,
		Tokens:       tokens,
		Limiter:      limiter,
	})

	// Metrics exposition
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
		go func() {
			logger.Infof("Starting metrics server on %s", metricsServer.Addr())
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.ErrorWithErr("Metrics server failed", err)
			}
		}()
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithErr("Server forced to shutdown", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.ErrorWithErr("Metrics server forced to shutdown", err)
		}
	}

	logger.Info("Server stopped")
}
