// Package main is the entry point for the llmtxt-api server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/jmylchreest/llmtxt-api/internal/composer"
	"github.com/jmylchreest/llmtxt-api/internal/config"
	"github.com/jmylchreest/llmtxt-api/internal/constants"
	"github.com/jmylchreest/llmtxt-api/internal/http/handlers"
	"github.com/jmylchreest/llmtxt-api/internal/http/mw"
	"github.com/jmylchreest/llmtxt-api/internal/logging"
	"github.com/jmylchreest/llmtxt-api/internal/service"
	"github.com/jmylchreest/llmtxt-api/internal/shutdown"
	"github.com/jmylchreest/llmtxt-api/internal/version"
	"github.com/jmylchreest/llmtxt-api/internal/worker"
)

func main() {
	// Initialize logger with TTY detection, source paths, and format control
	logger := logging.SetDefault()

	// Log version info first thing
	v := version.Get()
	logger.Info("starting llmtxt-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize object storage (no-op when not configured)
	storageSvc, err := service.NewStorageService(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Optional LLM summarizer for oversized digests
	var summarizer *composer.Summarizer
	if cfg.SummarizerEnabled() {
		summarizer = composer.NewSummarizer(cfg.AnthropicAPIKey, cfg.SummarizerModel, logger)
		logger.Info("summarizer enabled", "model", cfg.SummarizerModel)
	} else {
		logger.Info("summarizer disabled, oversized digests are truncated")
	}

	jobSvc := service.NewJobService(cfg, storageSvc, summarizer, logger)

	// Start background worker for generation jobs
	workerCfg := worker.Config{
		PollInterval: cfg.WorkerPollInterval,
		Concurrency:  cfg.WorkerConcurrency,
	}
	if cfg.CleanupEnabled {
		workerCfg.CleanupInterval = cfg.CleanupInterval
		workerCfg.CleanupMaxAge = cfg.CleanupMaxAge
		logger.Info("artifact cleanup enabled",
			"max_age", cfg.CleanupMaxAge.String(),
			"interval", cfg.CleanupInterval.String(),
		)
	}
	jobWorker := worker.New(jobSvc, storageSvc, workerCfg, logger)
	jobWorker.Start(ctx)

	// Idle monitor for scale-to-zero platforms. Running jobs count as
	// activity so a crawl is never cut short by an idle stop.
	idleMonitor := shutdown.NewIdleMonitor(shutdown.IdleMonitorConfig{
		Timeout:      cfg.IdleTimeout,
		Logger:       logger,
		ExcludePaths: []string{"/health"},
		WorkCheck:    jobSvc.HasActiveJobs,
	})
	idleMonitor.Start()

	// Create router
	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(idleMonitor.Middleware)

	// Log filters (dynamic log filtering from S3, same bucket as artifacts)
	var logFiltersLoader *mw.LogFiltersLoader
	if storageSvc.Enabled() {
		logFiltersLoader = mw.NewLogFiltersLoader(mw.LogFiltersConfig{
			S3Client: storageSvc.Client(),
			Bucket:   storageSvc.Bucket(),
			Key:      "config/logfilters.json",
			Logger:   logger,
		})
		logFiltersLoader.Start(ctx)
	}

	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(constants.RequestTimeout))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "X-API-Version", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request size limit - generation requests are tiny
	router.Use(middleware.RequestSize(constants.MaxRequestBytes))

	// Global rate limit by IP
	router.Use(httprate.LimitByIP(constants.RateLimitRequests, constants.RateLimitWindow))

	// Global concurrency throttle - prevent system overload
	router.Use(middleware.Throttle(constants.ThrottleLimit))

	router.Use(mw.Cache(mw.DefaultCacheConfig()))
	router.Use(mw.APIVersion())

	// Huma API config with OpenAPI docs
	humaConfig := huma.DefaultConfig("llmtxt API", v.Short())
	humaConfig.Info.Description = "Generates llm.txt digests of documentation sites: crawl, rank, and compose pages into a single size-bounded markdown file."
	humaConfig.Servers = []*huma.Server{
		{URL: cfg.BaseURL, Description: "API Server"},
	}

	api := humachi.New(router, humaConfig)

	handlers.NewGenerationHandler(jobSvc, cfg).Register(api)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  constants.ServerReadTimeout,
		WriteTimeout: constants.ServerWriteTimeout,
		IdleTimeout:  constants.ServerIdleTimeout,
	}

	// Graceful shutdown on signal or idle timeout
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-sigChan:
			logger.Info("shutting down server")
		case <-idleMonitor.ShutdownChan():
			logger.Info("shutting down server (idle)")
		}

		// Stop the worker first so in-flight jobs cancel cleanly
		cancel()
		jobWorker.Stop()
		idleMonitor.Stop()

		if logFiltersLoader != nil {
			logFiltersLoader.Stop()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	// Start server
	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL, "storage", storageSvc.Enabled())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
