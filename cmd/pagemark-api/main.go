// Package main is the entry point for the pagemark API server.
// The server holds no per-user state: it streams page extractions from an
// OpenAI-compatible vision provider, converts DOCX files locally and
// optionally stores assembled exports in an S3-compatible bucket.
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

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jmylchreest/pagemark/internal/config"
	"github.com/jmylchreest/pagemark/internal/http/handlers"
	"github.com/jmylchreest/pagemark/internal/http/mw"
	"github.com/jmylchreest/pagemark/internal/http/routes"
	"github.com/jmylchreest/pagemark/internal/logging"
	"github.com/jmylchreest/pagemark/internal/service"
	"github.com/jmylchreest/pagemark/internal/shutdown"
	"github.com/jmylchreest/pagemark/internal/version"
)

// maxConcurrentRequests bounds in-flight requests across the whole server.
const maxConcurrentRequests = 100

func main() {
	logger := logging.SetDefault(logging.Options{})

	v := version.Get()
	logger.Info("starting pagemark-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	switch {
	case cfg.IsExtractConfigured():
		logger.Info("extraction provider configured from environment", "base_url", cfg.ExtractBaseURL, "model", cfg.ExtractModelID)
	case cfg.IsExtractPartial():
		logger.Warn("EXTRACT_BASE_URL, EXTRACT_MODEL_ID and EXTRACT_API_KEY are only partially set; requests must supply the missing values")
	default:
		logger.Info("no extraction provider in environment; requests must supply their own")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := service.NewServices(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	idle := shutdown.NewIdleMonitor(shutdown.IdleMonitorConfig{
		Timeout: cfg.IdleTimeout,
		Logger:  logger,
	})

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(mw.RequestLogContext())
	router.Use(idle.Middleware)

	// Runtime log filters and the IP blocklist share the export bucket
	bucket := services.Storage.Client()
	if bucket != nil && cfg.BlocklistKey != "" {
		blocklist := mw.NewIPBlocklist(mw.BlocklistConfig{
			Client: bucket,
			Bucket: cfg.ExportBucket,
			Key:    cfg.BlocklistKey,
			Logger: logger,
		})
		router.Use(blocklist.Middleware)
		logger.Info("ip blocklist enabled", "bucket", cfg.ExportBucket, "key", cfg.BlocklistKey)
	}

	var logFilters *mw.LogFiltersLoader
	if bucket != nil && cfg.LogFiltersKey != "" {
		logFilters = mw.NewLogFiltersLoader(mw.LogFiltersConfig{
			Client: bucket,
			Bucket: cfg.ExportBucket,
			Key:    cfg.LogFiltersKey,
			Logger: logger,
		})
		logFilters.Start(ctx)
		logger.Info("log filter polling enabled", "bucket", cfg.ExportBucket, "key", cfg.LogFiltersKey)
	}

	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(mw.APIVersion())
	router.Use(mw.Cache(mw.DefaultCacheRules()))

	// Streamed extractions bound themselves; DOCX conversion gets the longer budget
	router.Use(mw.Timeout(mw.TimeoutConfig{
		Default:          cfg.RequestTimeout,
		Extended:         cfg.DocxTimeout + 15*time.Second,
		ExtendedPatterns: []string{"/api/convert-docx"},
		SkipPatterns:     []string{"/api/extract"},
	}))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-API-Version", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Use(mw.RateLimitByIP(cfg.RateLimitPerMinute))
	router.Use(middleware.Throttle(maxConcurrentRequests))

	// Huma routes: health, config probe and exports
	api := humachi.New(router, routes.NewHumaConfig(cfg.BaseURL))
	api.UseMiddleware(mw.HumaAccessToken(api, cfg.AccessToken))

	h := &routes.Handlers{
		HealthCheck: handlers.HealthCheck,
		Livez:       handlers.Livez,
		Config:      handlers.NewConfigHandler(cfg),
	}
	if services.Export.IsEnabled() {
		h.Export = handlers.NewExportHandler(services.Export)
	}
	routes.Register(api, h)

	// Raw routes: chunked text stream and multipart upload
	router.Group(func(r chi.Router) {
		r.Use(mw.RequireAccessToken(cfg.AccessToken))

		r.With(
			mw.RateLimitByRoute(cfg.ExtractRequestsPerMinute),
			mw.ExtendWriteDeadline(cfg.StreamTimeout+30*time.Second),
		).Method(http.MethodPost, "/api/extract", handlers.NewExtractHandler(services.Extract, logger))

		r.With(
			mw.ExtendWriteDeadline(cfg.DocxTimeout+30*time.Second),
		).Method(http.MethodPost, "/api/convert-docx", handlers.NewDocxHandler(services.Docx, logger))
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       cfg.DocxTimeout,
		WriteTimeout:      cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	idle.Start()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

		select {
		case sig := <-sigChan:
			logger.Info("shutting down server", "signal", sig.String())
		case <-idle.Done():
			logger.Info("shutting down idle server", "idle", idle.IdleFor().Round(time.Second))
		}

		idle.Stop()
		if logFilters != nil {
			logFilters.Stop()
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server",
		"port", cfg.Port,
		"base_url", cfg.BaseURL,
		"auth", cfg.RequiresAuth(),
		"exports", services.Export.IsEnabled(),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
