// Package main is the entry point for the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/bastion/internal/api"
	"github.com/onnwee/bastion/internal/audit"
	"github.com/onnwee/bastion/internal/auth"
	"github.com/onnwee/bastion/internal/config"
	"github.com/onnwee/bastion/internal/db"
	"github.com/onnwee/bastion/internal/health"
	"github.com/onnwee/bastion/internal/middleware"
	"github.com/onnwee/bastion/internal/ratelimit"
	"github.com/onnwee/bastion/internal/tracing"
)

const serviceName = "bastion-api"

func main() {
	configFile := flag.String("config", "", "path to YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Bastion API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.TracingOTLPEndpoint,
		SamplingRate: cfg.TracingSamplingRate,
		InsecureMode: cfg.TracingInsecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	checkers := map[string]health.Checker{
		"redis": health.NewRedisChecker(redisClient),
	}

	ctx := context.Background()

	// The audit trail persists to Postgres when configured and falls back
	// to the in-memory store for single-node development.
	var auditStore audit.Store = audit.NewMemoryStore()
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer conn.Close()
		pgStore, err := audit.NewPostgresStore(ctx, conn)
		if err != nil {
			logger.Error("failed to initialize audit store", "error", err)
			os.Exit(1)
		}
		auditStore = pgStore
		checkers["database"] = health.NewDBChecker(conn)
	} else {
		logger.Warn("no database configured, audit trail is in-memory only")
	}

	auditLogger, err := audit.NewLogger(audit.Config{
		Enabled:             true,
		IntegrityProtection: true,
		Secret:              cfg.AuditSecret,
		AlertOnCritical:     cfg.AuditAlertCritical,
		AnonymizeIPs:        cfg.AuditAnonymizeIPs,
		ExcludedPaths:       cfg.AuditExcludedPaths,
		ExcludedUsers:       cfg.AuditExcludedUsers,
	}, auditStore, audit.WithSlog(logger))
	if err != nil {
		logger.Error("failed to initialize audit logger", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	limiterMetrics := ratelimit.NewMetrics()
	if err := limiterMetrics.Register(registry); err != nil {
		logger.Error("failed to register rate limit metrics", "error", err)
		os.Exit(1)
	}
	httpMetrics := middleware.NewHTTPMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.New(ratelimit.Options{
		Store:         ratelimit.NewRedisWindowStore(redisClient),
		Logger:        logger,
		Metrics:       limiterMetrics,
		LegacyHeaders: cfg.RateLimitLegacyHeaders,
		SweepInterval: ratelimit.DefaultSweepInterval,
	})
	defer limiter.Close()

	tokens := auth.NewTokenService(cfg.JWTSecret)

	mux := http.NewServeMux()
	healthHandlers := api.NewHealthHandlers(checkers)
	mux.HandleFunc("GET /health", healthHandlers.Live)
	mux.HandleFunc("GET /ready", healthHandlers.Ready)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	auditHandlers := api.NewAuditHandlers(auditLogger)
	mux.HandleFunc("GET /api/audit/export", auditHandlers.Export)
	mux.HandleFunc("GET /api/audit/report", auditHandlers.Report)
	mux.HandleFunc("GET /api/audit/verify", auditHandlers.Verify)

	limitsHandlers := api.NewLimitsHandlers(limiter)
	mux.HandleFunc("GET /api/limits", limitsHandlers.Status)
	mux.HandleFunc("POST /api/limits/blocked/{ip}", limitsHandlers.Block)
	mux.HandleFunc("DELETE /api/limits/blocked/{ip}", limitsHandlers.Unblock)

	// Middleware chain, outermost first: request ID, tracing, security
	// headers, metrics, logging, authentication, rate limiting, audit.
	var handler http.Handler = mux
	handler = auditLogger.Middleware()(handler)
	handler = limiter.Middleware()(handler)
	handler = middleware.Authenticate(tokens)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = httpMetrics.Middleware()(handler)
	handler = middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
		EnableHSTS: cfg.IsProduction(),
	})(handler)
	handler = middleware.Tracing(serviceName)(handler)
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer provider", "error", err)
	}
	if err := redisClient.Close(); err != nil {
		logger.Error("failed to close redis client", "error", err)
	}
	logger.Info("server stopped")
}
