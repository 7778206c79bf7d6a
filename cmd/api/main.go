// Package main is the entry point for the Huddle API server.
//
// It loads configuration (env, dotenv, SSM), opens the Postgres pool, builds
// the external provider clients, wires the billing domain services into the
// HTTP handlers, and serves requests through the core chassis.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"huddle/internal/api/handlers"
	"huddle/internal/auth"
	"huddle/internal/billing"
	"huddle/internal/config"
	"huddle/internal/core"
	"huddle/internal/db"
	"huddle/internal/external"
	"huddle/internal/queue"
	"huddle/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	// Load configuration. Local development bypasses SSM resolution, so the
	// provider is only constructed for deployed environments.
	var provider config.SecretProvider
	if env := os.Getenv("APP_ENV"); env != "" && env != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("huddle API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)
	tlogger := &slogAdapter{logger: logger}

	ctx := context.Background()

	// Postgres pool.
	pool, err := newPgxPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}

	// AWS clients. CloudWatch emission and SQS publishing are both
	// best-effort at call time, so client construction is unconditional.
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS configuration: %w", err)
	}
	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	// Provider clients (identity, payment gateways, video transport).
	registry, err := external.NewClientRegistry(cfg, logger)
	if err != nil {
		return fmt.Errorf("building provider clients: %w", err)
	}

	// Repositories.
	meetingRepo := db.NewMeetingRepository(pool)
	qualityRepo := db.NewQualityRepository(pool)
	apiKeyRepo := db.NewAPIKeyRepository(pool)
	planRepo := db.NewPlanConfigRepo(pool)
	ledger := db.NewPaymentLedgerRepo(pool, logger)

	// Lifecycle event publisher (no-op when the queue URL is unset).
	publisher := queue.NewLifecyclePublisher(sqsClient, cfg.Events, logger)
	if !publisher.Enabled() {
		logger.Warn("lifecycle event queue not configured; events will not be published")
	}

	// Billing domain services.
	clock := types.RealClock{}
	configStore := billing.NewConfigStore(planRepo, tlogger)
	evaluator := billing.NewEvaluator(configStore, clock)
	trials := billing.NewTrialManager(registry.Identity, configStore, registry.Paystack, publisher, clock, tlogger)
	activation := billing.NewActivationHandler(registry.Identity, ledger, publisher, clock, tlogger)
	billingMetrics := billing.NewCloudWatchMetrics(cwClient, tlogger)

	// Auth services.
	keys := auth.NewKeyService(apiKeyRepo, nil, clock, logger)
	authenticator := auth.NewTokenAuthenticator(keys, cfg.Identity.JWTSecret.Unmask(), logger)

	// Build the server chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Authenticator = authenticator
	srv.RateLimiter = core.NewMemoryRateLimiter(cfg.Security.RateLimitPerMinute, clock)
	srv.HealthProbes = append(srv.HealthProbes, &databaseProbe{pool: pool})
	srv.RegisterCloser(func() error {
		pool.Close()
		return nil
	})

	// HTTP handlers.
	plansHandler := handlers.NewPlansHandler(configStore, logger)
	entitlementsHandler := handlers.NewEntitlementsHandler(
		evaluator, registry.Identity, registry.Video, billingMetrics, srv.Validator, logger)
	billingHandler := handlers.NewBillingHandler(
		registry.Paystack, registry.Stripe, trials, activation, registry.Identity, srv.Validator, logger)
	webhookHandler := handlers.NewWebhookHandler(
		registry.PaystackVerifier, registry.StripeVerifier, activation, cfg.Payments, billingMetrics, logger)
	meetingsHandler := handlers.NewMeetingsHandler(
		meetingRepo, qualityRepo, registry.Video, evaluator, registry.Identity, srv.Validator, logger)
	adminHandler := handlers.NewAdminHandler(
		registry.Identity, trials, meetingRepo, qualityRepo, publisher, srv.Validator, logger)
	apiKeyHandler := handlers.NewAPIKeyHandler(keys, srv.Validator, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		plansHandler.RegisterRoutes,
		entitlementsHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
		webhookHandler.RegisterRoutes,
		meetingsHandler.RegisterRoutes,
		func(r chi.Router) {
			r.Route("/admin", func(r chi.Router) {
				r.Use(srv.RequireAdmin())
				plansHandler.RegisterAdminRoutes(r)
				adminHandler.RegisterAdminRoutes(r)
				apiKeyHandler.RegisterAdminRoutes(r)
			})
		},
	)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// newPgxPool opens a pgx connection pool with the configured tuning
// parameters and verifies connectivity before returning.
func newPgxPool(ctx context.Context, dbCfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dbCfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(dbCfg.MaxConns)
	poolCfg.MinConns = int32(dbCfg.MinConns)
	poolCfg.MaxConnLifetime = dbCfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = dbCfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// databaseProbe reports database connectivity for GET /health.
type databaseProbe struct {
	pool *pgxpool.Pool
}

func (p *databaseProbe) Name() string                    { return "database" }
func (p *databaseProbe) Check(ctx context.Context) error { return p.pool.Ping(ctx) }

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// The types.Logger interface requires Info, Error, Warn, and With methods.
// slog.Logger satisfies the first three but With returns *slog.Logger, not
// types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}
