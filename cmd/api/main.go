// Package main is the entry point for the LoveBirdz admin API server.
//
// It loads configuration, connects to Postgres, wires the Stripe adapter and
// the SQS welcome publisher into the domain services, mounts the HTTP chassis
// and serves until interrupted. Graceful shutdown is handled via OS signal
// interception (SIGINT, SIGTERM).
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
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"lovebirdz/internal/accounts"
	"lovebirdz/internal/activity"
	"lovebirdz/internal/api"
	"lovebirdz/internal/api/handlers"
	"lovebirdz/internal/catalog"
	"lovebirdz/internal/config"
	"lovebirdz/internal/db"
	"lovebirdz/internal/external"
	"lovebirdz/internal/queue"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on
// error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("lovebirdz admin API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	// Repositories. The store wraps the account repo with transactional
	// provisioning writes.
	planRepo := db.NewPlanRepo(pool)
	accountStore := db.NewAccountStore(pool, pool)
	activityRepo := db.NewActivityRepo(pool)

	// Billing provider adapter.
	stripeClient := external.NewStripeClient(
		&http.Client{Timeout: cfg.Billing.CallTimeout},
		external.StripeClientConfig{
			SecretKey:   cfg.Billing.StripeSecretKey.Unmask(),
			CallTimeout: cfg.Billing.CallTimeout,
			Logger:      logger,
		},
	)

	// SQS welcome queue producer.
	awsCfg, err := loadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return fmt.Errorf("loading AWS configuration: %w", err)
	}
	welcomePublisher := queue.NewWelcomePublisher(sqs.NewFromConfig(awsCfg), cfg.AWS, logger)

	// Domain services.
	catalogSvc := catalog.NewService(planRepo, stripeClient, logger)
	provisioner := accounts.NewProvisioner(accountStore, catalogSvc, stripeClient, welcomePublisher, nil, logger)
	accountSvc := accounts.NewService(accountStore, catalogSvc, stripeClient, logger)
	ledger := activity.NewLedger(activityRepo, logger)
	aggregator := activity.NewAggregator(activityRepo, logger)

	// HTTP chassis and handlers.
	srv, err := api.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	accountHandler := handlers.NewAccountHandler(provisioner, accountSvc, srv.Validator, logger)
	planHandler := handlers.NewPlanHandler(catalogSvc, logger)
	activityHandler := handlers.NewActivityHandler(ledger, aggregator, srv.Validator, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		accountHandler.RegisterRoutes,
		planHandler.RegisterRoutes,
		activityHandler.RegisterRoutes,
	)

	srv.MountRoutes()

	return runHTTPServer(ctx, srv, cfg, logger)
}

// loadAWSConfig builds the AWS SDK configuration, honoring the LocalStack
// endpoint override when set.
func loadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.EndpointURL != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.EndpointURL))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// runHTTPServer starts the server in standard HTTP mode with graceful
// shutdown on context cancellation.
func runHTTPServer(ctx context.Context, srv *api.Server, cfg *config.Config, logger *slog.Logger) error {
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

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log
// level. Output is JSON for machine ingestion.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
