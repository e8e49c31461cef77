package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cho-y-j/dispatch/internal/api/handler"
	"github.com/cho-y-j/dispatch/internal/api/router"
	"github.com/cho-y-j/dispatch/internal/bootstrap"
	"github.com/cho-y-j/dispatch/internal/config"
	"github.com/cho-y-j/dispatch/internal/contractor"
	"github.com/cho-y-j/dispatch/internal/dispatch"
	"github.com/cho-y-j/dispatch/internal/notify"
	"github.com/cho-y-j/dispatch/internal/report"
	"github.com/cho-y-j/dispatch/internal/settings"
	"github.com/cho-y-j/dispatch/internal/verify"
	"github.com/cho-y-j/dispatch/internal/violation"
	"github.com/cho-y-j/dispatch/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := bootstrap.Logger(&cfg.Logging, "api-service")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	logger := appLogger.Logger

	logger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("store", cfg.Dispatch.Store),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := bootstrap.OpenBackend(ctx, cfg, logger, true)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer backend.Close()

	rabbitClient, err := bootstrap.RabbitMQ(&cfg.RabbitMQ, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	if rabbitClient != nil {
		defer rabbitClient.Close()
	}

	// Runtime settings
	source, settingsWriter := bootstrap.SettingsSource(&cfg.Dispatch, backend.Store)
	provider := settings.NewProvider(source, logger)
	provider.Start(ctx, cfg.Dispatch.SettingsReloadInterval)
	defer provider.Stop()

	// Notifications
	notifier := notify.NewDispatcher(notificationSink(cfg, rabbitClient, logger), logger, cfg.Dispatch.NotificationBuffer)
	notifier.Start()
	defer notifier.Close()

	// Violations and the suspension expiry sweep
	escalator := violation.NewEscalator(backend.Store, provider, logger)
	sweeper := violation.NewSweeper(escalator, cfg.Dispatch.SweepInterval, cfg.Dispatch.SweepBatch, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// Reports
	reports := report.NewService(backend.Store, reportGenerator(cfg, logger), logger)
	var trigger dispatch.ReportTrigger
	if rabbitClient != nil {
		queue := report.NewQueue(rabbitClient, logger, 0)
		queue.Start()
		defer queue.Close()
		trigger = queue
	} else {
		inline := report.NewInline(reports, cfg.Dispatch.ReportTimeout, logger)
		defer inline.Wait()
		trigger = inline
	}

	contractors := contractor.New(backend.Store, verifier(cfg, logger), logger,
		contractor.WithNotifier(notifier),
	)
	dispatcher := dispatch.New(backend.Store, provider, logger,
		dispatch.WithNotifier(notifier),
		dispatch.WithViolations(escalator),
		dispatch.WithReports(trigger),
	)

	// Initialize router
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	r := router.SetupRouter(&handler.Dependencies{
		Logger:                  logger,
		Dispatch:                dispatcher,
		Contractors:             contractors,
		Violations:              escalator,
		Reports:                 reports,
		Settings:                provider,
		SettingsStore:           settingsWriter,
		HealthCheck:             backend.HealthCheck,
		PoolStats:               backend.PoolStats,
		PublicRequestsPerSecond: cfg.Dispatch.PublicRateLimit.RequestsPerSecond,
		PublicBurst:             cfg.Dispatch.PublicRateLimit.Burst,
	})

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	logger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("Server failed", slog.Any("error", err))
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	logger.Info("Server shutdown complete")
	return nil
}

func notificationSink(cfg *config.Config, client *rabbitmq.Client, logger *slog.Logger) notify.Sink {
	if client == nil || cfg.RabbitMQ.Queues.Notifications.RoutingKey == "" {
		return notify.LogSink{Logger: logger}
	}
	return notify.NewAMQPSink(client, cfg.RabbitMQ.Queues.Notifications.RoutingKey)
}

func reportGenerator(cfg *config.Config, logger *slog.Logger) report.Generator {
	if cfg.Dispatch.ReportEndpoint == "" {
		logger.Warn("No report endpoint configured; work reports are unavailable")
		return report.Unconfigured
	}
	return report.NewHTTPGenerator(cfg.Dispatch.ReportEndpoint, cfg.Dispatch.ReportTimeout, logger)
}

func verifier(cfg *config.Config, logger *slog.Logger) verify.Verifier {
	v := cfg.Dispatch.Verification
	if v.BaseURL == "" {
		logger.Warn("No verification endpoint configured; registrations wait for manual review")
		return verify.Offline{}
	}
	return verify.NewClient(verify.Config{
		BaseURL:        v.BaseURL,
		APIKey:         v.APIKey,
		Timeout:        v.Timeout,
		RequestsPerSec: v.RequestsPerSecond,
		Burst:          v.Burst,
	}, logger)
}
