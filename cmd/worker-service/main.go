package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cho-y-j/dispatch/internal/bootstrap"
	"github.com/cho-y-j/dispatch/internal/config"
	"github.com/cho-y-j/dispatch/internal/metrics"
	"github.com/cho-y-j/dispatch/internal/report"
	"github.com/cho-y-j/dispatch/internal/settings"
	"github.com/cho-y-j/dispatch/internal/violation"
	"github.com/cho-y-j/dispatch/internal/worker"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
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
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := bootstrap.Logger(&cfg.Logging, "worker-service")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	logger := appLogger.Logger

	logger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := bootstrap.OpenBackend(ctx, cfg, logger, false)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer backend.Close()

	rabbitClient, err := bootstrap.RabbitMQ(&cfg.RabbitMQ, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	source, _ := bootstrap.SettingsSource(&cfg.Dispatch, backend.Store)
	provider := settings.NewProvider(source, logger)
	provider.Start(ctx, cfg.Dispatch.SettingsReloadInterval)
	defer provider.Stop()

	// Expiry is idempotent per suspension, so the sweep may run here and in
	// the API at the same time.
	escalator := violation.NewEscalator(backend.Store, provider, logger)
	sweeper := violation.NewSweeper(escalator, cfg.Dispatch.SweepInterval, cfg.Dispatch.SweepBatch, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	reports := report.NewService(backend.Store,
		report.NewHTTPGenerator(cfg.Dispatch.ReportEndpoint, cfg.Dispatch.ReportTimeout, logger),
		logger,
	)

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:          logger,
		Source:          rabbitClient,
		Reports:         reports,
		Queue:           cfg.RabbitMQ.Queues.Reports.Name,
		Concurrency:     cfg.Worker.Concurrency,
		JobTimeout:      cfg.Worker.JobTimeout,
		MaxRedeliveries: cfg.Worker.MaxRedeliveries,
		RetryDelay:      cfg.Worker.RetryDelay,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return workerInstance.Start(gctx)
	})
	g.Go(func() error {
		return worker.WatchBroker(gctx, rabbitClient.NotifyClose())
	})

	if cfg.Worker.MetricsPort > 0 {
		metrics.Init()
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("Serving metrics", slog.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("Worker service started successfully")

	// Wait until a signal arrives or the consumer fails
	runErr := g.Wait()
	if runErr != nil {
		logger.Error("Worker error", slog.Any("error", runErr))
	} else {
		logger.Info("Received signal, shutting down gracefully")
	}

	// Give in-flight reports time to finish
	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Worker stopped gracefully")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		logger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	logger.Info("Worker service shutdown complete")
	return runErr
}
