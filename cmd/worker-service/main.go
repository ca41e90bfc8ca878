package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/itaysmouha/ScoutAI/internal/bootstrap"
	"github.com/itaysmouha/ScoutAI/internal/config"
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
	appLogger, err := bootstrap.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("queue_driver", cfg.Queue.Driver),
	)

	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := bootstrap.InitTracing(signalCtx, cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	backends, err := bootstrap.Open(signalCtx, cfg, appLogger.Logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	appLogger.Info("Backends connected")

	// Create worker instance
	workerInstance, err := bootstrap.NewWorker(cfg, backends, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	// Processors keep their own context so a signal stops receiving without
	// cutting off in-flight finalize calls
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- workerInstance.Start(ctx)
	}()

	appLogger.Info("Worker service started successfully")

	var runErr error
	select {
	case <-signalCtx.Done():
		appLogger.Info("Received signal, shutting down gracefully")
		cancel()

		// Give worker time to shutdown gracefully
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
		defer shutdownCancel()

		select {
		case runErr = <-errChan:
			appLogger.Info("Worker stopped gracefully")
		case <-shutdownCtx.Done():
			appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
		}
	case runErr = <-errChan:
		if runErr != nil {
			appLogger.Error("Worker error",
				slog.Any("error", runErr),
			)
		}
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer flushCancel()
	if err := shutdownTracing(flushCtx); err != nil {
		appLogger.Warn("Failed to flush traces", slog.Any("error", err))
	}

	appLogger.Info("Worker service shutdown complete")
	return runErr
}
