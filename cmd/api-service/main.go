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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/itaysmouha/ScoutAI/internal/api/handler"
	"github.com/itaysmouha/ScoutAI/internal/api/router"
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
	appLogger, err := bootstrap.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("queue_driver", cfg.Queue.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := bootstrap.InitTracing(ctx, cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	backends, err := bootstrap.Open(ctx, cfg, appLogger.Logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	appLogger.Info("Backends connected")

	// The in-memory queue only exists in this process, so its processors
	// have to run here too.
	var workerErr chan error
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if cfg.Queue.Driver == config.QueueDriverMemory {
		w, err := bootstrap.NewWorker(cfg, backends, appLogger.With(slog.String("component", "worker")).Logger)
		if err != nil {
			return fmt.Errorf("failed to create embedded worker: %w", err)
		}
		workerErr = make(chan error, 1)
		go func() { workerErr <- w.Start(workerCtx) }()
	}

	// Initialize router
	r := initRouter(cfg, appLogger.Logger, backends)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	var runErr error
	select {
	case <-ctx.Done():
		appLogger.Info("Shutting down server...")
	case err := <-serveErr:
		appLogger.Error("Server failed", slog.Any("error", err))
		runErr = err
	case err := <-workerErr:
		workerErr = nil
		if err != nil {
			appLogger.Error("Embedded worker failed", slog.Any("error", err))
			runErr = err
		}
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		runErr = errors.Join(runErr, err)
	}

	stopWorker()
	if workerErr != nil {
		select {
		case <-workerErr:
		case <-shutdownCtx.Done():
			appLogger.Warn("Embedded worker shutdown timeout exceeded")
		}
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		appLogger.Warn("Failed to flush traces", slog.Any("error", err))
	}

	appLogger.Info("Server shutdown complete")
	return runErr
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, b *bootstrap.Backends) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize handler dependencies
	handlerDeps := &handler.Dependencies{
		Logger:            logger,
		ServiceName:       cfg.App.Name,
		Store:             b.Store,
		Publisher:         b.Publisher,
		Uploads:           b.Blobs,
		PresignExpiry:     cfg.Uploads.PresignExpiry,
		AllowedExtensions: cfg.Uploads.AllowedExtensions,
		HealthChecks:      b.HealthChecks,
	}

	// Setup router
	return router.SetupRouter(handlerDeps)
}
