package bootstrap

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/itaysmouha/ScoutAI/internal/analyzer"
	"github.com/itaysmouha/ScoutAI/internal/config"
	"github.com/itaysmouha/ScoutAI/internal/worker"
	"github.com/itaysmouha/ScoutAI/shared/logger"
	"github.com/itaysmouha/ScoutAI/shared/tracing"
)

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.Config) (*logger.Logger, error) {
	timeFormat := cfg.Logging.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	return logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   timeFormat,
		Service:      cfg.App.Name,
	})
}

// InitTracing installs the global tracer provider for the service
func InitTracing(ctx context.Context, cfg *config.Config, logger *slog.Logger) (tracing.ShutdownFunc, error) {
	t := cfg.Tracing
	return tracing.Init(ctx, &tracing.Config{
		Exporter:    t.Exporter,
		Endpoint:    t.Endpoint,
		Insecure:    t.Insecure,
		SampleRatio: t.SampleRatio,
		Headers:     t.Headers,
	}, cfg.App.Name, cfg.App.Version, cfg.App.Environment, logger)
}

// NewAnalyzer builds the analyzer selected by the configuration
func NewAnalyzer(cfg *config.Config) *analyzer.Placeholder {
	return analyzer.NewPlaceholder(analyzer.Config{
		AllowedExtensions: cfg.Analyzer.AllowedExtensions,
		SimulatedDuration: cfg.Analyzer.SimulatedDuration,
	})
}

// WorkerOptions maps the worker section onto processor options
func WorkerOptions(cfg *config.Config) worker.Options {
	w := cfg.Worker
	return worker.Options{
		WaitTime:      w.WaitTime,
		LeaseDuration: w.LeaseDuration,
		LeaseMargin:   w.LeaseMargin,
		JobTimeout:    w.JobTimeout,
		ClaimAttempts: w.ClaimAttempts,
		AckTimeout:    w.AckTimeout,
		Retry: worker.RetryOptions{
			InitialInterval: w.Retry.InitialInterval,
			MaxInterval:     w.Retry.MaxInterval,
			MaxAttempts:     w.Retry.MaxAttempts,
		},
		ReceiveBackoff: worker.BackoffOptions{
			InitialInterval: w.ReceiveBackoff.InitialInterval,
			MaxInterval:     w.ReceiveBackoff.MaxInterval,
		},
	}
}

// NewWorker assembles a worker pool over the opened backends
func NewWorker(cfg *config.Config, b *Backends, logger *slog.Logger) (*worker.Worker, error) {
	return worker.NewWorker(&worker.Config{
		Logger:    logger,
		WorkerID:  WorkerID(),
		Store:     b.Store,
		Blobs:     b.Blobs,
		Analyzer:  NewAnalyzer(cfg),
		OpenQueue: b.OpenQueue,
		Instances: cfg.Worker.Instances,
		Options:   WorkerOptions(cfg),
	})
}

// WorkerID identifies this process in logs and spans
func WorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}
