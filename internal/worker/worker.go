package worker

import (
	"context"
	"fmt"
	"log/slog"
)

// QueueFactory opens the queue handle for processor instance i. The returned
// close func is called when the processor stops.
type QueueFactory func(instance int) (WorkQueue, func() error, error)

// Config holds worker configuration
type Config struct {
	Logger    *slog.Logger
	WorkerID  string
	Store     JobStore
	Blobs     BlobStore
	Analyzer  Analyzer
	OpenQueue QueueFactory
	Instances int
	Options   Options
}

// Worker runs a set of independent processors
type Worker struct {
	logger    *slog.Logger
	workerID  string
	store     JobStore
	blobs     BlobStore
	analyzer  Analyzer
	openQueue QueueFactory
	instances int
	options   Options
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) (*Worker, error) {
	if cfg.Store == nil || cfg.Blobs == nil || cfg.Analyzer == nil || cfg.OpenQueue == nil {
		return nil, fmt.Errorf("worker requires a store, blob store, analyzer and queue factory")
	}

	instances := cfg.Instances
	if instances <= 0 {
		instances = 1
	}

	return &Worker{
		logger:    cfg.Logger,
		workerID:  cfg.WorkerID,
		store:     cfg.Store,
		blobs:     cfg.Blobs,
		analyzer:  cfg.Analyzer,
		openQueue: cfg.OpenQueue,
		instances: instances,
		options:   cfg.Options.withDefaults(),
	}, nil
}

// Start runs the processors until ctx is canceled and every in-flight
// message has been settled or abandoned to lease expiry
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("instances", w.instances),
		slog.Duration("lease_duration", w.options.LeaseDuration),
		slog.Duration("job_timeout", w.options.JobTimeout),
	)

	err := w.runPool(ctx)

	w.logger.Info("Worker stopped",
		slog.String("worker_id", w.workerID),
	)
	return err
}
