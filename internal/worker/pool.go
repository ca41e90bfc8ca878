package worker

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// runPool opens one queue handle per instance and runs a processor on each.
// Processors share nothing in process; an error from one stops the rest.
func (w *Worker) runPool(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < w.instances; i++ {
		q, closeQueue, err := w.openQueue(i)
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("failed to open queue for processor %d: %w", i, err)
		}

		processor := NewProcessor(w.store, q, w.blobs, w.analyzer, w.logger, w.options,
			WithID(fmt.Sprintf("%s-%d", w.workerID, i)),
		)

		i := i
		g.Go(func() error {
			defer func() {
				if closeQueue == nil {
					return
				}
				if err := closeQueue(); err != nil {
					w.logger.Warn("Failed to close processor queue",
						slog.Int("instance", i),
						slog.Any("error", err),
					)
				}
			}()
			return processor.Run(gctx)
		})
	}

	w.logger.Info("Processor pool spawned successfully",
		slog.Int("processor_count", w.instances),
	)

	return g.Wait()
}
