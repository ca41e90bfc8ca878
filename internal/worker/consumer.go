package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/itaysmouha/ScoutAI/internal/backoff"
	"github.com/itaysmouha/ScoutAI/internal/queue"
)

// Run is the lease loop. It returns nil once ctx is canceled; cancellation
// aborts a pending receive but never a message that is already leased. It
// returns queue.ErrDisconnected when the queue connection is gone for good.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("Processor started",
		slog.Duration("wait_time", p.opts.WaitTime),
		slog.Duration("lease_duration", p.opts.LeaseDuration),
		slog.Duration("job_timeout", p.opts.JobTimeout),
	)

	failures := 0
	for {
		if ctx.Err() != nil {
			p.logger.Info("Processor stopping - context canceled")
			return nil
		}

		msg, err := p.queue.Receive(ctx, p.opts.WaitTime, p.opts.LeaseDuration)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if errors.Is(err, queue.ErrDisconnected) {
				p.logger.Error("Queue connection lost, processor stopping", slog.Any("error", err))
				return err
			}

			failures++
			delay := p.receiveBackoff.Delay(failures)
			p.logger.Warn("Failed to receive from queue",
				slog.Int("consecutive_failures", failures),
				slog.Duration("retry_after", delay),
				slog.Any("error", err),
			)
			backoff.Sleep(ctx, delay)
			continue
		}

		if failures > 0 {
			p.logger.Info("Queue receive recovered",
				slog.Int("after_failures", failures),
			)
			failures = 0
		}

		if msg == nil {
			continue
		}

		p.HandleMessage(context.WithoutCancel(ctx), msg)
	}
}

// settle deletes or releases the message according to outcome
func (p *Processor) settle(ctx context.Context, msg *queue.Message, jobID string, outcome Outcome) {
	ackCtx, cancel := context.WithTimeout(ctx, p.opts.AckTimeout)
	defer cancel()

	logger := p.logger.With(
		slog.String("job_id", jobID),
		slog.String("message_id", msg.ID),
		slog.String("outcome", outcome.String()),
	)

	if !outcome.Acknowledges() {
		if err := p.queue.Release(ackCtx, msg.Receipt); err != nil {
			logger.Warn("Failed to release message", slog.Any("error", err))
		}
		return
	}

	err := p.queue.Delete(ackCtx, msg.Receipt)
	switch {
	case err == nil:
		logger.Debug("Message acknowledged")
	case errors.Is(err, queue.ErrStaleReceipt):
		logger.Warn("Lease expired before acknowledgement, message will be redelivered")
	default:
		logger.Error("Failed to acknowledge message", slog.Any("error", err))
	}
}
