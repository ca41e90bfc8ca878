package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/itaysmouha/ScoutAI/internal/analyzer"
	"github.com/itaysmouha/ScoutAI/internal/backoff"
	"github.com/itaysmouha/ScoutAI/internal/blob"
	"github.com/itaysmouha/ScoutAI/internal/domain"
	"github.com/itaysmouha/ScoutAI/internal/queue"
)

const tracerName = "github.com/itaysmouha/ScoutAI/internal/worker"

// JobStore is the part of the Job Store the processor uses
type JobStore interface {
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	Update(ctx context.Context, jobID string, u domain.Update) (*domain.Job, error)
}

// WorkQueue is the consumer side of the Work Queue
type WorkQueue interface {
	Receive(ctx context.Context, maxWait, lease time.Duration) (*queue.Message, error)
	Delete(ctx context.Context, receipt string) error
	Release(ctx context.Context, receipt string) error
}

// BlobStore is the part of the Blob Store the processor uses
type BlobStore interface {
	Stat(ctx context.Context, key string) (blob.ObjectInfo, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Analyzer runs the processing step for one job
type Analyzer interface {
	Analyze(ctx context.Context, req analyzer.Request) (*analyzer.Result, error)
}

// Outcome is how a message was settled
type Outcome int

const (
	// OutcomeCompleted means the job reached COMPLETED and the message was deleted
	OutcomeCompleted Outcome = iota
	// OutcomeFailed means the job reached FAILED and the message was deleted
	OutcomeFailed
	// OutcomeDuplicate means the job was already terminal
	OutcomeDuplicate
	// OutcomePoison means the message could not be tied to a job
	OutcomePoison
	// OutcomeRetry means the message was left for redelivery
	OutcomeRetry
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomePoison:
		return "poison"
	case OutcomeRetry:
		return "retry"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Acknowledges reports whether the message is deleted for this outcome
func (o Outcome) Acknowledges() bool {
	return o != OutcomeRetry
}

// classify maps a processing error onto an outcome
func classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeCompleted
	case errors.Is(err, domain.ErrMalformedEnvelope), errors.Is(err, domain.ErrJobNotFound):
		return OutcomePoison
	default:
		if _, ok := domain.AsDomainFailure(err); ok {
			return OutcomeFailed
		}
		return OutcomeRetry
	}
}

// ProcessorOption configures a Processor
type ProcessorOption func(*Processor)

// WithClock sets the clock used for record timestamps
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

// WithTracer sets the tracer used for message spans
func WithTracer(tracer trace.Tracer) ProcessorOption {
	return func(p *Processor) { p.tracer = tracer }
}

// WithID names the processor in logs
func WithID(id string) ProcessorOption {
	return func(p *Processor) { p.id = id }
}

// Processor is one single-threaded consumer of the Work Queue. Several
// processors may share a store and a queue; they coordinate only through
// queue leases and guarded store updates.
type Processor struct {
	id       string
	store    JobStore
	queue    WorkQueue
	blobs    BlobStore
	analyzer Analyzer
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	opts     Options

	retry          backoff.Strategy
	receiveBackoff backoff.Strategy
}

// NewProcessor creates a Processor
func NewProcessor(store JobStore, q WorkQueue, blobs BlobStore, a Analyzer, logger *slog.Logger, opts Options, options ...ProcessorOption) *Processor {
	opts = opts.withDefaults()
	p := &Processor{
		id:             "processor",
		store:          store,
		queue:          q,
		blobs:          blobs,
		analyzer:       a,
		logger:         logger,
		tracer:         otel.Tracer(tracerName),
		now:            time.Now,
		opts:           opts,
		retry:          backoff.NewExponentialWithJitter(opts.Retry.InitialInterval, opts.Retry.MaxInterval),
		receiveBackoff: backoff.NewExponential(opts.ReceiveBackoff.InitialInterval, opts.ReceiveBackoff.MaxInterval),
	}
	for _, o := range options {
		o(p)
	}
	p.logger = p.logger.With(slog.String("processor_id", p.id))
	return p
}

// HandleMessage processes one leased message and settles it. ctx should not
// be canceled by shutdown; the work is bounded by the lease instead.
func (p *Processor) HandleMessage(ctx context.Context, msg *queue.Message) Outcome {
	leaseCtx, cancel := context.WithDeadline(ctx, p.leaseDeadline(msg))
	defer cancel()

	leaseCtx, span := p.tracer.Start(leaseCtx, "worker.handle_message",
		trace.WithAttributes(
			attribute.String("queue.message_id", msg.ID),
			attribute.Int("queue.delivery_count", msg.DeliveryCount),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	outcome, jobID, err := p.process(leaseCtx, msg)

	span.SetAttributes(
		attribute.String("job.id", jobID),
		attribute.String("worker.outcome", outcome.String()),
	)
	if err != nil && outcome != OutcomeDuplicate {
		span.RecordError(err)
	}
	if outcome == OutcomeRetry {
		span.SetStatus(codes.Error, "left for redelivery")
	} else {
		span.SetStatus(codes.Ok, "")
	}

	p.settle(ctx, msg, jobID, outcome)
	return outcome
}

func (p *Processor) leaseDeadline(msg *queue.Message) time.Time {
	received := msg.ReceivedAt
	if received.IsZero() {
		received = time.Now()
	}
	return received.Add(p.opts.LeaseDuration - p.opts.LeaseMargin)
}

func (p *Processor) process(ctx context.Context, msg *queue.Message) (Outcome, string, error) {
	env, err := domain.DecodeEnvelope(msg.Body)
	if err != nil {
		p.logger.Error("Dropping malformed message",
			slog.String("message_id", msg.ID),
			slog.Int("delivery_count", msg.DeliveryCount),
			slog.Any("error", err),
		)
		return OutcomePoison, "", err
	}

	logger := p.logger.With(
		slog.String("job_id", env.JobID),
		slog.String("message_id", msg.ID),
		slog.Int("delivery_count", msg.DeliveryCount),
	)

	outcome, err := p.processJob(ctx, logger, env)
	return outcome, env.JobID, err
}

func (p *Processor) processJob(ctx context.Context, logger *slog.Logger, env domain.Envelope) (Outcome, error) {
	job, err := p.resolve(ctx, env.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			logger.Error("Dropping message for unknown job")
		} else {
			logger.Warn("Failed to load job, leaving message for redelivery", slog.Any("error", err))
		}
		return classify(err), err
	}

	if env.InputRef != "" && env.InputRef != job.InputRef {
		logger.Warn("Message input does not match job record, using record",
			slog.String("message_input_ref", env.InputRef),
			slog.String("input_ref", job.InputRef),
		)
	}

	job, err = p.claim(ctx, logger, job)
	if err != nil {
		if errors.Is(err, errAlreadyTerminal) {
			logger.Info("Job already finished, acknowledging duplicate",
				slog.String("status", string(job.Status)),
			)
			return OutcomeDuplicate, err
		}
		logger.Warn("Failed to claim job", slog.Any("error", err))
		return classify(err), err
	}

	logger.Info("Job claimed",
		slog.Int("attempt", job.Attempt),
	)

	refs, err := p.execute(ctx, logger, job)
	if err != nil {
		domainErr, ok := domain.AsDomainFailure(err)
		if !ok {
			logger.Warn("Job execution interrupted, leaving message for redelivery",
				slog.Int("attempt", job.Attempt),
				slog.Any("error", err),
			)
			return OutcomeRetry, err
		}

		logger.Info("Job rejected by analyzer",
			slog.String("reason", domainErr.Reason),
		)
		return p.finalize(ctx, logger, job, domain.FailUpdate(domainErr.Reason, p.now()), OutcomeFailed)
	}

	return p.finalize(ctx, logger, job, domain.CompleteUpdate(refs.output, refs.metrics, p.now()), OutcomeCompleted)
}

var errAlreadyTerminal = errors.New("job already terminal")

// resolve reads the job, retrying transient errors inside the lease
func (p *Processor) resolve(ctx context.Context, jobID string) (*domain.Job, error) {
	var job *domain.Job
	err := p.withRetry(ctx, "job get", func(ctx context.Context) error {
		var err error
		job, err = p.store.Get(ctx, jobID)
		return err
	})
	return job, err
}

// claim moves the observed job to PROCESSING. A conflict means another
// processor moved the record, so it is re-read and re-evaluated.
func (p *Processor) claim(ctx context.Context, logger *slog.Logger, job *domain.Job) (*domain.Job, error) {
	for attempt := 1; ; attempt++ {
		if job.Status.IsTerminal() {
			return job, errAlreadyTerminal
		}

		var claimed *domain.Job
		err := p.withRetry(ctx, "job claim", func(ctx context.Context) error {
			var err error
			claimed, err = p.store.Update(ctx, job.JobID, domain.ClaimUpdate(job, p.now()))
			return err
		})
		if err == nil {
			if job.Status == domain.StatusProcessing {
				logger.Warn("Re-claiming job left in PROCESSING",
					slog.Int("previous_attempt", job.Attempt),
				)
			}
			return claimed, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}

		if attempt >= p.opts.ClaimAttempts {
			return nil, fmt.Errorf("claim lost %d times: %w", attempt, err)
		}

		logger.Info("Claim conflict, re-evaluating job",
			slog.Int("claim_attempt", attempt),
		)
		job, err = p.resolve(ctx, job.JobID)
		if err != nil {
			return nil, err
		}
	}
}

type artifactRefs struct {
	output  string
	metrics string
}

// execute runs the analyzer and writes its artifacts to deterministic keys
func (p *Processor) execute(ctx context.Context, logger *slog.Logger, job *domain.Job) (artifactRefs, error) {
	var info blob.ObjectInfo
	err := p.withRetry(ctx, "input stat", func(ctx context.Context) error {
		var err error
		info, err = p.blobs.Stat(ctx, job.InputRef)
		return err
	})
	if errors.Is(err, blob.ErrNotFound) {
		return artifactRefs{}, domain.NewDomainError(fmt.Sprintf("input %s not found", job.InputRef), err)
	}
	if err != nil {
		return artifactRefs{}, err
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.opts.JobTimeout)
	defer cancel()

	started := time.Now()
	res, err := p.analyzer.Analyze(jobCtx, analyzer.Request{
		JobID:     job.JobID,
		InputRef:  job.InputRef,
		InputSize: info.Size,
	})
	if err != nil {
		if _, ok := domain.AsDomainFailure(err); ok {
			return artifactRefs{}, err
		}
		return artifactRefs{}, domain.NewTransientError("analyze", err)
	}

	logger.Info("Analysis finished",
		slog.Duration("duration", time.Since(started)),
	)

	refs := artifactRefs{
		output:  domain.OutputKey(job.JobID),
		metrics: domain.MetricsKey(job.JobID),
	}

	if err := p.withRetry(ctx, "output put", func(ctx context.Context) error {
		return p.blobs.Put(ctx, refs.output, res.Output, res.ContentType)
	}); err != nil {
		return artifactRefs{}, err
	}

	if err := p.withRetry(ctx, "metrics put", func(ctx context.Context) error {
		return p.blobs.Put(ctx, refs.metrics, res.Metrics, "application/json")
	}); err != nil {
		return artifactRefs{}, err
	}

	return refs, nil
}

// finalize persists the terminal state. The message is only acknowledged
// once this write succeeds. The write is pinned to the claimed revision, so
// a re-claim by another processor in the meantime surfaces as a conflict.
func (p *Processor) finalize(ctx context.Context, logger *slog.Logger, job *domain.Job, u domain.Update, outcome Outcome) (Outcome, error) {
	claimedAt := job.UpdatedAt
	u.ExpectedUpdatedAt = &claimedAt

	var final *domain.Job
	err := p.withRetry(ctx, "job finalize", func(ctx context.Context) error {
		var err error
		final, err = p.store.Update(ctx, job.JobID, u)
		return err
	})
	if err == nil {
		logger.Info("Job finished",
			slog.String("status", string(final.Status)),
			slog.Int("attempt", final.Attempt),
		)
		return outcome, nil
	}

	if errors.Is(err, domain.ErrConflict) {
		current, getErr := p.resolve(ctx, job.JobID)
		if getErr == nil && current.Status.IsTerminal() {
			logger.Info("Job finished by another processor",
				slog.String("status", string(current.Status)),
			)
			return OutcomeDuplicate, err
		}
	}

	logger.Error("Failed to persist job result, leaving message for redelivery",
		slog.String("target_status", string(u.Status)),
		slog.Any("error", err),
	)
	return OutcomeRetry, err
}

// withRetry runs fn, retrying transient errors with backoff while attempts
// and lease time remain
func (p *Processor) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || !domain.IsTransient(err) || attempt >= p.opts.Retry.MaxAttempts {
			return err
		}

		delay := p.retry.Delay(attempt)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= delay {
			return err
		}

		p.logger.Debug("Retrying transient error",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("retry_after", delay),
			slog.Any("error", err),
		)
		if !backoff.Sleep(ctx, delay) {
			return err
		}
	}
}
