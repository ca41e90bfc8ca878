package worker_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"github.com/itaysmouha/ScoutAI/internal/analyzer"
	"github.com/itaysmouha/ScoutAI/internal/domain"
	"github.com/itaysmouha/ScoutAI/internal/memory"
	"github.com/itaysmouha/ScoutAI/internal/mocks"
	"github.com/itaysmouha/ScoutAI/internal/queue"
	"github.com/itaysmouha/ScoutAI/internal/worker"
)

const lease = 30 * time.Second

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	t        *testing.T
	store    *memory.JobStore
	queue    *memory.Queue
	blobs    *memory.BlobStore
	clock    *fakeClock
	recorder *tracetest.SpanRecorder
}

func newHarness(t *testing.T) *harness {
	clock := newFakeClock()
	return &harness{
		t:        t,
		store:    memory.NewJobStore(),
		queue:    memory.NewQueue(memory.WithClock(clock.Now), memory.WithPollInterval(time.Millisecond)),
		blobs:    memory.NewBlobStore(),
		clock:    clock,
		recorder: tracetest.NewSpanRecorder(),
	}
}

func testOptions() worker.Options {
	return worker.Options{
		WaitTime:      0,
		LeaseDuration: lease,
		LeaseMargin:   time.Second,
		JobTimeout:    5 * time.Second,
		ClaimAttempts: 3,
		AckTimeout:    time.Second,
		Retry: worker.RetryOptions{
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			MaxAttempts:     2,
		},
		ReceiveBackoff: worker.BackoffOptions{
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func placeholder() worker.Analyzer {
	return analyzer.NewPlaceholder(analyzer.Config{AllowedExtensions: []string{".mp4", ".mov"}})
}

func (h *harness) processor(store worker.JobStore, a worker.Analyzer) *worker.Processor {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(h.recorder))
	return worker.NewProcessor(store, h.queue, h.blobs, a, testLogger(), testOptions(),
		worker.WithClock(h.clock.Now),
		worker.WithTracer(tp.Tracer("test")),
		worker.WithID("test"),
	)
}

// submit does what the Job Submitter does: a PENDING record and one message
func (h *harness) submit(jobID, inputRef string) {
	h.t.Helper()
	ctx := context.Background()
	h.blobs.Seed(inputRef, []byte("video bytes"))
	require.NoError(h.t, h.store.Put(ctx, domain.NewJob(jobID, inputRef, "", "", h.clock.Now())))
	require.NoError(h.t, h.queue.Publish(ctx, domain.Envelope{JobID: jobID, InputRef: inputRef}))
}

func (h *harness) receive() *queue.Message {
	h.t.Helper()
	msg, err := h.queue.Receive(context.Background(), 0, lease)
	require.NoError(h.t, err)
	require.NotNil(h.t, msg)
	return msg
}

func (h *harness) job(jobID string) *domain.Job {
	h.t.Helper()
	job, err := h.store.Get(context.Background(), jobID)
	require.NoError(h.t, err)
	return job
}

func (h *harness) stats() (ready, inFlight, deleted int) {
	ready, inFlight, deleted, _ = h.queue.Stats()
	return ready, inFlight, deleted
}

func TestProcessor_ScenarioA_Completes(t *testing.T) {
	h := newHarness(t)
	p := h.processor(h.store, placeholder())
	h.submit("job-1", "uploads/a.mp4")

	outcome := p.HandleMessage(context.Background(), h.receive())
	assert.Equal(t, worker.OutcomeCompleted, outcome)

	job := h.job("job-1")
	assert.Equal(t, domain.StatusCompleted, job.Status)
	assert.Equal(t, 1, job.Attempt)
	assert.Equal(t, "outputs/job-1", job.OutputRef)
	assert.Equal(t, "metrics/job-1", job.MetricsRef)
	assert.Empty(t, job.FailureReason)
	assert.False(t, job.UpdatedAt.Before(job.CreatedAt))

	_, inFlight, deleted := h.stats()
	assert.Equal(t, 0, inFlight)
	assert.Equal(t, 1, deleted)

	assert.Equal(t, 1, h.blobs.Writes("outputs/job-1"))
	assert.Equal(t, 1, h.blobs.Writes("metrics/job-1"))
	assert.Equal(t,
		[]domain.Status{domain.StatusPending, domain.StatusProcessing, domain.StatusCompleted},
		h.store.History("job-1"))
}

func TestProcessor_ScenarioB_CompletedDuplicate(t *testing.T) {
	h := newHarness(t)
	ctrl := gomock.NewController(t)
	a := mocks.NewMockAnalyzer(ctrl)
	p := h.processor(h.store, a)

	h.submit("job-2", "uploads/b.mp4")
	ctx := context.Background()
	pending := h.job("job-2")
	_, err := h.store.Update(ctx, "job-2", domain.ClaimUpdate(pending, h.clock.Now()))
	require.NoError(t, err)
	done, err := h.store.Update(ctx, "job-2", domain.CompleteUpdate("outputs/job-2", "metrics/job-2", h.clock.Now()))
	require.NoError(t, err)

	// no EXPECT: any analyzer call fails the test
	outcome := p.HandleMessage(ctx, h.receive())
	assert.Equal(t, worker.OutcomeDuplicate, outcome)

	after := h.job("job-2")
	assert.Equal(t, done, after)
	assert.Equal(t, 0, h.blobs.TotalWrites())

	_, inFlight, deleted := h.stats()
	assert.Equal(t, 0, inFlight)
	assert.Equal(t, 1, deleted)
}

func TestProcessor_ScenarioC_DomainFailure(t *testing.T) {
	h := newHarness(t)
	p := h.processor(h.store, placeholder())
	h.submit("job-3", "uploads/c.txt")

	outcome := p.HandleMessage(context.Background(), h.receive())
	assert.Equal(t, worker.OutcomeFailed, outcome)

	job := h.job("job-3")
	assert.Equal(t, domain.StatusFailed, job.Status)
	assert.NotEmpty(t, job.FailureReason)
	assert.Empty(t, job.OutputRef)
	assert.Empty(t, job.MetricsRef)
	assert.Equal(t, 1, job.Attempt)

	_, _, deleted := h.stats()
	assert.Equal(t, 1, deleted)
	assert.Equal(t, 0, h.blobs.TotalWrites())
}

func TestProcessor_MissingInputFailsJob(t *testing.T) {
	h := newHarness(t)
	p := h.processor(h.store, placeholder())

	ctx := context.Background()
	require.NoError(t, h.store.Put(ctx, domain.NewJob("job-4", "uploads/missing.mp4", "", "", h.clock.Now())))
	require.NoError(t, h.queue.Publish(ctx, domain.Envelope{JobID: "job-4", InputRef: "uploads/missing.mp4"}))

	outcome := p.HandleMessage(ctx, h.receive())
	assert.Equal(t, worker.OutcomeFailed, outcome)
	assert.Contains(t, h.job("job-4").FailureReason, "not found")
}

func TestProcessor_ScenarioD_TransientThenRedelivered(t *testing.T) {
	h := newHarness(t)
	ctrl := gomock.NewController(t)
	a := mocks.NewMockAnalyzer(ctrl)
	fallback := placeholder()

	gomock.InOrder(
		a.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(nil, errors.New("model server unavailable")),
		a.EXPECT().Analyze(gomock.Any(), gomock.Any()).DoAndReturn(fallback.Analyze),
	)

	p := h.processor(h.store, a)
	h.submit("job-5", "uploads/d.mp4")

	first := h.receive()
	assert.Equal(t, worker.OutcomeRetry, p.HandleMessage(context.Background(), first))

	job := h.job("job-5")
	assert.Equal(t, domain.StatusProcessing, job.Status)
	assert.Equal(t, 1, job.Attempt)

	// not acknowledged: still leased, invisible until expiry
	_, inFlight, deleted := h.stats()
	assert.Equal(t, 1, inFlight)
	assert.Equal(t, 0, deleted)

	h.clock.Advance(lease + time.Second)
	second := h.receive()
	assert.Equal(t, 2, second.DeliveryCount)
	assert.Equal(t, worker.OutcomeCompleted, p.HandleMessage(context.Background(), second))

	job = h.job("job-5")
	assert.Equal(t, domain.StatusCompleted, job.Status)
	assert.Equal(t, 2, job.Attempt)
	assert.Equal(t,
		[]domain.Status{domain.StatusPending, domain.StatusProcessing, domain.StatusProcessing, domain.StatusCompleted},
		h.store.History("job-5"))
}

func TestProcessor_DuplicateDeliveriesProduceOneEffect(t *testing.T) {
	h := newHarness(t)
	p := h.processor(h.store, placeholder())
	h.submit("job-6", "uploads/e.mp4")

	// the same envelope delivered three times
	ctx := context.Background()
	require.NoError(t, h.queue.Publish(ctx, domain.Envelope{JobID: "job-6", InputRef: "uploads/e.mp4"}))
	require.NoError(t, h.queue.Publish(ctx, domain.Envelope{JobID: "job-6", InputRef: "uploads/e.mp4"}))

	assert.Equal(t, worker.OutcomeCompleted, p.HandleMessage(ctx, h.receive()))
	completed := h.job("job-6")

	h.clock.Advance(time.Minute)
	assert.Equal(t, worker.OutcomeDuplicate, p.HandleMessage(ctx, h.receive()))
	assert.Equal(t, worker.OutcomeDuplicate, p.HandleMessage(ctx, h.receive()))

	assert.Equal(t, completed, h.job("job-6"))
	assert.Equal(t, 1, h.blobs.Writes("outputs/job-6"))
	assert.Equal(t, 1, h.blobs.Writes("metrics/job-6"))

	_, inFlight, deleted := h.stats()
	assert.Equal(t, 0, inFlight)
	assert.Equal(t, 3, deleted)
}

func TestProcessor_ReclaimAfterCrashIsDeterministic(t *testing.T) {
	h := newHarness(t)
	p := h.processor(h.store, placeholder())
	h.submit("job-7", "uploads/f.mp4")
	ctx := context.Background()

	// a previous processor claimed the job and died holding the lease
	_ = h.receive()
	_, err := h.store.Update(ctx, "job-7", domain.ClaimUpdate(h.job("job-7"), h.clock.Now()))
	require.NoError(t, err)

	h.clock.Advance(lease + time.Second)
	assert.Equal(t, worker.OutcomeCompleted, p.HandleMessage(ctx, h.receive()))

	job := h.job("job-7")
	assert.Equal(t, 2, job.Attempt)

	want, err := placeholder().Analyze(ctx, analyzer.Request{JobID: "job-7", InputRef: "uploads/f.mp4", InputSize: int64(len("video bytes"))})
	require.NoError(t, err)
	got, ok := h.blobs.Get(job.OutputRef)
	require.True(t, ok)
	assert.Equal(t, want.Output, got)
}

func TestProcessor_PoisonMessages(t *testing.T) {
	h := newHarness(t)
	p := h.processor(h.store, placeholder())
	ctx := context.Background()

	_, err := h.queue.Send(ctx, []byte("not json"))
	require.NoError(t, err)
	require.NoError(t, h.queue.Publish(ctx, domain.Envelope{JobID: "ghost", InputRef: "uploads/x.mp4"}))
	h.submit("job-8", "uploads/g.mp4")

	assert.Equal(t, worker.OutcomePoison, p.HandleMessage(ctx, h.receive()))
	assert.Equal(t, worker.OutcomePoison, p.HandleMessage(ctx, h.receive()))
	assert.Equal(t, worker.OutcomeCompleted, p.HandleMessage(ctx, h.receive()))

	_, err = h.store.Get(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	_, inFlight, deleted := h.stats()
	assert.Equal(t, 0, inFlight)
	assert.Equal(t, 3, deleted)
}

// flakyStore fails updates to one target status with a transient error
type flakyStore struct {
	*memory.JobStore
	failOn domain.Status
	calls  int
}

func (s *flakyStore) Update(ctx context.Context, jobID string, u domain.Update) (*domain.Job, error) {
	if u.Status == s.failOn {
		s.calls++
		return nil, domain.NewTransientError("job update", errors.New("connection reset by peer"))
	}
	return s.JobStore.Update(ctx, jobID, u)
}

func TestProcessor_FinalizeFailureIsNotAcknowledged(t *testing.T) {
	h := newHarness(t)
	store := &flakyStore{JobStore: h.store, failOn: domain.StatusCompleted}
	p := h.processor(store, placeholder())
	h.submit("job-9", "uploads/h.mp4")

	assert.Equal(t, worker.OutcomeRetry, p.HandleMessage(context.Background(), h.receive()))

	// retried inside the lease before giving up
	assert.Equal(t, 2, store.calls)
	assert.Equal(t, domain.StatusProcessing, h.job("job-9").Status)

	_, inFlight, deleted := h.stats()
	assert.Equal(t, 1, inFlight)
	assert.Equal(t, 0, deleted)

	// once the store recovers the redelivery finishes the job
	store.failOn = ""
	h.clock.Advance(lease + time.Second)
	assert.Equal(t, worker.OutcomeCompleted, p.HandleMessage(context.Background(), h.receive()))
	assert.Equal(t, 2, h.job("job-9").Attempt)
}

// racingStore lets another processor claim the job right before each of
// the first n claims made through it
type racingStore struct {
	*memory.JobStore
	clock *fakeClock
	races int
}

func (s *racingStore) Update(ctx context.Context, jobID string, u domain.Update) (*domain.Job, error) {
	if u.IncrementAttempt && s.races > 0 {
		s.races--
		current, err := s.JobStore.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		s.clock.Advance(time.Millisecond)
		if _, err := s.JobStore.Update(ctx, jobID, domain.ClaimUpdate(current, s.clock.Now())); err != nil {
			return nil, err
		}
	}
	return s.JobStore.Update(ctx, jobID, u)
}

func TestProcessor_LeaseRaceReevaluates(t *testing.T) {
	h := newHarness(t)
	store := &racingStore{JobStore: h.store, clock: h.clock, races: 1}
	p := h.processor(store, placeholder())
	h.submit("job-10", "uploads/i.mp4")

	assert.Equal(t, worker.OutcomeCompleted, p.HandleMessage(context.Background(), h.receive()))

	job := h.job("job-10")
	assert.Equal(t, domain.StatusCompleted, job.Status)
	assert.Equal(t, 2, job.Attempt)
	assert.Equal(t,
		[]domain.Status{domain.StatusPending, domain.StatusProcessing, domain.StatusProcessing, domain.StatusCompleted},
		h.store.History("job-10"))
}

func TestProcessor_LeaseRaceGivesUpAfterClaimAttempts(t *testing.T) {
	h := newHarness(t)
	store := &racingStore{JobStore: h.store, clock: h.clock, races: 10}
	p := h.processor(store, placeholder())
	h.submit("job-11", "uploads/j.mp4")

	assert.Equal(t, worker.OutcomeRetry, p.HandleMessage(context.Background(), h.receive()))
	assert.Equal(t, domain.StatusProcessing, h.job("job-11").Status)
	assert.Equal(t, 0, h.blobs.TotalWrites())
}

// finishingStore completes the job on behalf of another processor right
// before the caller's own finalize
type finishingStore struct {
	*memory.JobStore
}

func (s *finishingStore) Update(ctx context.Context, jobID string, u domain.Update) (*domain.Job, error) {
	if u.Status == domain.StatusCompleted {
		if _, err := s.JobStore.Update(ctx, jobID, u); err != nil {
			return nil, err
		}
	}
	return s.JobStore.Update(ctx, jobID, u)
}

func TestProcessor_FinalizeConflictWithFinishedJobIsDuplicate(t *testing.T) {
	h := newHarness(t)
	p := h.processor(&finishingStore{JobStore: h.store}, placeholder())
	h.submit("job-12", "uploads/k.mp4")

	assert.Equal(t, worker.OutcomeDuplicate, p.HandleMessage(context.Background(), h.receive()))
	assert.Equal(t, domain.StatusCompleted, h.job("job-12").Status)

	_, _, deleted := h.stats()
	assert.Equal(t, 1, deleted)
}

// reclaimingStore lets another processor re-claim the job, as it would
// after a lease expiry, right before the caller's own finalize
type reclaimingStore struct {
	*memory.JobStore
	clock *fakeClock
}

func (s *reclaimingStore) Update(ctx context.Context, jobID string, u domain.Update) (*domain.Job, error) {
	if u.Status.IsTerminal() {
		current, err := s.JobStore.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		s.clock.Advance(time.Millisecond)
		if _, err := s.JobStore.Update(ctx, jobID, domain.ClaimUpdate(current, s.clock.Now())); err != nil {
			return nil, err
		}
	}
	return s.JobStore.Update(ctx, jobID, u)
}

func TestProcessor_FinalizeAfterReclaimIsRetried(t *testing.T) {
	h := newHarness(t)
	p := h.processor(&reclaimingStore{JobStore: h.store, clock: h.clock}, placeholder())
	h.submit("job-16", "uploads/o.mp4")

	assert.Equal(t, worker.OutcomeRetry, p.HandleMessage(context.Background(), h.receive()))

	// the newer claim owns the record; the stale holder must not finish it
	job := h.job("job-16")
	assert.Equal(t, domain.StatusProcessing, job.Status)
	assert.Equal(t, 2, job.Attempt)
	assert.Empty(t, job.OutputRef)
	assert.Equal(t,
		[]domain.Status{domain.StatusPending, domain.StatusProcessing, domain.StatusProcessing},
		h.store.History("job-16"))

	_, _, deleted := h.stats()
	assert.Equal(t, 0, deleted)
}

func TestProcessor_FailAfterReclaimIsRetried(t *testing.T) {
	h := newHarness(t)
	p := h.processor(&reclaimingStore{JobStore: h.store, clock: h.clock}, placeholder())
	h.submit("job-17", "uploads/p.txt")

	assert.Equal(t, worker.OutcomeRetry, p.HandleMessage(context.Background(), h.receive()))

	job := h.job("job-17")
	assert.Equal(t, domain.StatusProcessing, job.Status)
	assert.Empty(t, job.FailureReason)
}

func TestProcessor_RecordsSpan(t *testing.T) {
	h := newHarness(t)
	p := h.processor(h.store, placeholder())
	h.submit("job-13", "uploads/l.mp4")

	p.HandleMessage(context.Background(), h.receive())

	spans := h.recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "worker.handle_message", spans[0].Name())

	attrs := map[attribute.Key]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	assert.Equal(t, "job-13", attrs["job.id"])
	assert.Equal(t, "completed", attrs["worker.outcome"])
	assert.Equal(t, "1", attrs["queue.delivery_count"])
}

func TestProcessor_RunBacksOffOnReceiveErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	q := mocks.NewMockWorkQueue(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gomock.InOrder(
		q.EXPECT().Receive(gomock.Any(), gomock.Any(), lease).Return(nil, domain.NewTransientError("queue receive", errors.New("broker down"))),
		q.EXPECT().Receive(gomock.Any(), gomock.Any(), lease).Return(nil, domain.NewTransientError("queue receive", errors.New("broker down"))),
		q.EXPECT().Receive(gomock.Any(), gomock.Any(), lease).DoAndReturn(
			func(context.Context, time.Duration, time.Duration) (*queue.Message, error) {
				cancel()
				return nil, nil
			}),
	)

	p := worker.NewProcessor(memory.NewJobStore(), q, memory.NewBlobStore(), placeholder(), testLogger(), testOptions())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not stop")
	}
}

func TestProcessor_RunStopsWhenQueueDisconnected(t *testing.T) {
	ctrl := gomock.NewController(t)
	q := mocks.NewMockWorkQueue(ctrl)

	gomock.InOrder(
		q.EXPECT().Receive(gomock.Any(), gomock.Any(), lease).Return(nil, domain.NewTransientError("queue receive", queue.ErrClosed)),
		q.EXPECT().Receive(gomock.Any(), gomock.Any(), lease).Return(nil, fmt.Errorf("rabbitmq: %w", queue.ErrDisconnected)),
	)

	p := worker.NewProcessor(memory.NewJobStore(), q, memory.NewBlobStore(), placeholder(), testLogger(), testOptions())

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, queue.ErrDisconnected)
	case <-time.After(5 * time.Second):
		t.Fatal("processor kept polling a lost connection")
	}
}

func TestProcessor_RunFinishesInFlightJobAfterCancel(t *testing.T) {
	h := newHarness(t)
	ctrl := gomock.NewController(t)
	a := mocks.NewMockAnalyzer(ctrl)
	fallback := placeholder()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	a.EXPECT().Analyze(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, req analyzer.Request) (*analyzer.Result, error) {
			close(started)
			<-runCtx.Done()
			// shutdown stops receiving but the leased job keeps its context
			assert.NoError(t, ctx.Err())
			return fallback.Analyze(ctx, req)
		})

	p := h.processor(h.store, a)
	h.submit("job-18", "uploads/q.mp4")

	done := make(chan error, 1)
	go func() { done <- p.Run(runCtx) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("analysis never started")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not stop")
	}

	job := h.job("job-18")
	assert.Equal(t, domain.StatusCompleted, job.Status)
	assert.Equal(t, domain.OutputKey("job-18"), job.OutputRef)

	ready, inFlight, deleted := h.stats()
	assert.Equal(t, 0, ready)
	assert.Equal(t, 0, inFlight)
	assert.Equal(t, 1, deleted)
}

func TestProcessor_RunReleasesOnRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	q := mocks.NewMockWorkQueue(ctrl)
	store := memory.NewJobStore()
	blobs := memory.NewBlobStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, store.Put(ctx, domain.NewJob("job-14", "uploads/m.mp4", "", "", time.Now())))
	blobs.Seed("uploads/m.mp4", []byte("video"))

	a := mocks.NewMockAnalyzer(ctrl)
	a.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(nil, context.DeadlineExceeded)

	msg := &queue.Message{ID: "m-1", Body: []byte(`{"jobId":"job-14","inputRef":"uploads/m.mp4"}`), Receipt: "r-1", DeliveryCount: 1, ReceivedAt: time.Now()}
	gomock.InOrder(
		q.EXPECT().Receive(gomock.Any(), gomock.Any(), lease).Return(msg, nil),
		q.EXPECT().Release(gomock.Any(), "r-1").DoAndReturn(func(context.Context, string) error {
			cancel()
			return nil
		}),
	)

	p := worker.NewProcessor(store, q, blobs, a, testLogger(), testOptions())
	assert.NoError(t, p.Run(ctx))

	job, err := store.Get(context.Background(), "job-14")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, job.Status)
}

func TestOutcome(t *testing.T) {
	assert.True(t, worker.OutcomeCompleted.Acknowledges())
	assert.True(t, worker.OutcomeFailed.Acknowledges())
	assert.True(t, worker.OutcomeDuplicate.Acknowledges())
	assert.True(t, worker.OutcomePoison.Acknowledges())
	assert.False(t, worker.OutcomeRetry.Acknowledges())
	assert.Equal(t, "retry", worker.OutcomeRetry.String())
}
