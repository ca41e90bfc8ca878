package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/itaysmouha/ScoutAI/internal/backoff"
	"github.com/itaysmouha/ScoutAI/internal/domain"
	"github.com/itaysmouha/ScoutAI/internal/queue"
)

type queueEntry struct {
	id         string
	body       []byte
	deliveries int
	receipt    string
	leaseUntil time.Time
	inFlight   bool
}

// Queue is an in-memory Work Queue with visibility-timeout leases.
// Expired leases are returned to the ready list on the next receive, and
// messages delivered more than maxDeliveries times are dead-lettered.
type Queue struct {
	mu            sync.Mutex
	now           func() time.Time
	pollInterval  time.Duration
	maxDeliveries int

	ready   []string
	entries map[string]*queueEntry
	dead    [][]byte
	deleted int
}

// QueueOption configures a Queue
type QueueOption func(*Queue)

// WithClock sets the clock used for lease expiry
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) { q.now = now }
}

// WithMaxDeliveries sets the dead-letter threshold. Zero disables it.
func WithMaxDeliveries(n int) QueueOption {
	return func(q *Queue) { q.maxDeliveries = n }
}

// WithPollInterval sets how often an empty long-poll re-checks
func WithPollInterval(d time.Duration) QueueOption {
	return func(q *Queue) { q.pollInterval = d }
}

// NewQueue returns an empty Queue
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		now:          time.Now,
		pollInterval: 50 * time.Millisecond,
		entries:      make(map[string]*queueEntry),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Publish enqueues an envelope
func (q *Queue) Publish(ctx context.Context, env domain.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	_, err = q.Send(ctx, body)
	return err
}

// Send enqueues a raw body and returns the message id
func (q *Queue) Send(_ context.Context, body []byte) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := uuid.NewString()
	q.entries[id] = &queueEntry{id: id, body: append([]byte(nil), body...)}
	q.ready = append(q.ready, id)
	return id, nil
}

// Receive leases the next visible message, waiting up to maxWait. It
// returns nil, nil when nothing became visible in time.
func (q *Queue) Receive(ctx context.Context, maxWait, lease time.Duration) (*queue.Message, error) {
	deadline := time.Now().Add(maxWait)
	for {
		if msg := q.tryReceive(lease); msg != nil {
			return msg, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		if !backoff.Sleep(ctx, min(q.pollInterval, remaining)) {
			return nil, ctx.Err()
		}
	}
}

func (q *Queue) tryReceive(lease time.Duration) *queue.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.requeueExpired(now)

	for len(q.ready) > 0 {
		id := q.ready[0]
		q.ready = q.ready[1:]

		entry, ok := q.entries[id]
		if !ok {
			continue
		}

		entry.deliveries++
		if q.maxDeliveries > 0 && entry.deliveries > q.maxDeliveries {
			q.dead = append(q.dead, entry.body)
			delete(q.entries, id)
			continue
		}

		entry.receipt = id + "/" + uuid.NewString()
		entry.leaseUntil = now.Add(lease)
		entry.inFlight = true

		return &queue.Message{
			ID:            id,
			Body:          append([]byte(nil), entry.body...),
			Receipt:       entry.receipt,
			DeliveryCount: entry.deliveries,
			ReceivedAt:    now,
		}
	}
	return nil
}

func (q *Queue) requeueExpired(now time.Time) {
	for id, entry := range q.entries {
		if entry.inFlight && !now.Before(entry.leaseUntil) {
			entry.inFlight = false
			entry.receipt = ""
			q.ready = append(q.ready, id)
		}
	}
}

// Delete acknowledges a leased message
func (q *Queue) Delete(_ context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	id, _, _ := strings.Cut(receipt, "/")
	entry, ok := q.entries[id]
	if !ok || !entry.inFlight || entry.receipt != receipt {
		return queue.ErrStaleReceipt
	}

	delete(q.entries, id)
	q.deleted++
	return nil
}

// Release gives up a lease without acknowledging. The message becomes
// visible again once the lease expires.
func (q *Queue) Release(_ context.Context, _ string) error {
	return nil
}

// Stats reports ready, in-flight, deleted and dead-lettered counts
func (q *Queue) Stats() (ready, inFlight, deleted, dead int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, entry := range q.entries {
		if entry.inFlight {
			inFlight++
		} else {
			ready++
		}
	}
	return ready, inFlight, q.deleted, len(q.dead)
}

// DeadLetters returns the bodies moved to the dead-letter list
func (q *Queue) DeadLetters() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	return append([][]byte(nil), q.dead...)
}
