// Package rabbitqueue adapts a RabbitMQ queue to the Work Queue contract.
//
// Messages are fetched with basic.get so that each receive leases exactly
// one message. The lease lasts until the message is acked or nacked, or the
// broker's consumer timeout fires and the channel is closed. A closed
// channel is replaced on the next receive; deliveries leased on it have
// already been requeued by the broker, so their receipts turn stale.
package rabbitqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/itaysmouha/ScoutAI/internal/backoff"
	"github.com/itaysmouha/ScoutAI/internal/domain"
	"github.com/itaysmouha/ScoutAI/internal/queue"
	"github.com/itaysmouha/ScoutAI/shared/rabbitmq"
)

// Channel is the subset of *amqp.Channel the adapter needs
type Channel interface {
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple, requeue bool) error
	Close() error
}

// Opener opens a fresh channel
type Opener func() (Channel, error)

// Queue is a Work Queue bound to one AMQP channel at a time. It must not be
// shared between goroutines.
type Queue struct {
	open       Opener
	ch         Channel
	generation uint64
	closed     bool

	queueName string
	poll      backoff.Strategy
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Queue that opens its channel through open on first use and
// again whenever the broker closes it
func New(open Opener, queueName string, pollInterval time.Duration, logger *slog.Logger) *Queue {
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	return &Queue{
		open:      open,
		queueName: queueName,
		poll:      backoff.NewConstant(pollInterval),
		now:       time.Now,
		logger:    logger,
	}
}

// Open creates a Queue on client and opens its first channel. Once the
// client's connection is gone for good, receives fail with
// queue.ErrDisconnected.
func Open(client *rabbitmq.Client, pollInterval time.Duration, logger *slog.Logger) (*Queue, error) {
	q := New(ClientOpener(client), client.QueueName(), pollInterval, logger)
	if _, err := q.channel(); err != nil {
		return nil, err
	}
	return q, nil
}

// ClientOpener opens channels on client's connection
func ClientOpener(client *rabbitmq.Client) Opener {
	return func() (Channel, error) {
		if !client.IsConnected() {
			return nil, fmt.Errorf("rabbitmq: %w", queue.ErrDisconnected)
		}
		ch, err := client.OpenChannel()
		if err != nil {
			return nil, domain.NewTransientError("open channel", err)
		}
		return ch, nil
	}
}

// channel returns the current channel, opening a new one if the last was
// closed
func (q *Queue) channel() (Channel, error) {
	if q.closed {
		return nil, queue.ErrClosed
	}
	if q.ch != nil {
		return q.ch, nil
	}

	ch, err := q.open()
	if err != nil {
		return nil, err
	}
	q.ch = ch
	q.generation++
	if q.generation > 1 {
		q.logger.Info("Queue channel reopened", slog.Uint64("generation", q.generation))
	}
	return ch, nil
}

// drop forgets a channel the broker or the connection has closed. It
// reports whether err meant the channel is gone.
func (q *Queue) drop(err error) bool {
	var amqpErr *amqp.Error
	if !errors.As(err, &amqpErr) || q.ch == nil {
		return false
	}
	_ = q.ch.Close()
	q.ch = nil
	q.logger.Warn("Queue channel closed, reopening on next receive",
		slog.Uint64("generation", q.generation),
		slog.Any("error", err),
	)
	return true
}

// Receive polls for one message for up to maxWait. The lease argument is
// enforced by the broker's consumer timeout rather than per message.
func (q *Queue) Receive(ctx context.Context, maxWait, _ time.Duration) (*queue.Message, error) {
	deadline := time.Now().Add(maxWait)
	for attempt := 1; ; attempt++ {
		ch, err := q.channel()
		if err != nil {
			return nil, err
		}

		d, ok, err := ch.Get(q.queueName, false)
		if err != nil {
			if q.drop(err) {
				return nil, domain.NewTransientError("queue receive", fmt.Errorf("%w: %v", queue.ErrClosed, err))
			}
			return nil, domain.NewTransientError("queue receive", err)
		}
		if ok {
			return q.toMessage(d), nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		if !backoff.Sleep(ctx, min(q.poll.Delay(attempt), remaining)) {
			return nil, ctx.Err()
		}
	}
}

func (q *Queue) toMessage(d amqp.Delivery) *queue.Message {
	id := d.MessageId
	if id == "" {
		id = strconv.FormatUint(d.DeliveryTag, 10)
	}
	return &queue.Message{
		ID:            id,
		Body:          d.Body,
		Receipt:       q.receipt(d.DeliveryTag),
		DeliveryCount: deliveryCount(d),
		ReceivedAt:    q.now(),
	}
}

// receipt ties a delivery tag to the channel it was delivered on. Tags
// restart on every channel.
func (q *Queue) receipt(tag uint64) string {
	return strconv.FormatUint(q.generation, 10) + "." + strconv.FormatUint(tag, 10)
}

// leased returns the channel and tag for receipt, or ErrStaleReceipt when
// the delivery belonged to a channel that has since closed
func (q *Queue) leased(receipt string) (Channel, uint64, error) {
	gen, tag, ok := strings.Cut(receipt, ".")
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", queue.ErrStaleReceipt, receipt)
	}
	generation, err := strconv.ParseUint(gen, 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %q", queue.ErrStaleReceipt, receipt)
	}
	deliveryTag, err := strconv.ParseUint(tag, 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %q", queue.ErrStaleReceipt, receipt)
	}
	if q.ch == nil || generation != q.generation {
		return nil, 0, fmt.Errorf("%w: channel for %q was closed", queue.ErrStaleReceipt, receipt)
	}
	return q.ch, deliveryTag, nil
}

// deliveryCount reads the quorum queue counter, which counts earlier
// deliveries, and falls back to the redelivered flag on classic queues
func deliveryCount(d amqp.Delivery) int {
	if v, ok := d.Headers["x-delivery-count"]; ok {
		switch n := v.(type) {
		case int64:
			return int(n) + 1
		case int32:
			return int(n) + 1
		case int:
			return n + 1
		}
	}
	if d.Redelivered {
		return 2
	}
	return 1
}

// Delete acks the delivery identified by receipt
func (q *Queue) Delete(_ context.Context, receipt string) error {
	ch, tag, err := q.leased(receipt)
	if err != nil {
		return err
	}

	if err := ch.Ack(tag, false); err != nil {
		return q.ackError("queue delete", err)
	}
	return nil
}

// Release nacks the delivery back onto the queue
func (q *Queue) Release(_ context.Context, receipt string) error {
	ch, tag, err := q.leased(receipt)
	if err != nil {
		return err
	}

	if err := ch.Nack(tag, false, true); err != nil {
		return q.ackError("queue release", err)
	}
	return nil
}

// Close closes the current channel. Unacked deliveries are requeued by the
// broker.
func (q *Queue) Close() error {
	q.closed = true
	if q.ch == nil {
		return nil
	}
	ch := q.ch
	q.ch = nil
	if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		q.logger.Warn("Failed to close queue channel", slog.Any("error", err))
		return err
	}
	return nil
}

// ackError treats any AMQP error as a closed channel, which means the
// broker has already requeued the delivery. Everything else is transient.
func (q *Queue) ackError(op string, err error) error {
	if q.drop(err) {
		return fmt.Errorf("%s: %w: %v", op, queue.ErrStaleReceipt, err)
	}
	return domain.NewTransientError(op, err)
}

// Publisher sends job envelopes to the work queue through the shared client
type Publisher struct {
	client *rabbitmq.Client
}

// NewPublisher creates a new Publisher
func NewPublisher(client *rabbitmq.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish encodes and publishes env, retrying with backoff
func (p *Publisher) Publish(ctx context.Context, env domain.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	return p.client.PublishWithRetry(ctx, body, "application/json")
}
