// Package redisqueue implements the Work Queue on Redis with visibility
// timeouts.
//
// Keys for a queue named q share the {q} hash tag:
//
//	q:ready     LIST of message ids waiting for a consumer
//	q:inflight  ZSET of leased ids scored by lease deadline (unix ms)
//	q:dlq       LIST of bodies that exceeded the delivery limit
//	q:msg:<id>  HASH with body, deliveries and the current receipt token
package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/itaysmouha/ScoutAI/internal/backoff"
	"github.com/itaysmouha/ScoutAI/internal/domain"
	"github.com/itaysmouha/ScoutAI/internal/queue"
)

// receiveScript requeues expired leases, then pops ready ids until one is
// leasable. Ids over the delivery limit are dead-lettered on the way.
var receiveScript = goredis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, id in ipairs(expired) do
	redis.call('ZREM', KEYS[2], id)
	redis.call('HDEL', ARGV[5] .. id, 'receipt')
	redis.call('RPUSH', KEYS[1], id)
end

local limit = tonumber(ARGV[3])
while true do
	local id = redis.call('LPOP', KEYS[1])
	if not id then
		return false
	end

	local key = ARGV[5] .. id
	if redis.call('EXISTS', key) == 1 then
		local n = redis.call('HINCRBY', key, 'deliveries', 1)
		if limit > 0 and n > limit then
			redis.call('RPUSH', KEYS[3], redis.call('HGET', key, 'body'))
			redis.call('DEL', key)
		else
			redis.call('ZADD', KEYS[2], ARGV[2], id)
			redis.call('HSET', key, 'receipt', ARGV[4])
			return {id, redis.call('HGET', key, 'body'), n}
		end
	end
end
`)

// deleteScript removes a message only while the receipt is current
var deleteScript = goredis.NewScript(`
if redis.call('HGET', KEYS[2], 'receipt') ~= ARGV[2] then
	return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('DEL', KEYS[2])
return 1
`)

// Options configures a Queue
type Options struct {
	Name          string
	PollInterval  time.Duration
	MaxDeliveries int
}

// Queue is a Work Queue on Redis. It is safe for concurrent use.
type Queue struct {
	rdb           goredis.UniversalClient
	prefix        string
	pollInterval  time.Duration
	maxDeliveries int
	now           func() time.Time
	logger        *slog.Logger
}

// New creates a Queue
func New(rdb goredis.UniversalClient, opts Options, logger *slog.Logger) *Queue {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 200 * time.Millisecond
	}
	return &Queue{
		rdb:           rdb,
		prefix:        "{" + opts.Name + "}",
		pollInterval:  opts.PollInterval,
		maxDeliveries: opts.MaxDeliveries,
		now:           time.Now,
		logger:        logger,
	}
}

func (q *Queue) readyKey() string    { return q.prefix + ":ready" }
func (q *Queue) inflightKey() string { return q.prefix + ":inflight" }
func (q *Queue) dlqKey() string      { return q.prefix + ":dlq" }
func (q *Queue) msgPrefix() string   { return q.prefix + ":msg:" }
func (q *Queue) msgKey(id string) string {
	return q.msgPrefix() + id
}

// Publish encodes and enqueues env
func (q *Queue) Publish(ctx context.Context, env domain.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	_, err = q.Send(ctx, body)
	return err
}

// Send enqueues a raw body and returns its message id
func (q *Queue) Send(ctx context.Context, body []byte) (string, error) {
	id := uuid.NewString()

	_, err := q.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, q.msgKey(id), "body", body, "deliveries", 0)
		pipe.RPush(ctx, q.readyKey(), id)
		return nil
	})
	if err != nil {
		return "", domain.NewTransientError("queue send", err)
	}

	q.logger.Debug("Message enqueued", slog.String("message_id", id))
	return id, nil
}

// Receive leases one message for lease, waiting up to maxWait. It returns
// nil, nil when the wait ends without a message.
func (q *Queue) Receive(ctx context.Context, maxWait, lease time.Duration) (*queue.Message, error) {
	deadline := time.Now().Add(maxWait)
	for {
		msg, err := q.tryReceive(ctx, lease)
		if err != nil || msg != nil {
			return msg, err
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

func (q *Queue) tryReceive(ctx context.Context, lease time.Duration) (*queue.Message, error) {
	now := q.now()
	token := uuid.NewString()

	res, err := receiveScript.Run(ctx, q.rdb,
		[]string{q.readyKey(), q.inflightKey(), q.dlqKey()},
		now.UnixMilli(),
		now.Add(lease).UnixMilli(),
		q.maxDeliveries,
		token,
		q.msgPrefix(),
	).Slice()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewTransientError("queue receive", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("queue receive: unexpected reply %v", res)
	}

	id, _ := res[0].(string)
	body, _ := res[1].(string)
	deliveries, _ := res[2].(int64)

	return &queue.Message{
		ID:            id,
		Body:          []byte(body),
		Receipt:       id + "/" + token,
		DeliveryCount: int(deliveries),
		ReceivedAt:    now,
	}, nil
}

// Delete removes a leased message. A receipt from an expired lease is
// rejected with queue.ErrStaleReceipt.
func (q *Queue) Delete(ctx context.Context, receipt string) error {
	id, token, ok := strings.Cut(receipt, "/")
	if !ok {
		return fmt.Errorf("%w: %q", queue.ErrStaleReceipt, receipt)
	}

	n, err := deleteScript.Run(ctx, q.rdb,
		[]string{q.inflightKey(), q.msgKey(id)},
		id,
		token,
	).Int64()
	if err != nil {
		return domain.NewTransientError("queue delete", err)
	}
	if n == 0 {
		return queue.ErrStaleReceipt
	}
	return nil
}

// Release is a no-op. The message reappears when its lease expires.
func (q *Queue) Release(_ context.Context, _ string) error {
	return nil
}

// Stats reports ready, in-flight and dead-lettered counts
func (q *Queue) Stats(ctx context.Context) (ready, inFlight, dead int64, err error) {
	pipe := q.rdb.Pipeline()
	readyCmd := pipe.LLen(ctx, q.readyKey())
	inflightCmd := pipe.ZCard(ctx, q.inflightKey())
	deadCmd := pipe.LLen(ctx, q.dlqKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, 0, domain.NewTransientError("queue stats", err)
	}
	return readyCmd.Val(), inflightCmd.Val(), deadCmd.Val(), nil
}

// DeadLetters returns the dead-lettered bodies
func (q *Queue) DeadLetters(ctx context.Context) ([]string, error) {
	bodies, err := q.rdb.LRange(ctx, q.dlqKey(), 0, -1).Result()
	if err != nil {
		return nil, domain.NewTransientError("queue dead letters", err)
	}
	return bodies, nil
}
