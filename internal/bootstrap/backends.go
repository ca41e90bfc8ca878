// Package bootstrap wires configuration into the concrete Job Store, Work
// Queue and Blob Store backends shared by the api and worker services.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/itaysmouha/ScoutAI/internal/api/handler"
	"github.com/itaysmouha/ScoutAI/internal/blob"
	"github.com/itaysmouha/ScoutAI/internal/config"
	"github.com/itaysmouha/ScoutAI/internal/memory"
	"github.com/itaysmouha/ScoutAI/internal/queue/rabbitqueue"
	"github.com/itaysmouha/ScoutAI/internal/queue/redisqueue"
	"github.com/itaysmouha/ScoutAI/internal/storage"
	"github.com/itaysmouha/ScoutAI/internal/worker"
	"github.com/itaysmouha/ScoutAI/shared/objectstorage"
	"github.com/itaysmouha/ScoutAI/shared/postgresql"
	"github.com/itaysmouha/ScoutAI/shared/rabbitmq"
	"github.com/itaysmouha/ScoutAI/shared/redis"
)

// JobStore is the full Job Store surface used across both services
type JobStore interface {
	handler.JobStore
	worker.JobStore
}

// BlobStore is the full Blob Store surface used across both services
type BlobStore interface {
	handler.UploadSigner
	worker.BlobStore
}

// Backends holds the opened substrates for one process
type Backends struct {
	Store        JobStore
	Blobs        BlobStore
	Publisher    handler.JobPublisher
	OpenQueue    worker.QueueFactory
	HealthChecks map[string]handler.HealthCheck

	closers []func() error
	logger  *slog.Logger
}

// Open connects every backend the configuration selects. On error the
// backends opened so far are closed.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Backends, err error) {
	b := &Backends{
		HealthChecks: make(map[string]handler.HealthCheck),
		logger:       logger,
	}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	if cfg.Queue.Driver == config.QueueDriverMemory {
		b.openMemory(cfg)
		logger.Warn("Using in-memory backends, state is lost on exit")
		return b, nil
	}

	if err := b.openStore(ctx, cfg); err != nil {
		return nil, err
	}

	if err := b.openBlobs(cfg); err != nil {
		return nil, err
	}

	switch cfg.Queue.Driver {
	case config.QueueDriverRabbitMQ:
		err = b.openRabbitMQ(cfg)
	case config.QueueDriverRedis:
		err = b.openRedis(cfg)
	default:
		err = fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}
	if err != nil {
		return nil, err
	}

	return b, nil
}

func (b *Backends) openMemory(cfg *config.Config) {
	q := memory.NewQueue(
		memory.WithPollInterval(cfg.Queue.PollInterval),
		memory.WithMaxDeliveries(cfg.Queue.MaxDeliveries),
	)

	b.Store = memory.NewJobStore()
	b.Blobs = memory.NewBlobStore()
	b.Publisher = q
	b.OpenQueue = func(int) (worker.WorkQueue, func() error, error) {
		return q, nil, nil
	}
}

func (b *Backends) openStore(ctx context.Context, cfg *config.Config) error {
	db := cfg.Database
	client, err := postgresql.NewClient(ctx, &postgresql.Config{
		Host:            db.Host,
		Port:            db.Port,
		User:            db.User,
		Password:        db.Password,
		Database:        db.Database,
		SSLMode:         db.SSLMode,
		ApplicationName: cfg.App.Name,
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
		ConnMaxIdleTime: db.ConnMaxIdleTime,
		ConnectAttempts: 5,
	}, b.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	b.closers = append(b.closers, client.Close)
	b.HealthChecks["database"] = client.HealthCheck

	store := storage.NewJobStore(client.GetDB(), b.logger)
	if db.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	b.Store = store
	return nil
}

func (b *Backends) openBlobs(cfg *config.Config) error {
	m := cfg.MinIO
	client, err := objectstorage.NewClient(&objectstorage.Config{
		Endpoint:  m.Endpoint,
		AccessKey: m.AccessKey,
		SecretKey: m.SecretKey,
		Region:    m.Region,
		Bucket:    m.Bucket,
		UseSSL:    m.UseSSL,
	}, b.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	b.Blobs = blob.NewStore(client.GetClient(), client.Bucket(), b.logger)
	return nil
}

func (b *Backends) openRabbitMQ(cfg *config.Config) error {
	r := cfg.RabbitMQ
	client, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:               r.Host,
		Port:               r.Port,
		User:               r.User,
		Password:           r.Password,
		VHost:              r.VHost,
		ExchangeName:       r.Exchange.Name,
		ExchangeType:       r.Exchange.Type,
		ExchangeDurable:    r.Exchange.Durable,
		ExchangeAutoDelete: r.Exchange.AutoDelete,
		QueueName:          r.Queue.Name,
		QueueType:          r.Queue.Type,
		QueueDurable:       r.Queue.Durable,
		QueueAutoDelete:    r.Queue.AutoDelete,
		QueueExclusive:     r.Queue.Exclusive,
		RoutingKey:         r.RoutingKey,
		DeadLetterExchange: r.DeadLetter.Exchange,
		DeadLetterQueue:    r.DeadLetter.Queue,
		DeliveryLimit:      r.Queue.DeliveryLimit,
		ConsumerTimeout:    r.Consumer.Timeout,
		RetryAttempts:      r.Connection.RetryAttempts,
		RetryInterval:      r.Connection.RetryInterval,
		Heartbeat:          r.Connection.Heartbeat,
		ConnectionTimeout:  r.Connection.ConnectionTimeout,
		PublishRetries:     r.Publish.RetryAttempts,
		PublishRetryDelay:  r.Publish.RetryInterval,
		PublishBackoffMult: r.Publish.BackoffMultiplier,
	}, b.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	b.closers = append(b.closers, client.Close)
	b.HealthChecks["rabbitmq"] = func(context.Context) error {
		if !client.IsConnected() {
			return errors.New("rabbitmq connection closed")
		}
		return nil
	}

	pollInterval := cfg.Queue.PollInterval
	b.Publisher = rabbitqueue.NewPublisher(client)
	b.OpenQueue = func(instance int) (worker.WorkQueue, func() error, error) {
		q, err := rabbitqueue.Open(client, pollInterval, b.logger.With(slog.Int("instance", instance)))
		if err != nil {
			return nil, nil, err
		}
		return q, q.Close, nil
	}
	return nil
}

func (b *Backends) openRedis(cfg *config.Config) error {
	r := cfg.Redis
	client, err := redis.NewClient(&redis.Config{
		Addrs:        r.Addrs,
		Username:     r.Username,
		Password:     r.Password,
		DB:           r.DB,
		PoolSize:     r.PoolSize,
		DialTimeout:  r.DialTimeout,
		ReadTimeout:  r.ReadTimeout,
		WriteTimeout: r.WriteTimeout,
	}, b.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	b.closers = append(b.closers, client.Close)
	b.HealthChecks["redis"] = client.HealthCheck

	q := redisqueue.New(client.GetClient(), redisqueue.Options{
		Name:          cfg.Queue.Name,
		PollInterval:  cfg.Queue.PollInterval,
		MaxDeliveries: cfg.Queue.MaxDeliveries,
	}, b.logger)

	b.Publisher = q
	b.OpenQueue = func(int) (worker.WorkQueue, func() error, error) {
		return q, nil, nil
	}
	return nil
}

// Close releases the backends in reverse order of opening
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			b.logger.Warn("Failed to close backend", slog.Any("error", err))
		}
	}
	b.closers = nil
}
