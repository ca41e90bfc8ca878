package rabbitmq

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestConfig_QueueArgs(t *testing.T) {
	t.Run("classic queue without dead-lettering", func(t *testing.T) {
		cfg := &Config{QueueName: "jobs"}
		assert.Empty(t, cfg.QueueArgs())
	})

	t.Run("quorum queue with delivery limit", func(t *testing.T) {
		cfg := &Config{
			QueueName:          "jobs",
			QueueType:          amqp.QueueTypeQuorum,
			DeadLetterExchange: "jobs.dlx",
			DeadLetterQueue:    "jobs.dlq",
			DeliveryLimit:      5,
			ConsumerTimeout:    2 * time.Minute,
		}

		args := cfg.QueueArgs()
		assert.Equal(t, amqp.QueueTypeQuorum, args[amqp.QueueTypeArg])
		assert.Equal(t, "jobs.dlx", args["x-dead-letter-exchange"])
		assert.Equal(t, "jobs.dlq", args["x-dead-letter-routing-key"])
		assert.Equal(t, 5, args["x-delivery-limit"])
		assert.Equal(t, int64(120000), args[amqp.ConsumerTimeoutArg])
	})

	t.Run("delivery limit ignored on classic queues", func(t *testing.T) {
		cfg := &Config{QueueType: amqp.QueueTypeClassic, DeliveryLimit: 5}
		_, ok := cfg.QueueArgs()["x-delivery-limit"]
		assert.False(t, ok)
	})
}

func TestConfig_URI(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		vhost string
	}{
		{name: "default vhost", cfg: Config{Host: "rabbit", Port: 5672, User: "scout", Password: "p@ss/word"}, vhost: "/"},
		{name: "named vhost", cfg: Config{Host: "rabbit", Port: 5673, User: "scout", Password: "secret", VHost: "scoutai"}, vhost: "scoutai"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uri, err := amqp.ParseURI(tt.cfg.URI())
			assert.NoError(t, err)
			assert.Equal(t, tt.cfg.Host, uri.Host)
			assert.Equal(t, tt.cfg.Port, uri.Port)
			assert.Equal(t, tt.cfg.User, uri.Username)
			assert.Equal(t, tt.cfg.Password, uri.Password)
			assert.Equal(t, tt.vhost, uri.Vhost)
		})
	}
}

func TestConfig_PublishDelay(t *testing.T) {
	cfg := &Config{PublishRetryDelay: 100 * time.Millisecond, PublishBackoffMult: 3}
	assert.Equal(t, 100*time.Millisecond, cfg.publishDelay(1))
	assert.Equal(t, 300*time.Millisecond, cfg.publishDelay(2))
	assert.Equal(t, 900*time.Millisecond, cfg.publishDelay(3))

	defaults := &Config{}
	assert.Equal(t, 100*time.Millisecond, defaults.publishDelay(1))
	assert.Equal(t, 200*time.Millisecond, defaults.publishDelay(2))
}
