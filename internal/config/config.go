package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// EnvPrefix prefixes every environment override, e.g. SCOUTAI_DATABASE_PASSWORD
	EnvPrefix = "SCOUTAI_"

	// MaxWaitTime is the longest receive long-poll a processor may request
	MaxWaitTime = 20 * time.Second
)

// Queue drivers
const (
	QueueDriverRabbitMQ = "rabbitmq"
	QueueDriverRedis    = "redis"
	QueueDriverMemory   = "memory"
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `yaml:"app" envPrefix:"APP_"`
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq" envPrefix:"RABBITMQ_"`
	Redis    RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
	MinIO    MinIOConfig    `yaml:"minio" envPrefix:"MINIO_"`
	Logging  LoggingConfig  `yaml:"logging" envPrefix:"LOGGING_"`
	Tracing  TracingConfig  `yaml:"tracing" envPrefix:"TRACING_"`
	Queue    QueueConfig    `yaml:"queue" envPrefix:"QUEUE_"`
	Worker   WorkerConfig   `yaml:"worker" envPrefix:"WORKER_"`
	Analyzer AnalyzerConfig `yaml:"analyzer" envPrefix:"ANALYZER_"`
	Uploads  UploadsConfig  `yaml:"uploads" envPrefix:"UPLOADS_"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name" env:"NAME"`
	Version     string `yaml:"version" env:"VERSION"`
	Environment string `yaml:"environment" env:"ENVIRONMENT"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Database        string        `yaml:"database" env:"NAME"`
	SSLMode         string        `yaml:"sslmode" env:"SSLMODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`
	AutoMigrate     bool          `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host" env:"HOST"`
	Port       int              `yaml:"port" env:"PORT"`
	User       string           `yaml:"user" env:"USER"`
	Password   string           `yaml:"password" env:"PASSWORD"`
	VHost      string           `yaml:"vhost" env:"VHOST"`
	Exchange   ExchangeConfig   `yaml:"exchange" envPrefix:"EXCHANGE_"`
	Queue      RabbitQueue      `yaml:"queue" envPrefix:"QUEUE_"`
	RoutingKey string           `yaml:"routing_key" env:"ROUTING_KEY"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter" envPrefix:"DEAD_LETTER_"`
	Connection ConnectionConfig `yaml:"connection" envPrefix:"CONNECTION_"`
	Publish    PublishConfig    `yaml:"publish" envPrefix:"PUBLISH_"`
	Consumer   ConsumerConfig   `yaml:"consumer" envPrefix:"CONSUMER_"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name" env:"NAME"`
	Type       string `yaml:"type" env:"TYPE"`
	Durable    bool   `yaml:"durable" env:"DURABLE"`
	AutoDelete bool   `yaml:"auto_delete" env:"AUTO_DELETE"`
}

// RabbitQueue holds RabbitMQ queue declaration settings
type RabbitQueue struct {
	Name          string `yaml:"name" env:"NAME"`
	Type          string `yaml:"type" env:"TYPE"`
	Durable       bool   `yaml:"durable" env:"DURABLE"`
	AutoDelete    bool   `yaml:"auto_delete" env:"AUTO_DELETE"`
	Exclusive     bool   `yaml:"exclusive" env:"EXCLUSIVE"`
	DeliveryLimit int    `yaml:"delivery_limit" env:"DELIVERY_LIMIT"`
}

// DeadLetterConfig names the exchange and queue that receive rejected messages
type DeadLetterConfig struct {
	Exchange string `yaml:"exchange" env:"EXCHANGE"`
	Queue    string `yaml:"queue" env:"QUEUE"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts" env:"RETRY_ATTEMPTS"`
	RetryInterval     time.Duration `yaml:"retry_interval" env:"RETRY_INTERVAL"`
	Heartbeat         time.Duration `yaml:"heartbeat" env:"HEARTBEAT"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout" env:"TIMEOUT"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts" env:"RETRY_ATTEMPTS"`
	RetryInterval     time.Duration `yaml:"retry_interval" env:"RETRY_INTERVAL"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" env:"BACKOFF_MULTIPLIER"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	// Timeout is the broker-side bound on how long a delivery may stay unacknowledged
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addrs        []string      `yaml:"addrs" env:"ADDRS"`
	Username     string        `yaml:"username" env:"USERNAME"`
	Password     string        `yaml:"password" env:"PASSWORD"`
	DB           int           `yaml:"db" env:"DB"`
	PoolSize     int           `yaml:"pool_size" env:"POOL_SIZE"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// MinIOConfig holds S3-compatible object storage configuration
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint" env:"ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"SECRET_KEY"`
	Region    string `yaml:"region" env:"REGION"`
	Bucket    string `yaml:"bucket" env:"BUCKET"`
	UseSSL    bool   `yaml:"use_ssl" env:"USE_SSL"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" env:"LEVEL"`
	Format       string `yaml:"format" env:"FORMAT"`
	Output       string `yaml:"output" env:"OUTPUT"`
	EnableCaller bool   `yaml:"enable_caller" env:"ENABLE_CALLER"`
	TimeFormat   string `yaml:"time_format" env:"TIME_FORMAT"`
}

// TracingConfig holds OpenTelemetry exporter configuration
type TracingConfig struct {
	Exporter    string            `yaml:"exporter" env:"EXPORTER"`
	Endpoint    string            `yaml:"endpoint" env:"ENDPOINT"`
	Insecure    bool              `yaml:"insecure" env:"INSECURE"`
	SampleRatio float64           `yaml:"sample_ratio" env:"SAMPLE_RATIO"`
	Headers     map[string]string `yaml:"headers" env:"HEADERS"`
}

// QueueConfig selects the Work Queue backend
type QueueConfig struct {
	Driver        string        `yaml:"driver" env:"DRIVER"`
	Name          string        `yaml:"name" env:"NAME"`
	PollInterval  time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	MaxDeliveries int           `yaml:"max_deliveries" env:"MAX_DELIVERIES"`
}

// RetryConfig holds the in-lease retry policy for transient errors
type RetryConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval" env:"INITIAL_INTERVAL"`
	MaxInterval     time.Duration `yaml:"max_interval" env:"MAX_INTERVAL"`
	MaxAttempts     int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
}

// BackoffConfig holds the delay policy after failed receives
type BackoffConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval" env:"INITIAL_INTERVAL"`
	MaxInterval     time.Duration `yaml:"max_interval" env:"MAX_INTERVAL"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Instances       int           `yaml:"instances" env:"INSTANCES"`
	WaitTime        time.Duration `yaml:"wait_time" env:"WAIT_TIME"`
	LeaseDuration   time.Duration `yaml:"lease_duration" env:"LEASE_DURATION"`
	LeaseMargin     time.Duration `yaml:"lease_margin" env:"LEASE_MARGIN"`
	JobTimeout      time.Duration `yaml:"job_timeout" env:"JOB_TIMEOUT"`
	ClaimAttempts   int           `yaml:"claim_attempts" env:"CLAIM_ATTEMPTS"`
	AckTimeout      time.Duration `yaml:"ack_timeout" env:"ACK_TIMEOUT"`
	Retry           RetryConfig   `yaml:"retry" envPrefix:"RETRY_"`
	ReceiveBackoff  BackoffConfig `yaml:"receive_backoff" envPrefix:"RECEIVE_BACKOFF_"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// AnalyzerConfig configures the processing step
type AnalyzerConfig struct {
	AllowedExtensions []string      `yaml:"allowed_extensions" env:"ALLOWED_EXTENSIONS"`
	SimulatedDuration time.Duration `yaml:"simulated_duration" env:"SIMULATED_DURATION"`
}

// UploadsConfig configures presigned upload URLs
type UploadsConfig struct {
	PresignExpiry     time.Duration `yaml:"presign_expiry" env:"PRESIGN_EXPIRY"`
	AllowedExtensions []string      `yaml:"allowed_extensions" env:"ALLOWED_EXTENSIONS"`
}

// Load reads and parses the configuration file, then applies environment
// overrides
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.ParseWithOptions(&config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return &config, nil
}

// Validate checks the settings both services share
func (c *Config) Validate() error {
	if !slices.Contains([]string{QueueDriverRabbitMQ, QueueDriverRedis, QueueDriverMemory}, c.Queue.Driver) {
		return fmt.Errorf("invalid queue driver: %q (must be one of rabbitmq, redis, memory)", c.Queue.Driver)
	}

	if c.Queue.Driver == QueueDriverMemory {
		return nil
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.MinIO.Endpoint == "" {
		return fmt.Errorf("minio endpoint is required")
	}

	if c.MinIO.Bucket == "" {
		return fmt.Errorf("minio bucket is required")
	}

	switch c.Queue.Driver {
	case QueueDriverRabbitMQ:
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}

		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}

		if c.RabbitMQ.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}

		if c.RabbitMQ.Queue.Name == "" {
			return fmt.Errorf("rabbitmq queue name is required")
		}
	case QueueDriverRedis:
		if len(c.Redis.Addrs) == 0 {
			return fmt.Errorf("redis addrs are required")
		}

		if c.Queue.Name == "" {
			return fmt.Errorf("queue name is required")
		}
	}

	return nil
}

// ValidateAPIConfig checks the settings the api service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Uploads.PresignExpiry <= 0 {
		return fmt.Errorf("uploads presign_expiry must be greater than 0")
	}

	if err := c.Validate(); err != nil {
		return err
	}

	// the memory driver runs the processors inside the api service
	if c.Queue.Driver == QueueDriverMemory {
		return c.validateWorker()
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if c.Queue.Driver == QueueDriverMemory {
		return fmt.Errorf("queue driver memory is only supported by the api service")
	}

	if err := c.Validate(); err != nil {
		return err
	}

	return c.validateWorker()
}

func (c *Config) validateWorker() error {
	w := c.Worker

	if w.Instances <= 0 {
		return fmt.Errorf("worker instances must be greater than 0")
	}

	if w.WaitTime < 0 || w.WaitTime > MaxWaitTime {
		return fmt.Errorf("worker wait_time must be between 0 and %s", MaxWaitTime)
	}

	if w.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if w.LeaseMargin < 0 {
		return fmt.Errorf("worker lease_margin must not be negative")
	}

	if w.LeaseDuration < w.JobTimeout+w.LeaseMargin {
		return fmt.Errorf("worker lease_duration (%s) must cover job_timeout (%s) plus lease_margin (%s)",
			w.LeaseDuration, w.JobTimeout, w.LeaseMargin)
	}

	if w.ClaimAttempts <= 0 {
		return fmt.Errorf("worker claim_attempts must be greater than 0")
	}

	if w.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Queue.Driver == QueueDriverRabbitMQ && c.RabbitMQ.Consumer.Timeout > 0 && c.RabbitMQ.Consumer.Timeout < w.LeaseDuration {
		return fmt.Errorf("rabbitmq consumer timeout (%s) must not be shorter than worker lease_duration (%s)",
			c.RabbitMQ.Consumer.Timeout, w.LeaseDuration)
	}

	return nil
}
