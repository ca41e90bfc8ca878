package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "scoutai", cfg.Database.Database)
				assert.Equal(t, "jobs_exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "jobs_queue", cfg.RabbitMQ.Queue.Name)
				assert.Equal(t, "quorum", cfg.RabbitMQ.Queue.Type)
				assert.Equal(t, "jobs_dlx", cfg.RabbitMQ.DeadLetter.Exchange)
				assert.Equal(t, 10*time.Minute, cfg.RabbitMQ.Consumer.Timeout)
				assert.Equal(t, []string{"localhost:6379"}, cfg.Redis.Addrs)
				assert.Equal(t, "scoutai", cfg.MinIO.Bucket)
				assert.Equal(t, "scoutai-api-service", cfg.App.Name)
				assert.Equal(t, QueueDriverRabbitMQ, cfg.Queue.Driver)
				assert.Equal(t, 5*time.Minute, cfg.Worker.LeaseDuration)
				assert.Equal(t, 200*time.Millisecond, cfg.Worker.Retry.InitialInterval)
				assert.Equal(t, 30*time.Second, cfg.Worker.ReceiveBackoff.MaxInterval)
				assert.Equal(t, []string{".mp4", ".mov", ".mkv"}, cfg.Analyzer.AllowedExtensions)
				assert.Equal(t, 15*time.Minute, cfg.Uploads.PresignExpiry)
			}
		})
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SCOUTAI_DATABASE_PASSWORD", "from-env")
	t.Setenv("SCOUTAI_QUEUE_DRIVER", "redis")
	t.Setenv("SCOUTAI_REDIS_ADDRS", "redis-a:6379,redis-b:6379")
	t.Setenv("SCOUTAI_WORKER_LEASE_DURATION", "10m")
	t.Setenv("SCOUTAI_WORKER_RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("SCOUTAI_RABBITMQ_EXCHANGE_NAME", "other_exchange")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, QueueDriverRedis, cfg.Queue.Driver)
	assert.Equal(t, []string{"redis-a:6379", "redis-b:6379"}, cfg.Redis.Addrs)
	assert.Equal(t, 10*time.Minute, cfg.Worker.LeaseDuration)
	assert.Equal(t, 7, cfg.Worker.Retry.MaxAttempts)
	assert.Equal(t, "other_exchange", cfg.RabbitMQ.Exchange.Name)

	// untouched values keep the file's setting
	assert.Equal(t, "scoutai", cfg.Database.User)
	assert.Equal(t, 4*time.Minute, cfg.Worker.JobTimeout)
}

func TestLoad_InvalidEnvironmentOverride(t *testing.T) {
	t.Setenv("SCOUTAI_WORKER_JOB_TIMEOUT", "soon")

	cfg, err := Load("testdata/valid_config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply environment overrides")
	assert.Nil(t, cfg)
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "scoutai",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			Exchange: ExchangeConfig{
				Name: "jobs_exchange",
			},
			Queue: RabbitQueue{
				Name: "jobs_queue",
			},
		},
		Redis: RedisConfig{Addrs: []string{"localhost:6379"}},
		MinIO: MinIOConfig{Endpoint: "localhost:9000", Bucket: "scoutai"},
		Queue: QueueConfig{Driver: QueueDriverRabbitMQ, Name: "jobs"},
		Worker: WorkerConfig{
			Instances:       2,
			WaitTime:        20 * time.Second,
			LeaseDuration:   5 * time.Minute,
			LeaseMargin:     30 * time.Second,
			JobTimeout:      4 * time.Minute,
			ClaimAttempts:   3,
			ShutdownTimeout: 30 * time.Second,
		},
		Uploads: UploadsConfig{PresignExpiry: 15 * time.Minute},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "unknown queue driver",
			mutate:    func(c *Config) { c.Queue.Driver = "sqs" },
			wantErr:   true,
			errString: "invalid queue driver",
		},
		{
			name: "memory driver needs no backends",
			mutate: func(c *Config) {
				c.Queue.Driver = QueueDriverMemory
				c.Database = DatabaseConfig{}
				c.MinIO = MinIOConfig{}
			},
			wantErr: false,
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "invalid database port",
			mutate:    func(c *Config) { c.Database.Port = 0 },
			wantErr:   true,
			errString: "invalid database port",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "empty minio bucket",
			mutate:    func(c *Config) { c.MinIO.Bucket = "" },
			wantErr:   true,
			errString: "minio bucket is required",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "empty queue name",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			wantErr:   true,
			errString: "rabbitmq queue name is required",
		},
		{
			name: "redis driver ignores rabbitmq settings",
			mutate: func(c *Config) {
				c.Queue.Driver = QueueDriverRedis
				c.RabbitMQ = RabbitMQConfig{}
			},
			wantErr: false,
		},
		{
			name: "redis driver without addrs",
			mutate: func(c *Config) {
				c.Queue.Driver = QueueDriverRedis
				c.Redis.Addrs = nil
			},
			wantErr:   true,
			errString: "redis addrs are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "missing presign expiry",
			mutate:    func(c *Config) { c.Uploads.PresignExpiry = 0 },
			wantErr:   true,
			errString: "presign_expiry",
		},
		{
			name: "memory driver checks embedded worker settings",
			mutate: func(c *Config) {
				c.Queue.Driver = QueueDriverMemory
				c.Worker.Instances = 0
			},
			wantErr:   true,
			errString: "worker instances",
		},
		{
			name: "rabbitmq driver skips worker settings",
			mutate: func(c *Config) {
				c.Worker = WorkerConfig{}
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "memory driver rejected",
			mutate:    func(c *Config) { c.Queue.Driver = QueueDriverMemory },
			wantErr:   true,
			errString: "only supported by the api service",
		},
		{
			name:      "no instances",
			mutate:    func(c *Config) { c.Worker.Instances = 0 },
			wantErr:   true,
			errString: "worker instances must be greater than 0",
		},
		{
			name:      "wait time too long",
			mutate:    func(c *Config) { c.Worker.WaitTime = 30 * time.Second },
			wantErr:   true,
			errString: "wait_time",
		},
		{
			name:      "missing job timeout",
			mutate:    func(c *Config) { c.Worker.JobTimeout = 0 },
			wantErr:   true,
			errString: "job_timeout must be greater than 0",
		},
		{
			name:      "lease shorter than job timeout plus margin",
			mutate:    func(c *Config) { c.Worker.LeaseDuration = 4 * time.Minute },
			wantErr:   true,
			errString: "must cover job_timeout",
		},
		{
			name:    "lease exactly job timeout plus margin",
			mutate:  func(c *Config) { c.Worker.LeaseDuration = 4*time.Minute + 30*time.Second },
			wantErr: false,
		},
		{
			name:      "no claim attempts",
			mutate:    func(c *Config) { c.Worker.ClaimAttempts = 0 },
			wantErr:   true,
			errString: "claim_attempts",
		},
		{
			name:      "missing shutdown timeout",
			mutate:    func(c *Config) { c.Worker.ShutdownTimeout = 0 },
			wantErr:   true,
			errString: "shutdown_timeout",
		},
		{
			name:      "consumer timeout shorter than lease",
			mutate:    func(c *Config) { c.RabbitMQ.Consumer.Timeout = time.Minute },
			wantErr:   true,
			errString: "consumer timeout",
		},
		{
			name:      "shared settings still checked",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database host is required")
	})
}

func TestPortConstants(t *testing.T) {
	t.Run("port constants are correct", func(t *testing.T) {
		assert.Equal(t, 1, MinPort)
		assert.Equal(t, 65535, MaxPort)
	})

	t.Run("valid port range", func(t *testing.T) {
		validPorts := []int{1, 80, 443, 8080, 65535}
		for _, port := range validPorts {
			assert.GreaterOrEqual(t, port, MinPort)
			assert.LessOrEqual(t, port, MaxPort)
		}
	})
}
