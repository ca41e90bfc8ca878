package objectstorage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds S3-compatible object storage configuration
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	UseSSL    bool
}

// Client represents an object storage client bound to one bucket
type Client struct {
	client *minio.Client
	config *Config
	logger *slog.Logger
}

// NewClient creates a new object storage client and makes sure the bucket exists
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	logger.Info("Connecting to object storage",
		slog.String("endpoint", config.Endpoint),
		slog.String("bucket", config.Bucket),
		slog.Bool("use_ssl", config.UseSSL),
	)

	mc, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	client := &Client{
		client: mc,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.ensureBucket(ctx); err != nil {
		return nil, err
	}

	logger.Info("Successfully connected to object storage",
		slog.String("bucket", config.Bucket),
	)

	return client, nil
}

// ensureBucket creates the configured bucket when it is missing
func (c *Client) ensureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.config.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %q: %w", c.config.Bucket, err)
	}
	if exists {
		return nil
	}

	c.logger.Info("Creating bucket", slog.String("bucket", c.config.Bucket))
	if err := c.client.MakeBucket(ctx, c.config.Bucket, minio.MakeBucketOptions{Region: c.config.Region}); err != nil {
		return fmt.Errorf("failed to create bucket %q: %w", c.config.Bucket, err)
	}
	return nil
}

// GetClient returns the underlying minio client
func (c *Client) GetClient() *minio.Client {
	return c.client
}

// Bucket returns the configured bucket name
func (c *Client) Bucket() string {
	return c.config.Bucket
}
