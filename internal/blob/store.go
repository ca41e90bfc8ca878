// Package blob is the Blob Store adapter over S3-compatible object storage.
// Writes go to caller-chosen keys and overwrite, so a retried write at a
// deterministic key never produces a second object.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/itaysmouha/ScoutAI/internal/domain"
)

// ErrNotFound is returned when an object does not exist
var ErrNotFound = errors.New("blob not found")

// ObjectInfo describes a stored object
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// Store implements the Blob Store capability on a single bucket
type Store struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewStore creates a new Store
func NewStore(client *minio.Client, bucket string, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		logger: logger,
	}
}

// Put writes data at key, replacing any existing object
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return classifyError("blob put", err)
	}

	s.logger.Debug("Object written",
		slog.String("key", key),
		slog.Int64("size", info.Size),
		slog.String("etag", info.ETag),
	)
	return nil
}

// Stat returns metadata for key, or ErrNotFound
func (s *Store) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, classifyError("blob stat", err)
	}

	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ContentType:  info.ContentType,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

// PresignPut returns a pre-authorized URL that lets a client upload key
func (s *Store) PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, expiry)
	if err != nil {
		return "", fmt.Errorf("failed to presign upload: %w", err)
	}
	return u.String(), nil
}

// classifyError maps missing objects to ErrNotFound and everything else
// (network, throttling, 5xx) to a transient error
func classifyError(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey", resp.Code == "NotFound", resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case resp.StatusCode == http.StatusForbidden, resp.Code == "AccessDenied", resp.Code == "NoSuchBucket":
		return fmt.Errorf("%s: %w", op, err)
	default:
		return domain.NewTransientError(op, err)
	}
}
