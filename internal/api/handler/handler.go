package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/itaysmouha/ScoutAI/internal/domain"
)

// JobStore is the part of the Job Store the API uses
type JobStore interface {
	Put(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	List(ctx context.Context, filter domain.ListFilter) ([]*domain.Job, error)
}

// JobPublisher enqueues one envelope per submitted job
type JobPublisher interface {
	Publish(ctx context.Context, env domain.Envelope) error
}

// UploadSigner issues pre-authorized upload URLs
type UploadSigner interface {
	PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// HealthCheck reports whether one backend is reachable
type HealthCheck func(ctx context.Context) error

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger            *slog.Logger
	ServiceName       string
	Store             JobStore
	Publisher         JobPublisher
	Uploads           UploadSigner
	PresignExpiry     time.Duration
	AllowedExtensions []string
	HealthChecks      map[string]HealthCheck
	Now               func() time.Time
}

func (d *Dependencies) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	store     JobStore
	publisher JobPublisher
	now       func() time.Time
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		store:     deps.Store,
		publisher: deps.Publisher,
		now:       deps.now,
	}
}
