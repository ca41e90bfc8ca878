// Package memory provides in-process Job Store, Work Queue and Blob Store
// implementations. They are safe for concurrent use and back the worker
// tests and the "memory" driver for local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/itaysmouha/ScoutAI/internal/domain"
)

// JobStore is an in-memory Job Store. It records every status a job passes
// through so tests can check the edges that were taken.
type JobStore struct {
	mu      sync.RWMutex
	jobs    map[string]*domain.Job
	history map[string][]domain.Status
}

// NewJobStore returns an empty JobStore
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:    make(map[string]*domain.Job),
		history: make(map[string][]domain.Status),
	}
}

// Put creates a job, failing with ErrJobExists when the id is taken
func (s *JobStore) Put(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.JobID]; ok {
		return domain.ErrJobExists
	}
	s.jobs[job.JobID] = job.Clone()
	s.history[job.JobID] = []domain.Status{job.Status}
	return nil
}

// Get returns a copy of the job, or ErrJobNotFound
func (s *JobStore) Get(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job.Clone(), nil
}

// Update applies a validated partial update when its guards hold
func (s *JobStore) Update(_ context.Context, jobID string, u domain.Update) (*domain.Job, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if !u.Matches(job) {
		return nil, fmt.Errorf("%w: job %s is %s", domain.ErrConflict, jobID, job.Status)
	}

	u.Apply(job)
	s.history[jobID] = append(s.history[jobID], job.Status)
	return job.Clone(), nil
}

// List returns jobs newest first, one more than PageSize when more exist
func (s *JobStore) List(_ context.Context, filter domain.ListFilter) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Job
	for _, job := range s.jobs {
		if filter.UserID != "" && job.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if !filter.Cursor.Before(job) {
			continue
		}
		out = append(out, job.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].JobID > out[j].JobID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.PageSize > 0 && len(out) > filter.PageSize+1 {
		out = out[:filter.PageSize+1]
	}
	return out, nil
}

// History returns the statuses a job has been in, in order
func (s *JobStore) History(jobID string) []domain.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.Status(nil), s.history[jobID]...)
}
