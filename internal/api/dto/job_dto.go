package dto

import "github.com/itaysmouha/ScoutAI/internal/domain"

type CreateJobRequest struct {
	InputRef string `json:"inputRef" binding:"required"`
	UserID   string `json:"userId"`
	MatchID  string `json:"matchId"`
}

type ListJobsRequest struct {
	UserID   string `form:"userId"`
	Status   string `form:"status"`
	PageSize int    `form:"pageSize"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

type PresignRequest struct {
	ContentType string `json:"contentType"`
	Extension   string `json:"extension"`
}

type PresignResponse struct {
	Key       string `json:"key"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// JobDTO is the external shape of a job record. Timestamps are UTC and
// sort lexically.
type JobDTO struct {
	JobID         string `json:"jobId"`
	UserID        string `json:"userId"`
	MatchID       string `json:"matchId,omitempty"`
	Status        string `json:"status"`
	InputRef      string `json:"inputRef"`
	OutputRef     string `json:"outputRef,omitempty"`
	MetricsRef    string `json:"metricsRef,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
	Attempt       int    `json:"attempt"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

// FromJob converts a domain job into its external shape
func FromJob(job *domain.Job) JobDTO {
	return JobDTO{
		JobID:         job.JobID,
		UserID:        job.UserID,
		MatchID:       job.MatchID,
		Status:        string(job.Status),
		InputRef:      job.InputRef,
		OutputRef:     job.OutputRef,
		MetricsRef:    job.MetricsRef,
		FailureReason: job.FailureReason,
		Attempt:       job.Attempt,
		CreatedAt:     domain.FormatTimestamp(job.CreatedAt),
		UpdatedAt:     domain.FormatTimestamp(job.UpdatedAt),
	}
}
