package handler

import (
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/itaysmouha/ScoutAI/internal/api/dto"
	"github.com/itaysmouha/ScoutAI/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func newJobID() string {
	id := uuid.New()
	return "job-" + hex.EncodeToString(id[:8])
}

// CreateJob handles POST /api/v1/jobs
// Records a PENDING job and enqueues it for the workers
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "inputRef is required"})
		return
	}

	inputRef := strings.TrimSpace(req.InputRef)
	if inputRef == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "inputRef is required"})
		return
	}

	ctx := c.Request.Context()
	job := domain.NewJob(newJobID(), inputRef, req.UserID, strings.TrimSpace(req.MatchID), h.now())

	logger := h.logger.With(
		slog.String("job_id", job.JobID),
		slog.String("input_ref", job.InputRef),
	)

	if err := h.store.Put(ctx, job); err != nil {
		logger.Error("Failed to create job", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create job"})
		return
	}

	// the record is PENDING before any worker can see the message
	if err := h.publisher.Publish(ctx, domain.Envelope{JobID: job.JobID, InputRef: job.InputRef}); err != nil {
		logger.Error("Failed to enqueue job", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to enqueue job"})
		return
	}

	logger.Info("Job submitted", slog.String("user_id", job.UserID))
	c.JSON(http.StatusCreated, dto.FromJob(job))
}

// GetJob handles GET /api/v1/jobs/:job_id
// Retrieves detailed information about a specific job
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("job_id"))
	if jobID == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "job_id is required"})
		return
	}

	job, err := h.store.Get(c.Request.Context(), jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Job not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get job", slog.String("job_id", jobID), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get job"})
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with optional filtering and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}

	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	var status domain.Status
	if req.Status != "" {
		parsed, err := domain.ParseStatus(strings.ToUpper(req.Status))
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid status"})
			return
		}
		status = parsed
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid cursor"})
		return
	}

	jobs, err := h.store.List(c.Request.Context(), domain.ListFilter{
		UserID:   req.UserID,
		Status:   status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list jobs"})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i, job := range jobs {
		jobResponse[i] = dto.FromJob(job)
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&domain.Cursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}
