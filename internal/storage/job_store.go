// Package storage is the PostgreSQL Job Store
package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/itaysmouha/ScoutAI/internal/domain"
)

const jobColumns = `job_id, user_id, match_id, status, input_ref, output_ref,
	metrics_ref, failure_reason, attempt, created_at, updated_at`

type jobRow struct {
	JobID         string         `db:"job_id"`
	UserID        string         `db:"user_id"`
	MatchID       string         `db:"match_id"`
	Status        string         `db:"status"`
	InputRef      string         `db:"input_ref"`
	OutputRef     sql.NullString `db:"output_ref"`
	MetricsRef    sql.NullString `db:"metrics_ref"`
	FailureReason sql.NullString `db:"failure_reason"`
	Attempt       int            `db:"attempt"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r jobRow) toDomain() *domain.Job {
	return &domain.Job{
		JobID:         r.JobID,
		UserID:        r.UserID,
		MatchID:       r.MatchID,
		Status:        domain.Status(r.Status),
		InputRef:      r.InputRef,
		OutputRef:     r.OutputRef.String,
		MetricsRef:    r.MetricsRef.String,
		FailureReason: r.FailureReason.String,
		Attempt:       r.Attempt,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

// JobStore implements the Job Store on PostgreSQL
type JobStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewJobStore creates a new JobStore
func NewJobStore(db *sqlx.DB, logger *slog.Logger) *JobStore {
	return &JobStore{
		db:     db,
		logger: logger,
	}
}

// Put inserts a new job. A taken job id is reported as ErrJobExists.
func (s *JobStore) Put(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, NULL, NULL, NULL, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.JobID,
		job.UserID,
		job.MatchID,
		string(job.Status),
		job.InputRef,
		job.Attempt,
		job.CreatedAt.UTC(),
		job.UpdatedAt.UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation {
			return domain.ErrJobExists
		}
		return classifyError("job put", err)
	}

	return nil
}

// Get returns the job with the given id, or ErrJobNotFound
func (s *JobStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, classifyError("job get", err)
	}

	return row.toDomain(), nil
}

// Update applies a partial update in a single conditional statement. When no
// row matches, the record is re-read to tell a missing job from a failed
// guard.
func (s *JobStore) Update(ctx context.Context, jobID string, u domain.Update) (*domain.Job, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	query, args := buildUpdate(jobID, u)

	var row jobRow
	err := s.db.GetContext(ctx, &row, query, args...)
	if err == nil {
		s.logger.Debug("Job updated",
			slog.String("job_id", jobID),
			slog.String("status", row.Status),
			slog.Int("attempt", row.Attempt),
		)
		return row.toDomain(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, classifyError("job update", err)
	}

	current, getErr := s.Get(ctx, jobID)
	if getErr != nil {
		return nil, getErr
	}

	s.logger.Warn("Job update guard did not match",
		slog.String("job_id", jobID),
		slog.String("status", string(current.Status)),
		slog.String("target", string(u.Status)),
	)
	return nil, fmt.Errorf("%w: job %s is %s", domain.ErrConflict, jobID, current.Status)
}

func buildUpdate(jobID string, u domain.Update) (string, []interface{}) {
	args := []interface{}{string(u.Status), u.UpdatedAt.UTC()}
	sets := []string{"status = $1", "updated_at = GREATEST(updated_at, $2)"}
	argIdx := 3

	if u.IncrementAttempt {
		sets = append(sets, "attempt = attempt + 1")
	}

	switch u.Status {
	case domain.StatusCompleted:
		sets = append(sets,
			fmt.Sprintf("output_ref = $%d", argIdx),
			fmt.Sprintf("metrics_ref = $%d", argIdx+1),
		)
		args = append(args, u.OutputRef, u.MetricsRef)
		argIdx += 2
	case domain.StatusFailed:
		sets = append(sets, fmt.Sprintf("failure_reason = $%d", argIdx))
		args = append(args, u.FailureReason)
		argIdx++
	}

	where := fmt.Sprintf("job_id = $%d AND status = ANY($%d)", argIdx, argIdx+1)
	args = append(args, jobID, pq.Array(u.ExpectedStatusStrings()))
	argIdx += 2

	if u.ExpectedUpdatedAt != nil {
		where += fmt.Sprintf(" AND updated_at = $%d", argIdx)
		args = append(args, u.ExpectedUpdatedAt.UTC())
	}

	query := "UPDATE jobs SET " + strings.Join(sets, ", ") +
		" WHERE " + where +
		" RETURNING " + jobColumns
	return query, args
}

// List returns jobs newest first. One row beyond PageSize is fetched so
// callers can tell whether another page exists.
func (s *JobStore) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt.UTC(), filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"

	if filter.PageSize > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.PageSize+1)
	}

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classifyError("job list", err)
	}

	jobs := make([]*domain.Job, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, r.toDomain())
	}
	return jobs, nil
}

// classifyError wraps errors that a retry could cure as transient. Constraint
// and syntax errors are returned as they are.
func classifyError(op string, err error) error {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewTransientError(op, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		if pgerrcode.IsConnectionException(code) ||
			pgerrcode.IsInsufficientResources(code) ||
			pgerrcode.IsTransactionRollback(code) ||
			pgerrcode.IsOperatorIntervention(code) {
			return domain.NewTransientError(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.NewTransientError(op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
