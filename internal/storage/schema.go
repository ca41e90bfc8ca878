package storage

import (
	"context"
	"fmt"
)

// schema creates the jobs table. The CHECK constraints mirror the job
// invariants so a buggy writer is rejected by the database too.
const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id         TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	match_id       TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL CHECK (status IN ('PENDING', 'PROCESSING', 'COMPLETED', 'FAILED')),
	input_ref      TEXT NOT NULL,
	output_ref     TEXT,
	metrics_ref    TEXT,
	failure_reason TEXT,
	attempt        INTEGER NOT NULL DEFAULT 0 CHECK (attempt >= 0),
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	CONSTRAINT jobs_completed_refs CHECK (status <> 'COMPLETED' OR (output_ref IS NOT NULL AND metrics_ref IS NOT NULL)),
	CONSTRAINT jobs_failed_reason CHECK (status <> 'FAILED' OR failure_reason IS NOT NULL),
	CONSTRAINT jobs_updated_after_created CHECK (updated_at >= created_at)
);

CREATE INDEX IF NOT EXISTS idx_jobs_user_created ON jobs (user_id, created_at DESC, job_id DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status);
`

// EnsureSchema creates the jobs table and its indexes if they are missing
func (s *JobStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
