package domain

import (
	"strings"
	"time"
)

// TimestampLayout is the external form of job timestamps: UTC, fixed width,
// so that lexical order equals chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// DefaultUserID is used when a submitter does not name an owner
const DefaultUserID = "user-42"

// Job is the unit of work tracked by the Job Store
type Job struct {
	JobID         string
	UserID        string
	MatchID       string
	Status        Status
	InputRef      string
	OutputRef     string
	MetricsRef    string
	FailureReason string
	Attempt       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewJob builds the initial PENDING record for a submission
func NewJob(jobID, inputRef, userID, matchID string, now time.Time) *Job {
	if strings.TrimSpace(userID) == "" {
		userID = DefaultUserID
	}
	now = now.UTC()
	return &Job{
		JobID:     jobID,
		UserID:    userID,
		MatchID:   matchID,
		Status:    StatusPending,
		InputRef:  inputRef,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy of the job
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	return &c
}

// FormatTimestamp renders t in TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// OutputKey is the deterministic blob key for a job's output artifact
func OutputKey(jobID string) string {
	return "outputs/" + jobID
}

// MetricsKey is the deterministic blob key for a job's metrics artifact
func MetricsKey(jobID string) string {
	return "metrics/" + jobID
}
