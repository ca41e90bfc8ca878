package domain

import "time"

// Cursor is a keyset position in the (createdAt DESC, jobId DESC) ordering
type Cursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListFilter narrows a job listing for the status reader
type ListFilter struct {
	UserID   string
	Status   Status
	PageSize int
	Cursor   *Cursor
}

// Before reports whether j sorts strictly after the cursor position
func (c *Cursor) Before(j *Job) bool {
	if c == nil {
		return true
	}
	if j.CreatedAt.Equal(c.CreatedAt) {
		return j.JobID < c.JobID
	}
	return j.CreatedAt.Before(c.CreatedAt)
}
