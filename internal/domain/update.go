package domain

import (
	"fmt"
	"slices"
	"time"
)

// Update is a typed partial update of a job record. Only the enumerated
// fields can change; everything else on the record is left untouched.
//
// ExpectedStatus is mandatory: the update applies only while the stored
// status is one of these values. ExpectedUpdatedAt optionally pins the
// exact revision the caller observed.
type Update struct {
	Status           Status
	IncrementAttempt bool
	OutputRef        string
	MetricsRef       string
	FailureReason    string
	UpdatedAt        time.Time

	ExpectedStatus    []Status
	ExpectedUpdatedAt *time.Time
}

// ClaimUpdate moves an observed PENDING or PROCESSING job to PROCESSING and
// counts a new attempt. It is guarded on the observed status and updatedAt
// so that a concurrent re-claim by another instance surfaces as a conflict.
func ClaimUpdate(observed *Job, now time.Time) Update {
	observedAt := observed.UpdatedAt
	return Update{
		Status:            StatusProcessing,
		IncrementAttempt:  true,
		UpdatedAt:         now.UTC(),
		ExpectedStatus:    []Status{observed.Status},
		ExpectedUpdatedAt: &observedAt,
	}
}

// CompleteUpdate finalizes a PROCESSING job with its artifact references
func CompleteUpdate(outputRef, metricsRef string, now time.Time) Update {
	return Update{
		Status:         StatusCompleted,
		OutputRef:      outputRef,
		MetricsRef:     metricsRef,
		UpdatedAt:      now.UTC(),
		ExpectedStatus: []Status{StatusProcessing},
	}
}

// FailUpdate finalizes a PROCESSING job as FAILED
func FailUpdate(reason string, now time.Time) Update {
	return Update{
		Status:         StatusFailed,
		FailureReason:  reason,
		UpdatedAt:      now.UTC(),
		ExpectedStatus: []Status{StatusProcessing},
	}
}

// Validate checks the update against the transition table and the field
// invariants of its target status
func (u Update) Validate() error {
	if !u.Status.Valid() {
		return fmt.Errorf("%w: unknown target status %q", ErrInvalidUpdate, u.Status)
	}
	if len(u.ExpectedStatus) == 0 {
		return fmt.Errorf("%w: expected status guard is required", ErrInvalidUpdate)
	}
	if u.UpdatedAt.IsZero() {
		return fmt.Errorf("%w: updatedAt is required", ErrInvalidUpdate)
	}

	for _, from := range u.ExpectedStatus {
		if from.IsTerminal() {
			return fmt.Errorf("%w: %s is terminal", ErrIllegalTransition, from)
		}
		if !CanTransition(from, u.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, u.Status)
		}
	}

	if u.IncrementAttempt && u.Status != StatusProcessing {
		return fmt.Errorf("%w: attempt only advances when processing begins", ErrInvalidUpdate)
	}

	hasRefs := u.OutputRef != "" || u.MetricsRef != ""
	switch u.Status {
	case StatusCompleted:
		if u.OutputRef == "" || u.MetricsRef == "" {
			return fmt.Errorf("%w: COMPLETED requires outputRef and metricsRef", ErrInvalidUpdate)
		}
	default:
		if hasRefs {
			return fmt.Errorf("%w: artifact refs are only set on COMPLETED", ErrInvalidUpdate)
		}
	}

	switch u.Status {
	case StatusFailed:
		if u.FailureReason == "" {
			return fmt.Errorf("%w: FAILED requires a failure reason", ErrInvalidUpdate)
		}
	default:
		if u.FailureReason != "" {
			return fmt.Errorf("%w: failure reason is only set on FAILED", ErrInvalidUpdate)
		}
	}

	return nil
}

// Matches reports whether the guards hold for the stored record
func (u Update) Matches(current *Job) bool {
	if !slices.Contains(u.ExpectedStatus, current.Status) {
		return false
	}
	if u.ExpectedUpdatedAt != nil && !u.ExpectedUpdatedAt.Equal(current.UpdatedAt) {
		return false
	}
	return true
}

// Apply writes the update's fields onto j. updatedAt never moves backwards.
func (u Update) Apply(j *Job) {
	j.Status = u.Status
	if u.IncrementAttempt {
		j.Attempt++
	}
	if u.Status == StatusCompleted {
		j.OutputRef = u.OutputRef
		j.MetricsRef = u.MetricsRef
	}
	if u.Status == StatusFailed {
		j.FailureReason = u.FailureReason
	}
	if u.UpdatedAt.After(j.UpdatedAt) {
		j.UpdatedAt = u.UpdatedAt.UTC()
	}
}

// ExpectedStatusStrings returns the guard as plain strings for drivers
func (u Update) ExpectedStatusStrings() []string {
	out := make([]string, len(u.ExpectedStatus))
	for i, s := range u.ExpectedStatus {
		out[i] = string(s)
	}
	return out
}
