package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job record does not exist
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists is returned when creating a job whose id is already taken
	ErrJobExists = errors.New("job already exists")

	// ErrConflict is returned when an update guard (expected status or
	// expected updatedAt) does not match the stored record
	ErrConflict = errors.New("job update conflict")

	// ErrIllegalTransition is returned when an update would move a job along
	// an edge the state machine does not define
	ErrIllegalTransition = errors.New("illegal job status transition")

	// ErrInvalidUpdate is returned when an update carries fields that are
	// not allowed for its target status
	ErrInvalidUpdate = errors.New("invalid job update")

	// ErrMalformedEnvelope is returned when a queue message body cannot be
	// decoded into an Envelope
	ErrMalformedEnvelope = errors.New("malformed job envelope")
)

// TransientError wraps infrastructure errors (store, queue or blob store
// unavailable) that are worth retrying
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	if e.Op == "" {
		return "transient error: " + e.Err.Error()
	}
	return "transient error: " + e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError creates a new transient error for the given operation
func NewTransientError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err (or anything it wraps) is a TransientError
func IsTransient(err error) bool {
	var transientErr *TransientError
	return errors.As(err, &transientErr)
}

// DomainError is a non-retryable rejection raised by the processing step.
// Reason is what ends up in the job's failureReason.
type DomainError struct {
	Reason string
	Err    error
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return "domain failure: " + e.Reason
	}
	return "domain failure: " + e.Reason + ": " + e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain failure
func NewDomainError(reason string, err error) error {
	return &DomainError{Reason: reason, Err: err}
}

// AsDomainFailure returns the DomainError carried by err, if any
func AsDomainFailure(err error) (*DomainError, bool) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}
