package worker

import "time"

// RetryOptions bounds the in-lease retry of transient errors
type RetryOptions struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int
}

// BackoffOptions bounds the delay between failed receives
type BackoffOptions struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Options tunes a Processor
type Options struct {
	// WaitTime is the long-poll duration of one receive
	WaitTime time.Duration
	// LeaseDuration is requested for every received message
	LeaseDuration time.Duration
	// LeaseMargin is kept free at the end of the lease for finalize and ack
	LeaseMargin time.Duration
	// JobTimeout bounds one analyzer run
	JobTimeout time.Duration
	// ClaimAttempts bounds re-evaluation after a claim conflict
	ClaimAttempts int
	// AckTimeout bounds delete and release calls
	AckTimeout time.Duration

	Retry          RetryOptions
	ReceiveBackoff BackoffOptions
}

// DefaultOptions returns the settings used when a field is left zero
func DefaultOptions() Options {
	return Options{
		WaitTime:      20 * time.Second,
		LeaseDuration: 5 * time.Minute,
		LeaseMargin:   30 * time.Second,
		JobTimeout:    4 * time.Minute,
		ClaimAttempts: 3,
		AckTimeout:    10 * time.Second,
		Retry: RetryOptions{
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			MaxAttempts:     3,
		},
		ReceiveBackoff: BackoffOptions{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
		},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.WaitTime < 0 {
		o.WaitTime = 0
	}
	if o.LeaseDuration <= 0 {
		o.LeaseDuration = d.LeaseDuration
	}
	if o.LeaseMargin < 0 || o.LeaseMargin >= o.LeaseDuration {
		o.LeaseMargin = 0
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = o.LeaseDuration - o.LeaseMargin
	}
	if o.ClaimAttempts <= 0 {
		o.ClaimAttempts = d.ClaimAttempts
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = d.AckTimeout
	}
	if o.Retry.InitialInterval <= 0 {
		o.Retry.InitialInterval = d.Retry.InitialInterval
	}
	if o.Retry.MaxInterval <= 0 {
		o.Retry.MaxInterval = d.Retry.MaxInterval
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry.MaxAttempts = d.Retry.MaxAttempts
	}
	if o.ReceiveBackoff.InitialInterval <= 0 {
		o.ReceiveBackoff.InitialInterval = d.ReceiveBackoff.InitialInterval
	}
	if o.ReceiveBackoff.MaxInterval <= 0 {
		o.ReceiveBackoff.MaxInterval = d.ReceiveBackoff.MaxInterval
	}
	return o
}
