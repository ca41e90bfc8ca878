package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Envelope is the queue message body. It only references the job; the Job
// Store record is the source of truth.
type Envelope struct {
	JobID    string `json:"jobId"`
	InputRef string `json:"inputRef"`
}

// DecodeEnvelope parses a message body. Any body that does not name a job
// is reported as ErrMalformedEnvelope.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	env.JobID = strings.TrimSpace(env.JobID)
	if env.JobID == "" {
		return Envelope{}, fmt.Errorf("%w: jobId is required", ErrMalformedEnvelope)
	}

	return env, nil
}

// Encode renders the envelope wire form
func (e Envelope) Encode() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return body, nil
}
