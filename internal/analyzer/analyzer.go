// Package analyzer holds the processing step run for each job. The
// Placeholder analyzer stands in for the video model: it validates the input
// and produces summary artifacts that depend only on the job.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/itaysmouha/ScoutAI/internal/domain"
)

// Name identifies the analyzer in generated artifacts
const Name = "placeholder-v1"

// Request describes one analysis run
type Request struct {
	JobID     string
	InputRef  string
	InputSize int64
}

// Result carries the artifacts to persist
type Result struct {
	Output      []byte
	Metrics     []byte
	ContentType string
}

// Summary is the metrics payload
type Summary struct {
	PlayersDetected int `json:"playersDetected"`
	Frames          int `json:"frames"`
}

// Metrics is the JSON document written to the metrics key
type Metrics struct {
	JobID    string  `json:"jobId"`
	InputRef string  `json:"inputRef"`
	Analyzer string  `json:"analyzer"`
	Summary  Summary `json:"summary"`
}

// Output is the JSON document written to the output key
type Output struct {
	JobID     string `json:"jobId"`
	InputRef  string `json:"inputRef"`
	InputSize int64  `json:"inputSize"`
	Analyzer  string `json:"analyzer"`
	Status    string `json:"status"`
}

// Config configures the Placeholder analyzer
type Config struct {
	AllowedExtensions []string
	SimulatedDuration time.Duration
}

// Placeholder is a deterministic stand-in analyzer
type Placeholder struct {
	allowed  []string
	duration time.Duration
}

// NewPlaceholder creates a Placeholder analyzer
func NewPlaceholder(cfg Config) *Placeholder {
	allowed := make([]string, 0, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if ext != "" {
			allowed = append(allowed, ext)
		}
	}
	return &Placeholder{allowed: allowed, duration: cfg.SimulatedDuration}
}

// Analyze validates the input and renders the artifacts. An unsupported or
// empty input is a domain failure.
func (p *Placeholder) Analyze(ctx context.Context, req Request) (*Result, error) {
	ext := strings.ToLower(path.Ext(req.InputRef))
	if len(p.allowed) > 0 && !slices.Contains(p.allowed, ext) {
		return nil, domain.NewDomainError(fmt.Sprintf("unsupported input format %q", ext), nil)
	}
	if req.InputSize == 0 {
		return nil, domain.NewDomainError("input is empty", nil)
	}

	if p.duration > 0 {
		timer := time.NewTimer(p.duration)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	output, err := json.Marshal(Output{
		JobID:     req.JobID,
		InputRef:  req.InputRef,
		InputSize: req.InputSize,
		Analyzer:  Name,
		Status:    "analyzed",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode output: %w", err)
	}

	metrics, err := json.Marshal(Metrics{
		JobID:    req.JobID,
		InputRef: req.InputRef,
		Analyzer: Name,
		Summary:  Summary{PlayersDetected: 0, Frames: 0},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode metrics: %w", err)
	}

	return &Result{
		Output:      output,
		Metrics:     metrics,
		ContentType: "application/json",
	}, nil
}
