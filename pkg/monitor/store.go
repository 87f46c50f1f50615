// Package monitor mirrors workflow state into a store that can be read from
// outside the running workflow, and serves it over HTTP.
//
// A Mirror is an api.Observer: attach it with stepflow.WithObserver and every
// value the engine records is written to the store under the current run.
// Only the latest value per key is kept.
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/petrijr/stepflow/pkg/api"
)

// ErrRunNotFound is returned when a run ID is unknown to the store.
var ErrRunNotFound = errors.New("run not found")

// Status is the lifecycle state of a mirrored run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is a mirrored workflow run.
type Run struct {
	ID         string         `json:"id"`
	Workflow   string         `json:"workflow"`
	Status     Status         `json:"status"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Values     map[string]any `json:"values,omitempty"`
}

// Store persists mirrored runs.
//
// Implementations must be safe for concurrent use: the workflow writes while
// monitors read.
type Store interface {
	// StartRun creates (or resets) the record of run.
	StartRun(ctx context.Context, run api.RunInfo, at time.Time) error
	// PutValue stores the latest value of key for run.
	PutValue(ctx context.Context, runID, key string, value any) error
	// FinishRun marks run as completed or failed.
	FinishRun(ctx context.Context, runID string, status Status, errMsg string, at time.Time) error
	// GetRun returns the run with its values, or ErrRunNotFound.
	GetRun(ctx context.Context, runID string) (*Run, error)
	// ListRuns returns runs without values, most recent first.
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
}
