package stores

import (
	"context"
	"time"
)

// Run is one journaled pipeline invocation.
type Run struct {
	ID          string     `json:"id"`
	Program     string     `json:"program"`
	StartOffset int        `json:"start_offset"`
	TotalSteps  int        `json:"total_steps"`
	Status      string     `json:"status"`
	FailedStep  *int       `json:"failed_step,omitempty"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Metadata    string     `json:"metadata"` // JSON blob
}

// StepEvent is the outcome of one eligible step.
type StepEvent struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	StepIndex  int       `json:"step_index"`
	StepName   string    `json:"step_name"`
	Outcome    string    `json:"outcome"`
	Message    *string   `json:"message,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store defines the journal persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, id, status string, failedStep *int, errMsg *string, metadata string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	PruneRuns(ctx context.Context, keep int) (int64, error)

	// Step event operations
	AppendStepEvent(ctx context.Context, event *StepEvent) error
	ListStepEvents(ctx context.Context, runID string) ([]*StepEvent, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
