package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openfroyo/froyo-deploy/pkg/engine"
)

// Journal records runs through the orchestrator's observer callbacks. Write errors never reach
// the pipeline; the first one is kept and returned by Err after the run.
type Journal struct {
	store    Store
	config   engine.Configuration
	keepRuns int
	errs     []error
}

var _ engine.Observer = (*Journal)(nil)

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithConfiguration stores the snapshot values in the run metadata.
func WithConfiguration(cfg engine.Configuration) JournalOption {
	return func(j *Journal) { j.config = cfg }
}

// WithRetention keeps only the newest n runs after each run. Zero keeps everything.
func WithRetention(n int) JournalOption {
	return func(j *Journal) { j.keepRuns = n }
}

// NewJournal creates a journal observer over an initialised store.
func NewJournal(store Store, opts ...JournalOption) *Journal {
	j := &Journal{store: store}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Err returns the journal write failures of the run, joined.
func (j *Journal) Err() error {
	return errors.Join(j.errs...)
}

func (j *Journal) record(op string, err error) {
	if err != nil {
		j.errs = append(j.errs, fmt.Errorf("journal %s: %w", op, err))
	}
}

// RunStarted inserts the run row.
func (j *Journal) RunStarted(ctx context.Context, run engine.RunInfo) context.Context {
	j.record("create run", j.store.CreateRun(ctx, &Run{
		ID:          run.RunID,
		Program:     run.Program,
		StartOffset: run.StartOffset,
		TotalSteps:  run.TotalSteps,
		Status:      string(engine.RunStatusRunning),
		StartedAt:   run.StartedAt,
	}))
	return ctx
}

// StepFinished appends the step outcome.
func (j *Journal) StepFinished(ctx context.Context, run engine.RunInfo, result engine.StepResult) {
	event := &StepEvent{
		RunID:      run.RunID,
		StepIndex:  result.Index,
		StepName:   result.Name,
		Outcome:    string(result.Outcome),
		DurationMS: result.Duration.Milliseconds(),
	}
	switch {
	case result.Error != "":
		msg := result.Error
		event.Message = &msg
	case result.Reason != "":
		msg := result.Reason
		event.Message = &msg
	}
	j.record("append step", j.store.AppendStepEvent(ctx, event))
}

type runMetadata struct {
	Decision  *engine.DecisionState `json:"decision,omitempty"`
	DecidedBy int                   `json:"decided_by,omitempty"`
	Resume    string                `json:"resume,omitempty"`
	Config    map[string]string     `json:"config,omitempty"`
}

// RunFinished records the terminal status and prunes old runs.
func (j *Journal) RunFinished(ctx context.Context, report *engine.RunReport) {
	meta := runMetadata{Decision: report.Decision, DecidedBy: report.DecidedBy}
	if j.config != nil {
		meta.Config = make(map[string]string)
		for _, name := range j.config.Names() {
			meta.Config[name], _ = j.config.Get(name)
		}
	}

	var failedStep *int
	var errMsg *string
	if report.Failure != nil {
		idx := report.Failure.Index
		failedStep = &idx
		meta.Resume = report.Failure.ResumeCommand()
		if report.Failure.Err != nil {
			msg := report.Failure.Err.Error()
			errMsg = &msg
		}
	}

	data, err := json.Marshal(meta)
	if err != nil {
		j.record("encode metadata", err)
		data = []byte("{}")
	}

	j.record("finish run", j.store.FinishRun(ctx, report.RunID, string(report.Status), failedStep, errMsg, string(data)))

	if j.keepRuns > 0 {
		_, err := j.store.PruneRuns(ctx, j.keepRuns)
		j.record("prune", err)
	}
}
