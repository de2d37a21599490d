package engine

import (
	"encoding/json"
	"fmt"
)

// RunStatus represents the overall status of a pipeline run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every eligible step completed or was skipped by its guard.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates the run halted at a failing step.
	RunStatusFailed RunStatus = "failed"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusSucceeded, RunStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}

// StepOutcome represents what happened to a single step during a run.
type StepOutcome string

const (
	// StepOutcomeNotRun indicates the step's index was below the start offset, or the run
	// halted before reaching it. Its guard was not evaluated.
	StepOutcomeNotRun StepOutcome = "not_run"

	// StepOutcomeNotApplicable indicates the step's condition excluded it from this run.
	StepOutcomeNotApplicable StepOutcome = "not_applicable"

	// StepOutcomeSatisfied indicates the guard reported the target state already holds.
	StepOutcomeSatisfied StepOutcome = "satisfied"

	// StepOutcomeSucceeded indicates the action ran and completed.
	StepOutcomeSucceeded StepOutcome = "succeeded"

	// StepOutcomeFailed indicates the action ran and failed.
	StepOutcomeFailed StepOutcome = "failed"
)

// IsSkip returns true if the step was eligible but did not invoke its action.
func (o StepOutcome) IsSkip() bool {
	return o == StepOutcomeNotApplicable || o == StepOutcomeSatisfied
}

// Validate checks if the step outcome is valid.
func (o StepOutcome) Validate() error {
	switch o {
	case StepOutcomeNotRun, StepOutcomeNotApplicable, StepOutcomeSatisfied,
		StepOutcomeSucceeded, StepOutcomeFailed:
		return nil
	default:
		return fmt.Errorf("invalid step outcome: %s", o)
	}
}
