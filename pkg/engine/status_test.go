package engine

import (
	"encoding/json"
	"testing"
)

func TestStepOutcomeIsSkip(t *testing.T) {
	tests := []struct {
		outcome StepOutcome
		skip    bool
	}{
		{StepOutcomeNotRun, false},
		{StepOutcomeNotApplicable, true},
		{StepOutcomeSatisfied, true},
		{StepOutcomeSucceeded, false},
		{StepOutcomeFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			if err := tt.outcome.Validate(); err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
			if got := tt.outcome.IsSkip(); got != tt.skip {
				t.Errorf("IsSkip() = %v, want %v", got, tt.skip)
			}
		})
	}
}

func TestRunStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   RunStatus
		terminal bool
	}{
		{RunStatusRunning, false},
		{RunStatusSucceeded, true},
		{RunStatusFailed, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestStatusRejectsUnknownValues(t *testing.T) {
	var s RunStatus
	if err := json.Unmarshal([]byte(`"paused"`), &s); err == nil {
		t.Error("expected an unknown run status to be rejected")
	}

	if err := StepOutcome("skipped").Validate(); err == nil {
		t.Error("expected an unknown step outcome to be rejected")
	}
}

func TestRunReportExecuted(t *testing.T) {
	report := &RunReport{Steps: []StepResult{
		{Index: 1, Outcome: StepOutcomeNotRun},
		{Index: 2, Outcome: StepOutcomeSatisfied},
		{Index: 3, Outcome: StepOutcomeSucceeded},
		{Index: 4, Outcome: StepOutcomeNotApplicable},
		{Index: 5, Outcome: StepOutcomeFailed},
	}}

	got := report.Executed()
	if len(got) != 2 || got[0] != 3 || got[1] != 5 {
		t.Errorf("Executed() = %v, want [3 5]", got)
	}
}
