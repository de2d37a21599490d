package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder tracks guard and action invocations across a fake pipeline.
type recorder struct {
	guards  []int
	actions []int
}

func buildSteps(rec *recorder, n int, satisfied map[int]bool, failing map[int]error) []Step {
	steps := make([]Step, 0, n)
	for i := 1; i <= n; i++ {
		idx := i
		steps = append(steps, Step{
			Index: idx,
			Name:  fmt.Sprintf("step-%d", idx),
			Guard: func(ctx context.Context, rc *RunContext) (bool, error) {
				rec.guards = append(rec.guards, idx)
				return satisfied[idx], nil
			},
			Action: func(ctx context.Context, rc *RunContext) error {
				rec.actions = append(rec.actions, idx)
				return failing[idx]
			},
		})
	}
	return steps
}

func fixedRunID() string { return "run-test" }

func TestRunExecutesOnlyStepsAtOrAboveOffset(t *testing.T) {
	for offset := 1; offset <= 10; offset++ {
		t.Run(fmt.Sprintf("from-%d", offset), func(t *testing.T) {
			rec := &recorder{}
			o, err := NewOrchestrator(buildSteps(rec, 10, nil, nil), WithRunIDGenerator(fixedRunID))
			require.NoError(t, err)

			report, err := o.Run(context.Background(), MapConfiguration{}, offset)
			require.NoError(t, err)

			var want []int
			for i := offset; i <= 10; i++ {
				want = append(want, i)
			}
			assert.Equal(t, want, rec.guards, "guards below the offset must not be evaluated")
			assert.Equal(t, want, rec.actions)
			assert.Equal(t, want, report.Executed())
			assert.Equal(t, RunStatusSucceeded, report.Status)

			for i := 1; i < offset; i++ {
				res, ok := report.Result(i)
				require.True(t, ok)
				assert.Equal(t, StepOutcomeNotRun, res.Outcome)
			}
		})
	}
}

func TestRunSkipsSatisfiedGuards(t *testing.T) {
	rec := &recorder{}
	o, err := NewOrchestrator(buildSteps(rec, 4, map[int]bool{2: true, 3: true}, nil))
	require.NoError(t, err)

	report, err := o.Run(context.Background(), MapConfiguration{}, 1)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4}, rec.guards)
	assert.Equal(t, []int{1, 4}, rec.actions)

	res, _ := report.Result(2)
	assert.Equal(t, StepOutcomeSatisfied, res.Outcome)
}

func TestRunHaltsOnFirstFailure(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("npm ci exited 1: ERESOLVE unable to resolve dependency tree")
	o, err := NewOrchestrator(buildSteps(rec, 10, nil, map[int]error{7: boom}), WithProgram("froyo-deploy"))
	require.NoError(t, err)

	report, err := o.Run(context.Background(), MapConfiguration{}, 1)
	require.Error(t, err)

	failure, ok := AsStepFailure(err)
	require.True(t, ok)
	assert.Equal(t, 7, failure.Index)
	assert.Equal(t, "step-7", failure.Name)
	assert.Equal(t, 7, failure.ResumeOffset())
	assert.Equal(t, "froyo-deploy --from 7", failure.ResumeCommand())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "ERESOLVE", "collaborator diagnostic must be carried verbatim")

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, rec.actions, "steps 8, 9 and 10 must not run")
	assert.Equal(t, RunStatusFailed, report.Status)
	for _, idx := range []int{8, 9, 10} {
		res, _ := report.Result(idx)
		assert.Equal(t, StepOutcomeNotRun, res.Outcome)
	}
}

func TestRunGuardErrorFailsOpen(t *testing.T) {
	var acted bool
	steps := []Step{{
		Index: 1,
		Name:  "probe",
		Guard: func(ctx context.Context, rc *RunContext) (bool, error) {
			return true, NewAmbiguousState("dpkg-query timed out", errors.New("signal: killed"))
		},
		Action: func(ctx context.Context, rc *RunContext) error {
			acted = true
			return nil
		},
	}}

	var buf bytes.Buffer
	o, err := NewOrchestrator(steps, WithLogger(zerolog.New(&buf)))
	require.NoError(t, err)

	report, err := o.Run(context.Background(), MapConfiguration{}, 1)
	require.NoError(t, err)
	assert.True(t, acted, "an undecidable guard must not skip the action")
	res, _ := report.Result(1)
	assert.Equal(t, StepOutcomeSucceeded, res.Outcome)
	assert.Contains(t, buf.String(), "guard could not determine state")
}

func TestRunConditionNotApplicable(t *testing.T) {
	var guarded, acted bool
	steps := []Step{{
		Index: 1,
		Name:  "frontend built",
		Condition: func(ctx context.Context, rc *RunContext) (bool, string, error) {
			return false, "frontend branch disabled", nil
		},
		Guard: func(ctx context.Context, rc *RunContext) (bool, error) {
			guarded = true
			return false, nil
		},
		Action: func(ctx context.Context, rc *RunContext) error {
			acted = true
			return nil
		},
	}}

	o, err := NewOrchestrator(steps)
	require.NoError(t, err)
	report, err := o.Run(context.Background(), MapConfiguration{}, 1)
	require.NoError(t, err)

	assert.False(t, guarded)
	assert.False(t, acted)
	res, _ := report.Result(1)
	assert.Equal(t, StepOutcomeNotApplicable, res.Outcome)
	assert.Equal(t, "frontend branch disabled", res.Reason)
}

func TestRunRejectsInvalidOffset(t *testing.T) {
	o, err := NewOrchestrator(buildSteps(&recorder{}, 10, nil, nil))
	require.NoError(t, err)

	for _, offset := range []int{0, -1, 11} {
		_, err := o.Run(context.Background(), MapConfiguration{}, offset)
		require.Error(t, err)
		var e *Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, ErrCodeInvalidOffset, e.Code)
	}
}

func TestValidateSteps(t *testing.T) {
	noop := func(ctx context.Context, rc *RunContext) error { return nil }

	tests := []struct {
		name    string
		steps   []Step
		wantErr bool
	}{
		{name: "empty", steps: nil, wantErr: true},
		{name: "contiguous", steps: []Step{{Index: 1, Action: noop}, {Index: 2, Action: noop}}},
		{name: "gap", steps: []Step{{Index: 1, Action: noop}, {Index: 3, Action: noop}}, wantErr: true},
		{name: "starts at zero", steps: []Step{{Index: 0, Action: noop}}, wantErr: true},
		{name: "missing action", steps: []Step{{Index: 1}}, wantErr: true},
		{
			name: "two producers",
			steps: []Step{
				{Index: 1, Action: noop, ProducesDecision: true},
				{Index: 2, Action: noop, ProducesDecision: true},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSteps(tt.steps)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// decisionPipeline models steps 6, 8 and 9: one producer and two consumers.
func decisionPipeline(resolverCalls *int, consumed *[]DecisionState) []Step {
	noop := func(ctx context.Context, rc *RunContext) error { return nil }
	consume := func(ctx context.Context, rc *RunContext) error {
		d, err := rc.ResolveDecision(ctx)
		if err != nil {
			return err
		}
		*consumed = append(*consumed, d)
		return nil
	}
	return []Step{
		{Index: 1, Name: "fetch", ProducesDecision: true, Action: func(ctx context.Context, rc *RunContext) error {
			_, err := rc.ResolveDecision(ctx)
			return err
		}},
		{Index: 2, Name: "deps", Action: noop},
		{Index: 3, Name: "build", Action: consume},
		{Index: 4, Name: "proxy", Action: consume},
	}
}

func TestDecisionResolvedOncePerRun(t *testing.T) {
	calls := 0
	var consumed []DecisionState
	resolver := func(ctx context.Context, rc *RunContext) (DecisionState, error) {
		calls++
		return DecisionState{FrontendDetected: true, MernEnabled: true}, nil
	}

	o, err := NewOrchestrator(decisionPipeline(&calls, &consumed), WithDecisionResolver(resolver))
	require.NoError(t, err)

	report, err := o.Run(context.Background(), MapConfiguration{}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	require.Len(t, consumed, 2)
	assert.True(t, consumed[0].MernEnabled)
	require.NotNil(t, report.Decision)
	assert.Equal(t, BranchFrontendEnabled, report.Decision.Branch())
	assert.Equal(t, 1, report.DecidedBy)
}

func TestDecisionResolvedLazilyWhenProducerSkippedByOffset(t *testing.T) {
	calls := 0
	var consumed []DecisionState
	resolver := func(ctx context.Context, rc *RunContext) (DecisionState, error) {
		calls++
		return DecisionState{}, nil
	}

	var buf bytes.Buffer
	o, err := NewOrchestrator(decisionPipeline(&calls, &consumed),
		WithDecisionResolver(resolver), WithLogger(zerolog.New(&buf)))
	require.NoError(t, err)

	report, err := o.Run(context.Background(), MapConfiguration{}, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Len(t, consumed, 2)
	assert.Equal(t, 3, report.DecidedBy, "first consumer resolves")
	assert.Contains(t, buf.String(), "resumed past it")
}

func TestProducerMustResolveDecision(t *testing.T) {
	steps := []Step{{
		Index:            1,
		Name:             "fetch",
		ProducesDecision: true,
		Action:           func(ctx context.Context, rc *RunContext) error { return nil },
	}}
	o, err := NewOrchestrator(steps)
	require.NoError(t, err)

	_, err = o.Run(context.Background(), MapConfiguration{}, 1)
	require.Error(t, err)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, ErrCodeDecisionUnset, e.Code)
}

func TestAnnouncementsNameFailureAndResume(t *testing.T) {
	var buf bytes.Buffer
	rec := &recorder{}
	o, err := NewOrchestrator(buildSteps(rec, 3, map[int]bool{1: true}, map[int]error{2: errors.New("exit status 100")}),
		WithLogger(zerolog.New(&buf)), WithProgram("deploy.sh"))
	require.NoError(t, err)

	_, err = o.Run(context.Background(), MapConfiguration{}, 1)
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "[1/3] step-1")
	assert.Contains(t, out, "already satisfied")
	assert.Contains(t, out, "deploy.sh --from 2")
	assert.False(t, strings.Contains(out, "[3/3]"), "no announcement after the failing step")
}

type countingObserver struct {
	started  int
	steps    []StepResult
	finished *RunReport
}

func (c *countingObserver) RunStarted(ctx context.Context, run RunInfo) context.Context {
	c.started++
	return ctx
}

func (c *countingObserver) StepFinished(ctx context.Context, run RunInfo, result StepResult) {
	c.steps = append(c.steps, result)
}

func (c *countingObserver) RunFinished(ctx context.Context, report *RunReport) {
	c.finished = report
}

func TestObserversSeeEligibleStepsOnly(t *testing.T) {
	obs := &countingObserver{}
	o, err := NewOrchestrator(buildSteps(&recorder{}, 5, nil, nil), WithObserver(obs))
	require.NoError(t, err)

	_, err = o.Run(context.Background(), MapConfiguration{}, 4)
	require.NoError(t, err)

	assert.Equal(t, 1, obs.started)
	require.Len(t, obs.steps, 2)
	assert.Equal(t, 4, obs.steps[0].Index)
	assert.Equal(t, 5, obs.steps[1].Index)
	require.NotNil(t, obs.finished)
	assert.Equal(t, RunStatusSucceeded, obs.finished.Status)
}
