package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultProgram is the invocation name used in resume commands when none is configured.
const DefaultProgram = "froyo-deploy"

// Orchestrator runs an ordered list of steps with skip-before-offset and fail-fast semantics.
type Orchestrator struct {
	// steps is the pipeline in ascending index order
	steps []Step

	// logger is the announcement stream; nothing else writes to it
	logger zerolog.Logger

	// observers receive structured callbacks
	observers []Observer

	// resolver computes the frontend decision
	resolver DecisionResolver

	// program is the invocation name used in the resume command
	program string

	// now returns the current time
	now func() time.Time

	// newRunID generates run identifiers
	newRunID func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the announcement logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithObserver adds an observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithDecisionResolver sets the resolver used for the frontend decision.
func WithDecisionResolver(r DecisionResolver) Option {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithProgram sets the program name printed in resume commands.
func WithProgram(program string) Option {
	return func(o *Orchestrator) {
		if program != "" {
			o.program = program
		}
	}
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRunIDGenerator overrides run ID generation, for tests.
func WithRunIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) { o.newRunID = gen }
}

// NewOrchestrator creates an orchestrator after validating the step list.
func NewOrchestrator(steps []Step, opts ...Option) (*Orchestrator, error) {
	if err := ValidateSteps(steps); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		steps:    steps,
		logger:   zerolog.Nop(),
		program:  DefaultProgram,
		now:      time.Now,
		newRunID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// ValidateSteps checks that indices run 1..N without gaps and that at most one step
// produces the decision.
func ValidateSteps(steps []Step) error {
	if len(steps) == 0 {
		return &Error{Class: ErrorClassPrerequisiteMissing, Code: ErrCodeInvalidPipeline, Message: "pipeline has no steps"}
	}

	producers := 0
	for i, s := range steps {
		if s.Index != i+1 {
			return &Error{
				Class:   ErrorClassPrerequisiteMissing,
				Code:    ErrCodeInvalidPipeline,
				Message: fmt.Sprintf("step %q has index %d, expected %d", s.Name, s.Index, i+1),
			}
		}
		if s.Action == nil {
			return &Error{
				Class:   ErrorClassPrerequisiteMissing,
				Code:    ErrCodeInvalidPipeline,
				Message: fmt.Sprintf("step %d (%s) has no action", s.Index, s.Name),
			}
		}
		if s.ProducesDecision {
			producers++
		}
	}
	if producers > 1 {
		return &Error{Class: ErrorClassPrerequisiteMissing, Code: ErrCodeInvalidPipeline, Message: "more than one step produces the decision"}
	}
	return nil
}

// Steps returns the pipeline.
func (o *Orchestrator) Steps() []Step {
	return o.steps
}

// ValidateOffset checks that a start offset addresses a step.
func (o *Orchestrator) ValidateOffset(startOffset int) error {
	if startOffset < 1 || startOffset > len(o.steps) {
		return &Error{
			Class:   ErrorClassPrerequisiteMissing,
			Code:    ErrCodeInvalidOffset,
			Message: fmt.Sprintf("start offset %d out of range 1..%d", startOffset, len(o.steps)),
		}
	}
	return nil
}

// Run executes the pipeline from startOffset.
//
// Steps below the offset are neither guarded nor executed. Each eligible step evaluates its
// condition, then its guard, then its action. The first action failure halts the run and is
// returned as a *StepFailure naming the step and the resume offset.
func (o *Orchestrator) Run(ctx context.Context, cfg Configuration, startOffset int) (*RunReport, error) {
	if err := o.ValidateOffset(startOffset); err != nil {
		return nil, err
	}

	info := RunInfo{
		RunID:       o.newRunID(),
		Program:     o.program,
		StartOffset: startOffset,
		TotalSteps:  len(o.steps),
		StartedAt:   o.now(),
	}

	ann := &announcer{logger: o.logger.With().Str("run_id", info.RunID).Logger(), total: len(o.steps)}
	rc := &RunContext{
		runID:       info.RunID,
		startOffset: startOffset,
		config:      cfg,
		resolver:    o.resolver,
		announcer:   ann,
	}
	for i := range o.steps {
		if o.steps[i].ProducesDecision {
			rc.producerIndex = o.steps[i].Index
		}
	}

	report := &RunReport{
		RunInfo: info,
		Status:  RunStatusRunning,
		Steps:   make([]StepResult, len(o.steps)),
	}
	for i, s := range o.steps {
		report.Steps[i] = StepResult{Index: s.Index, Name: s.Name, Outcome: StepOutcomeNotRun}
	}

	for _, obs := range o.observers {
		ctx = obs.RunStarted(ctx, info)
	}
	ann.runStarted(info)

	for i := range o.steps {
		step := &o.steps[i]
		if step.Index < startOffset {
			continue
		}

		rc.current = step
		result := o.runStep(ctx, rc, step, ann)
		report.Steps[i] = result
		o.notifyStep(ctx, info, result)

		if result.Outcome == StepOutcomeFailed {
			report.Failure = &StepFailure{
				Index:   step.Index,
				Name:    step.Name,
				Program: o.program,
				Err:     rc.lastErr,
			}
			ann.failed(step, report.Failure)
			return o.finish(ctx, rc, report, RunStatusFailed), report.Failure
		}
	}

	rc.current = nil
	ann.completed(info)
	return o.finish(ctx, rc, report, RunStatusSucceeded), nil
}

// runStep evaluates one eligible step.
func (o *Orchestrator) runStep(ctx context.Context, rc *RunContext, step *Step, ann *announcer) StepResult {
	result := StepResult{Index: step.Index, Name: step.Name, StartedAt: o.now()}
	ann.stepStarted(step)

	finish := func(outcome StepOutcome, reason string, err error) StepResult {
		result.Outcome = outcome
		result.Reason = reason
		result.Duration = o.now().Sub(result.StartedAt)
		if err != nil {
			result.Error = err.Error()
			rc.lastErr = err
		}
		return result
	}

	if step.Condition != nil {
		applies, reason, err := step.Condition(ctx, rc)
		if err != nil {
			return finish(StepOutcomeFailed, "condition could not be evaluated", err)
		}
		if !applies {
			ann.skipped(step, "not applicable: "+reason)
			return finish(StepOutcomeNotApplicable, reason, nil)
		}
	}

	if step.Guard != nil {
		satisfied, err := step.Guard(ctx, rc)
		if err != nil {
			// Fail open: an undecidable guard never skips work.
			rc.Warn("guard could not determine state, performing action", err)
			satisfied = false
		}
		if satisfied {
			ann.skipped(step, "already satisfied")
			return finish(StepOutcomeSatisfied, "already satisfied", nil)
		}
	}

	if err := step.Action(ctx, rc); err != nil {
		return finish(StepOutcomeFailed, "", err)
	}

	if step.ProducesDecision && rc.decision == nil {
		err := NewPrerequisiteMissing(fmt.Sprintf("step %d (%s) did not resolve the frontend decision", step.Index, step.Name)).
			WithCode(ErrCodeDecisionUnset)
		return finish(StepOutcomeFailed, "", err)
	}

	ann.stepSucceeded(step, o.now().Sub(result.StartedAt))
	return finish(StepOutcomeSucceeded, "", nil)
}

func (o *Orchestrator) notifyStep(ctx context.Context, info RunInfo, result StepResult) {
	for _, obs := range o.observers {
		obs.StepFinished(ctx, info, result)
	}
}

func (o *Orchestrator) finish(ctx context.Context, rc *RunContext, report *RunReport, status RunStatus) *RunReport {
	report.Status = status
	report.CompletedAt = o.now()
	if d, ok := rc.Decision(); ok {
		report.Decision = &d
		report.DecidedBy = rc.DecidedBy()
	}
	for _, obs := range o.observers {
		obs.RunFinished(ctx, report)
	}
	return report
}

// announcer writes the process-wide step announcement stream.
type announcer struct {
	logger zerolog.Logger
	total  int
}

func (a *announcer) stepLogger(step *Step) zerolog.Logger {
	if step == nil {
		return a.logger
	}
	return a.logger.With().Int("step", step.Index).Str("step_name", step.Name).Logger()
}

func (a *announcer) runStarted(info RunInfo) {
	a.logger.Info().
		Int("start_offset", info.StartOffset).
		Int("total_steps", info.TotalSteps).
		Msg("Starting deployment pipeline")
}

func (a *announcer) stepStarted(step *Step) {
	l := a.stepLogger(step)
	l.Info().Msgf("[%d/%d] %s", step.Index, a.total, step.Name)
}

func (a *announcer) skipped(step *Step, reason string) {
	l := a.stepLogger(step)
	l.Info().Str("reason", reason).Msgf("[%d/%d] skipped", step.Index, a.total)
}

func (a *announcer) stepSucceeded(step *Step, d time.Duration) {
	l := a.stepLogger(step)
	l.Debug().Dur("duration", d).Msg("step completed")
}

func (a *announcer) note(step *Step, msg string) {
	l := a.stepLogger(step)
	l.Info().Msg(msg)
}

func (a *announcer) warn(step *Step, msg string, err error) {
	l := a.stepLogger(step)
	ev := l.Warn()
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg(msg)
}

func (a *announcer) failed(step *Step, f *StepFailure) {
	l := a.stepLogger(step)
	l.Error().
		Err(f.Err).
		Str("resume", f.ResumeCommand()).
		Msgf("Step %d (%s) failed; resume with: %s", f.Index, f.Name, f.ResumeCommand())
}

func (a *announcer) completed(info RunInfo) {
	a.logger.Info().Msg("Deployment pipeline completed")
}
