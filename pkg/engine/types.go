package engine

import (
	"context"
	"sort"
	"time"
)

// Configuration is the read-only parameter set every step consults.
type Configuration interface {
	// Get returns the value of a named parameter and whether it is set.
	Get(name string) (string, bool)

	// Names returns the parameter names in a stable order.
	Names() []string
}

// Guard reports whether a step's target state already holds.
// It must read external state directly and never an in-memory flag. An error means the
// state could not be determined; the orchestrator then performs the action anyway.
type Guard func(ctx context.Context, rc *RunContext) (bool, error)

// Condition reports whether a step applies to this run at all, with a reason when it does not.
type Condition func(ctx context.Context, rc *RunContext) (applies bool, reason string, err error)

// Action performs a step's work.
type Action func(ctx context.Context, rc *RunContext) error

// Step is one numbered unit of the pipeline.
type Step struct {
	// Index is the step's position in the total order, starting at 1.
	Index int

	// Name is the human-readable step name.
	Name string

	// GuardDescription describes the idempotency condition for the step table.
	GuardDescription string

	// BranchDependency describes how the step relates to the frontend decision.
	BranchDependency string

	// Condition gates the step on run-time configuration or the decision. Optional.
	Condition Condition

	// Guard is the idempotency predicate. Optional; nil means the action always runs.
	Guard Guard

	// Action performs the work.
	Action Action

	// ProducesDecision marks the single step that resolves the DecisionState.
	ProducesDecision bool
}

// DecisionResolver computes the DecisionState. It is invoked at most once per run.
type DecisionResolver func(ctx context.Context, rc *RunContext) (DecisionState, error)

// RunInfo identifies a run for observers.
type RunInfo struct {
	RunID       string    `json:"run_id"`
	Program     string    `json:"program"`
	StartOffset int       `json:"start_offset"`
	TotalSteps  int       `json:"total_steps"`
	StartedAt   time.Time `json:"started_at"`
}

// StepResult records what happened to one step.
type StepResult struct {
	Index     int           `json:"index"`
	Name      string        `json:"name"`
	Outcome   StepOutcome   `json:"outcome"`
	Reason    string        `json:"reason,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// RunReport summarises a whole run.
type RunReport struct {
	RunInfo

	Status      RunStatus      `json:"status"`
	CompletedAt time.Time      `json:"completed_at"`
	Steps       []StepResult   `json:"steps"`
	Decision    *DecisionState `json:"decision,omitempty"`
	DecidedBy   int            `json:"decided_by,omitempty"`
	Failure     *StepFailure   `json:"failure,omitempty"`
}

// Executed returns the indices of the steps whose actions were invoked, in order.
func (r *RunReport) Executed() []int {
	var out []int
	for _, s := range r.Steps {
		if s.Outcome != StepOutcomeNotRun && !s.Outcome.IsSkip() {
			out = append(out, s.Index)
		}
	}
	return out
}

// Result returns the result for a step index.
func (r *RunReport) Result(index int) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Index == index {
			return s, true
		}
	}
	return StepResult{}, false
}

// Observer receives structured run callbacks. Observers never write to the announcement log.
type Observer interface {
	// RunStarted is called before the first step. The returned context is passed to later calls.
	RunStarted(ctx context.Context, run RunInfo) context.Context

	// StepFinished is called once for every step that was eligible to run.
	StepFinished(ctx context.Context, run RunInfo, result StepResult)

	// RunFinished is called after the last step or the first failure.
	RunFinished(ctx context.Context, report *RunReport)
}

// RunContext is the per-invocation state owned by the orchestrator.
type RunContext struct {
	runID         string
	startOffset   int
	config        Configuration
	resolver      DecisionResolver
	producerIndex int

	decision   *DecisionState
	decidedBy  int
	current    *Step
	announcer  *announcer
	collection []string
	lastErr    error
}

// RunID returns the run identifier.
func (rc *RunContext) RunID() string { return rc.runID }

// StartOffset returns the lowest step index eligible to execute.
func (rc *RunContext) StartOffset() int { return rc.startOffset }

// Config returns the configuration snapshot.
func (rc *RunContext) Config() Configuration { return rc.config }

// Decision returns the decision if it has been resolved.
func (rc *RunContext) Decision() (DecisionState, bool) {
	if rc.decision == nil {
		return DecisionState{}, false
	}
	return *rc.decision, true
}

// DecidedBy returns the index of the step during which the decision was resolved, or 0.
func (rc *RunContext) DecidedBy() int { return rc.decidedBy }

// ResolveDecision returns the cached decision, resolving it on first use.
// Resolution normally happens in the producing step. When a resume offset skipped that
// step, the first consumer resolves it instead; either way it happens once per run.
func (rc *RunContext) ResolveDecision(ctx context.Context) (DecisionState, error) {
	if rc.decision != nil {
		return *rc.decision, nil
	}
	if rc.resolver == nil {
		return DecisionState{}, NewPrerequisiteMissing("frontend decision has not been resolved").
			WithCode(ErrCodeDecisionUnset)
	}

	d, err := rc.resolver(ctx, rc)
	if err != nil {
		return DecisionState{}, err
	}

	rc.decision = &d
	if rc.current != nil {
		rc.decidedBy = rc.current.Index
		if rc.current.Index != rc.producerIndex {
			rc.Note("frontend decision resolved outside its producing step (resumed past it)")
		}
	}
	return d, nil
}

// Note announces an informational message for the current step.
func (rc *RunContext) Note(msg string) {
	if rc.announcer != nil {
		rc.announcer.note(rc.current, msg)
	}
}

// Warn announces a non-fatal condition for the current step.
func (rc *RunContext) Warn(msg string, err error) {
	rc.collection = append(rc.collection, msg)
	if rc.announcer != nil {
		rc.announcer.warn(rc.current, msg, err)
	}
}

// Warnings returns the non-fatal conditions reported so far.
func (rc *RunContext) Warnings() []string {
	out := make([]string, len(rc.collection))
	copy(out, rc.collection)
	return out
}

// NewRunContext builds a context outside the orchestrator, for steps exercised in isolation.
func NewRunContext(runID string, startOffset int, cfg Configuration, resolver DecisionResolver) *RunContext {
	return &RunContext{
		runID:       runID,
		startOffset: startOffset,
		config:      cfg,
		resolver:    resolver,
	}
}

// MapConfiguration is a Configuration backed by a plain map, used in tests and examples.
type MapConfiguration map[string]string

// Get returns a named value.
func (m MapConfiguration) Get(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// Names returns the sorted parameter names.
func (m MapConfiguration) Names() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
