// Package engine provides the step-orchestration core of froyo-deploy.
//
// # Overview
//
// A deployment is a fixed, ordered pipeline of numbered steps. Each step carries an optional
// condition (does the step apply to this run at all), an optional guard (does the target state
// already hold), and an action. The orchestrator walks the pipeline once, in order:
//
//  1. Steps below the start offset are neither guarded nor executed.
//  2. A step whose condition is false is reported as not applicable.
//  3. A step whose guard holds is reported as satisfied and its action is skipped.
//  4. Otherwise the action runs. The first action failure halts the run.
//
// Re-running the whole pipeline against a host that is already deployed performs no mutating
// action beyond those whose guard is "none".
//
// # Resuming
//
// A failed run returns a *StepFailure naming the failing step. Its ResumeCommand is the literal
// invocation that restarts the pipeline at that step:
//
//	report, err := orch.Run(ctx, snapshot, 1)
//	if f, ok := engine.AsStepFailure(err); ok {
//	    fmt.Println(f.ResumeCommand()) // froyo-deploy --from 7
//	}
//
// # The frontend decision
//
// Exactly one step resolves the DecisionState (whether a frontend is served). Resolution goes
// through RunContext.ResolveDecision, which caches the result for the rest of the run. When a
// start offset skips the producing step, the first consumer resolves it instead, so the
// decision is still computed once and from the same inputs.
//
// Resolve is the pure decision function:
//
//	mode=frontend-enabled          -> true
//	mode=api-only                  -> false
//	mode=auto, no frontend found   -> false
//	mode=auto, frontend found      -> operator confirmation
//
// # Errors
//
// Errors are classified with ErrorClass:
//
//   - prerequisite_missing: a required input was absent at the point of use
//   - collaborator_failure: an external tool returned non-success; its diagnostic is kept verbatim
//   - ambiguous_state: a guard could not decide; the orchestrator performs the action
//
// # Observers
//
// Only the orchestrator writes the announcement log stream. The run journal, metrics and tracing
// receive structured callbacks through the Observer interface.
package engine
