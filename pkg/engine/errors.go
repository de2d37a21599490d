package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error raised while running the pipeline.
type ErrorClass string

const (
	// ErrorClassPrerequisiteMissing indicates a required input was absent at the point of use.
	// It aborts the run before any mutating action of the current step.
	ErrorClassPrerequisiteMissing ErrorClass = "prerequisite_missing"

	// ErrorClassCollaboratorFailure indicates an external tool or service returned non-success.
	// The collaborator's own diagnostic is carried verbatim in the wrapped error.
	ErrorClassCollaboratorFailure ErrorClass = "collaborator_failure"

	// ErrorClassAmbiguousState indicates a guard could not decide whether its target state holds.
	// The orchestrator resolves it by performing the action instead of skipping it.
	ErrorClassAmbiguousState ErrorClass = "ambiguous_state"
)

// Error represents a classified error with context.
// nolint:revive // engine.Error reads naturally at call sites
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Collaborator names the external tool that failed, if applicable.
	Collaborator string `json:"collaborator,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Collaborator != "" {
		msg = fmt.Sprintf("%s (collaborator=%s)", msg, e.Collaborator)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Class, msg, e.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", e.Class, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewPrerequisiteMissing creates an error for an absent required input.
func NewPrerequisiteMissing(message string) *Error {
	return &Error{
		Class:   ErrorClassPrerequisiteMissing,
		Message: message,
		Code:    ErrCodeMissingInput,
	}
}

// NewCollaboratorFailure creates an error for a failed external tool call.
func NewCollaboratorFailure(collaborator, message string, err error) *Error {
	return &Error{
		Class:        ErrorClassCollaboratorFailure,
		Message:      message,
		Collaborator: collaborator,
		Code:         ErrCodeCollaboratorFailed,
		Err:          err,
	}
}

// NewAmbiguousState creates an error for a guard that could not determine state.
func NewAmbiguousState(message string, err error) *Error {
	return &Error{
		Class:   ErrorClassAmbiguousState,
		Message: message,
		Code:    ErrCodeProbeFailed,
		Err:     err,
	}
}

// WithCode sets the error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsPrerequisiteMissing returns true if the error chain holds a PrerequisiteMissing error.
func IsPrerequisiteMissing(err error) bool {
	return classOf(err) == ErrorClassPrerequisiteMissing
}

// IsCollaboratorFailure returns true if the error chain holds a CollaboratorFailure error.
func IsCollaboratorFailure(err error) bool {
	return classOf(err) == ErrorClassCollaboratorFailure
}

// IsAmbiguousState returns true if the error chain holds an AmbiguousState error.
func IsAmbiguousState(err error) bool {
	return classOf(err) == ErrorClassAmbiguousState
}

// ClassOf returns the class of the first engine.Error in the chain, or "" if there is none.
func ClassOf(err error) ErrorClass {
	return classOf(err)
}

func classOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// Common error codes.
const (
	ErrCodeMissingInput       = "MISSING_INPUT"
	ErrCodeInvalidPipeline    = "INVALID_PIPELINE"
	ErrCodeInvalidOffset      = "INVALID_OFFSET"
	ErrCodeCollaboratorFailed = "COLLABORATOR_FAILED"
	ErrCodeProbeFailed        = "PROBE_FAILED"
	ErrCodeDecisionUnset      = "DECISION_UNSET"
	ErrCodeDecisionRewritten  = "DECISION_REWRITTEN"
	ErrCodeConfigInvalid      = "CONFIG_INVALID"
	ErrCodeWorkingCopyClash   = "WORKING_COPY_CLASH"
	ErrCodePolicyDenied       = "POLICY_DENIED"
)

// StepFailure is the report of the first unrecovered failure of a run.
// It names the failing step and the start offset that resumes the pipeline there.
type StepFailure struct {
	// Index is the failing step's index.
	Index int `json:"index"`

	// Name is the failing step's name.
	Name string `json:"name"`

	// Program is the invocation name used in the resume command.
	Program string `json:"program"`

	// Err is the originating error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (f *StepFailure) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", f.Index, f.Name, f.Err)
}

// Unwrap returns the originating error.
func (f *StepFailure) Unwrap() error {
	return f.Err
}

// ResumeOffset returns the start offset that resumes the run at the failing step.
func (f *StepFailure) ResumeOffset() int {
	return f.Index
}

// ResumeCommand returns the literal command that resumes the run at the failing step.
func (f *StepFailure) ResumeCommand() string {
	program := f.Program
	if program == "" {
		program = DefaultProgram
	}
	return fmt.Sprintf("%s --from %d", program, f.Index)
}

// AsStepFailure extracts a StepFailure from an error chain.
func AsStepFailure(err error) (*StepFailure, bool) {
	var f *StepFailure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
