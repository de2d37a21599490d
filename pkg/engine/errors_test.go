package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	cause := errors.New("E: Unable to locate package nginx")

	tests := []struct {
		name  string
		err   error
		class ErrorClass
	}{
		{name: "prerequisite", err: NewPrerequisiteMissing("repo_url is required"), class: ErrorClassPrerequisiteMissing},
		{name: "collaborator", err: NewCollaboratorFailure("apt", "install nginx", cause), class: ErrorClassCollaboratorFailure},
		{name: "ambiguous", err: NewAmbiguousState("probe failed", cause), class: ErrorClassAmbiguousState},
		{name: "wrapped", err: fmt.Errorf("step: %w", NewCollaboratorFailure("apt", "install", cause)), class: ErrorClassCollaboratorFailure},
		{name: "plain", err: cause, class: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassOf(tt.err); got != tt.class {
				t.Errorf("expected class %q, got %q", tt.class, got)
			}
		})
	}
}

func TestCollaboratorFailureKeepsDiagnostic(t *testing.T) {
	cause := errors.New("E: Unable to locate package nginx")
	err := NewCollaboratorFailure("apt", "install nginx", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected the cause to be reachable with errors.Is")
	}
	want := "[collaborator_failure] install nginx (collaborator=apt): E: Unable to locate package nginx"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestStepFailureResumeCommand(t *testing.T) {
	f := &StepFailure{Index: 9, Name: "reverse-proxy site configured", Err: errors.New("nginx -t failed")}
	if got := f.ResumeCommand(); got != "froyo-deploy --from 9" {
		t.Errorf("unexpected resume command: %s", got)
	}

	f.Program = "/usr/local/bin/deploy"
	if got := f.ResumeCommand(); got != "/usr/local/bin/deploy --from 9" {
		t.Errorf("unexpected resume command: %s", got)
	}

	wrapped := fmt.Errorf("run: %w", f)
	got, ok := AsStepFailure(wrapped)
	if !ok || got.Index != 9 {
		t.Fatalf("expected to extract step failure, got %v", got)
	}
}

func TestErrorIsMatchesClassAndCode(t *testing.T) {
	err := NewPrerequisiteMissing("x").WithCode(ErrCodeDecisionUnset)
	if !errors.Is(err, &Error{Class: ErrorClassPrerequisiteMissing, Code: ErrCodeDecisionUnset}) {
		t.Error("expected errors.Is to match on class and code")
	}
	if errors.Is(err, &Error{Class: ErrorClassPrerequisiteMissing, Code: ErrCodeMissingInput}) {
		t.Error("expected errors.Is not to match a different code")
	}
}
