// Package hostops implements the host collaborators of a deployment over a CommandRunner:
// apt packages, systemd units, the ufw firewall, git working copies, nvm and npm, nginx sites
// and pm2 processes.
//
// Collaborators never log. Failures are returned as engine collaborator_failure errors that
// carry the tool's own output verbatim.
package hostops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/openfroyo/froyo-deploy/pkg/engine"
)

// Command is one external program invocation.
type Command struct {
	// Name is the program to run.
	Name string

	// Args are the program arguments.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds extra KEY=VALUE pairs added to the inherited environment.
	Env []string

	// Privileged marks commands that need root.
	Privileged bool
}

// String renders the command line for diagnostics.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// CommandResult represents the result of executing a command.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success returns true if the command exited with code 0.
func (r CommandResult) Success() bool {
	return r.ExitCode == 0
}

// CommandRunner executes commands. A non-zero exit is reported in the result, not as an error;
// the error is reserved for commands that could not be started.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (CommandResult, error)
}

// RealRunner executes commands with os/exec.
type RealRunner struct {
	// sudo prefixes privileged commands with sudo when not running as root.
	sudo bool
}

// NewRealRunner creates a runner. Privileged commands go through sudo unless the process is root.
func NewRealRunner() *RealRunner {
	return &RealRunner{sudo: os.Geteuid() != 0}
}

// Run executes a command and returns the result.
func (r *RealRunner) Run(ctx context.Context, c Command) (CommandResult, error) {
	name, args := c.Name, c.Args
	if c.Privileged && r.sudo {
		// sudo resets the environment, so extra variables are passed through env(1).
		prefix := []string{"env"}
		prefix = append(prefix, c.Env...)
		args = append(append(prefix, name), args...)
		name = "sudo"
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, err
	}

	return result, nil
}

var _ CommandRunner = (*RealRunner)(nil)

// CommandError is a non-zero exit of an external command.
type CommandError struct {
	Command Command
	Result  CommandResult
}

// Error renders the command line, exit code and the tool's own diagnostic.
func (e *CommandError) Error() string {
	diag := strings.TrimSpace(e.Result.Stderr)
	if diag == "" {
		diag = strings.TrimSpace(e.Result.Stdout)
	}
	if diag == "" {
		return fmt.Sprintf("%s exited %d", e.Command, e.Result.ExitCode)
	}
	return fmt.Sprintf("%s exited %d: %s", e.Command, e.Result.ExitCode, diag)
}

// run executes a command and converts start failures and non-zero exits into collaborator failures.
func run(ctx context.Context, r CommandRunner, collaborator, what string, c Command) (CommandResult, error) {
	res, err := r.Run(ctx, c)
	if err != nil {
		return res, engine.NewCollaboratorFailure(collaborator, what, fmt.Errorf("%s: %w", c, err))
	}
	if !res.Success() {
		return res, engine.NewCollaboratorFailure(collaborator, what, &CommandError{Command: c, Result: res})
	}
	return res, nil
}

// probe executes a read-only command. Start failures are ambiguous state; exit codes are returned as is.
func probe(ctx context.Context, r CommandRunner, what string, c Command) (CommandResult, error) {
	res, err := r.Run(ctx, c)
	if err != nil {
		return res, engine.NewAmbiguousState(what, fmt.Errorf("%s: %w", c, err))
	}
	return res, nil
}

// shellQuote quotes s for a POSIX shell.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return !(r == '/' || r == '.' || r == '-' || r == '_' || r == '=' || r == ':' || r == '@' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
