// Package operator implements the blocking operator interactions of a deployment:
// yes/no confirmations, free-text prompts and acknowledgements.
//
// Waits have no timeout. Interrupting the process while it waits terminates the run.
package operator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoInput is returned when an answer is required but input is disabled or exhausted.
var ErrNoInput = errors.New("operator input required but not available")

// Operator is the person running the deployment.
type Operator interface {
	// Confirm asks a yes/no question.
	Confirm(ctx context.Context, question string, defaultYes bool) (bool, error)

	// Prompt asks for a value. An empty answer selects defaultValue.
	Prompt(ctx context.Context, question, defaultValue string) (string, error)

	// WaitForAck shows a message and blocks until the operator acknowledges it.
	WaitForAck(ctx context.Context, message string) error
}

// Terminal talks to the operator over a reader and writer, normally stdin and stderr.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminal creates a terminal operator.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

// IsInteractive reports whether f is attached to a terminal.
func IsInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func (t *Terminal) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := t.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrNoInput
		}
		return "", fmt.Errorf("failed to read operator input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks until the operator answers y or n.
func (t *Terminal) Confirm(ctx context.Context, question string, defaultYes bool) (bool, error) {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}
	for {
		fmt.Fprintf(t.out, "%s %s ", question, hint)
		answer, err := t.readLine(ctx)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "":
			return defaultYes, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(t.out, "Please answer y or n.")
	}
}

// Prompt asks for a value.
func (t *Terminal) Prompt(ctx context.Context, question, defaultValue string) (string, error) {
	if defaultValue != "" {
		fmt.Fprintf(t.out, "%s [%s]: ", question, defaultValue)
	} else {
		fmt.Fprintf(t.out, "%s: ", question)
	}
	answer, err := t.readLine(ctx)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return defaultValue, nil
	}
	return answer, nil
}

// WaitForAck prints the message and waits for Enter.
func (t *Terminal) WaitForAck(ctx context.Context, message string) error {
	fmt.Fprintln(t.out, message)
	fmt.Fprint(t.out, "Press Enter to continue... ")
	_, err := t.readLine(ctx)
	return err
}

// Scripted answers from pre-supplied values. It backs --yes, --no-input and tests.
type Scripted struct {
	// AssumeYes answers every confirmation with yes and proceeds past acknowledgements.
	// When false, confirmations take their default and acknowledgements fail with ErrNoInput.
	AssumeYes bool

	// Answers maps questions to prompt answers. Unlisted prompts return their default.
	Answers map[string]string

	// Confirmations maps questions to confirmation answers, overriding AssumeYes.
	Confirmations map[string]bool

	// Asked records every question in order.
	Asked []string

	// Acknowledged records every acknowledged message.
	Acknowledged []string
}

// Confirm returns the scripted answer.
func (s *Scripted) Confirm(ctx context.Context, question string, defaultYes bool) (bool, error) {
	s.Asked = append(s.Asked, question)
	if v, ok := s.Confirmations[question]; ok {
		return v, nil
	}
	if s.AssumeYes {
		return true, nil
	}
	return defaultYes, nil
}

// Prompt returns the scripted answer or the default.
func (s *Scripted) Prompt(ctx context.Context, question, defaultValue string) (string, error) {
	s.Asked = append(s.Asked, question)
	if v, ok := s.Answers[question]; ok {
		return v, nil
	}
	return defaultValue, nil
}

// WaitForAck proceeds when AssumeYes is set.
func (s *Scripted) WaitForAck(ctx context.Context, message string) error {
	if !s.AssumeYes {
		return ErrNoInput
	}
	s.Acknowledged = append(s.Acknowledged, message)
	return nil
}
