package hostops

import (
	"context"
	"strings"
	"sync"
)

// fakeRunner answers commands by the longest matching command-line prefix and records every call.
type fakeRunner struct {
	mu       sync.Mutex
	handlers map[string]func(Command) CommandResult
	calls    []Command
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{handlers: make(map[string]func(Command) CommandResult)}
}

func (f *fakeRunner) on(prefix string, result CommandResult) {
	f.handlers[prefix] = func(Command) CommandResult { return result }
}

func (f *fakeRunner) onFunc(prefix string, fn func(Command) CommandResult) {
	f.handlers[prefix] = fn
}

// line renders a command; shell scripts are matched on the script with the nvm prelude stripped.
func line(c Command) string {
	if c.Name == "bash" && len(c.Args) == 2 && c.Args[0] == "-c" {
		return strings.TrimPrefix(c.Args[1], `. "$NVM_DIR/nvm.sh" && `)
	}
	return c.String()
}

func (f *fakeRunner) Run(ctx context.Context, c Command) (CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)

	l := line(c)
	best := ""
	for prefix := range f.handlers {
		if strings.HasPrefix(l, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return CommandResult{}, nil
	}
	return f.handlers[best](c), nil
}

func (f *fakeRunner) lines() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = line(c)
	}
	return out
}

func (f *fakeRunner) ran(prefix string) bool {
	for _, l := range f.lines() {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}
