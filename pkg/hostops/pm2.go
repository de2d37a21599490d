package hostops

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/openfroyo/froyo-deploy/pkg/engine"
)

// ProcessSpec describes the supervised backend process.
type ProcessSpec struct {
	// Name is the pm2 process name.
	Name string

	// Entry is the script pm2 starts.
	Entry string

	// Dir is the process working directory.
	Dir string

	// Env is the process environment.
	Env map[string]string
}

// ProcessInfo is pm2's view of one process.
type ProcessInfo struct {
	Name   string `json:"name"`
	PID    int    `json:"pid"`
	Status string `json:"status"`
	CWD    string `json:"cwd"`
}

// ProcessAction reports what StartOrRestart did.
type ProcessAction string

const (
	ProcessStarted   ProcessAction = "started"
	ProcessRestarted ProcessAction = "restarted"
)

// PM2 manages the backend process through pm2.
type PM2 struct {
	node *Node
}

// NewPM2 creates a pm2 collaborator running pm2 with nvm loaded.
func NewPM2(node *Node) *PM2 {
	return &PM2{node: node}
}

type jlistEntry struct {
	Name  string `json:"name"`
	PID   int    `json:"pid"`
	PMEnv struct {
		Status string `json:"status"`
		CWD    string `json:"pm_cwd"`
	} `json:"pm2_env"`
}

// Describe returns the process registered under name, or nil when pm2 does not know it.
func (p *PM2) Describe(ctx context.Context, name string) (*ProcessInfo, error) {
	res, err := probe(ctx, p.node.runner, "list pm2 processes", p.node.shell("", "pm2 jlist"))
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, engine.NewAmbiguousState("list pm2 processes", &CommandError{Command: p.node.shell("", "pm2 jlist"), Result: res})
	}

	// The first call may print daemon start-up banners before the JSON.
	out := res.Stdout
	if i := strings.Index(out, "["); i >= 0 {
		out = out[i:]
	}
	var entries []jlistEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		return nil, engine.NewAmbiguousState("parse pm2 process list", err)
	}

	for _, e := range entries {
		if e.Name == name {
			return &ProcessInfo{Name: e.Name, PID: e.PID, Status: e.PMEnv.Status, CWD: e.PMEnv.CWD}, nil
		}
	}
	return nil, nil
}

func envPairs(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+env[k])
	}
	return pairs
}

// StartOrRestart restarts the named process with a refreshed environment, or starts it when pm2
// does not know it, then saves the process list so it survives a reboot. When the process list
// cannot be read, a restart is attempted and a failed restart falls back to a start.
func (p *PM2) StartOrRestart(ctx context.Context, spec ProcessSpec) (ProcessAction, error) {
	env := envPairs(spec.Env)
	start := p.node.shell(spec.Dir, fmt.Sprintf("pm2 start %s --name %s --cwd %s",
		shellQuote(spec.Entry), shellQuote(spec.Name), shellQuote(spec.Dir)), env...)
	restart := p.node.shell(spec.Dir, "pm2 restart "+shellQuote(spec.Name)+" --update-env", env...)

	var action ProcessAction
	info, err := p.Describe(ctx, spec.Name)
	switch {
	case err != nil:
		res, rerr := probe(ctx, p.node.runner, "restart "+spec.Name, restart)
		if rerr == nil && res.Success() {
			action = ProcessRestarted
			break
		}
		if _, err := run(ctx, p.node.runner, "pm2", "start "+spec.Name, start); err != nil {
			return "", err
		}
		action = ProcessStarted
	case info != nil:
		if _, err := run(ctx, p.node.runner, "pm2", "restart "+spec.Name, restart); err != nil {
			return "", err
		}
		action = ProcessRestarted
	default:
		if _, err := run(ctx, p.node.runner, "pm2", "start "+spec.Name, start); err != nil {
			return "", err
		}
		action = ProcessStarted
	}

	if _, err := run(ctx, p.node.runner, "pm2", "save process list", p.node.shell("", "pm2 save")); err != nil {
		return "", err
	}
	return action, nil
}
