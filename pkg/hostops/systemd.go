package hostops

import (
	"context"
	"strings"
)

// Systemd manages service units.
type Systemd struct {
	runner CommandRunner
}

// NewSystemd creates a systemd collaborator.
func NewSystemd(runner CommandRunner) *Systemd {
	return &Systemd{runner: runner}
}

// IsActive reports whether a unit is running.
func (s *Systemd) IsActive(ctx context.Context, unit string) (bool, error) {
	res, err := probe(ctx, s.runner, "query unit "+unit, Command{
		Name: "systemctl",
		Args: []string{"is-active", unit},
	})
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(res.Stdout) == "active", nil
}

// EnableNow enables a unit at boot and starts it.
func (s *Systemd) EnableNow(ctx context.Context, unit string) error {
	_, err := run(ctx, s.runner, "systemd", "enable and start "+unit, Command{
		Name:       "systemctl",
		Args:       []string{"enable", "--now", unit},
		Privileged: true,
	})
	return err
}

// Reload asks a unit to reload its configuration.
func (s *Systemd) Reload(ctx context.Context, unit string) error {
	_, err := run(ctx, s.runner, "systemd", "reload "+unit, Command{
		Name:       "systemctl",
		Args:       []string{"reload", unit},
		Privileged: true,
	})
	return err
}
