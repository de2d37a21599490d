package hostops

import (
	"context"
	"strings"
)

// Firewall rule names registered by the openssh-server and nginx packages.
const (
	RuleOpenSSH   = "OpenSSH"
	RuleNginxFull = "Nginx Full"
)

// UFW manages the uncomplicated firewall.
type UFW struct {
	runner CommandRunner
}

// NewUFW creates a ufw collaborator.
func NewUFW(runner CommandRunner) *UFW {
	return &UFW{runner: runner}
}

// Allow adds an allow rule for an application profile. Adding an existing rule is a no-op in ufw.
func (u *UFW) Allow(ctx context.Context, profile string) error {
	_, err := run(ctx, u.runner, "ufw", "allow "+profile, Command{
		Name:       "ufw",
		Args:       []string{"allow", profile},
		Privileged: true,
	})
	return err
}

// Enable turns the firewall on without an interactive confirmation.
func (u *UFW) Enable(ctx context.Context) error {
	_, err := run(ctx, u.runner, "ufw", "enable firewall", Command{
		Name:       "ufw",
		Args:       []string{"--force", "enable"},
		Privileged: true,
	})
	return err
}

// Status returns the firewall's verbose status text.
func (u *UFW) Status(ctx context.Context) (string, error) {
	res, err := run(ctx, u.runner, "ufw", "query firewall status", Command{
		Name:       "ufw",
		Args:       []string{"status", "verbose"},
		Privileged: true,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// FirewallActive reports whether ufw status output says the firewall is on.
func FirewallActive(status string) bool {
	for _, l := range strings.Split(status, "\n") {
		if f := strings.Fields(l); len(f) == 2 && f[0] == "Status:" {
			return f[1] == "active"
		}
	}
	return false
}
