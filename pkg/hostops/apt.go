package hostops

import (
	"context"
	"strings"
)

// Apt manages Debian packages.
type Apt struct {
	runner CommandRunner
}

// NewApt creates an apt collaborator.
func NewApt(runner CommandRunner) *Apt {
	return &Apt{runner: runner}
}

var aptEnv = []string{"DEBIAN_FRONTEND=noninteractive"}

// Update refreshes the package index.
func (a *Apt) Update(ctx context.Context) error {
	_, err := run(ctx, a.runner, "apt", "refresh package index", Command{
		Name:       "apt-get",
		Args:       []string{"update"},
		Env:        aptEnv,
		Privileged: true,
	})
	return err
}

// Installed reports whether a package is installed, reading dpkg's database.
func (a *Apt) Installed(ctx context.Context, name string) (bool, error) {
	res, err := probe(ctx, a.runner, "query package "+name, Command{
		Name: "dpkg-query",
		Args: []string{"-W", "-f=${db:Status-Status}", name},
	})
	if err != nil {
		return false, err
	}

	// dpkg-query exits 1 for unknown packages
	if !res.Success() {
		return false, nil
	}
	return strings.TrimSpace(res.Stdout) == "installed", nil
}

// Ensure installs a package if it is not installed.
func (a *Apt) Ensure(ctx context.Context, name string) error {
	if ok, err := a.Installed(ctx, name); err == nil && ok {
		return nil
	}
	_, err := run(ctx, a.runner, "apt", "install "+name, Command{
		Name:       "apt-get",
		Args:       []string{"install", "-y", "--no-install-recommends", name},
		Env:        aptEnv,
		Privileged: true,
	})
	return err
}
