// Package deploy assembles the ten-step deployment pipeline of a Node.js application onto the
// local host: packages, reverse proxy and firewall, runtime, process supervisor, source,
// dependencies, frontend build, proxy site and backend process.
package deploy

import (
	"context"
	"fmt"
	"strconv"

	"github.com/openfroyo/froyo-deploy/pkg/config"
	"github.com/openfroyo/froyo-deploy/pkg/hostops"
	"github.com/openfroyo/froyo-deploy/pkg/operator"
	"github.com/openfroyo/froyo-deploy/pkg/transports/ssh"
)

// PackageInstaller manages system packages.
type PackageInstaller interface {
	Update(ctx context.Context) error
	Installed(ctx context.Context, name string) (bool, error)
	Ensure(ctx context.Context, name string) error
}

// ServiceManager manages system services.
type ServiceManager interface {
	IsActive(ctx context.Context, unit string) (bool, error)
	EnableNow(ctx context.Context, unit string) error
}

// Firewall manages the host firewall.
type Firewall interface {
	Allow(ctx context.Context, profile string) error
	Enable(ctx context.Context) error
	Status(ctx context.Context) (string, error)
}

// RuntimeManager manages the Node.js runtime and the process supervisor installation.
type RuntimeManager interface {
	RuntimeInstalled(ctx context.Context, version string) (bool, error)
	InstallRuntime(ctx context.Context, version string) error
	SupervisorInstalled(ctx context.Context) (bool, error)
	InstallSupervisor(ctx context.Context) error
}

// SourceControl fetches the application source.
type SourceControl interface {
	CloneOrSync(ctx context.Context, ref hostops.SourceRef) (hostops.SyncAction, error)
}

// DependencyInstaller installs package dependencies.
type DependencyInstaller interface {
	DependenciesInstalled(ctx context.Context, path string) (bool, error)
	EnsureDependencies(ctx context.Context, path string) error
}

// Builder builds the frontend.
type Builder interface {
	Build(ctx context.Context, path, outputDir string) error
}

// ReverseProxy installs a site. Apply must validate the configuration before activating it.
type ReverseProxy interface {
	Apply(ctx context.Context, cfg hostops.SiteConfig) error
}

// ProcessSupervisor runs the backend process.
type ProcessSupervisor interface {
	StartOrRestart(ctx context.Context, spec hostops.ProcessSpec) (hostops.ProcessAction, error)
}

// KeyManager owns the deploy key.
type KeyManager interface {
	Exists(path string) bool
	Ensure(path, comment string) (*ssh.DeployKey, error)
}

// ConnectivityProber checks that the git host accepts the deploy key.
type ConnectivityProber interface {
	Probe(ctx context.Context, loc config.RepoLocation, keyPath string) error
}

// FrontendDetector reports whether dir holds a frontend.
type FrontendDetector func(dir string) (bool, error)

// Collaborators is everything the pipeline talks to.
type Collaborators struct {
	Packages     PackageInstaller
	Services     ServiceManager
	Firewall     Firewall
	Runtime      RuntimeManager
	Source       SourceControl
	Dependencies DependencyInstaller
	Builder      Builder
	Proxy        ReverseProxy
	Supervisor   ProcessSupervisor
	Keys         KeyManager
	Prober       ConnectivityProber
	Operator     operator.Operator
	Detect       FrontendDetector
}

// HostCollaborators wires the hostops and ssh implementations for the local host.
func HostCollaborators(runner hostops.CommandRunner, home string, op operator.Operator) Collaborators {
	node := hostops.NewNode(runner, home)
	systemd := hostops.NewSystemd(runner)
	return Collaborators{
		Packages:     hostops.NewApt(runner),
		Services:     systemd,
		Firewall:     hostops.NewUFW(runner),
		Runtime:      node,
		Source:       hostops.NewGit(runner),
		Dependencies: node,
		Builder:      node,
		Proxy:        hostops.NewNginx(runner, systemd),
		Supervisor:   hostops.NewPM2(node),
		Keys:         sshKeys{},
		Prober:       sshProber{},
		Operator:     op,
	}
}

// SSHProber returns the prober that checks a deploy key with an SSH handshake.
func SSHProber() ConnectivityProber {
	return sshProber{}
}

type sshKeys struct{}

func (sshKeys) Exists(path string) bool { return ssh.DeployKeyExists(path) }

func (sshKeys) Ensure(path, comment string) (*ssh.DeployKey, error) {
	return ssh.EnsureDeployKey(path, comment)
}

type sshProber struct{}

func (sshProber) Probe(ctx context.Context, loc config.RepoLocation, keyPath string) error {
	cfg := ssh.DefaultConfig(loc.Host, keyPath)
	if loc.User != "" {
		cfg.User = loc.User
	}
	if loc.Port != "" {
		port, err := strconv.Atoi(loc.Port)
		if err != nil {
			return fmt.Errorf("invalid ssh port %q: %w", loc.Port, err)
		}
		cfg.Port = port
	}
	_, err := ssh.Probe(ctx, cfg)
	return err
}
