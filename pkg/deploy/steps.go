package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/openfroyo/froyo-deploy/pkg/config"
	"github.com/openfroyo/froyo-deploy/pkg/engine"
	"github.com/openfroyo/froyo-deploy/pkg/hostops"
	"github.com/openfroyo/froyo-deploy/pkg/operator"
	"github.com/openfroyo/froyo-deploy/pkg/transports/ssh"
)

// Step names in pipeline order.
const (
	StepEnvironmentRefresh  = "environment refresh"
	StepPrerequisites       = "prerequisite tools present"
	StepProxyFirewall       = "reverse-proxy + firewall active"
	StepRuntime             = "managed runtime present"
	StepSupervisor          = "process supervisor present"
	StepSourceFetch         = "source fetch + branch decision"
	StepBackendDependencies = "backend dependencies installed"
	StepFrontendBuild       = "frontend built"
	StepProxySite           = "reverse-proxy site configured"
	StepBackendProcess      = "backend process (re)started"
)

// Units and packages managed by step 3.
const (
	proxyPackage    = "nginx"
	firewallPackage = "ufw"
	proxyUnit       = "nginx"
)

// Pipeline builds the ten deployment steps over the given collaborators.
type Pipeline struct {
	c Collaborators
}

// NewPipeline creates a pipeline.
func NewPipeline(c Collaborators) *Pipeline {
	if c.Detect == nil {
		c.Detect = engine.DetectFrontend
	}
	return &Pipeline{c: c}
}

// Steps returns the steps in execution order.
func (p *Pipeline) Steps() []engine.Step {
	return []engine.Step{
		{
			Index:            1,
			Name:             StepEnvironmentRefresh,
			GuardDescription: "none (always re-runs)",
			BranchDependency: "-",
			Action:           p.refresh,
		},
		{
			Index:            2,
			Name:             StepPrerequisites,
			GuardDescription: "each tool individually checked for presence",
			BranchDependency: "-",
			Guard:            p.prerequisitesPresent,
			Action:           p.installPrerequisites,
		},
		{
			Index:            3,
			Name:             StepProxyFirewall,
			GuardDescription: "packages installed, proxy service active, firewall enabled",
			BranchDependency: "-",
			Condition:        proxyEnabled,
			Guard:            p.proxyActive,
			Action:           p.setupProxyAndFirewall,
		},
		{
			Index:            4,
			Name:             StepRuntime,
			GuardDescription: "runtime manager loadable and configured version resolves",
			BranchDependency: "-",
			Guard: func(ctx context.Context, rc *engine.RunContext) (bool, error) {
				return p.c.Runtime.RuntimeInstalled(ctx, config.From(rc.Config()).NodeVersion())
			},
			Action: func(ctx context.Context, rc *engine.RunContext) error {
				return p.c.Runtime.InstallRuntime(ctx, config.From(rc.Config()).NodeVersion())
			},
		},
		{
			Index:            5,
			Name:             StepSupervisor,
			GuardDescription: "supervisor binary resolvable",
			BranchDependency: "-",
			Guard: func(ctx context.Context, rc *engine.RunContext) (bool, error) {
				return p.c.Runtime.SupervisorInstalled(ctx)
			},
			Action: func(ctx context.Context, rc *engine.RunContext) error {
				return p.c.Runtime.InstallSupervisor(ctx)
			},
		},
		{
			Index:            6,
			Name:             StepSourceFetch,
			GuardDescription: "working copy exists and matches target ref (pull instead of clone); decision resolved exactly once",
			BranchDependency: "produces DecisionState",
			Action:           p.fetchSource,
			ProducesDecision: true,
		},
		{
			Index:            7,
			Name:             StepBackendDependencies,
			GuardDescription: "backend dependency directory exists",
			BranchDependency: "-",
			Guard: func(ctx context.Context, rc *engine.RunContext) (bool, error) {
				return p.c.Dependencies.DependenciesInstalled(ctx, config.From(rc.Config()).BackendPath())
			},
			Action: func(ctx context.Context, rc *engine.RunContext) error {
				return p.c.Dependencies.EnsureDependencies(ctx, config.From(rc.Config()).BackendPath())
			},
		},
		{
			Index:            8,
			Name:             StepFrontendBuild,
			GuardDescription: "only if frontend enabled; build-output directory existing is cause to skip",
			BranchDependency: "consumes DecisionState",
			Condition:        frontendEnabled,
			Guard:            buildOutputExists,
			Action: func(ctx context.Context, rc *engine.RunContext) error {
				s := config.From(rc.Config())
				return p.c.Builder.Build(ctx, s.FrontendPath(), s.BuildOutputPath())
			},
		},
		{
			Index:            9,
			Name:             StepProxySite,
			GuardDescription: "none (regenerated and re-applied each run; identical config is a no-op)",
			BranchDependency: "consumes DecisionState to choose template shape",
			Condition:        proxyEnabled,
			Action:           p.configureSite,
		},
		{
			Index:            10,
			Name:             StepBackendProcess,
			GuardDescription: "process-identity lookup decides start vs. restart",
			BranchDependency: "-",
			Action:           p.startBackend,
		},
	}
}

func proxyEnabled(ctx context.Context, rc *engine.RunContext) (bool, string, error) {
	if config.From(rc.Config()).ConfigureProxy() {
		return true, "", nil
	}
	return false, "configure_proxy is false", nil
}

func frontendEnabled(ctx context.Context, rc *engine.RunContext) (bool, string, error) {
	d, err := rc.ResolveDecision(ctx)
	if err != nil {
		return false, "", err
	}
	if d.Branch() != engine.BranchFrontendEnabled {
		return false, "frontend branch disabled", nil
	}
	return true, "", nil
}

func buildOutputExists(ctx context.Context, rc *engine.RunContext) (bool, error) {
	info, err := os.Stat(config.From(rc.Config()).BuildOutputPath())
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func (p *Pipeline) refresh(ctx context.Context, rc *engine.RunContext) error {
	return p.c.Packages.Update(ctx)
}

func (p *Pipeline) prerequisitesPresent(ctx context.Context, rc *engine.RunContext) (bool, error) {
	for _, pkg := range config.From(rc.Config()).Packages() {
		ok, err := p.c.Packages.Installed(ctx, pkg)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (p *Pipeline) installPrerequisites(ctx context.Context, rc *engine.RunContext) error {
	for _, pkg := range config.From(rc.Config()).Packages() {
		ok, err := p.c.Packages.Installed(ctx, pkg)
		if err != nil {
			rc.Warn("could not determine whether "+pkg+" is installed", err)
		}
		if ok {
			continue
		}
		if err := p.c.Packages.Ensure(ctx, pkg); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) proxyActive(ctx context.Context, rc *engine.RunContext) (bool, error) {
	for _, pkg := range []string{proxyPackage, firewallPackage} {
		ok, err := p.c.Packages.Installed(ctx, pkg)
		if err != nil || !ok {
			return false, err
		}
	}
	ok, err := p.c.Services.IsActive(ctx, proxyUnit)
	if err != nil || !ok {
		return false, err
	}

	status, err := p.c.Firewall.Status(ctx)
	if err != nil {
		return false, err
	}
	return hostops.FirewallActive(status), nil
}

func (p *Pipeline) setupProxyAndFirewall(ctx context.Context, rc *engine.RunContext) error {
	for _, pkg := range []string{proxyPackage, firewallPackage} {
		if err := p.c.Packages.Ensure(ctx, pkg); err != nil {
			return err
		}
	}
	if err := p.c.Services.EnableNow(ctx, proxyUnit); err != nil {
		return err
	}

	// OpenSSH first so enabling the firewall never cuts the operator's session.
	for _, rule := range []string{hostops.RuleOpenSSH, hostops.RuleNginxFull} {
		if err := p.c.Firewall.Allow(ctx, rule); err != nil {
			return err
		}
	}
	if err := p.c.Firewall.Enable(ctx); err != nil {
		return err
	}

	status, err := p.c.Firewall.Status(ctx)
	if err != nil {
		rc.Warn("firewall status unavailable", err)
		return nil
	}
	rc.Note("firewall: " + firstLine(status))
	return nil
}

func (p *Pipeline) fetchSource(ctx context.Context, rc *engine.RunContext) error {
	s := config.From(rc.Config())
	if s.RepoURL() == "" {
		return engine.NewPrerequisiteMissing("repo_url is required to fetch the source")
	}

	loc, err := config.ParseRepoURL(s.RepoURL())
	if err != nil {
		return engine.NewPrerequisiteMissing(err.Error())
	}

	keyPath := ""
	if loc.IsSSH() {
		keyPath = s.DeployKeyPath()
		if err := p.ensureDeployKey(ctx, rc, s, keyPath); err != nil {
			return err
		}
		if err := p.c.Prober.Probe(ctx, loc, keyPath); err != nil {
			if ssh.IsTemporary(err) {
				rc.Warn("connectivity check could not reach "+loc.Host+", continuing", err)
			} else {
				rc.Warn("connectivity check against "+loc.Host+" failed, continuing", err)
			}
		} else {
			rc.Note("deploy key accepted by " + loc.Host)
		}
	}

	action, err := p.c.Source.CloneOrSync(ctx, hostops.SourceRef{
		URL:     s.RepoURL(),
		Branch:  s.Branch(),
		Dir:     s.AppDir(),
		KeyPath: keyPath,
	})
	if err != nil {
		return err
	}
	rc.Note(fmt.Sprintf("working copy %s %s at %s", s.AppDir(), action, s.Branch()))

	d, err := rc.ResolveDecision(ctx)
	if err != nil {
		return err
	}
	rc.Note(fmt.Sprintf("frontend detected: %t, branch: %s", d.FrontendDetected, d.Branch()))
	return nil
}

// DeployKeyComment is the comment stored with a generated deploy key.
func DeployKeyComment(s *config.Snapshot) string {
	return s.AppName() + "-deploy"
}

func (p *Pipeline) ensureDeployKey(ctx context.Context, rc *engine.RunContext, s *config.Snapshot, keyPath string) error {
	if p.c.Keys.Exists(keyPath) {
		return nil
	}

	key, err := p.c.Keys.Ensure(keyPath, DeployKeyComment(s))
	if err != nil {
		return engine.NewCollaboratorFailure("ssh-keygen", "generate deploy key", err)
	}
	rc.Note("generated deploy key " + key.PrivateKeyPath + " (" + key.Fingerprint + ")")

	msg := fmt.Sprintf("Add this read-only deploy key to %s, then continue:\n\n%s\n", s.GitHost(), key.PublicKey)
	if err := p.c.Operator.WaitForAck(ctx, msg); err != nil {
		if errors.Is(err, operator.ErrNoInput) {
			return engine.NewPrerequisiteMissing("deploy key must be registered with "+s.GitHost()+" before fetching").
				WithDetail("public_key", key.PublicKey)
		}
		return err
	}
	return nil
}

func (p *Pipeline) configureSite(ctx context.Context, rc *engine.RunContext) error {
	s := config.From(rc.Config())
	d, err := rc.ResolveDecision(ctx)
	if err != nil {
		return err
	}

	site := hostops.SiteConfig{
		Name:   s.AppName(),
		Domain: s.Domain(),
		Port:   s.Port(),
		Branch: d.Branch(),
	}
	if site.Branch == engine.BranchFrontendEnabled {
		site.StaticRoot = s.BuildOutputPath()
	}
	if err := p.c.Proxy.Apply(ctx, site); err != nil {
		return err
	}
	rc.Note(fmt.Sprintf("nginx site %s applied (%s)", site.Name, site.Branch))
	return nil
}

func (p *Pipeline) startBackend(ctx context.Context, rc *engine.RunContext) error {
	s := config.From(rc.Config())
	entry := filepath.Join(s.BackendPath(), s.BackendEntry())
	if _, err := os.Stat(entry); err != nil {
		return engine.NewPrerequisiteMissing("backend entry " + entry + " not found")
	}

	action, err := p.c.Supervisor.StartOrRestart(ctx, hostops.ProcessSpec{
		Name:  s.AppName(),
		Entry: entry,
		Dir:   s.BackendPath(),
		Env: map[string]string{
			"NODE_ENV": s.NodeEnv(),
			"PORT":     strconv.Itoa(s.Port()),
		},
	})
	if err != nil {
		return err
	}
	rc.Note(fmt.Sprintf("backend %s %s on port %d", s.AppName(), action, s.Port()))
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
