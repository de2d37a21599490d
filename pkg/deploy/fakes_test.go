package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/openfroyo/froyo-deploy/pkg/config"
	"github.com/openfroyo/froyo-deploy/pkg/hostops"
	"github.com/openfroyo/froyo-deploy/pkg/operator"
	"github.com/openfroyo/froyo-deploy/pkg/transports/ssh"
)

// fakeHost is an in-memory host. Working copies and build output are real directories so the
// filesystem guards see them.
type fakeHost struct {
	packages  map[string]bool
	active    map[string]bool
	rules     []string
	ufwOn     bool
	nvm       bool
	pm2       bool
	deps      map[string]bool
	processes map[string]hostops.ProcessSpec
	keys      map[string]bool
	sites     []hostops.SiteConfig

	// withFrontend makes clones contain a react frontend.
	withFrontend bool

	probeErr  error
	statusErr error
	fail      map[string]error

	calls []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		packages:  map[string]bool{},
		active:    map[string]bool{},
		deps:      map[string]bool{},
		processes: map[string]hostops.ProcessSpec{},
		keys:      map[string]bool{},
		fail:      map[string]error{},
	}
}

func (h *fakeHost) record(call string) error {
	h.calls = append(h.calls, call)
	return h.fail[call]
}

func (h *fakeHost) reset() { h.calls = nil }

// mutations returns the calls that change host state.
func (h *fakeHost) mutations() []string {
	var out []string
	for _, c := range h.calls {
		switch c {
		case "apt update", "ensure", "enable", "allow", "ufw enable", "install runtime",
			"install supervisor", "clone", "sync", "deps", "build", "apply", "start", "restart", "keygen":
			out = append(out, c)
		}
	}
	return out
}

func (h *fakeHost) Update(ctx context.Context) error { return h.record("apt update") }

func (h *fakeHost) Installed(ctx context.Context, name string) (bool, error) {
	h.calls = append(h.calls, "installed?")
	return h.packages[name], nil
}

func (h *fakeHost) Ensure(ctx context.Context, name string) error {
	if err := h.record("ensure"); err != nil {
		return err
	}
	h.packages[name] = true
	return nil
}

func (h *fakeHost) IsActive(ctx context.Context, unit string) (bool, error) {
	return h.active[unit], nil
}

func (h *fakeHost) EnableNow(ctx context.Context, unit string) error {
	if err := h.record("enable"); err != nil {
		return err
	}
	h.active[unit] = true
	return nil
}

func (h *fakeHost) Allow(ctx context.Context, profile string) error {
	h.rules = append(h.rules, profile)
	return h.record("allow")
}

func (h *fakeHost) Enable(ctx context.Context) error {
	if err := h.record("ufw enable"); err != nil {
		return err
	}
	h.ufwOn = true
	return nil
}

func (h *fakeHost) Status(ctx context.Context) (string, error) {
	if h.statusErr != nil {
		return "", h.statusErr
	}
	if !h.ufwOn {
		return "Status: inactive", nil
	}
	return "Status: active\nTo Action From", nil
}

func (h *fakeHost) RuntimeInstalled(ctx context.Context, version string) (bool, error) {
	return h.nvm, nil
}

func (h *fakeHost) InstallRuntime(ctx context.Context, version string) error {
	if err := h.record("install runtime"); err != nil {
		return err
	}
	h.nvm = true
	return nil
}

func (h *fakeHost) SupervisorInstalled(ctx context.Context) (bool, error) { return h.pm2, nil }

func (h *fakeHost) InstallSupervisor(ctx context.Context) error {
	if err := h.record("install supervisor"); err != nil {
		return err
	}
	h.pm2 = true
	return nil
}

func (h *fakeHost) CloneOrSync(ctx context.Context, ref hostops.SourceRef) (hostops.SyncAction, error) {
	if _, err := os.Stat(ref.Dir); err == nil {
		return hostops.SyncSynced, h.record("sync")
	}
	if err := h.record("clone"); err != nil {
		return "", err
	}
	files := map[string]string{"backend/server.js": "require('express')\n", "backend/package.json": "{}"}
	if h.withFrontend {
		files["frontend/package.json"] = `{"dependencies":{"react":"^18.3.1"}}`
	}
	for name, content := range files {
		path := filepath.Join(ref.Dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return "", err
		}
	}
	return hostops.SyncCloned, nil
}

func (h *fakeHost) DependenciesInstalled(ctx context.Context, path string) (bool, error) {
	return h.deps[path], nil
}

func (h *fakeHost) EnsureDependencies(ctx context.Context, path string) error {
	if err := h.record("deps"); err != nil {
		return err
	}
	h.deps[path] = true
	return nil
}

func (h *fakeHost) Build(ctx context.Context, path, outputDir string) error {
	if err := h.record("build"); err != nil {
		return err
	}
	return os.MkdirAll(outputDir, 0o755)
}

func (h *fakeHost) Apply(ctx context.Context, cfg hostops.SiteConfig) error {
	if err := h.record("apply"); err != nil {
		return err
	}
	h.sites = append(h.sites, cfg)
	return nil
}

func (h *fakeHost) StartOrRestart(ctx context.Context, spec hostops.ProcessSpec) (hostops.ProcessAction, error) {
	if _, ok := h.processes[spec.Name]; ok {
		h.processes[spec.Name] = spec
		return hostops.ProcessRestarted, h.record("restart")
	}
	if err := h.record("start"); err != nil {
		return "", err
	}
	h.processes[spec.Name] = spec
	return hostops.ProcessStarted, nil
}

// fakeKeys is the key manager view of a fakeHost.
type fakeKeys struct{ h *fakeHost }

func (k fakeKeys) Exists(path string) bool { return k.h.keys[path] }

func (k fakeKeys) Ensure(path, comment string) (*ssh.DeployKey, error) {
	h := k.h
	if err := h.record("keygen"); err != nil {
		return nil, err
	}
	h.keys[path] = true
	return &ssh.DeployKey{
		PrivateKeyPath: path,
		PublicKeyPath:  path + ".pub",
		PublicKey:      "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIFake " + comment,
		Fingerprint:    "SHA256:fake",
		Created:        true,
	}, nil
}

func (h *fakeHost) Probe(ctx context.Context, loc config.RepoLocation, keyPath string) error {
	h.calls = append(h.calls, "probe")
	return h.probeErr
}

// collaborators wires h into every role.
func (h *fakeHost) collaborators(op operator.Operator) Collaborators {
	return Collaborators{
		Packages:     h,
		Services:     h,
		Firewall:     h,
		Runtime:      h,
		Source:       h,
		Dependencies: h,
		Builder:      h,
		Proxy:        h,
		Supervisor:   h,
		Keys:         fakeKeys{h},
		Prober:       h,
		Operator:     op,
	}
}

var errFake = errors.New("fake failure")
