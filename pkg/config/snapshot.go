package config

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/openfroyo/froyo-deploy/pkg/engine"
)

// Snapshot is the immutable parameter set of one run. It implements engine.Configuration.
type Snapshot struct {
	values  map[string]string
	sources map[string]Source
	names   []string
}

var _ engine.Configuration = (*Snapshot)(nil)

func newSnapshot(values map[string]string, sources map[string]Source) *Snapshot {
	s := &Snapshot{
		values:  make(map[string]string, len(values)),
		sources: make(map[string]Source, len(values)),
		names:   make([]string, 0, len(values)),
	}
	for k, v := range values {
		s.values[k] = v
		s.names = append(s.names, k)
		if src, ok := sources[k]; ok {
			s.sources[k] = src
		}
	}
	sort.Strings(s.names)
	return s
}

// From returns c as a Snapshot, copying it if c is some other Configuration.
func From(c engine.Configuration) *Snapshot {
	if s, ok := c.(*Snapshot); ok {
		return s
	}
	values := make(map[string]string)
	if c != nil {
		for _, name := range c.Names() {
			v, _ := c.Get(name)
			values[name] = v
		}
	}
	return newSnapshot(values, nil)
}

// Get returns the value of a named parameter and whether it is set.
func (s *Snapshot) Get(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Names returns the parameter names in sorted order.
func (s *Snapshot) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Source reports where a parameter's value came from.
func (s *Snapshot) Source(name string) Source {
	return s.sources[name]
}

// Values returns a copy of the parameter map.
func (s *Snapshot) Values() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s *Snapshot) value(name string) string {
	return s.values[name]
}

// Mode returns the declared frontend mode. An unparsable value yields auto; Load rejects it earlier.
func (s *Snapshot) Mode() engine.Mode {
	m, err := engine.ParseMode(s.value(ParamMode))
	if err != nil {
		return engine.ModeAuto
	}
	return m
}

func (s *Snapshot) RepoURL() string      { return s.value(ParamRepoURL) }
func (s *Snapshot) Branch() string       { return s.value(ParamBranch) }
func (s *Snapshot) InstallDir() string   { return s.value(ParamInstallDir) }
func (s *Snapshot) AppName() string      { return s.value(ParamAppName) }
func (s *Snapshot) BackendEntry() string { return s.value(ParamBackendEntry) }
func (s *Snapshot) Domain() string       { return s.value(ParamDomain) }
func (s *Snapshot) NodeVersion() string  { return s.value(ParamNodeVersion) }
func (s *Snapshot) NodeEnv() string      { return s.value(ParamNodeEnv) }
func (s *Snapshot) GitHost() string      { return s.value(ParamGitHost) }
func (s *Snapshot) DeployKeyPath() string {
	return s.value(ParamDeployKey)
}

// AppDir is the working copy path.
func (s *Snapshot) AppDir() string {
	return filepath.Join(s.InstallDir(), s.AppName())
}

// BackendPath is the absolute backend directory.
func (s *Snapshot) BackendPath() string {
	return filepath.Join(s.AppDir(), s.value(ParamBackendDir))
}

// FrontendPath is the absolute frontend directory.
func (s *Snapshot) FrontendPath() string {
	return filepath.Join(s.AppDir(), s.value(ParamFrontendDir))
}

// BuildOutputPath is the absolute frontend build output directory.
func (s *Snapshot) BuildOutputPath() string {
	return filepath.Join(s.FrontendPath(), s.value(ParamFrontendBuildDir))
}

// Port returns the backend port, or 0 if the value is not a number.
func (s *Snapshot) Port() int {
	p, err := strconv.Atoi(s.value(ParamPort))
	if err != nil {
		return 0
	}
	return p
}

// ConfigureProxy reports whether nginx and the firewall are managed.
func (s *Snapshot) ConfigureProxy() bool {
	b, err := parseBool(s.value(ParamConfigureProxy))
	return err == nil && b
}

// Packages returns the prerequisite package list.
func (s *Snapshot) Packages() []string {
	return splitList(s.value(ParamPackages))
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, strconv.ErrSyntax
	}
}
