package config

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// scpLike matches the scp-style SSH form user@host:path.
var scpLike = regexp.MustCompile(`^([A-Za-z0-9._-]+)@([A-Za-z0-9.-]+):(.+)$`)

// RepoLocation is the parsed form of a repository URL.
type RepoLocation struct {
	// Host is the git host name.
	Host string

	// Port is the SSH port, empty for the default.
	Port string

	// User is the SSH user, "git" in practice.
	User string

	// Path is the repository path on the host, e.g. acme/shop.git.
	Path string
}

// Name returns the repository name without the .git suffix.
func (r RepoLocation) Name() string {
	return strings.TrimSuffix(path.Base(r.Path), ".git")
}

// IsSSH reports whether the location is reachable over SSH.
func (r RepoLocation) IsSSH() bool {
	return r.User != ""
}

// ParseRepoURL parses scp-style, ssh:// and http(s):// repository URLs.
func ParseRepoURL(raw string) (RepoLocation, error) {
	raw = strings.TrimSpace(raw)
	if m := scpLike.FindStringSubmatch(raw); m != nil {
		return RepoLocation{User: m[1], Host: m[2], Path: strings.TrimPrefix(m[3], "/")}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return RepoLocation{}, fmt.Errorf("invalid repository URL %q: %w", raw, err)
	}
	switch u.Scheme {
	case "ssh":
		user := "git"
		if u.User != nil && u.User.Username() != "" {
			user = u.User.Username()
		}
		return RepoLocation{User: user, Host: u.Hostname(), Port: u.Port(), Path: strings.TrimPrefix(u.Path, "/")}, nil
	case "http", "https":
		return RepoLocation{Host: u.Hostname(), Port: u.Port(), Path: strings.TrimPrefix(u.Path, "/")}, nil
	default:
		return RepoLocation{}, fmt.Errorf("invalid repository URL %q: expected user@host:path, ssh:// or https://", raw)
	}
}

var unsafeNameChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// SanitizeAppName lowercases a name and replaces characters unsafe for directory, process and site names.
func SanitizeAppName(name string) string {
	name = unsafeNameChars.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(name, "-.")
}

// DefaultDeployKeyPath is the deploy key location for an application.
func DefaultDeployKeyPath(home, appName string) string {
	return path.Join(home, ".ssh", appName+"_deploy_key")
}

// derive fills unset derived parameters from repo_url and the home directory.
func derive(values map[string]string, sources map[string]Source, home string) error {
	repo := values[ParamRepoURL]
	if repo == "" {
		return nil
	}

	loc, err := ParseRepoURL(repo)
	if err != nil {
		return err
	}

	set := func(name, v string) {
		if values[name] == "" && v != "" {
			values[name] = v
			sources[name] = SourceDerived
		}
	}

	set(ParamAppName, SanitizeAppName(loc.Name()))
	set(ParamGitHost, loc.Host)
	if home != "" && values[ParamAppName] != "" {
		set(ParamDeployKey, DefaultDeployKeyPath(home, values[ParamAppName]))
	}
	return nil
}
