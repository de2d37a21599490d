package config

import (
	"fmt"
	"strings"
)

// Parameter names.
const (
	ParamMode             = "mode"
	ParamRepoURL          = "repo_url"
	ParamBranch           = "branch"
	ParamInstallDir       = "install_dir"
	ParamAppName          = "app_name"
	ParamBackendDir       = "backend_dir"
	ParamFrontendDir      = "frontend_dir"
	ParamFrontendBuildDir = "frontend_build_dir"
	ParamBackendEntry     = "backend_entry"
	ParamPort             = "port"
	ParamDomain           = "domain"
	ParamConfigureProxy   = "configure_proxy"
	ParamNodeVersion      = "node_version"
	ParamNodeEnv          = "node_env"
	ParamGitHost          = "git_host"
	ParamDeployKey        = "deploy_key"
	ParamPackages         = "packages"
)

// EnvPrefix prefixes the environment variable of every parameter.
const EnvPrefix = "DEPLOY_"

// Parameter describes one configuration parameter.
type Parameter struct {
	// Name is the parameter name used in files, overrides and the snapshot.
	Name string `json:"name"`

	// Default is the built-in default. Empty means the parameter has no default.
	Default string `json:"default,omitempty"`

	// Description is a one-line explanation, used for prompts and the sample file.
	Description string `json:"description"`

	// Required marks parameters that must be supplied by the operator.
	Required bool `json:"required"`

	// Prompted marks parameters the operator is asked for in interactive runs.
	Prompted bool `json:"prompted"`

	// Derived marks parameters computed from other parameters when left unset.
	Derived bool `json:"derived"`

	// List marks comma-separated list parameters.
	List bool `json:"list"`
}

// EnvVar returns the environment variable name for the parameter.
func (p Parameter) EnvVar() string {
	return EnvPrefix + strings.ToUpper(p.Name)
}

// Parameters is the full parameter table in presentation order.
var Parameters = []Parameter{
	{Name: ParamRepoURL, Required: true, Prompted: true, Description: "SSH clone URL of the application repository"},
	{Name: ParamBranch, Default: "main", Prompted: true, Description: "branch to check out"},
	{Name: ParamMode, Default: "auto", Prompted: true, Description: "frontend mode: auto, api-only or frontend-enabled"},
	{Name: ParamDomain, Default: "_", Prompted: true, Description: "nginx server_name (_ matches any host)"},
	{Name: ParamPort, Default: "5000", Prompted: true, Description: "port the backend listens on"},
	{Name: ParamInstallDir, Default: "/var/www", Description: "parent directory of the working copy"},
	{Name: ParamAppName, Derived: true, Description: "working copy directory, pm2 process name and nginx site name"},
	{Name: ParamBackendDir, Default: "backend", Description: "backend directory inside the working copy"},
	{Name: ParamFrontendDir, Default: "frontend", Description: "frontend directory inside the working copy"},
	{Name: ParamFrontendBuildDir, Default: "dist", Description: "frontend build output directory inside frontend_dir"},
	{Name: ParamBackendEntry, Default: "server.js", Description: "backend entry file inside backend_dir"},
	{Name: ParamConfigureProxy, Default: "true", Description: "install and configure nginx and ufw"},
	{Name: ParamNodeVersion, Default: "lts/*", Description: "Node.js version installed through nvm"},
	{Name: ParamNodeEnv, Default: "production", Description: "NODE_ENV for the backend process"},
	{Name: ParamGitHost, Derived: true, Description: "host the deploy key is registered with"},
	{Name: ParamDeployKey, Derived: true, Description: "path of the SSH deploy key"},
	{Name: ParamPackages, Default: "curl,git,ca-certificates,build-essential", List: true, Description: "prerequisite system packages"},
}

// LookupParameter returns the parameter definition by name.
func LookupParameter(name string) (Parameter, bool) {
	for _, p := range Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Source identifies where a parameter value came from.
type Source string

const (
	SourceDefault  Source = "default"
	SourceFile     Source = "file"
	SourceEnv      Source = "env"
	SourceOverride Source = "override"
	SourcePrompt   Source = "prompt"
	SourceDerived  Source = "derived"
)

// explicit reports whether the source was supplied by the operator.
func (s Source) explicit() bool {
	return s == SourceFile || s == SourceEnv || s == SourceOverride || s == SourcePrompt
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the parameter the error refers to.
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity"`
}

// String formats the error with its location.
func (ve ValidationError) String() string {
	var loc string
	switch {
	case ve.File != "" && ve.Line > 0:
		loc = fmt.Sprintf("%s:%d:%d: ", ve.File, ve.Line, ve.Column)
	case ve.File != "":
		loc = ve.File + ": "
	}
	if ve.Path != "" {
		return fmt.Sprintf("%s%s: %s", loc, ve.Path, ve.Message)
	}
	return loc + ve.Message
}

// ValidationErrors is a list of validation errors returned as one error.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (ve ValidationErrors) Error() string {
	parts := make([]string, len(ve))
	for i, e := range ve {
		parts[i] = e.String()
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}
