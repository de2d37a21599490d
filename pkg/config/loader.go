package config

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/froyo-deploy/pkg/engine"
)

// Prompter asks the operator for a parameter value.
type Prompter interface {
	// Prompt blocks until the operator answers. An empty answer selects defaultValue.
	Prompt(ctx context.Context, question, defaultValue string) (string, error)
}

// Loader gathers parameters from defaults, a file, the environment, overrides and prompts.
type Loader struct {
	file      string
	overrides map[string]string
	lookupEnv func(string) (string, bool)
	prompter  Prompter
	homeDir   string
	parser    *CUEParser
	validate  *validator.Validate
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithFile sets the configuration file. An empty path disables the file layer.
func WithFile(path string) LoaderOption {
	return func(l *Loader) { l.file = path }
}

// WithOverrides sets explicit parameter values that win over the file and environment.
func WithOverrides(values map[string]string) LoaderOption {
	return func(l *Loader) {
		for k, v := range values {
			l.overrides[k] = v
		}
	}
}

// WithEnv sets the environment lookup. Nil disables the environment layer.
func WithEnv(lookup func(string) (string, bool)) LoaderOption {
	return func(l *Loader) { l.lookupEnv = lookup }
}

// WithPrompter enables interactive prompts. Nil disables them.
func WithPrompter(p Prompter) LoaderOption {
	return func(l *Loader) { l.prompter = p }
}

// WithHomeDir sets the home directory used for the default deploy key path.
func WithHomeDir(dir string) LoaderOption {
	return func(l *Loader) { l.homeDir = dir }
}

// NewLoader creates a loader reading the process environment and the user's home directory.
func NewLoader(opts ...LoaderOption) *Loader {
	home, _ := os.UserHomeDir()
	l := &Loader{
		overrides: make(map[string]string),
		lookupEnv: os.LookupEnv,
		homeDir:   home,
		parser:    NewCUEParser(),
		validate:  newValidator(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load builds and validates the snapshot. Missing required parameters are PrerequisiteMissing
// errors; invalid values are reported as ValidationErrors wrapped in an engine.Error.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	values := make(map[string]string, len(Parameters))
	sources := make(map[string]Source, len(Parameters))

	for _, p := range Parameters {
		if p.Default != "" {
			values[p.Name] = p.Default
			sources[p.Name] = SourceDefault
		}
	}

	if l.file != "" {
		fv, err := l.parser.ParseFile(l.file)
		if err != nil {
			return nil, configError(err)
		}
		for k, v := range fv.Values {
			values[k] = v
			sources[k] = SourceFile
		}
	}

	if l.lookupEnv != nil {
		for _, p := range Parameters {
			if v, ok := l.lookupEnv(p.EnvVar()); ok && v != "" {
				values[p.Name] = v
				sources[p.Name] = SourceEnv
			}
		}
	}

	for k, v := range l.overrides {
		if _, ok := LookupParameter(k); !ok {
			return nil, configError(ValidationErrors{{Path: k, Message: "unknown parameter", Severity: "error"}})
		}
		values[k] = v
		sources[k] = SourceOverride
	}

	if l.prompter != nil {
		for _, p := range Parameters {
			if !p.Prompted || sources[p.Name].explicit() {
				continue
			}
			answer, err := l.prompter.Prompt(ctx, p.Description, values[p.Name])
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", p.Name, err)
			}
			if answer = strings.TrimSpace(answer); answer != "" {
				values[p.Name] = answer
				sources[p.Name] = SourcePrompt
			}
		}
	}

	for _, p := range Parameters {
		if p.Required && strings.TrimSpace(values[p.Name]) == "" {
			return nil, engine.NewPrerequisiteMissing(
				fmt.Sprintf("%s is required (set it in the config file, %s or --set %s=...)", p.Name, p.EnvVar(), p.Name)).
				WithDetail("parameter", p.Name)
		}
	}

	if err := derive(values, sources, l.homeDir); err != nil {
		return nil, configError(ValidationErrors{{Path: ParamRepoURL, Message: err.Error(), Severity: "error"}})
	}

	if v, ok := values[ParamConfigureProxy]; ok {
		if b, err := parseBool(v); err == nil {
			values[ParamConfigureProxy] = fmt.Sprintf("%t", b)
		}
	}

	if err := l.check(values); err != nil {
		return nil, configError(err)
	}

	return newSnapshot(values, sources), nil
}

// FromValues builds a snapshot from defaults plus the given values, without file, environment
// or prompts.
func FromValues(values map[string]string, home string) (*Snapshot, error) {
	return NewLoader(WithEnv(nil), WithHomeDir(home), WithOverrides(values)).Load(context.Background())
}

// configError classifies a configuration problem as a missing prerequisite of the run.
func configError(err error) error {
	return &engine.Error{
		Class:   engine.ErrorClassPrerequisiteMissing,
		Code:    engine.ErrCodeConfigInvalid,
		Message: "configuration rejected",
		Err:     err,
	}
}

// parameterSet is the validation view of the snapshot values.
type parameterSet struct {
	Mode             string `param:"mode" validate:"required,oneof=auto api-only frontend-enabled"`
	RepoURL          string `param:"repo_url" validate:"required"`
	Branch           string `param:"branch" validate:"required"`
	InstallDir       string `param:"install_dir" validate:"required"`
	AppName          string `param:"app_name" validate:"required,excludes=/"`
	BackendDir       string `param:"backend_dir" validate:"required"`
	FrontendDir      string `param:"frontend_dir" validate:"required"`
	FrontendBuildDir string `param:"frontend_build_dir" validate:"required"`
	BackendEntry     string `param:"backend_entry" validate:"required"`
	Port             string `param:"port" validate:"required,numeric"`
	Domain           string `param:"domain" validate:"required,excludesall=;{}"`
	ConfigureProxy   string `param:"configure_proxy" validate:"required,oneof=true false"`
	NodeVersion      string `param:"node_version" validate:"required"`
	NodeEnv          string `param:"node_env" validate:"required"`
	GitHost          string `param:"git_host" validate:"required"`
	DeployKey        string `param:"deploy_key" validate:"required"`
	Packages         string `param:"packages" validate:"required"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("param")
	})
	return v
}

func (l *Loader) check(values map[string]string) error {
	ps := parameterSet{}
	rv := reflect.ValueOf(&ps).Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		rv.Field(i).SetString(values[rt.Field(i).Tag.Get("param")])
	}

	err := l.validate.Struct(ps)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("failed %q validation", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed %q validation (%s)", fe.Tag(), fe.Param())
		}
		if fe.Tag() == "required" {
			msg = "must not be empty"
		}
		out = append(out, ValidationError{Path: fe.Field(), Message: msg, Severity: "error"})
	}
	return out
}
