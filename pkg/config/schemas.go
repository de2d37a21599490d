package config

import (
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema(DeploySchema, builtinDeploySchema); err != nil {
		panic(err)
	}

	return sr
}

// DeploySchema is the name of the built-in deployment file schema.
const DeploySchema = "deploy"

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Definition returns the #Deploy definition of the deploy schema.
func (sr *SchemaRegistry) Definition() cue.Value {
	schema, _ := sr.GetSchema(DeploySchema)
	return schema.LookupPath(cue.ParsePath("#Deploy"))
}

// Context returns the CUE context the schemas were compiled in.
func (sr *SchemaRegistry) Context() *cue.Context {
	return sr.ctx
}

// ValidateAgainstSchema validates data against the deploy definition.
func (sr *SchemaRegistry) ValidateAgainstSchema(data interface{}) error {
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := sr.Definition().Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinDeploySchema = `
// Deployment file schema. Definitions are closed, so unknown keys are rejected.
#Deploy: {
	mode?:               "auto" | "api-only" | "frontend-enabled"
	repo_url?:           string & =~"^(ssh://|https?://|[A-Za-z0-9._-]+@)"
	branch?:             string & !=""
	install_dir?:        string & =~"^/"
	app_name?:           string & =~"^[A-Za-z0-9._-]+$"
	backend_dir?:        string & !=""
	frontend_dir?:       string & !=""
	frontend_build_dir?: string & !=""
	backend_entry?:      string & !=""
	port?:               int & >=1 & <=65535
	domain?:             string & !=""
	configure_proxy?:    bool
	node_version?:       string & !=""
	node_env?:           string & !=""
	git_host?:           string & !=""
	deploy_key?:         string & !=""
	packages?:           [...string & =~"^[a-z0-9][a-z0-9+.-]*$"]
}
`
