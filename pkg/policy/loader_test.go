package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/froyo-deploy/pkg/config"
)

const branchPolicy = `# Production hosts deploy from main only.
# Feature branches go to staging.
package site.branch

import rego.v1

deny contains violation if {
	input.config.branch != "main"
	violation := {
		"message": sprintf("branch '%s' is not main", [input.config.branch]),
		"severity": "error",
		"parameter": "branch",
	}
}
`

const portPolicyJSON = `{
  "name": "fixed-port",
  "description": "The backend listens on 3000",
  "severity": "warning",
  "enabled": true,
  "rego": "package site.port\n\nimport rego.v1\n\ndeny contains msg if {\n\tinput.config.port != \"3000\"\n\tmsg := \"port should be 3000\"\n}\n"
}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoaderRegoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main-only.rego")
	writeFile(t, path, branchPolicy)

	policies, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{path})
	require.NoError(t, err)
	require.Len(t, policies, 1)

	p := policies[0]
	assert.Equal(t, "main-only", p.Name)
	assert.Equal(t, "Production hosts deploy from main only. Feature branches go to staging.", p.Description)
	assert.Equal(t, SeverityWarning, p.Severity)
	assert.True(t, p.Enabled)
	assert.Equal(t, path, p.Source)
}

func TestLoaderDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main-only.rego"), branchPolicy)
	writeFile(t, filepath.Join(dir, "nested", "port.json"), portPolicyJSON)
	writeFile(t, filepath.Join(dir, "README.md"), "not a policy")
	writeFile(t, filepath.Join(dir, "broken.json"), "{")

	policies, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{dir})
	require.NoError(t, err)

	names := make([]string, 0, len(policies))
	for _, p := range policies {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{"main-only", "fixed-port"}, names)
}

func TestLoaderMissingPath(t *testing.T) {
	_, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{filepath.Join(t.TempDir(), "absent")})
	assert.Error(t, err)
}

func TestEngineLoadPoliciesEvaluatesOperatorPolicies(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main-only.json"), `{"name":"main-only","severity":"error","enabled":true,"rego":`+quote(branchPolicy)+`}`)
	writeFile(t, filepath.Join(dir, "port.json"), portPolicyJSON)

	eng := newTestEngine(t)
	require.NoError(t, eng.LoadPolicies(context.Background(), []string{dir}))

	_, err := eng.GetPolicy("fixed-port")
	require.NoError(t, err)

	snap := testSnapshot(t, map[string]string{config.ParamBranch: "feature/x", config.ParamPort: "4000"})
	result, err := eng.Evaluate(context.Background(), snap, "deploy")
	require.NoError(t, err)

	assert.False(t, result.Allowed)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, "main-only", result.Violations[0].Policy)
	assert.Equal(t, "branch", result.Violations[0].Parameter)

	var warned bool
	for _, w := range result.Warnings {
		if w.Policy == "fixed-port" {
			warned = true
		}
	}
	assert.True(t, warned, "expected the fixed-port warning")
}

func TestEngineLoadPoliciesRejectsInvalidRego(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.rego")
	writeFile(t, path, "package broken\n\ndeny contains if {")

	eng := newTestEngine(t)
	assert.Error(t, eng.LoadPolicies(context.Background(), []string{path}))
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
