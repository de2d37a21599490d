package hostops

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/froyo-deploy/pkg/engine"
)

func TestRealRunner_ExitCodeIsNotAnError(t *testing.T) {
	r := &RealRunner{}
	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "boom\n", res.Stderr)
}

func TestRealRunner_EnvAndDir(t *testing.T) {
	dir := t.TempDir()
	r := &RealRunner{}
	res, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", `printf '%s %s' "$FROYO_TEST" "$(pwd)"`},
		Dir:  dir,
		Env:  []string{"FROYO_TEST=yes"},
	})
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Contains(t, res.Stdout, "yes ")
}

func TestRealRunner_MissingProgram(t *testing.T) {
	r := &RealRunner{}
	_, err := r.Run(context.Background(), Command{Name: "froyo-definitely-not-installed"})
	assert.Error(t, err)
}

func TestRunWrapsDiagnosticVerbatim(t *testing.T) {
	f := newFakeRunner()
	f.on("apt-get install", CommandResult{ExitCode: 100, Stderr: "E: Unable to locate package nginx-ful\n"})

	err := NewApt(f).Ensure(context.Background(), "nginx-ful")
	require.Error(t, err)
	assert.True(t, engine.IsCollaboratorFailure(err))

	var ce *CommandError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 100, ce.Result.ExitCode)
	assert.Contains(t, err.Error(), "E: Unable to locate package nginx-ful")
}

func TestShellQuote(t *testing.T) {
	tests := map[string]string{
		"":            "''",
		"server.js":   "server.js",
		"lts/*":       "'lts/*'",
		"my app":      "'my app'",
		"it's":        `'it'"'"'s'`,
		"/var/www/x":  "/var/www/x",
		"--name=shop": "--name=shop",
	}
	for in, want := range tests {
		assert.Equal(t, want, shellQuote(in), "quote %q", in)
	}
}
