package hostops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/froyo-deploy/pkg/engine"
)

const repoURL = "git@github.com:acme/shop.git"

func workingCopy(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "shop")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	return dir
}

func TestGit_ClonesWhenMissing(t *testing.T) {
	f := newFakeRunner()
	g := &Git{runner: f}
	dir := filepath.Join(t.TempDir(), "shop")

	action, err := g.CloneOrSync(context.Background(), SourceRef{URL: repoURL, Branch: "main", Dir: dir, KeyPath: "/root/.ssh/shop_deploy_key"})
	require.NoError(t, err)
	assert.Equal(t, SyncCloned, action)
	assert.True(t, f.ran("git clone --branch main "+repoURL+" "+dir))

	clone := f.calls[len(f.calls)-1]
	require.Len(t, clone.Env, 1)
	assert.Contains(t, clone.Env[0], "ssh -i /root/.ssh/shop_deploy_key -o IdentitiesOnly=yes")
	assert.False(t, f.ran("mkdir"), "an existing install dir must not be recreated")
}

func TestGit_SyncsMatchingWorkingCopy(t *testing.T) {
	f := newFakeRunner()
	f.on("git -C", CommandResult{})
	dir := workingCopy(t)
	f.on("git -C "+dir+" remote get-url origin", CommandResult{Stdout: repoURL + "\n"})

	action, err := (&Git{runner: f}).CloneOrSync(context.Background(), SourceRef{URL: repoURL, Branch: "main", Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, SyncSynced, action)
	assert.False(t, f.ran("git clone"))
	assert.True(t, f.ran("git -C "+dir+" reset --hard origin/main"))
}

func TestGit_RefusesForeignWorkingCopy(t *testing.T) {
	f := newFakeRunner()
	dir := workingCopy(t)
	f.on("git -C "+dir+" remote get-url origin", CommandResult{Stdout: "git@github.com:other/app.git\n"})

	_, err := (&Git{runner: f}).CloneOrSync(context.Background(), SourceRef{URL: repoURL, Branch: "main", Dir: dir})
	require.Error(t, err)
	assert.ErrorIs(t, err, &engine.Error{Class: engine.ErrorClassCollaboratorFailure, Code: engine.ErrCodeWorkingCopyClash})
	assert.False(t, f.ran("git clone"))
	assert.False(t, f.ran("git -C "+dir+" fetch"))
}

func TestGit_RefusesNonEmptyPlainDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shop")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("hi"), 0o644))

	_, err := (&Git{runner: newFakeRunner()}).CloneOrSync(context.Background(), SourceRef{URL: repoURL, Branch: "main", Dir: dir})
	assert.ErrorIs(t, err, &engine.Error{Class: engine.ErrorClassCollaboratorFailure, Code: engine.ErrCodeWorkingCopyClash})
}

func TestGit_CreatesMissingInstallDir(t *testing.T) {
	f := newFakeRunner()
	parent := filepath.Join(t.TempDir(), "www")
	g := &Git{runner: f, uid: 1000, gid: 1000}

	_, err := g.CloneOrSync(context.Background(), SourceRef{URL: repoURL, Branch: "main", Dir: filepath.Join(parent, "shop")})
	require.NoError(t, err)
	assert.True(t, f.ran("mkdir -p "+parent))
	assert.True(t, f.ran("chown 1000:1000 "+parent))
}
