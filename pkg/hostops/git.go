package hostops

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/openfroyo/froyo-deploy/pkg/engine"
)

// SourceRef identifies the source to fetch and where to put it.
type SourceRef struct {
	// URL is the repository URL.
	URL string

	// Branch is the branch to check out.
	Branch string

	// Dir is the working copy path.
	Dir string

	// KeyPath is the SSH private key used for the fetch. Empty uses the SSH defaults.
	KeyPath string
}

// SyncAction reports what CloneOrSync did.
type SyncAction string

const (
	SyncCloned SyncAction = "cloned"
	SyncSynced SyncAction = "synced"
)

// Git manages the application working copy.
type Git struct {
	runner CommandRunner
	uid    int
	gid    int
}

// NewGit creates a git collaborator. Directories created on the way to the working copy are
// handed to the current user.
func NewGit(runner CommandRunner) *Git {
	return &Git{runner: runner, uid: os.Getuid(), gid: os.Getgid()}
}

func (g *Git) sshEnv(ref SourceRef) []string {
	if ref.KeyPath == "" {
		return nil
	}
	return []string{"GIT_SSH_COMMAND=ssh -i " + shellQuote(ref.KeyPath) +
		" -o IdentitiesOnly=yes -o StrictHostKeyChecking=accept-new"}
}

// Origin returns the origin URL of the working copy at dir.
func (g *Git) Origin(ctx context.Context, dir string) (string, error) {
	cmd := Command{Name: "git", Args: []string{"-C", dir, "remote", "get-url", "origin"}}
	res, err := probe(ctx, g.runner, "read origin of "+dir, cmd)
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", engine.NewAmbiguousState("read origin of "+dir, &CommandError{Command: cmd, Result: res})
	}
	return strings.TrimSpace(res.Stdout), nil
}

// WorkingCopy inspects dir. It returns whether a working copy exists there and whether its origin
// matches url. A non-empty directory that is not a working copy is reported as a clash.
func (g *Git) WorkingCopy(ctx context.Context, dir, url string) (exists bool, matches bool, err error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return false, false, nil
	}
	if err != nil {
		return false, false, engine.NewAmbiguousState("inspect "+dir, err)
	}
	if !info.IsDir() {
		return false, false, clash(fmt.Sprintf("%s exists and is not a directory", dir))
	}

	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		entries, rerr := os.ReadDir(dir)
		if rerr == nil && len(entries) == 0 {
			return false, false, nil
		}
		return false, false, clash(fmt.Sprintf("%s exists and is not a git working copy", dir))
	}

	origin, err := g.Origin(ctx, dir)
	if err != nil {
		return true, false, err
	}
	return true, origin == url, nil
}

func clash(msg string) error {
	return engine.NewCollaboratorFailure("git", msg+"; move it aside or choose another app_name", nil).
		WithCode(engine.ErrCodeWorkingCopyClash)
}

// CloneOrSync clones the repository into ref.Dir, or brings an existing working copy with the
// same origin to the tip of ref.Branch. Local changes in the working copy are discarded.
func (g *Git) CloneOrSync(ctx context.Context, ref SourceRef) (SyncAction, error) {
	exists, matches, err := g.WorkingCopy(ctx, ref.Dir, ref.URL)
	if err != nil {
		return "", err
	}

	if exists {
		if !matches {
			origin, _ := g.Origin(ctx, ref.Dir)
			return "", clash(fmt.Sprintf("%s is a working copy of %q, not %q", ref.Dir, origin, ref.URL))
		}
		return SyncSynced, g.sync(ctx, ref)
	}

	if err := g.ensureParent(ctx, filepath.Dir(ref.Dir)); err != nil {
		return "", err
	}

	_, err = run(ctx, g.runner, "git", "clone "+ref.URL, Command{
		Name: "git",
		Args: []string{"clone", "--branch", ref.Branch, ref.URL, ref.Dir},
		Env:  g.sshEnv(ref),
	})
	if err != nil {
		return "", err
	}
	return SyncCloned, nil
}

func (g *Git) sync(ctx context.Context, ref SourceRef) error {
	steps := [][]string{
		{"-C", ref.Dir, "fetch", "--prune", "origin", "+refs/heads/" + ref.Branch + ":refs/remotes/origin/" + ref.Branch},
		{"-C", ref.Dir, "checkout", "-f", "-B", ref.Branch, "origin/" + ref.Branch},
		{"-C", ref.Dir, "reset", "--hard", "origin/" + ref.Branch},
	}
	for _, args := range steps {
		if _, err := run(ctx, g.runner, "git", "sync "+ref.Dir, Command{Name: "git", Args: args, Env: g.sshEnv(ref)}); err != nil {
			return err
		}
	}
	return nil
}

// ensureParent creates the install directory when missing and hands it to the current user.
func (g *Git) ensureParent(ctx context.Context, dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	if _, err := run(ctx, g.runner, "filesystem", "create "+dir, Command{
		Name: "mkdir", Args: []string{"-p", dir}, Privileged: true,
	}); err != nil {
		return err
	}
	if g.uid == 0 {
		return nil
	}
	_, err := run(ctx, g.runner, "filesystem", "chown "+dir, Command{
		Name: "chown", Args: []string{fmt.Sprintf("%d:%d", g.uid, g.gid), dir}, Privileged: true,
	})
	return err
}
