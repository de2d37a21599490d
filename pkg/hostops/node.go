package hostops

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/openfroyo/froyo-deploy/pkg/engine"
)

// NVMInstallURL is the nvm install script.
const NVMInstallURL = "https://raw.githubusercontent.com/nvm-sh/nvm/v0.40.1/install.sh"

// Node manages the nvm-installed Node.js runtime and npm.
type Node struct {
	runner CommandRunner
	nvmDir string
}

// NewNode creates a Node collaborator for the nvm directory under home.
func NewNode(runner CommandRunner, home string) *Node {
	return &Node{runner: runner, nvmDir: filepath.Join(home, ".nvm")}
}

// NVMDir returns the nvm directory.
func (n *Node) NVMDir() string {
	return n.nvmDir
}

// shell runs script with nvm loaded.
func (n *Node) shell(dir, script string, env ...string) Command {
	return Command{
		Name: "bash",
		Args: []string{"-c", `. "$NVM_DIR/nvm.sh" && ` + script},
		Dir:  dir,
		Env:  append([]string{"NVM_DIR=" + n.nvmDir}, env...),
	}
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, engine.NewAmbiguousState("inspect "+path, err)
}

// RuntimeInstalled reports whether nvm is loadable and version resolves to an installed node.
// A leftover nvm directory from an interrupted install is not enough.
func (n *Node) RuntimeInstalled(ctx context.Context, version string) (bool, error) {
	ok, err := exists(filepath.Join(n.nvmDir, "nvm.sh"))
	if err != nil || !ok {
		return false, err
	}
	res, err := probe(ctx, n.runner, "resolve node "+version, n.shell("", "nvm which "+shellQuote(version)))
	if err != nil {
		return false, err
	}
	return res.Success(), nil
}

// InstallRuntime installs nvm when missing, then installs version and makes it the default.
func (n *Node) InstallRuntime(ctx context.Context, version string) error {
	ok, _ := exists(filepath.Join(n.nvmDir, "nvm.sh"))
	if !ok {
		if _, err := run(ctx, n.runner, "nvm", "install nvm", Command{
			Name: "bash",
			Args: []string{"-c", "curl -fsSL " + NVMInstallURL + " | bash"},
			Env:  []string{"NVM_DIR=" + n.nvmDir, "PROFILE=/dev/null"},
		}); err != nil {
			return err
		}
	}

	v := shellQuote(version)
	_, err := run(ctx, n.runner, "nvm", "install node "+version,
		n.shell("", "nvm install "+v+" && nvm alias default "+v))
	return err
}

// SupervisorInstalled reports whether pm2 resolves with nvm loaded.
func (n *Node) SupervisorInstalled(ctx context.Context) (bool, error) {
	res, err := probe(ctx, n.runner, "look up pm2", n.shell("", "command -v pm2"))
	if err != nil {
		return false, err
	}
	return res.Success(), nil
}

// InstallSupervisor installs pm2 globally.
func (n *Node) InstallSupervisor(ctx context.Context) error {
	_, err := run(ctx, n.runner, "npm", "install pm2", n.shell("", "npm install -g pm2"))
	return err
}

// DependenciesInstalled reports whether path has a node_modules directory.
func (n *Node) DependenciesInstalled(ctx context.Context, path string) (bool, error) {
	return exists(filepath.Join(path, "node_modules"))
}

// EnsureDependencies installs the dependencies of the package at path, with npm ci when a
// lockfile exists and npm install otherwise.
func (n *Node) EnsureDependencies(ctx context.Context, path string) error {
	if ok, _ := exists(filepath.Join(path, engine.ManifestName)); !ok {
		return engine.NewPrerequisiteMissing(fmt.Sprintf("no %s in %s", engine.ManifestName, path))
	}

	script := "npm install"
	for _, lock := range []string{"package-lock.json", "npm-shrinkwrap.json"} {
		if ok, _ := exists(filepath.Join(path, lock)); ok {
			script = "npm ci"
			break
		}
	}

	_, err := run(ctx, n.runner, "npm", script+" in "+path, n.shell(path, script))
	return err
}

// Build installs dependencies if needed and runs the build script. The build must leave
// outputDir behind.
func (n *Node) Build(ctx context.Context, path, outputDir string) error {
	if ok, _ := n.DependenciesInstalled(ctx, path); !ok {
		if err := n.EnsureDependencies(ctx, path); err != nil {
			return err
		}
	}

	if _, err := run(ctx, n.runner, "npm", "build "+path, n.shell(path, "npm run build")); err != nil {
		return err
	}

	ok, err := exists(outputDir)
	if err != nil {
		return err
	}
	if !ok {
		return engine.NewCollaboratorFailure("npm", "build finished without producing "+outputDir, nil)
	}
	return nil
}
