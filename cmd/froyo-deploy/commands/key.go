package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/froyo-deploy/pkg/config"
	"github.com/openfroyo/froyo-deploy/pkg/deploy"
	"github.com/openfroyo/froyo-deploy/pkg/transports/ssh"
)

func newKeyCommand(opts *rootOptions) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "key",
		Short: "Create or show the deploy key",
		Long: `Create the SSH deploy key for the configured repository if it does not exist, and
print its public half for registration with the git host.

Registering the key before the first run avoids the pause in the source fetch step.
With --check the command also attempts an SSH handshake with the git host.`,
		Example: `  # Print the key for the repository in ./froyo-deploy.yaml
  froyo-deploy key

  # Create the key for a repository and test it
  froyo-deploy key --set repo_url=git@github.com:acme/shop.git --check`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			snap, err := opts.loadSnapshot(ctx, opts.operator())
			if err != nil {
				return usageError(err)
			}

			key, err := ssh.EnsureDeployKey(snap.DeployKeyPath(), deploy.DeployKeyComment(snap))
			if err != nil {
				return usageError(err)
			}

			out := cmd.OutOrStdout()
			verb := "Using"
			if key.Created {
				verb = "Generated"
			}
			fmt.Fprintf(out, "%s deploy key %s (%s)\n\n", verb, key.PrivateKeyPath, key.Fingerprint)
			fmt.Fprintf(out, "Register this read-only deploy key with %s:\n\n%s\n", snap.GitHost(), key.PublicKey)

			if !check {
				return nil
			}

			loc, err := config.ParseRepoURL(snap.RepoURL())
			if err != nil {
				return usageError(err)
			}
			if !loc.IsSSH() {
				fmt.Fprintf(out, "\n%s is not an SSH URL; the key is not used to fetch it\n", snap.RepoURL())
				return nil
			}
			if err := deploy.SSHProber().Probe(ctx, loc, key.PrivateKeyPath); err != nil {
				if ssh.IsTemporary(err) {
					return &exitError{code: ExitStepFailure, err: fmt.Errorf("could not reach %s, retry later: %w", loc.Host, err)}
				}
				return &exitError{code: ExitStepFailure, err: fmt.Errorf("could not authenticate to %s: %w", loc.Host, err)}
			}
			fmt.Fprintf(out, "\nAuthenticated to %s\n", loc.Host)
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "test the key against the git host")

	return cmd
}
