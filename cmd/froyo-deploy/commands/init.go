package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/openfroyo/froyo-deploy/pkg/config"
)

func newInitCommand(opts *rootOptions) *cobra.Command {
	var (
		repoURL string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a sample configuration file",
		Long: `Write a commented configuration file listing every parameter with its default.

The file is written to ./` + DefaultConfigFile + ` unless a path is given, and is picked up
automatically by runs started in the same directory.`,
		Example: `  # Write ./froyo-deploy.yaml for a repository
  froyo-deploy init --repo git@github.com:acme/shop.git

  # Write to a custom path, replacing an existing file
  froyo-deploy init /etc/froyo-deploy.yaml --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := DefaultConfigFile
			if len(args) > 0 {
				path = args[0]
			}

			if !force {
				if _, err := os.Stat(path); err == nil {
					return usageError(fmt.Errorf("%s already exists (use --force to replace it)", path))
				} else if !errors.Is(err, fs.ErrNotExist) {
					return usageError(err)
				}
			}

			data, err := config.SampleYAML(repoURL)
			if err != nil {
				return usageError(err)
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return usageError(fmt.Errorf("failed to write %s: %w", path, err))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			if repoURL == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Set repo_url before running froyo-deploy.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repoURL, "repo", "", "repository URL to fill in")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing file")

	return cmd
}
