package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openfroyo/froyo-deploy/pkg/config"
)

func newValidateCommand(opts *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and policies without deploying",
		Long: `Load the configuration exactly as a run would (file, DEPLOY_* environment variables
and --set overrides, without prompting) and evaluate the deployment policies against it.

Nothing on the host is changed. The command exits 0 when the configuration is usable
and 2 when it is not.`,
		Example: `  # Check ./froyo-deploy.yaml
  froyo-deploy validate

  # Check with an override and extra policies
  froyo-deploy validate --set port=8080 --policy /etc/froyo-deploy/policies`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tel, err := opts.telemetry()
			if err != nil {
				return usageError(err)
			}
			defer tel.Shutdown(ctx)
			logger := tel.Logger.Zerolog()

			overrides, err := opts.overrides()
			if err != nil {
				return usageError(err)
			}
			snap, err := config.NewLoader(
				config.WithFile(opts.configFile()),
				config.WithOverrides(overrides),
			).Load(ctx)
			if err != nil {
				return usageError(err)
			}

			result, err := evaluatePolicies(ctx, logger, opts.policyPaths, snap)
			if err != nil {
				return usageError(err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(struct {
					Config map[string]string `json:"config"`
					Policy any               `json:"policy"`
				}{snap.Values(), result}); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "PARAMETER\tVALUE\tSOURCE")
				for _, p := range config.Parameters {
					v, _ := snap.Get(p.Name)
					fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, v, snap.Source(p.Name))
				}
				if err := tw.Flush(); err != nil {
					return err
				}

				for _, v := range result.Violations {
					fmt.Fprintf(out, "error: [%s] %s\n", v.Policy, v.Message)
				}
				for _, w := range result.Warnings {
					fmt.Fprintf(out, "warning: [%s] %s\n", w.Policy, w.Message)
				}
				for _, f := range result.Failures {
					fmt.Fprintf(out, "warning: %s\n", f)
				}
			}

			if err := result.Err(); err != nil {
				return usageError(err)
			}
			if !jsonOutput {
				fmt.Fprintf(out, "Configuration valid (%d policies evaluated)\n", len(result.EvaluatedPolicies))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the snapshot and policy result as JSON")

	return cmd
}
