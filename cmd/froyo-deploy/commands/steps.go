package commands

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/openfroyo/froyo-deploy/pkg/deploy"
)

func newStepsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "Print the deployment steps",
		Long: `Print the fixed step table: index, name, the state each step checks before acting,
and the runtime branch the step depends on. Use an index with --from to resume there.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printSteps(cmd.OutOrStdout())
		},
	}
}

func printSteps(w io.Writer) error {
	return deploy.WriteStepTable(w, deploy.NewPipeline(deploy.Collaborators{}).Steps())
}
