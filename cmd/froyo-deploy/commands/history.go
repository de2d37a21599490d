package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/froyo-deploy/pkg/stores"
)

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show journaled runs",
		Long: `List the runs recorded in the run journal, newest first, or show the step
outcomes of one run.`,
		Example: `  # Last 20 runs
  froyo-deploy history

  # Steps of one run
  froyo-deploy history 3f2c9a4e-0b1d-4c55-9d7e-2f0c1b7a9e10`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if opts.journalPath == "" {
				return usageError(errors.New("journaling is disabled (--journal is empty)"))
			}
			if _, err := os.Stat(opts.journalPath); errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintf(cmd.OutOrStdout(), "No runs recorded in %s\n", opts.journalPath)
				return nil
			}

			store, err := openStore(ctx, opts.journalPath)
			if err != nil {
				return usageError(err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := store.GetRun(ctx, args[0])
				if err != nil {
					return usageError(err)
				}
				events, err := store.ListStepEvents(ctx, run.ID)
				if err != nil {
					return usageError(err)
				}
				if jsonOutput {
					return writeJSON(out, struct {
						Run   *stores.Run          `json:"run"`
						Steps []*stores.StepEvent `json:"steps"`
					}{run, events})
				}
				return writeRunDetail(out, run, events)
			}

			runs, err := store.ListRuns(ctx, limit, 0)
			if err != nil {
				return usageError(err)
			}
			if jsonOutput {
				return writeJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintf(out, "No runs recorded in %s\n", opts.journalPath)
				return nil
			}
			return writeRunTable(out, runs)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")

	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeRunTable(w io.Writer, runs []*stores.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tFROM\tSTATUS\tFAILED STEP\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.StartOffset, r.Status,
			optionalInt(r.FailedStep), runDuration(r))
	}
	return tw.Flush()
}

func writeRunDetail(w io.Writer, run *stores.Run, events []*stores.StepEvent) error {
	fmt.Fprintf(w, "Run %s\n", run.ID)
	fmt.Fprintf(w, "  started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "  status:   %s\n", run.Status)
	fmt.Fprintf(w, "  from:     step %d of %d\n", run.StartOffset, run.TotalSteps)
	if run.FailedStep != nil {
		fmt.Fprintf(w, "  resume:   %s --from %d\n", run.Program, *run.FailedStep)
	}
	if run.Error != nil {
		fmt.Fprintf(w, "  error:    %s\n", *run.Error)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTEP\tOUTCOME\tDURATION\tMESSAGE")
	for _, e := range events {
		msg := ""
		if e.Message != nil {
			msg = *e.Message
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.StepIndex, e.StepName, e.Outcome,
			(time.Duration(e.DurationMS) * time.Millisecond).String(), msg)
	}
	return tw.Flush()
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func runDuration(r *stores.Run) string {
	if r.CompletedAt == nil {
		return "-"
	}
	return r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
}
