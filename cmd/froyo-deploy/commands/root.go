package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/froyo-deploy/pkg/engine"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitStepFailure = 1
	ExitUsage       = 2
)

// DefaultJournalPath is where runs are journaled unless --journal says otherwise.
const DefaultJournalPath = "/var/lib/froyo-deploy/journal.db"

// DefaultConfigFile is read from the working directory when --config is not given.
const DefaultConfigFile = "froyo-deploy.yaml"

// Streams are the process's standard streams.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// BuildInfo is stamped in at build time.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// rootOptions holds the flags shared by the run and its subcommands.
type rootOptions struct {
	program string
	streams Streams
	build   BuildInfo

	from        int
	listSteps   bool
	configPath  string
	sets        []string
	yes         bool
	noInput     bool
	policyPaths []string

	journalPath     string
	metricsTextfile string
	traceExporter   string
	traceEndpoint   string
	logLevel        string
	logFormat       string
}

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error {
	return &exitError{code: ExitUsage, err: err}
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, build BuildInfo, program string, args []string, streams Streams) int {
	opts := &rootOptions{program: program, streams: streams, build: build}
	rootCmd := newRootCommand(opts)

	args, unknown := stripUnknownFlags(rootCmd, args)
	for _, flag := range unknown {
		fmt.Fprintf(streams.Err, "warning: ignoring unknown option %s\n", flag)
	}
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if _, isStep := engine.AsStepFailure(err); !isStep {
			fmt.Fprintf(streams.Err, "error: %v\n", exit.err)
		}
		return exit.code
	}

	// Flag and argument errors from cobra itself.
	fmt.Fprintf(streams.Err, "error: %v\n", err)
	return ExitUsage
}

func newRootCommand(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "froyo-deploy",
		Short: "Deploy a Node.js application onto this host",
		Long: `froyo-deploy provisions and redeploys a Node.js backend, with an optional built
frontend, onto the Linux host it runs on.

The deployment is a fixed pipeline of ten steps. Every step checks whether its target
state already holds and skips its action when it does, so running the pipeline again
is safe. When a step fails the run stops and prints the --from option that resumes it.`,
		Example: `  # Interactive deployment from step 1
  froyo-deploy

  # Resume at step 7 after fixing the backend's package.json
  froyo-deploy --from 7

  # Unattended redeploy with a config file
  froyo-deploy --config /etc/froyo-deploy.yaml --yes

  # Print the step table
  froyo-deploy --steps`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", opts.build.Version, opts.build.Commit, opts.build.BuildDate),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		FParseErrWhitelist: cobra.FParseErrWhitelist{
			UnknownFlags: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.listSteps {
				return printSteps(cmd.OutOrStdout())
			}
			return runDeploy(cmd.Context(), opts)
		},
	}
	rootCmd.SetIn(opts.streams.In)
	rootCmd.SetOut(opts.streams.Out)
	rootCmd.SetErr(opts.streams.Err)
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	flags := rootCmd.Flags()
	flags.IntVar(&opts.from, "from", 1, "start at step N (1-10); earlier steps are not checked")
	flags.BoolVar(&opts.listSteps, "steps", false, "print the step table and exit")
	flags.BoolVarP(&opts.yes, "yes", "y", false, "answer yes to confirmations and continue past acknowledgements")
	flags.BoolVar(&opts.noInput, "no-input", false, "never prompt; missing answers are errors")

	pflags := rootCmd.PersistentFlags()
	pflags.StringVarP(&opts.configPath, "config", "c", "", "config file (YAML or CUE); defaults to ./"+DefaultConfigFile+" when present")
	pflags.StringArrayVar(&opts.sets, "set", nil, "set a parameter (name=value), repeatable")
	pflags.StringArrayVar(&opts.policyPaths, "policy", nil, "additional policy file or directory, repeatable")
	pflags.StringVar(&opts.journalPath, "journal", DefaultJournalPath, "run journal database; empty disables journaling")
	pflags.StringVar(&opts.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file after the run")
	pflags.StringVar(&opts.traceExporter, "trace-exporter", "none", "trace exporter: none, stdout or otlp")
	pflags.StringVar(&opts.traceEndpoint, "trace-endpoint", "localhost:4317", "OTLP gRPC endpoint")
	pflags.StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level: trace, debug, info, warn or error")
	pflags.StringVar(&opts.logFormat, "log-format", "console", "log format: console or json")

	rootCmd.AddCommand(newInitCommand(opts))
	rootCmd.AddCommand(newValidateCommand(opts))
	rootCmd.AddCommand(newStepsCommand())
	rootCmd.AddCommand(newHistoryCommand(opts))
	rootCmd.AddCommand(newKeyCommand(opts))

	return rootCmd
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// overrides parses the --set values.
func (o *rootOptions) overrides() (map[string]string, error) {
	values := make(map[string]string, len(o.sets))
	for _, kv := range o.sets {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --set %q: expected name=value", kv)
		}
		values[strings.TrimSpace(name)] = value
	}
	return values, nil
}

// configFile returns the config file to read, or "" for none.
func (o *rootOptions) configFile() string {
	if o.configPath != "" {
		return o.configPath
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile
	}
	return ""
}
