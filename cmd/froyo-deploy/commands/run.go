package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/openfroyo/froyo-deploy/pkg/config"
	"github.com/openfroyo/froyo-deploy/pkg/deploy"
	"github.com/openfroyo/froyo-deploy/pkg/engine"
	"github.com/openfroyo/froyo-deploy/pkg/hostops"
	"github.com/openfroyo/froyo-deploy/pkg/operator"
	"github.com/openfroyo/froyo-deploy/pkg/policy"
	"github.com/openfroyo/froyo-deploy/pkg/stores"
	"github.com/openfroyo/froyo-deploy/pkg/telemetry"
)

// journalRetention is how many runs the journal keeps.
const journalRetention = 200

// runDeploy executes the pipeline from --from.
func runDeploy(ctx context.Context, opts *rootOptions) error {
	// The offset is checked against the fixed pipeline before anything else happens.
	pipeline := deploy.NewPipeline(deploy.Collaborators{})
	probe, err := engine.NewOrchestrator(pipeline.Steps())
	if err != nil {
		return usageError(err)
	}
	if err := probe.ValidateOffset(opts.from); err != nil {
		return usageError(err)
	}

	tel, err := opts.telemetry()
	if err != nil {
		return usageError(err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			fmt.Fprintf(opts.streams.Err, "warning: telemetry shutdown: %v\n", err)
		}
	}()
	logger := tel.Logger.Zerolog()
	ctx = tel.WithContext(ctx)

	op := opts.operator()
	snap, err := opts.loadSnapshot(ctx, op)
	if err != nil {
		return usageError(err)
	}

	if err := opts.preflight(ctx, logger, snap); err != nil {
		return usageError(err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return usageError(fmt.Errorf("failed to resolve home directory: %w", err))
	}
	pipeline = deploy.NewPipeline(deploy.HostCollaborators(hostops.NewRealRunner(), home, op))

	orchOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithDecisionResolver(pipeline.Resolver()),
		engine.WithProgram(opts.program),
	}
	for _, obs := range tel.Observers() {
		orchOpts = append(orchOpts, engine.WithObserver(obs))
	}

	journal, closeJournal := opts.openJournal(ctx, logger, snap)
	if journal != nil {
		orchOpts = append(orchOpts, engine.WithObserver(journal))
		defer closeJournal()
	}

	orch, err := engine.NewOrchestrator(pipeline.Steps(), orchOpts...)
	if err != nil {
		return usageError(err)
	}

	_, runErr := orch.Run(ctx, snap, opts.from)

	if journal != nil {
		if err := journal.Err(); err != nil {
			logger.Warn().Err(err).Msg("Run journal incomplete")
		}
	}

	if runErr != nil {
		if _, ok := engine.AsStepFailure(runErr); ok {
			return &exitError{code: ExitStepFailure, err: runErr}
		}
		return usageError(runErr)
	}
	return nil
}

// telemetry builds the logging, tracing and metrics stack from the flags.
func (o *rootOptions) telemetry() (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = o.build.Version
	cfg.Logging.Level = o.logLevel
	cfg.Logging.Format = o.logFormat
	cfg.Logging.Writer = o.streams.Err
	cfg.Logging.NoColor = !isTerminal(o.streams.Err)
	cfg.Tracing.Exporter = o.traceExporter
	cfg.Tracing.Endpoint = o.traceEndpoint
	cfg.Tracing.Writer = o.streams.Err
	cfg.Metrics.TextfilePath = o.metricsTextfile
	return telemetry.NewTelemetry(cfg)
}

// operator picks how the operator is asked: scripted answers for --yes and --no-input or when
// stdin is not a terminal, the terminal otherwise.
func (o *rootOptions) operator() operator.Operator {
	if o.yes {
		return &operator.Scripted{AssumeYes: true}
	}
	if o.noInput || !isTerminal(o.streams.In) {
		return &operator.Scripted{}
	}
	return operator.NewTerminal(o.streams.In, o.streams.Err)
}

// interactive reports whether parameters may be prompted for.
func (o *rootOptions) interactive() bool {
	return !o.yes && !o.noInput && isTerminal(o.streams.In)
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && operator.IsInteractive(f)
}

// loadSnapshot gathers the configuration snapshot.
func (o *rootOptions) loadSnapshot(ctx context.Context, op operator.Operator) (*config.Snapshot, error) {
	overrides, err := o.overrides()
	if err != nil {
		return nil, err
	}

	loaderOpts := []config.LoaderOption{
		config.WithFile(o.configFile()),
		config.WithOverrides(overrides),
	}
	if o.interactive() {
		loaderOpts = append(loaderOpts, config.WithPrompter(op))
	}
	return config.NewLoader(loaderOpts...).Load(ctx)
}

// preflight evaluates the built-in and --policy policies against the snapshot.
func (o *rootOptions) preflight(ctx context.Context, logger zerolog.Logger, snap *config.Snapshot) error {
	result, err := evaluatePolicies(ctx, logger, o.policyPaths, snap)
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		logger.Warn().Str("policy", w.Policy).Str("parameter", w.Parameter).Msg(w.Message)
	}
	for _, f := range result.Failures {
		logger.Warn().Msg(f)
	}
	return result.Err()
}

func evaluatePolicies(ctx context.Context, logger zerolog.Logger, paths []string, snap *config.Snapshot) (*policy.Result, error) {
	eng, err := policy.NewEngine(logger)
	if err != nil {
		return nil, err
	}
	if len(paths) > 0 {
		if err := eng.LoadPolicies(ctx, paths); err != nil {
			return nil, err
		}
	}
	return eng.Evaluate(ctx, snap, "deploy")
}

// openJournal opens the run journal. A journal that cannot be opened is logged and skipped;
// it never stops a deployment.
func (o *rootOptions) openJournal(ctx context.Context, logger zerolog.Logger, snap *config.Snapshot) (*stores.Journal, func()) {
	if o.journalPath == "" {
		return nil, func() {}
	}

	store, err := openStore(ctx, o.journalPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", o.journalPath).Msg("Run journal disabled")
		return nil, func() {}
	}

	closeStore := func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close run journal")
		}
	}
	return stores.NewJournal(store, stores.WithConfiguration(snap), stores.WithRetention(journalRetention)), closeStore
}

func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	return store, nil
}
