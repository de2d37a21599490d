// Package telemetry provides the observability instrumentation of froyo-deploy.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry) and metrics
// (Prometheus). Tracing and metrics attach to a run as engine.Observer values and never
// write to the run's announcement log.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Tracing.Exporter = "otlp"
//	cfg.Tracing.Endpoint = "localhost:4317"
//	cfg.Metrics.TextfilePath = "/var/lib/node_exporter/froyo_deploy.prom"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	opts := []engine.Option{engine.WithLogger(tel.Logger.Zerolog())}
//	for _, obs := range tel.Observers() {
//	    opts = append(opts, engine.WithObserver(obs))
//	}
//
// # Tracing
//
// Each run produces a "deploy.run" span with one "deploy.step" child per eligible step.
// Spans are exported synchronously, so the stdout exporter prints them as steps finish.
//
// # Metrics
//
// Metrics are kept in a private registry and written once per invocation in the
// node_exporter textfile format:
//
//   - froyo_deploy_runs_total{status}
//   - froyo_deploy_run_duration_seconds
//   - froyo_deploy_steps_total{step,outcome}
//   - froyo_deploy_step_duration_seconds{step}
//   - froyo_deploy_errors_total{class}
//   - froyo_deploy_last_run_timestamp_seconds
//   - froyo_deploy_last_failed_step
package telemetry
