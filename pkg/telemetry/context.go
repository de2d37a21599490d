package telemetry

import (
	"context"
	"errors"

	"github.com/openfroyo/froyo-deploy/pkg/engine"
)

// Telemetry bundles the logger, tracer and metrics of one invocation.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// Observers returns the run observers backed by this telemetry: metrics always, spans when an
// exporter is configured.
func (t *Telemetry) Observers() []engine.Observer {
	observers := []engine.Observer{t.Metrics}
	if t.Tracer.provider != nil {
		observers = append(observers, NewTraceObserver(t.Tracer))
	}
	return observers
}

// Shutdown flushes the tracer, writes the metrics textfile when configured and closes the log file.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if err := t.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if path := t.Config.Metrics.TextfilePath; path != "" {
		if err := t.Metrics.WriteTextfile(path); err != nil {
			errs = append(errs, err)
		}
	}
	if err := t.Logger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// WithContext adds telemetry and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// TelemetryFromContext retrieves telemetry from the context.
func TelemetryFromContext(ctx context.Context) (*Telemetry, bool) {
	t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry)
	return t, ok
}
