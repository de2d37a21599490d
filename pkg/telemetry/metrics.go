package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openfroyo/froyo-deploy/pkg/engine"
)

// Metrics collects Prometheus metrics about deployment runs. It implements engine.Observer.
type Metrics struct {
	config MetricsConfig

	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	stepsTotal    *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	errorsByClass *prometheus.CounterVec

	lastRun        prometheus.Gauge
	lastFailedStep prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with its own registry.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{
		config: cfg,
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of deployment runs by final status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of deployment runs in seconds",
				Buckets:   buckets,
			},
		),
		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Total number of eligible steps by outcome",
			},
			[]string{"step", "outcome"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of step evaluation in seconds",
				Buckets:   buckets,
			},
			[]string{"step"},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of run failures by error class",
			},
			[]string{"class"},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
		),
		lastFailedStep: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_failed_step",
				Help:      "Index of the step the last run halted at, 0 when it succeeded",
			},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.stepsTotal,
		m.stepDuration,
		m.errorsByClass,
		m.lastRun,
		m.lastFailedStep,
	)

	return m, nil
}

// Registry returns the metrics registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RunStarted is a no-op; runs are counted when they finish.
func (m *Metrics) RunStarted(ctx context.Context, run engine.RunInfo) context.Context {
	return ctx
}

// StepFinished records the step outcome and duration.
func (m *Metrics) StepFinished(ctx context.Context, run engine.RunInfo, result engine.StepResult) {
	m.stepsTotal.WithLabelValues(result.Name, string(result.Outcome)).Inc()
	m.stepDuration.WithLabelValues(result.Name).Observe(result.Duration.Seconds())
}

// RunFinished records the run status.
func (m *Metrics) RunFinished(ctx context.Context, report *engine.RunReport) {
	m.runsTotal.WithLabelValues(string(report.Status)).Inc()
	m.runDuration.Observe(report.CompletedAt.Sub(report.StartedAt).Seconds())
	m.lastRun.Set(float64(report.CompletedAt.Unix()))

	if report.Failure == nil {
		m.lastFailedStep.Set(0)
		return
	}
	m.lastFailedStep.Set(float64(report.Failure.Index))

	class := string(engine.ClassOf(report.Failure))
	if class == "" {
		class = "unclassified"
	}
	m.errorsByClass.WithLabelValues(class).Inc()
}

// WriteTextfile writes the registry to path in the text exposition format, for the
// node_exporter textfile collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
