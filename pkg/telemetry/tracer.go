package telemetry

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/openfroyo/froyo-deploy/pkg/engine"
)

// Tracer wraps the OpenTelemetry tracer used for deployment runs.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	config   TracingConfig
}

// NewTracer creates a new tracer with the given configuration. Spans are exported synchronously
// as they end, so nothing is lost when the process exits right after a run.
func NewTracer(cfg TracingConfig, serviceName, serviceVersion string) (*Tracer, error) {
	if cfg.Exporter == "" || cfg.Exporter == "none" {
		return &Tracer{
			tracer: noop.NewTracerProvider().Tracer(serviceName),
			config: cfg,
		}, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "otlp":
		exporter, err = createOTLPExporter(cfg)
	case "stdout":
		exporter, err = createStdoutExporter(cfg)
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSyncer(exporter),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(serviceName),
		config:   cfg,
	}, nil
}

// createOTLPExporter creates an OTLP gRPC exporter.
func createOTLPExporter(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(grpc.WithUserAgent("froyo-deploy")),
	}

	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	if cfg.ExportTimeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(cfg.ExportTimeout))
	}

	return otlptracegrpc.New(context.Background(), opts...)
}

// createStdoutExporter creates a stdout exporter for debugging.
func createStdoutExporter(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	return stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
}

// Start begins a new span with the given name.
func (t *Tracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, opts...)
}

// Shutdown flushes and stops the provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// RecordError records an error on the span.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSuccess marks the span as successful.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// TraceObserver turns run callbacks into one "deploy.run" span with a child span per eligible
// step. Step spans carry the step's own start time and duration.
type TraceObserver struct {
	tracer *Tracer

	mu    sync.Mutex
	roots map[string]trace.Span
}

// NewTraceObserver creates an observer recording spans with t.
func NewTraceObserver(t *Tracer) *TraceObserver {
	return &TraceObserver{tracer: t, roots: make(map[string]trace.Span)}
}

// RunStarted opens the run span.
func (o *TraceObserver) RunStarted(ctx context.Context, run engine.RunInfo) context.Context {
	ctx, span := o.tracer.Start(ctx, "deploy.run",
		trace.WithTimestamp(run.StartedAt),
		trace.WithAttributes(
			attribute.String("run.id", run.RunID),
			attribute.Int("run.start_offset", run.StartOffset),
			attribute.Int("run.total_steps", run.TotalSteps),
		),
	)

	o.mu.Lock()
	o.roots[run.RunID] = span
	o.mu.Unlock()
	return ctx
}

// StepFinished records a span covering the step.
func (o *TraceObserver) StepFinished(ctx context.Context, run engine.RunInfo, result engine.StepResult) {
	start := result.StartedAt
	if start.IsZero() {
		start = run.StartedAt
	}

	_, span := o.tracer.Start(ctx, "deploy.step",
		trace.WithTimestamp(start),
		trace.WithAttributes(
			attribute.String("run.id", run.RunID),
			attribute.Int("step.index", result.Index),
			attribute.String("step.name", result.Name),
			attribute.String("step.outcome", string(result.Outcome)),
		),
	)
	if result.Reason != "" {
		span.SetAttributes(attribute.String("step.reason", result.Reason))
	}
	if result.Outcome == engine.StepOutcomeFailed {
		span.SetStatus(codes.Error, result.Error)
		span.AddEvent("exception", trace.WithAttributes(attribute.String("exception.message", result.Error)))
	} else {
		RecordSuccess(span)
	}
	span.End(trace.WithTimestamp(start.Add(result.Duration)))
}

// RunFinished closes the run span.
func (o *TraceObserver) RunFinished(ctx context.Context, report *engine.RunReport) {
	o.mu.Lock()
	span, ok := o.roots[report.RunID]
	delete(o.roots, report.RunID)
	o.mu.Unlock()
	if !ok {
		return
	}

	span.SetAttributes(attribute.String("run.status", string(report.Status)))
	if report.Decision != nil {
		span.SetAttributes(
			attribute.String("run.branch", report.Decision.Branch().String()),
			attribute.Int("run.decided_by", report.DecidedBy),
		)
	}
	if report.Failure != nil {
		span.SetAttributes(attribute.Int("run.failed_step", report.Failure.Index))
		RecordError(span, report.Failure)
	} else {
		RecordSuccess(span)
	}
	span.End(trace.WithTimestamp(report.CompletedAt))
}
