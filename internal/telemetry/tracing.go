// Package telemetry provides optional OpenTelemetry tracing and a Prometheus
// textfile of run metrics.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/sqleval/sqleval"

// TraceConfig configures span export.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	// ProjectID is attached to every span as a resource attribute.
	ProjectID string
	// Endpoint is the OTLP gRPC collector address. Empty disables export.
	Endpoint string
	// APIKey is sent as a bearer token to the collector when set.
	APIKey   string
	Insecure bool
}

// Tracer starts spans for runs, cases and metrics.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer returns a tracer and its shutdown function. Without an endpoint
// spans go to the global no-op provider.
func NewTracer(ctx context.Context, cfg TraceConfig) (*Tracer, func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(tracerName)}, func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if cfg.APIKey != "" {
		opts = append(opts, otlptracegrpc.WithHeaders(map[string]string{"authorization": "Bearer " + cfg.APIKey}))
	}
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, nil, fmt.Errorf("create otlp exporter: %w", err)
	}
	t := newTracer(cfg, sdktrace.WithBatcher(exporter))
	return t, t.provider.Shutdown, nil
}

// NewTracerWithExporter builds a tracer that exports synchronously to exp.
func NewTracerWithExporter(cfg TraceConfig, exp sdktrace.SpanExporter) *Tracer {
	return newTracer(cfg, sdktrace.WithSyncer(exp))
}

func newTracer(cfg TraceConfig, export sdktrace.TracerProviderOption) *Tracer {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "sqleval"
	}
	attrs := []attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	}
	if cfg.ProjectID != "" {
		attrs = append(attrs, attribute.String("sqleval.project_id", cfg.ProjectID))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		res = resource.Default()
	}
	provider := sdktrace.NewTracerProvider(
		export,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	return &Tracer{provider: provider, tracer: provider.Tracer(tracerName)}
}

// Start opens a span. A nil Tracer returns a non-recording span.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError marks span as failed.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
