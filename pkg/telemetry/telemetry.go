// Package telemetry configures OpenTelemetry tracing. Spans are exported to
// the application log, so a run can be followed without a collector.
package telemetry

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/OFFIS-RIT/lexgraph/backend"

// LogSpanExporter writes finished spans to the debug log.
type LogSpanExporter struct{}

// ExportSpans logs one line per span with its duration, status and attributes.
func (LogSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		kv := []any{
			"trace_id", s.SpanContext().TraceID().String(),
			"span_id", s.SpanContext().SpanID().String(),
			"duration", s.EndTime().Sub(s.StartTime()).Round(time.Millisecond).String(),
			"status", s.Status().Code.String(),
		}
		if s.Status().Description != "" {
			kv = append(kv, "error", s.Status().Description)
		}
		for _, a := range s.Attributes() {
			kv = append(kv, string(a.Key), a.Value.Emit())
		}
		logger.Debug("[Trace] "+s.Name(), kv...)
	}
	return nil
}

// Shutdown is a no-op; there is nothing to flush.
func (LogSpanExporter) Shutdown(ctx context.Context) error {
	return nil
}

// NewTracerProvider creates a provider that exports every finished span
// immediately through exporter.
func NewTracerProvider(serviceName string, exporter sdktrace.SpanExporter) *sdktrace.TracerProvider {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		logger.Warn("[Trace] Failed to create resource, using default", "err", err)
		res = resource.Default()
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
}

// Init installs a log-exporting provider as the global tracer provider and
// returns its shutdown function.
func Init(serviceName string) func(context.Context) error {
	tp := NewTracerProvider(serviceName, LogSpanExporter{})
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// Tracer returns the application tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Start starts a span on the application tracer.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}
