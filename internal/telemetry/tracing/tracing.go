// Package tracing wraps an OpenTelemetry tracer provider for the engine's
// business operations (one span per application evaluation, per datafeed
// synthesis run, per scheduler tick), grounded on
// 99souls-ariadne's engine/monitoring.OpenTelemetryTracer.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Tracer starts and annotates spans for one business operation at a time.
type Tracer struct {
	tracer      oteltrace.Tracer
	serviceName string
}

// New builds a Tracer for serviceName/environment and installs its
// provider as the process-wide default. With no exporter configured the
// provider still records spans in memory (useful for tests asserting
// span.IsRecording()); wiring a real OTLP exporter is left to the
// embedding process.
func New(serviceName, environment string) *Tracer {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("deployment.environment", environment),
		)),
	)
	otel.SetTracerProvider(tp)
	return &Tracer{tracer: otel.Tracer(serviceName), serviceName: serviceName}
}

// StartOperation starts a span for one business operation (e.g.
// "app_execution", "datafeed_synthesis", "scheduler_tick") tagged with
// attributes such as application name or asset id.
func (t *Tracer) StartOperation(ctx context.Context, operation string, attrs map[string]any) (context.Context, oteltrace.Span) {
	kv := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kv = append(kv, attribute.String(k, fmt.Sprintf("%v", v)))
	}
	return t.tracer.Start(ctx, operation, oteltrace.WithAttributes(kv...))
}

// RecordError attaches err to the span active on ctx, if any.
func (t *Tracer) RecordError(ctx context.Context, errorType string, err error) {
	span := oteltrace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetAttributes(
		attribute.String("error.type", errorType),
		attribute.String("error.message", err.Error()),
	)
}

// FinishOperation closes span, marking the operation's outcome.
func FinishOperation(span oteltrace.Span, success bool) {
	if span.IsRecording() {
		if success {
			span.SetStatus(codes.Ok, "operation completed")
		} else {
			span.SetStatus(codes.Error, "operation failed")
		}
	}
	span.End()
}
