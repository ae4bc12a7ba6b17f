package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	return &Tracer{tracer: tp.Tracer("monapps-test"), serviceName: "monapps-test"}, exporter
}

func TestStartOperationRecordsAttributesAndFinishSetsOkStatus(t *testing.T) {
	tr, exporter := newTestTracer(t)
	_, span := tr.StartOperation(context.Background(), "app_execution", map[string]any{"application": "monitoring"})
	FinishOperation(span, true)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected one exported span, got %d", len(spans))
	}
	got := spans[0]
	if got.Name != "app_execution" {
		t.Fatalf("span name = %q, want app_execution", got.Name)
	}
	if got.Status.Code != codes.Ok {
		t.Fatalf("status code = %v, want Ok", got.Status.Code)
	}
	found := false
	for _, a := range got.Attributes {
		if string(a.Key) == "application" && a.Value.AsString() == "monitoring" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an application=monitoring attribute, got %+v", got.Attributes)
	}
}

func TestRecordErrorAttachesErrorAttributesAndEvent(t *testing.T) {
	tr, exporter := newTestTracer(t)
	ctx, span := tr.StartOperation(context.Background(), "datafeed_synthesis", nil)
	tr.RecordError(ctx, "restoration_batch_overflow", errors.New("too many doublings"))
	FinishOperation(span, false)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected one exported span, got %d", len(spans))
	}
	got := spans[0]
	if got.Status.Code != codes.Error {
		t.Fatalf("status code = %v, want Error", got.Status.Code)
	}
	if len(got.Events) != 1 || got.Events[0].Name != "exception" {
		t.Fatalf("expected one exception event, got %+v", got.Events)
	}
}
