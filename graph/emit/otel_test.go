package emit

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer(t *testing.T) (*OTelEmitter, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	return NewOTelEmitter(tp.Tracer("test")), exporter
}

func TestOTelEmitterSpans(t *testing.T) {
	emitter, exporter := newRecordingTracer(t)

	emitter.Emit(Event{
		ThreadID: "conv-1",
		Step:     3,
		NodeID:   "fetch_order",
		Msg:      "node_completed",
		Meta: map[string]interface{}{
			"next":    "reason",
			"retried": false,
			"elapsed": 1.5,
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name != "node_completed" {
		t.Errorf("span name = %q", span.Name)
	}

	attrs := attributeMap(span.Attributes)
	if attrs["thread_id"] != "conv-1" {
		t.Errorf("thread_id = %v", attrs["thread_id"])
	}
	if attrs["step"] != int64(3) {
		t.Errorf("step = %v", attrs["step"])
	}
	if attrs["node_id"] != "fetch_order" {
		t.Errorf("node_id = %v", attrs["node_id"])
	}
	if attrs["next"] != "reason" || attrs["retried"] != false || attrs["elapsed"] != 1.5 {
		t.Errorf("meta attributes = %v", attrs)
	}
	if !span.EndTime.After(span.StartTime) {
		t.Error("span was not ended")
	}
}

func TestOTelEmitterErrorStatus(t *testing.T) {
	emitter, exporter := newRecordingTracer(t)

	emitter.Emit(Event{
		ThreadID: "conv-1",
		Step:     4,
		NodeID:   "execute_action",
		Msg:      "walk_failed",
		Meta:     map[string]interface{}{"error": "order not found"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", span.Status.Code)
	}
	if span.Status.Description != "order not found" {
		t.Errorf("description = %q", span.Status.Description)
	}
}

func TestOTelEmitterNilTracer(t *testing.T) {
	emitter := NewOTelEmitter(nil)
	// Must be a no-op rather than a panic.
	emitter.Emit(Event{ThreadID: "conv-1", Msg: "walk_started"})
}

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}
