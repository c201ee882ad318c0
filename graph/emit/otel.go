package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter converts events into OpenTelemetry spans.
//
// Each event becomes a short span named after Event.Msg, carrying the
// thread id, step, node id, and all Meta fields as attributes. If Meta
// contains an "error" key the span status is set to Error.
//
// Setup (application code):
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//	emitter := emit.NewOTelEmitter(otel.Tracer("supportgraph"))
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an emitter backed by the given tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit creates and immediately ends a span describing the event.
func (o *OTelEmitter) Emit(event Event) {
	if o.tracer == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("thread_id", event.ThreadID),
		attribute.Int("step", event.Step),
	}
	if event.NodeID != "" {
		attrs = append(attrs, attribute.String("node_id", event.NodeID))
	}
	for key, value := range event.Meta {
		attrs = append(attrs, metaAttribute(key, value))
	}

	_, span := o.tracer.Start(context.Background(), event.Msg,
		trace.WithAttributes(attrs...))

	if errVal, ok := event.Meta["error"]; ok {
		span.SetStatus(codes.Error, fmt.Sprintf("%v", errVal))
	}
	span.End()
}

// metaAttribute converts a Meta value to a typed span attribute,
// falling back to its string form.
func metaAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
