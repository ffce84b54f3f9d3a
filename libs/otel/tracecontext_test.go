package otelx

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestStoredTraceResumesSpan(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), sc)

	stored := CaptureTrace(ctx)
	if stored.Empty() {
		t.Fatal("expected traceparent to be captured")
	}

	restored := trace.SpanContextFromContext(stored.Resume(context.Background()))
	if restored.TraceID() != traceID || restored.SpanID() != spanID {
		t.Fatalf("span mismatch: %s/%s", restored.TraceID(), restored.SpanID())
	}
}

func TestEmptyStoredTraceKeepsContext(t *testing.T) {
	ctx := context.Background()
	stored := CaptureTrace(ctx)
	if !stored.Empty() {
		t.Fatalf("expected nothing captured without a span, got %+v", stored)
	}
	if got := stored.Resume(ctx); got != ctx {
		t.Fatal("expected the same context when no trace was stored")
	}
}
