package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// StoredTrace is the W3C trace context saved next to work that runs later,
// such as an outbox row or a queued reminder.
type StoredTrace struct {
	Parent string
	State  string
}

// CaptureTrace records the active span of ctx. It is empty when ctx carries
// no sampled or remote span.
func CaptureTrace(ctx context.Context) StoredTrace {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return StoredTrace{Parent: carrier.Get("traceparent"), State: carrier.Get("tracestate")}
}

func (s StoredTrace) Empty() bool {
	return s.Parent == ""
}

// Resume attaches the stored span to ctx as a remote parent.
func (s StoredTrace) Resume(ctx context.Context) context.Context {
	if s.Empty() {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": s.Parent}
	if s.State != "" {
		carrier["tracestate"] = s.State
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
