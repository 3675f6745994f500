package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/meridianlabs/ferry"

// Tracer provides OpenTelemetry tracing for Ferry.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Ferry tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartDeliverySpan starts a new span for a delivery attempt.
func (t *Tracer) StartDeliverySpan(ctx context.Context, taskID, eventID, endpointID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "ferry.delivery",
		trace.WithAttributes(
			attribute.String("ferry.task_id", taskID),
			attribute.String("ferry.event_id", eventID),
			attribute.String("ferry.endpoint_id", endpointID),
		),
	)
}

// EndDeliverySpan ends a delivery span with result attributes.
func (t *Tracer) EndDeliverySpan(span trace.Span, statusCode, latencyMs int, err string) {
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int("ferry.latency_ms", latencyMs),
	)
	if err != "" {
		span.SetAttributes(attribute.String("ferry.error", err))
	}
	span.End()
}
