package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext holds trace and span identifiers for log correlation and
// for stamping background tasks before they cross the queue boundary.
type TraceContext struct {
	// TraceID is the 32-character hex trace identifier.
	TraceID string

	// SpanID is the 16-character hex span identifier.
	SpanID string

	// Sampled indicates whether this trace is being recorded.
	Sampled bool
}

// GetTraceContext extracts the OpenTelemetry trace context from ctx.
// Returns zero values if no valid span context exists.
//
// The orchestrator uses this to stamp trace identifiers onto background
// tasks so the worker can restore continuity with StartLinkedSpan.
func GetTraceContext(ctx context.Context) TraceContext {
	if ctx == nil {
		return TraceContext{}
	}

	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return TraceContext{}
	}

	return TraceContext{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
		Sampled: sc.IsSampled(),
	}
}

// HasTraceContext returns true if ctx carries a valid span context.
func HasTraceContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	return trace.SpanFromContext(ctx).SpanContext().IsValid()
}

// StartLinkedSpan creates a span linked to a stored trace context.
//
// When a task is enqueued, its originating TraceID and SpanID travel with
// it through Redis. The worker that picks the task up calls this to start
// a fresh span carrying a link back to the original request, so trace
// tools show the full journey across the async boundary.
//
//	ctx, endSpan := telemetry.StartLinkedSpan(
//	    context.Background(),
//	    "task.process",
//	    task.TraceID,
//	    task.ParentSpanID,
//	    map[string]string{"task.id": task.ID},
//	)
//	defer endSpan()
//
// If traceID or parentSpanID are empty or invalid, a valid span is still
// created, just without the link.
func StartLinkedSpan(
	ctx context.Context,
	name string,
	traceID string,
	parentSpanID string,
	attributes map[string]string,
) (context.Context, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	return startLinked(ctx, name, traceID, parentSpanID, attributes)
}

// StartLinkedSpanWithOptions is StartLinkedSpan with an explicit span
// kind. Queue consumers should pass trace.SpanKindConsumer.
func StartLinkedSpanWithOptions(
	ctx context.Context,
	name string,
	traceID string,
	parentSpanID string,
	attributes map[string]string,
	spanKind trace.SpanKind,
) (context.Context, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	return startLinked(ctx, name, traceID, parentSpanID, attributes, trace.WithSpanKind(spanKind))
}

func startLinked(
	ctx context.Context,
	name string,
	traceID string,
	parentSpanID string,
	attributes map[string]string,
	opts ...trace.SpanStartOption,
) (context.Context, func()) {
	tracer := otel.Tracer(instrumentationName)

	if traceID != "" && parentSpanID != "" {
		tid, tidErr := trace.TraceIDFromHex(traceID)
		sid, sidErr := trace.SpanIDFromHex(parentSpanID)

		if tidErr == nil && sidErr == nil {
			parentSC := trace.NewSpanContext(trace.SpanContextConfig{
				TraceID: tid,
				SpanID:  sid,
				Remote:  true,
			})
			opts = append(opts, trace.WithLinks(trace.Link{
				SpanContext: parentSC,
				Attributes: []attribute.KeyValue{
					attribute.String("link.type", "async_task"),
				},
			}))
		}
	}

	ctx, span := tracer.Start(ctx, name, opts...)

	for k, v := range attributes {
		span.SetAttributes(attribute.String(k, v))
	}

	return ctx, func() { span.End() }
}

// AddSpanEvent adds a named event to the current span. Events mark
// meaningful points in time, like "cache_miss" or "broadened_query".
// Safe to call when no span exists in the context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// RecordSpanError records err on the current span and marks the span
// status as Error. Safe to call when ctx is nil or err is nil.
func RecordSpanError(ctx context.Context, err error) {
	if ctx == nil || err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanAttributes adds attributes to the current span. Keep values
// low-cardinality; session and task identifiers are acceptable.
func SetSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}
