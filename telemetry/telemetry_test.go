package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/tripsmith-ai/tripsmith/core"
)

var _ core.Telemetry = (*Provider)(nil)

func TestNewProviderDevelopment(t *testing.T) {
	// Without an endpoint the provider falls back to stdout export.
	cfg := core.TelemetryConfig{
		ServiceName:  "tripsmith-test",
		SamplingRate: 1.0,
	}

	p, err := NewProvider(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if p.meterProvider != nil {
		t.Error("Meter provider should not be installed without an endpoint")
	}

	ctx, span := p.StartSpan(context.Background(), "test.operation")
	if span == nil {
		t.Fatal("StartSpan returned nil span")
	}
	if !trace.SpanFromContext(ctx).SpanContext().IsValid() {
		t.Error("StartSpan should attach a valid span to the context")
	}

	span.SetAttribute("string", "value")
	span.SetAttribute("int", 42)
	span.SetAttribute("int64", int64(42))
	span.SetAttribute("float", 1.5)
	span.SetAttribute("bool", true)
	span.SetAttribute("other", []string{"fallback"})
	span.End()

	// RecordMetric must be safe regardless of meter provider state.
	p.RecordMetric("test.metric", 1.0, map[string]string{"label": "value"})
	p.RecordMetric("test.metric", 1.0, nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestNewProviderInvalidSamplingRate(t *testing.T) {
	tests := []struct {
		name string
		rate float64
	}{
		{"zero rate", 0},
		{"negative rate", -0.5},
		{"rate above one", 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(context.Background(), core.TelemetryConfig{SamplingRate: tt.rate}, nil)
			if err != nil {
				t.Fatalf("NewProvider failed: %v", err)
			}

			// Clamped rate must still sample spans.
			ctx, span := p.StartSpan(context.Background(), "sampled.operation")
			if !trace.SpanFromContext(ctx).SpanContext().IsSampled() {
				t.Error("Expected span to be sampled with clamped rate")
			}
			span.End()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = p.Shutdown(shutdownCtx)
		})
	}
}

func TestProviderRecordError(t *testing.T) {
	p, err := NewProvider(context.Background(), core.TelemetryConfig{}, nil)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	_, span := p.StartSpan(context.Background(), "failing.operation")
	span.RecordError(context.DeadlineExceeded)
	span.End()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = p.Shutdown(shutdownCtx)
}
