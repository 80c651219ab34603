// Package telemetry wires the planner into OpenTelemetry.
//
// Provider implements core.Telemetry over the OTel SDK: spans are exported
// via OTLP gRPC when an endpoint is configured, or to stdout during local
// development. Metrics flow through the global meter with a cached
// instrument set, so recording is cheap on the hot path.
//
// The package also provides free functions (Counter, Histogram, Duration)
// for code that wants to emit metrics without carrying a Provider around,
// and StartLinkedSpan for restoring trace continuity across the task queue.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/tripsmith-ai/tripsmith/core"
)

// instrumentationName is the scope name for all tracers and meters
// created by this package.
const instrumentationName = "tripsmith-telemetry"

// Provider implements core.Telemetry with OpenTelemetry.
type Provider struct {
	tracer        trace.Tracer
	traceProvider *sdktrace.TracerProvider
	meterProvider *sdkmetric.MeterProvider
	instruments   *instrumentSet
	logger        core.Logger
}

// NewProvider creates an OpenTelemetry provider from configuration and
// installs it as the global tracer and meter provider.
//
// With an OTLP endpoint configured, traces are exported over gRPC and
// metrics through a periodic reader. Without one, traces go to stdout
// (the local development path) and metric export is skipped; recording
// calls still succeed against the no-op global meter.
func NewProvider(ctx context.Context, cfg core.TelemetryConfig, logger core.Logger) (*Provider, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if l, ok := logger.(core.ComponentAwareLogger); ok {
		logger = l.WithComponent("planner/telemetry")
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "tripsmith"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var traceExporter sdktrace.SpanExporter
	if cfg.Endpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		traceExporter, err = otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
	} else {
		traceExporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
	}

	rate := cfg.SamplingRate
	if rate <= 0 || rate > 1 {
		rate = 1.0
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	p := &Provider{
		tracer:        tp.Tracer(instrumentationName),
		traceProvider: tp,
		logger:        logger,
	}

	if cfg.MetricsEnabled && cfg.Endpoint != "" {
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		metricExporter, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		)
		otel.SetMeterProvider(mp)
		p.meterProvider = mp
	}

	// The meter is resolved through the global so instruments follow
	// whichever meter provider is installed.
	p.instruments = newInstrumentSet(otel.Meter(instrumentationName))

	logger.Info("Telemetry initialized", map[string]interface{}{
		"service":       serviceName,
		"endpoint":      cfg.Endpoint,
		"metrics":       p.meterProvider != nil,
		"sampling_rate": rate,
	})

	return p, nil
}

// StartSpan starts a new span under the provider's tracer.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric records an additive metric value with the given labels.
// Distributions (latencies, sizes) should use Histogram instead.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	if err := p.instruments.addCounter(context.Background(), name, value, attrs); err != nil {
		p.logger.Debug("Metric recording failed", map[string]interface{}{
			"metric": name,
			"error":  err.Error(),
		})
	}
}

// Shutdown flushes pending spans and metrics and releases exporter
// resources. Safe to call once during process teardown.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	if err := p.traceProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// otelSpan wraps an OpenTelemetry span to implement core.Span.
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}
