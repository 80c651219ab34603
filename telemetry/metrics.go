package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// instrumentSet caches metric instruments so repeated recordings do not
// pay instrument creation on every call.
type instrumentSet struct {
	meter      metric.Meter
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
	gauges     map[string]metric.Float64Gauge
	mu         sync.RWMutex
}

func newInstrumentSet(meter metric.Meter) *instrumentSet {
	return &instrumentSet{
		meter:      meter,
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
		gauges:     make(map[string]metric.Float64Gauge),
	}
}

func (s *instrumentSet) addCounter(ctx context.Context, name string, value float64, attrs []attribute.KeyValue) error {
	s.mu.RLock()
	counter, exists := s.counters[name]
	s.mu.RUnlock()

	if !exists {
		s.mu.Lock()
		// Double-check after acquiring write lock
		if counter, exists = s.counters[name]; !exists {
			var err error
			counter, err = s.meter.Float64Counter(name)
			if err != nil {
				s.mu.Unlock()
				return fmt.Errorf("failed to create counter %s: %w", name, err)
			}
			s.counters[name] = counter
		}
		s.mu.Unlock()
	}

	counter.Add(ctx, value, metric.WithAttributes(attrs...))
	return nil
}

func (s *instrumentSet) recordHistogram(ctx context.Context, name string, value float64, attrs []attribute.KeyValue) error {
	s.mu.RLock()
	histogram, exists := s.histograms[name]
	s.mu.RUnlock()

	if !exists {
		s.mu.Lock()
		if histogram, exists = s.histograms[name]; !exists {
			var err error
			histogram, err = s.meter.Float64Histogram(name)
			if err != nil {
				s.mu.Unlock()
				return fmt.Errorf("failed to create histogram %s: %w", name, err)
			}
			s.histograms[name] = histogram
		}
		s.mu.Unlock()
	}

	histogram.Record(ctx, value, metric.WithAttributes(attrs...))
	return nil
}

func (s *instrumentSet) recordGauge(ctx context.Context, name string, value float64, attrs []attribute.KeyValue) error {
	s.mu.RLock()
	gauge, exists := s.gauges[name]
	s.mu.RUnlock()

	if !exists {
		s.mu.Lock()
		if gauge, exists = s.gauges[name]; !exists {
			var err error
			gauge, err = s.meter.Float64Gauge(name)
			if err != nil {
				s.mu.Unlock()
				return fmt.Errorf("failed to create gauge %s: %w", name, err)
			}
			s.gauges[name] = gauge
		}
		s.mu.Unlock()
	}

	gauge.Record(ctx, value, metric.WithAttributes(attrs...))
	return nil
}

// defaultInstruments backs the package-level emission functions. It is
// bound to the global meter, which delegates to whichever meter provider
// NewProvider installs.
var defaultInstruments = newInstrumentSet(otel.Meter(instrumentationName))

// Counter increments a counter metric by 1.
// Labels are provided as key-value pairs.
// Example: Counter("planner.requests", "agent", "profiler")
func Counter(name string, labels ...string) {
	_ = defaultInstruments.addCounter(context.Background(), name, 1, attributesFromLabels(labels))
}

// Histogram records a value in a distribution.
// Use for latencies, payload sizes, result counts.
// Example: Histogram("research.results", 12, "provider", "places")
func Histogram(name string, value float64, labels ...string) {
	_ = defaultInstruments.recordHistogram(context.Background(), name, value, attributesFromLabels(labels))
}

// Gauge records the current value of a metric that can go up and down,
// such as queue depth or active workers.
// Example: Gauge("tasks.queue_depth", 3, "queue", "media")
func Gauge(name string, value float64, labels ...string) {
	_ = defaultInstruments.recordGauge(context.Background(), name, value, attributesFromLabels(labels))
}

// Duration records elapsed time since startTime in milliseconds.
// Example:
//
//	start := time.Now()
//	defer Duration("reasoning.duration_ms", start, "model", model)
func Duration(name string, startTime time.Time, labels ...string) {
	ms := float64(time.Since(startTime).Milliseconds())
	Histogram(name, ms, labels...)
}

// RecordError records an error occurrence with type classification.
func RecordError(name string, errorType string, labels ...string) {
	allLabels := append(labels, "error_type", errorType)
	Counter(name, allLabels...)
}

// RecordSuccess records a successful operation.
func RecordSuccess(name string, labels ...string) {
	allLabels := append(labels, "status", "success")
	Counter(name, allLabels...)
}

// RecordLatency records operation latency with automatic bucketing for
// easier aggregation in dashboards.
func RecordLatency(name string, milliseconds float64, labels ...string) {
	bucket := getLatencyBucket(milliseconds)
	allLabels := append(labels, "latency_bucket", bucket)
	Histogram(name, milliseconds, allLabels...)
}

// TimeOperation times an operation and records its duration when the
// returned function is called.
//
//	defer telemetry.TimeOperation("plan.build", "session", sessionID)()
func TimeOperation(name string, labels ...string) func() {
	start := time.Now()
	return func() {
		Duration(name, start, labels...)
	}
}

// attributesFromLabels converts variadic key-value pairs into attributes.
// A trailing key without a value is dropped.
func attributesFromLabels(labels []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		attrs = append(attrs, attribute.String(labels[i], labels[i+1]))
	}
	return attrs
}

// getLatencyBucket returns a human-readable latency bucket.
func getLatencyBucket(ms float64) string {
	switch {
	case ms < 1:
		return "<1ms"
	case ms < 10:
		return "1-10ms"
	case ms < 100:
		return "10-100ms"
	case ms < 1000:
		return "100ms-1s"
	case ms < 10000:
		return "1-10s"
	default:
		return ">10s"
	}
}
