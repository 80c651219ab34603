package core

import (
	"context"
	"time"
)

// Logger is the minimal structured logger every component accepts.
// Fields travel as a loose map so call sites stay terse.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}

// ComponentAwareLogger extends Logger with per-component scoping.
// WithComponent returns a new logger that stamps every entry with the
// given component (e.g. "planner/orchestration", "agent/profiler") so
// aggregated logs can be filtered by subsystem.
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// Telemetry is the span and metric surface components see. Wiring it is
// optional; absent a provider, components fall back to NoOpTelemetry.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span is one unit of traced work, ended exactly once.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// AIClient is the reasoning backend abstraction.
// Implementations call an LLM; callers treat it as an opaque
// text-in text-out collaborator.
type AIClient interface {
	GenerateResponse(ctx context.Context, prompt string, options *AIOptions) (*AIResponse, error)
}

// AIOptions tunes a single generation call.
type AIOptions struct {
	Model        string
	Temperature  float32
	MaxTokens    int
	SystemPrompt string
}

// AIResponse is what came back from the reasoning backend.
type AIResponse struct {
	Content string
	Model   string
	Usage   TokenUsage
}

// TokenUsage breaks down the token bill for one generation.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Memory is keyed string storage with per-key TTL, used for session
// plans, research caches, and anything else that may live in Redis or
// in process memory interchangeably.
type Memory interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// No-op fallbacks so components never nil-check their dependencies.

// NoOpLogger discards everything.
type NoOpLogger struct{}

func (*NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (*NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (*NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (*NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

// NoOpTelemetry records nothing and hands out NoOpSpan.
type NoOpTelemetry struct{}

func (*NoOpTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, &NoOpSpan{}
}

func (*NoOpTelemetry) RecordMetric(name string, value float64, labels map[string]string) {}

// NoOpSpan is the span nobody is listening to.
type NoOpSpan struct{}

func (*NoOpSpan) End()                                       {}
func (*NoOpSpan) SetAttribute(key string, value interface{}) {}
func (*NoOpSpan) RecordError(err error)                      {}
