package reasoning

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
)

// mockTelemetry tracks span creation for testing.
type mockTelemetry struct {
	spanStarted bool
	spanName    string
}

func (m *mockTelemetry) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	m.spanStarted = true
	m.spanName = name
	return ctx, &mockSpan{}
}

func (m *mockTelemetry) RecordMetric(name string, value float64, labels map[string]string) {}

type mockSpan struct {
	ended      bool
	attributes map[string]interface{}
	errs       []error
}

func (m *mockSpan) End() { m.ended = true }

func (m *mockSpan) SetAttribute(key string, value interface{}) {
	if m.attributes == nil {
		m.attributes = make(map[string]interface{})
	}
	m.attributes[key] = value
}

func (m *mockSpan) RecordError(err error) { m.errs = append(m.errs, err) }

func TestNewBaseClient(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		logger  core.Logger
	}{
		{name: "with logger", timeout: 30 * time.Second, logger: &mockLogger{}},
		{name: "without logger", timeout: 60 * time.Second, logger: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewBaseClient(tt.timeout, tt.logger)

			if client == nil {
				t.Fatal("expected non-nil client")
			}
			if client.HTTPClient.Timeout != tt.timeout {
				t.Errorf("expected timeout %v, got %v", tt.timeout, client.HTTPClient.Timeout)
			}
			if client.HTTPClient.Transport == nil {
				t.Error("expected traced transport")
			}

			if tt.logger == nil {
				if _, ok := client.Logger.(*core.NoOpLogger); !ok {
					t.Error("expected NoOpLogger when no logger provided")
				}
			} else if client.Logger != tt.logger {
				t.Error("logger not set correctly")
			}

			if client.MaxRetries != 3 {
				t.Errorf("expected default MaxRetries 3, got %d", client.MaxRetries)
			}
			if client.RetryDelay != 5*time.Second {
				t.Errorf("expected default RetryDelay 5s, got %v", client.RetryDelay)
			}
		})
	}
}

func TestBaseClient_ApplyDefaults(t *testing.T) {
	client := NewBaseClient(30*time.Second, nil)
	client.DefaultModel = "default-model"
	client.DefaultMaxTokens = 1000
	client.DefaultTemperature = 0.7
	client.DefaultSystemPrompt = "You are a travel planner"

	tests := []struct {
		name     string
		input    *core.AIOptions
		expected *core.AIOptions
	}{
		{
			name:  "nil options",
			input: nil,
			expected: &core.AIOptions{
				Model:        "default-model",
				MaxTokens:    1000,
				Temperature:  0.7,
				SystemPrompt: "You are a travel planner",
			},
		},
		{
			name: "partial options",
			input: &core.AIOptions{
				Model:       "custom-model",
				Temperature: 0.9,
			},
			expected: &core.AIOptions{
				Model:        "custom-model",
				MaxTokens:    1000,
				Temperature:  0.9,
				SystemPrompt: "You are a travel planner",
			},
		},
		{
			name: "full options",
			input: &core.AIOptions{
				Model:        "custom-model",
				MaxTokens:    500,
				Temperature:  0.5,
				SystemPrompt: "Custom prompt",
			},
			expected: &core.AIOptions{
				Model:        "custom-model",
				MaxTokens:    500,
				Temperature:  0.5,
				SystemPrompt: "Custom prompt",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := client.ApplyDefaults(tt.input)

			if result.Model != tt.expected.Model {
				t.Errorf("expected model %q, got %q", tt.expected.Model, result.Model)
			}
			if result.MaxTokens != tt.expected.MaxTokens {
				t.Errorf("expected MaxTokens %d, got %d", tt.expected.MaxTokens, result.MaxTokens)
			}
			if result.Temperature != tt.expected.Temperature {
				t.Errorf("expected Temperature %f, got %f", tt.expected.Temperature, result.Temperature)
			}
			if result.SystemPrompt != tt.expected.SystemPrompt {
				t.Errorf("expected SystemPrompt %q, got %q", tt.expected.SystemPrompt, result.SystemPrompt)
			}
		})
	}
}

func TestBaseClient_ExecuteWithRetry_RateLimitRecovery(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewBaseClient(10*time.Second, nil)
	client.RetryDelay = 5 * time.Millisecond

	req, err := http.NewRequestWithContext(context.Background(), "GET", server.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	resp, err := client.ExecuteWithRetry(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 after retries, got %d", resp.StatusCode)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestBaseClient_ExecuteWithRetry_RateLimitExhaustion(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewBaseClient(10*time.Second, nil)
	client.MaxRetries = 2
	client.RetryDelay = time.Millisecond

	req, _ := http.NewRequestWithContext(context.Background(), "GET", server.URL, nil)

	_, err := client.ExecuteWithRetry(context.Background(), req)
	if err == nil {
		t.Fatal("expected error after rate-limit exhaustion")
	}
	if !errors.Is(err, core.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls (initial + 2 retries), got %d", callCount)
	}
}

func TestBaseClient_ExecuteWithRetry_ServerErrorNotRetried(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewBaseClient(10*time.Second, nil)
	client.RetryDelay = time.Millisecond

	req, _ := http.NewRequestWithContext(context.Background(), "GET", server.URL, nil)

	resp, err := client.ExecuteWithRetry(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500 passed through, got %d", resp.StatusCode)
	}
	if callCount != 1 {
		t.Errorf("expected exactly 1 call for a permanent failure, got %d", callCount)
	}
}

func TestBaseClient_ExecuteWithRetry_ReplaysBody(t *testing.T) {
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if len(bodies) < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewBaseClient(10*time.Second, nil)
	client.RetryDelay = time.Millisecond

	payload := `{"contents":[{"parts":[{"text":"plan"}]}]}`
	req, err := http.NewRequestWithContext(context.Background(), "POST", server.URL, bytes.NewBufferString(payload))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	resp, err := client.ExecuteWithRetry(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if len(bodies) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(bodies))
	}
	for i, body := range bodies {
		if body != payload {
			t.Errorf("attempt %d: expected full body replay, got %q", i+1, body)
		}
	}
}

func TestBaseClient_ExecuteWithRetry_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewBaseClient(10*time.Second, nil)
	client.RetryDelay = time.Minute // Cancellation must win over the backoff wait.

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, "GET", server.URL, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := client.ExecuteWithRetry(ctx, req)
	if err == nil {
		t.Fatal("expected error due to cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took too long: %v", elapsed)
	}
}

func TestBaseClient_HandleError(t *testing.T) {
	client := NewBaseClient(30*time.Second, nil)

	tests := []struct {
		name       string
		statusCode int
		body       []byte
		wantMsg    string
		wantIs     error
	}{
		{
			name:       "unauthorized",
			statusCode: http.StatusUnauthorized,
			body:       []byte(`{"error": "invalid api key"}`),
			wantMsg:    "invalid or missing API key",
			wantIs:     core.ErrRequestFailed,
		},
		{
			name:       "rate limit",
			statusCode: http.StatusTooManyRequests,
			body:       []byte(`{"error": "quota"}`),
			wantMsg:    "rate limit exceeded",
			wantIs:     core.ErrRateLimited,
		},
		{
			name:       "bad request",
			statusCode: http.StatusBadRequest,
			body:       []byte(`{"error": "bad prompt"}`),
			wantMsg:    "invalid request",
			wantIs:     core.ErrRequestFailed,
		},
		{
			name:       "server error",
			statusCode: http.StatusServiceUnavailable,
			body:       []byte(`{"error": "overloaded"}`),
			wantMsg:    "service temporarily unavailable (status 503)",
			wantIs:     core.ErrProviderUnavailable,
		},
		{
			name:       "unknown status",
			statusCode: http.StatusTeapot,
			body:       []byte("short and stout"),
			wantMsg:    "status 418",
			wantIs:     core.ErrRequestFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.HandleError(tt.statusCode, tt.body, "Gemini")

			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, tt.wantIs) {
				t.Errorf("expected errors.Is(%v), got %v", tt.wantIs, err)
			}
			if !bytes.Contains([]byte(err.Error()), []byte(tt.wantMsg)) {
				t.Errorf("expected error containing %q, got %q", tt.wantMsg, err.Error())
			}
		})
	}
}

func TestBaseClient_StartSpan(t *testing.T) {
	client := NewBaseClient(30*time.Second, nil)

	if client.Telemetry != nil {
		t.Error("expected nil telemetry initially")
	}

	ctx, span := client.StartSpan(context.Background(), "reasoning.generate_response")
	if ctx == nil || span == nil {
		t.Fatal("expected non-nil context and span")
	}
	if _, ok := span.(*core.NoOpSpan); !ok {
		t.Errorf("expected NoOpSpan without telemetry, got %T", span)
	}

	tel := &mockTelemetry{}
	client.SetTelemetry(tel)

	_, span = client.StartSpan(context.Background(), "reasoning.generate_response")
	if _, ok := span.(*mockSpan); !ok {
		t.Errorf("expected mockSpan with telemetry, got %T", span)
	}
	if !tel.spanStarted || tel.spanName != "reasoning.generate_response" {
		t.Errorf("expected span started with name, got %+v", tel)
	}
}

func TestBaseClient_Logging(t *testing.T) {
	logger := &mockLogger{}
	client := NewBaseClient(30*time.Second, logger)

	client.LogRequest("gemini", "gemini-2.0-flash", "plan a trip")
	if len(logger.infoCalls) != 1 {
		t.Fatalf("expected 1 info call, got %d", len(logger.infoCalls))
	}
	if logger.infoCalls[0]["provider"] != "gemini" {
		t.Errorf("expected provider gemini, got %v", logger.infoCalls[0]["provider"])
	}

	usage := core.TokenUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30}
	client.LogResponse("gemini", "gemini-2.0-flash", usage, 100*time.Millisecond)
	if len(logger.infoCalls) != 2 {
		t.Fatalf("expected 2 info calls, got %d", len(logger.infoCalls))
	}
	if logger.infoCalls[1]["total_tokens"] != 30 {
		t.Errorf("expected total_tokens 30, got %v", logger.infoCalls[1]["total_tokens"])
	}

	client.LogError("gemini", errors.New("test error"))
	if len(logger.errorCalls) != 1 {
		t.Fatalf("expected 1 error call, got %d", len(logger.errorCalls))
	}
	if logger.errorCalls[0]["error"] != "test error" {
		t.Errorf("expected error field, got %v", logger.errorCalls[0]["error"])
	}
}

func TestBaseClient_LogResponseContentTruncates(t *testing.T) {
	logger := &mockLogger{}
	client := NewBaseClient(30*time.Second, logger)

	client.LogResponseContent("gemini", "gemini-2.0-flash", "short response")
	if len(logger.debugCalls) != 1 {
		t.Fatalf("expected 1 debug call, got %d", len(logger.debugCalls))
	}
	if logger.debugCalls[0]["response"] != "short response" {
		t.Errorf("short responses should pass through, got %v", logger.debugCalls[0]["response"])
	}
	if logger.debugCalls[0]["response_length"] != len("short response") {
		t.Errorf("unexpected response_length: %v", logger.debugCalls[0]["response_length"])
	}

	long := string(bytes.Repeat([]byte("x"), 600))
	client.LogResponseContent("gemini", "gemini-2.0-flash", long)
	preview, _ := logger.debugCalls[1]["response"].(string)
	if len(preview) != 503 { // 500 chars + "..."
		t.Errorf("expected truncated preview of 503 chars, got %d", len(preview))
	}
	if logger.debugCalls[1]["response_length"] != 600 {
		t.Errorf("expected full length 600 recorded, got %v", logger.debugCalls[1]["response_length"])
	}
}
