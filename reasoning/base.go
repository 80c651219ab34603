package reasoning

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

// BaseClient provides common functionality shared by HTTP-backed
// reasoning providers. Construct it with NewBaseClient; the zero value
// has no HTTP client or logger.
type BaseClient struct {
	// HTTP client with timeout and trace propagation
	HTTPClient *http.Client

	// Logger for request lifecycle events
	Logger core.Logger

	// Telemetry for span creation, nil disables tracing
	Telemetry core.Telemetry

	// Rate-limit retry configuration. The delay doubles per retry
	// (5s, 10s, 20s with the defaults).
	MaxRetries int
	RetryDelay time.Duration

	// Default generation parameters applied when callers leave options
	// unset
	DefaultModel        string
	DefaultTemperature  float32
	DefaultMaxTokens    int
	DefaultSystemPrompt string
}

// NewBaseClient creates a base client with defaults.
func NewBaseClient(timeout time.Duration, logger core.Logger) *BaseClient {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	httpClient := telemetry.NewTracedHTTPClient(nil)
	httpClient.Timeout = timeout

	return &BaseClient{
		HTTPClient:         httpClient,
		Logger:             logger,
		MaxRetries:         3,
		RetryDelay:         5 * time.Second,
		DefaultTemperature: 0.7,
		DefaultMaxTokens:   4096,
	}
}

// SetTelemetry wires a telemetry provider into the client.
func (b *BaseClient) SetTelemetry(t core.Telemetry) {
	b.Telemetry = t
}

// StartSpan opens a telemetry span when a provider is wired, falling
// back to a no-op span otherwise.
func (b *BaseClient) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	if b.Telemetry == nil {
		return ctx, &core.NoOpSpan{}
	}
	return b.Telemetry.StartSpan(ctx, name)
}

// ExecuteWithRetry performs an HTTP request, retrying only when the
// backend answers 429. Every other failure, including transport
// errors and 5xx statuses, is permanent for the call: callers degrade
// to their fallback behavior instead of hammering a struggling
// backend.
func (b *BaseClient) ExecuteWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	maxRetries := b.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		reqAttempt := req.Clone(ctx)
		if attempt > 0 && req.GetBody != nil {
			// Clone does not rewind a consumed body.
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to rewind request body: %w", err)
			}
			reqAttempt.Body = body
		}

		resp, err := b.HTTPClient.Do(reqAttempt)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			if attempt > 0 && resp.StatusCode < 400 {
				b.Logger.Info("Reasoning request succeeded after rate-limit retry", map[string]interface{}{
					"operation":      "reasoning_request_recovery",
					"total_attempts": attempt + 1,
				})
			}
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		if attempt >= maxRetries {
			b.Logger.Error("Reasoning request rate limited after all retries", map[string]interface{}{
				"operation":      "reasoning_request_failure",
				"total_attempts": attempt + 1,
				"max_retries":    maxRetries,
			})
			return nil, fmt.Errorf("rate limited after %d retries: %w", maxRetries, core.ErrRateLimited)
		}

		shift := uint(attempt)
		if shift > 30 {
			shift = 30
		}
		delay := b.RetryDelay * time.Duration(1<<shift)

		b.Logger.Warn("Reasoning request rate limited, backing off", map[string]interface{}{
			"operation":      "reasoning_request_retry",
			"attempt":        attempt + 1,
			"max_retries":    maxRetries,
			"retry_delay_ms": delay.Milliseconds(),
		})
		telemetry.Counter("reasoning.request.rate_limited", "module", telemetry.ModuleReasoning)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			b.Logger.Error("Reasoning request cancelled during backoff", map[string]interface{}{
				"operation":     "reasoning_request_cancelled",
				"cancelled_at":  attempt + 1,
				"context_error": ctx.Err().Error(),
			})
			return nil, ctx.Err()
		}
	}
}

// ApplyDefaults fills unset option fields with the client defaults.
func (b *BaseClient) ApplyDefaults(options *core.AIOptions) *core.AIOptions {
	if options == nil {
		options = &core.AIOptions{}
	}

	if options.Model == "" && b.DefaultModel != "" {
		options.Model = b.DefaultModel
	}
	if options.Temperature == 0 {
		options.Temperature = b.DefaultTemperature
	}
	if options.MaxTokens == 0 {
		options.MaxTokens = b.DefaultMaxTokens
	}
	if options.SystemPrompt == "" && b.DefaultSystemPrompt != "" {
		options.SystemPrompt = b.DefaultSystemPrompt
	}

	return options
}

// HandleError maps API error statuses to wrapped sentinel errors.
func (b *BaseClient) HandleError(statusCode int, body []byte, provider string) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%s API error: invalid or missing API key: %w", provider, core.ErrRequestFailed)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s API error: rate limit exceeded: %w", provider, core.ErrRateLimited)
	case http.StatusBadRequest:
		return fmt.Errorf("%s API error: invalid request - %s: %w", provider, string(body), core.ErrRequestFailed)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return fmt.Errorf("%s API error: service temporarily unavailable (status %d): %w", provider, statusCode, core.ErrProviderUnavailable)
	default:
		return fmt.Errorf("%s API error (status %d): %s: %w", provider, statusCode, string(body), core.ErrRequestFailed)
	}
}

// LogError logs an error with provider context.
func (b *BaseClient) LogError(provider string, err error) {
	b.Logger.Error("Provider error", map[string]interface{}{
		"provider": provider,
		"error":    err.Error(),
	})
}

// LogRequest logs outgoing reasoning requests.
func (b *BaseClient) LogRequest(provider, model, prompt string) {
	b.Logger.Info("Reasoning request initiated", map[string]interface{}{
		"operation":     "reasoning_request",
		"provider":      provider,
		"model":         model,
		"prompt_length": len(prompt),
	})
}

// LogResponse logs reasoning responses with token accounting.
func (b *BaseClient) LogResponse(provider, model string, tokens core.TokenUsage, duration time.Duration) {
	b.Logger.Info("Reasoning response received", map[string]interface{}{
		"operation":         "reasoning_response",
		"provider":          provider,
		"model":             model,
		"prompt_tokens":     tokens.PromptTokens,
		"completion_tokens": tokens.CompletionTokens,
		"total_tokens":      tokens.TotalTokens,
		"duration_ms":       duration.Milliseconds(),
		"status":            "success",
	})
}

// LogResponseContent logs the response body at debug level, truncated
// so oversized itineraries do not flood the log stream.
func (b *BaseClient) LogResponseContent(provider, model, content string) {
	preview := content
	if len(preview) > 500 {
		preview = preview[:500] + "..."
	}
	b.Logger.Debug("Reasoning response content", map[string]interface{}{
		"operation":       "reasoning_response_content",
		"provider":        provider,
		"model":           model,
		"response":        preview,
		"response_length": len(content),
	})
}
