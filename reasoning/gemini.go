package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

// GeminiBaseURL is the default Gemini API endpoint.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const defaultGeminiModel = "gemini-2.0-flash"

func init() {
	MustRegister(&GeminiFactory{})
}

// GeminiFactory creates Gemini reasoning clients.
type GeminiFactory struct{}

// Name returns the provider name.
func (f *GeminiFactory) Name() string {
	return "gemini"
}

// Description returns the provider description.
func (f *GeminiFactory) Description() string {
	return "Google Gemini models via the GenerateContent REST API"
}

// Priority returns the provider detection priority.
func (f *GeminiFactory) Priority() int {
	return 70
}

// Create builds a Gemini client from the resolved configuration,
// falling back to environment variables for credentials.
func (f *GeminiFactory) Create(config *Config) core.AIClient {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("GOOGLE_API_KEY")
		}
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("GEMINI_BASE_URL")
	}

	client := NewGeminiClient(apiKey, baseURL, config.Logger)

	if config.Telemetry != nil {
		client.SetTelemetry(config.Telemetry)
	}
	if config.Timeout > 0 {
		client.HTTPClient.Timeout = config.Timeout
	}
	if config.MaxRetries > 0 {
		client.MaxRetries = config.MaxRetries
	}
	if config.RetryDelay > 0 {
		client.RetryDelay = config.RetryDelay
	}
	if config.Model != "" {
		client.DefaultModel = config.Model
	}
	if config.Temperature > 0 {
		client.DefaultTemperature = config.Temperature
	}
	if config.MaxTokens > 0 {
		client.DefaultMaxTokens = config.MaxTokens
	}

	return client
}

// DetectEnvironment reports availability based on configured API keys.
func (f *GeminiFactory) DetectEnvironment() (priority int, available bool) {
	if os.Getenv("GEMINI_API_KEY") != "" || os.Getenv("GOOGLE_API_KEY") != "" {
		return f.Priority(), true
	}
	return 0, false
}

// GeminiClient implements core.AIClient for Google Gemini.
type GeminiClient struct {
	*BaseClient
	apiKey  string
	baseURL string
}

// NewGeminiClient creates a Gemini client. An empty baseURL selects
// the public API endpoint.
func NewGeminiClient(apiKey, baseURL string, logger core.Logger) *GeminiClient {
	if baseURL == "" {
		baseURL = GeminiBaseURL
	}

	base := NewBaseClient(60*time.Second, logger)
	base.DefaultModel = defaultGeminiModel

	return &GeminiClient{
		BaseClient: base,
		apiKey:     apiKey,
		baseURL:    baseURL,
	}
}

// Wire types for the native GenerateContent API.

type geminiRequest struct {
	Contents          []geminiContent          `json:"contents"`
	GenerationConfig  *geminiGenerationConfig  `json:"generationConfig,omitempty"`
	SafetySettings    []geminiSafetySetting    `json:"safetySettings,omitempty"`
	SystemInstruction *geminiSystemInstruction `json:"systemInstruction,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"` // "user" or "model"
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiSystemInstruction struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float32  `json:"temperature,omitempty"`
	TopP            float32  `json:"topP,omitempty"`
	TopK            int      `json:"topK,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata geminiUsage       `json:"usageMetadata"`
	ModelVersion  string            `json:"modelVersion"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
	Index        int           `json:"index"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// GenerateResponse generates a response via the GenerateContent API.
func (c *GeminiClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	ctx, span := c.StartSpan(ctx, "reasoning.generate_response")
	defer span.End()

	span.SetAttribute("reasoning.provider", "gemini")
	span.SetAttribute("reasoning.prompt_length", len(prompt))

	if c.apiKey == "" {
		c.Logger.Error("Gemini request failed - API key not configured", map[string]interface{}{
			"operation": "reasoning_request_error",
			"provider":  "gemini",
			"error":     "api_key_missing",
		})
		err := fmt.Errorf("gemini API key not configured: %w", core.ErrMissingConfiguration)
		span.RecordError(err)
		return nil, err
	}

	options = c.ApplyDefaults(options)
	span.SetAttribute("reasoning.model", options.Model)

	c.LogRequest("gemini", options.Model, prompt)
	startTime := time.Now()

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{
				Role:  "user",
				Parts: []geminiPart{{Text: prompt}},
			},
		},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     options.Temperature,
			MaxOutputTokens: options.MaxTokens,
		},
	}
	if options.SystemPrompt != "" {
		reqBody.SystemInstruction = &geminiSystemInstruction{
			Parts: []geminiPart{{Text: options.SystemPrompt}},
		}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Format: /models/{model}:generateContent?key={api_key}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, options.Model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.ExecuteWithRetry(ctx, req)
	if err != nil {
		c.Logger.Error("Gemini request failed - send error", map[string]interface{}{
			"operation": "reasoning_request_error",
			"provider":  "gemini",
			"error":     err.Error(),
			"phase":     "request_execution",
		})
		span.RecordError(err)
		c.recordOutcome(options.Model, "error")
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		c.recordOutcome(options.Model, "error")
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.Logger.Error("Gemini request failed - API error", map[string]interface{}{
			"operation":   "reasoning_request_error",
			"provider":    "gemini",
			"status_code": resp.StatusCode,
			"phase":       "api_response",
		})
		apiErr := c.HandleError(resp.StatusCode, body, "Gemini")
		span.RecordError(apiErr)
		span.SetAttribute("http.status_code", resp.StatusCode)
		c.recordOutcome(options.Model, "error")
		return nil, apiErr
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.Logger.Error("Gemini request failed - parse response error", map[string]interface{}{
			"operation": "reasoning_request_error",
			"provider":  "gemini",
			"error":     err.Error(),
			"phase":     "response_parse",
		})
		span.RecordError(err)
		c.recordOutcome(options.Model, "error")
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(parsed.Candidates) == 0 {
		err := fmt.Errorf("no candidates in Gemini response")
		c.Logger.Error("Gemini request failed - no candidates", map[string]interface{}{
			"operation": "reasoning_request_error",
			"provider":  "gemini",
			"error":     "no_candidates_returned",
			"phase":     "response_validation",
		})
		span.RecordError(err)
		c.recordOutcome(options.Model, "error")
		return nil, err
	}

	var content string
	for _, part := range parsed.Candidates[0].Content.Parts {
		content += part.Text
	}
	if content == "" {
		err := fmt.Errorf("no text content in Gemini response")
		span.RecordError(err)
		c.recordOutcome(options.Model, "error")
		return nil, err
	}

	result := &core.AIResponse{
		Content: content,
		Model:   options.Model,
		Usage: core.TokenUsage{
			PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
			CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
		},
	}

	span.SetAttribute("reasoning.prompt_tokens", result.Usage.PromptTokens)
	span.SetAttribute("reasoning.completion_tokens", result.Usage.CompletionTokens)
	span.SetAttribute("reasoning.total_tokens", result.Usage.TotalTokens)
	span.SetAttribute("reasoning.response_length", len(result.Content))

	duration := time.Since(startTime)
	c.LogResponse("gemini", result.Model, result.Usage, duration)
	c.LogResponseContent("gemini", result.Model, result.Content)

	telemetry.Histogram("reasoning.request.duration_ms", float64(duration.Milliseconds()),
		"module", telemetry.ModuleReasoning,
		"provider", "gemini",
		"model", result.Model)
	telemetry.Histogram("reasoning.tokens.used", float64(result.Usage.TotalTokens),
		"module", telemetry.ModuleReasoning,
		"provider", "gemini")
	c.recordOutcome(result.Model, "success")

	return result, nil
}

func (c *GeminiClient) recordOutcome(model, status string) {
	telemetry.Counter("reasoning.request.total",
		"module", telemetry.ModuleReasoning,
		"provider", "gemini",
		"model", model,
		"status", status)
}
