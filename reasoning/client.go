package reasoning

import (
	"fmt"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
)

// Provider identifies a reasoning backend.
type Provider string

// Registered provider names.
const (
	ProviderGemini Provider = "gemini"
	ProviderMock   Provider = "mock"
	ProviderAuto   Provider = "auto" // Auto-detect from environment
)

// Config holds the resolved configuration handed to a provider factory.
type Config struct {
	// Provider to use ("gemini", "mock", or "auto")
	Provider string

	// API credentials
	APIKey  string
	BaseURL string

	// Connection settings
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	// Model configuration
	Model       string
	Temperature float32
	MaxTokens   int

	Logger    core.Logger
	Telemetry core.Telemetry
}

// Option configures a reasoning client.
type Option func(*Config)

// WithProvider sets the reasoning provider.
func WithProvider(provider string) Option {
	return func(c *Config) {
		c.Provider = provider
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithBaseURL sets the base URL for the backend API.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithMaxRetries sets the maximum number of rate-limit retries.
func WithMaxRetries(retries int) Option {
	return func(c *Config) {
		c.MaxRetries = retries
	}
}

// WithRetryDelay sets the base delay of the rate-limit backoff ladder.
// The delay doubles per retry.
func WithRetryDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.RetryDelay = delay
	}
}

// WithModel sets the model to use.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithTemperature sets the generation temperature.
func WithTemperature(temp float32) Option {
	return func(c *Config) {
		c.Temperature = temp
	}
}

// WithMaxTokens sets the maximum tokens for generation.
func WithMaxTokens(tokens int) Option {
	return func(c *Config) {
		c.MaxTokens = tokens
	}
}

// WithLogger sets the logger for reasoning operations.
func WithLogger(logger core.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTelemetry sets the telemetry provider so reasoning calls appear
// in distributed traces.
func WithTelemetry(telemetry core.Telemetry) Option {
	return func(c *Config) {
		c.Telemetry = telemetry
	}
}

// NewClient creates a reasoning client using registered providers.
// With ProviderAuto the environment is scanned and the available
// provider with the highest priority wins.
func NewClient(opts ...Option) (core.AIClient, error) {
	config := &Config{
		Provider:    string(ProviderAuto),
		Timeout:     60 * time.Second,
		MaxRetries:  3,
		RetryDelay:  5 * time.Second,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, opt := range opts {
		opt(config)
	}

	if config.Logger != nil {
		if cal, ok := config.Logger.(core.ComponentAwareLogger); ok {
			config.Logger = cal.WithComponent("planner/reasoning")
		}
		config.Logger.Info("Starting reasoning client creation", map[string]interface{}{
			"operation":        "client_creation",
			"provider_setting": config.Provider,
			"auto_detect":      config.Provider == string(ProviderAuto),
		})
	}

	if config.Provider == string(ProviderAuto) {
		provider, err := detectBestProvider(config.Logger)
		if err != nil {
			if config.Logger != nil {
				config.Logger.Error("Reasoning provider auto-detection failed", map[string]interface{}{
					"operation":           "provider_detection",
					"error":               err.Error(),
					"available_providers": ListProviders(),
				})
			}
			return nil, fmt.Errorf("no reasoning provider available: %w", err)
		}
		config.Provider = provider

		if config.Logger != nil {
			config.Logger.Info("Reasoning provider auto-detected", map[string]interface{}{
				"operation":         "provider_detection",
				"selected_provider": provider,
				"detection_method":  "environment_scan",
				"status":            "success",
			})
		}
	}

	factory, exists := GetProvider(config.Provider)
	if !exists {
		if config.Logger != nil {
			config.Logger.Error("Reasoning provider not registered", map[string]interface{}{
				"operation":           "provider_lookup",
				"requested_provider":  config.Provider,
				"available_providers": ListProviders(),
			})
		}
		return nil, fmt.Errorf("reasoning provider %q not registered: %w", config.Provider, core.ErrProviderNotFound)
	}

	client := factory.Create(config)
	if config.Logger != nil {
		config.Logger.Info("Reasoning client created", map[string]interface{}{
			"operation": "client_creation",
			"provider":  config.Provider,
			"model":     config.Model,
			"status":    "success",
		})
	}

	return client, nil
}

// MustNewClient creates a reasoning client and panics on error.
func MustNewClient(opts ...Option) core.AIClient {
	client, err := NewClient(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create reasoning client: %v", err))
	}
	return client
}

// FromConfig builds a reasoning client from the runtime configuration
// tree. Callers wanting the canned development client should set
// cfg.Provider to "mock" before calling.
func FromConfig(cfg core.ReasoningConfig, logger core.Logger, telemetry core.Telemetry) (core.AIClient, error) {
	opts := []Option{
		WithAPIKey(cfg.APIKey),
		WithModel(cfg.Model),
		WithTemperature(cfg.Temperature),
		WithMaxTokens(cfg.MaxTokens),
		WithLogger(logger),
		WithTelemetry(telemetry),
	}
	if cfg.Provider != "" {
		opts = append(opts, WithProvider(cfg.Provider))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(cfg.Timeout))
	}
	if cfg.RetryAttempts > 0 {
		opts = append(opts, WithMaxRetries(cfg.RetryAttempts))
	}
	if cfg.RetryDelay > 0 {
		opts = append(opts, WithRetryDelay(cfg.RetryDelay))
	}

	return NewClient(opts...)
}
