package reasoning

import (
	"context"
	"errors"

	"github.com/tripsmith-ai/tripsmith/core"
)

func init() {
	MustRegister(&MockFactory{})
}

// MockFactory creates canned reasoning clients for development mode
// and tests. The factory never auto-detects; it has to be selected
// explicitly so production deployments cannot fall into it by
// accident.
type MockFactory struct{}

// Name returns the provider name.
func (f *MockFactory) Name() string {
	return "mock"
}

// Description returns the provider description.
func (f *MockFactory) Description() string {
	return "Canned responses for development and tests"
}

// Create builds a mock client.
func (f *MockFactory) Create(config *Config) core.AIClient {
	return NewMockClient(config)
}

// DetectEnvironment reports the mock as never auto-detectable.
func (f *MockFactory) DetectEnvironment() (priority int, available bool) {
	return 0, false
}

const defaultMockResponse = "Mock reasoning response"

// MockClient implements core.AIClient with scripted responses.
//
// With no scripted responses it answers every call with a canned line,
// which keeps development mode alive end to end: JSON consumers fail
// to parse the line and exercise their degradation paths. Scripted
// responses are consumed in order and exhaust with an error.
type MockClient struct {
	Config        *Config
	Responses     []string
	ResponseIndex int
	Error         error
	CallCount     int
	LastPrompt    string
	LastOptions   *core.AIOptions
}

// NewMockClient creates a mock client.
func NewMockClient(config *Config) *MockClient {
	return &MockClient{Config: config}
}

// SetResponses scripts a finite response sequence.
func (c *MockClient) SetResponses(responses ...string) {
	c.Responses = responses
	c.ResponseIndex = 0
}

// GenerateResponse returns the next scripted response.
func (c *MockClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	c.CallCount++
	c.LastPrompt = prompt
	c.LastOptions = options

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if c.Error != nil {
		return nil, c.Error
	}

	response := defaultMockResponse
	if len(c.Responses) > 0 {
		if c.ResponseIndex >= len(c.Responses) {
			return nil, errors.New("no more mock responses")
		}
		response = c.Responses[c.ResponseIndex]
		c.ResponseIndex++
	}

	model := "mock-model"
	if options != nil && options.Model != "" {
		model = options.Model
	} else if c.Config != nil && c.Config.Model != "" {
		model = c.Config.Model
	}

	return &core.AIResponse{
		Content: response,
		Model:   model,
		Usage: core.TokenUsage{
			PromptTokens:     len(prompt) / 4,
			CompletionTokens: len(response) / 4,
			TotalTokens:      (len(prompt) + len(response)) / 4,
		},
	}, nil
}
