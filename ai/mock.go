package ai

import (
	"context"
	"errors"

	"github.com/itsneelabh/fraudmind/core"
)

func init() {
	MustRegister(&mockFactory{})
}

type mockFactory struct{}

func (f *mockFactory) Name() string        { return "mock" }
func (f *mockFactory) Description() string { return "Mock provider for testing" }

// DetectEnvironment always reports the mock as unavailable, so
// auto-detection never selects it.
func (f *mockFactory) DetectEnvironment() (priority int, available bool) {
	return 0, false
}

func (f *mockFactory) Create(config *AIConfig) core.AIClient {
	return NewMockClient(config)
}

// MockClient implements core.AIClient for testing
type MockClient struct {
	Config        *AIConfig
	Responses     []string
	ResponseIndex int
	Error         error
	CallCount     int
	LastPrompt    string
	LastOptions   *core.AIOptions
}

// NewMockClient creates a new mock client
func NewMockClient(config *AIConfig) *MockClient {
	return &MockClient{
		Config:    config,
		Responses: []string{"Mock response"},
	}
}

// GenerateResponse returns a mock response
func (c *MockClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	c.CallCount++
	c.LastPrompt = prompt
	c.LastOptions = options

	// Check for context cancellation
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	// Return configured error if set
	if c.Error != nil {
		return nil, c.Error
	}

	// Return next response from list
	if c.ResponseIndex >= len(c.Responses) {
		return nil, errors.New("no more mock responses")
	}

	response := c.Responses[c.ResponseIndex]
	c.ResponseIndex++

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
			PromptTokens:     len(prompt) / 4, // Rough estimate
			CompletionTokens: len(response) / 4,
			TotalTokens:      (len(prompt) + len(response)) / 4,
		},
	}, nil
}

// SetResponses sets the responses to return
func (c *MockClient) SetResponses(responses ...string) {
	c.Responses = responses
	c.ResponseIndex = 0
}
