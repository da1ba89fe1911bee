package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/itsneelabh/fraudmind/core"
	"github.com/itsneelabh/fraudmind/resilience"
)

func init() {
	MustRegister(&openAIFactory{})
}

type openAIFactory struct{}

func (f *openAIFactory) Name() string        { return "openai" }
func (f *openAIFactory) Description() string { return "OpenAI-compatible chat completions API" }

func (f *openAIFactory) DetectEnvironment() (priority int, available bool) {
	if os.Getenv("OPENAI_API_KEY") != "" {
		return 100, true
	}
	return 0, false
}

func (f *openAIFactory) Create(config *AIConfig) core.AIClient {
	client := NewOpenAIClient(config.APIKey, config.Logger)
	if config.BaseURL != "" {
		client.baseURL = config.BaseURL
	}
	if config.Model != "" {
		client.defaultModel = config.Model
	}
	if config.Timeout > 0 {
		client.httpClient.Timeout = config.Timeout
	}
	return client
}

// OpenAIClient implements core.AIClient for OpenAI-compatible endpoints
type OpenAIClient struct {
	apiKey       string
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	retryConfig  *resilience.RetryConfig
	logger       core.Logger
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(apiKey string, logger core.Logger) *OpenAIClient {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	return &OpenAIClient{
		apiKey:       apiKey,
		baseURL:      "https://api.openai.com/v1",
		defaultModel: "gpt-4o-mini",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retryConfig: &resilience.RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  200 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		},
		logger: logger,
	}
}

// GenerateResponse generates a response using the chat completions API
func (c *OpenAIClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key not configured", core.ErrProvider)
	}

	// Default options
	if options == nil {
		options = &core.AIOptions{
			Model:       c.defaultModel,
			Temperature: 0.3,
			MaxTokens:   1000,
		}
	}
	if options.Model == "" {
		options.Model = c.defaultModel
	}

	// Build messages
	messages := []map[string]string{}

	if options.SystemPrompt != "" {
		messages = append(messages, map[string]string{
			"role":    "system",
			"content": options.SystemPrompt,
		})
	}

	messages = append(messages, map[string]string{
		"role":    "user",
		"content": prompt,
	})

	// Build request
	reqBody := map[string]interface{}{
		"model":       options.Model,
		"messages":    messages,
		"temperature": options.Temperature,
		"max_tokens":  options.MaxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Send the request, retrying transient failures with backoff
	var body []byte
	var terminalErr error

	err = resilience.Retry(ctx, c.retryConfig, func() error {
		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
		if err != nil {
			terminalErr = fmt.Errorf("failed to create request: %w", err)
			return nil
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrProvider, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			body = data
			return nil
		}

		apiErr := fmt.Errorf("%w: OpenAI API error (status %d): %s", core.ErrProvider, resp.StatusCode, string(data))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return apiErr
		}

		// Client errors are not retryable
		terminalErr = apiErr
		return nil
	})
	if err != nil {
		return nil, err
	}
	if terminalErr != nil {
		return nil, terminalErr
	}

	// Parse response
	var openAIResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
		Model string `json:"model"`
	}

	if err := json.Unmarshal(body, &openAIResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(openAIResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response from OpenAI", core.ErrProvider)
	}

	return &core.AIResponse{
		Content: openAIResp.Choices[0].Message.Content,
		Model:   openAIResp.Model,
		Usage: core.TokenUsage{
			PromptTokens:     openAIResp.Usage.PromptTokens,
			CompletionTokens: openAIResp.Usage.CompletionTokens,
			TotalTokens:      openAIResp.Usage.TotalTokens,
		},
	}, nil
}
