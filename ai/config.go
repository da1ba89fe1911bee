package ai

import (
	"fmt"
	"time"

	"github.com/itsneelabh/fraudmind/core"
)

// AIConfig holds provider configuration for reasoning-model clients.
type AIConfig struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Region      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
	Logger      core.Logger
}

// AIOption configures an AIConfig.
type AIOption func(*AIConfig)

// WithProvider selects a registered provider by name. When not set, the
// best available provider is auto-detected.
func WithProvider(name string) AIOption {
	return func(c *AIConfig) { c.Provider = name }
}

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) AIOption {
	return func(c *AIConfig) { c.APIKey = key }
}

// WithBaseURL overrides the provider endpoint (for OpenAI-compatible
// gateways).
func WithBaseURL(url string) AIOption {
	return func(c *AIConfig) { c.BaseURL = url }
}

// WithRegion sets the cloud region for the bedrock provider.
func WithRegion(region string) AIOption {
	return func(c *AIConfig) { c.Region = region }
}

// WithModel sets the default model.
func WithModel(model string) AIOption {
	return func(c *AIConfig) { c.Model = model }
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float32) AIOption {
	return func(c *AIConfig) { c.Temperature = t }
}

// WithMaxTokens sets the default completion budget.
func WithMaxTokens(n int) AIOption {
	return func(c *AIConfig) { c.MaxTokens = n }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) AIOption {
	return func(c *AIConfig) { c.Timeout = d }
}

// WithAILogger sets the logger passed to provider clients.
func WithAILogger(logger core.Logger) AIOption {
	return func(c *AIConfig) { c.Logger = logger }
}

// NewClient builds an AI client from options, auto-detecting a provider
// when none is named.
func NewClient(opts ...AIOption) (core.AIClient, error) {
	cfg := &AIConfig{
		Temperature: 0.3,
		MaxTokens:   1000,
		Timeout:     30 * time.Second,
		MaxRetries:  3,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = &core.NoOpLogger{}
	}

	name := cfg.Provider
	if name == "" {
		detected, err := detectBestProvider(cfg.Logger)
		if err != nil {
			return nil, err
		}
		name = detected
	}

	factory, ok := GetProvider(name)
	if !ok {
		return nil, fmt.Errorf("unknown AI provider %q (registered: %v)", name, ListProviders())
	}

	return factory.Create(cfg), nil
}

// NewClientFromConfig maps the engine configuration's reasoning provider
// knob to a client. Returns (nil, nil) when the knob is "none": the
// debate and explainability stages then use their deterministic paths.
func NewClientFromConfig(cfg *core.Config) (core.AIClient, error) {
	switch cfg.ReasoningProvider {
	case "none":
		return nil, nil
	case "hosted":
		return NewClient(
			WithProvider("openai"),
			WithAPIKey(cfg.OpenAIAPIKey),
			WithModel(cfg.OpenAIModel),
			WithAILogger(cfg.Logger()),
		)
	case "cloud":
		return NewClient(
			WithProvider("bedrock"),
			WithRegion(cfg.AWSRegion),
			WithModel(cfg.BedrockModelID),
			WithAILogger(cfg.Logger()),
		)
	default:
		return nil, fmt.Errorf("%w: unknown reasoning model provider %q", core.ErrInvalidConfiguration, cfg.ReasoningProvider)
	}
}
