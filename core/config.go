package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration options for the decision engine.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithStorageBackend("local"),
//	    WithAllowlistDomains([]string{"example.com", "owasp.org"}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// Service identity
	Name string `json:"name" env:"FRAUDMIND_SERVICE_NAME"`

	// Storage backend selection: "local" or "remote_table"
	StorageBackend string `json:"storage_backend" env:"FRAUDMIND_STORAGE_BACKEND"`

	// Persistence paths for the local backend and the vector index
	InputDir       string `json:"input_dir" env:"FRAUDMIND_INPUT_DIR"`
	PersistenceDir string `json:"persistence_dir" env:"FRAUDMIND_PERSISTENCE_DIR"`
	VectorDir      string `json:"vector_dir" env:"FRAUDMIND_VECTOR_DIR"`

	// Redis connection for the remote_table backend
	RedisURL string `json:"redis_url" env:"FRAUDMIND_REDIS_URL,REDIS_URL"`

	// Provider selection
	EmbeddingsProvider string `json:"embeddings_provider" env:"FRAUDMIND_EMBEDDINGS_PROVIDER"`
	ReasoningProvider  string `json:"reasoning_model_provider" env:"FRAUDMIND_REASONING_PROVIDER"`
	SearchProvider     string `json:"search_provider" env:"FRAUDMIND_SEARCH_PROVIDER"`

	// Governed search
	MaxSearchResults int           `json:"max_search_results" env:"FRAUDMIND_MAX_SEARCH_RESULTS"`
	AllowlistDomains []string      `json:"allowlist_domains" env:"FRAUDMIND_ALLOWLIST_DOMAINS"`
	SearchAPIURL     string        `json:"search_api_url" env:"FRAUDMIND_SEARCH_API_URL"`
	SearchAPIKey     string        `json:"search_api_key" env:"FRAUDMIND_SEARCH_API_KEY"`
	SearchTimeout    time.Duration `json:"search_timeout" env:"FRAUDMIND_SEARCH_TIMEOUT"`

	// Hosted model access (OpenAI-compatible endpoints)
	OpenAIAPIKey          string `json:"-" env:"OPENAI_API_KEY"`
	OpenAIModel           string `json:"openai_model" env:"FRAUDMIND_OPENAI_MODEL"`
	OpenAIEmbeddingsModel string `json:"openai_embeddings_model" env:"FRAUDMIND_OPENAI_EMBEDDINGS_MODEL"`

	// Cloud (Bedrock) model access
	AWSRegion              string `json:"aws_region" env:"AWS_REGION"`
	BedrockModelID         string `json:"bedrock_model_id" env:"FRAUDMIND_BEDROCK_MODEL_ID"`
	BedrockEmbeddingsModel string `json:"bedrock_embeddings_model" env:"FRAUDMIND_BEDROCK_EMBEDDINGS_MODEL"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Telemetry configuration
	Telemetry TelemetryConfig `json:"telemetry"`

	// Logger instance for configuration operations (excluded from JSON)
	logger Logger `json:"-"`
}

// LoggingConfig contains logging configuration.
// Supports structured (JSON) and human-readable (text) formats.
type LoggingConfig struct {
	Level  string `json:"level" env:"FRAUDMIND_LOG_LEVEL"`
	Format string `json:"format" env:"FRAUDMIND_LOG_FORMAT"`
	Output string `json:"output" env:"FRAUDMIND_LOG_OUTPUT"`
}

// TelemetryConfig contains observability configuration.
// The endpoint should be an OTLP/HTTP receiver address.
type TelemetryConfig struct {
	Enabled  bool   `json:"enabled" env:"FRAUDMIND_TELEMETRY_ENABLED"`
	Endpoint string `json:"endpoint" env:"FRAUDMIND_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Option is a functional option for configuring the engine.
// Options are applied in order and can return an error if the
// configuration is invalid.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults for local
// development: mock providers, local JSON storage, and the sample
// allowlist.
func DefaultConfig() *Config {
	return &Config{
		Name:                   "fraudmind",
		StorageBackend:         "local",
		InputDir:               ".storage/input",
		PersistenceDir:         ".storage/state",
		VectorDir:              ".storage/vectors",
		EmbeddingsProvider:     "mock",
		ReasoningProvider:      "none",
		SearchProvider:         "mock",
		MaxSearchResults:       3,
		AllowlistDomains:       []string{"example.com", "owasp.org", "mitre.org"},
		SearchTimeout:          10 * time.Second,
		OpenAIModel:            "gpt-4o-mini",
		OpenAIEmbeddingsModel:  "text-embedding-3-small",
		AWSRegion:              "us-east-1",
		BedrockModelID:         "anthropic.claude-3-sonnet-20240229-v1:0",
		BedrockEmbeddingsModel: "amazon.titan-embed-text-v1",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// NewConfig builds a Config from defaults, environment variables, and
// functional options, then validates it.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	// Apply functional options (these override env vars)
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if cfg.logger == nil {
		cfg.logger = NewProductionLogger(cfg.Logging, cfg.Name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv applies environment variables over the current values.
func (c *Config) LoadFromEnv() error {
	setString := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v := os.Getenv(key); v != "" {
				*dst = v
				return
			}
		}
	}

	setString(&c.Name, "FRAUDMIND_SERVICE_NAME")
	setString(&c.StorageBackend, "FRAUDMIND_STORAGE_BACKEND")
	setString(&c.InputDir, "FRAUDMIND_INPUT_DIR")
	setString(&c.PersistenceDir, "FRAUDMIND_PERSISTENCE_DIR")
	setString(&c.VectorDir, "FRAUDMIND_VECTOR_DIR")
	setString(&c.RedisURL, "FRAUDMIND_REDIS_URL", "REDIS_URL")
	setString(&c.EmbeddingsProvider, "FRAUDMIND_EMBEDDINGS_PROVIDER")
	setString(&c.ReasoningProvider, "FRAUDMIND_REASONING_PROVIDER")
	setString(&c.SearchProvider, "FRAUDMIND_SEARCH_PROVIDER")
	setString(&c.SearchAPIURL, "FRAUDMIND_SEARCH_API_URL")
	setString(&c.SearchAPIKey, "FRAUDMIND_SEARCH_API_KEY")
	setString(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.OpenAIModel, "FRAUDMIND_OPENAI_MODEL")
	setString(&c.OpenAIEmbeddingsModel, "FRAUDMIND_OPENAI_EMBEDDINGS_MODEL")
	setString(&c.AWSRegion, "AWS_REGION")
	setString(&c.BedrockModelID, "FRAUDMIND_BEDROCK_MODEL_ID")
	setString(&c.BedrockEmbeddingsModel, "FRAUDMIND_BEDROCK_EMBEDDINGS_MODEL")
	setString(&c.Logging.Level, "FRAUDMIND_LOG_LEVEL")
	setString(&c.Logging.Format, "FRAUDMIND_LOG_FORMAT")
	setString(&c.Logging.Output, "FRAUDMIND_LOG_OUTPUT")
	setString(&c.Telemetry.Endpoint, "FRAUDMIND_TELEMETRY_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")

	if v := os.Getenv("FRAUDMIND_MAX_SEARCH_RESULTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FRAUDMIND_MAX_SEARCH_RESULTS: %w", err)
		}
		c.MaxSearchResults = n
	}

	if v := os.Getenv("FRAUDMIND_ALLOWLIST_DOMAINS"); v != "" {
		domains := []string{}
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				domains = append(domains, d)
			}
		}
		c.AllowlistDomains = domains
	}

	if v := os.Getenv("FRAUDMIND_SEARCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FRAUDMIND_SEARCH_TIMEOUT: %w", err)
		}
		c.SearchTimeout = d
	}

	if v := os.Getenv("FRAUDMIND_TELEMETRY_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FRAUDMIND_TELEMETRY_ENABLED: %w", err)
		}
		c.Telemetry.Enabled = b
	}

	return nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "local", "remote_table":
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfiguration, c.StorageBackend)
	}

	switch c.EmbeddingsProvider {
	case "mock", "hosted", "cloud":
	default:
		return fmt.Errorf("%w: unknown embeddings provider %q", ErrInvalidConfiguration, c.EmbeddingsProvider)
	}

	switch c.ReasoningProvider {
	case "none", "hosted", "cloud":
	default:
		return fmt.Errorf("%w: unknown reasoning model provider %q", ErrInvalidConfiguration, c.ReasoningProvider)
	}

	switch c.SearchProvider {
	case "mock", "http":
	default:
		return fmt.Errorf("%w: unknown search provider %q", ErrInvalidConfiguration, c.SearchProvider)
	}

	if c.StorageBackend == "remote_table" && c.RedisURL == "" {
		return fmt.Errorf("%w: remote_table backend requires a Redis URL", ErrMissingConfiguration)
	}

	if c.MaxSearchResults <= 0 {
		return fmt.Errorf("%w: max_search_results must be positive", ErrInvalidConfiguration)
	}

	return nil
}

// Logger returns the configured logger.
func (c *Config) Logger() Logger {
	if c.logger == nil {
		return &NoOpLogger{}
	}
	return c.logger
}

// WithName sets the service name used in logs and telemetry.
func WithName(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return fmt.Errorf("name cannot be empty")
		}
		c.Name = name
		return nil
	}
}

// WithStorageBackend selects "local" or "remote_table".
func WithStorageBackend(backend string) Option {
	return func(c *Config) error {
		c.StorageBackend = backend
		return nil
	}
}

// WithRedisURL sets the Redis connection URL for the remote_table backend.
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.RedisURL = url
		return nil
	}
}

// WithPersistencePaths sets the input, state, and vector directories.
func WithPersistencePaths(input, state, vectors string) Option {
	return func(c *Config) error {
		c.InputDir = input
		c.PersistenceDir = state
		c.VectorDir = vectors
		return nil
	}
}

// WithEmbeddingsProvider selects "mock", "hosted", or "cloud".
func WithEmbeddingsProvider(provider string) Option {
	return func(c *Config) error {
		c.EmbeddingsProvider = provider
		return nil
	}
}

// WithReasoningProvider selects "none", "hosted", or "cloud".
func WithReasoningProvider(provider string) Option {
	return func(c *Config) error {
		c.ReasoningProvider = provider
		return nil
	}
}

// WithSearchProvider selects "mock" or "http".
func WithSearchProvider(provider string) Option {
	return func(c *Config) error {
		c.SearchProvider = provider
		return nil
	}
}

// WithMaxSearchResults caps governed search result counts.
func WithMaxSearchResults(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("max search results must be positive")
		}
		c.MaxSearchResults = n
		return nil
	}
}

// WithAllowlistDomains sets the governed-search domain allowlist.
func WithAllowlistDomains(domains []string) Option {
	return func(c *Config) error {
		c.AllowlistDomains = domains
		return nil
	}
}

// WithLogger injects a custom logger.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// ============================================================================
// ProductionLogger Implementation
// ============================================================================

// ProductionLogger provides structured logging for engine operations
type ProductionLogger struct {
	level       string
	debug       bool
	serviceName string
	format      string
	output      io.Writer
	component   string
}

// NewProductionLogger creates a logger from LoggingConfig
func NewProductionLogger(logging LoggingConfig, serviceName string) Logger {
	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}

	return &ProductionLogger{
		level:       strings.ToLower(logging.Level),
		debug:       strings.ToLower(logging.Level) == "debug",
		serviceName: serviceName,
		format:      logging.Format,
		output:      output,
		component:   "engine",
	}
}

// WithComponent returns a logger that tags JSON entries with the component
// name; the text format does not print the component.
func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.component = component
	return &clone
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, nil)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, ctx)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().Format(time.RFC3339)

	if p.format == "json" {
		logEntry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"component": p.component,
			"message":   msg,
		}

		for k, v := range fields {
			logEntry[k] = v
		}

		if data, err := json.Marshal(logEntry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
		return
	}

	// Human-readable for local development
	var fieldStr strings.Builder
	if len(fields) > 0 {
		fieldStr.WriteString(" ")
		for k, v := range fields {
			fieldStr.WriteString(fmt.Sprintf("%s=%v ", k, v))
		}
	}

	fmt.Fprintf(p.output, "%s [%s] [%s] %s%s\n",
		timestamp, level, p.serviceName, msg, fieldStr.String())
}
