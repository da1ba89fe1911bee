// Package rag provides the retrieval substrate for policy rules: text
// embedders and a persistent cosine-similarity vector index.
package rag

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/itsneelabh/fraudmind/core"
)

// Embedder converts text into vectors for similarity search.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float64, error)
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

// MockEmbedder produces deterministic embeddings from a SHA-256 hash of
// the text, expanded to the configured dimension. Identical text always
// maps to an identical vector, which keeps the rule-based pipeline fully
// reproducible without a model provider.
type MockEmbedder struct {
	Dimension int
}

// NewMockEmbedder creates a mock embedder with the given dimension.
func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &MockEmbedder{Dimension: dimension}
}

func (m *MockEmbedder) embed(text string) []float64 {
	sum := sha256.Sum256([]byte(text))

	expanded := make([]byte, 0, m.Dimension)
	for len(expanded) < m.Dimension {
		expanded = append(expanded, sum[:]...)
	}
	expanded = expanded[:m.Dimension]

	// Map each byte (0-255) to a float in [-1, 1]
	vec := make([]float64, m.Dimension)
	for i, b := range expanded {
		vec[i] = float64(b)/127.5 - 1.0
	}
	return vec
}

func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = m.embed(t)
	}
	return out, nil
}

func (m *MockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	return m.embed(text), nil
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     core.Logger
}

// NewOpenAIEmbedder creates a hosted embedder. An empty apiKey falls back
// to OPENAI_API_KEY.
func NewOpenAIEmbedder(apiKey, model string, logger core.Logger) *OpenAIEmbedder {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	return &OpenAIEmbedder{
		apiKey:  apiKey,
		baseURL: "https://api.openai.com/v1",
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (c *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key not configured", core.ErrProvider)
	}

	reqBody := map[string]interface{}{
		"model": c.model,
		"input": texts,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: embeddings API error (status %d): %s", core.ErrProvider, resp.StatusCode, string(body))
	}

	var embResp struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(embResp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: embeddings API returned %d vectors for %d inputs", core.ErrProvider, len(embResp.Data), len(texts))
	}

	out := make([][]float64, len(embResp.Data))
	for i, d := range embResp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (c *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	vecs, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// CachingEmbedder wraps another embedder with an expiring in-process
// cache. The same text always embeds to the same vector, so repeated
// queries (the policy-RAG stage re-embeds similar signal strings on every
// decision) skip the provider round-trip.
type CachingEmbedder struct {
	inner Embedder
	cache *gocache.Cache
}

// NewCachingEmbedder wraps inner with a TTL cache.
func NewCachingEmbedder(inner Embedder, ttl time.Duration) *CachingEmbedder {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachingEmbedder{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *CachingEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missing []string
	var missingIdx []int

	for i, t := range texts {
		if v, ok := c.cache.Get(cacheKey(t)); ok {
			out[i] = v.([]float64)
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedTexts(ctx, missing)
	if err != nil {
		return nil, err
	}

	for j, vec := range vecs {
		out[missingIdx[j]] = vec
		c.cache.SetDefault(cacheKey(missing[j]), vec)
	}
	return out, nil
}

func (c *CachingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	if v, ok := c.cache.Get(cacheKey(text)); ok {
		return v.([]float64), nil
	}
	vec, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(cacheKey(text), vec)
	return vec, nil
}

// NewEmbedder builds an embedder from configuration. Provider is one of
// "mock", "hosted", or "cloud".
func NewEmbedder(cfg *core.Config) (Embedder, error) {
	switch cfg.EmbeddingsProvider {
	case "mock":
		return NewMockEmbedder(256), nil
	case "hosted":
		inner := NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIEmbeddingsModel, cfg.Logger())
		return NewCachingEmbedder(inner, time.Hour), nil
	case "cloud":
		inner, err := newCloudEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		return NewCachingEmbedder(inner, time.Hour), nil
	default:
		return nil, fmt.Errorf("%w: unknown embeddings provider %q", core.ErrInvalidConfiguration, cfg.EmbeddingsProvider)
	}
}
