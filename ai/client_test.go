package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/fraudmind/core"
)

func TestRegistryRejectsDuplicates(t *testing.T) {
	// openai and mock register themselves in init()
	names := ListProviders()
	assert.Contains(t, names, "openai")
	assert.Contains(t, names, "mock")

	factory, ok := GetProvider("openai")
	require.True(t, ok)
	assert.Equal(t, "openai", factory.Name())

	err := Register(&openAIFactory{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	assert.Error(t, Register(nil))
}

func TestNewClientUnknownProvider(t *testing.T) {
	_, err := NewClient(WithProvider("nonexistent"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown AI provider")
}

func TestNewClientFromConfigNone(t *testing.T) {
	cfg := core.DefaultConfig()

	client, err := NewClientFromConfig(cfg)
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestMockClientSequentialResponses(t *testing.T) {
	client := NewMockClient(nil)
	client.SetResponses("primera", "segunda")
	ctx := context.Background()

	resp, err := client.GenerateResponse(ctx, "hola", nil)
	require.NoError(t, err)
	assert.Equal(t, "primera", resp.Content)

	resp, err = client.GenerateResponse(ctx, "hola", nil)
	require.NoError(t, err)
	assert.Equal(t, "segunda", resp.Content)

	_, err = client.GenerateResponse(ctx, "hola", nil)
	assert.Error(t, err)

	assert.Equal(t, 3, client.CallCount)
	assert.Equal(t, "hola", client.LastPrompt)
}

func TestMockClientConfiguredError(t *testing.T) {
	client := NewMockClient(nil)
	client.Error = fmt.Errorf("simulated outage")

	_, err := client.GenerateResponse(context.Background(), "hola", nil)
	assert.EqualError(t, err, "simulated outage")
}

func TestOpenAIClientGenerateResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		fmt.Fprint(w, `{
			"model": "gpt-4o-mini",
			"choices": [{"message": {"content": "{\"recommended_decision\": \"CHALLENGE\"}"}}],
			"usage": {"prompt_tokens": 42, "completion_tokens": 7, "total_tokens": 49}
		}`)
	}))
	defer server.Close()

	client, err := NewClient(
		WithProvider("openai"),
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithModel("gpt-4o-mini"),
	)
	require.NoError(t, err)

	resp, err := client.GenerateResponse(context.Background(), "evalúa la transacción", &core.AIOptions{
		SystemPrompt: "Eres un analista de fraude.",
		MaxTokens:    500,
	})
	require.NoError(t, err)

	assert.Contains(t, resp.Content, "CHALLENGE")
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	assert.Equal(t, 49, resp.Usage.TotalTokens)
}

func TestOpenAIClientErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "rate limited"}}`)
	}))
	defer server.Close()

	client, err := NewClient(
		WithProvider("openai"),
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
	)
	require.NoError(t, err)

	_, err = client.GenerateResponse(context.Background(), "hola", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrProvider)
}

func TestOpenAIClientMissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	client := NewOpenAIClient("", &core.NoOpLogger{})
	_, err := client.GenerateResponse(context.Background(), "hola", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrProvider)
}
