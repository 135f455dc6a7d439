package ai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onios/onid/pkg/models"
	"github.com/onios/onid/pkg/protocol"
)

func TestNewAINode(t *testing.T) {
	node, err := NewAINode("ai-1", map[string]any{
		"prompt":    "Summarize: {{input}}",
		"model":     "claude-haiku-4-5",
		"maxTokens": 256.0,
	})
	require.NoError(t, err)
	assert.Equal(t, "ai-1", node.ID())
	assert.Equal(t, models.NodeTypeAI, node.Type())
	assert.Equal(t, "claude-haiku-4-5", node.config.Model)
	assert.Equal(t, 256, node.config.MaxTokens)

	_, err = NewAINode("ai-1", map[string]any{})
	assert.ErrorContains(t, err, "missing required field 'prompt'")
}

func TestNewAINode_Defaults(t *testing.T) {
	node, err := NewAINode("ai-1", map[string]any{"prompt": "hi"})
	require.NoError(t, err)
	assert.Equal(t, defaultModel, node.config.Model)
	assert.Equal(t, defaultMaxTokens, node.config.MaxTokens)
	assert.Equal(t, defaultBaseURL, node.config.BaseURL)
	assert.InDelta(t, float64(defaultTimeoutSeconds), node.config.Timeout, 0.001)
}

func TestAINode_Execute(t *testing.T) {
	var gotRequest messageRequest

	var gotKey, gotVersion string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		_ = json.NewDecoder(r.Body).Decode(&gotRequest)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{
			"content": [{"type": "text", "text": "Paris"}],
			"model": "claude-sonnet-4-20250514",
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 3}
		}`))
	}))
	defer server.Close()

	node, err := NewAINode("ai-1", map[string]any{
		"prompt":  "Capital of {{input.country}}?",
		"system":  "Answer with one word.",
		"apiKey":  "test-key",
		"baseUrl": server.URL,
	})
	require.NoError(t, err)

	out, err := node.Execute(t.Context(), protocol.NodeInput{
		Input: map[string]any{"country": "France"},
	})
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, apiVersion, gotVersion)
	require.Len(t, gotRequest.Messages, 1)
	assert.Equal(t, "user", gotRequest.Messages[0].Role)
	assert.Equal(t, "Capital of France?", gotRequest.Messages[0].Content)
	assert.Equal(t, "Answer with one word.", gotRequest.System)
	assert.Equal(t, defaultModel, gotRequest.Model)

	result, ok := out.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Paris", result["text"])
	assert.Equal(t, "end_turn", result["stop_reason"])

	usage, ok := result["usage"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3, usage["output_tokens"])
}

func TestAINode_Execute_Extract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "positive"}], "stop_reason": "end_turn"}`))
	}))
	defer server.Close()

	node, err := NewAINode("ai-1", map[string]any{
		"prompt":  "Classify {{input}}",
		"apiKey":  "test-key",
		"baseUrl": server.URL,
		"extract": "text",
	})
	require.NoError(t, err)

	out, err := node.Execute(t.Context(), protocol.NodeInput{Input: "great product"})
	require.NoError(t, err)
	assert.Equal(t, "positive", out.Value)
}

func TestAINode_Execute_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"type": "rate_limit_error", "message": "slow down"}}`))
	}))
	defer server.Close()

	node, err := NewAINode("ai-1", map[string]any{
		"prompt":  "hi",
		"apiKey":  "test-key",
		"baseUrl": server.URL,
	})
	require.NoError(t, err)

	_, err = node.Execute(t.Context(), protocol.NodeInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API error 429")
}

func TestAINode_Execute_MissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	node, err := NewAINode("ai-1", map[string]any{"prompt": "hi"})
	require.NoError(t, err)

	_, err = node.Execute(t.Context(), protocol.NodeInput{})
	assert.ErrorContains(t, err, "no API key")
}
