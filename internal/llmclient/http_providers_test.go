package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/config"
)

func TestOpenAIProviderHappyPath(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": `{"nodes":[]}`}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"total_tokens": 321},
		})
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(config.LLMConfig{
		Provider: config.ProviderOpenAI, APIKey: "sk-test", Model: "gpt-test",
		Endpoint: srv.URL, APITimeout: 5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	resp, err := p.GeneratePlan(context.Background(), schemas.PlanRequest{SystemPrompt: "sys", UserPrompt: "user"})
	require.NoError(t, err)
	assert.Equal(t, `{"nodes":[]}`, resp.Raw)
	assert.Equal(t, 321, resp.TokensUsed)
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestOpenAIProviderSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(config.LLMConfig{
		Provider: config.ProviderOpenAI, APIKey: "sk-test",
		Endpoint: srv.URL, APITimeout: 5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = p.GeneratePlan(context.Background(), schemas.PlanRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestAnthropicProviderHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-test", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sys", req.System)
		require.NotZero(t, req.MaxTokens, "max_tokens is mandatory on this wire shape")

		json.NewEncoder(w).Encode(map[string]interface{}{
			"content":     []map[string]string{{"type": "text", "text": `{"nodes":[]}`}},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": 20},
		})
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider(config.LLMConfig{
		Provider: config.ProviderAnthropic, APIKey: "key-test", Model: "claude-test",
		Endpoint: srv.URL, APITimeout: 5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	resp, err := p.GeneratePlan(context.Background(), schemas.PlanRequest{SystemPrompt: "sys", UserPrompt: "user"})
	require.NoError(t, err)
	assert.Equal(t, `{"nodes":[]}`, resp.Raw)
	assert.Equal(t, 30, resp.TokensUsed)
}

// Providers perform exactly one attempt; retrying is the planner's job.
func TestProvidersDoNotRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(config.LLMConfig{
		Provider: config.ProviderOpenAI, APIKey: "sk-test",
		Endpoint: srv.URL, APITimeout: 5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = p.GeneratePlan(context.Background(), schemas.PlanRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
