package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/summarizer/internal/apperr"
)

func fakeResponses(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIClient("test-key", srv.URL, 5*time.Second)
}

func okBody(text string) map[string]any {
	return map[string]any{
		"model":  "gpt-5",
		"status": "completed",
		"output": []map[string]any{
			{"type": "reasoning"},
			{"type": "message", "content": []map[string]any{
				{"type": "output_text", "text": text},
			}},
		},
		"usage": map[string]any{
			"input_tokens":  1200,
			"output_tokens": 300,
			"output_tokens_details": map[string]any{
				"reasoning_tokens": 100,
			},
		},
	}
}

func TestGenerateParsesUsageAndHeaders(t *testing.T) {
	var captured map[string]any
	c := fakeResponses(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("X-RateLimit-Remaining-Tokens", "123456")
		json.NewEncoder(w).Encode(okBody("the summary"))
	})

	resp, err := c.Generate(context.Background(), Request{
		Model:           "gpt-5",
		System:          "sys",
		User:            "usr",
		MaxOutputTokens: 4000,
		Effort:          "medium",
	})
	require.NoError(t, err)
	assert.Equal(t, "the summary", resp.Text)
	assert.Equal(t, 1200, resp.InputTokens)
	assert.Equal(t, 300, resp.OutputTokens)
	assert.Equal(t, 100, resp.ReasoningTokens)
	assert.Equal(t, 123456, resp.RemainingTokens)
	assert.Equal(t, "completed", resp.FinishReason)
	assert.Nil(t, resp.Parsed)

	reasoning, ok := captured["reasoning"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "medium", reasoning["effort"])
}

func TestGenerateEffortOnlyForGPT5(t *testing.T) {
	var captured map[string]any
	c := fakeResponses(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(okBody("ok"))
	})

	_, err := c.Generate(context.Background(), Request{Model: "gpt-4.1", Effort: "high"})
	require.NoError(t, err)
	_, hasReasoning := captured["reasoning"]
	assert.False(t, hasReasoning)
}

func TestGenerateStructuredOutput(t *testing.T) {
	var captured map[string]any
	c := fakeResponses(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(okBody(`{"title":"Q2 Call"}`))
	})

	resp, err := c.Generate(context.Background(), Request{
		Model: "gpt-5",
		Format: &TextFormat{
			Name:   "qa_summary",
			Schema: map[string]any{"type": "object"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Parsed)

	text, ok := captured["text"].(map[string]any)
	require.True(t, ok)
	format := text["format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	assert.Equal(t, "qa_summary", format["name"])
	assert.Equal(t, true, format["strict"])
}

func TestGenerateEmptyOutput(t *testing.T) {
	c := fakeResponses(t, func(w http.ResponseWriter, r *http.Request) {
		body := okBody("")
		body["status"] = "incomplete"
		body["incomplete_details"] = map[string]any{"reason": "max_output_tokens"}
		json.NewEncoder(w).Encode(body)
	})

	_, err := c.Generate(context.Background(), Request{Model: "gpt-5"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeProviderEmptyOutput, apperr.CodeOf(err))
	assert.Contains(t, err.Error(), "max_output_tokens")
}

func TestGenerateMissingRateLimitHeader(t *testing.T) {
	c := fakeResponses(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(okBody("ok"))
	})
	resp, err := c.Generate(context.Background(), Request{Model: "gpt-5"})
	require.NoError(t, err)
	assert.Equal(t, -1, resp.RemainingTokens)
}

func TestGenerateHTTPError(t *testing.T) {
	c := fakeResponses(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	})
	_, err := c.Generate(context.Background(), Request{Model: "gpt-5"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestGenerateMissingAPIKey(t *testing.T) {
	c := NewOpenAIClient("", "http://localhost:0", time.Second)
	_, err := c.Generate(context.Background(), Request{Model: "gpt-5"})
	require.Error(t, err)
}
