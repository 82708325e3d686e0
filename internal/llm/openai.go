package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/summarizer/internal/apperr"
)

// OpenAIClient talks to the OpenAI Responses API.
type OpenAIClient struct {
	http    *http.Client
	apiKey  string
	baseURL string
}

// NewOpenAIClient creates a client against baseURL (e.g.
// https://api.openai.com/v1) with the given request timeout.
func NewOpenAIClient(apiKey, baseURL string, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		http:    &http.Client{Timeout: timeout},
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type responsesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesReq struct {
	Model           string             `json:"model"`
	Input           []responsesMessage `json:"input"`
	MaxOutputTokens int                `json:"max_output_tokens,omitempty"`
	Reasoning       *struct {
		Effort string `json:"effort"`
	} `json:"reasoning,omitempty"`
	Text *struct {
		Format map[string]any `json:"format"`
	} `json:"text,omitempty"`
}

type responsesResp struct {
	Model             string `json:"model"`
	Status            string `json:"status"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Usage struct {
		InputTokens         int `json:"input_tokens"`
		OutputTokens        int `json:"output_tokens"`
		OutputTokensDetails struct {
			ReasoningTokens int `json:"reasoning_tokens"`
		} `json:"output_tokens_details"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate runs one model call and returns the text plus usage accounting.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, apperr.New(apperr.CodeLLMSummaryError, "missing OPENAI_API_KEY")
	}

	payload := responsesReq{
		Model: req.Model,
		Input: []responsesMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if req.Effort != "" && strings.HasPrefix(req.Model, "gpt-5") {
		payload.Reasoning = &struct {
			Effort string `json:"effort"`
		}{Effort: req.Effort}
	}
	if req.Format != nil {
		payload.Text = &struct {
			Format map[string]any `json:"format"`
		}{Format: map[string]any{
			"type":   "json_schema",
			"name":   req.Format.Name,
			"schema": req.Format.Schema,
			"strict": true,
		}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()
	duration := time.Since(start).Seconds()

	remaining := -1
	if v := resp.Header.Get("x-ratelimit-remaining-tokens"); v != "" {
		if n, perr := strconv.Atoi(v); perr == nil {
			remaining = n
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Str("model", req.Model).Msg("openai request failed")
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, truncate(string(raw), 500))
	}

	var r responsesResp
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if r.Error != nil && r.Error.Message != "" {
		return nil, fmt.Errorf("openai error: %s", r.Error.Message)
	}

	text := outputText(&r)
	finish := r.Status
	if r.IncompleteDetails != nil && r.IncompleteDetails.Reason != "" {
		finish = r.IncompleteDetails.Reason
	}

	out := &Response{
		Text:            text,
		Model:           r.Model,
		InputTokens:     r.Usage.InputTokens,
		OutputTokens:    r.Usage.OutputTokens,
		ReasoningTokens: r.Usage.OutputTokensDetails.ReasoningTokens,
		FinishReason:    finish,
		RemainingTokens: remaining,
		DurationSeconds: duration,
	}
	if req.Format != nil && json.Valid([]byte(text)) {
		out.Parsed = json.RawMessage(text)
	}
	if text == "" && out.Parsed == nil {
		return nil, apperr.Newf(apperr.CodeProviderEmptyOutput,
			"model returned no output (finish_reason=%s)", finish)
	}

	log.Debug().
		Str("model", out.Model).
		Int("input_tokens", out.InputTokens).
		Int("output_tokens", out.OutputTokens).
		Int("remaining_tokens", out.RemainingTokens).
		Float64("duration_s", out.DurationSeconds).
		Msg("openai response")
	return out, nil
}

// outputText joins the output_text fragments of the message items.
func outputText(r *responsesResp) string {
	var b strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" {
			continue
		}
		for _, c := range item.Content {
			if c.Type == "output_text" {
				b.WriteString(c.Text)
			}
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
