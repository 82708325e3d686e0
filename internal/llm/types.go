package llm

import (
	"context"
	"encoding/json"
)

// TextFormat requests structured output conforming to a JSON schema.
type TextFormat struct {
	Name   string
	Schema map[string]any
}

// Request is one model generation call.
type Request struct {
	Model           string
	System          string
	User            string
	MaxOutputTokens int
	Effort          string      // reasoning effort, only honored by gpt-5
	Format          *TextFormat // nil for free text
}

// Response carries the model output plus the usage accounting recorded in
// each stage's artifact metadata.
type Response struct {
	Text            string
	Parsed          json.RawMessage // set when a Format was requested and the text is valid JSON
	Model           string
	InputTokens     int
	OutputTokens    int
	ReasoningTokens int
	FinishReason    string
	RemainingTokens int // from the provider rate-limit headers, -1 if absent
	DurationSeconds float64
}

// Client is a text generation provider.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
