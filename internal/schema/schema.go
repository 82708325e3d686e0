// Package schema defines the structured output contracts for each pipeline
// stage: the JSON Schemas sent to the model and the strict decoders that
// reject any payload deviating from them.
package schema

import (
	"bytes"
	"encoding/json"

	"github.com/local/summarizer/internal/apperr"
	"github.com/local/summarizer/internal/llm"
)

// Call types and answer formats accepted by the API.
const (
	CallEarnings   = "earnings"
	CallConference = "conference"

	FormatProse  = "prose"
	FormatBullet = "bullet"

	LengthShort = "short"
	LengthLong  = "long"
)

// QAFormat returns the structured output format for the Q&A summary stage.
func QAFormat(callType, answerFormat string) *llm.TextFormat {
	if callType == CallConference {
		return &llm.TextFormat{Name: "conference_summary", Schema: conferenceSchema(answerFormat)}
	}
	return &llm.TextFormat{Name: "earnings_summary", Schema: earningsSchema(answerFormat)}
}

// OverviewFormat returns the structured output format for the overview stage.
func OverviewFormat() *llm.TextFormat {
	return &llm.TextFormat{Name: "call_overview", Schema: overviewSchema()}
}

// JudgeFormat returns the structured output format for the evaluation stage.
func JudgeFormat() *llm.TextFormat {
	return &llm.TextFormat{Name: "summary_evaluation", Schema: judgeSchema()}
}

// ValidateQA strictly decodes a Q&A summary payload for the given request
// shape, returning llm_invalid_json when it does not conform.
func ValidateQA(callType, answerFormat string, data []byte) error {
	switch {
	case callType == CallConference && answerFormat == FormatBullet:
		return strictDecode(data, &ConferenceSummaryBullet{})
	case callType == CallConference:
		return strictDecode(data, &ConferenceSummaryProse{})
	case answerFormat == FormatBullet:
		return strictDecode(data, &EarningsSummaryBullet{})
	default:
		return strictDecode(data, &EarningsSummaryProse{})
	}
}

// ValidateOverview strictly decodes an overview payload.
func ValidateOverview(data []byte) error {
	return strictDecode(data, &Overview{})
}

// ValidateJudge strictly decodes an evaluation payload.
func ValidateJudge(data []byte) error {
	return strictDecode(data, &Evaluation{})
}

func strictDecode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.CodeLLMInvalidJSON, err)
	}
	return nil
}

// JSON Schema builders. Structured output strict mode requires every
// property listed in required and additionalProperties:false.

func obj(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func arr(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

func str() map[string]any { return map[string]any{"type": "string"} }

func boolean() map[string]any { return map[string]any{"type": "boolean"} }

func num() map[string]any { return map[string]any{"type": "number"} }

func integer() map[string]any { return map[string]any{"type": "integer"} }

func nullable(s map[string]any) map[string]any {
	return map[string]any{"anyOf": []any{s, map[string]any{"type": "null"}}}
}
