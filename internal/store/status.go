package store

import (
	"time"
)

// Pipeline stages, in execution order.
const (
	StageValidating = "validating"
	StageQASummary  = "q_a_summary"
	StageOverview   = "overview_summary"
	StageJudge      = "summary_evaluation"
)

// Stage states.
const (
	StatePending   = "pending"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Terminal values for current_stage.
const (
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// PercentFor reports overall progress once the pipeline enters the given
// stage. The fan-out stages share one value; 100 is reserved for the
// finalized job.
func PercentFor(stage string) float64 {
	switch stage {
	case StageValidating:
		return 10
	case StageQASummary:
		return 25
	case StageOverview, StageJudge:
		return 55
	case JobCompleted:
		return 100
	}
	return 0
}

// Stages lists all pipeline stages in order.
func Stages() []string {
	return []string{StageValidating, StageQASummary, StageOverview, StageJudge}
}

// JobInput echoes the validated request parameters.
type JobInput struct {
	CallType      string `json:"call_type"`
	SummaryLength string `json:"summary_length"`
	AnswerFormat  string `json:"answer_format"`
	Filename      string `json:"filename"`
}

// StatusError is the terminal error recorded on a failed job.
type StatusError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JobStatus is the typed view of status.json used by readers. Writers
// operate on the raw map form so fields they do not know about survive.
// Stage states are stored as plain strings keyed by stage name.
type JobStatus struct {
	JobID           string            `json:"job_id"`
	TranscriptName  string            `json:"transcript_name"`
	CurrentStage    string            `json:"current_stage"`
	Stages          map[string]string `json:"stages"`
	PercentComplete float64           `json:"percent_complete"`
	UpdatedAt       string            `json:"updated_at"`
	Input           JobInput          `json:"input"`
	Error           *StatusError      `json:"error,omitempty"`
	Warnings        []string          `json:"warnings,omitempty"`
}

// Terminal reports whether the job has reached a terminal stage.
func (s *JobStatus) Terminal() bool {
	switch s.CurrentStage {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// StageStatus returns the state of a stage, or pending if absent.
func (s *JobStatus) StageStatus(stage string) string {
	if st, ok := s.Stages[stage]; ok && st != "" {
		return st
	}
	return StatePending
}

// NewStatusDoc builds the initial raw status document for a fresh job.
func NewStatusDoc(jobID, transcriptName string, input JobInput) map[string]any {
	stages := make(map[string]any, 4)
	for _, st := range Stages() {
		stages[st] = StatePending
	}
	stages[StageValidating] = StateCompleted
	return map[string]any{
		"job_id":           jobID,
		"transcript_name":  transcriptName,
		"current_stage":    StageQASummary,
		"stages":           stages,
		"percent_complete": PercentFor(StageValidating),
		"updated_at":       time.Now().UTC().Format(time.RFC3339),
		"input": map[string]any{
			"call_type":      input.CallType,
			"summary_length": input.SummaryLength,
			"answer_format":  input.AnswerFormat,
			"filename":       input.Filename,
		},
	}
}

// applyPatch merges patch into doc. Map-valued fields (stages, input) are
// merged one level deep so updating one stage leaves the others alone;
// everything else is replaced. updated_at is always refreshed.
func applyPatch(doc, patch map[string]any) {
	for k, v := range patch {
		// parallel stages finish out of order; progress never moves back
		if k == "percent_complete" {
			if cur, ok := asFloat(doc[k]); ok {
				if next, ok := asFloat(v); ok && next < cur {
					continue
				}
			}
		}
		pm, pok := v.(map[string]any)
		dm, dok := doc[k].(map[string]any)
		if pok && dok {
			for k2, v2 := range pm {
				inner, iok := v2.(map[string]any)
				existing, eok := dm[k2].(map[string]any)
				if iok && eok {
					for k3, v3 := range inner {
						existing[k3] = v3
					}
				} else {
					dm[k2] = v2
				}
			}
			continue
		}
		doc[k] = v
	}
	doc["updated_at"] = time.Now().UTC().Format(time.RFC3339)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
