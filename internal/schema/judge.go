package schema

// EvaluationError is one discrepancy found between summary and transcript.
type EvaluationError struct {
	Error          string `json:"error"`
	SummaryText    string `json:"summary_text"`
	TranscriptText string `json:"transcript_text"`
}

// MetricResult is the outcome of one evaluation criterion.
type MetricResult struct {
	MetricName string            `json:"metric_name"`
	Passed     bool              `json:"passed"`
	Errors     []EvaluationError `json:"errors"`
}

// OverallAssessment aggregates the per-metric results.
type OverallAssessment struct {
	TotalCriteria       int     `json:"total_criteria"`
	PassedCriteria      int     `json:"passed_criteria"`
	FailedCriteria      int     `json:"failed_criteria"`
	OverallPassed       bool    `json:"overall_passed"`
	PassRate            float64 `json:"pass_rate"`
	EvaluationTimestamp string  `json:"evaluation_timestamp"`
	EvaluationSummary   string  `json:"evaluation_summary"`
}

// Evaluation is the judge artifact grading the Q&A summary.
type Evaluation struct {
	EvaluationResults []MetricResult    `json:"evaluation_results"`
	OverallAssessment OverallAssessment `json:"overall_assessment"`
}

func judgeSchema() map[string]any {
	evalError := obj(map[string]any{
		"error":           str(),
		"summary_text":    str(),
		"transcript_text": str(),
	}, "error", "summary_text", "transcript_text")

	metric := obj(map[string]any{
		"metric_name": str(),
		"passed":      boolean(),
		"errors":      arr(evalError),
	}, "metric_name", "passed", "errors")

	assessment := obj(map[string]any{
		"total_criteria":       integer(),
		"passed_criteria":      integer(),
		"failed_criteria":      integer(),
		"overall_passed":       boolean(),
		"pass_rate":            num(),
		"evaluation_timestamp": str(),
		"evaluation_summary":   str(),
	}, "total_criteria", "passed_criteria", "failed_criteria",
		"overall_passed", "pass_rate", "evaluation_timestamp", "evaluation_summary")

	return obj(map[string]any{
		"evaluation_results": arr(metric),
		"overall_assessment": assessment,
	}, "evaluation_results", "overall_assessment")
}
