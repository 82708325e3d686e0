package workflow

import "github.com/local/summarizer/internal/schema"

// Prompt kinds for the two post-summary stages.
const (
	KindOverview = "overview"
	KindJudge    = "judge"
)

// QAPromptKind selects the Q&A summary prompt for a request. Conference
// calls only ship a long-form prompt, so summary_length is ignored for them.
func QAPromptKind(callType, summaryLength, answerFormat string) string {
	if callType == schema.CallConference {
		return "conference-long-" + answerFormat
	}
	return "earnings-" + summaryLength + "-" + answerFormat
}
