package schema

// ExecutiveAnswer attributes bullet points to the executive who spoke.
type ExecutiveAnswer struct {
	Executive     string   `json:"executive"`
	AnswerSummary []string `json:"answer_summary"`
}

// EarningsQuestionProse is one analyst question with a prose answer.
type EarningsQuestionProse struct {
	Question      string `json:"question"`
	AnswerSummary string `json:"answer_summary"`
}

// EarningsQuestionBullet is one analyst question with bullet answers. Older
// summaries carry a flat answer_summary list instead of per-executive
// answers; both shapes are accepted.
type EarningsQuestionBullet struct {
	Question      string            `json:"question"`
	Answers       []ExecutiveAnswer `json:"answers,omitempty"`
	AnswerSummary []string          `json:"answer_summary,omitempty"`
}

// AnalystProse groups a prose-format exchange by analyst.
type AnalystProse struct {
	Name      string                  `json:"name"`
	Firm      string                  `json:"firm"`
	Questions []EarningsQuestionProse `json:"questions"`
}

// AnalystBullet groups a bullet-format exchange by analyst.
type AnalystBullet struct {
	Name      string                   `json:"name"`
	Firm      string                   `json:"firm"`
	Questions []EarningsQuestionBullet `json:"questions"`
}

// EarningsSummaryProse is the Q&A summary of an earnings call in prose form.
type EarningsSummaryProse struct {
	Title    string         `json:"title"`
	Analysts []AnalystProse `json:"analysts"`
}

// EarningsSummaryBullet is the Q&A summary of an earnings call in bullet form.
type EarningsSummaryBullet struct {
	Title    string          `json:"title"`
	Analysts []AnalystBullet `json:"analysts"`
}

// ConferenceQAProse is one exchange within a conference topic.
type ConferenceQAProse struct {
	Question      string `json:"question"`
	AnswerSummary string `json:"answer_summary"`
}

// ConferenceQABullet is the bullet-form exchange within a conference topic.
type ConferenceQABullet struct {
	Question      string            `json:"question"`
	Answers       []ExecutiveAnswer `json:"answers,omitempty"`
	AnswerSummary []string          `json:"answer_summary,omitempty"`
}

// ConferenceTopicProse groups conference exchanges by discussion topic.
type ConferenceTopicProse struct {
	Topic           string              `json:"topic"`
	QuestionAnswers []ConferenceQAProse `json:"question_answers"`
}

// ConferenceTopicBullet groups bullet-form conference exchanges by topic.
type ConferenceTopicBullet struct {
	Topic           string               `json:"topic"`
	QuestionAnswers []ConferenceQABullet `json:"question_answers"`
}

// ConferenceSummaryProse is the Q&A summary of a conference call.
type ConferenceSummaryProse struct {
	Title  string                 `json:"title"`
	Topics []ConferenceTopicProse `json:"topics"`
}

// ConferenceSummaryBullet is the bullet-form conference Q&A summary.
type ConferenceSummaryBullet struct {
	Title  string                  `json:"title"`
	Topics []ConferenceTopicBullet `json:"topics"`
}

func earningsSchema(answerFormat string) map[string]any {
	var question map[string]any
	if answerFormat == FormatBullet {
		question = obj(map[string]any{
			"question": str(),
			"answers": arr(obj(map[string]any{
				"executive":      str(),
				"answer_summary": arr(str()),
			}, "executive", "answer_summary")),
		}, "question", "answers")
	} else {
		question = obj(map[string]any{
			"question":       str(),
			"answer_summary": str(),
		}, "question", "answer_summary")
	}

	analyst := obj(map[string]any{
		"name":      str(),
		"firm":      str(),
		"questions": arr(question),
	}, "name", "firm", "questions")

	return obj(map[string]any{
		"title":    str(),
		"analysts": arr(analyst),
	}, "title", "analysts")
}

func conferenceSchema(answerFormat string) map[string]any {
	var qa map[string]any
	if answerFormat == FormatBullet {
		qa = obj(map[string]any{
			"question": str(),
			"answers": arr(obj(map[string]any{
				"executive":      str(),
				"answer_summary": arr(str()),
			}, "executive", "answer_summary")),
		}, "question", "answers")
	} else {
		qa = obj(map[string]any{
			"question":       str(),
			"answer_summary": str(),
		}, "question", "answer_summary")
	}

	topic := obj(map[string]any{
		"topic":            str(),
		"question_answers": arr(qa),
	}, "topic", "question_answers")

	return obj(map[string]any{
		"title":  str(),
		"topics": arr(topic),
	}, "title", "topics")
}
