package workflow

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/summarizer/internal/llm"
	"github.com/local/summarizer/internal/prompts"
	"github.com/local/summarizer/internal/store"
	"github.com/local/summarizer/internal/transcript"
)

const (
	validQAProse  = `{"title":"Q2 Call","analysts":[{"name":"Jo","firm":"Bank","questions":[{"question":"margins?","answer_summary":"improving"}]}]}`
	validOverview = `{"executives_list":[{"executive_name":"Pat","role":"CEO"}],"overview":"solid quarter"}`
	validJudge    = `{"evaluation_results":[],"overall_assessment":{"total_criteria":5,"passed_criteria":5,"failed_criteria":0,"overall_passed":true,"pass_rate":1,"evaluation_timestamp":"2026-08-01T00:00:00Z","evaluation_summary":"clean"}}`
)

// fakeClient routes calls by the requested output format name.
type fakeClient struct {
	mu       sync.Mutex
	handlers map[string]func(ctx context.Context, req llm.Request) (*llm.Response, error)
	calls    []string
}

func (f *fakeClient) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := ""
	if req.Format != nil {
		name = req.Format.Name
	}
	f.mu.Lock()
	f.calls = append(f.calls, name)
	h := f.handlers[name]
	f.mu.Unlock()
	if h == nil {
		return textResp(`{}`, 0), nil
	}
	return h(ctx, req)
}

func textResp(text string, remaining int) *llm.Response {
	return &llm.Response{
		Text:            text,
		Parsed:          json.RawMessage(text),
		Model:           "gpt-5",
		InputTokens:     1000,
		OutputTokens:    200,
		FinishReason:    "completed",
		RemainingTokens: remaining,
		DurationSeconds: 1.2,
	}
}

type fakePrompts struct{}

func (fakePrompts) Load(kind, version string) (*prompts.Prompt, error) {
	return &prompts.Prompt{
		SystemPrompt: "system for " + kind,
		UserPrompt:   "{TRANSCRIPT}",
		Params:       prompts.Params{MaxOutputTokens: 4000},
	}, nil
}

func happyClient() *fakeClient {
	return &fakeClient{handlers: map[string]func(ctx context.Context, req llm.Request) (*llm.Response, error){
		"earnings_summary":   func(context.Context, llm.Request) (*llm.Response, error) { return textResp(validQAProse, 900000), nil },
		"call_overview":      func(context.Context, llm.Request) (*llm.Response, error) { return textResp(validOverview, 900000), nil },
		"summary_evaluation": func(context.Context, llm.Request) (*llm.Response, error) { return textResp(validJudge, 900000), nil },
	}}
}

func testOptions() Options {
	return Options{
		QAModel: "gpt-5", QAEffort: "medium",
		OverviewModel: "gpt-5", OverviewEffort: "low",
		JudgeModel: "gpt-5", JudgeEffort: "low",
		QAVersion: "version_1", OverviewVersion: "version_1", JudgeVersion: "version_2",
		FanOutDeadline:     5 * time.Second,
		RateLimitThreshold: 40000,
		RateLimitBackoff:   time.Millisecond,
	}
}

func testRecord() *transcript.Record {
	return &transcript.Record{
		Input: transcript.Input{
			CallType: "earnings", SummaryLength: "short", AnswerFormat: "prose", Filename: "acme.pdf",
		},
		Transcripts:    transcript.Sections{Presentation: "remarks", QA: "questions and answers"},
		ContentHash:    "hash",
		TranscriptName: "acme",
	}
}

func newRun(t *testing.T, client llm.Client) (*Runner, *store.Registry) {
	t.Helper()
	reg, err := store.NewRegistry(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, reg.Create("job1", "acme", store.JobInput{
		CallType: "earnings", SummaryLength: "short", AnswerFormat: "prose", Filename: "acme.pdf",
	}))
	return NewRunner(Dependencies{Registry: reg, Client: client, Prompts: fakePrompts{}}, testOptions()), reg
}

func TestRunHappyPath(t *testing.T) {
	r, reg := newRun(t, happyClient())
	r.Run("job1", testRecord())

	st, err := reg.ReadStatus("job1")
	require.NoError(t, err)
	assert.Equal(t, store.JobCompleted, st.CurrentStage)
	assert.Equal(t, 100.0, st.PercentComplete)
	for _, stage := range store.OutputNames {
		assert.Equal(t, store.StateCompleted, st.StageStatus(stage), stage)
		out, err := reg.ReadOutput("job1", stage)
		require.NoError(t, err)
		require.NotNil(t, out, stage)
		// persisted artifacts hold exactly {metadata, data}
		require.Len(t, out, 2, stage)
		meta, ok := out["metadata"].(map[string]any)
		require.True(t, ok, stage)
		assert.Equal(t, "gpt-5", meta["model"])
		_, ok = out["data"].(map[string]any)
		require.True(t, ok, stage)
	}

	// the payload lands under data, untouched
	qa, _ := reg.ReadOutput("job1", store.StageQASummary)
	assert.Equal(t, "Q2 Call", qa["data"].(map[string]any)["title"])

	// overview metadata carries total pipeline time
	out, _ := reg.ReadOutput("job1", store.StageOverview)
	meta := out["metadata"].(map[string]any)
	_, hasTotal := meta["total_time"]
	assert.True(t, hasTotal)
	assert.Empty(t, st.Warnings)
}

func TestRunProgressAdvancesWithStages(t *testing.T) {
	client := happyClient()
	var reg *store.Registry
	var mu sync.Mutex
	seen := map[string]*store.JobStatus{}
	observe := func(key string) {
		if st, err := reg.ReadStatus("job1"); err == nil {
			mu.Lock()
			seen[key] = st
			mu.Unlock()
		}
	}
	client.handlers["earnings_summary"] = func(context.Context, llm.Request) (*llm.Response, error) {
		observe("qa")
		return textResp(validQAProse, 900000), nil
	}
	client.handlers["summary_evaluation"] = func(context.Context, llm.Request) (*llm.Response, error) {
		observe("judge")
		return textResp(validJudge, 900000), nil
	}

	r, r2 := newRun(t, client)
	reg = r2
	r.Run("job1", testRecord())

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, seen, "qa")
	assert.Equal(t, store.StageQASummary, seen["qa"].CurrentStage)
	assert.Equal(t, 25.0, seen["qa"].PercentComplete)

	// mid fan-out the job reads 55 even if the other branch finished first
	require.Contains(t, seen, "judge")
	assert.Equal(t, store.StageOverview, seen["judge"].CurrentStage)
	assert.Equal(t, 55.0, seen["judge"].PercentComplete)

	st, err := reg.ReadStatus("job1")
	require.NoError(t, err)
	assert.Equal(t, store.JobCompleted, st.CurrentStage)
	assert.Equal(t, 100.0, st.PercentComplete)
}

func TestRunQAInvalidJSONFailsJob(t *testing.T) {
	client := happyClient()
	client.handlers["earnings_summary"] = func(context.Context, llm.Request) (*llm.Response, error) {
		return textResp(`{"unexpected":"shape"}`, 900000), nil
	}
	r, reg := newRun(t, client)
	r.Run("job1", testRecord())

	st, err := reg.ReadStatus("job1")
	require.NoError(t, err)
	assert.Equal(t, store.JobFailed, st.CurrentStage)
	assert.Equal(t, store.StateFailed, st.StageStatus(store.StageQASummary))
	require.NotNil(t, st.Error)
	assert.Equal(t, "llm_invalid_json", st.Error.Code)

	// overview and judge never ran
	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, []string{"earnings_summary"}, client.calls)
}

func TestRunQAProviderErrorFailsJob(t *testing.T) {
	client := happyClient()
	client.handlers["earnings_summary"] = func(context.Context, llm.Request) (*llm.Response, error) {
		return nil, assert.AnError
	}
	r, reg := newRun(t, client)
	r.Run("job1", testRecord())

	st, err := reg.ReadStatus("job1")
	require.NoError(t, err)
	assert.Equal(t, store.JobFailed, st.CurrentStage)
	require.NotNil(t, st.Error)
	assert.Equal(t, "llm_summary_error", st.Error.Code)
}

func TestRunOverviewFailureIsNonFatal(t *testing.T) {
	client := happyClient()
	client.handlers["call_overview"] = func(context.Context, llm.Request) (*llm.Response, error) {
		return nil, assert.AnError
	}
	r, reg := newRun(t, client)
	r.Run("job1", testRecord())

	st, err := reg.ReadStatus("job1")
	require.NoError(t, err)
	assert.Equal(t, store.JobCompleted, st.CurrentStage)
	assert.Equal(t, store.StateFailed, st.StageStatus(store.StageOverview))
	assert.Equal(t, store.StateCompleted, st.StageStatus(store.StageJudge))
	require.NotEmpty(t, st.Warnings)
	assert.Contains(t, st.Warnings[0], "overview summary failed")

	out, err := reg.ReadOutput("job1", store.StageOverview)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRunFanOutDeadlineProducesTimeoutWarnings(t *testing.T) {
	client := happyClient()
	slow := func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
			return textResp(validOverview, 900000), nil
		}
	}
	client.handlers["call_overview"] = slow
	client.handlers["summary_evaluation"] = slow

	r, reg := newRun(t, client)
	opts := testOptions()
	opts.FanOutDeadline = 50 * time.Millisecond
	r.opts = opts
	r.Run("job1", testRecord())

	st, err := reg.ReadStatus("job1")
	require.NoError(t, err)
	assert.Equal(t, store.JobCompleted, st.CurrentStage)
	require.Len(t, st.Warnings, 2)
	for _, w := range st.Warnings {
		assert.Contains(t, w, "timed out")
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	r, reg := newRun(t, happyClient())
	reg.Token("job1").Cancel()
	r.Run("job1", testRecord())

	st, err := reg.ReadStatus("job1")
	require.NoError(t, err)
	assert.Equal(t, store.JobFailed, st.CurrentStage)
	out, err := reg.ReadOutput("job1", store.StageQASummary)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRunDiscardsQAResultAfterCancel(t *testing.T) {
	client := happyClient()
	var reg *store.Registry
	client.handlers["earnings_summary"] = func(context.Context, llm.Request) (*llm.Response, error) {
		// cancel lands while the model call is in flight
		reg.Token("job1").Cancel()
		return textResp(validQAProse, 900000), nil
	}
	r, r2 := newRun(t, client)
	reg = r2
	r.Run("job1", testRecord())

	st, err := reg.ReadStatus("job1")
	require.NoError(t, err)
	assert.Equal(t, store.JobFailed, st.CurrentStage)
	out, err := reg.ReadOutput("job1", store.StageQASummary)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRunBacksOffWhenTokensLow(t *testing.T) {
	client := happyClient()
	client.handlers["earnings_summary"] = func(context.Context, llm.Request) (*llm.Response, error) {
		return textResp(validQAProse, 100), nil
	}
	r, reg := newRun(t, client)
	r.Run("job1", testRecord())

	st, err := reg.ReadStatus("job1")
	require.NoError(t, err)
	assert.Equal(t, store.JobCompleted, st.CurrentStage)
}

func TestQAPromptKind(t *testing.T) {
	assert.Equal(t, "earnings-short-prose", QAPromptKind("earnings", "short", "prose"))
	assert.Equal(t, "earnings-long-bullet", QAPromptKind("earnings", "long", "bullet"))
	assert.Equal(t, "conference-long-prose", QAPromptKind("conference", "short", "prose"))
	assert.Equal(t, "conference-long-bullet", QAPromptKind("conference", "long", "bullet"))
}
