package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/summarizer/internal/apperr"
	"github.com/local/summarizer/internal/llm"
	"github.com/local/summarizer/internal/metrics"
	"github.com/local/summarizer/internal/prompts"
	"github.com/local/summarizer/internal/schema"
	"github.com/local/summarizer/internal/store"
	"github.com/local/summarizer/internal/transcript"
)

// PromptSource resolves a prompt kind and version to its definition.
type PromptSource interface {
	Load(kind, version string) (*prompts.Prompt, error)
}

// Archiver ships finished artifacts to long-term storage. Failures must not
// affect job state.
type Archiver interface {
	Archive(ctx context.Context, jobID string, artifactPaths map[string]string) error
}

// Options tunes the pipeline.
type Options struct {
	QAModel        string
	QAEffort       string
	OverviewModel  string
	OverviewEffort string
	JudgeModel     string
	JudgeEffort    string

	QAVersion       string
	OverviewVersion string
	JudgeVersion    string

	FanOutDeadline     time.Duration
	RateLimitThreshold int
	RateLimitBackoff   time.Duration
}

// Dependencies wires the runner's collaborators.
type Dependencies struct {
	Registry *store.Registry
	Client   llm.Client
	Prompts  PromptSource
	Archiver Archiver // optional
}

// Runner executes the summary pipeline for one job: the Q&A summary first,
// then the overview and the evaluation in parallel.
type Runner struct {
	reg      *store.Registry
	client   llm.Client
	prompts  PromptSource
	archiver Archiver
	opts     Options
}

// NewRunner creates a pipeline runner.
func NewRunner(deps Dependencies, opts Options) *Runner {
	return &Runner{
		reg:      deps.Registry,
		client:   deps.Client,
		prompts:  deps.Prompts,
		archiver: deps.Archiver,
		opts:     opts,
	}
}

// Run executes the whole pipeline for a job. Intended to be launched on its
// own goroutine; all outcomes are reported through status.json.
func (r *Runner) Run(jobID string, rec *transcript.Record) {
	start := time.Now()
	token := r.reg.Token(jobID)
	defer r.reg.ReleaseToken(jobID)

	if token.Cancelled() {
		r.finalize(jobID, token, start)
		return
	}

	resp, qaPayload, err := r.runQA(jobID, rec, token)
	if err != nil {
		if apperr.Is(err, apperr.CodeCancelled) {
			r.finalize(jobID, token, start)
			return
		}
		_ = r.reg.SetStage(jobID, store.StageQASummary, store.StateFailed, false)
		r.failJob(jobID, qaFailCode(err), apperr.MessageOf(err))
		metrics.IncJob(store.JobFailed)
		return
	}

	if token.Cancelled() {
		r.finalize(jobID, token, start)
		return
	}

	if resp.RemainingTokens >= 0 && resp.RemainingTokens < r.opts.RateLimitThreshold {
		log.Warn().
			Str("job_id", jobID).
			Int("remaining_tokens", resp.RemainingTokens).
			Dur("backoff", r.opts.RateLimitBackoff).
			Msg("provider token budget low, backing off")
		metrics.IncRateLimitBackoff()
		time.Sleep(r.opts.RateLimitBackoff)
	}

	if token.Cancelled() {
		r.finalize(jobID, token, start)
		return
	}

	_ = r.reg.UpdateStatus(jobID, map[string]any{
		"current_stage":    store.StageOverview,
		"percent_complete": store.PercentFor(store.StageOverview),
	})

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.FanOutDeadline)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.runOverview(ctx, jobID, rec, token, start)
	}()
	go func() {
		defer wg.Done()
		r.runJudge(ctx, jobID, rec, qaPayload, token)
	}()
	wg.Wait()

	r.finalize(jobID, token, start)
}

func (r *Runner) runQA(jobID string, rec *transcript.Record, token *store.CancelToken) (*llm.Response, json.RawMessage, error) {
	in := rec.Input
	stageStart := time.Now()
	_ = r.reg.SetStage(jobID, store.StageQASummary, store.StateRunning, true)

	kind := QAPromptKind(in.CallType, in.SummaryLength, in.AnswerFormat)
	prompt, err := r.prompts.Load(kind, r.opts.QAVersion)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.CodeLLMSummaryError, err)
	}

	resp, err := r.client.Generate(context.Background(), llm.Request{
		Model:  r.opts.QAModel,
		System: prompt.SystemPrompt,
		User: prompt.Render(map[string]string{
			"TRANSCRIPT": rec.Transcripts.QA,
			"CALL_TYPE":  in.CallType,
		}),
		MaxOutputTokens: prompt.Params.MaxOutputTokens,
		Effort:          r.opts.QAEffort,
		Format:          schema.QAFormat(in.CallType, in.AnswerFormat),
	})
	if err != nil {
		metrics.ObserveLLM(r.opts.QAModel, store.StageQASummary, "error", 0, 0, 0)
		metrics.ObserveStage(store.StageQASummary, store.StateFailed, time.Since(stageStart))
		return nil, nil, err
	}
	metrics.ObserveLLM(resp.Model, store.StageQASummary, "ok", resp.InputTokens, resp.OutputTokens, resp.ReasoningTokens)

	payload := respPayload(resp)
	if err := schema.ValidateQA(in.CallType, in.AnswerFormat, payload); err != nil {
		metrics.ObserveStage(store.StageQASummary, store.StateFailed, time.Since(stageStart))
		return nil, nil, err
	}

	if token.Cancelled() {
		log.Info().Str("job_id", jobID).Msg("discarding Q&A summary for cancelled job")
		return nil, nil, apperr.New(apperr.CodeCancelled, "job cancelled")
	}

	artifact, err := buildArtifact(payload, stageMetadata(resp, prompt, r.opts.QAVersion, r.opts.QAEffort))
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.CodeLLMInvalidJSON, err)
	}
	if err := r.reg.WriteOutput(jobID, store.StageQASummary, artifact); err != nil {
		return nil, nil, err
	}
	_ = r.reg.SetStage(jobID, store.StageQASummary, store.StateCompleted, false)
	metrics.ObserveStage(store.StageQASummary, store.StateCompleted, time.Since(stageStart))
	log.Info().Str("job_id", jobID).Str("model", resp.Model).Msg("Q&A summary completed")
	return resp, payload, nil
}

func (r *Runner) runOverview(ctx context.Context, jobID string, rec *transcript.Record, token *store.CancelToken, pipelineStart time.Time) {
	stageStart := time.Now()
	_ = r.reg.SetStage(jobID, store.StageOverview, store.StateRunning, false)

	prompt, err := r.prompts.Load(KindOverview, r.opts.OverviewVersion)
	if err != nil {
		r.stageFailed(ctx, jobID, store.StageOverview, "overview summary", err, stageStart)
		return
	}

	full := rec.Transcripts.Presentation + "\n\n" + rec.Transcripts.QA
	resp, err := r.client.Generate(ctx, llm.Request{
		Model:  r.opts.OverviewModel,
		System: prompt.SystemPrompt,
		User: prompt.Render(map[string]string{
			"TRANSCRIPT": full,
			"CALL_TYPE":  rec.Input.CallType,
		}),
		MaxOutputTokens: prompt.Params.MaxOutputTokens,
		Effort:          r.opts.OverviewEffort,
		Format:          schema.OverviewFormat(),
	})
	if err != nil {
		metrics.ObserveLLM(r.opts.OverviewModel, store.StageOverview, "error", 0, 0, 0)
		r.stageFailed(ctx, jobID, store.StageOverview, "overview summary", err, stageStart)
		return
	}
	metrics.ObserveLLM(resp.Model, store.StageOverview, "ok", resp.InputTokens, resp.OutputTokens, resp.ReasoningTokens)

	payload := respPayload(resp)
	if err := schema.ValidateOverview(payload); err != nil {
		r.stageFailed(ctx, jobID, store.StageOverview, "overview summary", err, stageStart)
		return
	}

	if token.Cancelled() {
		log.Info().Str("job_id", jobID).Msg("discarding overview for cancelled job")
		return
	}

	meta := stageMetadata(resp, prompt, r.opts.OverviewVersion, r.opts.OverviewEffort)
	meta["total_time"] = roundSeconds(time.Since(pipelineStart))
	artifact, err := buildArtifact(payload, meta)
	if err != nil {
		r.stageFailed(ctx, jobID, store.StageOverview, "overview summary", err, stageStart)
		return
	}
	if err := r.reg.WriteOutput(jobID, store.StageOverview, artifact); err != nil {
		r.stageFailed(ctx, jobID, store.StageOverview, "overview summary", err, stageStart)
		return
	}
	_ = r.reg.SetStage(jobID, store.StageOverview, store.StateCompleted, false)
	metrics.ObserveStage(store.StageOverview, store.StateCompleted, time.Since(stageStart))
	log.Info().Str("job_id", jobID).Msg("overview summary completed")
}

func (r *Runner) runJudge(ctx context.Context, jobID string, rec *transcript.Record, qaPayload json.RawMessage, token *store.CancelToken) {
	stageStart := time.Now()
	_ = r.reg.SetStage(jobID, store.StageJudge, store.StateRunning, false)

	prompt, err := r.prompts.Load(KindJudge, r.opts.JudgeVersion)
	if err != nil {
		r.stageFailed(ctx, jobID, store.StageJudge, "summary evaluation", err, stageStart)
		return
	}

	resp, err := r.client.Generate(ctx, llm.Request{
		Model:  r.opts.JudgeModel,
		System: prompt.SystemPrompt,
		User: prompt.Render(map[string]string{
			"TRANSCRIPT":  rec.Transcripts.QA,
			"SUMMARY":     string(qaPayload),
			"Q_A_SUMMARY": string(qaPayload),
			"CALL_TYPE":   rec.Input.CallType,
		}),
		MaxOutputTokens: prompt.Params.MaxOutputTokens,
		Effort:          r.opts.JudgeEffort,
		Format:          schema.JudgeFormat(),
	})
	if err != nil {
		metrics.ObserveLLM(r.opts.JudgeModel, store.StageJudge, "error", 0, 0, 0)
		r.stageFailed(ctx, jobID, store.StageJudge, "summary evaluation", err, stageStart)
		return
	}
	metrics.ObserveLLM(resp.Model, store.StageJudge, "ok", resp.InputTokens, resp.OutputTokens, resp.ReasoningTokens)

	payload := respPayload(resp)
	if err := schema.ValidateJudge(payload); err != nil {
		r.stageFailed(ctx, jobID, store.StageJudge, "summary evaluation", err, stageStart)
		return
	}

	if token.Cancelled() {
		log.Info().Str("job_id", jobID).Msg("discarding evaluation for cancelled job")
		return
	}

	artifact, err := buildArtifact(payload, stageMetadata(resp, prompt, r.opts.JudgeVersion, r.opts.JudgeEffort))
	if err != nil {
		r.stageFailed(ctx, jobID, store.StageJudge, "summary evaluation", err, stageStart)
		return
	}
	if err := r.reg.WriteOutput(jobID, store.StageJudge, artifact); err != nil {
		r.stageFailed(ctx, jobID, store.StageJudge, "summary evaluation", err, stageStart)
		return
	}
	_ = r.reg.SetStage(jobID, store.StageJudge, store.StateCompleted, false)
	metrics.ObserveStage(store.StageJudge, store.StateCompleted, time.Since(stageStart))
	log.Info().Str("job_id", jobID).Msg("summary evaluation completed")
}

// stageFailed handles a non-fatal stage failure: the stage is marked failed
// and a warning is recorded, but the job keeps going.
func (r *Runner) stageFailed(ctx context.Context, jobID, stage, label string, err error, stageStart time.Time) {
	warning := label + " failed: " + apperr.MessageOf(err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		warning = label + " timed out"
	}
	log.Warn().Err(err).Str("job_id", jobID).Str("stage", stage).Msg("stage failed")
	_ = r.reg.SetStage(jobID, stage, store.StateFailed, false)
	_ = r.reg.AppendWarning(jobID, warning)
	metrics.ObserveStage(stage, store.StateFailed, time.Since(stageStart))
}

func (r *Runner) failJob(jobID, code, message string) {
	log.Error().Str("job_id", jobID).Str("code", code).Str("message", message).Msg("job failed")
	_ = r.reg.UpdateStatus(jobID, map[string]any{
		"current_stage": store.JobFailed,
		"error":         map[string]any{"code": code, "message": message},
	})
}

// finalize settles the job's terminal state. A cancelled job ends up failed
// so pollers see a terminal status; a job whose Q&A summary completed ends
// up completed even when a parallel stage failed.
func (r *Runner) finalize(jobID string, token *store.CancelToken, start time.Time) {
	st, err := r.reg.ReadStatus(jobID)
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("cannot finalize job")
		return
	}

	if token.Cancelled() || st.CurrentStage == store.JobCancelled {
		_ = r.reg.UpdateStatus(jobID, map[string]any{"current_stage": store.JobFailed})
		metrics.IncJob(store.JobCancelled)
		log.Info().Str("job_id", jobID).Dur("elapsed", time.Since(start)).Msg("job cancelled")
		return
	}
	if st.CurrentStage == store.JobFailed {
		return
	}

	qaDone := st.StageStatus(store.StageQASummary) == store.StateCompleted
	overviewSettled := settled(st.StageStatus(store.StageOverview))
	judgeSettled := settled(st.StageStatus(store.StageJudge))
	if qaDone && overviewSettled && judgeSettled {
		_ = r.reg.UpdateStatus(jobID, map[string]any{
			"current_stage":    store.JobCompleted,
			"percent_complete": store.PercentFor(store.JobCompleted),
		})
		metrics.IncJob(store.JobCompleted)
		log.Info().Str("job_id", jobID).Dur("elapsed", time.Since(start)).Msg("job completed")
		r.archive(jobID)
	}
}

func (r *Runner) archive(jobID string) {
	if r.archiver == nil {
		return
	}
	paths := make(map[string]string, len(store.OutputNames))
	for _, name := range store.OutputNames {
		paths[name] = r.reg.OutputPath(jobID, name)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.archiver.Archive(ctx, jobID, paths); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("artifact archival failed")
	}
}

func settled(state string) bool {
	return state == store.StateCompleted || state == store.StateFailed
}

func qaFailCode(err error) string {
	switch code := apperr.CodeOf(err); code {
	case apperr.CodeLLMInvalidJSON, apperr.CodeProviderEmptyOutput, apperr.CodeCancelled:
		return code
	default:
		return apperr.CodeLLMSummaryError
	}
}

func respPayload(resp *llm.Response) json.RawMessage {
	if resp.Parsed != nil {
		return resp.Parsed
	}
	return json.RawMessage(resp.Text)
}

// buildArtifact pairs a validated payload with its generation metadata in
// the persisted form {metadata, data}.
func buildArtifact(payload json.RawMessage, meta map[string]any) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, err
	}
	return map[string]any{"metadata": meta, "data": data}, nil
}

func stageMetadata(resp *llm.Response, prompt *prompts.Prompt, version, effort string) map[string]any {
	return map[string]any{
		"model":             resp.Model,
		"prompt_version":    version,
		"effort_level":      effort,
		"max_output_tokens": prompt.Params.MaxOutputTokens,
		"input_tokens":      resp.InputTokens,
		"output_tokens":     resp.OutputTokens,
		"reasoning_tokens":  resp.ReasoningTokens,
		"finish_reason":     resp.FinishReason,
		"remaining_tokens":  resp.RemainingTokens,
		"time":              roundSeconds(time.Duration(resp.DurationSeconds * float64(time.Second))),
	}
}

func roundSeconds(d time.Duration) int {
	return int(math.Round(d.Seconds()))
}
