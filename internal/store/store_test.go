package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/summarizer/internal/apperr"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(t.TempDir())
	require.NoError(t, err)
	return reg
}

func testInput() JobInput {
	return JobInput{
		CallType:      "earnings",
		SummaryLength: "short",
		AnswerFormat:  "prose",
		Filename:      "acme_q2.pdf",
	}
}

func TestCreateWritesInitialStatus(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Create("job1", "acme_q2", testInput()))

	st, err := reg.ReadStatus("job1")
	require.NoError(t, err)
	assert.Equal(t, "job1", st.JobID)
	assert.Equal(t, "acme_q2", st.TranscriptName)
	assert.Equal(t, StageQASummary, st.CurrentStage)
	assert.Equal(t, StateCompleted, st.StageStatus(StageValidating))
	assert.Equal(t, StatePending, st.StageStatus(StageQASummary))
	assert.Equal(t, 10.0, st.PercentComplete)
	assert.Equal(t, "earnings", st.Input.CallType)
	assert.NotEmpty(t, st.UpdatedAt)
}

func TestReadStatusUnknownJob(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.ReadStatus("missing")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeJobNotFound, apperr.CodeOf(err))
}

func TestUpdateStatusMergesStages(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Create("job1", "acme_q2", testInput()))

	require.NoError(t, reg.SetStage("job1", StageQASummary, StateRunning, true))
	st, err := reg.ReadStatus("job1")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, st.StageStatus(StageQASummary))
	assert.Equal(t, StageQASummary, st.CurrentStage)
	assert.Equal(t, 25.0, st.PercentComplete)
	// untouched stages survive the merge
	assert.Equal(t, StateCompleted, st.StageStatus(StageValidating))
	assert.Equal(t, StatePending, st.StageStatus(StageJudge))

	// completing a stage without advance leaves progress alone
	require.NoError(t, reg.SetStage("job1", StageQASummary, StateCompleted, false))
	st, err = reg.ReadStatus("job1")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, st.StageStatus(StageQASummary))
	assert.Equal(t, 25.0, st.PercentComplete)
}

func TestStatusStagesAreStrings(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Create("job1", "acme_q2.json", testInput()))
	require.NoError(t, reg.SetStage("job1", StageQASummary, StateRunning, true))

	doc, err := reg.ReadStatusDoc("job1")
	require.NoError(t, err)
	stages, ok := doc["stages"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, StateCompleted, stages[StageValidating])
	assert.Equal(t, StateRunning, stages[StageQASummary])
	assert.Equal(t, StatePending, stages[StageOverview])
}

func TestPercentForStageEntry(t *testing.T) {
	assert.Equal(t, 10.0, PercentFor(StageValidating))
	assert.Equal(t, 25.0, PercentFor(StageQASummary))
	assert.Equal(t, 55.0, PercentFor(StageOverview))
	assert.Equal(t, 55.0, PercentFor(StageJudge))
	assert.Equal(t, 100.0, PercentFor(JobCompleted))
}

func TestUpdateStatusRefreshesUpdatedAt(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Create("job1", "acme_q2", testInput()))
	before, err := reg.ReadStatus("job1")
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, reg.UpdateStatus("job1", map[string]any{"current_stage": JobCompleted}))

	after, err := reg.ReadStatus("job1")
	require.NoError(t, err)
	assert.NotEqual(t, before.UpdatedAt, after.UpdatedAt)
	assert.True(t, after.Terminal())
}

func TestAppendWarning(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Create("job1", "acme_q2", testInput()))
	require.NoError(t, reg.AppendWarning("job1", "overview summary failed"))
	require.NoError(t, reg.AppendWarning("job1", "summary evaluation timed out"))

	st, err := reg.ReadStatus("job1")
	require.NoError(t, err)
	require.Len(t, st.Warnings, 2)
	assert.Equal(t, "overview summary failed", st.Warnings[0])
}

func TestOutputsRoundTripAndRemove(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Create("job1", "acme_q2", testInput()))

	require.NoError(t, reg.WriteOutput("job1", StageQASummary, map[string]any{"title": "Q2 Call"}))
	out, err := reg.ReadOutput("job1", StageQASummary)
	require.NoError(t, err)
	assert.Equal(t, "Q2 Call", out["title"])

	missing, err := reg.ReadOutput("job1", StageOverview)
	require.NoError(t, err)
	assert.Nil(t, missing)

	reg.RemoveOutputs("job1")
	out, err = reg.ReadOutput("job1", StageQASummary)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestCancelTokenIdempotent(t *testing.T) {
	reg := newTestRegistry(t)
	tok := reg.Token("job1")
	assert.False(t, tok.Cancelled())
	tok.Cancel()
	tok.Cancel()
	assert.True(t, tok.Cancelled())
	// same token instance until released
	assert.True(t, reg.Token("job1").Cancelled())
	reg.ReleaseToken("job1")
	assert.False(t, reg.Token("job1").Cancelled())
}

func TestListJobsIgnoresCacheFiles(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Create("job1", "a.json", testInput()))
	// transcript records and the dedup index sit beside the job dirs
	require.NoError(t, os.WriteFile(filepath.Join(reg.Dir(), "acme_q2.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(reg.Dir(), "job_index.json"), []byte("{}"), 0o644))

	jobs, err := reg.ListJobs()
	require.NoError(t, err)
	assert.Equal(t, []string{"job1"}, jobs)
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	require.NoError(t, WriteJSONAtomic(path, map[string]any{"a": 1}))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "status.json", entries[0].Name())
}

func TestJobIDAndSignatureShape(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	id := NewJobID("acme_q2", now)
	assert.Len(t, id, 16)
	assert.Equal(t, id, NewJobID("acme_q2", now))
	assert.NotEqual(t, id, NewJobID("acme_q2", now.Add(time.Second)))

	sig := Signature("hash", "earnings", "short", PromptSig("v1", "v1", "v2"), "prose")
	assert.Len(t, sig, 32)
	assert.NotEqual(t, sig, Signature("hash", "earnings", "long", PromptSig("v1", "v1", "v2"), "prose"))
}

func TestIndexPutGetPrune(t *testing.T) {
	dir := t.TempDir()
	ix := NewIndex(dir)

	_, ok := ix.Get("sig1")
	assert.False(t, ok)

	require.NoError(t, ix.Put("sig1", "job1"))
	require.NoError(t, ix.Put("sig2", "job2"))
	id, ok := ix.Get("sig1")
	require.True(t, ok)
	assert.Equal(t, "job1", id)

	removed, err := ix.Prune(map[string]bool{"job1": true})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, ok = ix.Get("sig2")
	assert.False(t, ok)
}

func TestCanReuse(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Create("job1", "acme_q2", testInput()))
	assert.False(t, CanReuse(reg, "job1"))

	for _, stage := range OutputNames {
		require.NoError(t, reg.SetStage("job1", stage, StateCompleted, false))
		require.NoError(t, reg.WriteOutput("job1", stage, map[string]any{"ok": true}))
	}
	assert.True(t, CanReuse(reg, "job1"))

	// a missing artifact breaks reuse even with completed stages
	require.NoError(t, os.Remove(reg.OutputPath("job1", StageJudge)))
	assert.False(t, CanReuse(reg, "job1"))

	assert.False(t, CanReuse(reg, "missing"))
}
