package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePrompt(t *testing.T, dir, kind, version, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, kind), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, kind, version+".json"), []byte(body), 0o644))
}

func TestLoadAndRender(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "earnings-short-prose", "version_1", `{
		"system_prompt": "You summarize earnings calls.",
		"user_prompt": "Summarize this {CALL_TYPE} transcript:\n{TRANSCRIPT}",
		"params": {"max_output_tokens": 8000}
	}`)

	s := NewFSSource(dir)
	p, err := s.Load("earnings-short-prose", "version_1")
	require.NoError(t, err)
	assert.Equal(t, 8000, p.Params.MaxOutputTokens)

	rendered := p.Render(map[string]string{
		"CALL_TYPE":  "earnings",
		"TRANSCRIPT": "hello world",
	})
	assert.Equal(t, "Summarize this earnings transcript:\nhello world", rendered)
}

func TestLoadMissingVersion(t *testing.T) {
	s := NewFSSource(t.TempDir())
	_, err := s.Load("overview", "version_9")
	require.Error(t, err)
}

func TestLoadRejectsIncompletePrompt(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "judge", "version_2", `{"system_prompt": "only system"}`)
	s := NewFSSource(dir)
	_, err := s.Load("judge", "version_2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}
