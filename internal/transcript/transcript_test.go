package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHashTrimsAndJoins(t *testing.T) {
	a := ContentHash("  hello ", "world\n")
	b := ContentHash("hello", "world")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, ContentHash("hello", "there"))
}

func TestNameSwapsExtensionForJSON(t *testing.T) {
	assert.Equal(t, "acme_q2.json", Name("acme_q2.pdf"))
	assert.Equal(t, "acme_q2.json", Name("/uploads/acme_q2.pdf"))
	// case and spaces are kept
	assert.Equal(t, "Acme Q2.json", Name("Acme Q2.PDF"))
	assert.Equal(t, "notes.json", Name("notes"))
}

func TestSaveAndReuse(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	in := Input{CallType: "earnings", SummaryLength: "short", AnswerFormat: "prose", Filename: "acme_q2.pdf"}
	sections := Sections{Presentation: "prepared remarks", QA: "questions"}

	rec, reused, err := s.Save("acme_q2.json", in, sections)
	require.NoError(t, err)
	assert.False(t, reused)
	assert.Equal(t, "acme_q2.json", rec.TranscriptName)
	assert.NotEmpty(t, rec.ValidatedAt)

	// identical content reuses the stored record
	again, reused, err := s.Save("acme_q2.json", in, sections)
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, rec.ValidatedAt, again.ValidatedAt)

	// changed content overwrites
	sections.QA = "different questions"
	third, reused, err := s.Save("acme_q2.json", in, sections)
	require.NoError(t, err)
	assert.False(t, reused)
	assert.NotEqual(t, rec.ContentHash, third.ContentHash)

	loaded, err := s.Load("acme_q2.json")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, third.ContentHash, loaded.ContentHash)
}

func TestLoadMissing(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	rec, err := s.Load("nope.json")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
