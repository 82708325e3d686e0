package transcript

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/summarizer/internal/store"
)

// Input captures the request parameters recorded alongside a transcript.
type Input struct {
	CallType      string `json:"call_type"`
	SummaryLength string `json:"summary_length"`
	AnswerFormat  string `json:"answer_format"`
	Filename      string `json:"filename"`
}

// Sections holds the two segmented halves of a call transcript.
type Sections struct {
	Presentation string `json:"presentation"`
	QA           string `json:"q_a"`
}

// Record is the persisted form of a validated transcript, stored as
// <cache dir>/<name> where name is the .json-suffixed upload basename.
type Record struct {
	ValidatedAt    string   `json:"validated_at"`
	Input          Input    `json:"input"`
	Transcripts    Sections `json:"transcripts"`
	ContentHash    string   `json:"content_hash"`
	TranscriptName string   `json:"transcript_name"`
}

// ContentHash fingerprints the segmented text: SHA-256 over the trimmed
// presentation and Q&A joined by a blank line. Stable across re-uploads of
// the same document regardless of filename.
func ContentHash(presentation, qa string) string {
	joined := strings.TrimSpace(presentation) + "\n\n" + strings.TrimSpace(qa)
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

// Name derives the transcript record name from an uploaded filename: the
// base name with its extension replaced by .json, case and spaces kept.
func Name(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".json"
}

// Store persists transcript records on disk.
type Store struct {
	dir string
}

// NewStore creates a transcript store rooted at dir, normally the cache
// root where records sit beside the job directories.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcripts dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// Load returns the stored record for a transcript name, or nil if absent.
func (s *Store) Load(name string) (*Record, error) {
	var rec Record
	err := store.ReadJSON(s.path(name), &rec)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Save persists a freshly validated transcript. When a record with the same
// name and content hash already exists it is reused untouched; a different
// hash under the same name overwrites the old record.
func (s *Store) Save(name string, in Input, sections Sections) (*Record, bool, error) {
	hash := ContentHash(sections.Presentation, sections.QA)

	existing, err := s.Load(name)
	if err != nil {
		log.Warn().Err(err).Str("transcript", name).Msg("unreadable transcript record, rewriting")
	}
	if existing != nil && existing.ContentHash == hash {
		return existing, true, nil
	}

	rec := &Record{
		ValidatedAt:    time.Now().UTC().Format(time.RFC3339),
		Input:          in,
		Transcripts:    sections,
		ContentHash:    hash,
		TranscriptName: name,
	}
	if err := store.WriteJSONAtomic(s.path(name), rec); err != nil {
		return nil, false, fmt.Errorf("save transcript %s: %w", name, err)
	}
	return rec, false, nil
}
