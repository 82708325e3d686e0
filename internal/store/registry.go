package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/local/summarizer/internal/apperr"
)

// OutputNames are the stage artifacts written next to status.json.
var OutputNames = []string{StageQASummary, StageOverview, StageJudge}

// CancelToken signals cooperative cancellation for one job. Setting it is
// idempotent; LLM results that arrive after it is set are discarded.
type CancelToken struct {
	once sync.Once
	ch   chan struct{}
}

func newCancelToken() *CancelToken {
	return &CancelToken{ch: make(chan struct{})}
}

// Cancel sets the token.
func (t *CancelToken) Cancel() { t.once.Do(func() { close(t.ch) }) }

// Cancelled reports whether the token has been set.
func (t *CancelToken) Cancelled() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the token is set.
func (t *CancelToken) Done() <-chan struct{} { return t.ch }

// Registry owns the on-disk job cache: one directory per job holding
// status.json and the stage output artifacts. All status mutations go
// through per-job locks and atomic writes.
type Registry struct {
	dir string

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	tokens map[string]*CancelToken
}

// NewRegistry creates a registry rooted at dir.
func NewRegistry(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Registry{
		dir:    dir,
		locks:  make(map[string]*sync.Mutex),
		tokens: make(map[string]*CancelToken),
	}, nil
}

// Dir returns the cache root.
func (r *Registry) Dir() string { return r.dir }

// JobDir returns the directory for a job.
func (r *Registry) JobDir(jobID string) string { return filepath.Join(r.dir, jobID) }

func (r *Registry) statusPath(jobID string) string {
	return filepath.Join(r.dir, jobID, "status.json")
}

// OutputPath returns the artifact path for a stage output.
func (r *Registry) OutputPath(jobID, name string) string {
	return filepath.Join(r.dir, jobID, name+".json")
}

// Lock returns the mutex guarding one job's files, creating it on demand.
func (r *Registry) Lock(jobID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[jobID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[jobID] = l
	}
	return l
}

// Token returns the cancel token for a job, creating it on demand.
func (r *Registry) Token(jobID string) *CancelToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[jobID]
	if !ok {
		t = newCancelToken()
		r.tokens[jobID] = t
	}
	return t
}

// ReleaseToken drops the token once a job is finalized.
func (r *Registry) ReleaseToken(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, jobID)
}

// Create initializes the job directory and writes the initial status.
func (r *Registry) Create(jobID, transcriptName string, input JobInput) error {
	lock := r.Lock(jobID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(r.JobDir(jobID), 0o755); err != nil {
		return apperr.Wrap(apperr.CodePersistError, err)
	}
	doc := NewStatusDoc(jobID, transcriptName, input)
	if err := WriteJSONAtomic(r.statusPath(jobID), doc); err != nil {
		return apperr.Wrap(apperr.CodePersistError, err)
	}
	return nil
}

// ReadStatus returns the typed status for a job.
func (r *Registry) ReadStatus(jobID string) (*JobStatus, error) {
	lock := r.Lock(jobID)
	lock.Lock()
	defer lock.Unlock()
	return r.readStatusLocked(jobID)
}

func (r *Registry) readStatusLocked(jobID string) (*JobStatus, error) {
	var st JobStatus
	err := ReadJSON(r.statusPath(jobID), &st)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.Newf(apperr.CodeJobNotFound, "job %s not found", jobID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStatusReadError, err)
	}
	return &st, nil
}

// ReadStatusDoc returns the raw status document, unknown fields included.
func (r *Registry) ReadStatusDoc(jobID string) (map[string]any, error) {
	lock := r.Lock(jobID)
	lock.Lock()
	defer lock.Unlock()

	var doc map[string]any
	err := ReadJSON(r.statusPath(jobID), &doc)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.Newf(apperr.CodeJobNotFound, "job %s not found", jobID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStatusReadError, err)
	}
	return doc, nil
}

// UpdateStatus applies a patch to status.json under the job lock. Stage and
// input maps are merged; scalar fields are replaced; updated_at refreshes.
func (r *Registry) UpdateStatus(jobID string, patch map[string]any) error {
	lock := r.Lock(jobID)
	lock.Lock()
	defer lock.Unlock()

	var doc map[string]any
	err := ReadJSON(r.statusPath(jobID), &doc)
	if errors.Is(err, os.ErrNotExist) {
		return apperr.Newf(apperr.CodeJobNotFound, "job %s not found", jobID)
	}
	if err != nil {
		return apperr.Wrap(apperr.CodeStatusReadError, err)
	}
	applyPatch(doc, patch)
	if err := WriteJSONAtomic(r.statusPath(jobID), doc); err != nil {
		return apperr.Wrap(apperr.CodePersistError, err)
	}
	return nil
}

// SetStage records one stage's state. With advance the job's current_stage
// and percent_complete move to the stage as well.
func (r *Registry) SetStage(jobID, stage, state string, advance bool) error {
	patch := map[string]any{
		"stages": map[string]any{stage: state},
	}
	if advance {
		patch["current_stage"] = stage
		patch["percent_complete"] = PercentFor(stage)
	}
	return r.UpdateStatus(jobID, patch)
}

// AppendWarning adds a warning line to the status.
func (r *Registry) AppendWarning(jobID, msg string) error {
	lock := r.Lock(jobID)
	lock.Lock()
	defer lock.Unlock()

	var doc map[string]any
	if err := ReadJSON(r.statusPath(jobID), &doc); err != nil {
		return apperr.Wrap(apperr.CodeStatusReadError, err)
	}
	var warnings []any
	if w, ok := doc["warnings"].([]any); ok {
		warnings = w
	}
	doc["warnings"] = append(warnings, msg)
	applyPatch(doc, nil)
	if err := WriteJSONAtomic(r.statusPath(jobID), doc); err != nil {
		return apperr.Wrap(apperr.CodePersistError, err)
	}
	return nil
}

// WriteOutput persists a stage artifact atomically.
func (r *Registry) WriteOutput(jobID, name string, v any) error {
	lock := r.Lock(jobID)
	lock.Lock()
	defer lock.Unlock()
	if err := WriteJSONAtomic(r.OutputPath(jobID, name), v); err != nil {
		return apperr.Wrap(apperr.CodePersistError, err)
	}
	return nil
}

// ReadOutput loads a stage artifact; (nil, nil) when the file is absent.
func (r *Registry) ReadOutput(jobID, name string) (map[string]any, error) {
	var out map[string]any
	err := ReadJSON(r.OutputPath(jobID, name), &out)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveOutputs deletes all stage artifacts for a job.
func (r *Registry) RemoveOutputs(jobID string) {
	for _, name := range OutputNames {
		_ = os.Remove(r.OutputPath(jobID, name))
	}
}

// RemoveJob deletes the whole job directory and forgets its lock and token.
func (r *Registry) RemoveJob(jobID string) error {
	lock := r.Lock(jobID)
	lock.Lock()
	err := os.RemoveAll(r.JobDir(jobID))
	lock.Unlock()

	r.mu.Lock()
	delete(r.locks, jobID)
	delete(r.tokens, jobID)
	r.mu.Unlock()
	return err
}

// ListJobs returns the job ids present in the cache.
func (r *Registry) ListJobs() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		// transcript records and the dedup index are files, jobs are dirs
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
