package store

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// NewJobID derives a job id from the transcript name and submission time:
// first 16 hex chars of SHA-1("<name>-<timestamp>").
func NewJobID(transcriptName string, now time.Time) string {
	sum := sha1.Sum([]byte(transcriptName + "-" + now.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:])[:16]
}

// PromptSig joins the three prompt versions into the signature component.
func PromptSig(qaVersion, overviewVersion, judgeVersion string) string {
	return strings.Join([]string{qaVersion, overviewVersion, judgeVersion}, "|")
}

// Signature derives the dedup key for a job request: first 32 hex chars of
// SHA-1 over the content hash and every parameter that shapes the output.
func Signature(contentHash, callType, summaryLength, promptSig, answerFormat string) string {
	raw := strings.Join([]string{contentHash, callType, summaryLength, promptSig, answerFormat}, "|")
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])[:32]
}

// Index maps request signatures to job ids so identical requests reuse a
// finished job instead of re-running the pipeline. Persisted as a flat JSON
// object at <cache>/job_index.json.
type Index struct {
	path string
	mu   sync.Mutex
}

// NewIndex creates an index stored under the cache root.
func NewIndex(cacheDir string) *Index {
	return &Index{path: filepath.Join(cacheDir, "job_index.json")}
}

func (ix *Index) load() map[string]string {
	m := make(map[string]string)
	err := ReadJSON(ix.path, &m)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		// a corrupt index only costs dedup hits; start fresh
		return make(map[string]string)
	}
	return m
}

// Get looks up the job id recorded for a signature.
func (ix *Index) Get(signature string) (string, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	id, ok := ix.load()[signature]
	return id, ok
}

// Put records or overwrites the job id for a signature.
func (ix *Index) Put(signature, jobID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	m := ix.load()
	m[signature] = jobID
	return WriteJSONAtomic(ix.path, m)
}

// Prune drops entries whose job id is not in the active set.
func (ix *Index) Prune(active map[string]bool) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	m := ix.load()
	removed := 0
	for sig, id := range m {
		if !active[id] {
			delete(m, sig)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, WriteJSONAtomic(ix.path, m)
}

// CanReuse reports whether a previously indexed job is complete enough to
// serve again: its status parses, all three summary stages completed, and
// all three artifacts exist and parse.
func CanReuse(reg *Registry, jobID string) bool {
	st, err := reg.ReadStatus(jobID)
	if err != nil {
		return false
	}
	for _, stage := range OutputNames {
		if st.StageStatus(stage) != StateCompleted {
			return false
		}
	}
	for _, name := range OutputNames {
		out, err := reg.ReadOutput(jobID, name)
		if err != nil || out == nil {
			return false
		}
	}
	return true
}
