// Package cleanup retires old job directories from the cache and keeps the
// dedup index in sync with what is still on disk.
package cleanup

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/summarizer/internal/metrics"
	"github.com/local/summarizer/internal/store"
)

// Options tunes the retention policy.
type Options struct {
	StartupDelay time.Duration
	Interval     time.Duration
	Retention    time.Duration // terminal jobs older than this are removed
	ForceAfter   time.Duration // any job older than this is removed
}

// Worker runs cleanup cycles on a timer.
type Worker struct {
	reg   *store.Registry
	index *store.Index
	opts  Options
}

// NewWorker creates a cleanup worker.
func NewWorker(reg *store.Registry, index *store.Index, opts Options) *Worker {
	return &Worker{reg: reg, index: index, opts: opts}
}

// Start runs the worker until ctx is done. The first cycle waits out the
// startup delay so a restarting service serves requests before it scrubs.
func (w *Worker) Start(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(w.opts.StartupDelay):
	}

	w.RunCycle()
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunCycle()
		}
	}
}

// RunCycle inspects every job directory once. Per-job failures are logged
// and skipped; the cycle always finishes and prunes the index afterwards.
func (w *Worker) RunCycle() {
	start := time.Now()
	jobs, err := w.reg.ListJobs()
	if err != nil {
		log.Error().Err(err).Msg("cleanup: cannot list jobs")
		return
	}

	now := time.Now()
	active := make(map[string]bool, len(jobs))
	removed := 0
	for _, jobID := range jobs {
		reason, ok := w.evaluate(jobID, now)
		if !ok {
			active[jobID] = true
			continue
		}
		if err := w.reg.RemoveJob(jobID); err != nil {
			log.Warn().Err(err).Str("job_id", jobID).Msg("cleanup: remove failed")
			active[jobID] = true
			continue
		}
		metrics.IncCleanupRemoved(reason)
		removed++
		log.Info().Str("job_id", jobID).Str("reason", reason).Msg("cleanup: job removed")
	}

	pruned, err := w.index.Prune(active)
	if err != nil {
		log.Warn().Err(err).Msg("cleanup: index prune failed")
	}

	log.Info().
		Int("jobs", len(jobs)).
		Int("removed", removed).
		Int("index_pruned", pruned).
		Dur("took", time.Since(start)).
		Msg("cleanup cycle done")
}

// evaluate decides whether one job should be removed and why. Jobs past the
// force threshold go regardless of state; otherwise only terminal jobs past
// the retention window are removed.
func (w *Worker) evaluate(jobID string, now time.Time) (string, bool) {
	age := now.Sub(w.lastUpdated(jobID))
	if age > w.opts.ForceAfter {
		return "force", true
	}
	if age <= w.opts.Retention {
		return "", false
	}
	st, err := w.reg.ReadStatus(jobID)
	if err != nil {
		// unreadable but not yet force-old; keep until it is
		log.Warn().Err(err).Str("job_id", jobID).Msg("cleanup: unreadable status")
		return "", false
	}
	if st.Terminal() {
		return "retention", true
	}
	return "", false
}

// lastUpdated reads the job's updated_at, falling back to the directory
// mtime when the status is missing or malformed.
func (w *Worker) lastUpdated(jobID string) time.Time {
	if st, err := w.reg.ReadStatus(jobID); err == nil {
		if ts, perr := time.Parse(time.RFC3339, st.UpdatedAt); perr == nil {
			return ts
		}
	}
	if info, err := os.Stat(w.reg.JobDir(jobID)); err == nil {
		return info.ModTime()
	}
	return time.Now()
}
