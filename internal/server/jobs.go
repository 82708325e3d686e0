package server

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/summarizer/internal/metrics"
	"github.com/local/summarizer/internal/store"
	"github.com/local/summarizer/internal/transcript"
)

// startJob either reuses a finished job with the same signature or creates
// a new one and launches the pipeline for it.
func (s *Server) startJob(rec *transcript.Record) (string, bool, error) {
	in := rec.Input
	promptSig := store.PromptSig(s.versions.QAVersion, s.versions.OverviewVersion, s.versions.JudgeVersion)
	sig := store.Signature(rec.ContentHash, in.CallType, in.SummaryLength, promptSig, in.AnswerFormat)

	if existing, ok := s.index.Get(sig); ok {
		if store.CanReuse(s.reg, existing) {
			log.Info().Str("job_id", existing).Str("signature", sig).Msg("reusing completed job")
			metrics.IncDedupHit()
			metrics.IncJob("reused")
			return existing, true, nil
		}
		log.Debug().Str("job_id", existing).Msg("indexed job not reusable, starting fresh")
	}

	jobID := store.NewJobID(rec.TranscriptName, time.Now())
	if err := s.reg.Create(jobID, rec.TranscriptName, store.JobInput{
		CallType:      in.CallType,
		SummaryLength: in.SummaryLength,
		AnswerFormat:  in.AnswerFormat,
		Filename:      in.Filename,
	}); err != nil {
		return "", false, err
	}
	if err := s.index.Put(sig, jobID); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("dedup index update failed")
	}

	go s.runner.Run(jobID, rec)
	log.Info().
		Str("job_id", jobID).
		Str("transcript", rec.TranscriptName).
		Str("call_type", in.CallType).
		Str("summary_length", in.SummaryLength).
		Str("answer_format", in.AnswerFormat).
		Msg("job started")
	return jobID, false, nil
}
