package server

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/summarizer/internal/apperr"
	"github.com/local/summarizer/internal/config"
	"github.com/local/summarizer/internal/schema"
	"github.com/local/summarizer/internal/segment"
	"github.com/local/summarizer/internal/store"
	"github.com/local/summarizer/internal/transcript"
)

// JobRunner executes the summary pipeline for a created job.
type JobRunner interface {
	Run(jobID string, rec *transcript.Record)
}

// Server exposes the HTTP surface: upload validation, status polling and
// cancellation.
type Server struct {
	reg         *store.Registry
	index       *store.Index
	transcripts *transcript.Store
	segmenter   *segment.Segmenter
	runner      JobRunner
	versions    config.PromptsConfig
}

// Dependencies wires the server's collaborators.
type Dependencies struct {
	Registry    *store.Registry
	Index       *store.Index
	Transcripts *transcript.Store
	Segmenter   *segment.Segmenter
	Runner      JobRunner
	Versions    config.PromptsConfig
}

// New creates the server.
func New(deps Dependencies) *Server {
	return &Server{
		reg:         deps.Registry,
		index:       deps.Index,
		transcripts: deps.Transcripts,
		segmenter:   deps.Segmenter,
		runner:      deps.Runner,
		versions:    deps.Versions,
	}
}

// RegisterRoutes attaches all handlers to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/validate_file", s.handleValidateFile)
	mux.HandleFunc("/summary", s.handleSummary)
	mux.HandleFunc("/cancel", s.handleCancel)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, apperr.New(apperr.CodeJobNotFound, "not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "earnings call summarizer API",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleValidateFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(s.segmenter.MaxBytes + 1<<20); err != nil {
		writeValidationError(w, apperr.Wrap(CodeInvalidRequest, err))
		return
	}

	in, err := parseJobInput(r)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeValidationError(w, apperr.New(CodeInvalidRequest, "missing file field"))
		return
	}
	defer file.Close()
	in.Filename = hdr.Filename

	tmpPath, err := s.saveUpload(file)
	if err != nil {
		writeValidationError(w, err)
		return
	}
	defer os.Remove(tmpPath)

	result, err := s.segmenter.Process(tmpPath, hdr.Filename)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	name := transcript.Name(hdr.Filename)
	rec, _, err := s.transcripts.Save(name, in, transcript.Sections{
		Presentation: result.Presentation,
		QA:           result.QA,
	})
	if err != nil {
		writeValidationError(w, apperr.Wrap(apperr.CodePersistError, err))
		return
	}
	// the stored record may predate this request; the job must reflect
	// the parameters the client just sent
	rec.Input = in

	jobID, dedupHit, err := s.startJob(rec)
	if err != nil {
		writeValidationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, validationResult(rec, jobID, dedupHit))
}

// validationResult is the /validate_file success body.
func validationResult(rec *transcript.Record, jobID string, dedupHit bool) map[string]any {
	return map[string]any{
		"is_validated":    true,
		"validated_at":    rec.ValidatedAt,
		"input":           rec.Input,
		"transcript_name": rec.TranscriptName,
		"job_id":          jobID,
		"dedup_hit":       dedupHit,
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		writeError(w, apperr.New(CodeInvalidRequest, "job_id query parameter is required"))
		return
	}

	doc, err := s.reg.ReadStatusDoc(jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	// a key appears only when its artifact exists on disk
	outputs := make(map[string]any, len(store.OutputNames))
	for _, name := range store.OutputNames {
		out, err := s.reg.ReadOutput(jobID, name)
		if err != nil {
			log.Warn().Err(err).Str("job_id", jobID).Str("output", name).Msg("unreadable artifact")
			continue
		}
		if out != nil {
			outputs[name] = out
		}
	}
	doc["outputs"] = outputs
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		writeError(w, apperr.New(CodeInvalidRequest, "job_id query parameter is required"))
		return
	}

	st, err := s.reg.ReadStatus(jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	if st.Terminal() {
		writeJSON(w, http.StatusOK, map[string]any{
			"job_id":        jobID,
			"current_stage": st.CurrentStage,
			"message":       "job already finished",
		})
		return
	}

	s.reg.Token(jobID).Cancel()

	stagesPatch := make(map[string]any)
	for stage, state := range st.Stages {
		if state == store.StateRunning {
			stagesPatch[stage] = store.StateFailed
		}
	}
	patch := map[string]any{
		"current_stage": store.JobCancelled,
		"error": map[string]any{
			"code":    apperr.CodeCancelled,
			"message": "job cancelled by user",
		},
	}
	if len(stagesPatch) > 0 {
		patch["stages"] = stagesPatch
	}
	if err := s.reg.UpdateStatus(jobID, patch); err != nil {
		writeError(w, err)
		return
	}
	s.reg.RemoveOutputs(jobID)

	log.Info().Str("job_id", jobID).Msg("job cancelled by request")
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":  jobID,
		"status":  store.JobCancelled,
		"message": "job cancelled, partial outputs removed",
	})
}

// parseJobInput validates the request parameters of /validate_file.
func parseJobInput(r *http.Request) (transcript.Input, error) {
	in := transcript.Input{
		CallType:      r.FormValue("call_type"),
		SummaryLength: r.FormValue("summary_length"),
		AnswerFormat:  r.FormValue("answer_format"),
	}
	if in.AnswerFormat == "" {
		in.AnswerFormat = schema.FormatProse
	}

	if in.CallType != schema.CallEarnings && in.CallType != schema.CallConference {
		return in, apperr.Newf(CodeInvalidRequest, "call_type must be %q or %q", schema.CallEarnings, schema.CallConference)
	}
	if in.SummaryLength != schema.LengthShort && in.SummaryLength != schema.LengthLong {
		return in, apperr.Newf(CodeInvalidRequest, "summary_length must be %q or %q", schema.LengthShort, schema.LengthLong)
	}
	if in.AnswerFormat != schema.FormatProse && in.AnswerFormat != schema.FormatBullet {
		return in, apperr.Newf(CodeInvalidRequest, "answer_format must be %q or %q", schema.FormatProse, schema.FormatBullet)
	}
	return in, nil
}

// saveUpload spools the multipart file to a temp path for the PDF tooling.
func (s *Server) saveUpload(file io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "upload-*.pdf")
	if err != nil {
		return "", apperr.Wrap(apperr.CodePersistError, err)
	}
	defer tmp.Close()

	limit := s.segmenter.MaxBytes
	written, err := io.Copy(tmp, io.LimitReader(file, limit+1))
	if err != nil {
		os.Remove(tmp.Name())
		return "", apperr.Wrap(apperr.CodePersistError, err)
	}
	if written > limit {
		os.Remove(tmp.Name())
		return "", apperr.Newf(apperr.CodeFileTooLarge, "file exceeds the %d byte limit", limit)
	}
	return tmp.Name(), nil
}
