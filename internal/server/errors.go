package server

import (
	"encoding/json"
	"net/http"

	"github.com/local/summarizer/internal/apperr"
)

// CodeInvalidRequest tags malformed request parameters.
const CodeInvalidRequest = "invalid_request"

// statusFor maps error codes to HTTP status codes. Validation problems are
// the client's fault, model misbehavior is the upstream's.
func statusFor(code string) int {
	switch code {
	case apperr.CodeInvalidFileType,
		apperr.CodeFileTooLarge,
		apperr.CodePDFProcessingError,
		apperr.CodePDFOpenError,
		apperr.CodeNoQATranscript,
		CodeInvalidRequest:
		return http.StatusBadRequest
	case apperr.CodeLLMInvalidJSON:
		return http.StatusUnprocessableEntity
	case apperr.CodeLLMSummaryError,
		apperr.CodeLLMOverviewError,
		apperr.CodeLLMJudgeError,
		apperr.CodeProviderEmptyOutput:
		return http.StatusBadGateway
	case apperr.CodeJobNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorBody(err error) (int, map[string]any) {
	code := apperr.CodeOf(err)
	return statusFor(code), map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": apperr.MessageOf(err),
		},
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := errorBody(err)
	writeJSON(w, status, body)
}

// writeValidationError is the /validate_file failure shape: the error
// envelope plus an explicit is_validated flag.
func writeValidationError(w http.ResponseWriter, err error) {
	status, body := errorBody(err)
	body["is_validated"] = false
	writeJSON(w, status, body)
}
