package apperr

import (
	"errors"
	"fmt"
)

// Error codes are the user-visible contract; the HTTP layer maps them to
// status codes and the stage runner switches on them for the
// partial-failure policy.
const (
	CodeInvalidFileType    = "invalid_file_type"
	CodeFileTooLarge       = "file_too_large"
	CodePDFProcessingError = "pdf_processing_error"
	CodePDFOpenError       = "pdf_open_error"
	CodeNoQATranscript     = "no_q_a_transcript"

	CodeLLMInvalidJSON       = "llm_invalid_json"
	CodeLLMSummaryError      = "llm_summary_error"
	CodeLLMOverviewError     = "llm_overview_error"
	CodeLLMJudgeError        = "llm_judge_error"
	CodeProviderEmptyOutput  = "provider_empty_output"

	CodeCancelled       = "cancelled"
	CodeJobNotFound     = "job_not_found"
	CodeStatusReadError = "status_read_error"
	CodePersistError    = "persist_error"
	CodeInternal        = "internal_error"
)

// Error is a tagged error carrying a stable code and a human message.
type Error struct {
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a tagged error.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a tagged error with a formatted message.
func Newf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error. The message defaults to the cause's text.
func Wrap(code string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Code: code, Message: msg, cause: cause}
}

// CodeOf extracts the code from an error chain, or internal_error.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// MessageOf extracts the user-facing message from an error chain.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool { return CodeOf(err) == code }
