package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"gocka/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context, keeping the most specific code
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    CodeFor(err),
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Predefined error codes
const (
	CodeConfigInvalid           = "CONFIG_INVALID"
	CodeDatabaseError           = "DATABASE_ERROR"
	CodeNotFound                = "NOT_FOUND"
	CodeInternalError           = "INTERNAL_ERROR"
	CodeInvalidInput            = "INVALID_INPUT"
	CodeUnknownLanguage         = "UNKNOWN_LANGUAGE"
	CodeEmptyDataset            = "EMPTY_DATASET"
	CodeMalformedRecord         = "MALFORMED_RECORD"
	CodeUnsupportedArchitecture = "UNSUPPORTED_ARCHITECTURE"
)

// CodeFor returns the code of the first AppError in the chain, or the code
// matching a domain sentinel, or INTERNAL_ERROR.
func CodeFor(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	switch {
	case stderrors.Is(err, core.ErrInvalidInput):
		return CodeInvalidInput
	case stderrors.Is(err, core.ErrUnknownLanguage):
		return CodeUnknownLanguage
	case stderrors.Is(err, core.ErrEmptyDataset):
		return CodeEmptyDataset
	case stderrors.Is(err, core.ErrMalformedRecord):
		return CodeMalformedRecord
	case stderrors.Is(err, core.ErrUnsupportedArchitecture):
		return CodeUnsupportedArchitecture
	default:
		return CodeInternalError
	}
}

// HTTPStatus maps an error to the status code the API responds with
func HTTPStatus(err error) int {
	switch CodeFor(err) {
	case CodeInvalidInput, CodeUnknownLanguage, CodeEmptyDataset, CodeMalformedRecord, CodeUnsupportedArchitecture:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string, cause error) *AppError {
	return &AppError{Code: CodeDatabaseError, Message: message, Cause: cause}
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}
