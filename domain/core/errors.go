package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Estimator parameter errors
	ErrInvalidInput = errors.New("invalid input")

	// Per-log data errors
	ErrUnknownLanguage = errors.New("unknown language code")
	ErrEmptyDataset    = errors.New("empty dataset")
	ErrMalformedRecord = errors.New("malformed outcome record")

	// Probe dispatch errors
	ErrUnsupportedArchitecture = errors.New("unsupported model architecture")
)

// Error constructors with context
func NewInvalidInputError(field string, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidInput, field, reason)
}

func NewUnknownLanguageError(code string) error {
	return fmt.Errorf("%w: %q", ErrUnknownLanguage, code)
}

func NewEmptyDatasetError(model string) error {
	return fmt.Errorf("%w: no outcome records for model %s", ErrEmptyDataset, model)
}

func NewMalformedRecordError(index int, reason string) error {
	return fmt.Errorf("%w: record %d: %s", ErrMalformedRecord, index, reason)
}

func NewUnsupportedArchitectureError(model string) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedArchitecture, model)
}

// LogError ties a failure to the input log it came from.
type LogError struct {
	LogID string
	Err   error
}

func (e *LogError) Error() string {
	return fmt.Sprintf("log %s: %v", e.LogID, e.Err)
}

func (e *LogError) Unwrap() error {
	return e.Err
}

// NewLogError wraps err with the offending log identifier
func NewLogError(logID string, err error) error {
	if err == nil {
		return nil
	}
	return &LogError{LogID: logID, Err: err}
}

// Error checking helpers
func IsInvalidInputError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsLogDataError reports whether err is local to one log's data, as opposed to
// a configuration or programming error.
func IsLogDataError(err error) bool {
	return errors.Is(err, ErrUnknownLanguage) ||
		errors.Is(err, ErrEmptyDataset) ||
		errors.Is(err, ErrMalformedRecord)
}

func IsUnsupportedArchitectureError(err error) bool {
	return errors.Is(err, ErrUnsupportedArchitecture)
}
