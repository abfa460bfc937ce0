package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes the engine distinguishes.
var (
	// ErrVocabularyLoad is fatal at startup: the index must not serve
	// matching requests built from a partial vocabulary.
	ErrVocabularyLoad = errors.New("vocabulary load failed")

	// ErrUnknownCategory rejects a request for a category code the
	// vocabulary does not contain.
	ErrUnknownCategory = errors.New("unknown terminology category")

	// ErrGraphWrite marks a store-level failure. Nothing was persisted;
	// the caller may retry.
	ErrGraphWrite = errors.New("graph write failed")

	// ErrMalformedSnapshot marks a node or edge missing expected shape
	// during risk analysis. The affected entity is skipped.
	ErrMalformedSnapshot = errors.New("malformed graph snapshot")

	ErrInvalidInput   = errors.New("invalid input")
	ErrMissingField   = errors.New("missing required field")
	ErrBadSeverity    = errors.New("invalid injury severity")
	ErrReportNotFound = errors.New("report not found")
)

// IsRetryable reports whether err is a transient store failure the caller
// should retry. Extraction-level ambiguity never reaches here: it degrades
// to low confidence instead of erroring.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGraphWrite)
}

// ValidationError wraps a sentinel with the offending field and value.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
