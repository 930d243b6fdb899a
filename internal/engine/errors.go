package engine

import (
	"errors"
	"fmt"
)

// RunError represents an engine-level failure or notice for one run.
//
// Client failures keep their own *tracker.Error type; RunError covers
// the conditions only the engine can detect.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run.
	RunID string

	// Err is the underlying cause, if any.
	Err error
}

// RunErrorCode categorizes run errors.
type RunErrorCode string

const (
	// ErrCodeRunAborted indicates a fetch or reconcile failure halted the run.
	ErrCodeRunAborted RunErrorCode = "RUN_ABORTED"

	// ErrCodeMatchAmbiguous indicates several counterparts shared a title.
	// It is informational and never fails a run.
	ErrCodeMatchAmbiguous RunErrorCode = "MATCH_AMBIGUOUS"

	// ErrCodeInvalidRequest indicates the caller passed an unusable argument.
	ErrCodeInvalidRequest RunErrorCode = "INVALID_REQUEST"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.RunID != "" {
		return fmt.Sprintf("%s: %s (run=%s)", e.Code, msg, e.RunID)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap exposes the underlying cause.
func (e *RunError) Unwrap() error {
	return e.Err
}

// IsRunAborted returns true if the error is a run abort.
// Uses errors.As to handle wrapped errors.
func IsRunAborted(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeRunAborted
	}
	return false
}

// IsMatchAmbiguous returns true if the error is an ambiguous-match notice.
func IsMatchAmbiguous(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeMatchAmbiguous
	}
	return false
}

// NewRunAborted creates a RunError for a halted run.
func NewRunAborted(runID, phase string, err error) *RunError {
	return &RunError{
		Code:    ErrCodeRunAborted,
		Message: phase + " failed",
		RunID:   runID,
		Err:     err,
	}
}

// NewMatchAmbiguous creates a RunError describing a title collision.
func NewMatchAmbiguous(runID, primary, chosen string, candidates int) *RunError {
	return &RunError{
		Code:    ErrCodeMatchAmbiguous,
		Message: fmt.Sprintf("%s matched %d records by title; using %s", primary, candidates, chosen),
		RunID:   runID,
	}
}
