package tracker

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes a client failure by the operation that failed.
type ErrorCode string

const (
	ErrCodeFetch  ErrorCode = "FETCH_FAILED"
	ErrCodeCreate ErrorCode = "CREATE_FAILED"
	ErrCodeUpdate ErrorCode = "UPDATE_FAILED"
	ErrCodeDelete ErrorCode = "DELETE_FAILED"

	// ErrCodeConfig reports a missing or unusable client.
	ErrCodeConfig ErrorCode = "CLIENT_CONFIG"
)

// Error is returned by Client implementations.
type Error struct {
	// Code identifies the failed operation.
	Code ErrorCode

	// System is the tracker that failed.
	System System

	// RecordID is the target record, empty for list and create.
	RecordID string

	// Message is a human-readable description.
	Message string

	// Err is the underlying transport or API error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.RecordID != "" {
		return fmt.Sprintf("%s: system %s record %s: %s", e.Code, e.System, e.RecordID, msg)
	}
	return fmt.Sprintf("%s: system %s: %s", e.Code, e.System, msg)
}

// Unwrap exposes the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewFetchError wraps a list failure.
func NewFetchError(sys System, err error) *Error {
	return &Error{Code: ErrCodeFetch, System: sys, Message: "list records", Err: err}
}

// NewCreateError wraps a create failure.
func NewCreateError(sys System, title string, err error) *Error {
	return &Error{Code: ErrCodeCreate, System: sys, Message: fmt.Sprintf("create %q", title), Err: err}
}

// NewUpdateError wraps a status update failure.
func NewUpdateError(sys System, id string, status Status, err error) *Error {
	return &Error{Code: ErrCodeUpdate, System: sys, RecordID: id, Message: fmt.Sprintf("set status %q", status), Err: err}
}

// NewDeleteError wraps a delete failure.
func NewDeleteError(sys System, id string, err error) *Error {
	return &Error{Code: ErrCodeDelete, System: sys, RecordID: id, Message: "delete", Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// IsFetchError reports whether err is a list failure.
func IsFetchError(err error) bool { return CodeOf(err) == ErrCodeFetch }

// IsCreateError reports whether err is a create failure.
func IsCreateError(err error) bool { return CodeOf(err) == ErrCodeCreate }

// IsUpdateError reports whether err is a status update failure.
func IsUpdateError(err error) bool { return CodeOf(err) == ErrCodeUpdate }

// IsDeleteError reports whether err is a delete failure.
func IsDeleteError(err error) bool { return CodeOf(err) == ErrCodeDelete }
