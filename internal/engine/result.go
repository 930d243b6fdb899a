package engine

import "github.com/roach88/casesync/internal/tracker"

// RunResult summarizes one SyncAll or SyncSubset call.
type RunResult struct {
	RunID     string            `json:"run_id,omitempty"`
	Direction tracker.Direction `json:"direction"`
	State     State             `json:"state"`

	// Success is true when the run completed with no failed mutation.
	Success bool `json:"success"`

	// Message is a one-line human-readable summary that includes every
	// failure.
	Message string `json:"message"`

	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Ambiguous int `json:"ambiguous"`

	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// Mutations returns the number of applied mutations.
func (r RunResult) Mutations() int {
	return r.Created + r.Updated
}

// UndoResult summarizes one UndoLast call.
type UndoResult struct {
	RunID   string `json:"run_id,omitempty"`
	Success bool   `json:"success"`
	Message string `json:"message"`

	// Undone is the number of actions reverted.
	Undone int `json:"undone"`

	// Failures holds one message per action that could not be reverted.
	Failures []string `json:"failures,omitempty"`

	// Warnings holds journal writes that did not persist.
	Warnings []string `json:"warnings,omitempty"`
}
