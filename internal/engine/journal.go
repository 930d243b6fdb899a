package engine

import (
	"context"
	"time"

	"github.com/roach88/casesync/internal/tracker"
	"github.com/roach88/casesync/internal/undo"
)

// RunRecord is the persisted header of one run.
type RunRecord struct {
	ID         string            `json:"id"`
	Direction  tracker.Direction `json:"direction"`
	Subset     bool              `json:"subset"`
	State      State             `json:"state"`
	Message    string            `json:"message,omitempty"`
	Undone     bool              `json:"undone"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at,omitempty"`

	// LastSeq is the highest clock value stamped on the run's messages
	// or actions. Filled in by the journal on read.
	LastSeq int64 `json:"last_seq"`
}

// Journal persists run state so that the last run can be inspected and
// undone from a later process.
//
// Implemented by store.Store. A nil Journal disables persistence.
type Journal interface {
	// BeginRun records a new run. Older runs lose their undo actions.
	BeginRun(ctx context.Context, run RunRecord) error

	// AppendMessage records one log message at seq.
	AppendMessage(ctx context.Context, runID string, seq int64, text string) error

	// AppendAction records one undo action at seq.
	AppendAction(ctx context.Context, runID string, seq int64, action undo.Action) error

	// FinishRun records the terminal state and summary of a run.
	FinishRun(ctx context.Context, runID string, state State, message string, finishedAt time.Time) error

	// MarkUndone flags a run as undone and drops its actions.
	MarkUndone(ctx context.Context, runID string, message string) error

	// LatestRun returns the most recently started run, or nil if none.
	LatestRun(ctx context.Context) (*RunRecord, error)

	// Messages returns a run's messages in seq order.
	Messages(ctx context.Context, runID string) ([]string, error)

	// Actions returns a run's undo actions in seq order.
	Actions(ctx context.Context, runID string) ([]undo.Action, error)
}
