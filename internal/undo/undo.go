// Package undo records invertible actions for the mutations of one run
// and reverses them.
//
// Entries are kept in application order. UndoAll walks them newest
// first, so a record that was created and then updated in the same run
// has its update reverted before it is deleted. A failing inverse does
// not stop the walk; each failure is reported and the remaining actions
// are still attempted.
package undo

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/casesync/internal/tracker"
)

// Kind tags an Action.
type Kind string

const (
	KindUpdatedStatus Kind = "updated_status"
	KindCreated       Kind = "created"
)

// Action is one undo-log entry.
type Action struct {
	Kind     Kind           `json:"kind"`
	System   tracker.System `json:"system"`
	RecordID string         `json:"record_id"`

	// Field and PreviousStatus are set for KindUpdatedStatus only.
	Field          string         `json:"field,omitempty"`
	PreviousStatus tracker.Status `json:"previous_status,omitempty"`
}

// UpdatedStatus returns the action recorded after a status update.
func UpdatedStatus(sys tracker.System, id string, previous tracker.Status) Action {
	return Action{
		Kind:           KindUpdatedStatus,
		System:         sys,
		RecordID:       id,
		Field:          tracker.FieldStatus,
		PreviousStatus: previous,
	}
}

// Created returns the action recorded after a record was created.
func Created(sys tracker.System, id string) Action {
	return Action{Kind: KindCreated, System: sys, RecordID: id}
}

// Describe renders the inverse of a as a log message. name maps a
// system to its display name; nil uses the system letter.
func (a Action) Describe(name func(tracker.System) string) string {
	sys := string(a.System)
	if name != nil {
		sys = name(a.System)
	}
	switch a.Kind {
	case KindUpdatedStatus:
		return fmt.Sprintf("%s record %s %s restored to %s", sys, a.RecordID, a.Field, a.PreviousStatus)
	case KindCreated:
		return fmt.Sprintf("%s record %s deleted", sys, a.RecordID)
	default:
		return fmt.Sprintf("%s record %s: unknown action %q", sys, a.RecordID, a.Kind)
	}
}

// Invert applies the inverse of a through client.
func (a Action) Invert(ctx context.Context, client tracker.Client) error {
	switch a.Kind {
	case KindUpdatedStatus:
		return client.UpdateStatus(ctx, a.RecordID, a.PreviousStatus)
	case KindCreated:
		return client.DeleteRecord(ctx, a.RecordID)
	default:
		return fmt.Errorf("undo: unknown action kind %q", a.Kind)
	}
}

// Outcome is the result of inverting one action.
type Outcome struct {
	Action Action `json:"action"`
	Err    error  `json:"-"`
}

// OK reports whether the inverse succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Report summarizes an UndoAll call. Outcomes are in the order the
// inverses were issued, newest action first.
type Report struct {
	Undone   int
	Outcomes []Outcome
	Errors   []error
}

// Failed returns the number of inverses that failed.
func (r Report) Failed() int {
	return len(r.Errors)
}

// Log is an ordered undo log. It is safe for concurrent use, although
// the engine only ever drives it from one run at a time.
type Log struct {
	mu      sync.Mutex
	entries []Action
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{}
}

// Record appends a.
func (l *Log) Record(a Action) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, a)
}

// Load replaces the log's contents, for restoring a persisted run.
func (l *Log) Load(actions []Action) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append([]Action(nil), actions...)
}

// Entries returns a copy of the log in application order.
func (l *Log) Entries() []Action {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Action, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear empties the log.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// UndoAll inverts every entry newest first, then clears the log. A
// failed inverse is recorded in the report and the walk continues;
// already-inverted actions are not re-applied.
func (l *Log) UndoAll(ctx context.Context, clients tracker.Clients) Report {
	actions := l.Entries()
	report := Report{Outcomes: make([]Outcome, 0, len(actions))}

	for i := len(actions) - 1; i >= 0; i-- {
		a := actions[i]
		out := Outcome{Action: a}

		client, err := clients.For(a.System)
		if err == nil {
			err = a.Invert(ctx, client)
		}
		if err != nil {
			out.Err = err
			report.Errors = append(report.Errors, err)
		} else {
			report.Undone++
		}
		report.Outcomes = append(report.Outcomes, out)
	}

	l.Clear()
	return report
}
