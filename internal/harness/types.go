package harness

import (
	"github.com/roach88/casesync/internal/engine"
	"github.com/roach88/casesync/internal/tracker"
	"github.com/roach88/casesync/internal/tracker/memory"
)

// Trace event types. Every step produces one event of its own type,
// followed by one EventCall per tracker call it caused.
const (
	EventSync    = "sync"
	EventSubset  = "subset"
	EventUndo    = "undo"
	EventRestart = "restart"
	EventFail    = "fail"
	EventHeal    = "heal"
	EventCall    = "call"
)

// TraceEvent is one entry of a scenario trace.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Step    int    `json:"step"`
	Type    string `json:"type"`
	Call    string `json:"call,omitempty"`
	Message string `json:"message,omitempty"`
}

// StepResult holds what one step returned. Run is set for sync and
// subset steps, Undo for undo steps.
type StepResult struct {
	Index int                `json:"index"`
	Type  string             `json:"type"`
	Run   *engine.RunResult  `json:"run,omitempty"`
	Undo  *engine.UndoResult `json:"undo,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains step and call events in order.
	Trace []TraceEvent `json:"trace"`

	// Calls are the raw tracker calls, in the order they were made.
	Calls []memory.Call `json:"calls"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	Steps []StepResult `json:"steps"`

	// Initial and Final hold each system's records before the first
	// step and after the last.
	Initial map[tracker.System][]tracker.Record `json:"initial"`
	Final   map[tracker.System][]tracker.Record `json:"final"`

	// Log is the engine's log after the last step.
	Log []string `json:"log"`

	// Pending is the number of undo actions left after the last step.
	Pending int `json:"pending"`
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Calls:   []memory.Call{},
		Errors:  []string{},
		Steps:   []StepResult{},
		Initial: make(map[tracker.System][]tracker.Record),
		Final:   make(map[tracker.System][]tracker.Record),
		Log:     []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addEvent appends an event and returns its index in Trace.
func (r *Result) addEvent(step int, typ, message string) int {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:     int64(len(r.Trace) + 1),
		Step:    step,
		Type:    typ,
		Message: message,
	})
	return len(r.Trace) - 1
}

// addCall records a tracker call as both a raw call and a trace event.
func (r *Result) addCall(step int, c memory.Call) {
	r.Calls = append(r.Calls, c)
	r.Trace = append(r.Trace, TraceEvent{
		Seq:  int64(len(r.Trace) + 1),
		Step: step,
		Type: EventCall,
		Call: c.String(),
	})
}
