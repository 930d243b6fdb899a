package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/casesync/internal/reconcile"
	"github.com/roach88/casesync/internal/status"
	"github.com/roach88/casesync/internal/tracker"
	"github.com/roach88/casesync/internal/undo"
)

// Engine reconciles two trackers and can undo its most recent run.
//
// Thread-safety model:
//   - SyncAll, SyncSubset, UndoLast: one at a time, serialized by the caller
//   - Log, State, RunID, PendingActions: safe from any goroutine
type Engine struct {
	clients    tracker.Clients
	mapping    *status.Mapping
	reconciler *reconcile.Reconciler
	undoLog    *undo.Log
	clock      *Clock
	runIDs     RunIDGenerator
	journal    Journal
	logger     *slog.Logger
	now        func() time.Time
	names      map[tracker.System]string

	// tolerateFetch treats a failed snapshot as empty instead of
	// aborting the run.
	tolerateFetch bool

	mu       sync.Mutex
	state    State
	runID    string
	messages []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithJournal persists runs through j.
func WithJournal(j Journal) Option {
	return func(e *Engine) {
		e.journal = j
	}
}

// WithLogger sets the structured logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRunIDGenerator overrides the UUIDv7 run ID generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithFetchTolerance makes a failed snapshot count as zero records with
// a warning, instead of aborting the run.
func WithFetchTolerance(tolerate bool) Option {
	return func(e *Engine) {
		e.tolerateFetch = tolerate
	}
}

// WithSystemNames sets the display names used in log messages.
func WithSystemNames(a, b string) Option {
	return func(e *Engine) {
		if a != "" {
			e.names[tracker.SystemA] = a
		}
		if b != "" {
			e.names[tracker.SystemB] = b
		}
	}
}

// WithNow overrides the wall clock used for journal timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine over the two system clients.
func New(a, b tracker.Client, mapping *status.Mapping, opts ...Option) *Engine {
	e := &Engine{
		clients:    tracker.Clients{tracker.SystemA: a, tracker.SystemB: b},
		mapping:    mapping,
		reconciler: reconcile.New(mapping),
		undoLog:    undo.NewLog(),
		clock:      NewClock(),
		runIDs:     UUIDv7Generator{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
		names: map[tracker.System]string{
			tracker.SystemA: string(tracker.SystemA),
			tracker.SystemB: string(tracker.SystemB),
		},
		state: StateIdle,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Mapping returns the status mapping in use.
func (e *Engine) Mapping() *status.Mapping {
	return e.mapping
}

// SystemName returns the display name of sys.
func (e *Engine) SystemName(sys tracker.System) string {
	if n, ok := e.names[sys]; ok {
		return n
	}
	return string(sys)
}

// Log returns the messages of the current run in order, including any
// undo messages appended after it.
func (e *Engine) Log() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.messages))
	copy(out, e.messages)
	return out
}

// State returns the lifecycle state of the current or last run.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// RunID returns the ID of the current or last run, empty before the
// first run.
func (e *Engine) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

// PendingActions returns the undo actions UndoLast would revert, in
// application order.
func (e *Engine) PendingActions() []undo.Action {
	return e.undoLog.Entries()
}

// Restore loads the latest journaled run into the engine so that Log
// and UndoLast act on it. A run that was already undone restores its
// messages but no actions. Without a journal Restore does nothing.
func (e *Engine) Restore(ctx context.Context) error {
	if e.journal == nil {
		return nil
	}

	run, err := e.journal.LatestRun(ctx)
	if err != nil {
		return fmt.Errorf("restore: latest run: %w", err)
	}
	if run == nil {
		return nil
	}

	messages, err := e.journal.Messages(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("restore: messages of run %s: %w", run.ID, err)
	}

	var actions []undo.Action
	if !run.Undone {
		actions, err = e.journal.Actions(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("restore: actions of run %s: %w", run.ID, err)
		}
	}

	state := run.State
	if !state.Terminal() {
		// The process stopped mid-run.
		state = StateFailed
	}

	e.mu.Lock()
	e.runID = run.ID
	e.state = state
	e.messages = messages
	e.mu.Unlock()

	e.undoLog.Load(actions)
	e.clock.Reset(run.LastSeq)

	e.logger.Debug("run restored",
		"run_id", run.ID,
		"state", state,
		"messages", len(messages),
		"actions", len(actions))
	return nil
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}

// appendMessage adds text to the log and the journal.
func (e *Engine) appendMessage(ctx context.Context, runID, text string) []string {
	seq := e.clock.Next()

	e.mu.Lock()
	e.messages = append(e.messages, text)
	e.mu.Unlock()

	if e.journal == nil {
		return nil
	}
	if err := e.journal.AppendMessage(ctx, runID, seq, text); err != nil {
		return []string{e.journalWarning("message", seq, err)}
	}
	return nil
}

// recordAction adds a to the undo log and the journal.
func (e *Engine) recordAction(ctx context.Context, runID string, a undo.Action) []string {
	seq := e.clock.Next()
	e.undoLog.Record(a)

	if e.journal == nil {
		return nil
	}
	if err := e.journal.AppendAction(ctx, runID, seq, a); err != nil {
		return []string{e.journalWarning("action", seq, err)}
	}
	return nil
}

func (e *Engine) journalWarning(what string, seq int64, err error) string {
	e.logger.Warn("journal write failed", "entry", what, "seq", seq, "error", err)
	return fmt.Sprintf("journal: %s %d not persisted: %v", what, seq, err)
}
