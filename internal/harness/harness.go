package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/casesync/internal/engine"
	"github.com/roach88/casesync/internal/status"
	"github.com/roach88/casesync/internal/store"
	"github.com/roach88/casesync/internal/testutil"
	"github.com/roach88/casesync/internal/tracker"
	"github.com/roach88/casesync/internal/tracker/memory"
)

// Harness is the scenario execution engine.
// It owns the two in-memory systems, the journal, and the engine built
// over them, which a restart step replaces.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	mapping  *status.Mapping
	systems  map[tracker.System]*memory.Client
	clock    *testutil.StepClock
	runIDs   *testutil.SequentialRunIDs
	logger   *slog.Logger
	dir      tracker.Direction
	tolerate bool

	// mu guards step and result against the observer callbacks.
	mu     sync.Mutex
	step   int
	result *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory journal and fresh
// systems, with sequential run IDs and a step clock, so results are
// reproducible.
//
// Execution flow:
// 1. Seed both systems and open the journal
// 2. Execute steps in order, checking expectations
// 3. Capture final records and the engine log
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	mapping, err := scenario.Status.Mapping()
	if err != nil {
		return nil, fmt.Errorf("invalid status table: %w", err)
	}

	dir := tracker.DirectionAtoB
	if scenario.Direction != "" {
		if dir, err = tracker.ParseDirection(scenario.Direction); err != nil {
			return nil, err
		}
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:   st,
		mapping: mapping,
		systems: map[tracker.System]*memory.Client{
			tracker.SystemA: memory.New(tracker.SystemA, scenario.A...),
			tracker.SystemB: memory.New(tracker.SystemB, scenario.B...),
		},
		clock:    testutil.NewStepClock(),
		runIDs:   testutil.NewSequentialRunIDs(""),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		dir:      dir,
		tolerate: scenario.TolerateFetchErrors,
		result:   NewResult(),
	}

	for sys, c := range h.systems {
		h.result.Initial[sys] = c.Records()
		c.Observe(h.observe)
	}
	h.engine = h.newEngine()

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	result := h.result
	for sys, c := range h.systems {
		result.Final[sys] = c.Records()
	}
	result.Log = h.engine.Log()
	result.Pending = len(h.engine.PendingActions())

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

func (h *Harness) newEngine() *engine.Engine {
	return engine.New(h.systems[tracker.SystemA], h.systems[tracker.SystemB], h.mapping,
		engine.WithJournal(h.store),
		engine.WithLogger(h.logger),
		engine.WithRunIDGenerator(h.runIDs),
		engine.WithFetchTolerance(h.tolerate),
		engine.WithNow(h.clock.Now),
	)
}

// observe appends a tracker call to the trace under the current step.
// Calls of both systems share one trace, in the order they were made.
func (h *Harness) observe(c memory.Call) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.addCall(h.step, c)
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step) error {
	h.mu.Lock()
	h.step = index
	event := h.result.addEvent(index, step.Type(), "")
	h.mu.Unlock()

	sr := StepResult{Index: index, Type: step.Type()}
	var message string

	switch {
	case step.Sync != nil:
		dir, err := h.direction(step.Sync.Direction)
		if err != nil {
			return err
		}
		res := h.engine.SyncAll(ctx, dir)
		sr.Run = &res
		message = res.Message

	case step.Subset != nil:
		dir, err := h.direction(step.Subset.Direction)
		if err != nil {
			return err
		}
		records, err := h.resolve(step.Subset.Records)
		if err != nil {
			return err
		}
		res := h.engine.SyncSubset(ctx, records, dir)
		sr.Run = &res
		message = res.Message

	case step.Undo != nil:
		res := h.engine.UndoLast(ctx)
		sr.Undo = &res
		message = res.Message

	case step.Restart != nil:
		h.engine = h.newEngine()
		if err := h.engine.Restore(ctx); err != nil {
			return fmt.Errorf("restart: %w", err)
		}
		if id := h.engine.RunID(); id != "" {
			message = fmt.Sprintf("restored run %s (%d pending actions)", id, len(h.engine.PendingActions()))
		} else {
			message = "no run to restore"
		}

	case step.Fail != nil:
		sys, _ := tracker.ParseSystem(step.Fail.System)
		op, err := parseOp(step.Fail.Op)
		if err != nil {
			return err
		}
		h.systems[sys].Fail(op, step.Fail.ID)
		target := "all records"
		if step.Fail.ID != "" {
			target = "id=" + step.Fail.ID
		}
		message = fmt.Sprintf("%s %s fails for %s", sys, op, target)

	case step.Heal != nil:
		if step.Heal.System == "" {
			for _, c := range h.systems {
				c.Heal()
			}
			message = "all failures healed"
		} else {
			sys, _ := tracker.ParseSystem(step.Heal.System)
			h.systems[sys].Heal()
			message = fmt.Sprintf("%s failures healed", sys)
		}

	default:
		return fmt.Errorf("step has no action")
	}

	h.mu.Lock()
	h.result.Trace[event].Message = message
	h.result.Steps = append(h.result.Steps, sr)
	h.mu.Unlock()

	if step.Expect != nil {
		for _, msg := range checkExpect(index, sr, *step.Expect) {
			h.result.AddError(msg)
		}
	}
	return nil
}

func (h *Harness) direction(override string) (tracker.Direction, error) {
	if override == "" {
		return h.dir, nil
	}
	return tracker.ParseDirection(override)
}

// resolve looks up subset references in the systems' current records.
func (h *Harness) resolve(refs []RecordRef) ([]tracker.Record, error) {
	records := make([]tracker.Record, 0, len(refs))
	for _, ref := range refs {
		sys, err := tracker.ParseSystem(ref.System)
		if err != nil {
			return nil, err
		}
		rec, ok := h.systems[sys].Get(ref.ID)
		if !ok {
			return nil, fmt.Errorf("subset: %s record %s does not exist", sys, ref.ID)
		}
		records = append(records, rec)
	}
	return records, nil
}

// checkExpect compares a step result with its expectation.
func checkExpect(index int, sr StepResult, want Expect) []string {
	var errs []string
	mismatch := func(field string, expected, actual any) {
		errs = append(errs, fmt.Sprintf("steps[%d].expect.%s: expected %v, got %v", index, field, expected, actual))
	}
	checkInt := func(field string, expected *int, actual int) {
		if expected != nil && *expected != actual {
			mismatch(field, *expected, actual)
		}
	}

	var (
		success bool
		message string
	)

	switch {
	case sr.Run != nil:
		r := sr.Run
		success, message = r.Success, r.Message
		if want.State != "" && string(r.State) != want.State {
			mismatch("state", want.State, r.State)
		}
		checkInt("created", want.Created, r.Created)
		checkInt("updated", want.Updated, r.Updated)
		checkInt("skipped", want.Skipped, r.Skipped)
		checkInt("failed", want.Failed, r.Failed)
		checkInt("ambiguous", want.Ambiguous, r.Ambiguous)
		if want.Undone != nil {
			errs = append(errs, fmt.Sprintf("steps[%d].expect.undone: only applies to undo steps", index))
		}

	case sr.Undo != nil:
		u := sr.Undo
		success, message = u.Success, u.Message
		checkInt("undone", want.Undone, u.Undone)
		if want.State != "" || want.Created != nil || want.Updated != nil ||
			want.Skipped != nil || want.Failed != nil || want.Ambiguous != nil {
			errs = append(errs, fmt.Sprintf("steps[%d].expect: run counters do not apply to undo steps", index))
		}

	default:
		return []string{fmt.Sprintf("steps[%d].expect: step produced no result", index)}
	}

	if want.Success != nil && *want.Success != success {
		mismatch("success", *want.Success, success)
	}
	if want.Message != "" && !strings.Contains(message, want.Message) {
		mismatch("message", fmt.Sprintf("substring %q", want.Message), fmt.Sprintf("%q", message))
	}
	return errs
}

func parseOp(s string) (memory.Op, error) {
	switch op := memory.Op(strings.ToLower(strings.TrimSpace(s))); op {
	case memory.OpList, memory.OpCreate, memory.OpUpdate, memory.OpDelete:
		return op, nil
	default:
		return "", fmt.Errorf("unknown op %q: must be list, create, update or delete", s)
	}
}
