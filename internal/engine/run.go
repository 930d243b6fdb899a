package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/casesync/internal/match"
	"github.com/roach88/casesync/internal/reconcile"
	"github.com/roach88/casesync/internal/tracker"
	"github.com/roach88/casesync/internal/undo"
)

// pass is one driving direction with its inputs.
type pass struct {
	dir          tracker.Direction
	driving      []tracker.Record
	counterparts []tracker.Record
}

// step is one planned decision.
type step struct {
	dir      tracker.Direction
	pair     match.Pair
	decision reconcile.Decision
}

// SyncAll fetches both systems and reconciles every record of the
// driving system. DirectionBoth runs an AtoB pass then a BtoA pass, both
// planned from the same pre-run snapshots.
func (e *Engine) SyncAll(ctx context.Context, dir tracker.Direction) RunResult {
	return e.sync(ctx, dir, nil, false)
}

// SyncSubset reconciles the given records instead of a full snapshot of
// the driving system. Only the counterpart system is fetched.
//
// With a single-pass direction every record drives that pass, and one
// not owned by the pass's source system is skipped with a warning. With
// DirectionBoth the records are split by owning system.
func (e *Engine) SyncSubset(ctx context.Context, records []tracker.Record, dir tracker.Direction) RunResult {
	subset := make([]tracker.Record, len(records))
	copy(subset, records)
	return e.sync(ctx, dir, subset, true)
}

func (e *Engine) sync(ctx context.Context, dir tracker.Direction, subset []tracker.Record, isSubset bool) RunResult {
	if !dir.Valid() {
		err := &RunError{Code: ErrCodeInvalidRequest, Message: fmt.Sprintf("invalid direction %q", dir)}
		return RunResult{
			Direction: dir,
			State:     e.State(),
			Message:   err.Error(),
			Errors:    []string{err.Error()},
		}
	}

	runID := e.begin()
	res := &RunResult{RunID: runID, Direction: dir}
	logger := e.logger.With("run_id", runID, "direction", dir)
	logger.Info("sync started", "subset", isSubset, "records", len(subset))

	if e.journal != nil {
		err := e.journal.BeginRun(ctx, RunRecord{
			ID:        runID,
			Direction: dir,
			Subset:    isSubset,
			State:     StateFetching,
			StartedAt: e.now(),
		})
		if err != nil {
			return e.abort(ctx, logger, res, "journal", err)
		}
	}

	e.setState(StateFetching)
	passes, err := e.fetch(ctx, logger, dir, subset, isSubset, res)
	if err != nil {
		return e.abort(ctx, logger, res, "fetch", err)
	}

	e.setState(StateReconciling)
	steps, err := e.plan(logger, runID, passes, res)
	if err != nil {
		return e.abort(ctx, logger, res, "reconcile", err)
	}

	e.setState(StateApplying)
	for _, s := range steps {
		e.apply(ctx, logger, runID, s, res)
	}

	return e.complete(ctx, logger, res)
}

// begin clears the previous run's state and returns the new run ID.
func (e *Engine) begin() string {
	runID := e.runIDs.Generate()

	e.undoLog.Clear()
	e.clock.Reset(0)

	e.mu.Lock()
	e.runID = runID
	e.messages = nil
	e.state = StateIdle
	e.mu.Unlock()

	return runID
}

func (e *Engine) fetch(ctx context.Context, logger *slog.Logger, dir tracker.Direction, subset []tracker.Record, isSubset bool, res *RunResult) ([]pass, error) {
	passDirs := dir.Passes()

	needed := map[tracker.System]bool{}
	for _, p := range passDirs {
		needed[p.Target()] = true
		if !isSubset {
			needed[p.Source()] = true
		}
	}

	snapshots := map[tracker.System][]tracker.Record{}
	for _, sys := range []tracker.System{tracker.SystemA, tracker.SystemB} {
		if !needed[sys] {
			continue
		}
		records, err := e.snapshot(ctx, logger, sys, res)
		if err != nil {
			return nil, err
		}
		snapshots[sys] = records
	}

	passes := make([]pass, 0, len(passDirs))
	for _, p := range passDirs {
		driving := snapshots[p.Source()]
		if isSubset {
			driving = subset
			if dir == tracker.DirectionBoth {
				driving = ownedBy(subset, p.Source())
			}
		}
		passes = append(passes, pass{
			dir:          p,
			driving:      driving,
			counterparts: snapshots[p.Target()],
		})
	}
	return passes, nil
}

// snapshot lists one system. Records are stamped with sys.
func (e *Engine) snapshot(ctx context.Context, logger *slog.Logger, sys tracker.System, res *RunResult) ([]tracker.Record, error) {
	client, err := e.clients.For(sys)
	if err != nil {
		return nil, err
	}

	records, err := client.ListRecords(ctx)
	if err != nil {
		if !e.tolerateFetch {
			return nil, err
		}
		w := fmt.Sprintf("%s snapshot unavailable, treated as empty: %v", e.SystemName(sys), err)
		logger.Warn("snapshot failed", "system", sys, "error", err)
		res.Warnings = append(res.Warnings, w)
		return nil, nil
	}

	for i := range records {
		records[i].System = sys
	}
	logger.Debug("snapshot fetched", "system", sys, "records", len(records))
	return records, nil
}

func ownedBy(records []tracker.Record, sys tracker.System) []tracker.Record {
	var out []tracker.Record
	for _, r := range records {
		if r.System == sys {
			out = append(out, r)
		}
	}
	return out
}

// ReasonDuplicateTitle explains a NoOp for an unmatched record whose
// title is already being created earlier in the same pass.
const ReasonDuplicateTitle = "title already created in this pass"

// plan decides every step of every pass before any is applied.
func (e *Engine) plan(logger *slog.Logger, runID string, passes []pass, res *RunResult) ([]step, error) {
	var steps []step
	for _, p := range passes {
		idx := match.NewIndex(p.counterparts)
		mirrored := map[string]tracker.Record{}
		for _, rec := range p.driving {
			pair := idx.Lookup(rec)
			d, err := e.reconciler.DecidePair(pair, p.dir)
			if err != nil {
				return nil, err
			}

			// One mirror per title per pass. Later records with the same
			// title would otherwise create duplicates that the next run
			// reports as ambiguous.
			if d.Kind == reconcile.CreateInOther {
				key := match.Key(rec.Title)
				if first, ok := mirrored[key]; ok {
					d = reconcile.Decision{Kind: reconcile.NoOp, Target: d.Target, Reason: ReasonDuplicateTitle}
					w := fmt.Sprintf("%s skipped: %s already creates a %s record with this title",
						e.describe(rec), e.describe(first), e.SystemName(d.Target))
					logger.Warn("duplicate title in pass", "record", rec.ID, "first", first.ID)
					res.Warnings = append(res.Warnings, w)
				} else {
					mirrored[key] = rec
				}
			}

			switch {
			case d.Reason == reconcile.ReasonOutOfScope:
				w := fmt.Sprintf("%s skipped: not owned by %s", e.describe(rec), e.SystemName(p.dir.Source()))
				res.Warnings = append(res.Warnings, w)
			case pair.Ambiguous():
				notice := NewMatchAmbiguous(runID, e.describe(rec), e.describe(*pair.Counterpart), pair.Candidates)
				logger.Warn("ambiguous match", "record", rec.ID, "candidates", pair.Candidates, "chosen", pair.Counterpart.ID)
				res.Ambiguous++
				res.Warnings = append(res.Warnings, notice.Error())
			}

			steps = append(steps, step{dir: p.dir, pair: pair, decision: d})
		}
	}
	return steps, nil
}

// apply issues one decision. Failures are counted and the run goes on.
func (e *Engine) apply(ctx context.Context, logger *slog.Logger, runID string, s step, res *RunResult) {
	d := s.decision
	primary := s.pair.Primary

	switch d.Kind {
	case reconcile.NoOp:
		res.Skipped++
		logger.Debug("no change", "record", primary.ID, "system", primary.System, "reason", d.Reason)

	case reconcile.CreateInOther:
		client, err := e.clients.For(d.Target)
		var id string
		if err == nil {
			id, err = client.CreateRecord(ctx, primary.Title, d.Status)
		}
		if err != nil {
			e.fail(logger, res, s, err)
			return
		}
		res.Created++
		res.Warnings = append(res.Warnings, e.recordAction(ctx, runID, undo.Created(d.Target, id))...)
		msg := fmt.Sprintf("%s record %s created for %s record %s (%q, status %s)",
			e.SystemName(d.Target), id, e.SystemName(primary.System), primary.ID, primary.Title, d.Status)
		res.Warnings = append(res.Warnings, e.appendMessage(ctx, runID, msg)...)
		logger.Info("record created", "system", d.Target, "id", id, "for", primary.ID)

	case reconcile.UpdateOther:
		cp := s.pair.Counterpart
		client, err := e.clients.For(d.Target)
		if err == nil {
			err = client.UpdateStatus(ctx, cp.ID, d.Status)
		}
		if err != nil {
			e.fail(logger, res, s, err)
			return
		}
		res.Updated++
		res.Warnings = append(res.Warnings, e.recordAction(ctx, runID, undo.UpdatedStatus(d.Target, cp.ID, cp.Status))...)
		msg := fmt.Sprintf("%s record %s status %s -> %s (%s record %s is closed)",
			e.SystemName(d.Target), cp.ID, cp.Status, d.Status, e.SystemName(primary.System), primary.ID)
		res.Warnings = append(res.Warnings, e.appendMessage(ctx, runID, msg)...)
		logger.Info("status updated", "system", d.Target, "id", cp.ID, "from", cp.Status, "to", d.Status)
	}
}

func (e *Engine) fail(logger *slog.Logger, res *RunResult, s step, err error) {
	res.Failed++
	res.Errors = append(res.Errors, err.Error())
	logger.Error("mutation failed",
		"decision", s.decision.Kind,
		"record", s.pair.Primary.ID,
		"system", s.pair.Primary.System,
		"error", err)
}

func (e *Engine) complete(ctx context.Context, logger *slog.Logger, res *RunResult) RunResult {
	e.setState(StateComplete)
	res.State = StateComplete
	res.Success = res.Failed == 0
	res.Message = fmt.Sprintf("sync %s complete: %d created, %d updated, %d skipped, %d failed",
		res.Direction, res.Created, res.Updated, res.Skipped, res.Failed)
	if len(res.Errors) > 0 {
		res.Message += "; errors: " + strings.Join(res.Errors, "; ")
	}

	e.finish(ctx, logger, res)
	logger.Info("sync complete",
		"created", res.Created,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"failed", res.Failed)
	return *res
}

func (e *Engine) abort(ctx context.Context, logger *slog.Logger, res *RunResult, phase string, err error) RunResult {
	rerr := NewRunAborted(res.RunID, phase, err)

	e.setState(StateFailed)
	res.State = StateFailed
	res.Success = false
	res.Errors = append(res.Errors, rerr.Error())
	res.Message = fmt.Sprintf("sync %s aborted: %v", res.Direction, rerr)

	if phase != "journal" {
		e.finish(ctx, logger, res)
	}
	logger.Error("sync aborted", "phase", phase, "error", err)
	return *res
}

func (e *Engine) finish(ctx context.Context, logger *slog.Logger, res *RunResult) {
	if e.journal == nil {
		return
	}
	if err := e.journal.FinishRun(ctx, res.RunID, res.State, res.Message, e.now()); err != nil {
		logger.Warn("journal finish failed", "error", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("journal: run not finalized: %v", err))
	}
}

func (e *Engine) describe(r tracker.Record) string {
	return fmt.Sprintf("%s record %s (%q)", e.SystemName(r.System), r.ID, r.Title)
}
