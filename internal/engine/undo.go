package engine

import (
	"context"
	"fmt"
	"strings"
)

// UndoLast reverts every mutation of the most recent run, newest first.
//
// Each inverse is attempted even if an earlier one failed; failures are
// listed in the result. Successful inverses are appended to the log.
// Afterwards the undo log is empty, so a second call is a no-op.
//
// Journal write failures are reported as warnings in the message. A
// failure to mark the run undone also fails the result, since a later
// Restore would bring the reverted actions back.
func (e *Engine) UndoLast(ctx context.Context) UndoResult {
	runID := e.RunID()
	logger := e.logger.With("run_id", runID)

	if e.undoLog.Len() == 0 {
		return UndoResult{RunID: runID, Success: true, Message: "nothing to undo"}
	}

	logger.Info("undo started", "actions", e.undoLog.Len())
	report := e.undoLog.UndoAll(ctx, e.clients)

	res := UndoResult{RunID: runID, Undone: report.Undone}
	for _, o := range report.Outcomes {
		desc := o.Action.Describe(e.SystemName)
		if o.OK() {
			res.Warnings = append(res.Warnings, e.appendMessage(ctx, runID, "undo: "+desc)...)
			continue
		}
		res.Failures = append(res.Failures, fmt.Sprintf("%s: %v", desc, o.Err))
		logger.Error("undo action failed", "system", o.Action.System, "id", o.Action.RecordID, "error", o.Err)
	}

	total := len(report.Outcomes)
	if len(res.Failures) == 0 {
		res.Message = fmt.Sprintf("undo complete: %d of %d actions reverted", res.Undone, total)
	} else {
		res.Message = fmt.Sprintf("undo finished with %d failure(s): %d of %d actions reverted; errors: %s",
			len(res.Failures), res.Undone, total, strings.Join(res.Failures, "; "))
	}

	// A run left unmarked would be restored with its actions and undone
	// a second time by a later process.
	marked := true
	if e.journal != nil {
		if err := e.journal.MarkUndone(ctx, runID, res.Message); err != nil {
			logger.Warn("journal undo mark failed", "error", err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("journal: run %s not marked undone: %v", runID, err))
			marked = false
		}
	}
	if len(res.Warnings) > 0 {
		res.Message += "; warnings: " + strings.Join(res.Warnings, "; ")
	}
	res.Success = len(res.Failures) == 0 && marked

	logger.Info("undo finished", "undone", res.Undone, "failed", len(res.Failures))
	return res
}
