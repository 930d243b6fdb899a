package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/casesync/internal/engine"
	"github.com/roach88/casesync/internal/undo"
)

// Store implements the engine's run journal.
var _ engine.Journal = (*Store)(nil)

// BeginRun inserts a run header and discards the undo actions of every
// older run, in one transaction.
func (s *Store) BeginRun(ctx context.Context, run engine.RunRecord) error {
	return s.withTx(ctx, "begin run", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM actions`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (id, direction, subset, state, message, undone, started_at)
			VALUES (?, ?, ?, ?, ?, 0, ?)
		`,
			run.ID,
			string(run.Direction),
			boolToInt(run.Subset),
			string(run.State),
			run.Message,
			formatTime(run.StartedAt),
		)
		return err
	})
}

// AppendMessage inserts one log message of a run.
func (s *Store) AppendMessage(ctx context.Context, runID string, seq int64, text string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (run_id, seq, text) VALUES (?, ?, ?)
	`, runID, seq, text)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// AppendAction inserts one undo action of a run.
func (s *Store) AppendAction(ctx context.Context, runID string, seq int64, a undo.Action) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actions (run_id, seq, kind, system, record_id, field, previous_status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		seq,
		string(a.Kind),
		string(a.System),
		a.RecordID,
		a.Field,
		string(a.PreviousStatus),
	)
	if err != nil {
		return fmt.Errorf("append action: %w", err)
	}
	return nil
}

// FinishRun records a run's terminal state and summary.
func (s *Store) FinishRun(ctx context.Context, runID string, state engine.State, message string, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET state = ?, message = ?, finished_at = ? WHERE id = ?
	`, string(state), message, formatTime(finishedAt), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return expectOneRow(res, "finish run", runID)
}

// MarkUndone flags a run as undone and deletes its actions.
func (s *Store) MarkUndone(ctx context.Context, runID string, message string) error {
	return s.withTx(ctx, "mark undone", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE runs SET undone = 1, message = ? WHERE id = ?
		`, message, runID)
		if err != nil {
			return err
		}
		if err := expectOneRow(res, "mark undone", runID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM actions WHERE run_id = ?`, runID)
		return err
	})
}

// withTx runs fn in a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin transaction: %w", op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func expectOneRow(res sql.Result, op, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, runID, ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
