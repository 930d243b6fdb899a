package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/casesync/internal/engine"
	"github.com/roach88/casesync/internal/tracker"
	"github.com/roach88/casesync/internal/undo"
)

const runColumns = `id, direction, subset, state, message, undone, started_at, finished_at`

// LatestRun returns the most recently started run, or nil if there is
// none. LastSeq is filled from the run's messages and actions.
func (s *Store) LatestRun(ctx context.Context) (*engine.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM runs ORDER BY seq DESC LIMIT 1
	`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}

	if err := s.fillLastSeq(ctx, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Run returns the run with id, or ErrNotFound.
func (s *Store) Run(ctx context.Context, id string) (*engine.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}

	if err := s.fillLastSeq(ctx, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Runs returns up to limit runs, newest first. A limit <= 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]engine.RunRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs ORDER BY seq DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []engine.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Messages returns a run's messages in seq order.
// Returns an empty slice (not nil) if the run has none.
func (s *Store) Messages(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT text FROM messages WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []string{}
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, text)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// Actions returns a run's undo actions in seq order.
// Returns an empty slice (not nil) if the run has none.
func (s *Store) Actions(ctx context.Context, runID string) ([]undo.Action, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, system, record_id, field, previous_status
		FROM actions WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	actions := []undo.Action{}
	for rows.Next() {
		var (
			a               undo.Action
			kind, sys, prev string
		)
		if err := rows.Scan(&kind, &sys, &a.RecordID, &a.Field, &prev); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.Kind = undo.Kind(kind)
		a.System = tracker.System(sys)
		a.PreviousStatus = tracker.Status(prev)
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return actions, nil
}

func (s *Store) fillLastSeq(ctx context.Context, run *engine.RunRecord) error {
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM (
			SELECT seq FROM messages WHERE run_id = ?
			UNION ALL
			SELECT seq FROM actions WHERE run_id = ?
		)
	`, run.ID, run.ID).Scan(&run.LastSeq)
	if err != nil {
		return fmt.Errorf("last seq of run %s: %w", run.ID, err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (engine.RunRecord, error) {
	var (
		run              engine.RunRecord
		direction, state string
		subset, undone   int
		startedAt        string
		finishedAt       sql.NullString
	)
	if err := row.Scan(&run.ID, &direction, &subset, &state, &run.Message, &undone, &startedAt, &finishedAt); err != nil {
		return engine.RunRecord{}, err
	}

	run.Direction = tracker.Direction(direction)
	run.State = engine.State(state)
	run.Subset = subset != 0
	run.Undone = undone != 0

	var err error
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return engine.RunRecord{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt.Valid {
		if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt.String); err != nil {
			return engine.RunRecord{}, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	return run, nil
}
