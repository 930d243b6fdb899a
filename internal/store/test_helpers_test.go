package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/casesync/internal/engine"
	"github.com/roach88/casesync/internal/tracker"
)

// createTestStore opens a fresh store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "casesync.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestRun returns a run header with minimal required fields.
func createTestRun(id string) engine.RunRecord {
	return engine.RunRecord{
		ID:        id,
		Direction: tracker.DirectionAtoB,
		State:     engine.StateFetching,
		StartedAt: testStart,
	}
}
