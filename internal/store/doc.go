// Package store provides SQLite-backed durable storage for casesync runs.
//
// The store is the engine's run journal. It keeps:
//   - Runs: one header per sync run (direction, state, summary)
//   - Messages: the human-readable log of each run
//   - Actions: the undo actions of the most recent run
//
// Starting a run deletes the undo actions of every older run, so only
// the latest run can be undone, matching the engine's in-memory rules.
// Messages of older runs are kept for inspection.
//
// # Ordering
//
//   - Runs are ordered by an autoincrement seq, never by timestamps
//   - Messages and actions are ordered by the engine's logical clock,
//     stored in their seq column
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
