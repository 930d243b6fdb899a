// Package engine implements the casesync reconciliation and undo engine.
//
// An Engine owns the state of exactly one run at a time: the undo log,
// the ordered log messages, and a logical clock that sequences them. A
// new sync run discards the previous run's state, so only the most
// recent run can be undone. This is a deliberate limitation.
//
// RUN LIFECYCLE:
//
//	Idle -> Fetching -> Reconciling -> Applying -> Complete
//	                \-> Failed (fetch or reconcile failure)
//
// Fetching takes a snapshot of each system. Reconciling pairs records by
// title and decides one mutation per driving record, for every pass of
// the run, before anything is applied. Applying issues the mutations one
// at a time in snapshot order and records an invertible action for each
// success. A failed mutation is logged and counted, and the run moves on
// to the next record.
//
// SERIALIZATION:
//
// SyncAll, SyncSubset and UndoLast block until they finish. The engine
// does not serialize them; callers that dispatch runs from several
// goroutines must ensure only one is in flight. Log and State may be
// read concurrently with a run.
//
// ORDERING:
//
// Every message and action of a run is stamped from the engine's
// logical clock. The journal persists those stamps so a restored engine
// reproduces the same order.
package engine
