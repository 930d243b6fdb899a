// Package harness runs sync scenarios against in-memory trackers.
//
// A scenario seeds both systems, executes a list of steps through the
// real engine, and evaluates assertions on the final records, the call
// trace, and the run log. Every scenario gets its own sqlite journal, so
// a restart step can rebuild the engine from disk the way a new process
// would.
//
// # Scenario Format
//
//	name: close_propagates
//	description: "A closed case closes its work item, and undo reopens it"
//	direction: a2b            # default for sync and subset steps
//	a:
//	  - {id: "1", title: X, status: Closed}
//	b:
//	  - {id: "9", title: X, status: New}
//	steps:
//	  - sync: {}
//	    expect: {success: true, updated: 1}
//	  - fail: {system: B, op: update, id: "9"}
//	  - heal: {}
//	  - restart: {}
//	  - subset: {direction: b2a, records: [{system: B, id: "9"}]}
//	  - undo: {}
//	    expect: {undone: 1}
//	assertions:
//	  - {type: record, system: B, id: "9", status: New}
//	  - {type: call_order, calls: ['B update id=9 status="Closed"', 'B update id=9 status="New"']}
//
// Steps with no arguments must be written as an empty mapping ("undo: {}").
//
// # Assertion Types
//
//   - record: a record exists with the given status (and title, if set)
//   - record_absent: no record has the given ID
//   - record_count: a system holds exactly count records
//   - call_count: a system received op exactly count times, failed calls included
//   - call_order: the given calls appear in order, not necessarily adjacent
//   - log_contains: some log message of the last run contains text
//   - pending_actions: the undo log holds exactly count actions
//   - matches_initial: a system (or both, if unset) is back to its seed records
//
// # Deterministic Testing
//
// Run IDs are "run-1", "run-2", ... and journal timestamps come from a
// step clock, so the trace of a scenario is identical on every run and
// can be compared against a golden file with RunWithGolden.
package harness
