package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/casesync/internal/tracker"
)

func mustParse(t *testing.T, yaml string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(yaml))
	require.NoError(t, err)
	return s
}

func TestRun_Fixtures(t *testing.T) {
	files, err := ScenarioFiles("testdata/scenarios")
	require.NoError(t, err)

	for _, f := range files {
		t.Run(strings.TrimSuffix(filepath.Base(f), ".yaml"), func(t *testing.T) {
			s, err := LoadScenario(f)
			require.NoError(t, err)

			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_CapturesStateAndLog(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/subset_b2a.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)

	require.Len(t, result.Steps, 1)
	require.NotNil(t, result.Steps[0].Run)
	assert.Equal(t, "run-1", result.Steps[0].Run.RunID)
	assert.Equal(t, tracker.DirectionBtoA, result.Steps[0].Run.Direction)

	assert.Equal(t, tracker.Status("Open"), result.Initial[tracker.SystemA][0].Status)
	assert.Equal(t, tracker.Status("Closed"), result.Final[tracker.SystemA][0].Status)
	assert.Len(t, result.Final[tracker.SystemB], 2)

	assert.Equal(t, []string{"A record 1 status Open -> Closed (B record 4 is closed)"}, result.Log)
	assert.Equal(t, 1, result.Pending)

	var types []string
	for _, e := range result.Trace {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{EventSubset, EventCall, EventCall}, types)
	assert.Equal(t, "A list", result.Trace[1].Call)
	assert.Equal(t, `A update id=1 status="Closed"`, result.Trace[2].Call)
}

func TestRun_SeqIsContiguous(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/both_directions.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	for i, e := range result.Trace {
		assert.Equal(t, int64(i+1), e.Seq)
	}
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/restart_undo.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t,
		string(NewTraceSnapshot(s.Name, first).Render()),
		string(NewTraceSnapshot(s.Name, second).Render()))
}

func TestRun_ExpectationMismatch(t *testing.T) {
	s := mustParse(t, `
name: mismatch
description: expectations that do not hold
a:
  - {id: "1", title: X, status: Closed}
b: []
steps:
  - sync: {}
    expect: {success: false, created: 2, message: "nope"}
  - undo: {}
    expect: {undone: 5, created: 1}
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)

	joined := strings.Join(result.Errors, "\n")
	assert.Contains(t, joined, "steps[0].expect.created: expected 2, got 1")
	assert.Contains(t, joined, "steps[0].expect.success: expected false, got true")
	assert.Contains(t, joined, `steps[0].expect.message: expected substring "nope"`)
	assert.Contains(t, joined, "steps[1].expect.undone: expected 5, got 1")
	assert.Contains(t, joined, "steps[1].expect: run counters do not apply to undo steps")
}

func TestRun_AssertionFailures(t *testing.T) {
	s := mustParse(t, `
name: failing_assertions
description: assertions that do not hold
a:
  - {id: "1", title: X, status: Open}
b: []
steps:
  - sync: {}
assertions:
  - {type: record, system: B, id: "1", status: Closed}
  - {type: record, system: B, id: "2", status: New}
  - {type: record_absent, system: A, id: "1"}
  - {type: record_count, system: B, count: 0}
  - {type: call_count, system: B, op: create, count: 0}
  - {type: call_order, calls: ['B create title="X" status="New" -> 1', 'A list']}
  - {type: log_contains, text: "deleted"}
  - {type: pending_actions, count: 0}
  - {type: matches_initial, system: B}
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 9)

	assert.Contains(t, result.Errors[0], `Actual: title="X" status="New"`)
	assert.Contains(t, result.Errors[1], "record does not exist")
	assert.Contains(t, result.Errors[2], "Assertion failed: record_absent")
	assert.Contains(t, result.Errors[3], "Actual: 1 records")
	assert.Contains(t, result.Errors[4], "called 1 times")
	assert.Contains(t, result.Errors[5], `"A list" not found after 1 matched calls`)
	assert.Contains(t, result.Errors[5], "Full trace:")
	assert.Contains(t, result.Errors[6], `log message containing "deleted"`)
	assert.Contains(t, result.Errors[7], "Actual: 1")
	assert.Contains(t, result.Errors[8], "Assertion failed: matches_initial")
}

func TestRun_RestartWithoutRuns(t *testing.T) {
	s := mustParse(t, `
name: restart_first
description: restarting before any run restores nothing
a: []
b: []
steps:
  - restart: {}
  - undo: {}
    expect: {success: true, undone: 0, message: nothing to undo}
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "no run to restore", result.Trace[0].Message)
}

func TestRun_SubsetUnknownRecord(t *testing.T) {
	s := mustParse(t, `
name: subset_missing
description: a subset naming a missing record is an execution error
a: []
b: []
steps:
  - subset: {records: [{system: A, id: "42"}]}
`)

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "A record 42 does not exist")
}

func TestRunContext_Canceled(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/close_propagates.yaml")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := RunContext(ctx, s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Steps)
	assert.False(t, result.Steps[0].Run.Success)
}
