package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/casesync/internal/tracker"
)

// TraceSnapshot captures what a scenario did: every step and tracker
// call in order, the final records of both systems, and the engine log.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Final        map[tracker.System][]tracker.Record
	Log          []string
}

// NewTraceSnapshot builds a snapshot of result.
func NewTraceSnapshot(name string, result *Result) TraceSnapshot {
	return TraceSnapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Final:        result.Final,
		Log:          result.Log,
	}
}

// Render formats the snapshot as line-oriented text, so golden diffs
// read like a transcript:
//
//	scenario: close_propagates
//	[1] step 0 sync: sync a2b complete: 0 created, 1 updated, 0 skipped, 0 failed
//	[2]   A list
//	[3]   B list
//	[4]   B update id=9 status="Closed"
//	final A:
//	  1 "X" Closed
//	final B:
//	  9 "X" Closed
//	log:
//	  B record 9 status New -> Closed (A record 1 is closed)
func (s TraceSnapshot) Render() []byte {
	var buf strings.Builder

	fmt.Fprintf(&buf, "scenario: %s\n", s.ScenarioName)
	for _, e := range s.Trace {
		if e.Type == EventCall {
			fmt.Fprintf(&buf, "[%d]   %s\n", e.Seq, e.Call)
			continue
		}
		fmt.Fprintf(&buf, "[%d] step %d %s: %s\n", e.Seq, e.Step, e.Type, e.Message)
	}

	for _, sys := range []tracker.System{tracker.SystemA, tracker.SystemB} {
		fmt.Fprintf(&buf, "final %s:\n", sys)
		for _, r := range s.Final[sys] {
			fmt.Fprintf(&buf, "  %s %q %s\n", r.ID, r.Title, r.Status)
		}
	}

	buf.WriteString("log:\n")
	for _, msg := range s.Log {
		fmt.Fprintf(&buf, "  %s\n", msg)
	}

	return []byte(buf.String())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares the given result against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, NewTraceSnapshot(scenarioName, result).Render())
}
