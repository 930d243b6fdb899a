package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/casesync/internal/tracker"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			if event.Type == EventCall {
				fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, event.Call)
			} else {
				fmt.Fprintf(&buf, "  [%d] %s: %s\n", event.Seq, event.Type, event.Message)
			}
		}
	}

	return buf.String()
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertRecord:
			err = assertRecord(result, assertion)
		case AssertRecordAbsent:
			err = assertRecordAbsent(result, assertion)
		case AssertRecordCount:
			err = assertRecordCount(result, assertion)
		case AssertCallCount:
			err = assertCallCount(result, assertion)
		case AssertCallOrder:
			err = assertCallOrder(result, assertion)
		case AssertLogContains:
			err = assertLogContains(result, assertion)
		case AssertPendingActions:
			err = assertPendingActions(result, assertion)
		case AssertMatchesInitial:
			err = assertMatchesInitial(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func findRecord(records []tracker.Record, id string) (tracker.Record, bool) {
	for _, r := range records {
		if r.ID == id {
			return r, true
		}
	}
	return tracker.Record{}, false
}

// assertRecord checks that a final record exists with the given fields.
func assertRecord(result *Result, a Assertion) error {
	sys, err := tracker.ParseSystem(a.System)
	if err != nil {
		return err
	}

	expected := fmt.Sprintf("%s record %s", sys, a.ID)
	if a.Title != "" {
		expected += fmt.Sprintf(" title=%q", a.Title)
	}
	if a.Status != "" {
		expected += fmt.Sprintf(" status=%q", a.Status)
	}

	rec, ok := findRecord(result.Final[sys], a.ID)
	if !ok {
		return &AssertionError{Type: AssertRecord, Expected: expected, Actual: "record does not exist"}
	}
	if (a.Title != "" && rec.Title != a.Title) || (a.Status != "" && string(rec.Status) != a.Status) {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: expected,
			Actual:   fmt.Sprintf("title=%q status=%q", rec.Title, rec.Status),
		}
	}
	return nil
}

func assertRecordAbsent(result *Result, a Assertion) error {
	sys, err := tracker.ParseSystem(a.System)
	if err != nil {
		return err
	}
	if rec, ok := findRecord(result.Final[sys], a.ID); ok {
		return &AssertionError{
			Type:     AssertRecordAbsent,
			Expected: fmt.Sprintf("no %s record %s", sys, a.ID),
			Actual:   rec.String(),
		}
	}
	return nil
}

func assertRecordCount(result *Result, a Assertion) error {
	sys, err := tracker.ParseSystem(a.System)
	if err != nil {
		return err
	}
	if got := len(result.Final[sys]); got != a.Count {
		return &AssertionError{
			Type:     AssertRecordCount,
			Expected: fmt.Sprintf("%s holds %d records", sys, a.Count),
			Actual:   fmt.Sprintf("%d records", got),
		}
	}
	return nil
}

// assertCallCount counts calls of one op on one system, failed calls
// included.
func assertCallCount(result *Result, a Assertion) error {
	sys, err := tracker.ParseSystem(a.System)
	if err != nil {
		return err
	}
	op, err := parseOp(a.Op)
	if err != nil {
		return err
	}

	count := 0
	for _, c := range result.Calls {
		if c.System == sys && c.Op == op {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertCallCount,
			Expected: fmt.Sprintf("%s %s called %d times", sys, op, a.Count),
			Actual:   fmt.Sprintf("called %d times", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertCallOrder checks that the given calls appear in order. Other
// calls may appear between them.
func assertCallOrder(result *Result, a Assertion) error {
	next := 0
	for _, c := range result.Calls {
		if next < len(a.Calls) && c.String() == a.Calls[next] {
			next++
		}
	}
	if next == len(a.Calls) {
		return nil
	}
	return &AssertionError{
		Type:     AssertCallOrder,
		Expected: fmt.Sprintf("calls in order: %s", strings.Join(a.Calls, ", ")),
		Actual:   fmt.Sprintf("%q not found after %d matched calls", a.Calls[next], next),
		Trace:    result.Trace,
	}
}

func assertLogContains(result *Result, a Assertion) error {
	for _, msg := range result.Log {
		if strings.Contains(msg, a.Text) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertLogContains,
		Expected: fmt.Sprintf("log message containing %q", a.Text),
		Actual:   fmt.Sprintf("log: %q", result.Log),
	}
}

func assertPendingActions(result *Result, a Assertion) error {
	if result.Pending != a.Count {
		return &AssertionError{
			Type:     AssertPendingActions,
			Expected: fmt.Sprintf("%d pending undo actions", a.Count),
			Actual:   fmt.Sprintf("%d", result.Pending),
		}
	}
	return nil
}

// assertMatchesInitial checks that a system's final records equal its
// seed records, order included.
func assertMatchesInitial(result *Result, a Assertion) error {
	systems := []tracker.System{tracker.SystemA, tracker.SystemB}
	if a.System != "" {
		sys, err := tracker.ParseSystem(a.System)
		if err != nil {
			return err
		}
		systems = []tracker.System{sys}
	}

	for _, sys := range systems {
		initial, final := result.Initial[sys], result.Final[sys]
		if len(initial) == 0 && len(final) == 0 {
			continue
		}
		if !reflect.DeepEqual(initial, final) {
			return &AssertionError{
				Type:     AssertMatchesInitial,
				Expected: fmt.Sprintf("%s records %s", sys, formatRecords(initial)),
				Actual:   formatRecords(final),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

func formatRecords(records []tracker.Record) string {
	parts := make([]string, 0, len(records))
	for _, r := range records {
		parts = append(parts, fmt.Sprintf("%s:%q=%s", r.ID, r.Title, r.Status))
	}
	return "[" + strings.Join(parts, " ") + "]"
}
