package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/casesync/internal/status"
	"github.com/roach88/casesync/internal/tracker"
)

// Scenario defines a sync scenario.
// It seeds both systems, executes steps through the engine, and asserts
// on the resulting trace and final records.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Direction is the default for sync and subset steps. Defaults to a2b.
	Direction string `yaml:"direction,omitempty"`

	// TolerateFetchErrors treats a failed listing as empty instead of
	// aborting the run.
	TolerateFetchErrors bool `yaml:"tolerate_fetch_errors,omitempty"`

	// Status overrides the default status table.
	Status *StatusTable `yaml:"status,omitempty"`

	// A and B seed the two systems.
	A []tracker.Record `yaml:"a"`
	B []tracker.Record `yaml:"b"`

	// Steps are executed in order against one engine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and records.
	Assertions []Assertion `yaml:"assertions"`
}

// StatusTable is a status mapping as written in a scenario.
type StatusTable struct {
	Map      []status.Pair  `yaml:"map"`
	DefaultA tracker.Status `yaml:"default_a,omitempty"`
	DefaultB tracker.Status `yaml:"default_b,omitempty"`
	ClosedA  tracker.Status `yaml:"closed_a,omitempty"`
	ClosedB  tracker.Status `yaml:"closed_b,omitempty"`
}

// Mapping builds the status mapping. Unset literals keep their defaults.
func (t *StatusTable) Mapping() (*status.Mapping, error) {
	if t == nil {
		return status.Default(), nil
	}
	opts := status.DefaultOptions()
	if t.DefaultA != "" {
		opts.DefaultA = t.DefaultA
	}
	if t.DefaultB != "" {
		opts.DefaultB = t.DefaultB
	}
	if t.ClosedA != "" {
		opts.ClosedA = t.ClosedA
	}
	if t.ClosedB != "" {
		opts.ClosedB = t.ClosedB
	}
	pairs := t.Map
	if len(pairs) == 0 {
		pairs = status.DefaultPairs
	}
	return status.New(pairs, opts)
}

// Step is one scenario action. Exactly one action field must be set.
type Step struct {
	Sync    *SyncStep   `yaml:"sync,omitempty"`
	Subset  *SubsetStep `yaml:"subset,omitempty"`
	Undo    *struct{}   `yaml:"undo,omitempty"`
	Restart *struct{}   `yaml:"restart,omitempty"`
	Fail    *FailStep   `yaml:"fail,omitempty"`
	Heal    *HealStep   `yaml:"heal,omitempty"`

	// Expect checks the result of a sync, subset or undo step.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Type returns the trace event type of the step's action, or "" if the
// step has none.
func (s Step) Type() string {
	switch {
	case s.Sync != nil:
		return EventSync
	case s.Subset != nil:
		return EventSubset
	case s.Undo != nil:
		return EventUndo
	case s.Restart != nil:
		return EventRestart
	case s.Fail != nil:
		return EventFail
	case s.Heal != nil:
		return EventHeal
	default:
		return ""
	}
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{s.Sync != nil, s.Subset != nil, s.Undo != nil, s.Restart != nil, s.Fail != nil, s.Heal != nil} {
		if set {
			n++
		}
	}
	return n
}

// SyncStep runs a full sync.
type SyncStep struct {
	// Direction overrides the scenario direction.
	Direction string `yaml:"direction,omitempty"`
}

// SubsetStep runs a subset sync over records picked by reference.
// References are resolved against the systems' records at the time the
// step runs, so a subset can name a record created by an earlier step.
type SubsetStep struct {
	Direction string      `yaml:"direction,omitempty"`
	Records   []RecordRef `yaml:"records"`
}

// RecordRef names one record.
type RecordRef struct {
	System string `yaml:"system"`
	ID     string `yaml:"id"`
}

// FailStep makes later calls of Op on System fail. An empty ID fails the
// op for every record.
type FailStep struct {
	System string `yaml:"system"`
	Op     string `yaml:"op"`
	ID     string `yaml:"id,omitempty"`
}

// HealStep removes injected failures. An empty System heals both.
type HealStep struct {
	System string `yaml:"system,omitempty"`
}

// Expect checks a step result. Unset fields are not checked.
type Expect struct {
	Success   *bool  `yaml:"success,omitempty"`
	State     string `yaml:"state,omitempty"`
	Created   *int   `yaml:"created,omitempty"`
	Updated   *int   `yaml:"updated,omitempty"`
	Skipped   *int   `yaml:"skipped,omitempty"`
	Failed    *int   `yaml:"failed,omitempty"`
	Ambiguous *int   `yaml:"ambiguous,omitempty"`
	Undone    *int   `yaml:"undone,omitempty"`

	// Message must be a substring of the result message.
	Message string `yaml:"message,omitempty"`
}

// Assertion validates the final trace or records.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	System string `yaml:"system,omitempty"`
	ID     string `yaml:"id,omitempty"`
	Title  string `yaml:"title,omitempty"`
	Status string `yaml:"status,omitempty"`

	// Op is the call operation counted by call_count.
	Op string `yaml:"op,omitempty"`

	// Count is the expected number for record_count, call_count and
	// pending_actions.
	Count int `yaml:"count,omitempty"`

	// Calls is the expected order for call_order, in memory.Call
	// String form.
	Calls []string `yaml:"calls,omitempty"`

	// Text is the substring looked for by log_contains.
	Text string `yaml:"text,omitempty"`
}

// Assertion type constants.
const (
	AssertRecord         = "record"
	AssertRecordAbsent   = "record_absent"
	AssertRecordCount    = "record_count"
	AssertCallCount      = "call_count"
	AssertCallOrder      = "call_order"
	AssertLogContains    = "log_contains"
	AssertPendingActions = "pending_actions"
	AssertMatchesInitial = "matches_initial"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// ScenarioFiles returns the .yaml and .yml files of dir, sorted by name.
func ScenarioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Direction != "" {
		if _, err := tracker.ParseDirection(s.Direction); err != nil {
			return fmt.Errorf("direction: %w", err)
		}
	}

	if _, err := s.Status.Mapping(); err != nil {
		return fmt.Errorf("status: %w", err)
	}

	if err := validateSeed("a", s.A); err != nil {
		return err
	}
	if err := validateSeed("b", s.B); err != nil {
		return err
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateSeed(name string, records []tracker.Record) error {
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%s[%d]: id is required", name, i)
		}
		if seen[r.ID] {
			return fmt.Errorf("%s[%d]: duplicate id %q", name, i, r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

// validateStep checks that a step names exactly one well-formed action.
func validateStep(index int, s Step) error {
	if n := s.actions(); n != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required (got %d)", index, n)
	}

	switch {
	case s.Sync != nil:
		if err := validateDirection(s.Sync.Direction); err != nil {
			return fmt.Errorf("steps[%d].sync: %w", index, err)
		}
	case s.Subset != nil:
		if err := validateDirection(s.Subset.Direction); err != nil {
			return fmt.Errorf("steps[%d].subset: %w", index, err)
		}
		if len(s.Subset.Records) == 0 {
			return fmt.Errorf("steps[%d].subset: records list is required and must be non-empty", index)
		}
		for j, ref := range s.Subset.Records {
			if _, err := tracker.ParseSystem(ref.System); err != nil {
				return fmt.Errorf("steps[%d].subset.records[%d]: %w", index, j, err)
			}
			if ref.ID == "" {
				return fmt.Errorf("steps[%d].subset.records[%d]: id is required", index, j)
			}
		}
	case s.Fail != nil:
		if _, err := tracker.ParseSystem(s.Fail.System); err != nil {
			return fmt.Errorf("steps[%d].fail: %w", index, err)
		}
		if _, err := parseOp(s.Fail.Op); err != nil {
			return fmt.Errorf("steps[%d].fail: %w", index, err)
		}
	case s.Heal != nil:
		if s.Heal.System != "" {
			if _, err := tracker.ParseSystem(s.Heal.System); err != nil {
				return fmt.Errorf("steps[%d].heal: %w", index, err)
			}
		}
	}

	if s.Expect != nil {
		switch s.Type() {
		case EventSync, EventSubset, EventUndo:
		default:
			return fmt.Errorf("steps[%d]: expect is not allowed on a %s step", index, s.Type())
		}
	}

	return nil
}

func validateDirection(d string) error {
	if d == "" {
		return nil
	}
	_, err := tracker.ParseDirection(d)
	return err
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	needSystem := func() error {
		if _, err := tracker.ParseSystem(a.System); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		return nil
	}

	switch a.Type {
	case AssertRecord:
		if err := needSystem(); err != nil {
			return err
		}
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for record", index)
		}
		if a.Status == "" && a.Title == "" {
			return fmt.Errorf("assertions[%d]: status or title is required for record", index)
		}
	case AssertRecordAbsent:
		if err := needSystem(); err != nil {
			return err
		}
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for record_absent", index)
		}
	case AssertRecordCount:
		if err := needSystem(); err != nil {
			return err
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for record_count", index)
		}
	case AssertCallCount:
		if err := needSystem(); err != nil {
			return err
		}
		if _, err := parseOp(a.Op); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for call_count", index)
		}
	case AssertCallOrder:
		if len(a.Calls) == 0 {
			return fmt.Errorf("assertions[%d]: calls list is required for call_order", index)
		}
	case AssertLogContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for log_contains", index)
		}
	case AssertPendingActions:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for pending_actions", index)
		}
	case AssertMatchesInitial:
		if a.System != "" {
			if err := needSystem(); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
