package tracker

import (
	"fmt"
	"strings"
)

// System identifies which external tracker owns a record.
type System string

const (
	SystemA System = "A" // support-case system
	SystemB System = "B" // work-tracking system
)

// Valid reports whether s is one of the two known systems.
func (s System) Valid() bool {
	return s == SystemA || s == SystemB
}

// Other returns the opposite system.
func (s System) Other() System {
	if s == SystemA {
		return SystemB
	}
	return SystemA
}

// ParseSystem accepts "a"/"b" in either case.
func ParseSystem(s string) (System, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return SystemA, nil
	case "B":
		return SystemB, nil
	default:
		return "", fmt.Errorf("unknown system %q: must be A or B", s)
	}
}

// Status is a status literal drawn from one system's vocabulary.
// The same literal may mean different things in the two systems;
// translation is owned by the status package.
type Status string

// FieldStatus is the field name recorded for status mutations.
const FieldStatus = "status"

// Record is a normalized ticket or work item.
//
// Records are snapshots: they are built fresh on every fetch and never
// mutated by the engine. A mutation is a remote call, not a field write.
type Record struct {
	ID     string `json:"id" yaml:"id"`         // assigned by the owning system
	Title  string `json:"title" yaml:"title"`   // cross-system matching key
	Status Status `json:"status" yaml:"status"` // owning system's vocabulary
	System System `json:"system" yaml:"system"` // owning system, immutable
}

// String renders the record for log messages.
func (r Record) String() string {
	return fmt.Sprintf("%s record %s (%q, status %s)", r.System, r.ID, r.Title, r.Status)
}

// Direction selects which system drives a sync pass.
type Direction string

const (
	DirectionAtoB Direction = "a2b"
	DirectionBtoA Direction = "b2a"

	// DirectionBoth runs an AtoB pass followed by a BtoA pass over the
	// same pre-run snapshots.
	DirectionBoth Direction = "both"
)

// ValidDirections lists accepted direction literals in display order.
var ValidDirections = []Direction{DirectionAtoB, DirectionBtoA, DirectionBoth}

// ParseDirection parses a direction literal. "atob"/"btoa" are accepted
// as aliases.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a2b", "atob":
		return DirectionAtoB, nil
	case "b2a", "btoa":
		return DirectionBtoA, nil
	case "both":
		return DirectionBoth, nil
	default:
		return "", fmt.Errorf("invalid direction %q: must be one of %v", s, ValidDirections)
	}
}

// Source returns the driving system of a single-pass direction.
func (d Direction) Source() System {
	if d == DirectionBtoA {
		return SystemB
	}
	return SystemA
}

// Target returns the non-driving system of a single-pass direction.
func (d Direction) Target() System {
	return d.Source().Other()
}

// Passes expands a direction into the ordered single-pass directions
// it consists of.
func (d Direction) Passes() []Direction {
	if d == DirectionBoth {
		return []Direction{DirectionAtoB, DirectionBtoA}
	}
	return []Direction{d}
}

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	for _, v := range ValidDirections {
		if d == v {
			return true
		}
	}
	return false
}
