// Package status translates status literals between the two trackers.
//
// A Mapping is built from B→A pairs; the A→B direction is computed as
// the inverse. Both translations are total: a literal that is not in
// the table maps to the target system's configured default. Because the
// forward table must be invertible, translating any mapped value there
// and back returns the original literal.
package status

import (
	"fmt"

	"github.com/roach88/casesync/internal/tracker"
)

// Pair maps one work-tracking status to one support-case status.
type Pair struct {
	B tracker.Status `mapstructure:"b" yaml:"b" json:"b"`
	A tracker.Status `mapstructure:"a" yaml:"a" json:"a"`
}

// Options configures the fallbacks and closed literals of a Mapping.
type Options struct {
	DefaultA tracker.Status // fallback when translating into A
	DefaultB tracker.Status // fallback when translating into B
	ClosedA  tracker.Status // A's closed-state literal
	ClosedB  tracker.Status // B's closed-state literal
}

// DefaultPairs is the table used when configuration supplies none.
var DefaultPairs = []Pair{
	{B: "New", A: "Open"},
	{B: "Active", A: "In Progress"},
	{B: "Resolved", A: "Resolved"},
	{B: "Closed", A: "Closed"},
}

// DefaultOptions returns the observed defaults: unmapped statuses become
// "Open" / "New", and both systems close with "Closed".
func DefaultOptions() Options {
	return Options{
		DefaultA: "Open",
		DefaultB: "New",
		ClosedA:  "Closed",
		ClosedB:  "Closed",
	}
}

// Mapping is an immutable bidirectional status table.
type Mapping struct {
	pairs []Pair
	toA   map[tracker.Status]tracker.Status
	toB   map[tracker.Status]tracker.Status
	opts  Options
}

// New builds a Mapping. It fails when the table is not invertible, when
// a literal is empty, or when the closed literals do not translate into
// each other (closing would otherwise never converge).
func New(pairs []Pair, opts Options) (*Mapping, error) {
	if opts.DefaultA == "" || opts.DefaultB == "" {
		return nil, fmt.Errorf("status mapping: default statuses must be set")
	}
	if opts.ClosedA == "" || opts.ClosedB == "" {
		return nil, fmt.Errorf("status mapping: closed statuses must be set")
	}

	m := &Mapping{
		pairs: make([]Pair, 0, len(pairs)),
		toA:   make(map[tracker.Status]tracker.Status, len(pairs)),
		toB:   make(map[tracker.Status]tracker.Status, len(pairs)),
		opts:  opts,
	}

	for i, p := range pairs {
		if p.A == "" || p.B == "" {
			return nil, fmt.Errorf("status mapping: pair %d: both statuses are required", i)
		}
		if prev, dup := m.toA[p.B]; dup {
			return nil, fmt.Errorf("status mapping: %q is mapped twice (to %q and %q)", p.B, prev, p.A)
		}
		if prev, dup := m.toB[p.A]; dup {
			return nil, fmt.Errorf("status mapping: not invertible: %q and %q both map to %q", prev, p.B, p.A)
		}
		m.toA[p.B] = p.A
		m.toB[p.A] = p.B
		m.pairs = append(m.pairs, p)
	}

	if got := m.ToB(opts.ClosedA); got != opts.ClosedB {
		return nil, fmt.Errorf("status mapping: closed status %q of A translates to %q, want %q", opts.ClosedA, got, opts.ClosedB)
	}
	if got := m.ToA(opts.ClosedB); got != opts.ClosedA {
		return nil, fmt.Errorf("status mapping: closed status %q of B translates to %q, want %q", opts.ClosedB, got, opts.ClosedA)
	}

	return m, nil
}

// Default returns the mapping built from DefaultPairs and DefaultOptions.
func Default() *Mapping {
	m, err := New(DefaultPairs, DefaultOptions())
	if err != nil {
		panic(err)
	}
	return m
}

// ToA translates a B status into A's vocabulary.
func (m *Mapping) ToA(s tracker.Status) tracker.Status {
	if v, ok := m.toA[s]; ok {
		return v
	}
	return m.opts.DefaultA
}

// ToB translates an A status into B's vocabulary.
func (m *Mapping) ToB(s tracker.Status) tracker.Status {
	if v, ok := m.toB[s]; ok {
		return v
	}
	return m.opts.DefaultB
}

// Translate converts a status owned by from into the other system's
// vocabulary.
func (m *Mapping) Translate(from tracker.System, s tracker.Status) tracker.Status {
	if from == tracker.SystemA {
		return m.ToB(s)
	}
	return m.ToA(s)
}

// Closed returns the closed-state literal of sys.
func (m *Mapping) Closed(sys tracker.System) tracker.Status {
	if sys == tracker.SystemA {
		return m.opts.ClosedA
	}
	return m.opts.ClosedB
}

// IsClosed reports whether s is sys's closed literal.
func (m *Mapping) IsClosed(sys tracker.System, s tracker.Status) bool {
	return s == m.Closed(sys)
}

// Default returns the fallback status of sys.
func (m *Mapping) Default(sys tracker.System) tracker.Status {
	if sys == tracker.SystemA {
		return m.opts.DefaultA
	}
	return m.opts.DefaultB
}

// Pairs returns the table in declaration order.
func (m *Mapping) Pairs() []Pair {
	out := make([]Pair, len(m.pairs))
	copy(out, m.pairs)
	return out
}

// RoundTripViolations returns every B key whose round trip through A
// does not return the key. New rejects tables that could produce one,
// so a non-empty result means the table was altered after construction.
func (m *Mapping) RoundTripViolations() []tracker.Status {
	var bad []tracker.Status
	for _, p := range m.pairs {
		if m.ToB(m.ToA(p.B)) != p.B {
			bad = append(bad, p.B)
		}
	}
	return bad
}
