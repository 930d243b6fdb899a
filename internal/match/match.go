// Package match pairs records across the two trackers by title.
//
// Matching is exact and case-sensitive. Titles are compared in Unicode
// NFC form so that a title typed with combining marks in one system and
// precomposed characters in the other still pairs; no other folding is
// applied.
//
// When several secondary records share a title the first one in the
// secondary snapshot's order wins, and the pair is flagged Ambiguous.
package match

import (
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/casesync/internal/tracker"
)

// Pair is the match outcome for one primary record.
type Pair struct {
	// Primary is the driving record.
	Primary tracker.Record

	// Counterpart is the first secondary record with an equal title,
	// nil when there is none.
	Counterpart *tracker.Record

	// Candidates is the number of secondary records sharing the title.
	Candidates int
}

// Matched reports whether a counterpart was found.
func (p Pair) Matched() bool {
	return p.Counterpart != nil
}

// Ambiguous reports whether more than one secondary record shared the
// title. The first one was chosen.
func (p Pair) Ambiguous() bool {
	return p.Candidates > 1
}

// Key returns the comparison key for a title.
func Key(title string) string {
	return norm.NFC.String(title)
}

// Index is a title lookup over a secondary snapshot.
type Index struct {
	byKey map[string][]int
	recs  []tracker.Record
}

// NewIndex builds a lookup over secondary, preserving snapshot order
// within each title.
func NewIndex(secondary []tracker.Record) *Index {
	idx := &Index{
		byKey: make(map[string][]int, len(secondary)),
		recs:  secondary,
	}
	for i, r := range secondary {
		k := Key(r.Title)
		idx.byKey[k] = append(idx.byKey[k], i)
	}
	return idx
}

// Lookup pairs a single primary record.
func (idx *Index) Lookup(primary tracker.Record) Pair {
	hits := idx.byKey[Key(primary.Title)]
	p := Pair{Primary: primary, Candidates: len(hits)}
	if len(hits) > 0 {
		c := idx.recs[hits[0]]
		p.Counterpart = &c
	}
	return p
}

// Match pairs every primary record against secondary, in primary order.
func Match(primary, secondary []tracker.Record) []Pair {
	idx := NewIndex(secondary)
	pairs := make([]Pair, 0, len(primary))
	for _, r := range primary {
		pairs = append(pairs, idx.Lookup(r))
	}
	return pairs
}

// Unmatched returns the primary records that have no counterpart.
func Unmatched(pairs []Pair) []tracker.Record {
	var out []tracker.Record
	for _, p := range pairs {
		if !p.Matched() {
			out = append(out, p.Primary)
		}
	}
	return out
}
