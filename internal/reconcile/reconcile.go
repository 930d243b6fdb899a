// Package reconcile decides what mutation one driving record requires.
//
// The policy closes the loop in one direction only: a counterpart is
// updated when the driving record is closed and the counterpart is not.
// A driving record that is open never reopens a closed counterpart, and
// other status differences are left alone. An unmatched driving record
// is mirrored into the other system with its translated status.
package reconcile

import (
	"fmt"

	"github.com/roach88/casesync/internal/match"
	"github.com/roach88/casesync/internal/status"
	"github.com/roach88/casesync/internal/tracker"
)

// Kind is the decision category.
type Kind int

const (
	NoOp Kind = iota
	CreateInOther
	UpdateOther
)

// String returns the decision name used in logs and results.
func (k Kind) String() string {
	switch k {
	case NoOp:
		return "noop"
	case CreateInOther:
		return "create"
	case UpdateOther:
		return "update"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Decision is the reconciler's verdict for one driving record.
type Decision struct {
	Kind Kind

	// Target is the system the mutation is sent to.
	Target tracker.System

	// Status is the status to create with or update to, already in the
	// target system's vocabulary. Empty for NoOp.
	Status tracker.Status

	// Reason explains a NoOp.
	Reason string
}

// NoOp reasons.
const (
	ReasonOutOfScope    = "record is not owned by the driving system"
	ReasonNotClosed     = "driving record is not closed"
	ReasonAlreadyClosed = "counterpart is already closed"
)

// Reconciler applies the policy using a status mapping.
type Reconciler struct {
	mapping *status.Mapping
}

// New creates a Reconciler.
func New(mapping *status.Mapping) *Reconciler {
	return &Reconciler{mapping: mapping}
}

// Decide returns the decision for driving given its counterpart (nil
// when unmatched). dir must be a single-pass direction.
func (r *Reconciler) Decide(driving tracker.Record, counterpart *tracker.Record, dir tracker.Direction) (Decision, error) {
	if dir != tracker.DirectionAtoB && dir != tracker.DirectionBtoA {
		return Decision{}, fmt.Errorf("reconcile: direction %q is not a single pass", dir)
	}

	source, target := dir.Source(), dir.Target()
	if driving.System != source {
		return Decision{Kind: NoOp, Target: target, Reason: ReasonOutOfScope}, nil
	}

	translated := r.mapping.Translate(source, driving.Status)

	if counterpart == nil {
		return Decision{Kind: CreateInOther, Target: target, Status: translated}, nil
	}

	if !r.mapping.IsClosed(source, driving.Status) {
		return Decision{Kind: NoOp, Target: target, Reason: ReasonNotClosed}, nil
	}
	if r.mapping.IsClosed(target, counterpart.Status) {
		return Decision{Kind: NoOp, Target: target, Reason: ReasonAlreadyClosed}, nil
	}

	return Decision{Kind: UpdateOther, Target: target, Status: translated}, nil
}

// DecidePair is Decide over a match.Pair.
func (r *Reconciler) DecidePair(p match.Pair, dir tracker.Direction) (Decision, error) {
	return r.Decide(p.Primary, p.Counterpart, dir)
}
