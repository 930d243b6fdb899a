package engine

// State is the lifecycle position of the current or last run.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateReconciling State = "reconciling"
	StateApplying    State = "applying"
	StateComplete    State = "complete"
	StateFailed      State = "failed"
)

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}
