package testutil

import (
	"fmt"
	"sync"
)

// SequentialRunIDs generates "run-1", "run-2", ... without end.
//
// Unlike engine.FixedGenerator, which panics once its list is used up,
// this generator suits scenarios whose number of runs is not known up
// front. A prefix other than "run" can be set with NewSequentialRunIDs.
//
// Thread-safety: SequentialRunIDs is safe for concurrent use via internal mutex.
type SequentialRunIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialRunIDs creates a generator. If prefix is empty, "run" is used.
func NewSequentialRunIDs(prefix string) *SequentialRunIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &SequentialRunIDs{prefix: prefix}
}

// Generate returns the next run ID.
//
// Implements engine.RunIDGenerator interface.
func (g *SequentialRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
