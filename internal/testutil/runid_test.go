package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialRunIDs_Counts(t *testing.T) {
	gen := NewSequentialRunIDs("")

	assert.Equal(t, "run-1", gen.Generate())
	assert.Equal(t, "run-2", gen.Generate())
	assert.Equal(t, "run-3", gen.Generate())
}

func TestSequentialRunIDs_CustomPrefix(t *testing.T) {
	gen := NewSequentialRunIDs("dry")
	assert.Equal(t, "dry-1", gen.Generate())
}

func TestSequentialRunIDs_ThreadSafe(t *testing.T) {
	gen := NewSequentialRunIDs("run")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := gen.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 1000, "every generated ID must be unique")
}
