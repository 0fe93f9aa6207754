package testutil

import (
	"fmt"
	"sync"
)

// SequentialRunIDs generates "<prefix>-0001", "<prefix>-0002", ... run ids.
//
// Unlike reconcile.FixedGenerator it never runs out, which suits tests that
// sync in loops.
//
// Thread-safety: SequentialRunIDs is safe for concurrent use.
type SequentialRunIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialRunIDs creates a generator. An empty prefix means "run".
func NewSequentialRunIDs(prefix string) *SequentialRunIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &SequentialRunIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
