package region

import (
	"fmt"
	"sync"
)

// Guard owns the live region set. Scans read under a shared lease while
// ReplaceMain and AddExtra are exclusive, so a reselect waits for in-flight scans.
type Guard struct {
	mu  sync.RWMutex
	set Set
}

func NewGuard(set Set) *Guard {
	return &Guard{set: set}
}

// Acquire takes a shared lease and returns the set as it is while the lease is held.
// The returned release func must be called exactly once.
func (g *Guard) Acquire() (Set, func()) {
	g.mu.RLock()
	snapshot := Set{regions: g.set.Regions()}
	var once sync.Once
	return snapshot, func() { once.Do(g.mu.RUnlock) }
}

// Snapshot returns a copy of the current set.
func (g *Guard) Snapshot() Set {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Set{regions: g.set.Regions()}
}

func (g *Guard) ReplaceMain(r Region) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.set.ReplaceMain(r)
}

// AddExtra appends r, reporting false for an exact duplicate, and returns the
// resulting set size. Extras need a main region to anchor them.
func (g *Guard) AddExtra(r Region) (added bool, count int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.set.Len() == 0 {
		return false, 0, fmt.Errorf("select a main region first: %w", ErrNotFound)
	}
	added = g.set.Append(r)
	return added, g.set.Len(), nil
}

// Reset replaces the whole set.
func (g *Guard) Reset(set Set) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.set = Set{regions: set.Regions()}
}
