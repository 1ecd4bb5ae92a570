package mutation

import (
	"sync"
	"time"
)

// DefaultGuardTTL is how long a manual mutation shields its entity from
// derived mutations.
const DefaultGuardTTL = 5 * time.Second

// OverrideGuard is the manual-override set: entity ids recently mutated by
// the user. While an id is held, derived (automation-synthesized) mutations
// targeting it are skipped, so a hand-toggled status is never silently
// overwritten by navigation side effects.
//
// Entries expire by TTL and are swept on every access; there is no per-entry
// timer, so rapid toggling cannot accumulate scheduled work.
type OverrideGuard struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

// NewOverrideGuard creates a guard with the given TTL. A non-positive TTL
// falls back to DefaultGuardTTL.
func NewOverrideGuard(ttl time.Duration) *OverrideGuard {
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	return &OverrideGuard{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Mark records a manual mutation on the entity. Re-marking extends the
// window.
func (g *OverrideGuard) Mark(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweepLocked()
	g.entries[id] = g.now().Add(g.ttl)
}

// Held reports whether the entity is inside its manual-override window.
func (g *OverrideGuard) Held(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweepLocked()
	_, held := g.entries[id]
	return held
}

// Release proactively removes the entity from the guard before its TTL
// elapses.
func (g *OverrideGuard) Release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, id)
}

// Len returns the number of live entries.
func (g *OverrideGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweepLocked()
	return len(g.entries)
}

func (g *OverrideGuard) sweepLocked() {
	now := g.now()
	for id, expiry := range g.entries {
		if now.After(expiry) {
			delete(g.entries, id)
		}
	}
}
