package mutation

import (
	"testing"
	"time"
)

func TestOverrideGuard_HoldAndExpire(t *testing.T) {
	now := time.Now()
	g := NewOverrideGuard(5 * time.Second)
	g.now = func() time.Time { return now }

	g.Mark("7")
	if !g.Held("7") {
		t.Fatal("entity not held immediately after Mark")
	}
	if g.Held("8") {
		t.Error("unmarked entity reported as held")
	}

	now = now.Add(4 * time.Second)
	if !g.Held("7") {
		t.Error("entity expired before TTL")
	}

	now = now.Add(2 * time.Second)
	if g.Held("7") {
		t.Error("entity still held after TTL")
	}
}

func TestOverrideGuard_RemarkExtendsWindow(t *testing.T) {
	now := time.Now()
	g := NewOverrideGuard(5 * time.Second)
	g.now = func() time.Time { return now }

	g.Mark("7")
	now = now.Add(4 * time.Second)
	g.Mark("7")
	now = now.Add(4 * time.Second)

	if !g.Held("7") {
		t.Error("re-mark did not extend the window")
	}
}

func TestOverrideGuard_Release(t *testing.T) {
	g := NewOverrideGuard(5 * time.Second)
	g.Mark("7")
	g.Release("7")
	if g.Held("7") {
		t.Error("entity held after Release")
	}
}

func TestOverrideGuard_SweepOnAccess(t *testing.T) {
	now := time.Now()
	g := NewOverrideGuard(5 * time.Second)
	g.now = func() time.Time { return now }

	// Rapid toggling across many entities must not accumulate entries past
	// their TTL.
	for i := 0; i < 100; i++ {
		g.Mark("paper-" + string(rune('a'+i%26)))
	}
	now = now.Add(6 * time.Second)
	g.Mark("fresh")

	if got := g.Len(); got != 1 {
		t.Errorf("Len = %d after expiry sweep, want 1", got)
	}
}

func TestOverrideGuard_DefaultTTL(t *testing.T) {
	g := NewOverrideGuard(0)
	if g.ttl != DefaultGuardTTL {
		t.Errorf("ttl = %v, want %v", g.ttl, DefaultGuardTTL)
	}
}
