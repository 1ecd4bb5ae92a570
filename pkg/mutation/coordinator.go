// Package mutation implements optimistic single-entity mutations with
// rollback, and the manual-override guard that keeps user intent from being
// clobbered by derived mutations.
//
// A mutation is applied to every registered view store immediately, then
// committed to the server. On success a change event goes out on the
// invalidation bus; on failure every store is reverted bit-for-bit, a
// compensating event is published, and the failure is surfaced through the
// injected notify capability. There is never a partial-revert state visible
// to subscribers: the rollback event is published only after the commit has
// fully resolved.
package mutation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Chen-m-y/doresearch-sync/pkg/bus"
	"github.com/Chen-m-y/doresearch-sync/pkg/pagination"
)

// Prometheus metrics for mutation operations.
var (
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_mutations_total",
		Help: "Total mutations by outcome (committed, rolled_back)",
	}, []string{"outcome"})

	derivedMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_derived_mutations_total",
		Help: "Total derived mutations by outcome (executed, suppressed, cancelled)",
	}, []string{"outcome"})
)

// DefaultDerivedDelay is how long a derived mutation waits before firing, so
// the newly focused entity renders before the background mutation lands.
const DefaultDerivedDelay = 100 * time.Millisecond

// NotifyFunc is the injected fire-and-forget notification capability.
// Kind is one of "success", "error", "info", "warning".
type NotifyFunc func(message, kind string)

// CommitFunc is the injected server-commit capability for one mutation.
// A non-nil error means the commit failed and the mutation must roll back.
type CommitFunc func(ctx context.Context, entityID string, patch pagination.Patch) error

// EntityStore is a view-owned store the coordinator can patch. A store only
// reacts to entities it currently holds; ApplyPatch returns false otherwise.
// pagination.Controller satisfies this interface.
type EntityStore interface {
	ApplyPatch(id string, patch pagination.Patch) (pagination.Patch, bool)
	RevertPatch(id string, prev pagination.Patch)
}

// Config holds coordinator configuration.
type Config struct {
	// GuardTTL is the manual-override window. Zero means DefaultGuardTTL.
	GuardTTL time.Duration

	// DerivedDelay is the delay before a derived mutation fires. Zero means
	// DefaultDerivedDelay.
	DerivedDelay time.Duration

	// Notify surfaces commit failures to the user. Required.
	Notify NotifyFunc
}

// registeredStore pairs a store with its registration id so unregister can
// remove exactly this registration.
type registeredStore struct {
	id    uint64
	store EntityStore
}

// Coordinator executes optimistic mutations across all registered stores.
type Coordinator struct {
	bus          *bus.Bus
	guard        *OverrideGuard
	notify       NotifyFunc
	derivedDelay time.Duration
	logger       zerolog.Logger

	mu     sync.Mutex
	stores []registeredStore
	nextID uint64
}

// NewCoordinator creates a coordinator publishing on the given bus.
func NewCoordinator(b *bus.Bus, cfg Config) (*Coordinator, error) {
	if b == nil {
		return nil, fmt.Errorf("bus is required")
	}
	if cfg.Notify == nil {
		return nil, fmt.Errorf("notify func is required")
	}
	if cfg.DerivedDelay <= 0 {
		cfg.DerivedDelay = DefaultDerivedDelay
	}

	return &Coordinator{
		bus:          b,
		guard:        NewOverrideGuard(cfg.GuardTTL),
		notify:       cfg.Notify,
		derivedDelay: cfg.DerivedDelay,
		logger:       log.With().Str("component", "mutation").Logger(),
	}, nil
}

// Guard exposes the manual-override guard, e.g. for a view that wants to
// release an entity proactively.
func (c *Coordinator) Guard() *OverrideGuard {
	return c.guard
}

// RegisterStore adds a view store to the optimistic-apply set and returns
// its unregister function. Register on view mount, unregister on unmount.
func (c *Coordinator) RegisterStore(s EntityStore) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.stores = append(c.stores, registeredStore{id: id, store: s})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, rs := range c.stores {
			if rs.id == id {
				c.stores = append(c.stores[:i], c.stores[i+1:]...)
				return
			}
		}
	}
}

// Mutate executes a user-initiated mutation: optimistic apply everywhere,
// guard mark, commit, publish or roll back. The returned error is the commit
// error; the user has already been notified and local state reverted when it
// is non-nil.
func (c *Coordinator) Mutate(ctx context.Context, entityID string, patch pagination.Patch, metaChanged bool, commit CommitFunc) error {
	c.guard.Mark(entityID)
	return c.run(ctx, entityID, patch, metaChanged, commit)
}

// ScheduleDerived schedules an automation-synthesized mutation (e.g. "mark
// the entity being navigated away from as read"). It fires after the
// configured delay; the guard is re-checked at execution time, not at
// scheduling time, so a manual mutation landing in between still wins. The
// returned cancel function stops the mutation if it has not fired yet.
func (c *Coordinator) ScheduleDerived(ctx context.Context, entityID string, patch pagination.Patch, metaChanged bool, commit CommitFunc) func() {
	timer := time.AfterFunc(c.derivedDelay, func() {
		if c.guard.Held(entityID) {
			derivedMutationsTotal.WithLabelValues("suppressed").Inc()
			c.logger.Debug().
				Str("entity_id", entityID).
				Msg("Derived mutation suppressed by manual override")
			return
		}
		derivedMutationsTotal.WithLabelValues("executed").Inc()
		if err := c.run(ctx, entityID, patch, metaChanged, commit); err != nil {
			// run already rolled back and notified.
			c.logger.Warn().
				Err(err).
				Str("entity_id", entityID).
				Msg("Derived mutation commit failed")
		}
	})

	return func() {
		if timer.Stop() {
			derivedMutationsTotal.WithLabelValues("cancelled").Inc()
		}
	}
}

// appliedStore records the pre-patch snapshot one store returned, so each
// store is reverted with exactly what it held before.
type appliedStore struct {
	store EntityStore
	prev  pagination.Patch
}

// run is the shared mutation pipeline for manual and derived mutations.
func (c *Coordinator) run(ctx context.Context, entityID string, patch pagination.Patch, metaChanged bool, commit CommitFunc) error {
	c.mu.Lock()
	stores := make([]registeredStore, len(c.stores))
	copy(stores, c.stores)
	c.mu.Unlock()

	var applied []appliedStore
	for _, rs := range stores {
		if prev, ok := rs.store.ApplyPatch(entityID, patch); ok {
			applied = append(applied, appliedStore{store: rs.store, prev: prev})
		}
	}

	// The event's previous overlay comes from the first store that held the
	// entity; rollback below still uses each store's own snapshot.
	previous := pagination.Patch{}
	if len(applied) > 0 {
		previous = applied[0].prev.Known()
	}

	err := commit(ctx, entityID, patch)
	if err == nil {
		mutationsTotal.WithLabelValues("committed").Inc()
		c.bus.Publish(bus.ChangeEvent{
			EntityID:    entityID,
			Previous:    map[string]any(previous),
			Next:        map[string]any(patch.Clone()),
			MetaChanged: metaChanged,
		})
		return nil
	}

	mutationsTotal.WithLabelValues("rolled_back").Inc()
	c.logger.Warn().
		Err(err).
		Str("entity_id", entityID).
		Msg("Commit failed, rolling back optimistic apply")

	for _, a := range applied {
		a.store.RevertPatch(entityID, a.prev)
	}

	// Compensating event with swapped overlays lets subscribers that already
	// reacted revert too.
	c.bus.Publish(bus.ChangeEvent{
		EntityID:    entityID,
		Previous:    map[string]any(patch.Clone()),
		Next:        map[string]any(previous),
		MetaChanged: metaChanged,
	})

	c.notify(fmt.Sprintf("Failed to save change: %v", err), "error")
	return err
}
