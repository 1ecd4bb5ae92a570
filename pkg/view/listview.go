// Package view composes the sync core's pieces into one mounted list view:
// a pagination controller, an invalidation-bus subscription and the
// reconciliation policy that decides, per change event, between patching a
// row in place, fading it out and refreshing, or ignoring it.
package view

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Chen-m-y/doresearch-sync/pkg/bus"
	"github.com/Chen-m-y/doresearch-sync/pkg/mutation"
	"github.com/Chen-m-y/doresearch-sync/pkg/pagination"
)

// DefaultTransitionWindow is how long a row that stopped matching the view
// filter stays marked for its removal transition before the view refreshes.
const DefaultTransitionWindow = 300 * time.Millisecond

// FilterFunc decides whether an entity belongs in this view. A nil filter
// matches everything.
type FilterFunc func(pagination.Entity) bool

// Config holds list-view configuration.
type Config struct {
	// Name identifies the view in logs, e.g. "inbox-unread".
	Name string

	// Filter is the view's active filter, evaluated against patched
	// entities during reconciliation.
	Filter FilterFunc

	// TransitionWindow is the removal-transition duration. Zero means
	// DefaultTransitionWindow.
	TransitionWindow time.Duration

	// OnMetaChanged runs whenever an event flags aggregate counts as
	// changed, so summary statistics can refresh. Optional.
	OnMetaChanged func()
}

// ListView is one mounted paginated view. Mount subscribes it to the bus
// and registers it with the mutation coordinator; Unmount reverses both.
type ListView struct {
	ctrl   *pagination.Controller
	filter FilterFunc
	window time.Duration
	onMeta func()
	logger zerolog.Logger

	mu       sync.Mutex
	removing map[string]*time.Timer
	mounted  bool

	unsubscribe func()
	unregister  func()
}

// Mount wires a view into the session: bus subscription plus coordinator
// registration. Callers must Unmount when the view goes away.
func Mount(ctrl *pagination.Controller, b *bus.Bus, coord *mutation.Coordinator, cfg Config) (*ListView, error) {
	if ctrl == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if b == nil {
		return nil, fmt.Errorf("bus is required")
	}
	if cfg.TransitionWindow <= 0 {
		cfg.TransitionWindow = DefaultTransitionWindow
	}

	v := &ListView{
		ctrl:     ctrl,
		filter:   cfg.Filter,
		window:   cfg.TransitionWindow,
		onMeta:   cfg.OnMetaChanged,
		removing: make(map[string]*time.Timer),
		mounted:  true,
		logger:   log.With().Str("component", "view").Str("view", cfg.Name).Logger(),
	}

	unsubscribe, err := b.Subscribe(v.onChange)
	if err != nil {
		return nil, fmt.Errorf("subscribe view: %w", err)
	}
	v.unsubscribe = unsubscribe

	if coord != nil {
		v.unregister = coord.RegisterStore(v)
	}

	return v, nil
}

// Unmount removes the view from the bus and the coordinator and cancels any
// pending removal transitions. Idempotent.
func (v *ListView) Unmount() {
	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return
	}
	v.mounted = false
	for id, timer := range v.removing {
		timer.Stop()
		delete(v.removing, id)
	}
	v.mu.Unlock()

	v.unsubscribe()
	if v.unregister != nil {
		v.unregister()
	}
}

// Controller exposes the view's pagination controller.
func (v *ListView) Controller() *pagination.Controller {
	return v.ctrl
}

// Removing reports whether the entity is in its removal transition; the UI
// layer renders such rows in their fading state.
func (v *ListView) Removing(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.removing[id]
	return ok
}

// ApplyPatch implements mutation.EntityStore by delegating to the
// controller.
func (v *ListView) ApplyPatch(id string, patch pagination.Patch) (pagination.Patch, bool) {
	return v.ctrl.ApplyPatch(id, patch)
}

// RevertPatch implements mutation.EntityStore.
func (v *ListView) RevertPatch(id string, prev pagination.Patch) {
	v.ctrl.RevertPatch(id, prev)
}

// onChange is the reconciliation policy. Entities not on the current page
// are ignored; entities that still match the filter after the patch are
// updated in place; entities that stopped matching get a removal transition
// followed by a refresh.
func (v *ListView) onChange(event bus.ChangeEvent) {
	if event.MetaChanged && v.onMeta != nil {
		v.onMeta()
	}

	if !v.ctrl.Has(event.EntityID) {
		return
	}

	// Idempotent when this view already received the optimistic apply as a
	// registered store.
	v.ctrl.ApplyPatch(event.EntityID, pagination.Patch(event.Next))

	entity, ok := v.ctrl.Get(event.EntityID)
	if !ok {
		return
	}
	if v.filter == nil || v.filter(entity) {
		v.logger.Debug().Str("entity_id", event.EntityID).Msg("Patched row in place")
		return
	}

	v.scheduleRemoval(event.EntityID)
}

// scheduleRemoval marks the entity for its fade-out and refreshes the view
// once the transition window elapses. A second event for an entity already
// fading does not restart the window.
func (v *ListView) scheduleRemoval(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.mounted {
		return
	}
	if _, already := v.removing[id]; already {
		return
	}

	v.logger.Debug().Str("entity_id", id).Msg("Row no longer matches filter, fading out")
	v.removing[id] = time.AfterFunc(v.window, func() {
		v.mu.Lock()
		delete(v.removing, id)
		mounted := v.mounted
		v.mu.Unlock()

		if mounted {
			v.ctrl.Refresh(context.Background())
		}
	})
}
