// Package bus implements the cross-view invalidation bus.
//
// Views mounted independently must discover each other's entity changes
// without holding direct references. The bus is an explicitly constructed,
// dependency-injected singleton: one per session, created at app start,
// closed at teardown. Subscribers are invoked synchronously in registration
// order; delivery of an event completes before Publish returns, so a
// subscriber never observes its own mutation's event out of order.
package bus

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for bus operations.
var (
	busEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_bus_events_total",
		Help: "Total change events published",
	})

	busDeliveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_bus_deliveries_total",
		Help: "Total subscriber callback invocations",
	})

	busSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sync_bus_subscribers",
		Help: "Currently registered subscribers",
	})
)

// ErrBusClosed is returned when Subscribe is called on a closed bus.
var ErrBusClosed = errors.New("bus is closed")

// ChangeEvent describes one committed entity mutation. Previous and Next are
// partial field overlays, never full entities; consumers apply Next on top
// of their local copy. MetaChanged signals that aggregate counts (unread
// totals and the like) were affected and summary views should refresh.
type ChangeEvent struct {
	EntityID    string
	Previous    map[string]any
	Next        map[string]any
	MetaChanged bool
}

// HandlerFunc receives published change events.
type HandlerFunc func(ChangeEvent)

// subscription pairs a registration id with its callback.
type subscription struct {
	id      uint64
	handler HandlerFunc
}

// Bus is the session-wide invalidation pub/sub registry.
type Bus struct {
	mu     sync.Mutex
	subs   []subscription
	nextID uint64
	closed bool
	logger zerolog.Logger
}

// New creates an open bus.
func New() *Bus {
	return &Bus{
		logger: log.With().Str("component", "bus").Logger(),
	}
}

// Subscribe registers a handler and returns its unsubscribe function. The
// unsubscribe function is idempotent and safe to call from inside a handler.
// Lifecycle discipline: subscribe on view mount, unsubscribe on unmount.
func (b *Bus) Subscribe(handler HandlerFunc) (func(), error) {
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, handler: handler})
	busSubscribers.Set(float64(len(b.subs)))

	return func() { b.unsubscribe(id) }, nil
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	busSubscribers.Set(float64(len(b.subs)))
}

// Publish delivers the event to every subscriber registered at call time,
// in registration order, before returning. A subscriber that unsubscribes
// during the iteration (itself or a later one) is skipped once removed: the
// registry is re-checked per delivery, not just snapshotted.
func (b *Bus) Publish(event ChangeEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Warn().Str("entity_id", event.EntityID).Msg("Publish on closed bus dropped")
		return
	}
	snapshot := make([]subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	busEventsTotal.Inc()
	b.logger.Debug().
		Str("entity_id", event.EntityID).
		Bool("meta_changed", event.MetaChanged).
		Int("subscribers", len(snapshot)).
		Msg("Publishing change event")

	for _, sub := range snapshot {
		if !b.alive(sub.id) {
			continue
		}
		busDeliveriesTotal.Inc()
		sub.handler(event)
	}
}

// alive reports whether the subscription is still registered.
func (b *Bus) alive(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.id == id {
			return true
		}
	}
	return false
}

// Len returns the number of registered subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close tears the bus down. Subsequent Subscribe calls fail with
// ErrBusClosed and subsequent Publish calls are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = nil
	busSubscribers.Set(0)
}
