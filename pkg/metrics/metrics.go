// Package metrics provides the centralized Prometheus registry for the sync
// core. All metrics are defined in their respective packages (pagination,
// bus, mutation, poller, cache) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the sync core.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Pagination Metrics (pkg/pagination):
//   - sync_page_fetches_total{outcome} (Counter): Page fetches by outcome
//     (committed, stale_discarded, error, rejected)
//
// Bus Metrics (pkg/bus):
//   - sync_bus_events_total (Counter): Change events published
//   - sync_bus_deliveries_total (Counter): Subscriber callback invocations
//   - sync_bus_subscribers (Gauge): Currently registered subscribers
//
// Mutation Metrics (pkg/mutation):
//   - sync_mutations_total{outcome} (Counter): Mutations by outcome
//     (committed, rolled_back)
//   - sync_derived_mutations_total{outcome} (Counter): Derived mutations by
//     outcome (executed, suppressed, cancelled)
//
// Poller Metrics (pkg/poller):
//   - sync_poll_ticks_total{outcome} (Counter): Poll ticks by outcome
//     (active, drained, error)
//   - sync_poll_active_jobs (Gauge): Active jobs observed by the last tick
//
// Cache Metrics (pkg/cache):
//   - sync_cache_hits_total (Counter): Page cache hits
//   - sync_cache_misses_total (Counter): Page cache misses
//   - sync_cache_invalidations_total (Counter): Collection invalidations
//   - sync_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(sync_cache_hits_total[5m])) /
//   (sum(rate(sync_cache_hits_total[5m])) + sum(rate(sync_cache_misses_total[5m])))
//
//   # Stale Response Rate
//   rate(sync_page_fetches_total{outcome="stale_discarded"}[5m]) /
//   rate(sync_page_fetches_total[5m])
//
//   # Mutation Rollback Rate
//   rate(sync_mutations_total{outcome="rolled_back"}[5m])
//
//   # Poll Efficiency (ticks that still had work)
//   rate(sync_poll_ticks_total{outcome="active"}[5m]) /
//   rate(sync_poll_ticks_total[5m])
