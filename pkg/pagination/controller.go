package pagination

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for pagination controllers.
var (
	pageFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_page_fetches_total",
		Help: "Total page fetches by outcome (committed, stale_discarded, error, rejected)",
	}, []string{"outcome"})

	pageFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_page_fetch_duration_seconds",
		Help:    "Page fetch duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})
)

// FetchFunc is the injected page-fetch capability. It returns the raw
// response payload in any of the three accepted shapes.
type FetchFunc func(ctx context.Context, params Params) ([]byte, error)

// Params are the request parameters passed to a FetchFunc.
type Params struct {
	Page    int
	PerPage int
	Filters url.Values
}

// PageState is the complete state of one paginated view. It is replaced
// wholesale on every committed fetch; the only in-place mutation path is
// ApplyPatch/RevertPatch.
type PageState struct {
	Items      []Entity
	Page       int
	PerPage    int
	Total      int
	TotalPages int
	HasPrev    bool
	HasNext    bool
	Loading    bool
	Err        string
}

// Config holds controller configuration.
type Config struct {
	// PerPage is the page size requested from the server.
	PerPage int

	// InitialPage is the page the controller starts on.
	InitialPage int

	// Filters are extra query parameters forwarded on every fetch.
	Filters url.Values
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		PerPage:     20,
		InitialPage: 1,
	}
}

// Controller owns the page state for a single view of a server collection.
// It guarantees that at most one response commits per issued generation of
// requests: always the most recently issued one, regardless of resolution
// order.
type Controller struct {
	mu      sync.Mutex
	fetch   FetchFunc
	state   PageState
	token   uint64
	filters url.Values
	logger  zerolog.Logger
}

// NewController creates a controller around the injected fetch capability.
func NewController(fetch FetchFunc, cfg Config) *Controller {
	if fetch == nil {
		panic("fetch func cannot be nil")
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 20
	}
	if cfg.InitialPage < 1 {
		cfg.InitialPage = 1
	}

	return &Controller{
		fetch: fetch,
		state: PageState{
			Page:    cfg.InitialPage,
			PerPage: cfg.PerPage,
		},
		filters: cloneValues(cfg.Filters),
		logger:  log.With().Str("component", "pagination").Logger(),
	}
}

// State returns a snapshot of the current page state. Items carry their own
// field maps so callers cannot mutate controller state through the copy.
func (c *Controller) State() PageState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() PageState {
	out := c.state
	out.Items = make([]Entity, len(c.state.Items))
	for i, e := range c.state.Items {
		out.Items[i] = e.clone()
	}
	return out
}

// Fetch loads the given page. Out-of-range pages are a no-op. The call
// blocks until the fetch resolves; a response superseded by a newer Fetch is
// silently discarded, so concurrent callers can never commit out of order.
func (c *Controller) Fetch(ctx context.Context, page int) {
	c.mu.Lock()
	if page < 1 || (c.state.TotalPages > 0 && page > c.state.TotalPages) {
		c.mu.Unlock()
		pageFetchesTotal.WithLabelValues("rejected").Inc()
		return
	}

	c.token++
	token := c.token
	c.state.Loading = true
	params := Params{
		Page:    page,
		PerPage: c.state.PerPage,
		Filters: cloneValues(c.filters),
	}
	c.mu.Unlock()

	start := time.Now()
	data, err := c.fetch(ctx, params)
	pageFetchDuration.Observe(time.Since(start).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()

	if token != c.token {
		// A newer fetch was issued while this one was in flight. Its
		// effects must never become visible.
		pageFetchesTotal.WithLabelValues("stale_discarded").Inc()
		c.logger.Debug().
			Int("page", page).
			Uint64("token", token).
			Uint64("current", c.token).
			Msg("Discarding stale page response")
		return
	}

	if err != nil {
		c.failLocked(page, err)
		return
	}

	normalized, err := Normalize(data, page, c.state.PerPage)
	if err != nil {
		c.failLocked(page, err)
		return
	}

	c.state = PageState{
		Items:      normalized.Items,
		Page:       normalized.Page,
		PerPage:    normalized.PerPage,
		Total:      normalized.Total,
		TotalPages: normalized.TotalPages,
		HasPrev:    normalized.HasPrev,
		HasNext:    normalized.HasNext,
	}

	pageFetchesTotal.WithLabelValues("committed").Inc()
	c.logger.Debug().
		Int("page", normalized.Page).
		Int("total", normalized.Total).
		Str("shape", normalized.Shape.String()).
		Msg("Committed page")
}

// failLocked converts a fetch failure into local error state: empty items,
// zeroed pagination, error message set.
func (c *Controller) failLocked(page int, err error) {
	pageFetchesTotal.WithLabelValues("error").Inc()
	c.logger.Warn().
		Err(err).
		Int("page", page).
		Msg("Page fetch failed")

	c.state = PageState{
		Items:   []Entity{},
		Page:    page,
		PerPage: c.state.PerPage,
		Err:     err.Error(),
	}
}

// GoToPage fetches an arbitrary page, subject to the boundary checks in
// Fetch.
func (c *Controller) GoToPage(ctx context.Context, page int) {
	c.Fetch(ctx, page)
}

// NextPage advances one page when a next page exists.
func (c *Controller) NextPage(ctx context.Context) {
	c.mu.Lock()
	ok := c.state.HasNext
	page := c.state.Page + 1
	c.mu.Unlock()
	if ok {
		c.Fetch(ctx, page)
	}
}

// PrevPage goes back one page when a previous page exists.
func (c *Controller) PrevPage(ctx context.Context) {
	c.mu.Lock()
	ok := c.state.HasPrev
	page := c.state.Page - 1
	c.mu.Unlock()
	if ok {
		c.Fetch(ctx, page)
	}
}

// FirstPage jumps to page 1.
func (c *Controller) FirstPage(ctx context.Context) {
	c.Fetch(ctx, 1)
}

// LastPage jumps to the last known page.
func (c *Controller) LastPage(ctx context.Context) {
	c.mu.Lock()
	page := c.state.TotalPages
	c.mu.Unlock()
	if page > 0 {
		c.Fetch(ctx, page)
	}
}

// Refresh re-issues the current page. Used after a mutation that cannot be
// patched in place, e.g. an entity that no longer matches the view filter.
func (c *Controller) Refresh(ctx context.Context) {
	c.mu.Lock()
	page := c.state.Page
	c.mu.Unlock()
	c.Fetch(ctx, page)
}

// Reset replaces the filter set and forces a fetch of page 1: page 1 under
// new parameters is not comparable to the old page N.
func (c *Controller) Reset(ctx context.Context, filters url.Values) {
	c.mu.Lock()
	c.filters = cloneValues(filters)
	c.state.TotalPages = 0
	c.mu.Unlock()
	c.Fetch(ctx, 1)
}

// Has reports whether the entity is on the current page.
func (c *Controller) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexLocked(id) >= 0
}

// Get returns a copy of the entity if it is on the current page.
func (c *Controller) Get(id string) (Entity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexLocked(id)
	if idx < 0 {
		return Entity{}, false
	}
	return c.state.Items[idx].clone(), true
}

// ApplyPatch overlays patch onto the entity if it is on the current page.
// It returns the previous values of the patched fields, suitable for
// RevertPatch, and whether the entity was found. This is the optimistic-
// apply path; it is the only in-place mutation of page items.
func (c *Controller) ApplyPatch(id string, patch Patch) (Patch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexLocked(id)
	if idx < 0 {
		return nil, false
	}

	entity := c.state.Items[idx].clone()
	prev := make(Patch, len(patch))
	for k, v := range patch {
		if old, ok := entity.Fields[k]; ok {
			prev[k] = old
		} else {
			prev[k] = absentValue{}
		}
		entity.Fields[k] = v
	}
	c.state.Items[idx] = entity
	return prev, true
}

// RevertPatch restores fields previously captured by ApplyPatch. Fields
// that did not exist before the patch are removed again, so the entity is
// bit-for-bit identical to its pre-patch state.
func (c *Controller) RevertPatch(id string, prev Patch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexLocked(id)
	if idx < 0 {
		return
	}

	entity := c.state.Items[idx].clone()
	for k, v := range prev {
		if _, wasAbsent := v.(absentValue); wasAbsent {
			delete(entity.Fields, k)
			continue
		}
		entity.Fields[k] = v
	}
	c.state.Items[idx] = entity
}

func (c *Controller) indexLocked(id string) int {
	for i, e := range c.state.Items {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return url.Values{}
	}
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
