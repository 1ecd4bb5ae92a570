package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Chen-m-y/doresearch-sync/pkg/pagination"
)

// FetcherConfig holds caching-fetcher configuration.
type FetcherConfig struct {
	// Collection names the server collection this fetcher serves.
	Collection string

	// TTL is how long cached pages stay fresh.
	TTL time.Duration
}

// CachingFetcher decorates a pagination.FetchFunc with cache-aside reads.
// Cache failures degrade to live fetches; the cache is an optimization, not
// a dependency.
type CachingFetcher struct {
	next    pagination.FetchFunc
	manager *Manager
	config  FetcherConfig
	logger  zerolog.Logger
}

// NewCachingFetcher wraps the given fetch capability.
func NewCachingFetcher(next pagination.FetchFunc, manager *Manager, cfg FetcherConfig) *CachingFetcher {
	if next == nil {
		panic("fetch func cannot be nil")
	}
	if manager == nil {
		panic("cache manager cannot be nil")
	}
	if cfg.Collection == "" {
		panic("collection name cannot be empty")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}

	return &CachingFetcher{
		next:    next,
		manager: manager,
		config:  cfg,
		logger:  log.With().Str("component", "cache").Str("collection", cfg.Collection).Logger(),
	}
}

// Fetch is the pagination.FetchFunc to hand to a controller.
func (f *CachingFetcher) Fetch(ctx context.Context, params pagination.Params) ([]byte, error) {
	key := PageKey{
		Collection: f.config.Collection,
		Filters:    params.Filters,
		Page:       params.Page,
		PerPage:    params.PerPage,
	}

	entry, err := f.manager.Get(ctx, key)
	if err == nil {
		f.logger.Debug().Str("key", key.String()).Msg("Page cache hit")
		return entry.Payload, nil
	}
	if err != ErrCacheMiss {
		f.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error, fetching live")
	}

	payload, err := f.next(ctx, params)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := f.manager.Set(ctx, key, &Entry{
		Payload:   payload,
		FetchedAt: now,
		Expires:   now.Add(f.config.TTL),
	}); err != nil {
		f.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache page")
	}

	return payload, nil
}

// Invalidate drops every cached page of this fetcher's collection. Wire it
// to invalidation-bus events so committed mutations evict stale pages.
func (f *CachingFetcher) Invalidate(ctx context.Context) {
	if err := f.manager.InvalidateCollection(ctx, f.config.Collection); err != nil {
		f.logger.Warn().Err(err).Msg("Collection invalidation failed")
	}
}
