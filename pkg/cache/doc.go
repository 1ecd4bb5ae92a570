// Package cache provides Redis-backed caching of normalized page payloads.
//
// The cache sits inside the injected fetch capability, not inside the
// pagination controller: CachingFetcher decorates a pagination.FetchFunc so
// repeat visits to a page are served locally, while the controller keeps
// seeing a plain fetch function. Entity mutations invalidate the affected
// collection's pages so the next refresh goes to the server.
//
// Basic usage:
//
//	manager := cache.NewManager(redisClient)
//	fetch := cache.NewCachingFetcher(rawFetch, manager, cache.FetcherConfig{
//		Collection: "papers",
//		TTL:        time.Minute,
//	}).Fetch
//	ctrl := pagination.NewController(fetch, pagination.DefaultConfig())
//
// Keys are deterministic per (collection, filters, page, per_page), so any
// client instance sharing the Redis sees the same entries.
package cache
