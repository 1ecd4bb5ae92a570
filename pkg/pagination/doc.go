// Package pagination implements the per-view pagination controller for the
// MyDoresearch sync core.
//
// A Controller wraps a single injected FetchFunc and owns the page state for
// one view of a server collection. Every call to Fetch issues a new request
// token; when a response resolves, it may only commit if its token is still
// the newest one issued. A slow page-2 response can therefore never
// overwrite a faster page-3 response that was requested later
// (last-issued-wins).
//
// The server speaks three historical payload shapes:
//
//	{"items": [...], "pagination": {...}}   current
//	[...]                                    bare array (unpaginated endpoints)
//	{"data": {"items": [...], "total": N}}   legacy wrapper
//
// Normalize converts all three into one canonical page so the rest of the
// core never branches on shape. Missing pagination fields (total_pages,
// has_prev, has_next) are synthesized.
//
// Example usage:
//
//	ctrl := pagination.NewController(fetchPapers, pagination.Config{PerPage: 20})
//	ctrl.Fetch(ctx, 1)
//	state := ctrl.State()
//
// BatchFetcher reuses the same FetchFunc and normalizer to prefetch every
// page of a collection in parallel (offline reading, export).
package pagination
