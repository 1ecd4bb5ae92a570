package pagination

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// BatchConfig holds batch fetcher configuration.
type BatchConfig struct {
	// MaxConcurrency is the maximum number of parallel page requests.
	MaxConcurrency int

	// Timeout per page fetch.
	Timeout time.Duration

	// PerPage is the page size requested from the server.
	PerPage int
}

// DefaultBatchConfig returns safe defaults for batch prefetching.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
		PerPage:        50,
	}
}

// ProgressFunc reports prefetch progress. Called repeatedly as pages land:
// (50, 500), (100, 500), ...
type ProgressFunc func(loaded, total int)

// BatchFetcher prefetches every page of a collection in parallel using a
// worker pool. It shares the FetchFunc and normalizer with Controller, so it
// accepts the same three payload shapes.
type BatchFetcher struct {
	fetch  FetchFunc
	config BatchConfig
}

// NewBatchFetcher creates a batch fetcher around the injected fetch
// capability.
func NewBatchFetcher(fetch FetchFunc, config BatchConfig) *BatchFetcher {
	if fetch == nil {
		panic("fetch func cannot be nil")
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.PerPage <= 0 {
		config.PerPage = 50
	}

	return &BatchFetcher{
		fetch:  fetch,
		config: config,
	}
}

// pageLoad is one fetched and normalized page.
type pageLoad struct {
	page  int
	items []Entity
	err   error
}

// FetchAll fetches the entire collection and returns its entities in page
// order. Individual page failures abort the prefetch; partial collections
// are not useful for offline reading.
func (bf *BatchFetcher) FetchAll(ctx context.Context, filters url.Values, progress ProgressFunc) ([]Entity, error) {
	start := time.Now()

	first, err := bf.fetchPage(ctx, 1, filters)
	if err != nil {
		return nil, fmt.Errorf("fetch first page: %w", err)
	}

	log.Info().
		Int("total_pages", first.TotalPages).
		Int("total", first.Total).
		Msg("Starting collection prefetch")

	if progress != nil {
		progress(len(first.Items), first.Total)
	}

	if first.TotalPages <= 1 {
		return first.Items, nil
	}

	pageQueue := make(chan int, first.TotalPages)
	loads := make(chan pageLoad, first.TotalPages)

	go func() {
		for page := 2; page <= first.TotalPages; page++ {
			pageQueue <- page
		}
		close(pageQueue)
	}()

	var wg sync.WaitGroup
	for i := 0; i < bf.config.MaxConcurrency; i++ {
		wg.Add(1)
		go bf.worker(ctx, filters, pageQueue, loads, &wg)
	}

	go func() {
		wg.Wait()
		close(loads)
	}()

	byPage := map[int][]Entity{1: first.Items}
	loaded := len(first.Items)
	var firstErr error
	for load := range loads {
		if load.err != nil {
			if firstErr == nil {
				firstErr = load.err
			}
			continue
		}
		byPage[load.page] = load.items
		loaded += len(load.items)
		if progress != nil {
			progress(loaded, first.Total)
		}
	}

	if firstErr != nil {
		return nil, fmt.Errorf("prefetch (loaded %d/%d): %w", loaded, first.Total, firstErr)
	}

	pages := make([]int, 0, len(byPage))
	for page := range byPage {
		pages = append(pages, page)
	}
	sort.Ints(pages)

	all := make([]Entity, 0, loaded)
	for _, page := range pages {
		all = append(all, byPage[page]...)
	}

	log.Info().
		Int("pages", len(pages)).
		Int("entities", len(all)).
		Dur("duration", time.Since(start)).
		Msg("Prefetch complete")

	return all, nil
}

// worker drains the page queue until it is empty or the context is done.
func (bf *BatchFetcher) worker(ctx context.Context, filters url.Values, pageQueue <-chan int, loads chan<- pageLoad, wg *sync.WaitGroup) {
	defer wg.Done()

	for page := range pageQueue {
		select {
		case <-ctx.Done():
			loads <- pageLoad{page: page, err: ctx.Err()}
			return
		default:
		}

		pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		normalized, err := bf.fetchPage(pageCtx, page, filters)
		cancel()

		if err != nil {
			log.Warn().Err(err).Int("page", page).Msg("Prefetch page failed")
			loads <- pageLoad{page: page, err: err}
			return
		}

		loads <- pageLoad{page: page, items: normalized.Items}
	}
}

// fetchPage fetches and normalizes a single page.
func (bf *BatchFetcher) fetchPage(ctx context.Context, page int, filters url.Values) (Normalized, error) {
	data, err := bf.fetch(ctx, Params{
		Page:    page,
		PerPage: bf.config.PerPage,
		Filters: filters,
	})
	if err != nil {
		return Normalized{}, err
	}
	return Normalize(data, page, bf.config.PerPage)
}
