package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Chen-m-y/doresearch-sync/pkg/pagination"
)

// countingFetch fakes the live fetch capability and counts calls.
func countingFetch(calls *int, payload []byte, err error) pagination.FetchFunc {
	return func(ctx context.Context, params pagination.Params) ([]byte, error) {
		*calls++
		return payload, err
	}
}

func TestCachingFetcher_MissFetchesAndCaches(t *testing.T) {
	m := NewManager(setupTestRedis(t))
	calls := 0
	f := NewCachingFetcher(countingFetch(&calls, []byte(`{"items": []}`), nil), m, FetcherConfig{
		Collection: "papers",
		TTL:        time.Minute,
	})
	ctx := context.Background()
	params := pagination.Params{Page: 1, PerPage: 20}

	payload, err := f.Fetch(ctx, params)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(payload) != `{"items": []}` {
		t.Errorf("payload = %s", payload)
	}
	if calls != 1 {
		t.Errorf("live fetch calls = %d, want 1", calls)
	}

	// Second fetch of the same page is served from cache.
	if _, err := f.Fetch(ctx, params); err != nil {
		t.Fatalf("second Fetch failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("live fetch calls after cached fetch = %d, want 1", calls)
	}
}

func TestCachingFetcher_DistinctPagesFetchSeparately(t *testing.T) {
	m := NewManager(setupTestRedis(t))
	calls := 0
	f := NewCachingFetcher(countingFetch(&calls, []byte(`[]`), nil), m, FetcherConfig{
		Collection: "papers",
		TTL:        time.Minute,
	})
	ctx := context.Background()

	if _, err := f.Fetch(ctx, pagination.Params{Page: 1, PerPage: 20}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Fetch(ctx, pagination.Params{Page: 2, PerPage: 20}); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("live fetch calls = %d, want 2", calls)
	}
}

func TestCachingFetcher_LiveErrorNotCached(t *testing.T) {
	m := NewManager(setupTestRedis(t))
	calls := 0
	wantErr := errors.New("upstream down")
	f := NewCachingFetcher(countingFetch(&calls, nil, wantErr), m, FetcherConfig{
		Collection: "papers",
		TTL:        time.Minute,
	})
	ctx := context.Background()
	params := pagination.Params{Page: 1, PerPage: 20}

	if _, err := f.Fetch(ctx, params); !errors.Is(err, wantErr) {
		t.Fatalf("Fetch err = %v, want %v", err, wantErr)
	}
	if _, err := f.Fetch(ctx, params); !errors.Is(err, wantErr) {
		t.Fatalf("Fetch err = %v, want %v", err, wantErr)
	}
	if calls != 2 {
		t.Errorf("live fetch calls = %d, want 2 (failures must not be cached)", calls)
	}
}

func TestCachingFetcher_InvalidateForcesRefetch(t *testing.T) {
	m := NewManager(setupTestRedis(t))
	calls := 0
	f := NewCachingFetcher(countingFetch(&calls, []byte(`[]`), nil), m, FetcherConfig{
		Collection: "papers",
		TTL:        time.Minute,
	})
	ctx := context.Background()
	params := pagination.Params{Page: 1, PerPage: 20}

	if _, err := f.Fetch(ctx, params); err != nil {
		t.Fatal(err)
	}
	f.Invalidate(ctx)
	if _, err := f.Fetch(ctx, params); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("live fetch calls = %d, want 2 after invalidation", calls)
	}
}
