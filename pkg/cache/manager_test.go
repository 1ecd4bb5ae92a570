package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis starts an in-process Redis for unit tests. Integration
// tests against a real Redis live under tests/integration.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func freshEntry(payload string) *Entry {
	now := time.Now()
	return &Entry{
		Payload:   []byte(payload),
		FetchedAt: now,
		Expires:   now.Add(time.Minute),
	}
}

func TestManager_SetAndGet(t *testing.T) {
	m := NewManager(setupTestRedis(t))
	ctx := context.Background()
	key := PageKey{Collection: "papers", Page: 1, PerPage: 20}

	if err := m.Set(ctx, key, freshEntry(`{"items": []}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	entry, err := m.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(entry.Payload) != `{"items": []}` {
		t.Errorf("Payload = %s", entry.Payload)
	}
}

func TestManager_Miss(t *testing.T) {
	m := NewManager(setupTestRedis(t))

	_, err := m.Get(context.Background(), PageKey{Collection: "papers", Page: 9, PerPage: 20})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get on empty cache: err = %v, want ErrCacheMiss", err)
	}
}

func TestManager_ExpiredEntryIsAMiss(t *testing.T) {
	m := NewManager(setupTestRedis(t))
	ctx := context.Background()
	key := PageKey{Collection: "papers", Page: 1, PerPage: 20}

	now := time.Now()
	entry := &Entry{
		Payload:   []byte("{}"),
		FetchedAt: now,
		Expires:   now.Add(30 * time.Millisecond),
	}
	if err := m.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if _, err := m.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get of expired entry: err = %v, want ErrCacheMiss", err)
	}
}

func TestManager_AlreadyExpiredNotStored(t *testing.T) {
	client := setupTestRedis(t)
	m := NewManager(client)
	ctx := context.Background()
	key := PageKey{Collection: "papers", Page: 1, PerPage: 20}

	entry := &Entry{Payload: []byte("{}"), Expires: time.Now().Add(-time.Second)}
	if err := m.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if n, _ := client.Exists(ctx, key.String()).Result(); n != 0 {
		t.Error("expired entry was written to Redis")
	}
}

func TestManager_Delete(t *testing.T) {
	m := NewManager(setupTestRedis(t))
	ctx := context.Background()
	key := PageKey{Collection: "papers", Page: 1, PerPage: 20}

	if err := m.Set(ctx, key, freshEntry("{}")); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := m.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get after Delete: err = %v, want ErrCacheMiss", err)
	}
}

func TestManager_InvalidateCollection(t *testing.T) {
	m := NewManager(setupTestRedis(t))
	ctx := context.Background()

	for page := 1; page <= 3; page++ {
		key := PageKey{Collection: "papers", Page: page, PerPage: 20}
		if err := m.Set(ctx, key, freshEntry("{}")); err != nil {
			t.Fatal(err)
		}
	}
	otherKey := PageKey{Collection: "jobs", Page: 1, PerPage: 20}
	if err := m.Set(ctx, otherKey, freshEntry("{}")); err != nil {
		t.Fatal(err)
	}

	if err := m.InvalidateCollection(ctx, "papers"); err != nil {
		t.Fatalf("InvalidateCollection failed: %v", err)
	}

	for page := 1; page <= 3; page++ {
		key := PageKey{Collection: "papers", Page: page, PerPage: 20}
		if _, err := m.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("papers page %d survived invalidation", page)
		}
	}

	// Other collections are untouched.
	if _, err := m.Get(ctx, otherKey); err != nil {
		t.Errorf("jobs page evicted by papers invalidation: %v", err)
	}
}

func TestNewManager_NilClientPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}
