package mediacache

import (
	"context"
	"testing"
	"time"

	"castgate/internal/domain"
)

func TestMemoryExpiry(t *testing.T) {
	cache := NewMemory()
	now := time.Unix(1000, 0)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	msg := domain.MediaMessage{ID: 42, Document: &domain.Document{ID: 420, Size: 1000}}
	cache.Put(ctx, 42, msg, time.Minute)

	got, ok := cache.Get(ctx, 42)
	if !ok || got.ID != 42 {
		t.Fatalf("get = %+v, %v", got, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get(ctx, 42); ok {
		t.Fatal("expired entry still served")
	}
}

func TestMemorySweepsOnPut(t *testing.T) {
	cache := NewMemory()
	now := time.Unix(1000, 0)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	for id := int64(1); id <= 5; id++ {
		cache.Put(ctx, id, domain.MediaMessage{ID: id}, time.Minute)
	}
	now = now.Add(2 * time.Minute)
	cache.Put(ctx, 6, domain.MediaMessage{ID: 6}, time.Minute)

	cache.mu.Lock()
	defer cache.mu.Unlock()
	if len(cache.entries) != 1 {
		t.Fatalf("entries = %d, want expired entries swept", len(cache.entries))
	}
}
