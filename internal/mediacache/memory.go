package mediacache

import (
	"context"
	"sync"
	"time"

	"castgate/internal/domain"
	"castgate/internal/domain/ports"
)

type memoryEntry struct {
	msg       domain.MediaMessage
	expiresAt time.Time
}

// Memory is an in-process TTL cache for media-message metadata, used when no
// Redis address is configured.
type Memory struct {
	mu      sync.Mutex
	entries map[int64]memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[int64]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(ctx context.Context, id int64) (domain.MediaMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok {
		return domain.MediaMessage{}, false
	}
	if m.now().After(entry.expiresAt) {
		delete(m.entries, id)
		return domain.MediaMessage{}, false
	}
	return entry.msg, true
}

func (m *Memory) Put(ctx context.Context, id int64, msg domain.MediaMessage, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	// Piggyback expiry sweeping on writes so the map does not grow without
	// bound between lookups.
	for key, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, key)
		}
	}
	m.entries[id] = memoryEntry{msg: msg, expiresAt: now.Add(ttl)}
}

var _ ports.MessageCache = (*Memory)(nil)
