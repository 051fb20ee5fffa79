package enrichmentcache

import (
	"context"
	"sync"
	"time"

	"facility-search-workers/internal/models"
)

// MemoryBackend is a process-local store for tests and single-instance runs.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]map[string]models.CacheEntry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]map[string]models.CacheEntry)}
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) Upsert(_ context.Context, entries []models.CacheEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range entries {
		fields, ok := b.entries[e.EntityID]
		if !ok {
			fields = make(map[string]models.CacheEntry)
			b.entries[e.EntityID] = fields
		}
		e.Value = append([]byte(nil), e.Value...)
		fields[e.Field] = e
	}
	return nil
}

func (b *MemoryBackend) BatchGet(_ context.Context, entityIDs, fields []string, now time.Time) ([]models.CacheEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []models.CacheEntry
	for _, id := range entityIDs {
		for _, f := range fields {
			if e, ok := b.entries[id][f]; ok && !e.Expired(now) {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (b *MemoryBackend) Invalidate(_ context.Context, entityID string, fields []string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored, ok := b.entries[entityID]
	if !ok {
		return 0, nil
	}
	if len(fields) == 0 {
		delete(b.entries, entityID)
		return int64(len(stored)), nil
	}

	var n int64
	for _, f := range fields {
		if _, ok := stored[f]; ok {
			delete(stored, f)
			n++
		}
	}
	if len(stored) == 0 {
		delete(b.entries, entityID)
	}
	return n, nil
}

func (b *MemoryBackend) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var n int64
	for id, fields := range b.entries {
		for f, e := range fields {
			if e.Expired(now) {
				delete(fields, f)
				n++
			}
		}
		if len(fields) == 0 {
			delete(b.entries, id)
		}
	}
	return n, nil
}

func (b *MemoryBackend) Stats(_ context.Context, now time.Time) (*Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := newStats(b.Name())
	for _, fields := range b.entries {
		for _, e := range fields {
			stats.observe(e, now)
		}
	}
	return stats, nil
}
