package enrichmentcache

import (
	"context"
	"errors"
	"time"

	"facility-search-workers/internal/models"
)

var ErrCacheUnavailable = errors.New("CACHE_UNAVAILABLE")

// Backend stores (entity, field) entries. Reads must never return an entry
// whose ExpiresAt is not after now.
type Backend interface {
	Name() string
	Upsert(ctx context.Context, entries []models.CacheEntry) error
	BatchGet(ctx context.Context, entityIDs, fields []string, now time.Time) ([]models.CacheEntry, error)
	Invalidate(ctx context.Context, entityID string, fields []string) (int64, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	Stats(ctx context.Context, now time.Time) (*Stats, error)
}

// SchemaMigrator is implemented by backends that can create their own
// storage.
type SchemaMigrator interface {
	EnsureSchema(ctx context.Context) error
}

type Stats struct {
	Backend        string           `json:"backend"`
	LiveEntries    int64            `json:"liveEntries"`
	ExpiredEntries int64            `json:"expiredEntries"`
	FieldBreakdown map[string]int64 `json:"fieldBreakdown"`
	OldestEntry    *time.Time       `json:"oldestEntry,omitempty"`
	NewestEntry    *time.Time       `json:"newestEntry,omitempty"`
}

// Lookup is the result of a batch read, indexed by entity then field.
type Lookup struct {
	Entries map[string]map[string]models.CacheEntry
	Hits    int
	Misses  int
}

func (l *Lookup) Get(entityID, field string) (models.CacheEntry, bool) {
	if l == nil {
		return models.CacheEntry{}, false
	}
	e, ok := l.Entries[entityID][field]
	return e, ok
}

// Missing returns, for each entity, the fields the cache could not answer.
// Entities with every field cached are omitted.
func (l *Lookup) Missing(entityIDs, fields []string) map[string][]string {
	out := make(map[string][]string)
	for _, id := range entityIDs {
		for _, f := range fields {
			if _, ok := l.Get(id, f); !ok {
				out[id] = append(out[id], f)
			}
		}
	}
	return out
}

func (s *Stats) observe(e models.CacheEntry, now time.Time) {
	if e.Expired(now) {
		s.ExpiredEntries++
		return
	}
	s.LiveEntries++
	s.FieldBreakdown[e.Field]++
	if s.OldestEntry == nil || e.CachedAt.Before(*s.OldestEntry) {
		t := e.CachedAt
		s.OldestEntry = &t
	}
	if s.NewestEntry == nil || e.CachedAt.After(*s.NewestEntry) {
		t := e.CachedAt
		s.NewestEntry = &t
	}
}

func newStats(backend string) *Stats {
	return &Stats{Backend: backend, FieldBreakdown: make(map[string]int64)}
}
