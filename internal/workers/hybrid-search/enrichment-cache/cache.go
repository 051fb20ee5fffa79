package enrichmentcache

import (
	"context"
	"encoding/json"
	"sort"
	"sync/atomic"
	"time"

	"facility-search-workers/internal/common/metrics"
	"facility-search-workers/internal/common/resilience"
	"facility-search-workers/internal/models"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Cache puts TTL policy in front of a Backend. Reads never fail: a broken
// backend is reported once and then behaves as an always-miss cache until
// it answers again.
type Cache struct {
	config   *Config
	backend  Backend
	logger   Logger
	now      func() time.Time
	degraded atomic.Bool
}

func NewCache(config *Config, backend Backend, log Logger) *Cache {
	return &Cache{
		config:  config,
		backend: backend,
		logger:  log,
		now:     time.Now,
	}
}

func (c *Cache) Backend() string { return c.backend.Name() }

// EnsureSchema creates backend storage when the backend supports it.
func (c *Cache) EnsureSchema(ctx context.Context) error {
	m, ok := c.backend.(SchemaMigrator)
	if !ok {
		return nil
	}
	return m.EnsureSchema(ctx)
}

// Upsert writes one value with a fresh expiry of now+TTL, replacing any
// previous entry for the same (entity, field).
func (c *Cache) Upsert(ctx context.Context, entityID, field string, value json.RawMessage, source string) error {
	return c.UpsertMany(ctx, []models.CacheEntry{{
		EntityID: entityID,
		Field:    field,
		Value:    value,
		Source:   source,
	}})
}

// UpsertMany writes entries in (entity, field) order so concurrent writers
// over overlapping entities take row locks in the same order.
func (c *Cache) UpsertMany(ctx context.Context, entries []models.CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	now := c.now().UTC()
	stamped := make([]models.CacheEntry, 0, len(entries))
	for _, e := range entries {
		if e.EntityID == "" || e.Field == "" {
			continue
		}
		e.CachedAt = now
		e.ExpiresAt = now.Add(c.config.TTL)
		stamped = append(stamped, e)
	}
	sort.Slice(stamped, func(i, j int) bool {
		if stamped[i].EntityID != stamped[j].EntityID {
			return stamped[i].EntityID < stamped[j].EntityID
		}
		return stamped[i].Field < stamped[j].Field
	})

	_, err := resilience.Call(ctx, c.policy("cache_write"), struct{}{}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.backend.Upsert(ctx, stamped)
	})
	if err != nil {
		c.markDegraded("upsert", err)
		return err
	}
	c.markHealthy()
	return nil
}

func (c *Cache) Get(ctx context.Context, entityID, field string) (models.CacheEntry, bool) {
	return c.BatchGet(ctx, []string{entityID}, []string{field}).Get(entityID, field)
}

// BatchGet reads every (entity, field) pair in one backend round trip.
// Expired entries are absent; a backend failure counts every pair as a miss.
func (c *Cache) BatchGet(ctx context.Context, entityIDs, fields []string) *Lookup {
	lookup := &Lookup{Entries: make(map[string]map[string]models.CacheEntry)}
	pairs := len(entityIDs) * len(fields)
	if pairs == 0 {
		return lookup
	}

	now := c.now().UTC()
	entries, err := resilience.Call(ctx, c.policy("cache_read"), []models.CacheEntry(nil), func(ctx context.Context) ([]models.CacheEntry, error) {
		return c.backend.BatchGet(ctx, entityIDs, fields, now)
	})
	if err != nil {
		c.markDegraded("batch_get", err)
		lookup.Misses = pairs
		metrics.RecordCacheLookups(0, pairs)
		return lookup
	}
	c.markHealthy()

	for _, e := range entries {
		if e.Expired(now) {
			continue
		}
		fieldsFor, ok := lookup.Entries[e.EntityID]
		if !ok {
			fieldsFor = make(map[string]models.CacheEntry)
			lookup.Entries[e.EntityID] = fieldsFor
		}
		if _, dup := fieldsFor[e.Field]; !dup {
			lookup.Hits++
		}
		fieldsFor[e.Field] = e
	}
	lookup.Misses = pairs - lookup.Hits
	metrics.RecordCacheLookups(lookup.Hits, lookup.Misses)
	return lookup
}

// Invalidate drops cached fields for one entity, or all of its fields when
// none are given.
func (c *Cache) Invalidate(ctx context.Context, entityID string, fields ...string) (int64, error) {
	n, err := resilience.Call(ctx, c.policy("cache_write"), int64(0), func(ctx context.Context) (int64, error) {
		return c.backend.Invalidate(ctx, entityID, fields)
	})
	if err != nil {
		c.markDegraded("invalidate", err)
		return 0, err
	}
	c.logger.Info("enrichment cache invalidated", map[string]interface{}{
		"entityId": entityID,
		"fields":   fields,
		"removed":  n,
	})
	return n, nil
}

func (c *Cache) PurgeExpired(ctx context.Context) (int64, error) {
	now := c.now().UTC()
	n, err := resilience.Call(ctx, c.policy("cache_write"), int64(0), func(ctx context.Context) (int64, error) {
		return c.backend.PurgeExpired(ctx, now)
	})
	if err != nil {
		c.markDegraded("purge", err)
		return 0, err
	}
	return n, nil
}

func (c *Cache) Stats(ctx context.Context) (*Stats, error) {
	now := c.now().UTC()
	return resilience.Call(ctx, c.policy("cache_read"), (*Stats)(nil), func(ctx context.Context) (*Stats, error) {
		return c.backend.Stats(ctx, now)
	})
}

// policy bounds a single backend call. Cache calls are never retried: a slow
// cache is treated as a miss.
func (c *Cache) policy(boundary string) resilience.Policy {
	return resilience.Policy{Boundary: boundary, Timeout: c.config.Timeout}
}

func (c *Cache) markDegraded(op string, err error) {
	if c.degraded.CompareAndSwap(false, true) {
		c.logger.Warn("enrichment cache unavailable, treating lookups as misses", map[string]interface{}{
			"backend":   c.backend.Name(),
			"operation": op,
			"error":     err.Error(),
		})
	}
}

func (c *Cache) markHealthy() {
	if c.degraded.CompareAndSwap(true, false) {
		c.logger.Info("enrichment cache recovered", map[string]interface{}{
			"backend": c.backend.Name(),
		})
	}
}
