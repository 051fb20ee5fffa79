package enrichmentcache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"facility-search-workers/internal/models"

	"github.com/redis/go-redis/v9"
)

const scanCount = 500

// RedisBackend stores one key per (entity, field) as prefix:entity:field.
// Redis expiry removes entries; the envelope keeps ExpiresAt so reads agree
// with the caller's clock.
type RedisBackend struct {
	client *redis.Client
	prefix string
	// batch caps the keys sent in one MGET when reading the whole keyspace.
	batch int
}

type envelope struct {
	Value     json.RawMessage `json:"value"`
	Source    string          `json:"source"`
	CachedAt  time.Time       `json:"cachedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix, batch: scanCount}
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) key(entityID, field string) string {
	return b.prefix + ":" + entityID + ":" + field
}

// parseKey splits a key back into entity and field. Entity ids may contain
// colons; field names never do.
func (b *RedisBackend) parseKey(key string) (string, string, bool) {
	rest := strings.TrimPrefix(key, b.prefix+":")
	i := strings.LastIndex(rest, ":")
	if rest == key || i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

func (b *RedisBackend) Upsert(ctx context.Context, entries []models.CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := b.client.Pipeline()
	for _, e := range entries {
		ttl := e.ExpiresAt.Sub(e.CachedAt)
		if ttl <= 0 {
			continue
		}
		data, err := json.Marshal(envelope{
			Value:     json.RawMessage(jsonValue(e.Value)),
			Source:    e.Source,
			CachedAt:  e.CachedAt,
			ExpiresAt: e.ExpiresAt,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
		pipe.Set(ctx, b.key(e.EntityID, e.Field), data, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

func (b *RedisBackend) BatchGet(ctx context.Context, entityIDs, fields []string, now time.Time) ([]models.CacheEntry, error) {
	if len(entityIDs) == 0 || len(fields) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(entityIDs)*len(fields))
	for _, id := range entityIDs {
		for _, f := range fields {
			keys = append(keys, b.key(id, f))
		}
	}

	values, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return b.decode(keys, values, now, false), nil
}

func (b *RedisBackend) Invalidate(ctx context.Context, entityID string, fields []string) (int64, error) {
	var keys []string
	if len(fields) == 0 {
		found, err := b.scan(ctx, b.prefix+":"+entityID+":*")
		if err != nil {
			return 0, err
		}
		for _, k := range found {
			if id, _, ok := b.parseKey(k); ok && id == entityID {
				keys = append(keys, k)
			}
		}
	} else {
		for _, f := range fields {
			keys = append(keys, b.key(entityID, f))
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := b.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return n, nil
}

// PurgeExpired removes entries whose envelope has expired by now but which
// Redis has not evicted yet.
func (b *RedisBackend) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	keys, values, err := b.loadAll(ctx)
	if err != nil || len(keys) == 0 {
		return 0, err
	}

	var expired []string
	for _, e := range b.decode(keys, values, now, true) {
		if e.Expired(now) {
			expired = append(expired, b.key(e.EntityID, e.Field))
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	n, err := b.client.Del(ctx, expired...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return n, nil
}

func (b *RedisBackend) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	stats := newStats(b.Name())

	keys, values, err := b.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range b.decode(keys, values, now, true) {
		stats.observe(e, now)
	}
	return stats, nil
}

func (b *RedisBackend) loadAll(ctx context.Context) ([]string, []interface{}, error) {
	keys, err := b.scan(ctx, b.prefix+":*")
	if err != nil || len(keys) == 0 {
		return nil, nil, err
	}
	values := make([]interface{}, 0, len(keys))
	for start := 0; start < len(keys); start += b.batch {
		end := min(start+b.batch, len(keys))
		chunk, err := b.client.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
		values = append(values, chunk...)
	}
	return keys, values, nil
}

func (b *RedisBackend) scan(ctx context.Context, match string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := b.client.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (b *RedisBackend) decode(keys []string, values []interface{}, now time.Time, includeExpired bool) []models.CacheEntry {
	var entries []models.CacheEntry
	for i, raw := range values {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		entityID, field, ok := b.parseKey(keys[i])
		if !ok {
			continue
		}
		var env envelope
		if err := json.Unmarshal([]byte(s), &env); err != nil {
			continue
		}
		e := models.CacheEntry{
			EntityID:  entityID,
			Field:     field,
			Value:     env.Value,
			Source:    env.Source,
			CachedAt:  env.CachedAt,
			ExpiresAt: env.ExpiresAt,
		}
		if !includeExpired && e.Expired(now) {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}
