package enrichmentcache

import (
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// OpenBackend picks the storage named by kind. The client it needs must be
// non-nil; the other may be.
func OpenBackend(kind string, db *sql.DB, rdb *redis.Client, config *Config) (Backend, error) {
	switch kind {
	case BackendPostgres, "":
		if db == nil {
			return nil, fmt.Errorf("cache backend %q needs a postgres connection", BackendPostgres)
		}
		return NewPostgresBackend(db, config.Table), nil
	case BackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("cache backend %q needs a redis client", BackendRedis)
		}
		return NewRedisBackend(rdb, config.KeyPrefix), nil
	case BackendMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", kind)
	}
}
