package enrichmentcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"facility-search-workers/internal/models"

	"github.com/lib/pq"
)

const undefinedTable = "42P01"

// PostgresBackend keeps entries in one table keyed by (entity_id, field_name).
// Timestamps come from the caller so TTL is fixed at write time.
type PostgresBackend struct {
	db    *sql.DB
	table string
}

func NewPostgresBackend(db *sql.DB, table string) *PostgresBackend {
	return &PostgresBackend{db: db, table: table}
}

func (b *PostgresBackend) Name() string { return "postgres" }

func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
	entity_id   TEXT        NOT NULL,
	field_name  TEXT        NOT NULL,
	field_value JSONB,
	source      TEXT        NOT NULL DEFAULT '',
	cached_at   TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (entity_id, field_name)
);
CREATE INDEX IF NOT EXISTS %[1]s_expires_at_idx ON %[1]s (expires_at)`, b.table)

	if _, err := b.db.ExecContext(ctx, ddl); err != nil {
		return b.classify(err)
	}
	return nil
}

func (b *PostgresBackend) Upsert(ctx context.Context, entries []models.CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return b.classify(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s
	(entity_id, field_name, field_value, source, cached_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (entity_id, field_name) DO UPDATE SET
	field_value = EXCLUDED.field_value,
	source = EXCLUDED.source,
	cached_at = EXCLUDED.cached_at,
	expires_at = EXCLUDED.expires_at`, b.table))
	if err != nil {
		return b.classify(err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.EntityID, e.Field, jsonValue(e.Value), e.Source, e.CachedAt, e.ExpiresAt); err != nil {
			return b.classify(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return b.classify(err)
	}
	return nil
}

func (b *PostgresBackend) BatchGet(ctx context.Context, entityIDs, fields []string, now time.Time) ([]models.CacheEntry, error) {
	if len(entityIDs) == 0 || len(fields) == 0 {
		return nil, nil
	}

	rows, err := b.db.QueryContext(ctx, fmt.Sprintf(`SELECT entity_id, field_name, field_value, source, cached_at, expires_at
FROM %s
WHERE entity_id = ANY($1) AND field_name = ANY($2) AND expires_at > $3`, b.table),
		pq.Array(entityIDs), pq.Array(fields), now)
	if err != nil {
		return nil, b.classify(err)
	}
	defer rows.Close()

	var entries []models.CacheEntry
	for rows.Next() {
		var (
			e     models.CacheEntry
			value []byte
		)
		if err := rows.Scan(&e.EntityID, &e.Field, &value, &e.Source, &e.CachedAt, &e.ExpiresAt); err != nil {
			return nil, b.classify(err)
		}
		if value != nil {
			e.Value = append([]byte(nil), value...)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, b.classify(err)
	}
	return entries, nil
}

func (b *PostgresBackend) Invalidate(ctx context.Context, entityID string, fields []string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if len(fields) == 0 {
		res, err = b.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE entity_id = $1`, b.table), entityID)
	} else {
		res, err = b.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE entity_id = $1 AND field_name = ANY($2)`, b.table),
			entityID, pq.Array(fields))
	}
	if err != nil {
		return 0, b.classify(err)
	}
	return res.RowsAffected()
}

func (b *PostgresBackend) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := b.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= $1`, b.table), now)
	if err != nil {
		return 0, b.classify(err)
	}
	return res.RowsAffected()
}

func (b *PostgresBackend) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	stats := newStats(b.Name())

	var oldest, newest sql.NullTime
	err := b.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT
	COUNT(*) FILTER (WHERE expires_at > $1),
	COUNT(*) FILTER (WHERE expires_at <= $1),
	MIN(cached_at) FILTER (WHERE expires_at > $1),
	MAX(cached_at) FILTER (WHERE expires_at > $1)
FROM %s`, b.table), now).Scan(&stats.LiveEntries, &stats.ExpiredEntries, &oldest, &newest)
	if err != nil {
		return nil, b.classify(err)
	}
	if oldest.Valid {
		stats.OldestEntry = &oldest.Time
	}
	if newest.Valid {
		stats.NewestEntry = &newest.Time
	}

	rows, err := b.db.QueryContext(ctx, fmt.Sprintf(`SELECT field_name, COUNT(*)
FROM %s
WHERE expires_at > $1
GROUP BY field_name
ORDER BY COUNT(*) DESC`, b.table), now)
	if err != nil {
		return nil, b.classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			field string
			count int64
		)
		if err := rows.Scan(&field, &count); err != nil {
			return nil, b.classify(err)
		}
		stats.FieldBreakdown[field] = count
	}
	if err := rows.Err(); err != nil {
		return nil, b.classify(err)
	}
	return stats, nil
}

func (b *PostgresBackend) classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
		return fmt.Errorf("%w: table %s does not exist", ErrCacheUnavailable, b.table)
	}
	return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
}

// jsonValue stores a nil value as JSON null so "looked up, nothing found"
// stays distinguishable from "never looked up".
func jsonValue(v []byte) string {
	if len(v) == 0 {
		return "null"
	}
	return string(v)
}
