package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"facility-search-workers/internal/common/config"

	_ "github.com/lib/pq"
)

// PostgresClient owns the shared registry pool. Connections are acquired per
// query by database/sql and returned as soon as rows are closed.
type PostgresClient struct {
	DB *sql.DB
}

func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MinConnections)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(config.GetDuration(cfg.ConnMaxIdleTime))

	return &PostgresClient{DB: db}, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *PostgresClient) Stats() sql.DBStats {
	return c.DB.Stats()
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
