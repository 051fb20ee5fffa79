package enrichmentcache

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := LoadConfig()

	tests := []struct {
		kind     string
		db       bool
		rdb      bool
		wantName string
		wantErr  bool
	}{
		{kind: "postgres", db: true, wantName: "postgres"},
		{kind: "", db: true, wantName: "postgres"},
		{kind: "postgres", wantErr: true},
		{kind: "redis", rdb: true, wantName: "redis"},
		{kind: "redis", db: true, wantErr: true},
		{kind: "memory", wantName: "memory"},
		{kind: "dynamo", db: true, rdb: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			var d = db
			if !tt.db {
				d = nil
			}
			var r = rdb
			if !tt.rdb {
				r = nil
			}

			backend, err := OpenBackend(tt.kind, d, r, cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, backend.Name())
		})
	}
}
