package models

import (
	"encoding/json"
	"time"
)

// CacheEntry is one (entity, field) enrichment value with a TTL fixed at
// write time. An expired entry is treated as absent and is never extended.
type CacheEntry struct {
	EntityID  string          `json:"entityId"`
	Field     string          `json:"field"`
	Value     json.RawMessage `json:"value"`
	Source    string          `json:"source"`
	CachedAt  time.Time       `json:"cachedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

func (c CacheEntry) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
