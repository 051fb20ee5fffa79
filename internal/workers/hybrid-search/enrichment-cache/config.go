package enrichmentcache

import "time"

type Config struct {
	TTL       time.Duration
	Table     string
	KeyPrefix string
	// Timeout bounds each backend call. Zero leaves calls bounded only by
	// the caller's context.
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		TTL:       90 * 24 * time.Hour,
		Table:     "enrichment_cache",
		KeyPrefix: "enrich",
		Timeout:   2 * time.Second,
	}
}
