package main

import (
	"database/sql"

	"github.com/redis/go-redis/v9"

	"facility-search-workers/internal/common/config"

	be "facility-search-workers/internal/workers/hybrid-search/batch-enrich"
	ni "facility-search-workers/internal/workers/hybrid-search/normalize-intent"
	qr "facility-search-workers/internal/workers/hybrid-search/query-registry"
	sr "facility-search-workers/internal/workers/hybrid-search/synthesize-response"
)

// Stage configs start from each package's defaults and take what the config
// file sets.

func normalizerConfig(c config.NormalizerConfig) *ni.Config {
	cfg := ni.LoadConfig()
	cfg.Timeout = config.GetDuration(c.TimeoutMs)
	cfg.MaxRetries = c.MaxRetries
	cfg.HistoryWindow = c.HistoryWindow
	cfg.MaxTurnChars = c.MaxTurnChars
	cfg.DefaultLimit = c.DefaultLimit
	return cfg
}

func registryConfig(c config.RegistryConfig) *qr.Config {
	cfg := qr.LoadConfig()
	cfg.Timeout = config.GetDuration(c.TimeoutMs)
	cfg.LimitCap = c.LimitCap
	cfg.DefaultLimit = c.DefaultLimit
	cfg.MatchFirstToken = c.MatchFirstToken
	cfg.MinTokenLength = c.MinTokenLength
	return cfg
}

func enrichmentConfig(c config.EnrichmentConfig) *be.Config {
	cfg := be.LoadConfig()
	cfg.MaxEntities = c.MaxEntities
	cfg.Timeout = config.GetDuration(c.TimeoutMs)
	cfg.MaxTokens = c.MaxTokens
	cfg.RatePerSecond = c.RatePerSecond
	cfg.Burst = c.Burst
	if c.DefaultSource != "" {
		cfg.DefaultSource = c.DefaultSource
	}
	return cfg
}

func synthesisConfig(c config.SynthesisConfig) *sr.Config {
	cfg := sr.LoadConfig()
	cfg.Timeout = config.GetDuration(c.TimeoutMs)
	cfg.MaxTokens = c.MaxTokens
	cfg.ComplexityCutoff = c.ComplexityCutoff
	cfg.Weights = sr.Weights{
		ResultCount:    c.Weights.ResultCount,
		EnrichedFields: c.Weights.EnrichedFields,
		Conversation:   c.Weights.Conversation,
		Comparison:     c.Weights.Comparison,
	}
	cfg.Thresholds = sr.Thresholds{
		ResultCount:       c.Thresholds.ResultCount,
		EnrichedFields:    c.Thresholds.EnrichedFields,
		ConversationTurns: c.Thresholds.ConversationTurns,
	}
	cfg.MaxDataChars = c.MaxDataChars
	cfg.MaxListed = c.MaxListed
	return cfg
}

func sqlDB(b *backends) *sql.DB {
	if b.pg == nil {
		return nil
	}
	return b.pg.DB
}

func redisClient(b *backends) *redis.Client {
	if b.redis == nil {
		return nil
	}
	return b.redis.Client
}
