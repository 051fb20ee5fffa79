package resolvequery

import (
	"context"

	"facility-search-workers/internal/models"
	batchenrich "facility-search-workers/internal/workers/hybrid-search/batch-enrich"
	enrichmentcache "facility-search-workers/internal/workers/hybrid-search/enrichment-cache"
	mergeresults "facility-search-workers/internal/workers/hybrid-search/merge-results"
	queryregistry "facility-search-workers/internal/workers/hybrid-search/query-registry"
	synthesizeresponse "facility-search-workers/internal/workers/hybrid-search/synthesize-response"
)

type Input struct {
	Query   string                    `json:"query"`
	History []models.ConversationTurn `json:"history"`
}

type Output struct {
	Answer      string                `json:"answer"`
	Entities    []models.MergedEntity `json:"entities"`
	Diagnostics models.Diagnostics    `json:"diagnostics"`
}

type RefreshInput struct {
	Entity models.EntityRecord `json:"entity"`
	Fields []string            `json:"fields"`
}

type RefreshOutput struct {
	EntityID    string                       `json:"entityId"`
	Invalidated int64                        `json:"invalidated"`
	Values      map[string]models.FieldValue `json:"values"`
	Unresolved  []string                     `json:"unresolved"`
}

type Normalizer interface {
	Normalize(ctx context.Context, text string, history []models.ConversationTurn) models.ParsedIntent
}

type RegistryQuerier interface {
	Query(ctx context.Context, intent models.ParsedIntent) (*queryregistry.Result, error)
}

type CacheReader interface {
	BatchGet(ctx context.Context, entityIDs, fields []string) *enrichmentcache.Lookup
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, entityID string, fields ...string) (int64, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, req batchenrich.Request) *batchenrich.Result
}

type Merger interface {
	Merge(rows []models.EntityRecord, requested []string, cached mergeresults.CachedValues, fetched mergeresults.FetchedValues) []models.MergedEntity
	ApplyRanges(entities []models.MergedEntity, ranges map[string]models.NumericRange) []models.MergedEntity
}

type Synthesizer interface {
	Synthesize(ctx context.Context, in synthesizeresponse.Input) *synthesizeresponse.Output
}

// Stages are the pipeline steps in run order.
type Stages struct {
	Normalizer  Normalizer
	Registry    RegistryQuerier
	Cache       CacheReader
	Fetcher     Fetcher
	Merger      Merger
	Synthesizer Synthesizer
}
