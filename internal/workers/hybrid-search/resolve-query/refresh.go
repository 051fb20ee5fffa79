package resolvequery

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "facility-search-workers/internal/common/errors"
	"facility-search-workers/internal/common/validation"
	"facility-search-workers/internal/lookup"
	"facility-search-workers/internal/models"
	batchenrich "facility-search-workers/internal/workers/hybrid-search/batch-enrich"
)

// RefreshHandler serves refresh-enrichment jobs: it drops the cached
// enrichment of one facility and fetches it again.
type RefreshHandler struct {
	config  *Config
	cache   CacheInvalidator
	fetcher Fetcher
	tables  *lookup.Tables
	jobs    *jobRunner
	logger  Logger
}

func NewRefreshHandler(config *Config, cache CacheInvalidator, fetcher Fetcher, tables *lookup.Tables, log Logger) *RefreshHandler {
	return &RefreshHandler{
		config:  config,
		cache:   cache,
		fetcher: fetcher,
		tables:  tables,
		jobs:    newJobRunner(RefreshTaskType, log),
		logger:  log,
	}
}

func (h *RefreshHandler) WithInputSchema(v *validation.SchemaValidator) *RefreshHandler {
	h.jobs.schema = v
	return h
}

func (h *RefreshHandler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input RefreshInput
	if err := h.jobs.decode(job, &input); err != nil {
		h.jobs.fail(client, job, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.RefreshTimeout)
	defer cancel()

	output, err := h.Refresh(ctx, input.Entity, input.Fields)
	if err != nil {
		h.jobs.fail(client, job, err)
		return
	}
	h.jobs.complete(client, job, output)
}

// Refresh invalidates the given enrichment fields of entity, or all of them
// when none are given, and refetches them. Structured fields are ignored.
func (h *RefreshHandler) Refresh(ctx context.Context, entity models.EntityRecord, fields []string) (*RefreshOutput, error) {
	if entity.Name == "" || (entity.ExternalID == "" && entity.ID == 0) {
		return nil, apperrors.NewInvalidInputError("entity needs a name and an id or NPI")
	}

	id := entity.CacheKey()
	fields = h.enrichmentFields(fields)
	if len(fields) == 0 {
		return nil, apperrors.NewInvalidInputError("no enrichment fields to refresh")
	}

	removed, err := h.cache.Invalidate(ctx, id, fields...)
	if err != nil {
		return nil, apperrors.NewCacheUnavailableError("enrichment_cache", err)
	}

	res := h.fetcher.Fetch(ctx, batchenrich.Request{
		Entities: []models.EntityRecord{entity},
		Fields:   fields,
	})
	switch res.ErrorCode {
	case "":
	case string(apperrors.ErrCodeEnrichmentParseFailed):
		return nil, apperrors.NewEnrichmentParseFailedError(fmt.Sprintf("entity %s", id))
	default:
		return nil, apperrors.NewEnrichmentFetchFailedError(stderrors.New(res.ErrorCode))
	}

	out := &RefreshOutput{
		EntityID:    id,
		Invalidated: removed,
		Values:      make(map[string]models.FieldValue),
		Unresolved:  []string{},
	}
	for _, f := range fields {
		if v, ok := res.Get(id, f); ok && v.Resolved() {
			out.Values[f] = v
			continue
		}
		out.Unresolved = append(out.Unresolved, f)
	}

	h.logger.Info("enrichment refreshed", map[string]interface{}{
		"entityId":    id,
		"invalidated": removed,
		"resolved":    len(out.Values),
		"unresolved":  out.Unresolved,
	})
	return out, nil
}

func (h *RefreshHandler) enrichmentFields(requested []string) []string {
	if len(requested) == 0 {
		return h.tables.EnrichmentFields()
	}
	seen := make(map[string]bool)
	var out []string
	for _, f := range requested {
		name := h.tables.CanonicalField(f)
		if name == "" || seen[name] {
			continue
		}
		if h.tables.IsStructured(name) && !h.tables.IsEnrichmentOnly(name) {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
