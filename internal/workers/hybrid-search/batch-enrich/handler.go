package batchenrich

import (
	"context"
	"fmt"
	"sort"
	"strings"

	apperrors "facility-search-workers/internal/common/errors"
	"facility-search-workers/internal/common/genai"
	"facility-search-workers/internal/common/metrics"
	"facility-search-workers/internal/common/resilience"
	"facility-search-workers/internal/common/validation"
	"facility-search-workers/internal/lookup"
	"facility-search-workers/internal/models"
	enrichmentcache "facility-search-workers/internal/workers/hybrid-search/enrichment-cache"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var itemValidator = validation.MustSchemaValidator(itemSchema)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

type Handler struct {
	config  *Config
	gen     genai.Generator
	cache   *enrichmentcache.Cache
	tables  *lookup.Tables
	limiter *rate.Limiter
	group   singleflight.Group
	logger  Logger
}

func NewHandler(config *Config, gen genai.Generator, cache *enrichmentcache.Cache, tables *lookup.Tables, log Logger) *Handler {
	limit := rate.Inf
	if config.RatePerSecond > 0 {
		limit = rate.Limit(config.RatePerSecond)
	}
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}

	return &Handler{
		config:  config,
		gen:     gen,
		cache:   cache,
		tables:  tables,
		limiter: rate.NewLimiter(limit, burst),
		logger:  log,
	}
}

// Fetch looks up the requested fields for at most MaxEntities entities in a
// single external call and writes every answered pair to the cache before
// returning. It never fails; on any error the result is empty.
func (h *Handler) Fetch(ctx context.Context, req Request) *Result {
	entities := req.Entities
	if h.config.MaxEntities > 0 && len(entities) > h.config.MaxEntities {
		h.logger.Info("batch capped", map[string]interface{}{
			"entities": len(entities),
			"cap":      h.config.MaxEntities,
		})
		entities = entities[:h.config.MaxEntities]
	}
	if len(entities) == 0 || len(req.Fields) == 0 {
		return emptyResult(0)
	}

	key := flightKey(entities, req.Fields)
	v, _, shared := h.group.Do(key, func() (interface{}, error) {
		return h.fetch(ctx, req.Query, entities, req.Fields, req.Criteria), nil
	})
	if shared {
		h.logger.Info("joined in-flight enrichment fetch", map[string]interface{}{
			"entities": len(entities),
		})
	}
	return v.(*Result)
}

func (h *Handler) fetch(ctx context.Context, query string, entities []models.EntityRecord, fields []string, criteria map[string]models.NumericRange) *Result {
	result := emptyResult(len(entities))

	if err := h.limiter.Wait(ctx); err != nil {
		h.logger.Warn("enrichment rate limit wait aborted", map[string]interface{}{
			"error": err.Error(),
		})
		result.ErrorCode = string(apperrors.ErrCodeEnrichmentFetchFailed)
		return result
	}
	metrics.BatchEntities.Observe(float64(len(entities)))

	prompt := h.buildPrompt(query, entities, fields, criteria)
	policy := resilience.Policy{
		Boundary:   "enrichment_fetch",
		Timeout:    h.config.Timeout,
		MaxRetries: h.config.MaxRetries,
	}
	raw, err := resilience.Call(ctx, policy, "", func(ctx context.Context) (string, error) {
		return h.gen.Generate(ctx, genai.Request{
			Tier:        genai.TierLow,
			Temperature: 0.1,
			MaxTokens:   h.config.MaxTokens,
			Messages:    []genai.Message{{Role: "user", Content: prompt}},
		})
	})
	if err != nil {
		h.logger.Warn("enrichment fetch failed, fields stay unresolved", map[string]interface{}{
			"entities": len(entities),
			"fields":   fields,
			"error":    err.Error(),
		})
		result.ErrorCode = string(apperrors.ErrCodeEnrichmentFetchFailed)
		return result
	}

	items, err := parseItems(raw)
	if err != nil {
		metrics.ExternalCalls.WithLabelValues("enrichment_parse", "error").Inc()
		h.logger.Warn("enrichment response not parseable, fields stay unresolved", map[string]interface{}{
			"error":   fmt.Errorf("%w: %v", ErrEnrichmentParseFailed, err).Error(),
			"preview": preview(raw),
		})
		result.ErrorCode = string(apperrors.ErrCodeEnrichmentParseFailed)
		return result
	}

	h.join(result, entities, fields, items)
	h.store(ctx, result)

	h.logger.Info("enrichment fetched", map[string]interface{}{
		"entities": len(entities),
		"items":    len(items),
		"matched":  result.Matched,
		"fields":   fields,
	})
	return result
}

// join matches items to entities on normalized (name, city, state), falling
// back to the name alone when exactly one entity carries it.
func (h *Handler) join(result *Result, entities []models.EntityRecord, fields []string, items []item) {
	byKey := make(map[string]models.EntityRecord, len(entities))
	byName := make(map[string][]models.EntityRecord, len(entities))
	for _, e := range entities {
		byKey[joinKey(e.Name, e.City, h.stateKey(firstNonEmpty(e.StateCode, e.State)))] = e
		n := joinKey(e.Name, "", "")
		byName[n] = append(byName[n], e)
	}

	for i, it := range items {
		doc, err := jsonBytes(it)
		if err != nil {
			continue
		}
		vr, err := itemValidator.ValidateBytes(doc)
		if err != nil || !vr.Valid {
			summary := ""
			if vr != nil {
				summary = vr.Summary()
			}
			h.logger.Warn("enrichment item rejected", map[string]interface{}{
				"index":  i,
				"errors": summary,
			})
			continue
		}

		entity, ok := byKey[joinKey(it.str("name"), it.str("city"), h.stateKey(it.str("state")))]
		if !ok {
			candidates := byName[joinKey(it.str("name"), "", "")]
			if len(candidates) != 1 {
				continue
			}
			entity = candidates[0]
		}

		id := entity.CacheKey()
		if _, done := result.Values[id]; done {
			continue
		}

		source := firstNonEmpty(it.str("data_source"), h.config.DefaultSource)
		asOf := it.str("last_updated")
		values := make(map[string]models.FieldValue)
		for _, f := range fields {
			raw, ok := it.value(f)
			if !ok {
				continue
			}
			values[f] = models.FieldValue{
				Value:      raw,
				Provenance: models.ProvenanceFresh,
				Source:     source,
				AsOf:       asOf,
			}
		}
		if len(values) == 0 {
			continue
		}
		result.Values[id] = values
		result.Matched++
	}
}

func (h *Handler) store(ctx context.Context, result *Result) {
	if h.cache == nil || len(result.Values) == 0 {
		return
	}

	var entries []models.CacheEntry
	for id, fields := range result.Values {
		for field, v := range fields {
			entries = append(entries, models.CacheEntry{
				EntityID: id,
				Field:    field,
				Value:    v.Value,
				Source:   v.Source,
			})
		}
	}
	if err := h.cache.UpsertMany(ctx, entries); err != nil {
		h.logger.Warn("failed to cache enrichment values", map[string]interface{}{
			"entries": len(entries),
			"error":   err.Error(),
		})
	}
}

func (h *Handler) stateKey(state string) string {
	if code := h.tables.StateCode(state); code != "" {
		return code
	}
	return state
}

func flightKey(entities []models.EntityRecord, fields []string) string {
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)

	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.CacheKey()
	}
	return strings.Join(sorted, ",") + "|" + strings.Join(ids, ",")
}

func preview(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) > 200 {
		return string(r[:200]) + "..."
	}
	return string(r)
}
