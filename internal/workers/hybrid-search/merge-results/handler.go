package mergeresults

import (
	"strings"

	"facility-search-workers/internal/lookup"
	"facility-search-workers/internal/models"
)

// CachedValues is satisfied by the enrichment cache's batch lookup.
type CachedValues interface {
	Get(entityID, field string) (models.CacheEntry, bool)
}

// FetchedValues is satisfied by the batch fetcher's result.
type FetchedValues interface {
	Get(entityID, field string) (models.FieldValue, bool)
}

type Logger interface {
	Info(msg string, fields map[string]interface{})
}

type Handler struct {
	tables *lookup.Tables
	logger Logger
}

func NewHandler(tables *lookup.Tables, log Logger) *Handler {
	return &Handler{tables: tables, logger: log}
}

// Merge attaches enrichment values to registry rows in row order. For each
// requested enrichment field a fresh value beats a cached one; with neither
// the field is present with a null value and unresolved provenance.
func (h *Handler) Merge(rows []models.EntityRecord, requested []string, cached CachedValues, fetched FetchedValues) []models.MergedEntity {
	enrichFields := h.enrichmentFields(requested)

	out := make([]models.MergedEntity, 0, len(rows))
	for _, row := range rows {
		merged := models.MergedEntity{EntityRecord: row}
		if len(enrichFields) > 0 {
			merged.Enrichment = make(map[string]models.FieldValue, len(enrichFields))
		}

		id := row.CacheKey()
		for _, f := range enrichFields {
			merged.Enrichment[f] = resolve(id, f, cached, fetched)
		}
		merged.DataQuality = h.dataQuality(merged, requested)
		out = append(out, merged)
	}
	return out
}

func (h *Handler) enrichmentFields(requested []string) []string {
	var out []string
	for _, f := range requested {
		if !h.tables.IsStructured(f) || h.tables.IsEnrichmentOnly(f) {
			out = append(out, f)
		}
	}
	return out
}

func resolve(id, field string, cached CachedValues, fetched FetchedValues) models.FieldValue {
	if fetched != nil {
		if v, ok := fetched.Get(id, field); ok && v.Resolved() {
			v.Provenance = models.ProvenanceFresh
			return v
		}
	}
	if cached != nil {
		if e, ok := cached.Get(id, field); ok {
			v := models.FieldValue{
				Value:      e.Value,
				Provenance: models.ProvenanceCache,
				Source:     e.Source,
				AsOf:       e.CachedAt.Format("2006-01-02"),
			}
			if v.Resolved() {
				return v
			}
		}
	}
	return models.FieldValue{Value: nil, Provenance: models.ProvenanceUnresolved}
}

// dataQuality is the percentage of requested fields that hold a value.
func (h *Handler) dataQuality(m models.MergedEntity, requested []string) int {
	if len(requested) == 0 {
		return 100
	}
	resolved := 0
	for _, f := range requested {
		if v, ok := m.Structured(f); ok && !h.tables.IsEnrichmentOnly(f) {
			if strings.TrimSpace(v) != "" {
				resolved++
			}
			continue
		}
		if m.Field(f).Resolved() {
			resolved++
		}
	}
	return resolved * 100 / len(requested)
}

// ApplyRanges drops entities whose resolved numeric value for a ranged field
// falls outside the range. Entities without a value for the field are kept.
func (h *Handler) ApplyRanges(entities []models.MergedEntity, ranges map[string]models.NumericRange) []models.MergedEntity {
	if len(ranges) == 0 {
		return entities
	}

	out := make([]models.MergedEntity, 0, len(entities))
	for _, e := range entities {
		if inRanges(e, ranges) {
			out = append(out, e)
		}
	}
	if dropped := len(entities) - len(out); dropped > 0 {
		h.logger.Info("entities outside requested ranges removed", map[string]interface{}{
			"dropped": dropped,
			"kept":    len(out),
		})
	}
	return out
}

func inRanges(e models.MergedEntity, ranges map[string]models.NumericRange) bool {
	for field, r := range ranges {
		n, ok := e.Field(field).Number()
		if ok && !r.Contains(n) {
			return false
		}
	}
	return true
}
