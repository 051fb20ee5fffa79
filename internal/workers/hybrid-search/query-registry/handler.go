package queryregistry

import (
	"context"
	"errors"
	"time"

	apperrors "facility-search-workers/internal/common/errors"
	"facility-search-workers/internal/common/metrics"
	"facility-search-workers/internal/common/resilience"
	"facility-search-workers/internal/lookup"
	"facility-search-workers/internal/models"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

type Handler struct {
	config   *Config
	registry Registry
	tables   *lookup.Tables
	logger   Logger
}

func NewHandler(config *Config, registry Registry, tables *lookup.Tables, log Logger) *Handler {
	return &Handler{
		config:   config,
		registry: registry,
		tables:   tables,
		logger:   log,
	}
}

// Query runs the structured part of an intent against the registry. A
// backend failure is returned as a typed REGISTRY_* error; the caller decides
// what the user sees.
func (h *Handler) Query(ctx context.Context, intent models.ParsedIntent) (*Result, error) {
	start := time.Now()
	preds := BuildPredicates(intent, h.tables, h.config)
	available, missing := splitFields(intent.RequestedFields, h.tables)

	type page struct {
		rows  []models.EntityRecord
		total int
	}
	policy := resilience.Policy{Boundary: "registry", Timeout: h.config.Timeout}
	found, err := resilience.Call(ctx, policy, page{}, func(ctx context.Context) (page, error) {
		rows, total, err := h.registry.Search(ctx, preds)
		return page{rows: rows, total: total}, err
	})
	rows, total := found.rows, found.total
	if err != nil {
		backend := h.registry.Name()
		h.logger.Error("registry query failed", map[string]interface{}{
			"backend": backend,
			"error":   err.Error(),
		})
		if errors.Is(err, resilience.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewRegistryQueryTimeoutError(backend)
		}
		return nil, apperrors.NewRegistryQueryFailedError(backend, err)
	}

	if len(rows) > preds.Limit {
		rows = rows[:preds.Limit]
	}
	if rows == nil {
		rows = []models.EntityRecord{}
	}
	if total < len(rows) {
		total = len(rows)
	}
	metrics.RegistryRows.Observe(float64(len(rows)))

	result := &Result{
		Rows:            rows,
		TotalCount:      total,
		AvailableFields: available,
		MissingFields:   missing,
		Latency:         time.Since(start),
	}

	h.logger.Info("registry queried", map[string]interface{}{
		"backend":       h.registry.Name(),
		"rows":          len(rows),
		"total":         total,
		"limit":         preds.Limit,
		"missingFields": missing,
		"latencyMs":     result.Latency.Milliseconds(),
	})
	return result, nil
}
