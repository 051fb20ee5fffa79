package resolvequery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	apperrors "facility-search-workers/internal/common/errors"
	"facility-search-workers/internal/common/metrics"
	"facility-search-workers/internal/common/observability"
	"facility-search-workers/internal/common/validation"
	"facility-search-workers/internal/models"
	batchenrich "facility-search-workers/internal/workers/hybrid-search/batch-enrich"
	enrichmentcache "facility-search-workers/internal/workers/hybrid-search/enrichment-cache"
	queryregistry "facility-search-workers/internal/workers/hybrid-search/query-registry"
	synthesizeresponse "facility-search-workers/internal/workers/hybrid-search/synthesize-response"
)

const (
	clarificationAnswer = "What kind of facility are you looking for, and where? For example, \"urgent care in Manhattan\" or \"hospitals in Austin, TX\"."
	searchFailedAnswer  = "I couldn't complete this search right now. Please try again in a moment."
)

const (
	outcomeAnswered      = "answered"
	outcomeDegraded      = "degraded"
	outcomeNoResults     = "no_results"
	outcomeClarification = "clarification"
	outcomeRegistryError = "registry_error"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

type Handler struct {
	config *Config
	stages Stages
	obs    *observability.Observability
	jobs   *jobRunner
	logger Logger
}

func NewHandler(config *Config, stages Stages, obs *observability.Observability, log Logger) *Handler {
	return &Handler{
		config: config,
		stages: stages,
		obs:    obs,
		jobs:   newJobRunner(TaskType, log),
		logger: log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := h.jobs.decode(job, &input); err != nil {
		h.jobs.fail(client, job, err)
		return
	}
	if err := h.validate(&input); err != nil {
		h.jobs.fail(client, job, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.jobs.complete(client, job, h.Resolve(ctx, input.Query, input.History))
}

// WithInputSchema makes Handle reject jobs whose variables fail v.
func (h *Handler) WithInputSchema(v *validation.SchemaValidator) *Handler {
	h.jobs.schema = v
	return h
}

func (h *Handler) validate(input *Input) error {
	if h.config.MaxQueryChars > 0 && len([]rune(input.Query)) > h.config.MaxQueryChars {
		return apperrors.NewInvalidInputError(fmt.Sprintf("query exceeds %d characters", h.config.MaxQueryChars))
	}
	for i, turn := range input.History {
		if turn.Role != models.RoleUser && turn.Role != models.RoleAssistant {
			return apperrors.NewInvalidInputError(fmt.Sprintf("history[%d]: unknown role %q", i, turn.Role))
		}
	}
	input.History = models.RecentTurns(input.History, h.config.MaxHistory)
	return nil
}

// Resolve answers one user turn. It always returns an answer: only a registry
// failure changes what the user is told, every other stage degrades in place.
func (h *Handler) Resolve(ctx context.Context, queryText string, history []models.ConversationTurn) *Output {
	start := time.Now()
	run := &run{
		handler: h,
		diag: models.Diagnostics{
			RequestID:      uuid.NewString(),
			StageLatencies: make(map[string]time.Duration),
		},
	}
	out := &Output{Entities: []models.MergedEntity{}}

	if strings.TrimSpace(queryText) == "" {
		run.skip(models.StageNormalize, models.StageQuery, models.StageCache, models.StageFetch, models.StageMerge, models.StageSynthesize)
		out.Answer = clarificationAnswer
		return run.finish(ctx, out, start, outcomeClarification)
	}

	var intent models.ParsedIntent
	run.stage(ctx, models.StageNormalize, func(ctx context.Context) {
		intent = h.stages.Normalizer.Normalize(ctx, queryText, history)
	})
	run.diag.CorrectedQuery = intent.NormalizedText
	run.diag.Intent = intent.Intent
	run.diag.IntentSource = intent.Source
	if intent.Source == models.SourceHeuristic {
		run.degrade(ctx, models.StageNormalize)
	}

	var res *queryregistry.Result
	var err error
	run.stage(ctx, models.StageQuery, func(ctx context.Context) {
		res, err = h.stages.Registry.Query(ctx, intent)
	})
	if err != nil {
		stdErr := apperrors.AsStandardError(err)
		run.diag.ErrorCode = string(stdErr.Code)
		h.logger.Warn("registry unavailable, answering without results", map[string]interface{}{
			"request_id": run.diag.RequestID,
			"errorCode":  stdErr.Code,
		})
		run.skip(models.StageCache, models.StageFetch, models.StageMerge, models.StageSynthesize)
		out.Answer = searchFailedAnswer
		return run.finish(ctx, out, start, outcomeRegistryError)
	}
	run.diag.ResultCount = len(res.Rows)
	run.diag.TotalCount = res.TotalCount
	run.diag.MissingFields = res.MissingFields

	var cached *enrichmentcache.Lookup
	var fetched *batchenrich.Result
	if len(res.Rows) > 0 && len(res.MissingFields) > 0 {
		cached, fetched = h.enrich(ctx, run, queryText, res, intent.Filters.Ranges)
	} else {
		run.skip(models.StageCache, models.StageFetch)
	}

	var merged []models.MergedEntity
	run.stage(ctx, models.StageMerge, func(ctx context.Context) {
		merged = h.stages.Merger.Merge(res.Rows, intent.RequestedFields, cached, fetched)
		merged = h.stages.Merger.ApplyRanges(merged, intent.Filters.Ranges)
	})

	total := res.TotalCount
	if len(merged) < len(res.Rows) {
		total = len(merged)
	}

	var synth *synthesizeresponse.Output
	run.stage(ctx, models.StageSynthesize, func(ctx context.Context) {
		synth = h.stages.Synthesizer.Synthesize(ctx, synthesizeresponse.Input{
			Query:           queryText,
			History:         history,
			Entities:        merged,
			RequestedFields: intent.RequestedFields,
			TotalCount:      total,
		})
	})
	run.diag.Tier = string(synth.Tier)
	if synth.UsedFallback && len(merged) > 0 {
		run.degrade(ctx, models.StageSynthesize)
	}

	out.Answer = synth.Answer
	out.Entities = merged

	outcome := outcomeAnswered
	switch {
	case len(merged) == 0:
		outcome = outcomeNoResults
	case len(run.diag.DegradedStages) > 0:
		outcome = outcomeDegraded
	}
	return run.finish(ctx, out, start, outcome)
}

// enrich checks the cache for every missing field and fetches only what it
// could not answer.
func (h *Handler) enrich(ctx context.Context, run *run, queryText string, res *queryregistry.Result, ranges map[string]models.NumericRange) (*enrichmentcache.Lookup, *batchenrich.Result) {
	ids := make([]string, len(res.Rows))
	for i, row := range res.Rows {
		ids[i] = row.CacheKey()
	}

	var cached *enrichmentcache.Lookup
	run.stage(ctx, models.StageCache, func(ctx context.Context) {
		cached = h.stages.Cache.BatchGet(ctx, ids, res.MissingFields)
	})
	if cached != nil {
		run.diag.CacheHits = cached.Hits
		run.diag.CacheMisses = cached.Misses
	}

	entities, fields := pending(res.Rows, res.MissingFields, cached.Missing(ids, res.MissingFields))
	if len(entities) == 0 {
		run.skip(models.StageFetch)
		return cached, nil
	}

	var fetched *batchenrich.Result
	run.stage(ctx, models.StageFetch, func(ctx context.Context) {
		fetched = h.stages.Fetcher.Fetch(ctx, batchenrich.Request{
			Query:    queryText,
			Entities: entities,
			Fields:   fields,
			Criteria: ranges,
		})
	})
	if fetched != nil {
		run.diag.FetchedEntities = fetched.Matched
		if fetched.ErrorCode != "" {
			run.degrade(ctx, models.StageFetch)
		}
	}
	return cached, fetched
}

// pending returns, in row order, the entities with at least one field the
// cache could not answer, and the union of those fields in request order.
func pending(rows []models.EntityRecord, fields []string, missing map[string][]string) ([]models.EntityRecord, []string) {
	want := make(map[string]bool)
	var entities []models.EntityRecord
	for _, row := range rows {
		m, ok := missing[row.CacheKey()]
		if !ok {
			continue
		}
		entities = append(entities, row)
		for _, f := range m {
			want[f] = true
		}
	}

	var out []string
	for _, f := range fields {
		if want[f] {
			out = append(out, f)
		}
	}
	return entities, out
}

// run carries the per-request diagnostics through the stages.
type run struct {
	handler *Handler
	diag    models.Diagnostics
}

func (r *run) stage(ctx context.Context, name string, fn func(ctx context.Context)) {
	ctx, span := r.handler.obs.StartStage(ctx, name)
	start := time.Now()
	fn(ctx)
	elapsed := time.Since(start)
	span.End()

	r.diag.StageLatencies[name] = elapsed
	metrics.ObserveStage(name, elapsed)
	r.handler.logger.Info("stage completed", map[string]interface{}{
		"request_id":  r.diag.RequestID,
		"stage":       name,
		"duration_ms": elapsed.Milliseconds(),
	})
}

func (r *run) skip(stages ...string) {
	for _, s := range stages {
		r.diag.Skip(s)
	}
}

func (r *run) degrade(ctx context.Context, stage string) {
	r.diag.Degrade(stage)
	r.handler.obs.RecordDegraded(ctx, stage)
}

func (r *run) finish(ctx context.Context, out *Output, start time.Time, outcome string) *Output {
	elapsed := time.Since(start)
	out.Diagnostics = r.diag

	metrics.PipelineRequests.WithLabelValues(outcome).Inc()
	r.handler.obs.RecordRun(ctx, elapsed, outcome)
	r.handler.logger.Info("query resolved", map[string]interface{}{
		"request_id":  r.diag.RequestID,
		"outcome":     outcome,
		"results":     len(out.Entities),
		"total":       r.diag.TotalCount,
		"cacheHits":   r.diag.CacheHits,
		"cacheMisses": r.diag.CacheMisses,
		"fetched":     r.diag.FetchedEntities,
		"tier":        r.diag.Tier,
		"degraded":    r.diag.DegradedStages,
		"duration_ms": elapsed.Milliseconds(),
	})
	return out
}
