package normalizeintent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"facility-search-workers/internal/common/genai"
	"facility-search-workers/internal/common/resilience"
	"facility-search-workers/internal/common/validation"
	"facility-search-workers/internal/lookup"
	"facility-search-workers/internal/models"
)

var (
	ErrIntentParsingFailed = errors.New("INTENT_PARSING_FAILED")
	ErrSchemaMismatch      = errors.New("INTENT_SCHEMA_MISMATCH")
)

var intentSchema = validation.MustSchemaValidator(extractionSchema)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

type Handler struct {
	config *Config
	gen    genai.Generator
	tables *lookup.Tables
	logger Logger
}

func NewHandler(config *Config, gen genai.Generator, tables *lookup.Tables, log Logger) *Handler {
	return &Handler{
		config: config,
		gen:    gen,
		tables: tables,
		logger: log,
	}
}

// Normalize turns one user turn into a ParsedIntent. It never fails: a
// broken backend degrades to keyword heuristics over the same text.
func (h *Handler) Normalize(ctx context.Context, text string, history []models.ConversationTurn) models.ParsedIntent {
	original := strings.TrimSpace(text)
	window := h.contextWindow(history)

	var intent models.ParsedIntent
	corrected := original
	if original != "" {
		corrected = h.correctSpelling(ctx, original)

		extracted, err := h.extract(ctx, corrected, window)
		if err != nil {
			h.logger.Warn("intent extraction failed, using heuristics", map[string]interface{}{
				"error": err.Error(),
			})
			extracted = h.heuristicIntent(corrected)
		}
		intent = extracted
	} else {
		intent = models.ParsedIntent{Source: models.SourceHeuristic}
	}

	intent.OriginalText = original
	intent.NormalizedText = corrected

	h.carryForward(&intent, corrected, window)
	h.finalize(&intent)
	return intent
}

func (h *Handler) policy(boundary string, retries int) resilience.Policy {
	return resilience.Policy{
		Boundary:   boundary,
		Timeout:    h.config.Timeout,
		MaxRetries: retries,
	}
}

// correctSpelling is best effort: any failure or implausible rewrite keeps
// the original text.
func (h *Handler) correctSpelling(ctx context.Context, text string) string {
	corrected, err := resilience.Call(ctx, h.policy("spelling_correction", 0), text,
		func(ctx context.Context) (string, error) {
			return h.gen.Generate(ctx, genai.Request{
				Tier:        genai.TierLow,
				Temperature: 0,
				MaxTokens:   200,
				Messages: []genai.Message{
					{Role: "system", Content: spellingPrompt},
					{Role: "user", Content: text},
				},
			})
		})
	if err != nil {
		return text
	}

	corrected = strings.Trim(strings.TrimSpace(corrected), `"'`)
	if corrected == "" || len(corrected) > 2*len(text)+20 {
		return text
	}
	return corrected
}

func (h *Handler) extract(ctx context.Context, text string, window []models.ConversationTurn) (models.ParsedIntent, error) {
	messages := []genai.Message{{Role: "system", Content: h.extractionPrompt()}}
	for _, turn := range window {
		messages = append(messages, genai.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, genai.Message{Role: "user", Content: text})

	raw, err := resilience.Call(ctx, h.policy("intent_extraction", h.config.MaxRetries), "",
		func(ctx context.Context) (string, error) {
			return h.gen.Generate(ctx, genai.Request{
				Tier:        genai.TierLow,
				Messages:    messages,
				JSONMode:    true,
				Temperature: 0.1,
				MaxTokens:   500,
			})
		})
	if err != nil {
		return models.ParsedIntent{}, fmt.Errorf("%w: %v", ErrIntentParsingFailed, err)
	}
	return parseExtraction(raw)
}

// parseExtraction validates the backend's JSON against the extraction
// schema before trusting any field of it.
func parseExtraction(raw string) (models.ParsedIntent, error) {
	doc, ok := genai.ExtractJSON(raw, '{')
	if !ok {
		return models.ParsedIntent{}, fmt.Errorf("%w: no JSON object in response", ErrIntentParsingFailed)
	}

	result, err := intentSchema.ValidateBytes([]byte(doc))
	if err != nil {
		return models.ParsedIntent{}, fmt.Errorf("%w: %v", ErrIntentParsingFailed, err)
	}
	if !result.Valid {
		return models.ParsedIntent{}, fmt.Errorf("%w: %s", ErrSchemaMismatch, result.Summary())
	}

	var ex extraction
	if err := json.Unmarshal([]byte(doc), &ex); err != nil {
		return models.ParsedIntent{}, fmt.Errorf("%w: %v", ErrIntentParsingFailed, err)
	}

	intent := models.ParsedIntent{
		Intent: coerceIntent(ex.Intent),
		Entity: models.EntityRef{
			Name:       strings.TrimSpace(ex.Entity.Name),
			ExternalID: strings.TrimSpace(ex.Entity.ExternalID),
		},
		Location: models.Location{
			City:  ex.Location.City,
			State: ex.Location.State,
			Zip:   ex.Location.Zip,
		},
		Filters: models.Filters{
			FacilityTypes: ex.Filters.FacilityTypes,
			Ownership:     ex.Filters.Ownership,
		},
		RequestedFields: ex.RequestedFields,
		Limit:           ex.Limit,
		Source:          models.SourceExtraction,
	}
	for field, b := range ex.Filters.Ranges {
		if b.Min == nil && b.Max == nil {
			continue
		}
		if intent.Filters.Ranges == nil {
			intent.Filters.Ranges = make(map[string]models.NumericRange)
		}
		intent.Filters.Ranges[field] = models.NumericRange{Min: b.Min, Max: b.Max}
	}
	return intent, nil
}

func coerceIntent(raw string) models.IntentKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "lookup", "facility_lookup", "detail", "details":
		return models.IntentLookup
	case "compare", "comparison":
		return models.IntentCompare
	case "analyze", "analysis", "analyse":
		return models.IntentAnalyze
	default:
		return models.IntentList
	}
}

func (h *Handler) contextWindow(history []models.ConversationTurn) []models.ConversationTurn {
	recent := models.RecentTurns(history, h.config.HistoryWindow)
	out := make([]models.ConversationTurn, 0, len(recent))
	for _, turn := range recent {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		if h.config.MaxTurnChars > 0 && len(content) > h.config.MaxTurnChars {
			content = truncate(content, h.config.MaxTurnChars)
		}
		role := turn.Role
		if role != models.RoleAssistant {
			role = models.RoleUser
		}
		out = append(out, models.ConversationTurn{Role: role, Content: content})
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a UTF-8 rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// finalize canonicalizes whatever path produced the intent so downstream
// stages see one vocabulary.
func (h *Handler) finalize(p *models.ParsedIntent) {
	if !p.Intent.Valid() {
		p.Intent = models.IntentList
	}
	p.Entity.Name = strings.TrimSpace(p.Entity.Name)
	p.Location = h.tables.ResolveLocation(p.Location)
	p.Filters.FacilityTypes = h.tables.ExpandFacilityTypes(p.Filters.FacilityTypes)
	p.Filters.Ownership = dedupe(p.Filters.Ownership, strings.TrimSpace)

	fields := dedupe(p.RequestedFields, h.tables.CanonicalField)
	if len(p.Filters.Ranges) > 0 {
		keys := make([]string, 0, len(p.Filters.Ranges))
		for field := range p.Filters.Ranges {
			keys = append(keys, field)
		}
		sort.Strings(keys)

		ranges := make(map[string]models.NumericRange, len(keys))
		for _, field := range keys {
			canonical := h.tables.CanonicalField(field)
			ranges[canonical] = p.Filters.Ranges[field]
			fields = dedupe(append(fields, canonical), h.tables.CanonicalField)
		}
		p.Filters.Ranges = ranges
	}
	if len(fields) == 0 {
		fields = append([]string(nil), h.config.DefaultFields...)
	}
	p.RequestedFields = fields

	if p.Limit <= 0 {
		p.Limit = h.config.DefaultLimit
	}
	if p.Source == "" {
		p.Source = models.SourceHeuristic
	}
}

func dedupe(values []string, norm func(string) string) []string {
	var out []string
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		n := norm(v)
		if n == "" || seen[strings.ToLower(n)] {
			continue
		}
		seen[strings.ToLower(n)] = true
		out = append(out, n)
	}
	return out
}
