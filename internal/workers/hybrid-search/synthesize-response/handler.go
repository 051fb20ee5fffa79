package synthesizeresponse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"facility-search-workers/internal/common/genai"
	"facility-search-workers/internal/common/metrics"
	"facility-search-workers/internal/common/resilience"
	"facility-search-workers/internal/lookup"
	"facility-search-workers/internal/models"
)

var ErrGarbledResponse = errors.New("SYNTHESIS_GARBLED_RESPONSE")

var (
	emphasisPattern = regexp.MustCompile(`\*\*([^*]*)\*\*|__([^_]*)__`)
	headingPattern  = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	bulletPattern   = regexp.MustCompile(`(?m)^(\s*)\*\s+`)
)

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

// Synthesize writes the user-facing answer. It always returns a non-empty
// answer: with no entities, or when generation fails or returns something
// unusable, a deterministic template is used instead.
func (h *Handler) Synthesize(ctx context.Context, in Input) *Output {
	score := h.ScoreComplexity(in)
	tier := h.tier(score)
	out := &Output{Tier: tier, Score: score}

	if len(in.Entities) == 0 {
		out.Answer = h.fallback(in)
		out.UsedFallback = true
		return out
	}
	metrics.SynthesisTier.WithLabelValues(string(tier)).Inc()

	policy := resilience.Policy{
		Boundary:   "synthesis",
		Timeout:    h.config.Timeout,
		MaxRetries: h.config.MaxRetries,
	}
	messages := h.messages(in)
	raw, err := resilience.Call(ctx, policy, "", func(ctx context.Context) (string, error) {
		return h.gen.Generate(ctx, genai.Request{
			Tier:        tier,
			Temperature: 0.7,
			MaxTokens:   h.config.MaxTokens,
			Messages:    messages,
		})
	})
	if err == nil {
		raw, err = clean(raw)
	}
	if err != nil {
		h.logger.Warn("synthesis failed, using template answer", map[string]interface{}{
			"tier":  string(tier),
			"error": err.Error(),
		})
		out.Answer = h.fallback(in)
		out.UsedFallback = true
		return out
	}

	out.Answer = raw
	return out
}

func (h *Handler) messages(in Input) []genai.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "User query: %q\n", in.Query)

	if window := models.RecentTurns(in.History, h.config.HistoryWindow); len(window) > 0 {
		b.WriteString("\nPrevious conversation:\n")
		for _, turn := range window {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
	}

	if in.TotalCount > len(in.Entities) {
		fmt.Fprintf(&b, "\nShowing %d of %d matching facilities.\n", len(in.Entities), in.TotalCount)
	}
	fmt.Fprintf(&b, "\nData:\n%s\n\nWrite the answer:", h.dataContext(in))

	return []genai.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}
}

// dataContext is the public view of the entities as indented JSON, cut at
// MaxDataChars. Provenance is left out so it cannot leak into the answer.
func (h *Handler) dataContext(in Input) string {
	docs := make([]map[string]interface{}, 0, len(in.Entities))
	for _, e := range in.Entities {
		doc := map[string]interface{}{"name": e.Name}
		for _, f := range []string{"address", "city", "state", "zip", "phone", "type", "category", "ownership"} {
			if v, _ := e.Structured(f); v != "" {
				doc[f] = v
			}
		}
		for _, f := range enrichmentOrder(e, in.RequestedFields) {
			v := e.Enrichment[f]
			if v.Resolved() {
				doc[f] = v.Value
			} else {
				doc[f] = nil
			}
		}
		docs = append(docs, doc)
	}

	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return "[]"
	}
	return truncate(string(data), h.config.MaxDataChars)
}

// clean strips markdown emphasis and rejects output that is not prose.
func clean(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return "", fmt.Errorf("%w: empty", ErrGarbledResponse)
	case !utf8.ValidString(s) || strings.ContainsRune(s, utf8.RuneError):
		return "", fmt.Errorf("%w: invalid text", ErrGarbledResponse)
	case strings.HasPrefix(s, "{") || strings.HasPrefix(s, "["):
		return "", fmt.Errorf("%w: structured output", ErrGarbledResponse)
	}

	s = emphasisPattern.ReplaceAllString(s, "$1$2")
	s = headingPattern.ReplaceAllString(s, "")
	s = bulletPattern.ReplaceAllString(s, "$1- ")
	return strings.TrimSpace(s), nil
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
