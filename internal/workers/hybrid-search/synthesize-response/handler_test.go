package synthesizeresponse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"facility-search-workers/internal/common/genai"
	"facility-search-workers/internal/lookup"
	"facility-search-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestLogger struct {
	t *testing.T
}

func (l *TestLogger) Info(msg string, fields map[string]interface{})  { l.t.Logf("INFO: %s %v", msg, fields) }
func (l *TestLogger) Warn(msg string, fields map[string]interface{})  { l.t.Logf("WARN: %s %v", msg, fields) }
func (l *TestLogger) Error(msg string, fields map[string]interface{}) { l.t.Logf("ERROR: %s %v", msg, fields) }

type stubGenerator struct {
	answer   string
	err      error
	requests []genai.Request
}

func (s *stubGenerator) Generate(ctx context.Context, req genai.Request) (string, error) {
	s.requests = append(s.requests, req)
	return s.answer, s.err
}

func createTestConfig() *Config {
	cfg := LoadConfig()
	cfg.Timeout = time.Second
	cfg.MaxRetries = 0
	return cfg
}

func newTestHandler(t *testing.T, gen *stubGenerator) *Handler {
	return NewHandler(createTestConfig(), gen, lookup.Default(), &TestLogger{t: t})
}

func entity(i int, enrichment map[string]models.FieldValue) models.MergedEntity {
	return models.MergedEntity{
		EntityRecord: models.EntityRecord{
			ExternalID:   fmt.Sprintf("%d", 1000+i),
			Name:         fmt.Sprintf("Facility %d", i),
			Address:      fmt.Sprintf("%d Main St", i),
			City:         "Sacramento",
			StateCode:    "CA",
			Phone:        "916-555-0100",
			FacilityType: "Mental Health Clinic",
		},
		Enrichment: enrichment,
	}
}

func entities(n int, enrichment map[string]models.FieldValue) []models.MergedEntity {
	out := make([]models.MergedEntity, n)
	for i := range out {
		out[i] = entity(i+1, enrichment)
	}
	return out
}

var resolvedBeds = map[string]models.FieldValue{
	"beds": {Value: json.RawMessage(`120`), Provenance: models.ProvenanceFresh},
}

var unresolvedBeds = map[string]models.FieldValue{
	"beds": {Provenance: models.ProvenanceUnresolved},
}

func turns(contents ...string) []models.ConversationTurn {
	out := make([]models.ConversationTurn, len(contents))
	for i, c := range contents {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		out[i] = models.ConversationTurn{Role: role, Content: c}
	}
	return out
}

func TestScoreComplexity(t *testing.T) {
	h := newTestHandler(t, &stubGenerator{})

	tests := []struct {
		name  string
		in    Input
		score int
		tier  genai.Tier
	}{
		{"simple lookup", Input{Query: "find Bellevue", Entities: entities(1, nil)}, 0, genai.TierLow},
		{"many results", Input{Query: "list clinics", Entities: entities(6, nil)}, 2, genai.TierLow},
		{"exactly threshold results", Input{Query: "list clinics", Entities: entities(5, nil)}, 0, genai.TierLow},
		{"many results enriched", Input{Query: "list clinics", Entities: entities(6, resolvedBeds)}, 4, genai.TierHigh},
		{"unresolved enrichment does not count", Input{Query: "list clinics", Entities: entities(6, unresolvedBeds)}, 2, genai.TierLow},
		{"comparison in query", Input{Query: "compare these two", Entities: entities(2, nil)}, 3, genai.TierLow},
		{"vs in query", Input{Query: "Kaiser vs Sutter", Entities: entities(2, nil)}, 3, genai.TierLow},
		{"long conversation with comparison", Input{
			Query:    "and their phone numbers",
			History:  turns("a", "b", "c", "d", "e", "which is better for kids?", "ok"),
			Entities: entities(2, nil),
		}, 4, genai.TierHigh},
		{"comparison outside recent turns ignored", Input{
			Query:    "phone numbers",
			History:  turns("compare them", "sure", "thanks"),
			Entities: entities(2, nil),
		}, 0, genai.TierLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := h.ScoreComplexity(tt.in)
			assert.Equal(t, tt.score, score)
			assert.Equal(t, tt.tier, h.tier(score))
		})
	}
}

func TestScoreComplexity_WeightsConfigurable(t *testing.T) {
	h := newTestHandler(t, &stubGenerator{})
	h.config.Weights.Comparison = 10
	h.config.ComplexityCutoff = 11

	score := h.ScoreComplexity(Input{Query: "compare", Entities: entities(6, nil)})
	assert.Equal(t, 12, score)
	assert.Equal(t, genai.TierHigh, h.tier(score))
}

func TestSynthesize_NoResults(t *testing.T) {
	gen := &stubGenerator{answer: "There are 3 great clinics nearby!"}
	out := newTestHandler(t, gen).Synthesize(context.Background(), Input{Query: "dialysis in Nowhere"})

	assert.Equal(t, noResultsAnswer, out.Answer)
	assert.True(t, out.UsedFallback)
	assert.Empty(t, gen.requests, "no generation without data")
}

func TestSynthesize_UnavailableFieldFlagged(t *testing.T) {
	gen := &stubGenerator{err: errors.New("503 service unavailable")}
	out := newTestHandler(t, gen).Synthesize(context.Background(), Input{
		Query:           "how many beds does Facility 1 have",
		Entities:        entities(1, unresolvedBeds),
		RequestedFields: []string{"beds"},
	})

	assert.True(t, out.UsedFallback)
	assert.Contains(t, out.Answer, "I found Facility 1 in Sacramento, CA.")
	assert.Contains(t, out.Answer, "Beds: not available")
	assert.Contains(t, out.Answer, "Contact: 916-555-0100")
	assert.NotContains(t, out.Answer, "503")
}

func TestSynthesize_GeneratedAnswer(t *testing.T) {
	gen := &stubGenerator{answer: "## Results\n\n**Facility 1** has 120 beds.\n* Phone: 916-555-0100\n\nWant more?"}
	h := newTestHandler(t, gen)

	out := h.Synthesize(context.Background(), Input{
		Query:           "compare bed counts",
		History:         turns("mental health clinics in California", "Here are some clinics."),
		Entities:        entities(6, resolvedBeds),
		RequestedFields: []string{"beds"},
		TotalCount:      40,
	})

	assert.False(t, out.UsedFallback)
	assert.Equal(t, "Results\n\nFacility 1 has 120 beds.\n- Phone: 916-555-0100\n\nWant more?", out.Answer)
	assert.Equal(t, genai.TierHigh, out.Tier)

	require.Len(t, gen.requests, 1)
	req := gen.requests[0]
	assert.Equal(t, genai.TierHigh, req.Tier)
	user := req.Messages[1].Content
	assert.Contains(t, user, `User query: "compare bed counts"`)
	assert.Contains(t, user, "user: mental health clinics in California")
	assert.Contains(t, user, "Showing 6 of 40 matching facilities.")
	assert.Contains(t, user, `"beds": 120`)
	assert.NotContains(t, user, "provenance")
	assert.NotContains(t, user, "fresh_fetch")
}

func TestSynthesize_GarbledOutputFallsBack(t *testing.T) {
	for _, raw := range []string{"", "   ", `{"answer":"x"}`, `[1,2]`, "caf�"} {
		t.Run(raw, func(t *testing.T) {
			out := newTestHandler(t, &stubGenerator{answer: raw}).Synthesize(context.Background(), Input{
				Query:    "clinics",
				Entities: entities(2, nil),
			})
			assert.True(t, out.UsedFallback)
			assert.NotEmpty(t, out.Answer)
		})
	}
}

func TestFallback_List(t *testing.T) {
	h := newTestHandler(t, &stubGenerator{})

	answer := h.fallback(Input{
		Entities:        entities(8, unresolvedBeds),
		RequestedFields: []string{"beds"},
		TotalCount:      20,
	})

	assert.True(t, strings.HasPrefix(answer, "I found 20 facilities matching your query:"))
	assert.Contains(t, answer, "1. Facility 1\n   - Location: 1 Main St, Sacramento, CA\n   - Phone: 916-555-0100\n   - Beds: not available")
	assert.Contains(t, answer, "5. Facility 5")
	assert.NotContains(t, answer, "6. Facility 6")
	assert.Contains(t, answer, "...and 15 more facilities.")
}

func TestFallback_SingleWithoutLocation(t *testing.T) {
	h := newTestHandler(t, &stubGenerator{})
	e := models.MergedEntity{EntityRecord: models.EntityRecord{Name: "Unnamed Annex"}}

	answer := h.fallback(Input{Entities: []models.MergedEntity{e}})
	assert.True(t, strings.HasPrefix(answer, "I found Unnamed Annex.\n"))
	assert.Contains(t, answer, "Contact: Not available")
	assert.Contains(t, answer, "Type: Healthcare provider")
}

func TestRenderValue(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`120`, "120"},
		{`4.5`, "4.5"},
		{`"Level I"`, "Level I"},
		{`true`, "Yes"},
		{`["Cardiology","Oncology"]`, "Cardiology, Oncology"},
		{`null`, "not available"},
		{``, "not available"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, renderValue(models.FieldValue{Value: json.RawMessage(tt.raw)}), tt.raw)
	}
}

func TestDataContext_Capped(t *testing.T) {
	h := newTestHandler(t, &stubGenerator{})
	long := map[string]models.FieldValue{
		"services": {Value: json.RawMessage(`"` + strings.Repeat("é", 500) + `"`)},
	}

	data := h.dataContext(Input{Entities: entities(40, long), RequestedFields: []string{"services"}})
	assert.LessOrEqual(t, len(data), 8000)
	assert.True(t, strings.HasPrefix(data, "["))
	assert.True(t, json.Valid([]byte(h.dataContext(Input{Entities: entities(1, nil)}))))
}
