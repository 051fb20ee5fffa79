package normalizeintent

import (
	"context"
	"errors"
	"strings"
	"sync"
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

// stubGenerator answers spelling requests by echoing the user text unless
// spell is set, and extraction requests with extract.
type stubGenerator struct {
	mu       sync.Mutex
	spell    func(text string) (string, error)
	extract  func(req genai.Request) (string, error)
	requests []genai.Request
}

func (s *stubGenerator) Generate(ctx context.Context, req genai.Request) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	last := req.Messages[len(req.Messages)-1].Content
	if !req.JSONMode {
		if s.spell != nil {
			return s.spell(last)
		}
		return last, nil
	}
	if s.extract != nil {
		return s.extract(req)
	}
	return "", errors.New("extraction backend unreachable")
}

func downGenerator() *stubGenerator {
	fail := func(string) (string, error) { return "", errors.New("connection refused") }
	return &stubGenerator{spell: fail}
}

func jsonGenerator(doc string) *stubGenerator {
	return &stubGenerator{extract: func(genai.Request) (string, error) { return doc, nil }}
}

func createTestConfig() *Config {
	cfg := LoadConfig()
	cfg.Timeout = time.Second
	cfg.MaxRetries = 0
	return cfg
}

func newTestHandler(t *testing.T, gen genai.Generator) *Handler {
	return NewHandler(createTestConfig(), gen, lookup.Default(), &TestLogger{t: t})
}

func TestNormalize_AlwaysWellFormed(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"asdkjh qwe",
		"Find urgent care in Manhattan",
		strings.Repeat("hospital ", 500),
		`{"intent": "drop table"}`,
	}

	for _, gen := range []*stubGenerator{downGenerator(), jsonGenerator("not json at all"), jsonGenerator(`{"intent": 5}`)} {
		h := newTestHandler(t, gen)
		for _, in := range inputs {
			intent := h.Normalize(context.Background(), in, nil)
			assert.True(t, intent.Intent.Valid(), "input %q", in)
			assert.NotEmpty(t, intent.RequestedFields, "input %q", in)
			assert.Equal(t, 10, intent.Limit, "input %q", in)
			assert.Equal(t, models.SourceHeuristic, intent.Source, "input %q", in)
		}
	}
}

func TestNormalize_UrgentCareInManhattan(t *testing.T) {
	tests := []struct {
		name       string
		gen        *stubGenerator
		wantSource models.IntentSource
	}{
		{
			name:       "extraction",
			gen:        jsonGenerator(`{"intent":"list_facilities","location":{"city":"Manhattan","state":null},"filters":{"facilityTypes":["urgent care"]},"requestedFields":[]}`),
			wantSource: models.SourceExtraction,
		},
		{
			name:       "heuristic fallback",
			gen:        downGenerator(),
			wantSource: models.SourceHeuristic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := newTestHandler(t, tt.gen).Normalize(context.Background(), "Find urgent care in Manhattan", nil)

			assert.Equal(t, tt.wantSource, intent.Source)
			assert.Equal(t, models.IntentList, intent.Intent)
			assert.Equal(t, "New York", intent.Location.City)
			assert.Equal(t, "New York", intent.Location.State)
			assert.Equal(t, []string{"Urgent Care", "Urgent Care Center"}, intent.Filters.FacilityTypes)
			assert.Equal(t, []string{"name", "address", "phone"}, intent.RequestedFields)
		})
	}
}

func TestNormalize_CarriesContextIntoEllipticalTurn(t *testing.T) {
	history := []models.ConversationTurn{
		{Role: models.RoleUser, Content: "mental health clinics in California"},
		{Role: models.RoleAssistant, Content: "I found 12 mental health clinics, including one in Los Angeles and two in Chicago."},
	}

	tests := []struct {
		name string
		gen  *stubGenerator
	}{
		{name: "heuristic fallback", gen: downGenerator()},
		{name: "extraction without context", gen: jsonGenerator(`{"intent":"list","requestedFields":["bed_count"]}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := newTestHandler(t, tt.gen).Normalize(context.Background(), "how many beds do these have", history)

			assert.Contains(t, intent.Filters.FacilityTypes, "Mental Health Clinic")
			assert.Equal(t, "California", intent.Location.State)
			assert.Empty(t, intent.Location.City, "assistant turns are not a source of context")
			assert.Equal(t, []string{"beds"}, intent.RequestedFields)
			assert.True(t, intent.CarriedForward)
		})
	}
}

func TestNormalize_CarryForwardUsesMostRecentSpecifyingTurn(t *testing.T) {
	history := []models.ConversationTurn{
		{Role: models.RoleUser, Content: "hospitals in Texas"},
		{Role: models.RoleAssistant, Content: "Here are 10 hospitals."},
		{Role: models.RoleUser, Content: "what about pharmacies in Boston"},
		{Role: models.RoleAssistant, Content: "Here are 4 pharmacies."},
	}

	intent := newTestHandler(t, downGenerator()).Normalize(context.Background(), "what are their phone numbers", history)
	assert.Equal(t, "Boston", intent.Location.City)
	assert.Equal(t, []string{"Pharmacy", "Drug Store"}, intent.Filters.FacilityTypes)
	assert.Equal(t, []string{"phone"}, intent.RequestedFields)
}

func TestNormalize_CarriesOwnershipForward(t *testing.T) {
	history := []models.ConversationTurn{
		{Role: models.RoleUser, Content: "nonprofit hospitals in Texas"},
		{Role: models.RoleAssistant, Content: "Here are 8 hospitals."},
	}

	intent := newTestHandler(t, downGenerator()).Normalize(context.Background(), "what about in Austin", history)
	assert.Equal(t, "Austin", intent.Location.City)
	assert.Equal(t, []string{"Non-Profit"}, intent.Filters.Ownership)
	assert.Contains(t, intent.Filters.FacilityTypes, "Hospital")
	assert.True(t, intent.CarriedForward)
}

func TestNormalize_NoCarryForwardForSelfContainedTurn(t *testing.T) {
	history := []models.ConversationTurn{{Role: models.RoleUser, Content: "hospitals in Texas"}}

	intent := newTestHandler(t, downGenerator()).Normalize(context.Background(), "pharmacies in Chicago", history)
	assert.Equal(t, "Illinois", intent.Location.State)
	assert.False(t, intent.CarriedForward)
}

func TestNormalize_SpellingCorrection(t *testing.T) {
	gen := &stubGenerator{
		spell: func(string) (string, error) { return `"Find urgent care in Manhattan"`, nil },
	}
	intent := newTestHandler(t, gen).Normalize(context.Background(), "Find urgnt care in Manhatan", nil)

	assert.Equal(t, "Find urgnt care in Manhatan", intent.OriginalText)
	assert.Equal(t, "Find urgent care in Manhattan", intent.NormalizedText)
	assert.Equal(t, "New York", intent.Location.City)
}

func TestNormalize_SpellingCorrectionFailsOpen(t *testing.T) {
	tests := []struct {
		name  string
		spell func(string) (string, error)
	}{
		{"backend error", func(string) (string, error) { return "", errors.New("503") }},
		{"blank answer", func(string) (string, error) { return "  ", nil }},
		{"runaway answer", func(string) (string, error) { return strings.Repeat("I think you meant ", 20), nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := newTestHandler(t, &stubGenerator{spell: tt.spell}).Normalize(context.Background(), "clinics in Ohio", nil)
			assert.Equal(t, "clinics in Ohio", intent.NormalizedText)
			assert.Equal(t, "Ohio", intent.Location.State)
		})
	}
}

func TestNormalize_ExtractionDetails(t *testing.T) {
	gen := jsonGenerator("```json\n" + `{
		"intent": "comparison",
		"entity": {"name": "  Mercy Hospital ", "externalId": null},
		"location": {"city": "LA", "state": null, "zip": null},
		"filters": {"facilityTypes": ["Hospitals"], "ownership": ["Non-Profit", "Non-Profit"], "ranges": {"bed_count": {"min": 100, "max": null}}},
		"requestedFields": ["name", "Phone", "phone"],
		"limit": 250
	}` + "\n```")

	intent := newTestHandler(t, gen).Normalize(context.Background(), "compare Mercy Hospital to others in LA with 100+ beds", nil)

	assert.Equal(t, models.IntentCompare, intent.Intent)
	assert.Equal(t, "Mercy Hospital", intent.Entity.Name)
	assert.Equal(t, models.Location{City: "Los Angeles", State: "California"}, intent.Location)
	assert.Equal(t, []string{"Hospital", "Acute Care Hospital", "General Medical Hospital"}, intent.Filters.FacilityTypes)
	assert.Equal(t, []string{"Non-Profit"}, intent.Filters.Ownership)
	require.Contains(t, intent.Filters.Ranges, "beds")
	assert.Equal(t, 100.0, *intent.Filters.Ranges["beds"].Min)
	assert.Equal(t, []string{"name", "phone", "beds"}, intent.RequestedFields)
	assert.Equal(t, 250, intent.Limit, "capping is the registry's job")
}

func TestNormalize_HeuristicExtras(t *testing.T) {
	intent := newTestHandler(t, downGenerator()).Normalize(context.Background(), `show me 5 hospitals named "Mercy General" npi 1234567890`, nil)
	assert.Equal(t, 5, intent.Limit)
	assert.Equal(t, "Mercy General", intent.Entity.Name)
	assert.Equal(t, "1234567890", intent.Entity.ExternalID)
}

func TestContextWindow(t *testing.T) {
	h := newTestHandler(t, downGenerator())
	history := []models.ConversationTurn{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "three"},
		{Role: "system", Content: strings.Repeat("é", 300)},
		{Role: "assistant", Content: "   "},
		{Role: "user", Content: "five"},
	}

	window := h.contextWindow(history)
	require.Len(t, window, 3)
	assert.Equal(t, "three", window[0].Content)
	assert.Equal(t, models.RoleUser, window[1].Role)
	assert.LessOrEqual(t, len(window[1].Content), 200)
	assert.True(t, strings.HasPrefix(window[1].Content, "é"))
	assert.Equal(t, "five", window[2].Content)
}

func TestExtractionPrompt_ListsFieldTaxonomy(t *testing.T) {
	gen := jsonGenerator(`{"intent":"list"}`)
	newTestHandler(t, gen).Normalize(context.Background(), "hospitals", []models.ConversationTurn{{Role: "user", Content: "hi"}})

	var extraction *genai.Request
	for i := range gen.requests {
		if gen.requests[i].JSONMode {
			extraction = &gen.requests[i]
		}
	}
	require.NotNil(t, extraction)
	system := extraction.Messages[0].Content
	assert.Contains(t, system, "beds")
	assert.Contains(t, system, "phone")
	assert.Equal(t, genai.TierLow, extraction.Tier)
	assert.Equal(t, "hi", extraction.Messages[1].Content)
}
