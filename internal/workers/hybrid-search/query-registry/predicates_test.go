package queryregistry

import (
	"testing"

	"facility-search-workers/internal/lookup"
	"facility-search-workers/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestBuildPredicates_Location(t *testing.T) {
	tables := lookup.Default()
	cfg := LoadConfig()

	intent := models.ParsedIntent{
		Location: models.Location{City: "New York", State: "New York"},
		Filters:  models.Filters{FacilityTypes: []string{"Urgent Care", "Urgent Care Center"}},
		Limit:    10,
	}
	p := BuildPredicates(intent, tables, cfg)

	assert.Equal(t, []string{"New York", "Manhattan", "Brooklyn", "Queens", "Bronx", "Staten Island"}, p.Cities)
	assert.Equal(t, "New York", p.State)
	assert.Equal(t, "NY", p.StateCode)
	assert.Equal(t, []string{"Urgent Care", "Urgent Care Center"}, p.FacilityTypes)
	assert.Empty(t, p.NamePatterns)
	assert.Equal(t, 10, p.Limit)
}

func TestBuildPredicates_UnknownStateKeptAsName(t *testing.T) {
	p := BuildPredicates(models.ParsedIntent{
		Location: models.Location{State: "Ontario"},
	}, lookup.Default(), LoadConfig())

	assert.Equal(t, "Ontario", p.State)
	assert.Empty(t, p.StateCode)
}

func TestBuildPredicates_LimitCap(t *testing.T) {
	cfg := LoadConfig()
	tables := lookup.Default()

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default when unset", 0, 10},
		{"under cap", 25, 25},
		{"at cap", 100, 100},
		{"over cap", 5000, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := BuildPredicates(models.ParsedIntent{Limit: tt.limit}, tables, cfg)
			assert.Equal(t, tt.want, p.Limit)
		})
	}
}

func TestNamePatterns(t *testing.T) {
	tests := []struct {
		name  string
		input string
		first bool
		want  []string
	}{
		{"empty", "  ", true, nil},
		{"single word", "Bellevue", true, []string{"Bellevue"}},
		{"multi word adds first token", "Bellevue Hospital Center", true, []string{"Bellevue Hospital Center", "Bellevue"}},
		{"weak first token skipped", "Mount Sinai Hospital", true, []string{"Mount Sinai Hospital"}},
		{"short first token skipped", "NY Presbyterian", true, []string{"NY Presbyterian"}},
		{"disabled", "Bellevue Hospital Center", false, []string{"Bellevue Hospital Center"}},
		{"whitespace collapsed", " Kaiser   Permanente ", true, []string{"Kaiser Permanente", "Kaiser"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadConfig()
			cfg.MatchFirstToken = tt.first
			assert.Equal(t, tt.want, namePatterns(tt.input, cfg))
		})
	}
}

func TestSplitFields(t *testing.T) {
	available, missing := splitFields([]string{"name", "phone", "beds", "ratings", "parking"}, lookup.Default())

	assert.Equal(t, []string{"name", "phone"}, available)
	assert.Equal(t, []string{"beds", "ratings", "parking"}, missing)

	available, missing = splitFields(nil, lookup.Default())
	assert.NotNil(t, available)
	assert.NotNil(t, missing)
	assert.Empty(t, missing)
}
