package queryregistry

import (
	"strings"

	"facility-search-workers/internal/lookup"
	"facility-search-workers/internal/models"
)

// Leading words that say nothing about which facility is meant.
var weakFirstTokens = map[string]bool{
	"the": true, "a": true, "an": true, "st": true, "st.": true, "saint": true,
	"new": true, "north": true, "south": true, "east": true, "west": true,
	"mount": true, "mt": true, "mt.": true, "san": true, "santa": true,
	"los": true, "las": true, "el": true, "la": true, "de": true,
}

// BuildPredicates turns an intent into registry predicates. Only fields the
// intent actually carries become conditions.
func BuildPredicates(intent models.ParsedIntent, tables *lookup.Tables, cfg *Config) Predicates {
	p := Predicates{
		ExternalID:    strings.TrimSpace(intent.Entity.ExternalID),
		NamePatterns:  namePatterns(intent.Entity.Name, cfg),
		Zip:           strings.TrimSpace(intent.Location.Zip),
		FacilityTypes: intent.Filters.FacilityTypes,
		Ownership:     intent.Filters.Ownership,
		Limit:         capLimit(intent.Limit, cfg),
	}

	if city := strings.TrimSpace(intent.Location.City); city != "" {
		p.Cities = append([]string{city}, tables.Boroughs(city)...)
	}

	if state := strings.TrimSpace(intent.Location.State); state != "" {
		if name := tables.StateName(state); name != "" {
			p.State = name
			p.StateCode = tables.StateCode(name)
		} else {
			p.State = state
		}
	}
	return p
}

func capLimit(limit int, cfg *Config) int {
	if limit <= 0 {
		limit = cfg.DefaultLimit
	}
	if cfg.LimitCap > 0 && limit > cfg.LimitCap {
		limit = cfg.LimitCap
	}
	return limit
}

// namePatterns returns the full name, plus its first token when first-token
// matching is enabled and the name has more than one word.
func namePatterns(name string, cfg *Config) []string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return nil
	}
	patterns := []string{name}
	if !cfg.MatchFirstToken {
		return patterns
	}

	tokens := strings.Fields(name)
	if len(tokens) < 2 {
		return patterns
	}
	first := strings.Trim(tokens[0], ",'\"")
	if len([]rune(first)) < cfg.MinTokenLength || weakFirstTokens[strings.ToLower(first)] {
		return patterns
	}
	return append(patterns, first)
}

// splitFields partitions requested fields into those the registry holds and
// those that must come from enrichment. Enrichment-only fields are always
// missing even if a column of the same name existed.
func splitFields(requested []string, tables *lookup.Tables) (available, missing []string) {
	available = []string{}
	missing = []string{}
	for _, f := range requested {
		if tables.IsStructured(f) && !tables.IsEnrichmentOnly(f) {
			available = append(available, f)
			continue
		}
		missing = append(missing, f)
	}
	return available, missing
}
