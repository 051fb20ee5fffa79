package lookup

import (
	"regexp"
	"strings"

	"facility-search-workers/internal/models"
)

var (
	zipPattern = regexp.MustCompile(`\b\d{5}\b`)
	// "in Springfield", "near Palo Alto" with a capitalized place name.
	placePattern = regexp.MustCompile(`\b(?:in|near|around)\s+((?:[A-Z][a-zA-Z.'-]+)(?:\s+[A-Z][a-zA-Z.'-]+){0,2})`)
	// Standalone upper-case state codes such as "CA" or "TX".
	stateCodePattern = regexp.MustCompile(`\b[A-Z]{2}\b`)
)

// Codes that collide with ordinary English words when shouted.
var ambiguousStateCodes = map[string]bool{"IN": true, "OR": true, "ME": true, "OK": true, "HI": true, "ID": true}

// MatchFacilityTypes finds facility-type vocabulary in free text and returns
// the synonym-expanded list. Longer keys win, so "mental health clinics"
// does not also match plain "clinic".
func (t *Tables) MatchFacilityTypes(text string) []string {
	var groups []string
	remaining := text
	for _, p := range t.typePatterns {
		if loc := p.re.FindStringIndex(remaining); loc != nil {
			groups = append(groups, p.key)
			remaining = blank(remaining, loc)
		}
	}
	if len(groups) == 0 {
		return nil
	}
	return t.ExpandFacilityTypes(groups)
}

// MatchOwnership returns the ownership labels named in free text. Longer
// terms match first, so "not-for-profit" never also reads as "for-profit".
func (t *Tables) MatchOwnership(text string) []string {
	var labels []string
	seen := make(map[string]bool)
	remaining := text
	for _, p := range t.ownershipPatterns {
		loc := p.re.FindStringIndex(remaining)
		if loc == nil {
			continue
		}
		remaining = blank(remaining, loc)
		if !seen[p.key] {
			seen[p.key] = true
			labels = append(labels, p.key)
		}
	}
	return labels
}

// MatchLocation finds a location in free text using the alias, state and
// known-city vocabularies, a zip code, and finally an "in <Place>" phrase.
func (t *Tables) MatchLocation(text string) models.Location {
	var loc models.Location
	remaining := text

	for _, p := range t.locationPatterns {
		span := p.re.FindStringIndex(remaining)
		if span == nil {
			continue
		}
		if alias, ok := t.aliases[p.key]; ok && loc.City == "" {
			loc.City, loc.State = alias.City, firstNonEmpty(loc.State, alias.State)
		} else if known, ok := t.knownCities[p.key]; ok && loc.City == "" {
			loc.City, loc.State = known.City, firstNonEmpty(loc.State, known.State)
		} else if name, ok := t.stateByName[p.key]; ok && loc.State == "" {
			loc.State = name
		} else {
			continue
		}
		remaining = blank(remaining, span)
	}

	if loc.State == "" {
		for _, span := range stateCodePattern.FindAllStringIndex(remaining, -1) {
			code := remaining[span[0]:span[1]]
			if ambiguousStateCodes[code] {
				continue
			}
			if name, ok := t.stateByCode[code]; ok {
				loc.State = name
				remaining = blank(remaining, span)
				break
			}
		}
	}

	if loc.City == "" {
		if m := placePattern.FindStringSubmatch(remaining); m != nil {
			place := strings.TrimSpace(m[1])
			if name := t.StateName(place); name != "" {
				if loc.State == "" {
					loc.State = name
				}
			} else if _, isType := t.typeGroup(place); !isType {
				loc.City = place
			}
		}
	}

	if z := zipPattern.FindString(text); z != "" {
		loc.Zip = z
	}
	return t.ResolveLocation(loc)
}

// MatchFields returns the canonical fields whose vocabulary terms appear in
// text, in table order.
func (t *Tables) MatchFields(text string) []string {
	hit := make(map[string]bool)
	remaining := text
	for _, p := range t.fieldPatterns {
		if span := p.re.FindStringIndex(remaining); span != nil {
			hit[p.key] = true
			remaining = blank(remaining, span)
		}
	}

	var out []string
	for _, f := range t.fieldOrder {
		if hit[f.Name] {
			out = append(out, f.Name)
		}
	}
	return out
}

// ClassifyIntent applies the intent vocabulary. Comparison outranks
// analysis, which outranks lookup; everything else is a list.
func (t *Tables) ClassifyIntent(text string) models.IntentKind {
	lower := " " + normKey(text) + " "
	for _, kind := range []models.IntentKind{models.IntentCompare, models.IntentAnalyze, models.IntentLookup} {
		for _, term := range t.intentTerms[string(kind)] {
			if strings.Contains(lower, " "+term+" ") {
				return kind
			}
		}
	}
	return models.IntentList
}

// HasComparisonLanguage reports whether text asks to compare or analyze.
func (t *Tables) HasComparisonLanguage(text string) bool {
	kind := t.ClassifyIntent(text)
	return kind == models.IntentCompare || kind == models.IntentAnalyze
}

func blank(s string, span []int) string {
	return s[:span[0]] + strings.Repeat(" ", span[1]-span[0]) + s[span[1]:]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
