package lookup

import (
	"strings"

	"facility-search-workers/internal/models"
)

// ResolveLocation canonicalizes a location: aliases map to their canonical
// city and state, known cities gain their state, and state codes expand to
// full state names.
func (t *Tables) ResolveLocation(loc models.Location) models.Location {
	out := models.Location{
		City:  strings.TrimSpace(loc.City),
		State: strings.TrimSpace(loc.State),
		Zip:   strings.TrimSpace(loc.Zip),
	}

	if alias, ok := t.aliases[normKey(out.City)]; ok {
		out.City = alias.City
		if out.State == "" {
			out.State = alias.State
		}
	} else if known, ok := t.knownCities[normKey(out.City)]; ok {
		out.City = known.City
		if out.State == "" {
			out.State = known.State
		}
	}

	// "Manhattan, NY" sometimes arrives with the borough in the state slot.
	if alias, ok := t.aliases[normKey(out.State)]; ok && out.City == "" && len(out.State) > 2 {
		out.City = alias.City
		out.State = alias.State
	}

	if name := t.StateName(out.State); name != "" {
		out.State = name
	}
	return out
}

// StateName returns the canonical state name for a full name or 2-letter
// code, or "" when the input is not a known state.
func (t *Tables) StateName(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == 2 {
		if name, ok := t.stateByCode[strings.ToUpper(s)]; ok {
			return name
		}
	}
	return t.stateByName[normKey(s)]
}

// StateCode returns the 2-letter code for a state name or code.
func (t *Tables) StateCode(s string) string {
	if name := t.StateName(s); name != "" {
		return t.codeByState[name]
	}
	return ""
}

// Boroughs returns the sub-areas that a multi-borough city should also match.
func (t *Tables) Boroughs(city string) []string {
	return t.boroughs[normKey(city)]
}

// ExpandFacilityTypes expands every type to its synonym group, accepting
// group keys, plurals and any member synonym. Unknown types pass through.
// The result is deduplicated case-insensitively in first-seen order.
func (t *Tables) ExpandFacilityTypes(types []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(v string) {
		k := normKey(v)
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		out = append(out, v)
	}

	for _, raw := range types {
		group, ok := t.typeGroup(raw)
		if !ok {
			add(strings.TrimSpace(raw))
			continue
		}
		for _, s := range t.typeSynonyms[group] {
			add(s)
		}
	}
	return out
}

func (t *Tables) typeGroup(raw string) (string, bool) {
	k := normKey(raw)
	candidates := []string{k, strings.TrimSuffix(k, "s"), strings.TrimSuffix(k, "es")}
	if strings.HasSuffix(k, "ies") {
		candidates = append(candidates, strings.TrimSuffix(k, "ies")+"y")
	}
	for _, candidate := range candidates {
		if g, ok := t.typeGroupOf[candidate]; ok {
			return g, true
		}
	}
	return "", false
}

// CanonicalField maps a field name or alias to its canonical name. Unknown
// names are normalized to snake_case and returned as-is.
func (t *Tables) CanonicalField(name string) string {
	key := normFieldKey(name)
	if f, ok := t.fields[key]; ok {
		return f.Name
	}
	return key
}

func (t *Tables) Field(name string) (*FieldSpec, bool) {
	f, ok := t.fields[normFieldKey(name)]
	return f, ok
}

// IsStructured reports whether the registry holds the field.
func (t *Tables) IsStructured(name string) bool {
	f, ok := t.Field(name)
	return ok && f.Kind == FieldStructured
}

// IsEnrichmentOnly reports whether the field is on the enrichment-only list.
func (t *Tables) IsEnrichmentOnly(name string) bool {
	f, ok := t.Field(name)
	return ok && f.Kind == FieldEnrichment
}

func (t *Tables) StructuredFields() []string {
	var out []string
	for _, f := range t.fieldOrder {
		if f.Kind == FieldStructured {
			out = append(out, f.Name)
		}
	}
	return out
}

func (t *Tables) EnrichmentFields() []string {
	var out []string
	for _, f := range t.fieldOrder {
		if f.Kind == FieldEnrichment {
			out = append(out, f.Name)
		}
	}
	return out
}

// Label returns a human-readable field label.
func (t *Tables) Label(name string) string {
	if f, ok := t.Field(name); ok && f.Label != "" {
		return f.Label
	}
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// SearchHint describes what an enrichment field means for the external lookup.
func (t *Tables) SearchHint(name string) string {
	if f, ok := t.Field(name); ok {
		return f.SearchHint
	}
	return ""
}

func normFieldKey(name string) string {
	var b strings.Builder
	var prev rune
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'A' && r <= 'Z':
			if (prev >= 'a' && prev <= 'z') || (prev >= '0' && prev <= '9') {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		case r == ' ' || r == '-' || r == '_':
			if b.Len() > 0 && prev != '_' {
				b.WriteByte('_')
			}
			r = '_'
		default:
			b.WriteRune(r)
		}
		prev = r
	}
	return strings.TrimSuffix(b.String(), "_")
}
