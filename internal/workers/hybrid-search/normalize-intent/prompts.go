package normalizeintent

import (
	"fmt"
	"strings"
)

const spellingPrompt = `You correct spelling mistakes in search queries about healthcare facilities.
Fix misspelled words, including place names and facility types.
Do not rephrase the query, expand abbreviations, or answer it.
Reply with the corrected query text only.`

func (h *Handler) extractionPrompt() string {
	var b strings.Builder
	b.WriteString(`You extract structured search parameters from questions about healthcare facilities.
Reply with a single JSON object and nothing else:
{
  "intent": "lookup" | "list" | "compare" | "analyze",
  "entity": {"name": string|null, "externalId": string|null},
  "location": {"city": string|null, "state": string|null, "zip": string|null},
  "filters": {
    "facilityTypes": [string],
    "ownership": [string],
    "ranges": {"<field>": {"min": number|null, "max": number|null}}
  },
  "requestedFields": [string],
  "limit": integer|null
}

Rules:
- lookup: one named facility. list: find or show several. compare: two or more side by side. analyze: counts, trends or breakdowns.
- Use the full state name, never the two-letter code.
- If the question refers back to earlier results ("these", "them", "their"), reuse the location and facility type from the earlier turns.
- requestedFields lists only what the user asked to see. Leave it empty when nothing specific was asked.
`)

	fmt.Fprintf(&b, "- Fields the registry holds: %s.\n", strings.Join(h.tables.StructuredFields(), ", "))
	fmt.Fprintf(&b, "- Fields that need an external lookup: %s.\n", strings.Join(h.tables.EnrichmentFields(), ", "))
	b.WriteString("- Boroughs and nicknames map to their city, for example Manhattan or Brooklyn to New York, LA to Los Angeles.\n")
	b.WriteString("- Facility types are short category names such as urgent care, hospital, clinic, mental health, nursing home or pharmacy.\n")
	return b.String()
}
