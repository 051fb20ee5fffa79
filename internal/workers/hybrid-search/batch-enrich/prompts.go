package batchenrich

import (
	"fmt"
	"sort"
	"strings"

	"facility-search-workers/internal/models"
)

func (h *Handler) buildPrompt(query string, entities []models.EntityRecord, fields []string, criteria map[string]models.NumericRange) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a healthcare data researcher with access to current web data. I have %d healthcare facilities from a registry.\n\n", len(entities))
	if q := strings.TrimSpace(query); q != "" {
		fmt.Fprintf(&b, "USER QUESTION: %s\nUse it as guidance for what to look up, but answer only the fields listed below.\n\n", q)
	}
	b.WriteString("FACILITIES:\n")
	for i, e := range entities {
		fmt.Fprintf(&b, "%d. %s, %s, %s\n", i+1, e.Name, e.City, firstNonEmpty(e.StateCode, e.State))
	}

	b.WriteString("\nFIELDS NEEDED:\n")
	for _, f := range fields {
		if hint := h.tables.SearchHint(f); hint != "" {
			fmt.Fprintf(&b, "- %s: %s\n", f, hint)
		} else {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	if c := describeCriteria(criteria); c != "" {
		fmt.Fprintf(&b, "\nSEARCH CRITERIA: %s\n", c)
	}

	b.WriteString(`
RULES:
- Use official sources such as CMS.gov, facility websites and state health departments.
- If a value cannot be found, set it to null. Never guess or estimate.
- Keep each facility's name, city and state exactly as listed.

Return ONLY a JSON array with one object per facility, no markdown and no explanation:
[
  {
    "name": "Facility name as listed",
    "city": "City",
    "state": "State",
`)
	for _, f := range fields {
		fmt.Fprintf(&b, "    %q: <value or null>,\n", f)
	}
	b.WriteString(`    "data_source": "source URL or name",
    "last_updated": "year of the data"
  }
]`)
	return b.String()
}

func describeCriteria(criteria map[string]models.NumericRange) string {
	keys := make([]string, 0, len(criteria))
	for k := range criteria {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		r := criteria[k]
		switch {
		case r.Min != nil && r.Max != nil:
			parts = append(parts, fmt.Sprintf("%s between %g and %g", k, *r.Min, *r.Max))
		case r.Min != nil:
			parts = append(parts, fmt.Sprintf("%s >= %g", k, *r.Min))
		case r.Max != nil:
			parts = append(parts, fmt.Sprintf("%s <= %g", k, *r.Max))
		}
	}
	return strings.Join(parts, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
