package synthesizeresponse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"facility-search-workers/internal/models"
)

const noResultsAnswer = "I couldn't find any facilities matching your query. Could you try rephrasing or adding details such as a city, state, or facility type?"

// fallback renders a deterministic answer from the merged data alone.
func (h *Handler) fallback(in Input) string {
	switch len(in.Entities) {
	case 0:
		return noResultsAnswer
	case 1:
		return h.single(in.Entities[0], in.RequestedFields)
	default:
		return h.list(in)
	}
}

func (h *Handler) single(e models.MergedEntity, requested []string) string {
	var b strings.Builder
	if loc := location(e.EntityRecord, false); loc != "" {
		fmt.Fprintf(&b, "I found %s in %s.\n\n", e.Name, loc)
	} else {
		fmt.Fprintf(&b, "I found %s.\n\n", e.Name)
	}
	fmt.Fprintf(&b, "Contact: %s\n", orDefault(e.Phone, "Not available"))
	fmt.Fprintf(&b, "Type: %s\n", orDefault(e.FacilityType, "Healthcare provider"))
	for _, f := range enrichmentOrder(e, requested) {
		fmt.Fprintf(&b, "%s: %s\n", h.tables.Label(f), renderValue(e.Enrichment[f]))
	}
	b.WriteString("\nWould you like more details about this facility?")
	return b.String()
}

func (h *Handler) list(in Input) string {
	total := in.TotalCount
	if total < len(in.Entities) {
		total = len(in.Entities)
	}
	listed := in.Entities
	if h.config.MaxListed > 0 && len(listed) > h.config.MaxListed {
		listed = listed[:h.config.MaxListed]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I found %d facilities matching your query:\n\n", total)
	for i, e := range listed {
		fmt.Fprintf(&b, "%d. %s\n", i+1, e.Name)
		if loc := location(e.EntityRecord, true); loc != "" {
			fmt.Fprintf(&b, "   - Location: %s\n", loc)
		}
		fmt.Fprintf(&b, "   - Phone: %s\n", orDefault(e.Phone, "Not available"))
		for _, f := range enrichmentOrder(e, in.RequestedFields) {
			fmt.Fprintf(&b, "   - %s: %s\n", h.tables.Label(f), renderValue(e.Enrichment[f]))
		}
		b.WriteString("\n")
	}
	if more := total - len(listed); more > 0 {
		fmt.Fprintf(&b, "...and %d more facilities.\n\n", more)
	}
	b.WriteString("Would you like more details about any of these?")
	return b.String()
}

func location(e models.EntityRecord, withAddress bool) string {
	var parts []string
	if withAddress && e.Address != "" {
		parts = append(parts, e.Address)
	}
	if e.City != "" {
		parts = append(parts, e.City)
	}
	if s := orDefault(e.StateCode, e.State); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

// enrichmentOrder lists the entity's enrichment fields in request order,
// then any others alphabetically.
func enrichmentOrder(e models.MergedEntity, requested []string) []string {
	fields := make([]string, 0, len(e.Enrichment))
	seen := make(map[string]bool, len(e.Enrichment))
	for _, f := range requested {
		if _, ok := e.Enrichment[f]; ok && !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	var rest []string
	for f := range e.Enrichment {
		if !seen[f] {
			rest = append(rest, f)
		}
	}
	sort.Strings(rest)
	return append(fields, rest...)
}

// renderValue prints an enrichment value for people. Unresolved values say
// so rather than showing a placeholder number.
func renderValue(v models.FieldValue) string {
	if !v.Resolved() {
		return "not available"
	}
	raw := bytes.TrimSpace(v.Value)

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	var flag bool
	if err := json.Unmarshal(raw, &flag); err == nil {
		if flag {
			return "Yes"
		}
		return "No"
	}
	var list []interface{}
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	}
	return string(raw)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
