package normalizeintent

import (
	"regexp"
	"strconv"
	"strings"

	"facility-search-workers/internal/models"
)

var (
	limitPattern   = regexp.MustCompile(`(?i)\b(?:top|first|show me|list)\s+(\d{1,3})\b`)
	quotedPattern  = regexp.MustCompile(`["“]([^"”]{2,})["”]`)
	npiPattern     = regexp.MustCompile(`\b\d{10}\b`)
	ellipsisWords  = regexp.MustCompile(`(?i)\b(these|those|them|they|their|theirs|its|ones|same)\b`)
	ellipsisPrefix = regexp.MustCompile(`(?i)^\s*(what about|how about|and|also)\b`)
)

// heuristicIntent reads the text with the lookup vocabularies only. It is
// the fallback when extraction is unavailable.
func (h *Handler) heuristicIntent(text string) models.ParsedIntent {
	intent := models.ParsedIntent{
		Intent:          h.tables.ClassifyIntent(text),
		Location:        h.tables.MatchLocation(text),
		Filters: models.Filters{
			FacilityTypes: h.tables.MatchFacilityTypes(text),
			Ownership:     h.tables.MatchOwnership(text),
		},
		RequestedFields: h.tables.MatchFields(text),
		Source:          models.SourceHeuristic,
	}

	if m := quotedPattern.FindStringSubmatch(text); m != nil {
		intent.Entity.Name = strings.TrimSpace(m[1])
	}
	if id := npiPattern.FindString(text); id != "" {
		intent.Entity.ExternalID = id
	}
	if m := limitPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			intent.Limit = n
		}
	}
	return intent
}

func isElliptical(text string) bool {
	return ellipsisWords.MatchString(text) || ellipsisPrefix.MatchString(text)
}

// carryForward fills a missing location, facility type or ownership filter
// from the most recent earlier user turn that specified each of them. It only runs for
// elliptical follow-ups or turns that carry no search criteria at all.
func (h *Handler) carryForward(intent *models.ParsedIntent, text string, window []models.ConversationTurn) {
	if !isElliptical(text) && intent.HasCriteria() {
		return
	}

	needLocation := intent.Location.IsZero()
	needTypes := len(intent.Filters.FacilityTypes) == 0
	needOwnership := len(intent.Filters.Ownership) == 0
	if !needLocation && !needTypes && !needOwnership {
		return
	}

	for i := len(window) - 1; i >= 0 && (needLocation || needTypes || needOwnership); i-- {
		turn := window[i]
		if turn.Role != models.RoleUser {
			continue
		}
		// The caller may already have appended the current turn to history.
		if i == len(window)-1 && strings.EqualFold(strings.TrimSpace(turn.Content), strings.TrimSpace(intent.OriginalText)) {
			continue
		}

		if needLocation {
			if loc := h.tables.MatchLocation(turn.Content); !loc.IsZero() {
				intent.Location = loc
				intent.CarriedForward = true
				needLocation = false
			}
		}
		if needTypes {
			if types := h.tables.MatchFacilityTypes(turn.Content); len(types) > 0 {
				intent.Filters.FacilityTypes = types
				intent.CarriedForward = true
				needTypes = false
			}
		}
		if needOwnership {
			if owners := h.tables.MatchOwnership(turn.Content); len(owners) > 0 {
				intent.Filters.Ownership = owners
				intent.CarriedForward = true
				needOwnership = false
			}
		}
	}
}
