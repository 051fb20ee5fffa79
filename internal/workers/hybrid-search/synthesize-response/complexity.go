package synthesizeresponse

import (
	"regexp"
	"strings"

	"facility-search-workers/internal/common/genai"
	"facility-search-workers/internal/models"
)

var comparisonPattern = regexp.MustCompile(`(?i)compar|analy[sz]|differ|versus|\bvs\b\.?|which is better`)

// ScoreComplexity adds the weight of every signal that is present: many
// results, many enriched entities, a long conversation, and comparison or
// analysis language in the current query or the last two turns.
func (h *Handler) ScoreComplexity(in Input) int {
	w, th := h.config.Weights, h.config.Thresholds
	score := 0

	if len(in.Entities) > th.ResultCount {
		score += w.ResultCount
	}

	enriched := 0
	for _, e := range in.Entities {
		if e.ResolvedCount() > 0 {
			enriched++
		}
	}
	if enriched > th.EnrichedFields {
		score += w.EnrichedFields
	}

	if len(in.History) > th.ConversationTurns {
		score += w.Conversation
	}

	recent := []string{in.Query}
	for _, turn := range models.RecentTurns(in.History, 2) {
		recent = append(recent, turn.Content)
	}
	if comparisonPattern.MatchString(strings.Join(recent, " ")) {
		score += w.Comparison
	}
	return score
}

func (h *Handler) tier(score int) genai.Tier {
	if score >= h.config.ComplexityCutoff {
		return genai.TierHigh
	}
	return genai.TierLow
}
