package synthesizeresponse

import (
	"facility-search-workers/internal/common/genai"
	"facility-search-workers/internal/models"
)

type Input struct {
	Query           string
	History         []models.ConversationTurn
	Entities        []models.MergedEntity
	RequestedFields []string
	TotalCount      int
}

type Output struct {
	Answer       string     `json:"answer"`
	Tier         genai.Tier `json:"tier"`
	Score        int        `json:"score"`
	UsedFallback bool       `json:"usedFallback"`
}
