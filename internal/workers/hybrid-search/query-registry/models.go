package queryregistry

import (
	"context"
	"time"

	"facility-search-workers/internal/models"
)

// Result is what the registry knows about a parsed intent. MissingFields are
// the requested fields the registry cannot answer.
type Result struct {
	Rows            []models.EntityRecord `json:"rows"`
	TotalCount      int                   `json:"totalCount"`
	AvailableFields []string              `json:"availableFields"`
	MissingFields   []string              `json:"missingFields"`
	Latency         time.Duration         `json:"latency"`
}

// Predicates is the backend-neutral conjunction built from an intent. Each
// slice is an OR group; non-empty groups are ANDed together.
type Predicates struct {
	ExternalID    string
	NamePatterns  []string
	Cities        []string
	State         string
	StateCode     string
	Zip           string
	FacilityTypes []string
	Ownership     []string
	Limit         int
}

// Registry executes predicates against one storage backend and returns the
// page of rows plus the total number of matches.
type Registry interface {
	Name() string
	Search(ctx context.Context, p Predicates) ([]models.EntityRecord, int, error)
}
