package models

import "time"

const (
	StageNormalize  = "normalize"
	StageQuery      = "query"
	StageCache      = "cache_lookup"
	StageFetch      = "fetch_missing"
	StageMerge      = "merge"
	StageSynthesize = "synthesize"
)

type Diagnostics struct {
	RequestID       string                   `json:"requestId"`
	CorrectedQuery  string                   `json:"correctedQuery"`
	Intent          IntentKind               `json:"intent"`
	IntentSource    IntentSource             `json:"intentSource"`
	ResultCount     int                      `json:"resultCount"`
	TotalCount      int                      `json:"totalCount"`
	MissingFields   []string                 `json:"missingFields,omitempty"`
	CacheHits       int                      `json:"cacheHits"`
	CacheMisses     int                      `json:"cacheMisses"`
	FetchedEntities int                      `json:"fetchedEntities"`
	Tier            string                   `json:"tier,omitempty"`
	StageLatencies  map[string]time.Duration `json:"stageLatencies"`
	SkippedStages   []string                 `json:"skippedStages,omitempty"`
	DegradedStages  []string                 `json:"degradedStages,omitempty"`
	ErrorCode       string                   `json:"errorCode,omitempty"`
}

func (d *Diagnostics) Degrade(stage string) {
	d.DegradedStages = append(d.DegradedStages, stage)
}

func (d *Diagnostics) Skip(stage string) {
	d.SkippedStages = append(d.SkippedStages, stage)
}
