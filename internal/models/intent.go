package models

type IntentKind string

const (
	IntentLookup  IntentKind = "lookup"
	IntentList    IntentKind = "list"
	IntentCompare IntentKind = "compare"
	IntentAnalyze IntentKind = "analyze"
)

func (k IntentKind) Valid() bool {
	switch k {
	case IntentLookup, IntentList, IntentCompare, IntentAnalyze:
		return true
	}
	return false
}

// IntentSource records which path produced a ParsedIntent.
type IntentSource string

const (
	SourceExtraction IntentSource = "extraction"
	SourceHeuristic  IntentSource = "heuristic"
)

type EntityRef struct {
	Name       string `json:"name,omitempty"`
	ExternalID string `json:"externalId,omitempty"`
}

func (e EntityRef) IsZero() bool {
	return e.Name == "" && e.ExternalID == ""
}

type Location struct {
	City  string `json:"city,omitempty"`
	State string `json:"state,omitempty"`
	Zip   string `json:"zip,omitempty"`
}

func (l Location) IsZero() bool {
	return l.City == "" && l.State == "" && l.Zip == ""
}

type NumericRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Contains reports whether v lies inside the inclusive range.
func (r NumericRange) Contains(v float64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

type Filters struct {
	FacilityTypes []string                `json:"facilityTypes,omitempty"`
	Ownership     []string                `json:"ownership,omitempty"`
	Ranges        map[string]NumericRange `json:"ranges,omitempty"`
}

func (f Filters) IsZero() bool {
	return len(f.FacilityTypes) == 0 && len(f.Ownership) == 0 && len(f.Ranges) == 0
}

// ParsedIntent is the structured reading of one user turn. The normalizer
// always returns one, even when every backend call failed.
type ParsedIntent struct {
	Intent          IntentKind   `json:"intent"`
	Entity          EntityRef    `json:"entity"`
	Location        Location     `json:"location"`
	Filters         Filters      `json:"filters"`
	RequestedFields []string     `json:"requestedFields"`
	Limit           int          `json:"limit"`
	OriginalText    string       `json:"originalText"`
	NormalizedText  string       `json:"normalizedText"`
	Source          IntentSource `json:"source"`
	CarriedForward  bool         `json:"carriedForward,omitempty"`
}

// HasCriteria reports whether the intent narrows the registry in any way.
func (p ParsedIntent) HasCriteria() bool {
	return !p.Entity.IsZero() || !p.Location.IsZero() || !p.Filters.IsZero()
}
