package batchenrich

import "facility-search-workers/internal/models"

type Request struct {
	// Query is the user's question, passed to the lookup as guidance.
	Query    string
	Entities []models.EntityRecord
	Fields   []string
	Criteria map[string]models.NumericRange
}

// Result holds freshly fetched values keyed by entity cache key, then field.
// A field absent from the map was not answered; a present field may still
// carry a JSON null.
type Result struct {
	Values    map[string]map[string]models.FieldValue
	Requested int
	Matched   int
	ErrorCode string
}

func emptyResult(requested int) *Result {
	return &Result{
		Values:    map[string]map[string]models.FieldValue{},
		Requested: requested,
	}
}

func (r *Result) Get(entityID, field string) (models.FieldValue, bool) {
	if r == nil {
		return models.FieldValue{}, false
	}
	v, ok := r.Values[entityID][field]
	return v, ok
}

const itemSchema = `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name":         {"type": "string", "minLength": 1},
		"city":         {"type": ["string", "null"]},
		"state":        {"type": ["string", "null"]},
		"data_source":  {"type": ["string", "null"]},
		"last_updated": {"type": ["string", "number", "null"]}
	}
}`
