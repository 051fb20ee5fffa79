package normalizeintent

// extraction is the shape requested from the generation backend. Every
// field is optional; nulls decode to zero values.
type extraction struct {
	Intent string `json:"intent"`
	Entity struct {
		Name       string `json:"name"`
		ExternalID string `json:"externalId"`
	} `json:"entity"`
	Location struct {
		City  string `json:"city"`
		State string `json:"state"`
		Zip   string `json:"zip"`
	} `json:"location"`
	Filters struct {
		FacilityTypes []string                    `json:"facilityTypes"`
		Ownership     []string                    `json:"ownership"`
		Ranges        map[string]extractionBounds `json:"ranges"`
	} `json:"filters"`
	RequestedFields []string `json:"requestedFields"`
	Limit           int      `json:"limit"`
}

type extractionBounds struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

const extractionSchema = `{
  "type": "object",
  "required": ["intent"],
  "properties": {
    "intent": {"type": "string", "minLength": 1},
    "entity": {
      "type": ["object", "null"],
      "properties": {
        "name": {"type": ["string", "null"]},
        "externalId": {"type": ["string", "null"]}
      }
    },
    "location": {
      "type": ["object", "null"],
      "properties": {
        "city": {"type": ["string", "null"]},
        "state": {"type": ["string", "null"]},
        "zip": {"type": ["string", "null"]}
      }
    },
    "filters": {
      "type": ["object", "null"],
      "properties": {
        "facilityTypes": {"type": ["array", "null"], "items": {"type": "string"}},
        "ownership": {"type": ["array", "null"], "items": {"type": "string"}},
        "ranges": {
          "type": ["object", "null"],
          "additionalProperties": {
            "type": "object",
            "properties": {
              "min": {"type": ["number", "null"]},
              "max": {"type": ["number", "null"]}
            }
          }
        }
      }
    },
    "requestedFields": {"type": ["array", "null"], "items": {"type": "string"}},
    "limit": {"type": ["integer", "null"], "minimum": 0}
  }
}`
