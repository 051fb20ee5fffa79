package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// EntityRecord is one registry row. The pipeline never writes it back.
type EntityRecord struct {
	ID              int64      `json:"id"`
	ExternalID      string     `json:"npi,omitempty"`
	Name            string     `json:"name"`
	Address         string     `json:"address,omitempty"`
	City            string     `json:"city,omitempty"`
	State           string     `json:"state,omitempty"`
	StateCode       string     `json:"stateCode,omitempty"`
	Zip             string     `json:"zipCode,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	Fax             string     `json:"fax,omitempty"`
	FacilityType    string     `json:"type,omitempty"`
	Category        string     `json:"category,omitempty"`
	Ownership       string     `json:"ownership,omitempty"`
	EnumerationDate *time.Time `json:"enumerationDate,omitempty"`
	LastUpdated     *time.Time `json:"lastUpdate,omitempty"`
}

// CacheKey identifies the entity in the enrichment cache. The external
// identifier is preferred because it survives registry reloads.
func (e EntityRecord) CacheKey() string {
	if e.ExternalID != "" {
		return e.ExternalID
	}
	return "id:" + strconv.FormatInt(e.ID, 10)
}

type Provenance string

const (
	ProvenanceStructured Provenance = "structured"
	ProvenanceCache      Provenance = "cache"
	ProvenanceFresh      Provenance = "fresh_fetch"
	ProvenanceUnresolved Provenance = "unresolved"
)

// FieldValue is an enrichment value with where it came from. Value is nil
// when the field could not be resolved.
type FieldValue struct {
	Value      json.RawMessage `json:"value"`
	Provenance Provenance      `json:"provenance"`
	Source     string          `json:"-"`
	AsOf       string          `json:"-"`
}

func (f FieldValue) Resolved() bool {
	return len(f.Value) > 0 && string(f.Value) != "null"
}

// Number returns the value as a float when it is a JSON number or a numeric
// string such as "120" or "1,250".
func (f FieldValue) Number() (float64, bool) {
	if !f.Resolved() {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(f.Value, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(f.Value, &s); err != nil {
		return 0, false
	}
	clean := make([]rune, 0, len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			clean = append(clean, r)
		}
	}
	n, err := strconv.ParseFloat(string(clean), 64)
	return n, err == nil
}

type MergedEntity struct {
	EntityRecord
	Enrichment  map[string]FieldValue `json:"enrichment,omitempty"`
	DataQuality int                   `json:"dataQuality"`
}

// Field returns the enrichment value for name, reporting unresolved when the
// field was never requested.
func (m MergedEntity) Field(name string) FieldValue {
	if v, ok := m.Enrichment[name]; ok {
		return v
	}
	return FieldValue{Provenance: ProvenanceUnresolved}
}

func (m MergedEntity) ResolvedCount() int {
	n := 0
	for _, v := range m.Enrichment {
		if v.Resolved() {
			n++
		}
	}
	return n
}

// Structured returns a registry field by its canonical name. ok is false for
// names that are not registry columns.
func (e EntityRecord) Structured(field string) (value string, ok bool) {
	switch field {
	case "name":
		return e.Name, true
	case "npi":
		return e.ExternalID, true
	case "address":
		return e.Address, true
	case "city":
		return e.City, true
	case "state":
		if e.State != "" {
			return e.State, true
		}
		return e.StateCode, true
	case "zip":
		return e.Zip, true
	case "phone":
		return e.Phone, true
	case "fax":
		return e.Fax, true
	case "type":
		return e.FacilityType, true
	case "category":
		return e.Category, true
	case "ownership":
		return e.Ownership, true
	case "enumeration_date":
		return formatDate(e.EnumerationDate), true
	case "last_update":
		return formatDate(e.LastUpdated), true
	}
	return "", false
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
