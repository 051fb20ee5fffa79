package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEntityRecord_CacheKey(t *testing.T) {
	assert.Equal(t, "1234567890", EntityRecord{ID: 7, ExternalID: "1234567890"}.CacheKey())
	assert.Equal(t, "id:7", EntityRecord{ID: 7}.CacheKey())
}

func TestFieldValue_Number(t *testing.T) {
	tests := []struct {
		raw    string
		want   float64
		wantOK bool
	}{
		{`120`, 120, true},
		{`"1,250"`, 1250, true},
		{`"approx 300 beds"`, 300, true},
		{`null`, 0, false},
		{`"unknown"`, 0, false},
		{`true`, 0, false},
	}
	for _, tt := range tests {
		n, ok := FieldValue{Value: json.RawMessage(tt.raw)}.Number()
		assert.Equal(t, tt.wantOK, ok, tt.raw)
		assert.Equal(t, tt.want, n, tt.raw)
	}
}

func TestNumericRange_Contains(t *testing.T) {
	lo, hi := 50.0, 200.0
	r := NumericRange{Min: &lo, Max: &hi}
	assert.True(t, r.Contains(50))
	assert.True(t, r.Contains(200))
	assert.False(t, r.Contains(49))
	assert.True(t, NumericRange{Min: &lo}.Contains(1e6))
}

func TestCacheEntry_Expired(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	e := CacheEntry{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, e.Expired(now))
	assert.True(t, e.Expired(now.Add(time.Hour)))
}

func TestMergedEntity_Field(t *testing.T) {
	m := MergedEntity{Enrichment: map[string]FieldValue{
		"beds": {Value: json.RawMessage(`120`), Provenance: ProvenanceCache},
	}}
	assert.True(t, m.Field("beds").Resolved())
	assert.Equal(t, ProvenanceUnresolved, m.Field("ratings").Provenance)
	assert.Equal(t, 1, m.ResolvedCount())
}

func TestRecentTurns(t *testing.T) {
	h := []ConversationTurn{{Content: "1"}, {Content: "2"}, {Content: "3"}}
	assert.Len(t, RecentTurns(h, 2), 2)
	assert.Equal(t, "2", RecentTurns(h, 2)[0].Content)
	assert.Len(t, RecentTurns(h, 0), 3)
}

func TestParsedIntent_HasCriteria(t *testing.T) {
	assert.False(t, ParsedIntent{}.HasCriteria())
	assert.True(t, ParsedIntent{Location: Location{State: "California"}}.HasCriteria())
}

func TestEntityRecord_Structured(t *testing.T) {
	enumerated := time.Date(2007, 3, 14, 0, 0, 0, 0, time.UTC)
	rec := EntityRecord{Name: "Bellevue", StateCode: "NY", Phone: "212-555-0100", EnumerationDate: &enumerated}

	v, ok := rec.Structured("phone")
	assert.True(t, ok)
	assert.Equal(t, "212-555-0100", v)

	v, _ = rec.Structured("state")
	assert.Equal(t, "NY", v)

	v, _ = rec.Structured("enumeration_date")
	assert.Equal(t, "2007-03-14", v)

	v, ok = rec.Structured("fax")
	assert.True(t, ok)
	assert.Empty(t, v)

	_, ok = rec.Structured("beds")
	assert.False(t, ok)
}
