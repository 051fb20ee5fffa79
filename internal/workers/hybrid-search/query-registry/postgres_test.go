package queryregistry

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var providerColumns = []string{
	"id", "npi_number", "provider_name", "business_address_line1", "business_city",
	"name", "code", "business_zip_code", "business_phone", "business_fax",
	"name", "name", "name", "enumeration_date", "last_update_date", "total_count",
}

func TestBuildSQL(t *testing.T) {
	query, args := buildSQL("healthcare_production", Predicates{
		ExternalID:    "1234567890",
		NamePatterns:  []string{"Bellevue Hospital", "Bellevue"},
		Cities:        []string{"New York", "Manhattan"},
		State:         "New York",
		StateCode:     "NY",
		Zip:           "10016",
		FacilityTypes: []string{"Hospital"},
		Ownership:     []string{"Organization"},
		Limit:         10,
	})

	assert.Contains(t, query, "FROM healthcare_production.healthcare_providers hp")
	assert.Contains(t, query, "LEFT JOIN healthcare_production.states s ON hp.business_state_id = s.id")
	assert.Contains(t, query, "WHERE hp.is_active = true")
	assert.Contains(t, query, "hp.npi_number = $1")
	assert.Contains(t, query, "hp.provider_name ILIKE ANY($2::text[])")
	assert.Contains(t, query, "hp.business_city ILIKE ANY($3::text[])")
	assert.Contains(t, query, "(s.name ILIKE $4 OR s.code = $5)")
	assert.Contains(t, query, "hp.business_zip_code LIKE $6")
	assert.Contains(t, query, "ft.name ILIKE ANY($7::text[])")
	assert.Contains(t, query, "et.name ILIKE ANY($8::text[])")
	assert.Contains(t, query, "ORDER BY hp.provider_name\nLIMIT $9")

	require.Len(t, args, 9)
	assert.Equal(t, "1234567890", args[0])
	assert.Equal(t, pq.Array([]string{"%Bellevue Hospital%", "%Bellevue%"}), args[1])
	assert.Equal(t, pq.Array([]string{"%New York%", "%Manhattan%"}), args[2])
	assert.Equal(t, "New York", args[3])
	assert.Equal(t, "NY", args[4])
	assert.Equal(t, "10016%", args[5])
	assert.Equal(t, 10, args[8])
}

func TestBuildSQL_OnlyActiveWhenNoPredicates(t *testing.T) {
	query, args := buildSQL("registry", Predicates{Limit: 5})

	assert.Contains(t, query, "WHERE hp.is_active = true\nORDER BY")
	assert.Equal(t, []interface{}{5}, args)
}

func TestBuildSQL_UnknownStateUsesSubstring(t *testing.T) {
	query, args := buildSQL("registry", Predicates{State: "Ontario", Limit: 5})

	assert.Contains(t, query, "s.name ILIKE $1")
	assert.Equal(t, "%Ontario%", args[0])
}

func TestContains_EscapesLikeMetacharacters(t *testing.T) {
	assert.Equal(t, []string{`%100\% Care%`, `%a\_b%`}, contains([]string{"100% Care", "a_b", "  "}))
}

func TestPostgresRegistry_Search(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows(providerColumns).
		AddRow(int64(1), "1234567890", "CityMD Union Square", "50 E 14th St", "New York",
			"New York", "NY", "10003", "212-555-0101", nil, "Urgent Care", "Ambulatory", "Organization", nil, nil, int64(2)).
		AddRow(int64(2), nil, "Manhattan Urgent Care", nil, "Manhattan",
			"New York", "NY", "10016", "212-555-0102", "212-555-0199", "Urgent Care Center", nil, nil, nil, nil, int64(2))

	mock.ExpectQuery(`FROM healthcare_production\.healthcare_providers hp`).
		WithArgs(sqlmock.AnyArg(), "New York", "NY", sqlmock.AnyArg(), 10).
		WillReturnRows(rows)

	registry := NewPostgresRegistry(db, "healthcare_production")
	records, total, err := registry.Search(context.Background(), Predicates{
		Cities:        []string{"New York", "Manhattan"},
		State:         "New York",
		StateCode:     "NY",
		FacilityTypes: []string{"Urgent Care", "Urgent Care Center"},
		Limit:         10,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, records, 2)
	assert.Equal(t, "1234567890", records[0].ExternalID)
	assert.Equal(t, "NY", records[0].StateCode)
	assert.Equal(t, "Organization", records[0].Ownership)
	assert.Empty(t, records[1].ExternalID)
	assert.Equal(t, "212-555-0199", records[1].Fax)
	assert.Nil(t, records[1].EnumerationDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRegistry_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`healthcare_providers`).WillReturnError(errors.New("connection reset by peer"))

	_, _, err = NewPostgresRegistry(db, "healthcare_production").Search(context.Background(), Predicates{Limit: 10})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
