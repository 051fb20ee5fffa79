package queryregistry

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"facility-search-workers/internal/models"

	"github.com/lib/pq"
)

const selectProviders = `SELECT hp.id, hp.npi_number, hp.provider_name, hp.business_address_line1,
       hp.business_city, s.name, s.code, hp.business_zip_code, hp.business_phone,
       hp.business_fax, ft.name, fc.name, et.name, hp.enumeration_date,
       hp.last_update_date, COUNT(*) OVER() AS total_count
FROM %[1]s.healthcare_providers hp
LEFT JOIN %[1]s.states s ON hp.business_state_id = s.id
LEFT JOIN %[1]s.facility_types ft ON hp.facility_type_id = ft.id
LEFT JOIN %[1]s.facility_categories fc ON hp.facility_category_id = fc.id
LEFT JOIN %[1]s.entity_types et ON hp.entity_type_id = et.id`

// PostgresRegistry queries the provider tables. Every user value is bound as
// a parameter; only the validated schema name is formatted into the SQL.
type PostgresRegistry struct {
	db     *sql.DB
	schema string
}

func NewPostgresRegistry(db *sql.DB, schema string) *PostgresRegistry {
	return &PostgresRegistry{db: db, schema: schema}
}

func (r *PostgresRegistry) Name() string { return "postgres" }

func (r *PostgresRegistry) Search(ctx context.Context, p Predicates) ([]models.EntityRecord, int, error) {
	query, args := buildSQL(r.schema, p)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		records []models.EntityRecord
		total   int
	)
	for rows.Next() {
		rec, count, err := scanProvider(rows)
		if err != nil {
			return nil, 0, err
		}
		total = count
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

type sqlBuilder struct {
	conds []string
	args  []interface{}
}

func (b *sqlBuilder) arg(v interface{}) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *sqlBuilder) where(cond string) {
	b.conds = append(b.conds, cond)
}

func buildSQL(schema string, p Predicates) (string, []interface{}) {
	b := &sqlBuilder{}
	b.where("hp.is_active = true")

	if p.ExternalID != "" {
		b.where("hp.npi_number = " + b.arg(p.ExternalID))
	}
	if len(p.NamePatterns) > 0 {
		b.where("hp.provider_name ILIKE ANY(" + b.arg(pq.Array(contains(p.NamePatterns))) + "::text[])")
	}
	if len(p.Cities) > 0 {
		b.where("hp.business_city ILIKE ANY(" + b.arg(pq.Array(contains(p.Cities))) + "::text[])")
	}
	if p.State != "" {
		if p.StateCode != "" {
			b.where("(s.name ILIKE " + b.arg(p.State) + " OR s.code = " + b.arg(p.StateCode) + ")")
		} else {
			b.where("s.name ILIKE " + b.arg("%"+p.State+"%"))
		}
	}
	if p.Zip != "" {
		b.where("hp.business_zip_code LIKE " + b.arg(p.Zip+"%"))
	}
	if len(p.FacilityTypes) > 0 {
		b.where("ft.name ILIKE ANY(" + b.arg(pq.Array(contains(p.FacilityTypes))) + "::text[])")
	}
	if len(p.Ownership) > 0 {
		b.where("et.name ILIKE ANY(" + b.arg(pq.Array(contains(p.Ownership))) + "::text[])")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, selectProviders, schema)
	sb.WriteString("\nWHERE ")
	sb.WriteString(strings.Join(b.conds, "\n  AND "))
	sb.WriteString("\nORDER BY hp.provider_name\nLIMIT ")
	sb.WriteString(b.arg(p.Limit))
	return sb.String(), b.args
}

// contains wraps each value as an ILIKE substring pattern, escaping the
// LIKE metacharacters a user might type.
func contains(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(strings.TrimSpace(v))
		if v != "" {
			out = append(out, "%"+v+"%")
		}
	}
	return out
}

func scanProvider(rows *sql.Rows) (models.EntityRecord, int, error) {
	var (
		rec                                            models.EntityRecord
		npi, address, city, state, code, zip           sql.NullString
		phone, fax, facilityType, category, entityType sql.NullString
		enumerated, updated                            sql.NullTime
		total                                          int
	)
	err := rows.Scan(&rec.ID, &npi, &rec.Name, &address, &city, &state, &code, &zip,
		&phone, &fax, &facilityType, &category, &entityType, &enumerated, &updated, &total)
	if err != nil {
		return rec, 0, err
	}

	rec.ExternalID = npi.String
	rec.Address = address.String
	rec.City = city.String
	rec.State = state.String
	rec.StateCode = code.String
	rec.Zip = zip.String
	rec.Phone = phone.String
	rec.Fax = fax.String
	rec.FacilityType = facilityType.String
	rec.Category = category.String
	rec.Ownership = entityType.String
	rec.EnumerationDate = timePtr(enumerated)
	rec.LastUpdated = timePtr(updated)
	return rec, total, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
