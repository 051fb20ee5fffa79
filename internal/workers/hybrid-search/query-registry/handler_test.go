package queryregistry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "facility-search-workers/internal/common/errors"
	"facility-search-workers/internal/lookup"
	"facility-search-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestLogger struct {
	t *testing.T
}

func (l *TestLogger) Info(msg string, fields map[string]interface{})  { l.t.Logf("INFO: %s %v", msg, fields) }
func (l *TestLogger) Warn(msg string, fields map[string]interface{})  { l.t.Logf("WARN: %s %v", msg, fields) }
func (l *TestLogger) Error(msg string, fields map[string]interface{}) { l.t.Logf("ERROR: %s %v", msg, fields) }

// fakeRegistry returns n rows regardless of the requested limit.
type fakeRegistry struct {
	n        int
	total    int
	err      error
	delay    time.Duration
	received Predicates
}

func (f *fakeRegistry) Name() string { return "fake" }

func (f *fakeRegistry) Search(ctx context.Context, p Predicates) ([]models.EntityRecord, int, error) {
	f.received = p
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, 0, f.err
	}
	rows := make([]models.EntityRecord, f.n)
	for i := range rows {
		rows[i] = models.EntityRecord{ID: int64(i + 1), Name: fmt.Sprintf("Facility %d", i+1)}
	}
	return rows, f.total, nil
}

func createTestConfig() *Config {
	cfg := LoadConfig()
	cfg.Timeout = time.Second
	return cfg
}

func TestQuery_BoroughResolvesToCity(t *testing.T) {
	reg := &fakeRegistry{n: 3, total: 3}
	h := NewHandler(createTestConfig(), reg, lookup.Default(), &TestLogger{t: t})

	res, err := h.Query(context.Background(), models.ParsedIntent{
		Intent:          models.IntentList,
		Location:        models.Location{City: "New York", State: "New York"},
		Filters:         models.Filters{FacilityTypes: []string{"Urgent Care", "Urgent Care Center"}},
		RequestedFields: []string{"name", "address", "phone"},
		Limit:           10,
	})

	require.NoError(t, err)
	assert.Len(t, res.Rows, 3)
	assert.Equal(t, 3, res.TotalCount)
	assert.Equal(t, []string{"name", "address", "phone"}, res.AvailableFields)
	assert.Empty(t, res.MissingFields)
	assert.Contains(t, reg.received.Cities, "Manhattan")
	assert.Equal(t, "NY", reg.received.StateCode)
}

func TestQuery_RowCountNeverExceedsCap(t *testing.T) {
	reg := &fakeRegistry{n: 250, total: 250}
	h := NewHandler(createTestConfig(), reg, lookup.Default(), &TestLogger{t: t})

	for _, limit := range []int{1, 50, 100, 101, 10000} {
		res, err := h.Query(context.Background(), models.ParsedIntent{Limit: limit})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(res.Rows), 100, "limit %d", limit)
		assert.LessOrEqual(t, reg.received.Limit, 100)
		assert.Equal(t, 250, res.TotalCount)
	}
}

func TestQuery_MissingEnrichmentFields(t *testing.T) {
	h := NewHandler(createTestConfig(), &fakeRegistry{n: 1, total: 1}, lookup.Default(), &TestLogger{t: t})

	res, err := h.Query(context.Background(), models.ParsedIntent{
		RequestedFields: []string{"name", "beds", "ratings"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, res.AvailableFields)
	assert.Equal(t, []string{"beds", "ratings"}, res.MissingFields)
}

func TestQuery_EmptyResultIsNotNil(t *testing.T) {
	h := NewHandler(createTestConfig(), &fakeRegistry{}, lookup.Default(), &TestLogger{t: t})

	res, err := h.Query(context.Background(), models.ParsedIntent{})
	require.NoError(t, err)
	assert.NotNil(t, res.Rows)
	assert.Equal(t, 0, res.TotalCount)
}

func TestQuery_Errors(t *testing.T) {
	t.Run("backend failure", func(t *testing.T) {
		h := NewHandler(createTestConfig(), &fakeRegistry{err: errors.New("connection refused")}, lookup.Default(), &TestLogger{t: t})

		_, err := h.Query(context.Background(), models.ParsedIntent{})
		require.Error(t, err)
		stdErr := apperrors.AsStandardError(err)
		assert.Equal(t, apperrors.ErrCodeRegistryQueryFailed, stdErr.Code)
		assert.True(t, stdErr.Retryable)
	})

	t.Run("timeout", func(t *testing.T) {
		cfg := createTestConfig()
		cfg.Timeout = 20 * time.Millisecond
		h := NewHandler(cfg, &fakeRegistry{delay: time.Second}, lookup.Default(), &TestLogger{t: t})

		_, err := h.Query(context.Background(), models.ParsedIntent{})
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeRegistryQueryTimeout, apperrors.AsStandardError(err).Code)
	})
}
