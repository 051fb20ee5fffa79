package resolvequery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	apperrors "facility-search-workers/internal/common/errors"
	"facility-search-workers/internal/lookup"
	"facility-search-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingInvalidator struct{}

func (failingInvalidator) Invalidate(context.Context, string, ...string) (int64, error) {
	return 0, errors.New("connection refused")
}

func newRefreshHandler(t *testing.T, p *pipeline) *RefreshHandler {
	return NewRefreshHandler(createTestConfig(), p.cache, p.fetcher, lookup.Default(), &TestLogger{t: t})
}

func TestRefresh_ReplacesCachedValue(t *testing.T) {
	p := newPipeline(t, nil)
	entity := clinics(1)[0]
	ctx := context.Background()
	require.NoError(t, p.cache.Upsert(ctx, entity.CacheKey(), "beds", json.RawMessage(`12`), "old survey"))

	p.fetchGen.respond = bedsResponse(48)
	out, err := newRefreshHandler(t, p).Refresh(ctx, entity, []string{"bed_count", "phone"})

	require.NoError(t, err)
	assert.Equal(t, entity.CacheKey(), out.EntityID)
	assert.Equal(t, int64(1), out.Invalidated)
	require.Contains(t, out.Values, "beds")
	assert.JSONEq(t, `48`, string(out.Values["beds"].Value))
	assert.Empty(t, out.Unresolved)
	assert.Equal(t, int32(1), p.fetchGen.calls.Load())
	assert.NotContains(t, p.fetchGen.prompts[0], "- phone", "structured fields are never refetched")

	cached, ok := p.cache.Get(ctx, entity.CacheKey(), "beds")
	require.True(t, ok)
	assert.JSONEq(t, `48`, string(cached.Value))
	assert.Equal(t, "state licensing", cached.Source)
}

func TestRefresh_DefaultsToAllEnrichmentFields(t *testing.T) {
	p := newPipeline(t, nil)
	p.fetchGen.respond = bedsResponse(48)

	out, err := newRefreshHandler(t, p).Refresh(context.Background(), clinics(1)[0], nil)

	require.NoError(t, err)
	assert.Contains(t, out.Values, "beds")
	assert.Equal(t, len(lookup.Default().EnrichmentFields())-1, len(out.Unresolved))
}

func TestRefresh_Errors(t *testing.T) {
	tests := []struct {
		name     string
		entity   models.EntityRecord
		setup    func(p *pipeline)
		override func(h *RefreshHandler)
		wantCode apperrors.ErrorCode
	}{
		{
			name:     "entity without id",
			entity:   models.EntityRecord{Name: "Bayview Clinic 1"},
			wantCode: apperrors.ErrCodeInvalidInput,
		},
		{
			name:     "fetch failed",
			entity:   clinics(1)[0],
			wantCode: apperrors.ErrCodeEnrichmentFetchFailed,
		},
		{
			name:     "unparseable response",
			entity:   clinics(1)[0],
			setup:    func(p *pipeline) { p.fetchGen.respond = func(string) (string, error) { return "I could not find that facility.", nil } },
			wantCode: apperrors.ErrCodeEnrichmentParseFailed,
		},
		{
			name:     "cache down",
			entity:   clinics(1)[0],
			override: func(h *RefreshHandler) { h.cache = failingInvalidator{} },
			wantCode: apperrors.ErrCodeCacheUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, nil)
			if tt.setup != nil {
				tt.setup(p)
			}
			h := newRefreshHandler(t, p)
			if tt.override != nil {
				tt.override(h)
			}

			_, err := h.Refresh(context.Background(), tt.entity, []string{"beds"})

			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperrors.AsStandardError(err).Code)
		})
	}
}
