package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilObservabilityIsSafe(t *testing.T) {
	var o *Observability
	ctx, span := o.StartStage(context.Background(), "normalize")
	span.End()

	o.RecordRun(ctx, time.Millisecond, "answered")
	o.RecordDegraded(ctx, "enrich")
	assert.NoError(t, o.Shutdown(ctx))
}

func TestNew_RecordsWithoutError(t *testing.T) {
	o, err := New("facility-search-test")
	require.NoError(t, err)

	ctx, span := o.StartStage(context.Background(), "query")
	o.RecordRun(ctx, 25*time.Millisecond, "answered")
	o.RecordDegraded(ctx, "synthesize")
	span.End()

	assert.NoError(t, o.Shutdown(context.Background()))
}
