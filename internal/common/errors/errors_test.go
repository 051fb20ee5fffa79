package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsStandardError(t *testing.T) {
	assert.Nil(t, AsStandardError(nil))

	orig := NewRegistryQueryTimeoutError("postgres")
	wrapped := fmt.Errorf("stage query: %w", orig)
	assert.Same(t, orig, AsStandardError(wrapped))

	other := AsStandardError(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, other.Code)
	assert.Equal(t, "boom", other.Details)
	assert.False(t, other.Retryable)
}

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name        string
		err         *StandardError
		wantCode    string
		wantRetries int
	}{
		{"registry failure retries", NewRegistryQueryFailedError("postgres", stderrors.New("conn reset")), "REGISTRY_QUERY_FAILED", 3},
		{"registry timeout", NewRegistryQueryTimeoutError("elasticsearch"), "REGISTRY_QUERY_TIMEOUT", 2},
		{"invalid input never retries", NewInvalidInputError("bad json"), "INVALID_INPUT", 0},
		{"cache unavailable is not retryable", NewCacheUnavailableError("redis", stderrors.New("dial tcp")), "CACHE_UNAVAILABLE", 0},
		{"unmapped code passes through", &StandardError{Code: "CUSTOM", Retryable: true}, "CUSTOM", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmn := ConvertToBPMNError(tt.err)
			assert.Equal(t, tt.wantCode, bpmn.Code)
			assert.Equal(t, tt.wantRetries, bpmn.Retries)

			vars := bpmn.ToErrorVariables()
			assert.Equal(t, tt.wantCode, vars["errorCode"])
			assert.Equal(t, string(tt.err.Code), vars["originalErrorCode"])
		})
	}
}

func TestGetErrorCategory(t *testing.T) {
	tests := map[ErrorCode]string{
		ErrCodeRegistryQueryTimeout:  "REGISTRY",
		ErrCodeCacheUnavailable:      "CACHE",
		ErrCodeEnrichmentParseFailed: "ENRICHMENT",
		ErrCodeSynthesisFailed:       "AI",
		ErrCodeGenAIUnavailable:      "AI",
		ErrCodeInvalidInput:          "VALIDATION",
		ErrCodeInternal:              "OTHER",
	}
	for code, want := range tests {
		assert.Equal(t, want, GetErrorCategory(code), string(code))
	}
}

func TestWithMetadata(t *testing.T) {
	err := NewEnrichmentFetchFailedError(stderrors.New("429")).WithMetadata("entities", 12)
	require.NotNil(t, err.Metadata)
	assert.Equal(t, 12, err.Metadata["entities"])
	assert.Contains(t, err.Error(), "ENRICHMENT_FETCH_FAILED")
	assert.True(t, IsRetryableErrorCode(ErrCodeIntentParsingFailed))
	assert.False(t, IsRetryableErrorCode(ErrCodeSynthesisFailed))
}
