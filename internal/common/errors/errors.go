package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

type ErrorCode string

const (
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	ErrCodeIntentParsingFailed ErrorCode = "INTENT_PARSING_FAILED"
	ErrCodeGenAIUnavailable    ErrorCode = "GENAI_UNAVAILABLE"

	ErrCodeRegistryQueryFailed     ErrorCode = "REGISTRY_QUERY_FAILED"
	ErrCodeRegistryQueryTimeout    ErrorCode = "REGISTRY_QUERY_TIMEOUT"
	ErrCodeRegistryConnectionError ErrorCode = "REGISTRY_CONNECTION_FAILED"

	ErrCodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"

	ErrCodeEnrichmentFetchFailed ErrorCode = "ENRICHMENT_FETCH_FAILED"
	ErrCodeEnrichmentParseFailed ErrorCode = "ENRICHMENT_PARSE_FAILED"

	ErrCodeSynthesisFailed ErrorCode = "SYNTHESIS_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError is the typed failure carried between stages and onto job
// variables. Its Code never reaches the end-user answer text.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata returns e after attaching key=value.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid job input", details, false)
}

func NewIntentParsingFailedError(err error) *StandardError {
	return newError(ErrCodeIntentParsingFailed, "Intent extraction failed", err.Error(), true)
}

func NewGenAIUnavailableError(boundary string, err error) *StandardError {
	return newError(ErrCodeGenAIUnavailable, "Text generation backend unavailable",
		fmt.Sprintf("boundary: %s, error: %s", boundary, err.Error()), true)
}

func NewRegistryQueryFailedError(backend string, err error) *StandardError {
	return newError(ErrCodeRegistryQueryFailed, "Registry query execution error",
		fmt.Sprintf("backend: %s, error: %s", backend, err.Error()), true)
}

func NewRegistryQueryTimeoutError(backend string) *StandardError {
	return newError(ErrCodeRegistryQueryTimeout, "Registry query timeout",
		fmt.Sprintf("backend: %s", backend), true)
}

func NewRegistryConnectionError(err error) *StandardError {
	return newError(ErrCodeRegistryConnectionError, "Registry connection error", err.Error(), true)
}

func NewCacheUnavailableError(backend string, err error) *StandardError {
	return newError(ErrCodeCacheUnavailable, "Enrichment cache unavailable",
		fmt.Sprintf("backend: %s, error: %s", backend, err.Error()), false)
}

func NewEnrichmentFetchFailedError(err error) *StandardError {
	return newError(ErrCodeEnrichmentFetchFailed, "Enrichment lookup failed", err.Error(), false)
}

func NewEnrichmentParseFailedError(details string) *StandardError {
	return newError(ErrCodeEnrichmentParseFailed, "Enrichment response could not be parsed", details, false)
}

func NewSynthesisFailedError(err error) *StandardError {
	return newError(ErrCodeSynthesisFailed, "Response synthesis failed", err.Error(), false)
}

// AsStandardError unwraps err into a StandardError, wrapping unknown errors as
// INTERNAL_ERROR.
func AsStandardError(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false)
}

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidInput:            "INVALID_INPUT",
	ErrCodeIntentParsingFailed:     "INTENT_PARSING_FAILED",
	ErrCodeGenAIUnavailable:        "GENAI_UNAVAILABLE",
	ErrCodeRegistryQueryFailed:     "REGISTRY_QUERY_FAILED",
	ErrCodeRegistryQueryTimeout:    "REGISTRY_QUERY_TIMEOUT",
	ErrCodeRegistryConnectionError: "REGISTRY_CONNECTION_FAILED",
	ErrCodeCacheUnavailable:        "CACHE_UNAVAILABLE",
	ErrCodeEnrichmentFetchFailed:   "ENRICHMENT_FETCH_FAILED",
	ErrCodeEnrichmentParseFailed:   "ENRICHMENT_PARSE_FAILED",
	ErrCodeSynthesisFailed:         "SYNTHESIS_FAILED",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeRegistryQueryFailed,
		ErrCodeRegistryConnectionError,
		ErrCodeGenAIUnavailable,
		ErrCodeIntentParsingFailed:
		return 3

	case ErrCodeRegistryQueryTimeout:
		return 2

	default:
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "REGISTRY"):
		return "REGISTRY"
	case strings.HasPrefix(codeStr, "CACHE"):
		return "CACHE"
	case strings.HasPrefix(codeStr, "ENRICHMENT"):
		return "ENRICHMENT"
	case strings.Contains(codeStr, "INTENT") || strings.Contains(codeStr, "GENAI") || strings.Contains(codeStr, "SYNTHESIS"):
		return "AI"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
