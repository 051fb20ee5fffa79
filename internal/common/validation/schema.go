package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Summary joins the individual errors into one line for logging.
func (r *ValidationResult) Summary() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

// SchemaValidator holds a compiled JSON schema. It is safe for concurrent use.
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

func NewSchemaValidator(schemaJSON string) (*SchemaValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// MustSchemaValidator is for package-level schemas known at compile time.
func MustSchemaValidator(schemaJSON string) *SchemaValidator {
	v, err := NewSchemaValidator(schemaJSON)
	if err != nil {
		panic(err)
	}
	return v
}

// ValidateBytes validates a raw JSON document.
func (v *SchemaValidator) ValidateBytes(doc []byte) (*ValidationResult, error) {
	return v.validate(gojsonschema.NewBytesLoader(doc))
}

// ValidateValue validates an already-decoded Go value.
func (v *SchemaValidator) ValidateValue(doc interface{}) (*ValidationResult, error) {
	return v.validate(gojsonschema.NewGoLoader(doc))
}

func (v *SchemaValidator) validate(loader gojsonschema.JSONLoader) (*ValidationResult, error) {
	result, err := v.schema.Validate(loader)
	if err != nil {
		return nil, fmt.Errorf("validate document: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out, nil
}
