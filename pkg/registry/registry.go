// pkg/registry/registry.go
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"time"

	apperrors "facility-search-workers/internal/common/errors"
	"facility-search-workers/internal/common/validation"
)

//go:embed activities.json
var defaultCatalog []byte

// Default returns the catalog compiled into the binary.
func Default() (*ActivityRegistry, error) {
	return parse(defaultCatalog)
}

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parse(data)
}

func parse(data []byte) (*ActivityRegistry, error) {
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse activity registry: %w", err)
	}
	return &reg, nil
}

func (r *ActivityRegistry) Find(taskType string) (*Activity, bool) {
	for i := range r.Activities {
		if r.Activities[i].TaskType == taskType {
			return &r.Activities[i], true
		}
	}
	return nil, false
}

// Validate checks required fields, uniqueness, timeouts, error codes and that
// every input schema compiles.
func (r *ActivityRegistry) Validate() error {
	if len(r.Activities) == 0 {
		return fmt.Errorf("registry contains no activities")
	}

	ids := make(map[string]bool)
	taskTypes := make(map[string]bool)
	for i := range r.Activities {
		a := &r.Activities[i]
		if a.ID == "" {
			return fmt.Errorf("activity missing required field: ID")
		}
		if ids[a.ID] {
			return fmt.Errorf("duplicate activity ID: %s", a.ID)
		}
		ids[a.ID] = true

		if a.DisplayName == "" {
			return fmt.Errorf("activity %s missing required field: DisplayName", a.ID)
		}
		if a.TaskType == "" {
			return fmt.Errorf("activity %s missing required field: TaskType", a.ID)
		}
		if taskTypes[a.TaskType] {
			return fmt.Errorf("duplicate task type: %s", a.TaskType)
		}
		taskTypes[a.TaskType] = true

		if a.Timeout != "" {
			if _, err := time.ParseDuration(a.Timeout); err != nil {
				return fmt.Errorf("activity %s: invalid timeout %q", a.ID, a.Timeout)
			}
		}
		for _, code := range a.ErrorCodes {
			if _, ok := apperrors.BPMNErrorMapping[apperrors.ErrorCode(code)]; !ok {
				return fmt.Errorf("activity %s: unknown error code %s", a.ID, code)
			}
		}
		if _, err := a.InputValidator(); err != nil {
			return fmt.Errorf("activity %s: %w", a.ID, err)
		}
	}
	return nil
}

// InputValidator compiles the activity's input schema. A missing schema
// yields a nil validator.
func (a *Activity) InputValidator() (*validation.SchemaValidator, error) {
	if len(a.InputSchema) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(a.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("encode input schema: %w", err)
	}
	return validation.NewSchemaValidator(string(raw))
}
