package resolvequery

import (
	"encoding/json"
	"testing"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "facility-search-workers/internal/common/errors"
	"facility-search-workers/internal/common/validation"
)

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)

	activatedJob := &pb.ActivatedJob{
		Key:                key,
		Type:               TaskType,
		ProcessInstanceKey: key * 10,
		BpmnProcessId:      "facility-search",
		ElementId:          "Activity_ResolveQuery",
		CustomHeaders:      "{}",
		Worker:             "test-worker",
		Retries:            3,
		Variables:          string(variablesJSON),
	}
	return entities.Job{ActivatedJob: activatedJob}
}

const querySchema = `{
	"type": "object",
	"required": ["query"],
	"properties": {
		"query": {"type": "string"},
		"history": {"type": "array"}
	}
}`

func TestJobRunner_Decode(t *testing.T) {
	runner := newJobRunner(TaskType, &TestLogger{t: t})
	runner.schema = validation.MustSchemaValidator(querySchema)

	t.Run("valid", func(t *testing.T) {
		var input Input
		err := runner.decode(createMockJob(1, map[string]interface{}{
			"query":   "hospitals in Austin, TX",
			"history": []map[string]string{{"role": "user", "content": "hi"}},
		}), &input)
		require.NoError(t, err)
		assert.Equal(t, "hospitals in Austin, TX", input.Query)
		require.Len(t, input.History, 1)
	})

	t.Run("missing query", func(t *testing.T) {
		var input Input
		err := runner.decode(createMockJob(2, map[string]interface{}{"history": []interface{}{}}), &input)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.AsStandardError(err).Code)
		assert.Contains(t, err.(*apperrors.StandardError).Details, "query")
	})

	t.Run("wrong type", func(t *testing.T) {
		var input Input
		err := runner.decode(createMockJob(3, map[string]interface{}{"query": 42}), &input)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.AsStandardError(err).Code)
	})
}

func TestJobRunner_DecodeWithoutSchema(t *testing.T) {
	runner := newJobRunner(RefreshTaskType, &TestLogger{t: t})

	var input RefreshInput
	err := runner.decode(createMockJob(4, map[string]interface{}{
		"entity": map[string]interface{}{"id": 7, "name": "Bayview Clinic 1"},
		"fields": []string{"beds"},
	}), &input)
	require.NoError(t, err)
	assert.Equal(t, int64(7), input.Entity.ID)
	assert.Equal(t, []string{"beds"}, input.Fields)

	job := createMockJob(5, nil)
	job.Variables = "{not json"
	err = runner.decode(job, &input)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.AsStandardError(err).Code)
}
