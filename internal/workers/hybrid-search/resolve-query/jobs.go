package resolvequery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "facility-search-workers/internal/common/errors"
	"facility-search-workers/internal/common/metrics"
	"facility-search-workers/internal/common/validation"
)

// jobRunner completes or fails Zeebe jobs for one task type.
type jobRunner struct {
	taskType string
	schema   *validation.SchemaValidator
	errors   *apperrors.ErrorHandler
	logger   Logger
}

func newJobRunner(taskType string, log Logger) *jobRunner {
	return &jobRunner{
		taskType: taskType,
		errors:   apperrors.NewErrorHandler(log),
		logger:   log,
	}
}

// decode checks the job variables against the input schema, when one is set,
// and unmarshals them into v.
func (r *jobRunner) decode(job entities.Job, v interface{}) error {
	raw := []byte(job.Variables)
	if r.schema != nil {
		result, err := r.schema.ValidateBytes(raw)
		if err != nil {
			return apperrors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err))
		}
		if !result.Valid {
			return apperrors.NewInvalidInputError(result.Summary())
		}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err))
	}
	return nil
}

func (r *jobRunner) complete(client worker.JobClient, job entities.Job, output interface{}) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		r.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	if _, err := cmd.Send(context.Background()); err != nil {
		r.logger.Error("Failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(r.taskType).Inc()
}

func (r *jobRunner) fail(client worker.JobClient, job entities.Job, err error) {
	stdErr := apperrors.AsStandardError(err)
	metrics.WorkerJobsFailed.WithLabelValues(r.taskType, string(stdErr.Code)).Inc()
	r.errors.HandleJobError(context.Background(), client, job, stdErr)
}
