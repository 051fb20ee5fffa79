// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.uber.org/zap"

	"facility-search-workers/internal/common/config"
)

// HandlerFunc completes or fails the job itself; it returns nothing.
type HandlerFunc func(client worker.JobClient, job entities.Job)

type Worker struct {
	worker   worker.JobWorker
	logger   *zap.Logger
	taskType string
}

// StartWorker opens a job worker for taskType. It returns nil when the worker
// is disabled in config.
func StartWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handler HandlerFunc, logger *zap.Logger) *Worker {
	if !wcfg.Enabled {
		logger.Info("worker disabled", zap.String("taskType", taskType))
		return nil
	}

	jobWorker := client.NewJobWorker().
		JobType(taskType).
		Handler(worker.JobHandler(handler)).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	logger.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
	return &Worker{worker: jobWorker, logger: logger, taskType: taskType}
}

func (w *Worker) TaskType() string { return w.taskType }

// Stop closes the job worker and waits for in-flight handlers. The shared
// client stays open.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker", zap.String("taskType", w.taskType))
	w.worker.Close()
	w.worker.AwaitClose()
}
