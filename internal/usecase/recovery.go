package usecase

import (
	"context"
	"io"
	"log/slog"
	"time"

	"ContentRewriter/internal/domain"
	"ContentRewriter/internal/ports"
)

const defaultRecoveryRetry = time.Second

// Recovery re-dispatches tasks a previous process left pending or
// processing. Completed steps are served from their checkpoints.
type Recovery struct {
	tasks      ports.TaskStore
	dispatcher ports.Dispatcher
	retry      time.Duration
	logger     *slog.Logger
}

// NewRecovery builds a recovery sweep; retry spaces attempts while the
// dispatcher is saturated.
func NewRecovery(tasks ports.TaskStore, dispatcher ports.Dispatcher, retry time.Duration, logger *slog.Logger) *Recovery {
	if retry <= 0 {
		retry = defaultRecoveryRetry
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Recovery{tasks: tasks, dispatcher: dispatcher, retry: retry, logger: logger}
}

// Pending lists tasks untouched since before. Call it before new work is
// accepted so only orphans are returned.
func (r *Recovery) Pending(ctx context.Context, before time.Time) ([]domain.ItemTask, error) {
	tasks, err := r.tasks.ListUnfinished(ctx, before)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "list unfinished tasks", err)
	}
	return tasks, nil
}

// Resume dispatches tasks in order, waiting while the dispatcher refuses
// them. It returns how many were handed over before ctx ended.
func (r *Recovery) Resume(ctx context.Context, tasks []domain.ItemTask) int {
	resumed := 0
	for _, task := range tasks {
		for {
			err := r.dispatcher.Dispatch(ctx, task)
			if err == nil {
				resumed++
				r.logger.Info("task resumed", "task_id", task.TaskID, "stage", task.CurrentStep)
				break
			}
			r.logger.Debug("resume deferred", "task_id", task.TaskID, "error", err)
			if sleep(ctx, r.retry) != nil {
				r.logger.Warn("recovery stopped", "resumed", resumed, "remaining", len(tasks)-resumed)
				return resumed
			}
		}
	}
	return resumed
}
