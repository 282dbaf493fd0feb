package usecase

import (
	"context"
	"time"

	"ContentRewriter/internal/ports"
)

// BatchRunner is the part of the orchestrator the scheduler triggers.
type BatchRunner interface {
	Run(ctx context.Context, runID string) BatchResult
}

// Scheduler wires the cron driver with the batch orchestrator.
type Scheduler struct {
	driver ports.Scheduler
	batch  BatchRunner
	newID  func(time.Time) string
}

// NewScheduler returns a helper to start/stop recurring batch runs.
func NewScheduler(driver ports.Scheduler, batch BatchRunner) *Scheduler {
	return &Scheduler{driver: driver, batch: batch, newID: runIDFor}
}

// Start registers the batch run with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.batch == nil {
		return nil
	}

	job := func(trigger time.Time) {
		_ = s.batch.Run(ctx, s.newID(trigger))
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

// runIDFor names a run after its trigger minute, so a retried trigger
// resumes the same checkpoints.
func runIDFor(trigger time.Time) string {
	return "cron-" + trigger.UTC().Format("20060102T1504")
}
