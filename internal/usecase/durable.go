package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"ContentRewriter/internal/domain"
	"ContentRewriter/internal/ports"
)

// StepRunner executes named steps with checkpointing and bounded retries.
// A step that completed under a scope is never executed again for that
// scope; its stored result is returned instead.
type StepRunner struct {
	store    ports.StepStore
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

// NewStepRunner wires a checkpoint store; attempts defaults to 1.
func NewStepRunner(store ports.StepStore, attempts int, backoff time.Duration, logger *slog.Logger) *StepRunner {
	if attempts <= 0 {
		attempts = 1
	}
	return &StepRunner{store: store, attempts: attempts, backoff: backoff, logger: logger}
}

// runStep is generic over the step result, so it cannot be a method.
func runStep[T any](ctx context.Context, r *StepRunner, scope, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if out, ok := loadCheckpoint[T](ctx, r, scope, name); ok {
		return out, nil
	}

	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			saveCheckpoint(ctx, r, scope, name, out)
			return out, nil
		}
		lastErr = err

		if attempt == r.attempts || domain.KindOf(err) == domain.KindValidation {
			break
		}
		delay := r.backoff * time.Duration(1<<(attempt-1))
		r.warn("step failed, retrying", "scope", scope, "step", name, "attempt", attempt, "delay", delay, "error", err)
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

func loadCheckpoint[T any](ctx context.Context, r *StepRunner, scope, name string) (T, bool) {
	var out T
	if r.store == nil {
		return out, false
	}
	raw, ok, err := r.store.LoadStep(ctx, scope, name)
	if err != nil {
		r.warn("load checkpoint failed", "scope", scope, "step", name, "error", err)
		return out, false
	}
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		r.warn("checkpoint unreadable, re-running step", "scope", scope, "step", name, "error", err)
		return out, false
	}
	return out, true
}

func saveCheckpoint(ctx context.Context, r *StepRunner, scope, name string, out any) {
	if r.store == nil {
		return
	}
	raw, err := json.Marshal(out)
	if err != nil {
		r.warn("encode checkpoint failed", "scope", scope, "step", name, "error", err)
		return
	}
	if err := r.store.SaveStep(ctx, scope, name, raw); err != nil {
		r.warn("save checkpoint failed", "scope", scope, "step", name, "error", err)
	}
}

func (r *StepRunner) warn(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}

// sleep is a cancellable delay.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
