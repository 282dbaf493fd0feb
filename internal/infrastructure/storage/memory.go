package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"ContentRewriter/internal/domain"
	"ContentRewriter/internal/ports"
)

// MemoryStore keeps tasks and step checkpoints in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]domain.ItemTask
	steps map[string][]byte
	now   func() time.Time
}

var (
	_ ports.TaskStore = (*MemoryStore)(nil)
	_ ports.StepStore = (*MemoryStore)(nil)
)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: map[string]domain.ItemTask{},
		steps: map[string][]byte{},
		now:   time.Now,
	}
}

// CreateTask inserts a new task; duplicate ids are rejected.
func (m *MemoryStore) CreateTask(_ context.Context, task domain.ItemTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[task.TaskID]; ok {
		return domain.ErrTaskExists
	}
	now := m.now().UTC()
	if task.Status == "" {
		task.Status = domain.TaskPending
	}
	if task.CurrentStep == "" {
		task.CurrentStep = domain.StagePending
	}
	task.CreatedAt = now
	task.UpdatedAt = now
	m.tasks[task.TaskID] = task
	return nil
}

// GetTask returns a copy of the stored task.
func (m *MemoryStore) GetTask(_ context.Context, taskID string) (domain.ItemTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return domain.ItemTask{}, domain.ErrTaskNotFound
	}
	return task, nil
}

// ListUnfinished returns pending and processing tasks last touched before
// the cutoff, oldest first.
func (m *MemoryStore) ListUnfinished(_ context.Context, updatedBefore time.Time) ([]domain.ItemTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.ItemTask
	for _, t := range m.tasks {
		if t.Status.Terminal() || !t.UpdatedAt.Before(updatedBefore) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].TaskID < out[j].TaskID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateProgress records a non-terminal transition.
func (m *MemoryStore) UpdateProgress(_ context.Context, taskID string, u domain.ProgressUpdate) error {
	return m.mutate(taskID, func(t *domain.ItemTask) {
		t.Status = u.Status
		t.CurrentStep = u.CurrentStep
		t.Progress = u.Progress
		t.RetryCount = u.RetryCount
		t.TokenUsage = u.TokenUsage
	})
}

// CompleteTask stores the delivered payload and finalizes the task.
func (m *MemoryStore) CompleteTask(_ context.Context, taskID string, result domain.WebhookPayload) error {
	return m.mutate(taskID, func(t *domain.ItemTask) {
		t.Status = domain.TaskCompleted
		t.CurrentStep = domain.StageCompleted
		t.Progress = 100
		t.RetryCount = result.Metrics.RetryCount
		t.TokenUsage = result.Metrics.TokenUsage
		payload := result
		t.Result = &payload
	})
}

// FailTask finalizes the task with an error.
func (m *MemoryStore) FailTask(_ context.Context, taskID string, taskErr domain.TaskError, usage domain.TokenUsage) error {
	return m.mutate(taskID, func(t *domain.ItemTask) {
		t.Status = domain.TaskFailed
		t.CurrentStep = domain.StageFailed
		t.TokenUsage = usage
		e := taskErr
		t.Error = &e
	})
}

func (m *MemoryStore) mutate(taskID string, fn func(*domain.ItemTask)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return domain.ErrTaskNotFound
	}
	if task.Status.Terminal() {
		return domain.ErrTaskTerminal
	}
	fn(&task)
	task.UpdatedAt = m.now().UTC()
	m.tasks[taskID] = task
	return nil
}

// LoadStep returns a checkpointed step result.
func (m *MemoryStore) LoadStep(_ context.Context, scope, step string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, ok := m.steps[stepKey(scope, step)]
	return raw, ok, nil
}

// SaveStep checkpoints a step result; a second save keeps the first result.
func (m *MemoryStore) SaveStep(_ context.Context, scope, step string, result []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := stepKey(scope, step)
	if _, ok := m.steps[key]; ok {
		return nil
	}
	m.steps[key] = append([]byte(nil), result...)
	return nil
}

func stepKey(scope, step string) string {
	return scope + ":" + step
}
