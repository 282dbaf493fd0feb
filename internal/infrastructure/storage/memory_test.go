package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"ContentRewriter/internal/domain"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	task := domain.ItemTask{TaskID: "t1", SourceContent: "x", CallbackURL: "http://cb", Language: "ko"}
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := store.CreateTask(ctx, task); !errors.Is(err, domain.ErrTaskExists) {
		t.Fatalf("duplicate create should fail, got %v", err)
	}

	got, err := store.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != domain.TaskPending || got.CurrentStep != domain.StagePending {
		t.Fatalf("unexpected initial state: %+v", got)
	}

	err = store.UpdateProgress(ctx, "t1", domain.ProgressUpdate{
		Status: domain.TaskProcessing, CurrentStep: domain.StageWriting, Progress: 40,
	})
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	if err := store.FailTask(ctx, "t1", domain.TaskError{Code: "PARSE_ERROR", Message: "bad"}, domain.TokenUsage{Total: 3}); err != nil {
		t.Fatalf("FailTask: %v", err)
	}
	if err := store.UpdateProgress(ctx, "t1", domain.ProgressUpdate{Status: domain.TaskProcessing}); !errors.Is(err, domain.ErrTaskTerminal) {
		t.Fatalf("terminal task must not change, got %v", err)
	}
	if err := store.CompleteTask(ctx, "t1", domain.WebhookPayload{}); !errors.Is(err, domain.ErrTaskTerminal) {
		t.Fatalf("terminal task must not complete, got %v", err)
	}

	got, _ = store.GetTask(ctx, "t1")
	if got.Status != domain.TaskFailed || got.Error == nil || got.Error.Code != "PARSE_ERROR" {
		t.Fatalf("unexpected final state: %+v", got)
	}

	if _, err := store.GetTask(ctx, "missing"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreSteps(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	if _, ok, _ := store.LoadStep(ctx, "t1", "outline"); ok {
		t.Fatalf("empty store should not have steps")
	}
	_ = store.SaveStep(ctx, "t1", "outline", []byte(`{"a":1}`))
	_ = store.SaveStep(ctx, "t1", "outline", []byte(`{"a":2}`))

	raw, ok, err := store.LoadStep(ctx, "t1", "outline")
	if err != nil || !ok {
		t.Fatalf("LoadStep: ok=%v err=%v", ok, err)
	}
	if string(raw) != `{"a":1}` {
		t.Fatalf("first checkpoint must win, got %s", raw)
	}
	if _, ok, _ := store.LoadStep(ctx, "t2", "outline"); ok {
		t.Fatalf("steps must be scoped")
	}
}

func TestMemoryStoreListUnfinished(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	clock := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	for _, id := range []string{"b", "a", "done", "late"} {
		if id == "late" {
			clock = clock.Add(time.Hour)
		}
		task := domain.ItemTask{TaskID: id, CallbackURL: "http://cb", CallbackSecret: "s-" + id}
		if err := store.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask %s: %v", id, err)
		}
	}
	if err := store.CompleteTask(ctx, "done", domain.WebhookPayload{}); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}

	got, err := store.ListUnfinished(ctx, clock)
	if err != nil {
		t.Fatalf("ListUnfinished: %v", err)
	}
	if len(got) != 2 || got[0].TaskID != "a" || got[1].TaskID != "b" {
		t.Fatalf("unexpected unfinished tasks: %+v", got)
	}
	if got[0].CallbackSecret != "s-a" {
		t.Fatalf("secret not kept: %q", got[0].CallbackSecret)
	}
}
