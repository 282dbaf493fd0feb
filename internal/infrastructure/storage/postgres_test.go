package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"ContentRewriter/internal/domain"
)

func newMock(t *testing.T, opts ...Option) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store, err := NewPostgresStore(db, opts...)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	return store, mock
}

func taskRows() *sqlmock.Rows {
	return sqlmock.NewRows(taskColumns)
}

func TestPostgresCreateTaskDuplicate(t *testing.T) {
	t.Parallel()

	store, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO item_tasks`).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := store.CreateTask(context.Background(), domain.ItemTask{TaskID: "t1", CallbackURL: "http://cb"})
	if !errors.Is(err, domain.ErrTaskExists) {
		t.Fatalf("expected ErrTaskExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresGetTaskNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMock(t)
	mock.ExpectQuery(`SELECT .* FROM item_tasks WHERE task_id = \$1`).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.GetTask(context.Background(), "nope"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestPostgresUpdateTerminalTask(t *testing.T) {
	t.Parallel()

	store, mock := newMock(t)
	mock.ExpectExec(`UPDATE item_tasks SET .* WHERE task_id = \$\d+ AND status NOT IN`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	now := time.Now()
	rows := taskRows().AddRow("t1", nil, nil, "https://src", "ko", nil, nil,
		"http://cb", []byte(`{"generate_images":true}`), "completed", "completed", 100, 1,
		[]byte(`{"input":1,"output":2,"total":3}`), []byte(`{"task_id":"t1","status":"completed"}`), nil, now, now, nil, nil)
	mock.ExpectQuery(`SELECT .* FROM item_tasks`).WillReturnRows(rows)

	err := store.UpdateProgress(context.Background(), "t1", domain.ProgressUpdate{Status: domain.TaskProcessing})
	if !errors.Is(err, domain.ErrTaskTerminal) {
		t.Fatalf("expected ErrTaskTerminal, got %v", err)
	}
}

func TestPostgresGetTaskDecodes(t *testing.T) {
	t.Parallel()

	store, mock := newMock(t)
	now := time.Now()
	rows := taskRows().AddRow("t1", "item-9", nil, nil, "en", "openai", nil,
		"http://cb", []byte(`{"auto_publish":true,"publish_threshold":8}`), "failed", "failed", 40, 0,
		[]byte(`{"input":1,"output":2,"total":3}`), nil, []byte(`{"code":"PARSE_ERROR","message":"bad json"}`), now, now, "raw text", nil)
	mock.ExpectQuery(`SELECT .* FROM item_tasks`).WithArgs("t1").WillReturnRows(rows)

	task, err := store.GetTask(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.ItemID != "item-9" || task.Status != domain.TaskFailed || !task.Options.AutoPublish {
		t.Fatalf("unexpected task: %+v", task)
	}
	if task.TokenUsage.Total != 3 || task.Error == nil || task.Error.Code != "PARSE_ERROR" {
		t.Fatalf("json columns not decoded: %+v", task)
	}
	if task.SourceContent != "raw text" || task.CallbackSecret != "" {
		t.Fatalf("unexpected source or secret: %+v", task)
	}
}

func TestPostgresCreateTaskSealsSecret(t *testing.T) {
	t.Parallel()

	store, mock := newMock(t, WithSecretKey("at-rest-key"))
	mock.ExpectExec(`INSERT INTO item_tasks .*callback_secret`).
		WithArgs("t1", "", "", "", "text", "en", "", "", "http://cb", sqlmock.AnyArg(),
			"pending", "pending", sealedArg{box: store.box, want: "per-task"}).
		WillReturnResult(sqlmock.NewResult(1, 1))

	task := domain.ItemTask{TaskID: "t1", SourceContent: "text", Language: "en", CallbackURL: "http://cb", CallbackSecret: "per-task"}
	if err := store.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresListUnfinishedRestoresTasks(t *testing.T) {
	t.Parallel()

	store, mock := newMock(t, WithSecretKey("at-rest-key"))
	sealed, err := store.box.seal("per-task")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	cutoff := time.Now()
	created := cutoff.Add(-time.Hour)
	rows := taskRows().
		AddRow("t1", "item-1", "feed-1", nil, "en", nil, nil,
			"http://cb", []byte(`{}`), "processing", "writing", 40, 0,
			[]byte(`{"input":10,"output":5,"total":15}`), nil, nil, created, created, "saved body", sealed).
		AddRow("t2", nil, nil, "https://src", "ko", nil, nil,
			"http://cb", []byte(`{}`), "pending", "pending", 0, 0,
			nil, nil, nil, created, created, nil, nil)
	mock.ExpectQuery(`SELECT .* FROM item_tasks WHERE status IN \(\$1,\$2\) AND updated_at < \$3 ORDER BY created_at, task_id`).
		WithArgs("pending", "processing", cutoff).
		WillReturnRows(rows)

	tasks, err := store.ListUnfinished(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ListUnfinished: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].CallbackSecret != "per-task" || tasks[0].SourceContent != "saved body" || tasks[0].TokenUsage.Total != 15 {
		t.Fatalf("first task not restored: %+v", tasks[0])
	}
	if tasks[1].CallbackSecret != "" || tasks[1].SourceURL != "https://src" {
		t.Fatalf("second task not restored: %+v", tasks[1])
	}
}

func TestSecretBoxRejectsForeignKey(t *testing.T) {
	t.Parallel()

	a, _ := newSecretBox("one")
	b, _ := newSecretBox("two")
	sealed, err := a.seal("per-task")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if sealed == "per-task" {
		t.Fatal("secret stored in clear")
	}
	if plain, err := a.open(sealed); err != nil || plain != "per-task" {
		t.Fatalf("open = %q, %v", plain, err)
	}
	if _, err := b.open(sealed); err == nil {
		t.Fatal("expected error opening with another key")
	}
	if _, err := a.open("plain"); err == nil {
		t.Fatal("expected error for unsealed value")
	}
}

// sealedArg matches a sealed column value that opens to want.
type sealedArg struct {
	box  *secretBox
	want string
}

func (a sealedArg) Match(v driver.Value) bool {
	ns, ok := v.(sql.NullString)
	if ok {
		v = ns.String
	}
	s, ok := v.(string)
	if !ok || s == a.want {
		return false
	}
	plain, err := a.box.open(s)
	return err == nil && plain == a.want
}

func TestPostgresStepsRoundTrip(t *testing.T) {
	t.Parallel()

	store, mock := newMock(t)
	mock.ExpectQuery(`SELECT result FROM workflow_steps`).
		WithArgs("t1", "outline").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO workflow_steps .* ON CONFLICT \(scope, step_name\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	ctx := context.Background()
	if _, ok, err := store.LoadStep(ctx, "t1", "outline"); ok || err != nil {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	if err := store.SaveStep(ctx, "t1", "outline", []byte(`{}`)); err != nil {
		t.Fatalf("SaveStep: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
