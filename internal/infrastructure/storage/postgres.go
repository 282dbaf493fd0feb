package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"ContentRewriter/internal/domain"
	"ContentRewriter/internal/ports"
)

const uniqueViolation = "23505"

var (
	terminalStatuses   = []string{string(domain.TaskCompleted), string(domain.TaskFailed)}
	unfinishedStatuses = []string{string(domain.TaskPending), string(domain.TaskProcessing)}

	taskColumns = []string{
		"task_id", "item_id", "feed_id", "source_url", "language", "ai_provider", "ai_model",
		"callback_url", "options", "status", "current_step", "progress", "retry_count",
		"token_usage", "result", "error", "created_at", "updated_at",
		"source_content", "callback_secret",
	}
)

// PostgresStore persists tasks and step checkpoints into Postgres.
type PostgresStore struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	box *secretBox
}

// Option customizes a PostgresStore.
type Option func(*PostgresStore) error

// WithSecretKey seals callback secrets at rest. Without it secrets are not
// persisted and a recovered task signs with the default secret.
func WithSecretKey(key string) Option {
	return func(s *PostgresStore) error {
		if key == "" {
			return nil
		}
		box, err := newSecretBox(key)
		if err != nil {
			return err
		}
		s.box = box
		return nil
	}
}

var (
	_ ports.TaskStore = (*PostgresStore)(nil)
	_ ports.StepStore = (*PostgresStore)(nil)
)

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB, opts ...Option) (*PostgresStore, error) {
	s := &PostgresStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Open connects using the lib/pq driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the tables the store needs.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS item_tasks (
            task_id TEXT PRIMARY KEY,
            item_id TEXT,
            feed_id TEXT,
            source_url TEXT,
            source_content TEXT,
            language TEXT NOT NULL,
            ai_provider TEXT,
            ai_model TEXT,
            callback_url TEXT NOT NULL,
            options JSONB NOT NULL DEFAULT '{}',
            status TEXT NOT NULL,
            current_step TEXT NOT NULL,
            progress INT NOT NULL DEFAULT 0,
            retry_count INT NOT NULL DEFAULT 0,
            token_usage JSONB NOT NULL DEFAULT '{}',
            result JSONB,
            error JSONB,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`ALTER TABLE item_tasks ADD COLUMN IF NOT EXISTS callback_secret TEXT;`,
		`CREATE INDEX IF NOT EXISTS item_tasks_unfinished_idx ON item_tasks (status, updated_at);`,
		`CREATE TABLE IF NOT EXISTS workflow_steps (
            scope TEXT NOT NULL,
            step_name TEXT NOT NULL,
            result JSONB NOT NULL,
            completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (scope, step_name)
        );`,
	}
	for _, q := range ddl {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// CreateTask inserts a pending task row.
func (s *PostgresStore) CreateTask(ctx context.Context, task domain.ItemTask) error {
	options, err := json.Marshal(task.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	status := task.Status
	if status == "" {
		status = domain.TaskPending
	}
	step := task.CurrentStep
	if step == "" {
		step = domain.StagePending
	}
	var secret sql.NullString
	if s.box != nil {
		sealed, err := s.box.seal(task.CallbackSecret)
		if err != nil {
			return err
		}
		secret = sql.NullString{String: sealed, Valid: sealed != ""}
	}

	query, args, err := s.sb.Insert("item_tasks").
		Columns("task_id", "item_id", "feed_id", "source_url", "source_content", "language",
			"ai_provider", "ai_model", "callback_url", "options", "status", "current_step", "callback_secret").
		Values(task.TaskID, task.ItemID, task.FeedID, task.SourceURL, task.SourceContent, task.Language,
			task.AIProvider, task.AIModel, task.CallbackURL, options, string(status), string(step), secret).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrTaskExists
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask loads a task for status polling and recovery.
func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (domain.ItemTask, error) {
	query, args, err := s.sb.Select(taskColumns...).
		From("item_tasks").
		Where(sq.Eq{"task_id": taskID}).
		ToSql()
	if err != nil {
		return domain.ItemTask{}, fmt.Errorf("build select: %w", err)
	}

	t, err := s.scanTask(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ItemTask{}, domain.ErrTaskNotFound
	}
	return t, err
}

// ListUnfinished returns pending and processing tasks last touched before
// the cutoff, oldest first.
func (s *PostgresStore) ListUnfinished(ctx context.Context, updatedBefore time.Time) ([]domain.ItemTask, error) {
	query, args, err := s.sb.Select(taskColumns...).
		From("item_tasks").
		Where(sq.Eq{"status": unfinishedStatuses}).
		Where(sq.Lt{"updated_at": updatedBefore}).
		OrderBy("created_at", "task_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select unfinished: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list unfinished: %w", err)
	}
	defer rows.Close()

	var out []domain.ItemTask
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unfinished: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanTask(row rowScanner) (domain.ItemTask, error) {
	var (
		t                              domain.ItemTask
		itemID, feedID, srcURL         sql.NullString
		provider, model                sql.NullString
		content, secret                sql.NullString
		options, usage, result, errRaw []byte
		status, step                   string
	)
	err := row.Scan(
		&t.TaskID, &itemID, &feedID, &srcURL, &t.Language, &provider, &model,
		&t.CallbackURL, &options, &status, &step, &t.Progress, &t.RetryCount,
		&usage, &result, &errRaw, &t.CreatedAt, &t.UpdatedAt,
		&content, &secret,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ItemTask{}, err
	}
	if err != nil {
		return domain.ItemTask{}, fmt.Errorf("scan task: %w", err)
	}

	t.ItemID, t.FeedID, t.SourceURL = itemID.String, feedID.String, srcURL.String
	t.SourceContent = content.String
	t.AIProvider, t.AIModel = provider.String, model.String
	t.Status, t.CurrentStep = domain.TaskStatus(status), domain.Stage(step)

	if s.box != nil && secret.Valid {
		plain, err := s.box.open(secret.String)
		if err != nil {
			return domain.ItemTask{}, fmt.Errorf("task %s: %w", t.TaskID, err)
		}
		t.CallbackSecret = plain
	}
	if err := unmarshalOptional(options, &t.Options); err != nil {
		return domain.ItemTask{}, fmt.Errorf("decode options: %w", err)
	}
	if err := unmarshalOptional(usage, &t.TokenUsage); err != nil {
		return domain.ItemTask{}, fmt.Errorf("decode token usage: %w", err)
	}
	if len(result) > 0 {
		t.Result = &domain.WebhookPayload{}
		if err := json.Unmarshal(result, t.Result); err != nil {
			return domain.ItemTask{}, fmt.Errorf("decode result: %w", err)
		}
	}
	if len(errRaw) > 0 {
		t.Error = &domain.TaskError{}
		if err := json.Unmarshal(errRaw, t.Error); err != nil {
			return domain.ItemTask{}, fmt.Errorf("decode error: %w", err)
		}
	}
	return t, nil
}

// UpdateProgress records a non-terminal transition.
func (s *PostgresStore) UpdateProgress(ctx context.Context, taskID string, u domain.ProgressUpdate) error {
	usage, err := json.Marshal(u.TokenUsage)
	if err != nil {
		return fmt.Errorf("marshal usage: %w", err)
	}
	return s.update(ctx, taskID, sq.Eq{
		"status":       string(u.Status),
		"current_step": string(u.CurrentStep),
		"progress":     u.Progress,
		"retry_count":  u.RetryCount,
		"token_usage":  usage,
	})
}

// CompleteTask stores the delivered payload and finalizes the task.
func (s *PostgresStore) CompleteTask(ctx context.Context, taskID string, result domain.WebhookPayload) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	usage, err := json.Marshal(result.Metrics.TokenUsage)
	if err != nil {
		return fmt.Errorf("marshal usage: %w", err)
	}
	return s.update(ctx, taskID, sq.Eq{
		"status":       string(domain.TaskCompleted),
		"current_step": string(domain.StageCompleted),
		"progress":     100,
		"retry_count":  result.Metrics.RetryCount,
		"token_usage":  usage,
		"result":       raw,
	})
}

// FailTask finalizes the task with an error.
func (s *PostgresStore) FailTask(ctx context.Context, taskID string, taskErr domain.TaskError, usage domain.TokenUsage) error {
	rawErr, err := json.Marshal(taskErr)
	if err != nil {
		return fmt.Errorf("marshal task error: %w", err)
	}
	rawUsage, err := json.Marshal(usage)
	if err != nil {
		return fmt.Errorf("marshal usage: %w", err)
	}
	return s.update(ctx, taskID, sq.Eq{
		"status":       string(domain.TaskFailed),
		"current_step": string(domain.StageFailed),
		"token_usage":  rawUsage,
		"error":        rawErr,
	})
}

// update only touches non-terminal rows; zero affected rows is resolved to
// not-found or terminal.
func (s *PostgresStore) update(ctx context.Context, taskID string, values sq.Eq) error {
	query, args, err := s.sb.Update("item_tasks").
		SetMap(values).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"task_id": taskID}).
		Where(sq.NotEq{"status": terminalStatuses}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	if _, err := s.GetTask(ctx, taskID); err != nil {
		return err
	}
	return domain.ErrTaskTerminal
}

// LoadStep returns a checkpointed step result.
func (s *PostgresStore) LoadStep(ctx context.Context, scope, step string) ([]byte, bool, error) {
	query, args, err := s.sb.Select("result").
		From("workflow_steps").
		Where(sq.Eq{"scope": scope, "step_name": step}).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build select step: %w", err)
	}

	var raw []byte
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load step: %w", err)
	}
	return raw, true, nil
}

// SaveStep checkpoints a step result; a second save keeps the first result.
func (s *PostgresStore) SaveStep(ctx context.Context, scope, step string, result []byte) error {
	query, args, err := s.sb.Insert("workflow_steps").
		Columns("scope", "step_name", "result").
		Values(scope, step, result).
		Suffix("ON CONFLICT (scope, step_name) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert step: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save step: %w", err)
	}
	return nil
}

func unmarshalOptional(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
