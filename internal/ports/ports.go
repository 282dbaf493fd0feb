package ports

import (
	"context"
	"time"

	"ContentRewriter/internal/domain"
)

// TextGenerator completes chat messages with a language model.
type TextGenerator interface {
	Complete(ctx context.Context, messages []domain.Message, opts domain.CompletionOptions) (domain.Completion, error)
}

// ImageGenerator renders a picture from a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, opts domain.ImageOptions) (domain.Image, error)
}

// ProviderResolver picks the text/image adapters for a provider name.
type ProviderResolver interface {
	Text(provider string) (TextGenerator, error)
	Image(provider string) (ImageGenerator, error)
}

// ContentSource is the content system that owns feeds, items, and media.
type ContentSource interface {
	ListFeeds(ctx context.Context) ([]domain.Feed, error)
	ListPendingItems(ctx context.Context, feedIDs []string, limit int) ([]domain.FeedItem, error)
	MarkItemStatus(ctx context.Context, itemID string, status domain.ItemStatus) error
	UploadMedia(ctx context.Context, filename string, image domain.Image) (string, error)
}

// TaskStore persists task status for pollers.
type TaskStore interface {
	CreateTask(ctx context.Context, task domain.ItemTask) error
	GetTask(ctx context.Context, taskID string) (domain.ItemTask, error)
	UpdateProgress(ctx context.Context, taskID string, update domain.ProgressUpdate) error
	CompleteTask(ctx context.Context, taskID string, result domain.WebhookPayload) error
	FailTask(ctx context.Context, taskID string, taskErr domain.TaskError, usage domain.TokenUsage) error
	// ListUnfinished returns pending and processing tasks last updated
	// before the cutoff, oldest first.
	ListUnfinished(ctx context.Context, updatedBefore time.Time) ([]domain.ItemTask, error)
}

// StepStore checkpoints durable step results keyed by scope and step name.
type StepStore interface {
	LoadStep(ctx context.Context, scope, step string) ([]byte, bool, error)
	SaveStep(ctx context.Context, scope, step string, result []byte) error
}

// Locker is a TTL mutual-exclusion primitive.
type Locker interface {
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) error
}

// SettingsStore holds the values pushed through /sync-config.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (domain.Settings, error)
	SaveSettings(ctx context.Context, settings domain.Settings) error
}

// Dispatcher starts item pipelines without waiting for them.
type Dispatcher interface {
	Dispatch(ctx context.Context, task domain.ItemTask) error
}

// WebhookSender delivers signed payloads to callback URLs.
type WebhookSender interface {
	Send(ctx context.Context, url, secret string, payload domain.WebhookPayload) error
}

// SourceExtractor turns a source URL into plain text.
type SourceExtractor interface {
	Extract(ctx context.Context, sourceURL string) (string, error)
}

// Scheduler controls when batch runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
