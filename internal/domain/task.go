package domain

import "time"

// TaskStatus is the externally visible lifecycle state of an ItemTask.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Stage names the pipeline position reported as current_step.
type Stage string

const (
	StagePending         Stage = "pending"
	StageExtracting      Stage = "extracting"
	StageOutlining       Stage = "outlining"
	StageWriting         Stage = "writing"
	StageCritiquing      Stage = "critiquing"
	StageWritingRetry    Stage = "writing_retry"
	StageCritiquingRetry Stage = "critiquing_retry"
	StageOptimizingSEO   Stage = "optimizing_seo"
	StageImaging         Stage = "imaging"
	StagePublishing      Stage = "publishing"
	StageCompleted       Stage = "completed"
	StageFailed          Stage = "failed"
)

// Progress maps a stage to the percentage shown to pollers.
func (s Stage) Progress() int {
	switch s {
	case StageExtracting:
		return 10
	case StageOutlining:
		return 25
	case StageWriting:
		return 40
	case StageCritiquing:
		return 55
	case StageWritingRetry:
		return 60
	case StageCritiquingRetry:
		return 65
	case StageOptimizingSEO:
		return 75
	case StageImaging:
		return 85
	case StagePublishing:
		return 95
	case StageCompleted:
		return 100
	default:
		return 0
	}
}

// TaskOptions tunes publication and illustration of a single task.
type TaskOptions struct {
	AutoPublish      bool    `json:"auto_publish"`
	PublishThreshold float64 `json:"publish_threshold"`
	GenerateImages   bool    `json:"generate_images"`
}

// TokenUsage accumulates provider-reported token counts.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// Add returns the element-wise sum.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		Input:  u.Input + other.Input,
		Output: u.Output + other.Output,
		Total:  u.Total + other.Total,
	}
}

// ItemTask is one end-to-end rewrite job.
type ItemTask struct {
	TaskID         string          `json:"task_id"`
	ItemID         string          `json:"item_id,omitempty"`
	FeedID         string          `json:"feed_id,omitempty"`
	SourceURL      string          `json:"source_url,omitempty"`
	SourceContent  string          `json:"source_content,omitempty"`
	Language       string          `json:"language"`
	AIProvider     string          `json:"ai_provider,omitempty"`
	AIModel        string          `json:"ai_model,omitempty"`
	CallbackURL    string          `json:"callback_url"`
	CallbackSecret string          `json:"-"`
	Options        TaskOptions     `json:"options"`
	Status         TaskStatus      `json:"status"`
	CurrentStep    Stage           `json:"current_step"`
	Progress       int             `json:"progress"`
	RetryCount     int             `json:"retry_count"`
	TokenUsage     TokenUsage      `json:"token_usage"`
	Result         *WebhookPayload `json:"result,omitempty"`
	Error          *TaskError      `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Validate enforces the fields a task cannot run without.
func (t ItemTask) Validate() error {
	switch {
	case t.TaskID == "":
		return NewError(KindValidation, "validate task", "task_id is required")
	case t.CallbackURL == "":
		return NewError(KindValidation, "validate task", "callback_url is required")
	case t.SourceURL == "" && t.SourceContent == "":
		return NewError(KindValidation, "validate task", "either source_url or source_content is required")
	case t.SourceURL != "" && t.SourceContent != "":
		return NewError(KindValidation, "validate task", "only one of source_url or source_content may be set")
	}
	return nil
}

// TaskError is the persisted and delivered form of a failure.
type TaskError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ProgressUpdate is a non-terminal write into the task store.
type ProgressUpdate struct {
	Status      TaskStatus
	CurrentStep Stage
	Progress    int
	RetryCount  int
	TokenUsage  TokenUsage
}
