package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ContentRewriter/internal/domain"
	"ContentRewriter/internal/infrastructure/dispatch"
	"ContentRewriter/internal/infrastructure/parser"
	"ContentRewriter/internal/ports"
)

// RewriteHandler accepts rewrite jobs and reports their status.
type RewriteHandler struct {
	tasks      ports.TaskStore
	dispatcher ports.Dispatcher
	language   string
	logger     *slog.Logger
}

func NewRewriteHandler(tasks ports.TaskStore, dispatcher ports.Dispatcher, defaultLanguage string, logger *slog.Logger) *RewriteHandler {
	return &RewriteHandler{tasks: tasks, dispatcher: dispatcher, language: defaultLanguage, logger: logger}
}

// RewriteRequest is the body of POST /rewrite.
type RewriteRequest struct {
	TaskID         string          `json:"task_id" binding:"required"`
	CallbackURL    string          `json:"callback_url" binding:"required,url"`
	CallbackSecret string          `json:"callback_secret"`
	Payload        *RewritePayload `json:"payload" binding:"required"`
}

type RewritePayload struct {
	ItemID        string              `json:"item_id"`
	SourceURL     string              `json:"source_url"`
	SourceContent string              `json:"source_content"`
	Language      string              `json:"language"`
	AIProvider    string              `json:"ai_provider"`
	AIModel       string              `json:"ai_model"`
	Options       *domain.TaskOptions `json:"options"`
}

func (r RewriteRequest) task(defaultLanguage string) domain.ItemTask {
	p := r.Payload
	task := domain.ItemTask{
		TaskID:         r.TaskID,
		ItemID:         p.ItemID,
		SourceURL:      p.SourceURL,
		SourceContent:  p.SourceContent,
		Language:       p.Language,
		AIProvider:     p.AIProvider,
		AIModel:        p.AIModel,
		CallbackURL:    r.CallbackURL,
		CallbackSecret: r.CallbackSecret,
		Status:         domain.TaskPending,
		CurrentStep:    domain.StagePending,
	}
	if p.Options != nil {
		task.Options = *p.Options
	}
	if task.Language == "" {
		task.Language = defaultLanguage
	}
	return task
}

// EstimateSeconds is a rough completion estimate shown to callers.
func EstimateSeconds(task domain.ItemTask) int {
	seconds := 60
	if task.SourceURL != "" {
		seconds += 10
	}
	if task.SourceContent != "" {
		extra := parser.WordCount(task.SourceContent) / 100
		if extra > 60 {
			extra = 60
		}
		seconds += extra
	}
	if task.Options.GenerateImages {
		seconds += 30
	}
	return seconds
}

// POST /rewrite
func (h *RewriteHandler) Rewrite(c *gin.Context) {
	var req RewriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}

	task := req.task(h.language)
	if err := task.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := h.tasks.CreateTask(ctx, task); err != nil {
		if errors.Is(err, domain.ErrTaskExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "task already exists", "task_id": task.TaskID})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create task failed", "detail": err.Error()})
		return
	}

	if err := h.dispatcher.Dispatch(ctx, task); err != nil {
		h.logger.Warn("dispatch rejected", "task_id", task.TaskID, "error", err)
		taskErr := domain.ToTaskError(domain.Wrap(domain.KindInternal, "dispatch", err))
		if failErr := h.tasks.FailTask(ctx, task.TaskID, *taskErr, domain.TokenUsage{}); failErr != nil {
			h.logger.Warn("record dispatch failure", "task_id", task.TaskID, "error", failErr)
		}
		status := http.StatusInternalServerError
		if errors.Is(err, dispatch.ErrQueueFull) || errors.Is(err, dispatch.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": "dispatch failed", "detail": err.Error()})
		return
	}

	h.logger.Info("rewrite accepted", "task_id", task.TaskID, "item_id", task.ItemID)
	c.JSON(http.StatusAccepted, gin.H{
		"task_id":                task.TaskID,
		"message":                "Task accepted for processing",
		"estimated_time_seconds": EstimateSeconds(task),
	})
}

// StatusResponse is the body of GET /status/:task_id.
type StatusResponse struct {
	TaskID      string                 `json:"task_id"`
	Status      domain.TaskStatus      `json:"status"`
	Progress    int                    `json:"progress"`
	CurrentStep domain.Stage           `json:"current_step"`
	RetryCount  int                    `json:"retry_count"`
	TokenUsage  domain.TokenUsage      `json:"token_usage"`
	Result      *domain.WebhookPayload `json:"result,omitempty"`
	Error       *domain.TaskError      `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// GET /status/:task_id
func (h *RewriteHandler) Status(c *gin.Context) {
	task, err := h.tasks.GetTask(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get task failed", "detail": err.Error()})
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		TaskID:      task.TaskID,
		Status:      task.Status,
		Progress:    task.Progress,
		CurrentStep: task.CurrentStep,
		RetryCount:  task.RetryCount,
		TokenUsage:  task.TokenUsage,
		Result:      task.Result,
		Error:       task.Error,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	})
}
