package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ContentRewriter/internal/domain"
	"ContentRewriter/internal/ports"
)

// ConfigHandler persists settings pushed by the content system.
type ConfigHandler struct {
	settings ports.SettingsStore
	now      func() time.Time
	logger   *slog.Logger
}

func NewConfigHandler(settings ports.SettingsStore, logger *slog.Logger) *ConfigHandler {
	return &ConfigHandler{settings: settings, now: time.Now, logger: logger}
}

// SyncConfigRequest is the body of POST /sync-config.
type SyncConfigRequest struct {
	WordPressURL      string            `json:"wordpress_url" binding:"required,url"`
	APIKey            string            `json:"api_key" binding:"required"`
	PublishThreshold  float64           `json:"publish_threshold" binding:"omitempty,min=0,max=10"`
	DailyLimit        int               `json:"daily_limit" binding:"omitempty,min=1"`
	CurationThreshold float64           `json:"curation_threshold" binding:"omitempty,min=0,max=1"`
	PromptTemplates   map[string]string `json:"prompt_templates"`
	WritingStyle      string            `json:"writing_style"`
	ImageStyle        string            `json:"image_style"`
}

// POST /sync-config
func (h *ConfigHandler) SyncConfig(c *gin.Context) {
	var req SyncConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}

	ctx := c.Request.Context()
	current, err := h.settings.LoadSettings(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load settings failed", "detail": err.Error()})
		return
	}

	next := current.Overlay(domain.Settings{
		WordPressURL:      req.WordPressURL,
		APIKey:            req.APIKey,
		PublishThreshold:  req.PublishThreshold,
		DailyLimit:        req.DailyLimit,
		CurationThreshold: req.CurationThreshold,
		PromptTemplates:   req.PromptTemplates,
		WritingStyle:      req.WritingStyle,
		ImageStyle:        req.ImageStyle,
		UpdatedAt:         h.now().UTC(),
	})
	if err := h.settings.SaveSettings(ctx, next); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save settings failed", "detail": err.Error()})
		return
	}

	h.logger.Info("settings synced", "wordpress_url", next.WordPressURL, "daily_limit", next.DailyLimit)
	c.JSON(http.StatusOK, gin.H{"success": true, "updated_at": next.UpdatedAt})
}
