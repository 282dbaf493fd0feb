package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Rewrite *RewriteHandler
	Config  *ConfigHandler
	Health  *HealthHandler
	// APIKey guards /rewrite and /status.
	APIKey string
	// SigningSecret returns the HMAC key for /sync-config.
	SigningSecret func(c *gin.Context) string
}

// NewRouter builds the gin engine.
func NewRouter(h Handlers, logger *slog.Logger) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestLogger(logger))

	// probes
	engine.GET("/healthz", h.Health.Healthz)
	engine.GET("/readyz", h.Health.Readyz)

	api := engine.Group("/", BearerAuth(h.APIKey))
	{
		api.POST("/rewrite", h.Rewrite.Rewrite)
		api.GET("/status/:task_id", h.Rewrite.Status)
	}

	engine.POST("/sync-config", SignatureAuth(h.SigningSecret, nil), h.Config.SyncConfig)
	return engine
}
