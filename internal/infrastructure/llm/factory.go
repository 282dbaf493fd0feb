package llm

import (
	"log/slog"

	"ContentRewriter/internal/config"
)

// NewRegistryFromConfig registers every provider that has an API key.
func NewRegistryFromConfig(cfg config.AIConfig, logger *slog.Logger) *Registry {
	reg := NewRegistry(cfg.DefaultProvider)

	for name, p := range cfg.Providers {
		if p.APIKey == "" {
			continue
		}
		switch normalize(p.Kind) {
		case "anthropic":
			reg.RegisterText(name, NewAnthropicClient(p))
		default:
			client := NewOpenAIClient(p)
			reg.RegisterText(name, client)
			if p.ImageEndpoint != "" {
				reg.RegisterImage(name, client)
			}
		}
		if logger != nil {
			logger.Debug("ai provider registered", "provider", name, "kind", p.Kind, "model", p.Model)
		}
	}

	return reg
}
