package llm

import "ContentRewriter/internal/domain"

// NormalizeUsage folds the provider-specific usage shapes into one struct.
// Known shapes: OpenAI prompt/completion/total_tokens, Anthropic
// input/output_tokens, Gemini promptTokenCount/candidatesTokenCount/totalTokenCount.
func NormalizeUsage(raw map[string]any) domain.TokenUsage {
	if raw == nil {
		return domain.TokenUsage{}
	}

	usage := domain.TokenUsage{
		Input:  firstInt(raw, "prompt_tokens", "input_tokens", "promptTokenCount"),
		Output: firstInt(raw, "completion_tokens", "output_tokens", "candidatesTokenCount"),
		Total:  firstInt(raw, "total_tokens", "totalTokenCount"),
	}
	if usage.Total == 0 {
		usage.Total = usage.Input + usage.Output
	}
	return usage
}

func firstInt(raw map[string]any, keys ...string) int {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		}
	}
	return 0
}
