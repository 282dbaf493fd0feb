package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ContentRewriter/internal/config"
	"ContentRewriter/internal/domain"
	"ContentRewriter/internal/ports"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient implements ports.TextGenerator backed by the Messages API.
type AnthropicClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ ports.TextGenerator = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client from configuration.
func NewAnthropicClient(cfg config.ProviderConfig) *AnthropicClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &AnthropicClient{
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Complete lifts system messages into the top-level system field.
func (c *AnthropicClient) Complete(ctx context.Context, messages []domain.Message, opts domain.CompletionOptions) (domain.Completion, error) {
	if c.apiKey == "" || c.endpoint == "" {
		return domain.Completion{}, domain.NewError(domain.KindUpstream, "anthropic complete", "client misconfigured")
	}

	var system []string
	turns := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	payload := map[string]any{
		"model":      pick(opts.Model, c.model),
		"max_tokens": maxTokens,
		"messages":   turns,
	}
	if len(system) > 0 {
		payload["system"] = strings.Join(system, "\n\n")
	}
	if opts.Temperature > 0 {
		payload["temperature"] = opts.Temperature
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Completion{}, domain.Wrap(domain.KindInternal, "marshal anthropic payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Completion{}, domain.Wrap(domain.KindUpstream, "anthropic request", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Completion{}, domain.Wrap(domain.KindUpstream, "anthropic request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Completion{}, domain.Wrap(domain.KindUpstream, "anthropic complete",
			fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(snippet))))
	}

	var out struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage map[string]any `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Completion{}, domain.Wrap(domain.KindUpstream, "decode anthropic response", err)
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return domain.Completion{Text: text.String(), Usage: NormalizeUsage(out.Usage)}, nil
}
