package llm

import (
	"bytes"
	"context"
	"encoding/base64"
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

// OpenAIClient implements text and image generation against OpenAI-compatible APIs.
type OpenAIClient struct {
	endpoint      string
	imageEndpoint string
	model         string
	imageModel    string
	apiKey        string
	httpClient    *http.Client
}

var (
	_ ports.TextGenerator  = (*OpenAIClient)(nil)
	_ ports.ImageGenerator = (*OpenAIClient)(nil)
)

// NewOpenAIClient builds a client from configuration.
func NewOpenAIClient(cfg config.ProviderConfig) *OpenAIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIClient{
		endpoint:      cfg.Endpoint,
		imageEndpoint: cfg.ImageEndpoint,
		model:         cfg.Model,
		imageModel:    cfg.ImageModel,
		apiKey:        cfg.APIKey,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// Complete posts the messages to the chat completions endpoint.
func (c *OpenAIClient) Complete(ctx context.Context, messages []domain.Message, opts domain.CompletionOptions) (domain.Completion, error) {
	if c.apiKey == "" || c.endpoint == "" {
		return domain.Completion{}, domain.NewError(domain.KindUpstream, "openai complete", "client misconfigured")
	}

	payload := map[string]any{
		"model":    pick(opts.Model, c.model),
		"messages": messages,
	}
	if opts.MaxTokens > 0 {
		payload["max_tokens"] = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		payload["temperature"] = opts.Temperature
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage map[string]any `json:"usage"`
	}
	if err := c.post(ctx, c.endpoint, payload, &resp); err != nil {
		return domain.Completion{}, domain.Wrap(domain.KindUpstream, "openai complete", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Completion{}, domain.NewError(domain.KindUpstream, "openai complete", "empty choices")
	}

	return domain.Completion{
		Text:  resp.Choices[0].Message.Content,
		Usage: NormalizeUsage(resp.Usage),
	}, nil
}

// GenerateImage renders a prompt through the images endpoint.
func (c *OpenAIClient) GenerateImage(ctx context.Context, prompt string, opts domain.ImageOptions) (domain.Image, error) {
	if c.apiKey == "" || c.imageEndpoint == "" {
		return domain.Image{}, domain.NewError(domain.KindUpstream, "openai image", "client misconfigured")
	}

	payload := map[string]any{
		"model":           pick(opts.Model, c.imageModel),
		"prompt":          prompt,
		"n":               1,
		"size":            sizeForAspect(opts.AspectRatio),
		"response_format": "b64_json",
	}

	var resp struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := c.post(ctx, c.imageEndpoint, payload, &resp); err != nil {
		return domain.Image{}, domain.Wrap(domain.KindUpstream, "openai image", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return domain.Image{}, domain.NewError(domain.KindUpstream, "openai image", "empty image data")
	}

	raw, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return domain.Image{}, domain.Wrap(domain.KindParse, "decode image", err)
	}
	return domain.Image{Data: raw, MimeType: "image/png"}, nil
}

func (c *OpenAIClient) post(ctx context.Context, endpoint string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func sizeForAspect(aspect string) string {
	switch aspect {
	case "16:9":
		return "1792x1024"
	case "9:16":
		return "1024x1792"
	default:
		return "1024x1024"
	}
}

func pick(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}
