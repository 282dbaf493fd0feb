package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ContentRewriter/internal/domain"
	"ContentRewriter/internal/ports"
)

// Client talks to the content system's REST API for feeds, items, and media.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

var _ ports.ContentSource = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// ListFeeds returns every registered feed.
func (c *Client) ListFeeds(ctx context.Context) ([]domain.Feed, error) {
	var feeds []domain.Feed
	if err := c.do(ctx, http.MethodGet, "/feeds", nil, nil, &feeds); err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	return feeds, nil
}

// ListPendingItems returns up to limit pending items of the given feeds.
func (c *Client) ListPendingItems(ctx context.Context, feedIDs []string, limit int) ([]domain.FeedItem, error) {
	q := url.Values{}
	q.Set("status", string(domain.ItemPending))
	q.Set("limit", strconv.Itoa(limit))
	if len(feedIDs) > 0 {
		q.Set("feed_ids", strings.Join(feedIDs, ","))
	}

	var items []domain.FeedItem
	if err := c.do(ctx, http.MethodGet, "/items?"+q.Encode(), nil, nil, &items); err != nil {
		return nil, fmt.Errorf("list pending items: %w", err)
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// MarkItemStatus updates an item's workflow status.
func (c *Client) MarkItemStatus(ctx context.Context, itemID string, status domain.ItemStatus) error {
	body, err := json.Marshal(map[string]string{"status": string(status)})
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	path := "/items/" + url.PathEscape(itemID) + "/status"
	headers := http.Header{"Content-Type": {"application/json"}}
	if err := c.do(ctx, http.MethodPost, path, body, headers, nil); err != nil {
		return fmt.Errorf("mark item %s %s: %w", itemID, status, err)
	}
	c.debug("item status updated", "item_id", itemID, "status", status)
	return nil
}

// UploadMedia stores an image in the media library and returns its public URL.
func (c *Client) UploadMedia(ctx context.Context, filename string, image domain.Image) (string, error) {
	var resp struct {
		URL       string `json:"url"`
		SourceURL string `json:"source_url"`
	}
	mime := image.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	headers := http.Header{
		"Content-Type":        {mime},
		"Content-Disposition": {fmt.Sprintf("attachment; filename=%q", filename)},
	}
	if err := c.do(ctx, http.MethodPost, "/media", image.Data, headers, &resp); err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	if resp.URL != "" {
		return resp.URL, nil
	}
	if resp.SourceURL != "" {
		return resp.SourceURL, nil
	}
	return "", fmt.Errorf("upload media: response carried no url")
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, headers http.Header, v any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	for k, vals := range headers {
		for _, val := range vals {
			req.Header.Add(k, val)
		}
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Wrap(domain.KindUpstream, "do request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Wrap(domain.KindUpstream, "do request",
			fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet))))
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return domain.Wrap(domain.KindParse, "decode response", err)
	}
	return nil
}

func (c *Client) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
