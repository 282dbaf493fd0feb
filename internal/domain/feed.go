package domain

import "time"

// Feed is an RSS source registered in the content system.
type Feed struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	URL              string  `json:"url"`
	IsActive         bool    `json:"is_active"`
	AutoRewrite      bool    `json:"auto_rewrite"`
	AutoPublish      bool    `json:"auto_publish"`
	PublishThreshold float64 `json:"publish_threshold"`
	GenerateImages   bool    `json:"generate_images"`
	TargetLanguage   string  `json:"target_language"`
	AIProvider       string  `json:"ai_provider"`
}

// Eligible reports whether the batch orchestrator may pull from the feed.
func (f Feed) Eligible() bool {
	return f.IsActive && f.AutoRewrite
}

// ItemStatus is the content-system status of a feed item.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemSkipped    ItemStatus = "skipped"
	ItemFailed     ItemStatus = "failed"
	ItemCompleted  ItemStatus = "completed"
)

// FeedItem is a candidate article pulled from a feed.
type FeedItem struct {
	ID          string    `json:"id"`
	FeedID      string    `json:"feed_id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Summary     string    `json:"summary"`
	Content     string    `json:"content"`
	PublishedAt time.Time `json:"published_at"`
}
