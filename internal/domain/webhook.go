package domain

// WebhookResult is the content block of a successful delivery.
type WebhookResult struct {
	Title              string   `json:"title"`
	Content            string   `json:"content"`
	Excerpt            string   `json:"excerpt"`
	Tags               []string `json:"tags"`
	MetaTitle          string   `json:"meta_title"`
	MetaDescription    string   `json:"meta_description"`
	CategorySuggestion string   `json:"category_suggestion"`
	FeaturedImageURL   string   `json:"featured_image_url,omitempty"`
	ShouldPublish      bool     `json:"should_publish"`
}

// Metrics reports how a task was processed.
type Metrics struct {
	ProcessingTimeMS int64      `json:"processing_time_ms"`
	TokenUsage       TokenUsage `json:"token_usage"`
	StepsCompleted   []string   `json:"steps_completed"`
	RetryCount       int        `json:"retry_count"`
}

// WebhookPayload is the externally visible outcome of a task.
type WebhookPayload struct {
	TaskID       string         `json:"task_id"`
	ItemID       string         `json:"item_id,omitempty"`
	Status       TaskStatus     `json:"status"`
	QualityScore *float64       `json:"quality_score,omitempty"`
	Result       *WebhookResult `json:"result,omitempty"`
	Error        *TaskError     `json:"error,omitempty"`
	Metrics      Metrics        `json:"metrics"`
}
