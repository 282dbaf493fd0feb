package domain

// Section is one heading of an outline.
type Section struct {
	Heading   string   `json:"heading"`
	KeyPoints []string `json:"key_points"`
}

// Outline is the structural plan produced before writing.
type Outline struct {
	Title              string    `json:"title"`
	Sections           []Section `json:"sections"`
	EstimatedWordCount int       `json:"estimated_word_count"`
}

// ContentDraft is the written article body.
type ContentDraft struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	WordCount int    `json:"word_count"`
}

// Feedback groups critique observations.
type Feedback struct {
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
	Suggestions []string `json:"suggestions"`
}

// CritiqueResult scores a draft on a 0-10 scale.
type CritiqueResult struct {
	Score       float64  `json:"score"`
	Feedback    Feedback `json:"feedback"`
	ShouldRetry bool     `json:"should_retry"`
}

// SEOMetadata is the search-facing metadata for a post.
type SEOMetadata struct {
	MetaTitle          string   `json:"meta_title"`
	MetaDescription    string   `json:"meta_description"`
	Keywords           []string `json:"keywords"`
	Tags               []string `json:"tags"`
	CategorySuggestion string   `json:"category_suggestion"`
	Excerpt            string   `json:"excerpt"`
}

// Message is a single chat turn sent to a text model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions tunes a single text generation call.
type CompletionOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Completion is the text answer plus its usage.
type Completion struct {
	Text  string
	Usage TokenUsage
}

// ImageOptions tunes a single image generation call.
type ImageOptions struct {
	Model       string
	AspectRatio string
}

// Image is a rendered picture ready for upload.
type Image struct {
	Data     []byte
	MimeType string
}
