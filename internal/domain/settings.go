package domain

import "time"

// Settings are the runtime-tunable values pushed by the content system.
type Settings struct {
	WordPressURL      string            `json:"wordpress_url"`
	APIKey            string            `json:"api_key"`
	PublishThreshold  float64           `json:"publish_threshold"`
	DailyLimit        int               `json:"daily_limit"`
	CurationThreshold float64           `json:"curation_threshold"`
	PromptTemplates   map[string]string `json:"prompt_templates,omitempty"`
	WritingStyle      string            `json:"writing_style,omitempty"`
	ImageStyle        string            `json:"image_style,omitempty"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Overlay returns s with every non-zero field of o applied.
func (s Settings) Overlay(o Settings) Settings {
	if o.WordPressURL != "" {
		s.WordPressURL = o.WordPressURL
	}
	if o.APIKey != "" {
		s.APIKey = o.APIKey
	}
	if o.PublishThreshold > 0 {
		s.PublishThreshold = o.PublishThreshold
	}
	if o.DailyLimit > 0 {
		s.DailyLimit = o.DailyLimit
	}
	if o.CurationThreshold > 0 {
		s.CurationThreshold = o.CurationThreshold
	}
	if len(o.PromptTemplates) > 0 {
		merged := make(map[string]string, len(s.PromptTemplates)+len(o.PromptTemplates))
		for k, v := range s.PromptTemplates {
			merged[k] = v
		}
		for k, v := range o.PromptTemplates {
			merged[k] = v
		}
		s.PromptTemplates = merged
	}
	if o.WritingStyle != "" {
		s.WritingStyle = o.WritingStyle
	}
	if o.ImageStyle != "" {
		s.ImageStyle = o.ImageStyle
	}
	if !o.UpdatedAt.IsZero() {
		s.UpdatedAt = o.UpdatedAt
	}
	return s
}

// DistributedLock describes a TTL lease on a shared key.
type DistributedLock struct {
	Key         string
	HolderToken string
	AcquiredAt  time.Time
	TTL         time.Duration
}

// Expired reports whether the lease no longer protects the key at now.
func (l DistributedLock) Expired(now time.Time) bool {
	return !now.Before(l.AcquiredAt.Add(l.TTL))
}
