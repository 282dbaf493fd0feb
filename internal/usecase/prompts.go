package usecase

import (
	"fmt"
	"strings"

	"ContentRewriter/internal/domain"
)

var languageNames = map[string]string{
	"ko": "Korean",
	"en": "English",
	"ja": "Japanese",
	"zh": "Chinese",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
}

func languageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	if code == "" {
		return "Korean"
	}
	return code
}

// prompter renders stage prompts with the synced style settings.
type prompter struct {
	language string
	settings domain.Settings
}

func (p prompter) system(stage, fallback string) string {
	if tpl := strings.TrimSpace(p.settings.PromptTemplates[stage]); tpl != "" {
		return tpl + "\n\nAlways answer in " + p.language + "."
	}
	return fallback
}

func (p prompter) outline(source string, targetWords int) []domain.Message {
	system := p.system("outline", fmt.Sprintf(
		"You are an expert blog editor. You plan original blog posts in %s based on source material. "+
			"Respond with a single JSON object only.", p.language))

	user := fmt.Sprintf(`Create an outline for a new blog post based on the source below.

Requirements:
- 4 to 6 sections
- 3 to 5 key points per section
- target length about %d words
- the title and all text in %s

Respond as JSON:
{"title": "...", "sections": [{"heading": "...", "key_points": ["..."]}], "estimated_word_count": %d}

Source:
%s`, targetWords, p.language, targetWords, source)

	return []domain.Message{{Role: "system", Content: system}, {Role: "user", Content: user}}
}

func (p prompter) content(outline domain.Outline, feedback *domain.CritiqueResult) []domain.Message {
	system := p.system("content", fmt.Sprintf(
		"You are a professional blog writer. You write engaging, original articles in %s as clean HTML "+
			"using <h2>, <p>, <ul>, <li>, <strong> tags. Never include <html>, <head> or <body>.", p.language))
	if p.settings.WritingStyle != "" {
		system += "\nWriting style: " + p.settings.WritingStyle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write the full article for this outline. Target about %d words.\n\n", outline.EstimatedWordCount)
	fmt.Fprintf(&b, "Title: %s\n", outline.Title)
	for i, s := range outline.Sections {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, s.Heading)
		for _, kp := range s.KeyPoints {
			fmt.Fprintf(&b, "   - %s\n", kp)
		}
	}

	if feedback != nil {
		b.WriteString("\nA reviewer scored the previous draft ")
		fmt.Fprintf(&b, "%.1f/10. Address this feedback:\n", feedback.Score)
		for _, w := range feedback.Feedback.Weaknesses {
			fmt.Fprintf(&b, "- Weakness: %s\n", w)
		}
		for _, s := range feedback.Feedback.Suggestions {
			fmt.Fprintf(&b, "- Suggestion: %s\n", s)
		}
	}
	b.WriteString("\nReturn only the article HTML.")

	return []domain.Message{{Role: "system", Content: system}, {Role: "user", Content: b.String()}}
}

func (p prompter) critique(draft domain.ContentDraft) []domain.Message {
	system := p.system("critique",
		"You are a strict editor. You evaluate blog articles for accuracy, structure, readability and originality. "+
			"Respond with a single JSON object only.")

	user := fmt.Sprintf(`Evaluate the article below on a 0-10 scale.

Respond as JSON:
{"score": 0-10, "feedback": {"strengths": ["..."], "weaknesses": ["..."], "suggestions": ["..."]}}

Title: %s

%s`, draft.Title, draft.Content)

	return []domain.Message{{Role: "system", Content: system}, {Role: "user", Content: user}}
}

func (p prompter) seo(draft domain.ContentDraft) []domain.Message {
	system := p.system("seo", fmt.Sprintf(
		"You are an SEO specialist. You write search metadata in %s. Respond with a single JSON object only.", p.language))

	user := fmt.Sprintf(`Create SEO metadata for the article below.

Rules:
- meta_title at most 60 characters
- meta_description at most 160 characters
- 5 to 10 keywords, 3 to 7 tags
- excerpt of 1-2 sentences

Respond as JSON:
{"meta_title": "...", "meta_description": "...", "keywords": ["..."], "tags": ["..."], "category_suggestion": "...", "excerpt": "..."}

Title: %s

%s`, draft.Title, draft.Content)

	return []domain.Message{{Role: "system", Content: system}, {Role: "user", Content: user}}
}

func (p prompter) imagePrompt(title string) []domain.Message {
	system := p.system("image",
		"You write prompts for an image generation model. Answer with the prompt text only, in English, at most 100 words.")
	style := p.settings.ImageStyle
	if style == "" {
		style = "modern editorial illustration, clean composition"
	}

	user := fmt.Sprintf(`Write a featured image prompt for a blog post titled %q.
Style: %s.
The image must not contain any text, letters or logos. Landscape 16:9 composition.`, title, style)

	return []domain.Message{{Role: "system", Content: system}, {Role: "user", Content: user}}
}

func curationPrompt(items []domain.FeedItem) []domain.Message {
	var b strings.Builder
	b.WriteString("Rate how suitable each article is for rewriting into an original, useful blog post. ")
	b.WriteString("Use a score from 0 to 1. Respond only with a JSON array of numbers in the same order, ")
	fmt.Fprintf(&b, "exactly %d numbers.\n", len(items))
	for i, it := range items {
		summary := it.Summary
		if summary == "" {
			summary = it.Content
		}
		fmt.Fprintf(&b, "\n%d. %s\n%s\n", i+1, it.Title, truncateRunes(summary, 300))
	}

	return []domain.Message{
		{Role: "system", Content: "You are a content curator for a blog. Respond with a JSON array only."},
		{Role: "user", Content: b.String()},
	}
}
