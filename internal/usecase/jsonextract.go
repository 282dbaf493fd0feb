package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ContentRewriter/internal/domain"
)

// decodeObject parses the outermost {...} span of a model answer.
func decodeObject(op, text string, v any) error {
	return decodeSpan(op, text, "{", "}", v)
}

// decodeArray parses the outermost [...] span of a model answer.
func decodeArray(op, text string, v any) error {
	return decodeSpan(op, text, "[", "]", v)
}

func decodeSpan(op, text, open, close string, v any) error {
	start := strings.Index(text, open)
	end := strings.LastIndex(text, close)
	if start < 0 || end <= start {
		return domain.NewError(domain.KindParse, op, fmt.Sprintf("no %s...%s span in response", open, close))
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return domain.Wrap(domain.KindParse, op, err)
	}
	return nil
}

// stripFences removes a surrounding markdown code fence.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// visibleWords counts the words a reader would see in an HTML fragment.
func visibleWords(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return len(strings.Fields(html))
	}
	doc.Find("p, li, h1, h2, h3, h4, h5, h6, br, div").AppendHtml(" ")
	return len(strings.Fields(doc.Text()))
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func limitWords(s string, max int) string {
	words := strings.Fields(s)
	if len(words) <= max {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:max], " ")
}
