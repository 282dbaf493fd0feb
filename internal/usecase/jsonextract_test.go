package usecase

import (
	"testing"

	"ContentRewriter/internal/domain"
)

func TestDecodeObjectToleratesProse(t *testing.T) {
	t.Parallel()

	var o domain.Outline
	text := "Sure! Here it is:\n```json\n{\"title\":\"T\",\"sections\":[{\"heading\":\"H\",\"key_points\":[\"k\"]}]}\n```\nEnjoy."
	if err := decodeObject("outline", text, &o); err != nil {
		t.Fatalf("decodeObject: %v", err)
	}
	if o.Title != "T" || len(o.Sections) != 1 {
		t.Fatalf("unexpected outline: %+v", o)
	}
}

func TestDecodeObjectParseErrors(t *testing.T) {
	t.Parallel()

	var v map[string]any
	for _, text := range []string{"no json here", "} backwards {", "{\"a\": }"} {
		if err := decodeObject("x", text, &v); domain.KindOf(err) != domain.KindParse {
			t.Fatalf("%q: expected parse error, got %v", text, err)
		}
	}
}

func TestDecodeArray(t *testing.T) {
	t.Parallel()

	var scores []float64
	if err := decodeArray("curation", "scores: [0.1, 0.75] done", &scores); err != nil {
		t.Fatalf("decodeArray: %v", err)
	}
	if len(scores) != 2 || scores[1] != 0.75 {
		t.Fatalf("unexpected scores: %v", scores)
	}
}

func TestTextHelpers(t *testing.T) {
	t.Parallel()

	if got := stripFences("```html\n<p>x</p>\n```"); got != "<p>x</p>" {
		t.Fatalf("stripFences = %q", got)
	}
	if got := visibleWords("<h2>One two</h2><p>three four five</p>"); got != 5 {
		t.Fatalf("visibleWords = %d", got)
	}
	if got := truncateRunes("안녕하세요", 2); got != "안녕" {
		t.Fatalf("truncateRunes = %q", got)
	}
	if got := limitWords("a b c d", 2); got != "a b" {
		t.Fatalf("limitWords = %q", got)
	}
}
