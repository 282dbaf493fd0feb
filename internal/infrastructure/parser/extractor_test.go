package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ContentRewriter/internal/domain"
)

func TestStripHTMLRemovesNoise(t *testing.T) {
	t.Parallel()

	html := `
	<html><head><style>.x{}</style><script>var a = 1;</script></head>
	<body>
	  <header>Site header</header>
	  <nav>Menu</nav>
	  <article><h1>Solar</h1><p>Panels   are
	  getting cheaper.</p><p>Second paragraph.</p></article>
	  <aside>Related links</aside>
	  <footer>Copyright</footer>
	</body></html>`

	got := StripHTML(html)
	for _, banned := range []string{"Site header", "Menu", "var a", "Related", "Copyright", ".x{}"} {
		if strings.Contains(got, banned) {
			t.Fatalf("noise %q survived: %q", banned, got)
		}
	}
	if got != "Solar Panels are getting cheaper. Second paragraph." {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestWordCount(t *testing.T) {
	t.Parallel()

	if n := WordCount("<p>one two</p><p>three</p>"); n != 3 {
		t.Fatalf("expected 3 words, got %d", n)
	}
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	if got := Truncate("태양광 패널", 3); got != "태양광" {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("short strings must be untouched: %q", got)
	}
}

func TestExtractorFetchesAndBounds(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><nav>skip</nav><p>` + strings.Repeat("word ", 50) + `</p></body></html>`))
	}))
	defer server.Close()

	ex := NewExtractor(server.Client(), 20, nil)
	text, err := ex.Extract(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len([]rune(text)) != 20 {
		t.Fatalf("expected 20 runes, got %d (%q)", len([]rune(text)), text)
	}
	if strings.Contains(text, "skip") {
		t.Fatalf("nav text leaked: %q", text)
	}
}

func TestExtractorNon2xxFails(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := NewExtractor(server.Client(), 0, nil).Extract(context.Background(), server.URL)
	if err == nil {
		t.Fatalf("expected fetch error")
	}
	if domain.KindOf(err) != domain.KindUpstream {
		t.Fatalf("expected upstream error, got %v", domain.KindOf(err))
	}
}
