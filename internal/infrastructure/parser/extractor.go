package parser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ContentRewriter/internal/domain"
	"ContentRewriter/internal/ports"
)

const defaultMaxChars = 15000

// noiseSelector lists blocks that never carry article text.
const noiseSelector = "script, style, nav, header, footer, aside, noscript, iframe"

// Extractor fetches source pages and reduces them to plain article text.
type Extractor struct {
	client   *http.Client
	maxChars int
	logger   *slog.Logger
}

var _ ports.SourceExtractor = (*Extractor)(nil)

// NewExtractor wires an HTTP client; maxChars defaults to 15000 runes.
func NewExtractor(client *http.Client, maxChars int, logger *slog.Logger) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return &Extractor{client: client, maxChars: maxChars, logger: logger}
}

// Extract downloads sourceURL and returns its cleaned, bounded text.
func (e *Extractor) Extract(ctx context.Context, sourceURL string) (string, error) {
	doc, err := e.fetchDocument(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	text := Truncate(documentText(doc), e.maxChars)
	e.debug("source extracted", "url", sourceURL, "chars", len([]rune(text)))
	return text, nil
}

func (e *Extractor) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, domain.Wrap(domain.KindValidation, "build source request", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ContentRewriter/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindUpstream, "fetch source", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, domain.Wrap(domain.KindUpstream, "fetch source", fmt.Errorf("source returned %s", resp.Status))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, domain.Wrap(domain.KindParse, "parse source document", err)
	}
	return doc, nil
}

// StripHTML removes noise blocks and tags from an HTML fragment.
func StripHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return CollapseWhitespace(html)
	}
	return documentText(doc)
}

// WordCount counts whitespace-separated words of the visible text.
func WordCount(html string) int {
	return len(strings.Fields(StripHTML(html)))
}

func documentText(doc *goquery.Document) string {
	doc.Find(noiseSelector).Remove()

	var parts []string
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		s.Find("p, li, h1, h2, h3, h4, h5, h6, br, div").Each(func(_ int, block *goquery.Selection) {
			block.AppendHtml(" ")
		})
		parts = append(parts, s.Text())
	})
	if len(parts) == 0 {
		parts = append(parts, doc.Text())
	}
	return CollapseWhitespace(strings.Join(parts, " "))
}

// CollapseWhitespace joins all whitespace runs into single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate bounds s to max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func (e *Extractor) debug(msg string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}
