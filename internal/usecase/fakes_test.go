package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"ContentRewriter/internal/domain"
	"ContentRewriter/internal/ports"
)

var unitUsage = domain.TokenUsage{Input: 10, Output: 5, Total: 15}

// scriptedModel answers by recognising which stage a prompt belongs to.
type scriptedModel struct {
	mu      sync.Mutex
	calls   map[string]int
	answers map[string]func(call int) (string, error)
}

func newScriptedModel() *scriptedModel {
	return &scriptedModel{
		calls: map[string]int{},
		answers: map[string]func(int) (string, error){
			"outline":  fixed(`{"title":"Rewritten","sections":[{"heading":"Intro","key_points":["a","b","c"]}],"estimated_word_count":300}`),
			"content":  fixed("<h2>Intro</h2><p>Some rewritten body text.</p>"),
			"critique": fixed(`{"score":8.2,"feedback":{"strengths":["clear"],"weaknesses":[],"suggestions":[]}}`),
			"seo":      fixed(`{"meta_title":"Rewritten","meta_description":"A short description","keywords":["k"],"tags":["t1","t2"],"category_suggestion":"News","excerpt":"Short excerpt."}`),
			"image":    fixed("a calm landscape"),
			"curation": fixed("[0.9]"),
		},
	}
}

func fixed(text string) func(int) (string, error) {
	return func(int) (string, error) { return text, nil }
}

func (m *scriptedModel) on(stage string, fn func(call int) (string, error)) *scriptedModel {
	m.answers[stage] = fn
	return m
}

func (m *scriptedModel) count(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[stage]
}

func (m *scriptedModel) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *scriptedModel) Complete(_ context.Context, msgs []domain.Message, _ domain.CompletionOptions) (domain.Completion, error) {
	stage := stageOf(msgs[0].Content)
	m.mu.Lock()
	m.calls[stage]++
	call := m.calls[stage]
	answer := m.answers[stage]
	m.mu.Unlock()

	text, err := answer(call)
	if err != nil {
		return domain.Completion{}, err
	}
	return domain.Completion{Text: text, Usage: unitUsage}, nil
}

func stageOf(system string) string {
	switch {
	case strings.Contains(system, "expert blog editor"):
		return "outline"
	case strings.Contains(system, "professional blog writer"):
		return "content"
	case strings.Contains(system, "strict editor"):
		return "critique"
	case strings.Contains(system, "SEO specialist"):
		return "seo"
	case strings.Contains(system, "image generation model"):
		return "image"
	case strings.Contains(system, "content curator"):
		return "curation"
	}
	return "unknown"
}

type stubImages struct {
	err error
}

func (s stubImages) GenerateImage(context.Context, string, domain.ImageOptions) (domain.Image, error) {
	if s.err != nil {
		return domain.Image{}, s.err
	}
	return domain.Image{Data: []byte{0x89, 'P', 'N', 'G'}, MimeType: "image/png"}, nil
}

type stubProviders struct {
	text  ports.TextGenerator
	image ports.ImageGenerator
}

func (p stubProviders) Text(string) (ports.TextGenerator, error) {
	if p.text == nil {
		return nil, errors.New("no text provider")
	}
	return p.text, nil
}

func (p stubProviders) Image(string) (ports.ImageGenerator, error) {
	if p.image == nil {
		return nil, errors.New("no image provider")
	}
	return p.image, nil
}

type recordingSender struct {
	mu       sync.Mutex
	payloads []domain.WebhookPayload
	secrets  []string
	err      error
}

func (s *recordingSender) Send(_ context.Context, _ string, secret string, p domain.WebhookPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.payloads = append(s.payloads, p)
	s.secrets = append(s.secrets, secret)
	return nil
}

func (s *recordingSender) sent() []domain.WebhookPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.WebhookPayload(nil), s.payloads...)
}

// fakeSource is an in-memory content system.
type fakeSource struct {
	mu        sync.Mutex
	feeds     []domain.Feed
	items     []domain.FeedItem
	feedErr   error
	marks     map[string][]domain.ItemStatus
	uploads   []string
	uploadErr error
	lastLimit int
}

func newFakeSource(feeds []domain.Feed, items []domain.FeedItem) *fakeSource {
	return &fakeSource{feeds: feeds, items: items, marks: map[string][]domain.ItemStatus{}}
}

func (f *fakeSource) ListFeeds(context.Context) ([]domain.Feed, error) {
	if f.feedErr != nil {
		return nil, f.feedErr
	}
	return f.feeds, nil
}

func (f *fakeSource) ListPendingItems(_ context.Context, feedIDs []string, limit int) ([]domain.FeedItem, error) {
	f.mu.Lock()
	f.lastLimit = limit
	f.mu.Unlock()

	allowed := map[string]bool{}
	for _, id := range feedIDs {
		allowed[id] = true
	}
	var out []domain.FeedItem
	for _, it := range f.items {
		if allowed[it.FeedID] {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeSource) MarkItemStatus(_ context.Context, itemID string, status domain.ItemStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks[itemID] = append(f.marks[itemID], status)
	return nil
}

func (f *fakeSource) UploadMedia(_ context.Context, filename string, _ domain.Image) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, filename)
	return "https://cms.example/media/" + filename, nil
}

func (f *fakeSource) statuses(itemID string) []domain.ItemStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ItemStatus(nil), f.marks[itemID]...)
}

type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []domain.ItemTask
	fail  map[string]bool
}

func (d *recordingDispatcher) Dispatch(_ context.Context, task domain.ItemTask) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail[task.ItemID] {
		return errors.New("queue rejected task")
	}
	d.tasks = append(d.tasks, task)
	return nil
}

func (d *recordingDispatcher) dispatched() []domain.ItemTask {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.ItemTask(nil), d.tasks...)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
