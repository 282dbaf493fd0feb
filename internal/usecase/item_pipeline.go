package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"ContentRewriter/internal/domain"
	"ContentRewriter/internal/ports"
)

const (
	retryScoreBelow       = 7.0
	fallbackCritiqueScore = 8.0
	minTargetWords        = 300
	imageAspectRatio      = "16:9"
	imagePromptWords      = 100
	metaTitleRunes        = 60
	metaDescriptionRunes  = 160
)

// PipelineOptions tunes retries and limits of the item pipeline.
type PipelineOptions struct {
	StepAttempts          int
	StepBackoff           time.Duration
	RetryDelay            time.Duration
	MaxContentChars       int
	PublishThreshold      float64
	DefaultLanguage       string
	DefaultCallbackSecret string
}

// PipelineDeps wires the item pipeline to its adapters.
type PipelineDeps struct {
	Providers ports.ProviderResolver
	Extractor ports.SourceExtractor
	Media     ports.ContentSource
	Tasks     ports.TaskStore
	Steps     ports.StepStore
	Webhooks  ports.WebhookSender
	Settings  ports.SettingsStore
	Logger    *slog.Logger
	Options   PipelineOptions
	Now       func() time.Time
}

// ItemPipeline turns one source article into a published-ready post.
type ItemPipeline struct {
	providers ports.ProviderResolver
	extractor ports.SourceExtractor
	media     ports.ContentSource
	tasks     ports.TaskStore
	webhooks  ports.WebhookSender
	settings  ports.SettingsStore
	runner    *StepRunner
	logger    *slog.Logger
	opts      PipelineOptions
	now       func() time.Time
}

// NewItemPipeline builds the pipeline from deps.
func NewItemPipeline(deps PipelineDeps) *ItemPipeline {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &ItemPipeline{
		providers: deps.Providers,
		extractor: deps.Extractor,
		media:     deps.Media,
		tasks:     deps.Tasks,
		webhooks:  deps.Webhooks,
		settings:  deps.Settings,
		runner:    NewStepRunner(deps.Steps, deps.Options.StepAttempts, deps.Options.StepBackoff, deps.Logger),
		logger:    deps.Logger,
		opts:      deps.Options,
		now:       now,
	}
}

// itemRun holds the mutable state of one execution.
type itemRun struct {
	p        *ItemPipeline
	task     domain.ItemTask
	text     ports.TextGenerator
	prompts  prompter
	settings domain.Settings
	scope    string
	started  time.Time
	usage    domain.TokenUsage
	steps    []string
	retries  int
	stage    domain.Stage
	logger   *slog.Logger
}

// Run executes every stage for task and delivers exactly one terminal
// webhook. The returned error is the hard failure, if any. A run cut short
// by ctx leaves the task unfinished so a restart can resume it from its
// checkpoints.
func (p *ItemPipeline) Run(ctx context.Context, task domain.ItemTask) error {
	if task.Language == "" {
		task.Language = p.opts.DefaultLanguage
	}
	if task.CallbackSecret == "" {
		task.CallbackSecret = p.opts.DefaultCallbackSecret
	}

	run := &itemRun{
		p:       p,
		task:    task,
		scope:   "task:" + task.TaskID,
		started: p.now(),
		stage:   domain.StagePending,
		logger:  p.log().With("task_id", task.TaskID),
	}

	if err := run.execute(ctx); err != nil {
		if ctx.Err() != nil {
			run.logger.Warn("task interrupted, left for recovery", "stage", run.stage, "error", err)
			return err
		}
		run.fail(ctx, err)
		return err
	}
	return nil
}

func (r *itemRun) execute(ctx context.Context) error {
	if err := r.task.Validate(); err != nil {
		return err
	}

	r.settings = r.p.loadSettings(ctx)
	r.prompts = prompter{language: languageName(r.task.Language), settings: r.settings}

	text, err := r.p.providers.Text(r.task.AIProvider)
	if err != nil {
		return domain.Wrap(domain.KindValidation, "resolve provider", err)
	}
	r.text = text

	source, err := r.extract(ctx)
	if err != nil {
		return err
	}

	outline, err := r.outline(ctx, source)
	if err != nil {
		return err
	}

	draft, err := r.write(ctx, domain.StageWriting, "content", outline, nil)
	if err != nil {
		return err
	}

	critique, err := r.critique(ctx, domain.StageCritiquing, "critique", draft)
	if err != nil {
		return err
	}

	if critique.ShouldRetry {
		r.retries = 1
		r.logger.Info("quality below threshold, rewriting", "score", critique.Score)
		if err := sleep(ctx, r.p.opts.RetryDelay); err != nil {
			return err
		}
		draft, err = r.write(ctx, domain.StageWritingRetry, "content_retry", outline, &critique)
		if err != nil {
			return err
		}
		critique, err = r.critique(ctx, domain.StageCritiquingRetry, "critique_retry", draft)
		if err != nil {
			return err
		}
	}

	seo, err := r.optimize(ctx, draft)
	if err != nil {
		return err
	}

	var imageURL string
	if r.task.Options.GenerateImages {
		imageURL = r.illustrate(ctx, draft.Title)
	}

	return r.publish(ctx, draft, critique, seo, imageURL)
}

type extraction struct {
	Text string `json:"text"`
}

func (r *itemRun) extract(ctx context.Context) (string, error) {
	r.advance(ctx, domain.StageExtracting)

	out, err := runStep(ctx, r.p.runner, r.scope, "extraction", func(ctx context.Context) (extraction, error) {
		if r.task.SourceContent != "" {
			return extraction{Text: r.task.SourceContent}, nil
		}
		if r.p.extractor == nil {
			return extraction{}, domain.NewError(domain.KindValidation, "extract", "no extractor configured")
		}
		text, err := r.p.extractor.Extract(ctx, r.task.SourceURL)
		if err != nil {
			return extraction{}, err
		}
		if strings.TrimSpace(text) == "" {
			return extraction{}, domain.NewError(domain.KindParse, "extract", "source page has no readable text")
		}
		return extraction{Text: text}, nil
	})
	if err != nil {
		return "", err
	}
	r.done("extraction")
	return out.Text, nil
}

// aiStep is a checkpointed model result together with its token cost.
type aiStep[T any] struct {
	Value T                 `json:"value"`
	Usage domain.TokenUsage `json:"usage"`
}

// ask runs one checkpointed model call. Tokens of every attempt are charged,
// including attempts whose answer could not be parsed.
func ask[T any](ctx context.Context, r *itemRun, step string, msgs []domain.Message, maxTokens int, temperature float64, parse func(string) (T, error)) (T, error) {
	var spent domain.TokenUsage
	out, err := runStep(ctx, r.p.runner, r.scope, step, func(ctx context.Context) (aiStep[T], error) {
		c, err := r.complete(ctx, msgs, maxTokens, temperature)
		spent = spent.Add(c.Usage)
		if err != nil {
			return aiStep[T]{}, err
		}
		v, err := parse(c.Text)
		if err != nil {
			return aiStep[T]{}, err
		}
		return aiStep[T]{Value: v, Usage: spent}, nil
	})
	if err != nil {
		r.charge(spent)
		var zero T
		return zero, err
	}
	r.charge(out.Usage)
	return out.Value, nil
}

func (r *itemRun) outline(ctx context.Context, source string) (domain.Outline, error) {
	r.advance(ctx, domain.StageOutlining)

	target := int(math.Round(1.5 * float64(visibleWords(source))))
	if target < minTargetWords {
		target = minTargetWords
	}
	if limit := r.p.opts.MaxContentChars; limit > 0 {
		source = truncateRunes(source, limit)
	}

	outline, err := ask(ctx, r, "outline", r.prompts.outline(source, target), 2000, 0.7, func(text string) (domain.Outline, error) {
		var o domain.Outline
		if err := decodeObject("parse outline", text, &o); err != nil {
			return o, err
		}
		if strings.TrimSpace(o.Title) == "" || len(o.Sections) == 0 {
			return o, domain.NewError(domain.KindParse, "parse outline", "outline has no title or sections")
		}
		if o.EstimatedWordCount <= 0 {
			o.EstimatedWordCount = target
		}
		return o, nil
	})
	if err != nil {
		return domain.Outline{}, err
	}
	r.done("outline")
	return outline, nil
}

func (r *itemRun) write(ctx context.Context, stage domain.Stage, step string, outline domain.Outline, feedback *domain.CritiqueResult) (domain.ContentDraft, error) {
	r.advance(ctx, stage)

	draft, err := ask(ctx, r, step, r.prompts.content(outline, feedback), 8000, 0.7, func(text string) (domain.ContentDraft, error) {
		body := stripFences(text)
		if body == "" {
			return domain.ContentDraft{}, domain.NewError(domain.KindParse, "write content", "empty article body")
		}
		return domain.ContentDraft{Title: outline.Title, Content: body, WordCount: visibleWords(body)}, nil
	})
	if err != nil {
		return domain.ContentDraft{}, err
	}
	r.done(step)
	return draft, nil
}

type critiqueAnswer struct {
	Score    *float64        `json:"score"`
	Feedback domain.Feedback `json:"feedback"`
}

// critique never fails the task on a model or parse error; it falls back
// to a passing score. An answer without a score counts as a parse error.
func (r *itemRun) critique(ctx context.Context, stage domain.Stage, step string, draft domain.ContentDraft) (domain.CritiqueResult, error) {
	r.advance(ctx, stage)

	res, err := ask(ctx, r, step, r.prompts.critique(draft), 1500, 0.3, func(text string) (domain.CritiqueResult, error) {
		var a critiqueAnswer
		if err := decodeObject("parse critique", text, &a); err != nil {
			return domain.CritiqueResult{}, err
		}
		if a.Score == nil {
			return domain.CritiqueResult{}, domain.NewError(domain.KindParse, "parse critique", "critique has no score")
		}
		return domain.CritiqueResult{Score: math.Max(0, math.Min(10, *a.Score)), Feedback: a.Feedback}, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return domain.CritiqueResult{}, ctx.Err()
		}
		r.logger.Warn("critique failed, assuming acceptable quality", "step", step, "error", err)
		res = domain.CritiqueResult{Score: fallbackCritiqueScore}
	}

	res.ShouldRetry = res.Score < retryScoreBelow && r.retries == 0
	r.done(step)
	return res, nil
}

func (r *itemRun) optimize(ctx context.Context, draft domain.ContentDraft) (domain.SEOMetadata, error) {
	r.advance(ctx, domain.StageOptimizingSEO)

	seo, err := ask(ctx, r, "seo", r.prompts.seo(draft), 1000, 0.5, func(text string) (domain.SEOMetadata, error) {
		var seo domain.SEOMetadata
		if err := decodeObject("parse seo", text, &seo); err != nil {
			return seo, err
		}
		seo.MetaTitle = truncateRunes(strings.TrimSpace(seo.MetaTitle), metaTitleRunes)
		seo.MetaDescription = truncateRunes(strings.TrimSpace(seo.MetaDescription), metaDescriptionRunes)
		return seo, nil
	})
	if err != nil {
		return domain.SEOMetadata{}, err
	}
	r.done("seo")
	return seo, nil
}

type illustration struct {
	URL string `json:"url"`
}

// illustrate is best-effort: any failure yields no featured image.
func (r *itemRun) illustrate(ctx context.Context, title string) string {
	r.advance(ctx, domain.StageImaging)

	prompt, err := ask(ctx, r, "image_prompt", r.prompts.imagePrompt(title), 300, 0.8, func(text string) (string, error) {
		text = limitWords(stripFences(text), imagePromptWords)
		if text == "" {
			return "", domain.NewError(domain.KindParse, "image prompt", "empty prompt")
		}
		return text, nil
	})
	if err != nil {
		r.logger.Warn("image prompt failed, continuing without image", "error", err)
		return ""
	}

	out, err := runStep(ctx, r.p.runner, r.scope, "image", func(ctx context.Context) (illustration, error) {
		if r.p.media == nil {
			return illustration{}, domain.NewError(domain.KindValidation, "upload image", "no media store configured")
		}
		gen, err := r.p.providers.Image(r.task.AIProvider)
		if err != nil {
			return illustration{}, domain.Wrap(domain.KindValidation, "resolve image provider", err)
		}
		img, err := gen.GenerateImage(ctx, prompt, domain.ImageOptions{AspectRatio: imageAspectRatio})
		if err != nil {
			return illustration{}, err
		}
		url, err := r.p.media.UploadMedia(ctx, r.task.TaskID+"-featured"+imageExtension(img.MimeType), img)
		if err != nil {
			return illustration{}, err
		}
		return illustration{URL: url}, nil
	})
	if err != nil {
		r.logger.Warn("image generation failed, continuing without image", "error", err)
		return ""
	}
	r.done("image")
	return out.URL
}

func imageExtension(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

type delivery struct {
	Delivered bool `json:"delivered"`
}

func (r *itemRun) publish(ctx context.Context, draft domain.ContentDraft, critique domain.CritiqueResult, seo domain.SEOMetadata, imageURL string) error {
	r.advance(ctx, domain.StagePublishing)

	score := critique.Score
	steps := append(append([]string(nil), r.steps...), "webhook")
	payload := domain.WebhookPayload{
		TaskID:       r.task.TaskID,
		ItemID:       r.task.ItemID,
		Status:       domain.TaskCompleted,
		QualityScore: &score,
		Result: &domain.WebhookResult{
			Title:              draft.Title,
			Content:            draft.Content,
			Excerpt:            seo.Excerpt,
			Tags:               nonNil(seo.Tags),
			MetaTitle:          seo.MetaTitle,
			MetaDescription:    seo.MetaDescription,
			CategorySuggestion: seo.CategorySuggestion,
			FeaturedImageURL:   imageURL,
			ShouldPublish:      r.task.Options.AutoPublish && score >= r.publishThreshold(),
		},
		Metrics: r.metrics(steps),
	}

	if _, err := runStep(ctx, r.p.runner, r.scope, "webhook", func(ctx context.Context) (delivery, error) {
		if err := r.p.webhooks.Send(ctx, r.task.CallbackURL, r.task.CallbackSecret, payload); err != nil {
			return delivery{}, err
		}
		return delivery{Delivered: true}, nil
	}); err != nil {
		return err
	}
	r.done("webhook")

	if r.p.tasks != nil {
		if err := r.p.tasks.CompleteTask(ctx, r.task.TaskID, payload); err != nil && !errors.Is(err, domain.ErrTaskNotFound) {
			r.logger.Warn("persist completion failed", "error", err)
		}
	}
	r.logger.Info("task completed", "score", score, "tokens", r.usage.Total, "retries", r.retries)
	return nil
}

// fail records the failure and makes a single best-effort delivery attempt.
func (r *itemRun) fail(ctx context.Context, cause error) {
	taskErr := domain.ToTaskError(cause)
	r.logger.Error("task failed", "stage", r.stage, "code", taskErr.Code, "error", cause)

	// the caller's context may be the reason we are here
	ctx = context.WithoutCancel(ctx)

	if r.p.tasks != nil {
		if err := r.p.tasks.FailTask(ctx, r.task.TaskID, *taskErr, r.usage); err != nil && !errors.Is(err, domain.ErrTaskNotFound) {
			r.logger.Warn("persist failure failed", "error", err)
		}
	}

	if r.task.CallbackURL == "" || r.p.webhooks == nil {
		return
	}
	payload := domain.WebhookPayload{
		TaskID:  r.task.TaskID,
		ItemID:  r.task.ItemID,
		Status:  domain.TaskFailed,
		Error:   taskErr,
		Metrics: r.metrics(r.steps),
	}
	if err := r.p.webhooks.Send(ctx, r.task.CallbackURL, r.task.CallbackSecret, payload); err != nil {
		r.logger.Warn("failure webhook not delivered", "error", err)
	}
}

func (r *itemRun) complete(ctx context.Context, msgs []domain.Message, maxTokens int, temperature float64) (domain.Completion, error) {
	c, err := r.text.Complete(ctx, msgs, domain.CompletionOptions{
		Model:       r.task.AIModel,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return domain.Completion{}, err
	}
	if strings.TrimSpace(c.Text) == "" {
		return c, domain.NewError(domain.KindUpstream, "complete", "model returned an empty answer")
	}
	return c, nil
}

func (r *itemRun) advance(ctx context.Context, stage domain.Stage) {
	r.stage = stage
	if r.p.tasks == nil {
		return
	}
	err := r.p.tasks.UpdateProgress(ctx, r.task.TaskID, domain.ProgressUpdate{
		Status:      domain.TaskProcessing,
		CurrentStep: stage,
		Progress:    stage.Progress(),
		RetryCount:  r.retries,
		TokenUsage:  r.usage,
	})
	if err != nil && !errors.Is(err, domain.ErrTaskNotFound) {
		r.logger.Warn("progress update failed", "stage", stage, "error", err)
	}
}

// publishThreshold prefers the task option, then synced settings, then the
// configured default.
func (r *itemRun) publishThreshold() float64 {
	if t := r.task.Options.PublishThreshold; t > 0 {
		return t
	}
	if t := r.settings.PublishThreshold; t > 0 {
		return t
	}
	return r.p.opts.PublishThreshold
}

func (r *itemRun) charge(u domain.TokenUsage) { r.usage = r.usage.Add(u) }

func (r *itemRun) done(step string) { r.steps = append(r.steps, step) }

func (r *itemRun) metrics(steps []string) domain.Metrics {
	return domain.Metrics{
		ProcessingTimeMS: r.p.now().Sub(r.started).Milliseconds(),
		TokenUsage:       r.usage,
		StepsCompleted:   nonNil(steps),
		RetryCount:       r.retries,
	}
}

func (p *ItemPipeline) loadSettings(ctx context.Context) domain.Settings {
	if p.settings == nil {
		return domain.Settings{}
	}
	s, err := p.settings.LoadSettings(ctx)
	if err != nil {
		p.log().Warn("load settings failed, using defaults", "error", err)
		return domain.Settings{}
	}
	return s
}

func (p *ItemPipeline) log() *slog.Logger {
	if p.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p.logger
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
