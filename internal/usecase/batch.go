package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"ContentRewriter/internal/domain"
	"ContentRewriter/internal/ports"
)

// BatchOptions are the defaults a batch run starts from before synced
// settings are applied.
type BatchOptions struct {
	LockKey           string
	LockTTL           time.Duration
	DailyLimit        int
	CurationThreshold float64
	CurationBatchSize int
	CurationDelay     time.Duration
	PublishThreshold  float64
	DefaultLanguage   string
	CallbackURL       string
	CallbackSecret    string
	StepAttempts      int
	StepBackoff       time.Duration
}

// BatchDeps wires the orchestrator to its adapters.
type BatchDeps struct {
	Source     ports.ContentSource
	Locker     ports.Locker
	Providers  ports.ProviderResolver
	Dispatcher ports.Dispatcher
	Tasks      ports.TaskStore
	Steps      ports.StepStore
	Settings   ports.SettingsStore
	Logger     *slog.Logger
	Options    BatchOptions
	NewID      func() string
}

// BatchResult summarizes one run.
type BatchResult struct {
	RunID          string `json:"run_id"`
	Success        bool   `json:"success"`
	Skipped        bool   `json:"skipped,omitempty"`
	ItemsProcessed int    `json:"items_processed"`
	ItemsFailed    int    `json:"items_failed"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
}

// BatchOrchestrator selects pending feed items, curates them, and
// dispatches approved ones to the item pipeline.
type BatchOrchestrator struct {
	source     ports.ContentSource
	locker     ports.Locker
	providers  ports.ProviderResolver
	dispatcher ports.Dispatcher
	tasks      ports.TaskStore
	settings   ports.SettingsStore
	runner     *StepRunner
	logger     *slog.Logger
	opts       BatchOptions
	newID      func() string
}

// NewBatchOrchestrator builds the orchestrator from deps.
func NewBatchOrchestrator(deps BatchDeps) *BatchOrchestrator {
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	opts := deps.Options
	if opts.CurationBatchSize <= 0 {
		opts.CurationBatchSize = 5
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = time.Hour
	}
	if opts.LockKey == "" {
		opts.LockKey = "batch_processor_lock"
	}
	return &BatchOrchestrator{
		source:     deps.Source,
		locker:     deps.Locker,
		providers:  deps.Providers,
		dispatcher: deps.Dispatcher,
		tasks:      deps.Tasks,
		settings:   deps.Settings,
		runner:     NewStepRunner(deps.Steps, deps.Options.StepAttempts, deps.Options.StepBackoff, deps.Logger),
		logger:     deps.Logger,
		opts:       opts,
		newID:      newID,
	}
}

// Run executes one batch under the distributed lock. The lock is
// released on every exit path; contention is reported, not failed.
func (o *BatchOrchestrator) Run(ctx context.Context, runID string) BatchResult {
	if runID == "" {
		runID = o.newID()
	}
	logger := o.log().With("run_id", runID)
	result := BatchResult{RunID: runID}

	acquired, err := o.locker.Acquire(ctx, o.opts.LockKey, runID, o.opts.LockTTL)
	if err != nil {
		result.Error = fmt.Sprintf("acquire lock: %v", err)
		logger.Error("batch lock unavailable", "error", err)
		return result
	}
	if !acquired {
		logger.Info("another instance running, skipping batch")
		result.Success = true
		result.Skipped = true
		result.Message = "another instance running"
		return result
	}
	defer func() {
		if err := o.locker.Release(context.WithoutCancel(ctx), o.opts.LockKey, runID); err != nil {
			logger.Warn("release batch lock failed", "error", err)
		}
	}()

	processed, failed, err := o.process(ctx, runID, logger)
	result.ItemsProcessed = processed
	result.ItemsFailed = failed
	if err != nil {
		result.Error = err.Error()
		logger.Error("batch run failed", "error", err, "processed", processed, "failed", failed)
		return result
	}
	result.Success = true
	if processed == 0 && failed == 0 {
		result.Message = "no items to process"
	}
	logger.Info("batch run finished", "processed", processed, "failed", failed)
	return result
}

func (o *BatchOrchestrator) process(ctx context.Context, runID string, logger *slog.Logger) (int, int, error) {
	scope := "batch:" + runID
	settings := o.effectiveSettings(ctx)

	feeds, err := runStep(ctx, o.runner, scope, "fetch-feeds", func(ctx context.Context) ([]domain.Feed, error) {
		all, err := o.source.ListFeeds(ctx)
		if err != nil {
			return nil, err
		}
		eligible := make([]domain.Feed, 0, len(all))
		for _, f := range all {
			if f.Eligible() {
				eligible = append(eligible, f)
			}
		}
		return eligible, nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("fetch feeds: %w", err)
	}
	if len(feeds) == 0 {
		logger.Info("no feeds eligible for rewriting")
		return 0, 0, nil
	}

	feedIDs := make([]string, 0, len(feeds))
	byID := make(map[string]domain.Feed, len(feeds))
	for _, f := range feeds {
		feedIDs = append(feedIDs, f.ID)
		byID[f.ID] = f
	}

	items, err := runStep(ctx, o.runner, scope, "fetch-items", func(ctx context.Context) ([]domain.FeedItem, error) {
		items, err := o.source.ListPendingItems(ctx, feedIDs, settings.DailyLimit)
		if err != nil {
			return nil, err
		}
		if settings.DailyLimit > 0 && len(items) > settings.DailyLimit {
			items = items[:settings.DailyLimit]
		}
		return items, nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("fetch pending items: %w", err)
	}
	if len(items) == 0 {
		logger.Info("no pending items")
		return 0, 0, nil
	}

	approved, err := o.curate(ctx, scope, items, settings.CurationThreshold, logger)
	if err != nil {
		return 0, 0, err
	}

	processed, failed := 0, 0
	for _, item := range approved {
		if err := ctx.Err(); err != nil {
			return processed, failed, err
		}
		if taskID, err := o.dispatch(ctx, scope, item, byID[item.FeedID], settings); err != nil {
			failed++
			logger.Warn("dispatch failed", "item_id", item.ID, "task_id", taskID, "error", err)
			o.failTask(ctx, taskID, err, logger)
			if markErr := o.source.MarkItemStatus(ctx, item.ID, domain.ItemFailed); markErr != nil {
				logger.Warn("mark item failed", "item_id", item.ID, "error", markErr)
			}
			continue
		}
		processed++
	}
	return processed, failed, nil
}

type curation struct {
	Approved []string `json:"approved"`
	Skipped  []string `json:"skipped"`
	FailOpen bool     `json:"fail_open"`
}

// curate scores items in fixed-size batches. A batch whose scoring fails
// is approved whole.
func (o *BatchOrchestrator) curate(ctx context.Context, scope string, items []domain.FeedItem, threshold float64, logger *slog.Logger) ([]domain.FeedItem, error) {
	var limiter *rate.Limiter
	if o.opts.CurationDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(o.opts.CurationDelay), 1)
	}

	keep := make(map[string]bool, len(items))
	size := o.opts.CurationBatchSize
	for n, start := 0, 0; start < len(items); n, start = n+1, start+size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		res, err := runStep(ctx, o.runner, scope, fmt.Sprintf("curate-%d", n), func(ctx context.Context) (curation, error) {
			return o.scoreBatch(ctx, batch, threshold, logger), nil
		})
		if err != nil {
			return nil, err
		}
		for _, id := range res.Approved {
			keep[id] = true
		}
	}

	approved := make([]domain.FeedItem, 0, len(keep))
	for _, it := range items {
		if keep[it.ID] {
			approved = append(approved, it)
		}
	}
	return approved, nil
}

func (o *BatchOrchestrator) scoreBatch(ctx context.Context, batch []domain.FeedItem, threshold float64, logger *slog.Logger) curation {
	scores, err := o.requestScores(ctx, batch)
	if err != nil {
		logger.Warn("curation failed, approving batch", "items", len(batch), "error", err)
		res := curation{FailOpen: true}
		for _, it := range batch {
			res.Approved = append(res.Approved, it.ID)
		}
		return res
	}

	var res curation
	for i, it := range batch {
		if scores[i] >= threshold {
			res.Approved = append(res.Approved, it.ID)
			continue
		}
		res.Skipped = append(res.Skipped, it.ID)
		if err := o.source.MarkItemStatus(ctx, it.ID, domain.ItemSkipped); err != nil {
			logger.Warn("mark item skipped failed", "item_id", it.ID, "error", err)
		}
	}
	return res
}

func (o *BatchOrchestrator) requestScores(ctx context.Context, batch []domain.FeedItem) ([]float64, error) {
	if o.providers == nil {
		return nil, errors.New("no text provider configured")
	}
	gen, err := o.providers.Text("")
	if err != nil {
		return nil, err
	}
	c, err := gen.Complete(ctx, curationPrompt(batch), domain.CompletionOptions{MaxTokens: 200, Temperature: 0.2})
	if err != nil {
		return nil, err
	}
	var scores []float64
	if err := decodeArray("parse curation", c.Text, &scores); err != nil {
		return nil, err
	}
	if len(scores) != len(batch) {
		return nil, domain.NewError(domain.KindParse, "parse curation",
			fmt.Sprintf("got %d scores for %d items", len(scores), len(batch)))
	}
	return scores, nil
}

type dispatched struct {
	TaskID string `json:"task_id"`
}

// dispatch records the task before the item is marked processing, so a
// crash in between leaves a task the recovery sweep can resume.
func (o *BatchOrchestrator) dispatch(ctx context.Context, scope string, item domain.FeedItem, feed domain.Feed, settings domain.Settings) (string, error) {
	taskID := o.newID()
	out, err := runStep(ctx, o.runner, scope, "dispatch-"+item.ID, func(ctx context.Context) (dispatched, error) {
		task := o.buildTask(taskID, item, feed, settings)
		if err := task.Validate(); err != nil {
			return dispatched{}, err
		}
		if o.tasks != nil {
			if err := o.tasks.CreateTask(ctx, task); err != nil && !errors.Is(err, domain.ErrTaskExists) {
				return dispatched{}, err
			}
		}
		if err := o.source.MarkItemStatus(ctx, item.ID, domain.ItemProcessing); err != nil {
			return dispatched{}, err
		}
		if err := o.dispatcher.Dispatch(ctx, task); err != nil {
			return dispatched{}, domain.Wrap(domain.KindInternal, "dispatch", err)
		}
		return dispatched{TaskID: taskID}, nil
	})
	if err != nil {
		return taskID, err
	}
	return out.TaskID, nil
}

// failTask finalizes a task whose dispatch failed so pollers do not see it
// pending forever.
func (o *BatchOrchestrator) failTask(ctx context.Context, taskID string, cause error, logger *slog.Logger) {
	if o.tasks == nil || taskID == "" {
		return
	}
	err := o.tasks.FailTask(context.WithoutCancel(ctx), taskID, *domain.ToTaskError(cause), domain.TokenUsage{})
	if err != nil && !errors.Is(err, domain.ErrTaskNotFound) && !errors.Is(err, domain.ErrTaskTerminal) {
		logger.Warn("persist dispatch failure failed", "task_id", taskID, "error", err)
	}
}

func (o *BatchOrchestrator) buildTask(taskID string, item domain.FeedItem, feed domain.Feed, settings domain.Settings) domain.ItemTask {
	task := domain.ItemTask{
		TaskID:     taskID,
		ItemID:     item.ID,
		FeedID:     item.FeedID,
		Language:   feed.TargetLanguage,
		AIProvider: feed.AIProvider,
		Options: domain.TaskOptions{
			AutoPublish:      feed.AutoPublish,
			PublishThreshold: feed.PublishThreshold,
			GenerateImages:   feed.GenerateImages,
		},
		CallbackURL:    o.opts.CallbackURL,
		CallbackSecret: o.opts.CallbackSecret,
		Status:         domain.TaskPending,
		CurrentStep:    domain.StagePending,
	}
	if item.URL != "" {
		task.SourceURL = item.URL
	} else {
		task.SourceContent = item.Content
	}
	if task.Language == "" {
		task.Language = o.opts.DefaultLanguage
	}
	if task.Options.PublishThreshold <= 0 {
		task.Options.PublishThreshold = settings.PublishThreshold
	}
	if task.CallbackSecret == "" {
		task.CallbackSecret = settings.APIKey
	}
	return task
}

func (o *BatchOrchestrator) effectiveSettings(ctx context.Context) domain.Settings {
	base := domain.Settings{
		PublishThreshold:  o.opts.PublishThreshold,
		DailyLimit:        o.opts.DailyLimit,
		CurationThreshold: o.opts.CurationThreshold,
	}
	if o.settings == nil {
		return base
	}
	synced, err := o.settings.LoadSettings(ctx)
	if err != nil {
		o.log().Warn("load settings failed, using defaults", "error", err)
		return base
	}
	return base.Overlay(synced)
}

func (o *BatchOrchestrator) log() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.logger
}
