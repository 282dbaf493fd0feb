package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"ContentRewriter/internal/config"
	"ContentRewriter/internal/domain"
	"ContentRewriter/internal/http/handler"
	"ContentRewriter/internal/infrastructure/cms"
	"ContentRewriter/internal/infrastructure/dispatch"
	"ContentRewriter/internal/infrastructure/llm"
	"ContentRewriter/internal/infrastructure/lock"
	"ContentRewriter/internal/infrastructure/parser"
	"ContentRewriter/internal/infrastructure/scheduler"
	"ContentRewriter/internal/infrastructure/settings"
	"ContentRewriter/internal/infrastructure/storage"
	"ContentRewriter/internal/logging"
	"ContentRewriter/internal/ports"
	"ContentRewriter/internal/usecase"
	"ContentRewriter/internal/webhook"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	server    *http.Server
	queue     *dispatch.Queue
	scheduler *usecase.Scheduler
	batch     *usecase.BatchOrchestrator
	recovery  *usecase.Recovery
	abandoned atomic.Int64
	closers   []func() error
}

type backends struct {
	tasks    ports.TaskStore
	steps    ports.StepStore
	locker   ports.Locker
	settings ports.SettingsStore
	checks   map[string]handler.Check
	closers  []func() error
}

// New connects backends and assembles every component.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	component := func(name string) *slog.Logger { return baseLogger.With("component", name) }

	b, err := connect(ctx, cfg, baseLogger)
	if err != nil {
		return nil, err
	}

	providers := llm.NewRegistryFromConfig(cfg.AI, component("llm"))
	extractor := parser.NewExtractor(&http.Client{Timeout: cfg.Pipeline.FetchTimeout}, cfg.Pipeline.MaxContentChars, component("extractor"))
	sender := webhook.NewSender(cfg.Pipeline.WebhookTimeout, component("webhook"))

	var source ports.ContentSource
	if cfg.CMS.BaseURL != "" {
		source = cms.NewClient(cfg.CMS.BaseURL, cfg.CMS.APIKey, component("cms"))
	}

	pipeline := usecase.NewItemPipeline(usecase.PipelineDeps{
		Providers: providers,
		Extractor: extractor,
		Media:     source,
		Tasks:     b.tasks,
		Steps:     b.steps,
		Webhooks:  sender,
		Settings:  b.settings,
		Logger:    component("pipeline"),
		Options: usecase.PipelineOptions{
			StepAttempts:          cfg.Pipeline.StepAttempts,
			StepBackoff:           cfg.Pipeline.StepBackoff,
			RetryDelay:            cfg.Pipeline.RetryDelay,
			MaxContentChars:       cfg.Pipeline.MaxContentChars,
			PublishThreshold:      cfg.Pipeline.PublishThreshold,
			DefaultLanguage:       cfg.Batch.DefaultLanguage,
			DefaultCallbackSecret: cfg.CMS.WebhookSecret,
		},
	})

	a := &Application{cfg: cfg, logger: baseLogger, closers: b.closers}
	a.queue = dispatch.NewQueue(dispatch.Options{
		Workers:   cfg.Pipeline.Workers,
		Size:      cfg.Pipeline.QueueSize,
		Interval:  cfg.Batch.DispatchInterval,
		OnAbandon: func(domain.ItemTask) { a.abandoned.Add(1) },
	}, pipeline.Run, component("dispatch"))
	queue := a.queue
	a.recovery = usecase.NewRecovery(b.tasks, queue, cfg.Batch.DispatchInterval, component("recovery"))

	if source != nil {
		a.batch = usecase.NewBatchOrchestrator(usecase.BatchDeps{
			Source:     source,
			Locker:     b.locker,
			Providers:  providers,
			Dispatcher: queue,
			Tasks:      b.tasks,
			Steps:      b.steps,
			Settings:   b.settings,
			Logger:     component("batch"),
			Options: usecase.BatchOptions{
				LockKey:           cfg.Batch.LockKey,
				LockTTL:           cfg.Batch.LockTTL,
				DailyLimit:        cfg.Batch.DailyLimit,
				CurationThreshold: cfg.Batch.CurationThreshold,
				CurationBatchSize: cfg.Batch.CurationBatchSize,
				CurationDelay:     cfg.Batch.CurationDelay,
				PublishThreshold:  cfg.Pipeline.PublishThreshold,
				DefaultLanguage:   cfg.Batch.DefaultLanguage,
				CallbackURL:       cfg.CMS.WebhookURL,
				CallbackSecret:    cfg.CMS.WebhookSecret,
				StepAttempts:      cfg.Pipeline.StepAttempts,
				StepBackoff:       cfg.Pipeline.StepBackoff,
			},
		})
		if err := scheduler.Validate(cfg.Batch.CronExpression); err != nil {
			return nil, err
		}
		cron := scheduler.NewCronScheduler(cfg.Batch.CronExpression, cfg.Batch.Location(), component("scheduler"))
		a.scheduler = usecase.NewScheduler(cron, a.batch)
	} else {
		baseLogger.Warn("cms base url not configured, batch scheduler disabled")
	}

	router := handler.NewRouter(handler.Handlers{
		Rewrite:       handler.NewRewriteHandler(b.tasks, queue, cfg.Batch.DefaultLanguage, component("http")),
		Config:        handler.NewConfigHandler(b.settings, component("http")),
		Health:        handler.NewHealthHandler(b.checks),
		APIKey:        cfg.Server.APIKey,
		SigningSecret: signingSecret(cfg, b.settings),
	}, component("http"))

	a.server = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

func connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (backends, error) {
	b := backends{checks: map[string]handler.Check{}}

	if cfg.Database.DSN != "" {
		db, err := storage.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return b, err
		}
		store, err := storage.NewPostgresStore(db, storage.WithSecretKey(secretKey(cfg)))
		if err != nil {
			_ = db.Close()
			return b, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return b, fmt.Errorf("ensure schema: %w", err)
		}
		b.tasks, b.steps = store, store
		b.checks["db"] = dbCheck(db)
		b.closers = append(b.closers, db.Close)
	} else {
		logger.Warn("database dsn not configured, task state is kept in memory")
		store := storage.NewMemoryStore()
		b.tasks, b.steps = store, store
	}

	if cfg.Redis.URL != "" {
		rdb, err := lock.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			b.close(logger)
			return b, err
		}
		b.locker = lock.NewRedisLocker(rdb)
		b.settings = settings.NewRedisStore(rdb)
		b.checks["redis"] = redisCheck(rdb)
		b.closers = append(b.closers, rdb.Close)
	} else {
		logger.Warn("redis url not configured, lock and settings are process-local")
		b.locker = lock.NewMemoryLocker()
		b.settings = settings.NewMemoryStore()
	}
	return b, nil
}

// secretKey seals stored callback secrets; the API key stands in when no
// dedicated key is set.
func secretKey(cfg config.Config) string {
	if cfg.Database.SecretKey != "" {
		return cfg.Database.SecretKey
	}
	return cfg.Server.APIKey
}

func (b backends) close(logger *slog.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logger.Warn("close backend", "error", err)
		}
	}
}

func dbCheck(db *sql.DB) handler.Check {
	return func(ctx context.Context) error { return db.PingContext(ctx) }
}

func redisCheck(rdb *redis.Client) handler.Check {
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}

// signingSecret prefers the configured webhook secret, then the synced API
// key, then the server token.
func signingSecret(cfg config.Config, store ports.SettingsStore) func(c *gin.Context) string {
	return func(c *gin.Context) string {
		if cfg.CMS.WebhookSecret != "" {
			return cfg.CMS.WebhookSecret
		}
		if s, err := store.LoadSettings(c.Request.Context()); err == nil && s.APIKey != "" {
			return s.APIKey
		}
		return cfg.Server.APIKey
	}
}

// Run resumes tasks a previous process left unfinished, serves HTTP and the
// batch schedule until ctx is cancelled, then shuts everything down.
func (a *Application) Run(ctx context.Context) error {
	orphans, err := a.recovery.Pending(ctx, time.Now())
	if err != nil {
		a.logger.Warn("list unfinished tasks failed", "error", err)
	}
	a.queue.Start()
	if len(orphans) > 0 {
		a.logger.Info("resuming unfinished tasks", "count", len(orphans))
		go a.recovery.Resume(ctx, orphans)
	}

	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		a.logger.Info("batch scheduler started", "cron", a.cfg.Batch.CronExpression, "timezone", a.cfg.Batch.Timezone)
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.shutdown(shutdownCtx)
	return runErr
}

// RunBatchOnce triggers a single batch run outside the schedule.
func (a *Application) RunBatchOnce(ctx context.Context) (usecase.BatchResult, error) {
	if a.batch == nil {
		return usecase.BatchResult{}, domain.NewError(domain.KindValidation, "run batch", "cms base url not configured")
	}
	a.queue.Start()
	res := a.batch.Run(ctx, "")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.queue.Stop(shutdownCtx); err != nil {
		a.logger.Warn("dispatch queue did not drain", "error", err)
	}
	b := backends{closers: a.closers}
	b.close(a.logger)
	return res, nil
}

func (a *Application) shutdown(ctx context.Context) {
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.logger.Warn("stop scheduler", "error", err)
		}
	}
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warn("http shutdown", "error", err)
	}
	if err := a.queue.Stop(ctx); err != nil {
		a.logger.Warn("dispatch queue did not drain", "error", err)
	}
	b := backends{closers: a.closers}
	b.close(a.logger)
	a.logger.Info("shutdown complete", "abandoned_tasks", a.abandoned.Load())
}
