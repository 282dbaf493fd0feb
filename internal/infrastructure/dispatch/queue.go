package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ContentRewriter/internal/domain"
	"ContentRewriter/internal/ports"
)

var (
	ErrQueueFull   = errors.New("dispatch queue is full")
	ErrQueueClosed = errors.New("dispatch queue is closed")
)

// Handler runs one dispatched task to completion.
type Handler func(ctx context.Context, task domain.ItemTask) error

// Options sizes the queue. OnAbandon receives queued tasks that never
// started because Stop ran out of time.
type Options struct {
	Workers   int
	Size      int
	Interval  time.Duration
	OnAbandon func(domain.ItemTask)
}

// Queue starts pipelines fire-and-forget, spacing starts by Interval.
type Queue struct {
	handler Handler
	abandon func(domain.ItemTask)
	workers int
	tasks   chan domain.ItemTask
	limiter *rate.Limiter
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

var _ ports.Dispatcher = (*Queue)(nil)

// NewQueue builds a stopped queue; call Start to launch workers.
func NewQueue(opts Options, handler Handler, logger *slog.Logger) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Size <= 0 {
		opts.Size = opts.Workers * 2
	}
	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		handler: handler,
		abandon: opts.OnAbandon,
		workers: opts.Workers,
		tasks:   make(chan domain.ItemTask, opts.Size),
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the worker goroutines.
func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for task := range q.tasks {
				if q.ctx.Err() != nil || q.limiter.Wait(q.ctx) != nil {
					q.drop(task)
					continue
				}
				q.run(task)
			}
		}()
	}
}

func (q *Queue) run(task domain.ItemTask) {
	if err := q.handler(q.ctx, task); err != nil && q.logger != nil {
		q.logger.Warn("dispatched task failed", "task_id", task.TaskID, "error", err)
	}
}

func (q *Queue) drop(task domain.ItemTask) {
	if q.logger != nil {
		q.logger.Warn("queued task abandoned at shutdown", "task_id", task.TaskID)
	}
	if q.abandon != nil {
		q.abandon(task)
	}
}

// Dispatch enqueues without blocking the caller.
func (q *Queue) Dispatch(ctx context.Context, task domain.ItemTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new work and waits for queued tasks until ctx expires, then
// cancels the ones still running and hands the rest to OnAbandon.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}
