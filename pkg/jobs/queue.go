package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Job asks a worker to audit one event's timetable as part of a run.
type Job struct {
	ID       string
	RunID    string
	EventID  string
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour. RatePerSecond caps how many
// jobs all workers together start per second; zero leaves it unlimited.
type QueueConfig struct {
	Workers       int
	BufferSize    int
	MaxRetries    int
	RetryDelay    time.Duration
	RatePerSecond float64
	Burst         int
	Logger        *zap.Logger
}

// QueueStats counts job outcomes since the queue was built.
type QueueStats struct {
	Succeeded uint64
	Failed    uint64
	Retried   uint64
}

// Queue is an in-memory job dispatcher backed by goroutines and a shared
// token bucket.
type Queue struct {
	name    string
	handler Handler

	workers    int
	maxRetries int
	retryDelay time.Duration
	limiter    *rate.Limiter
	logger     *zap.Logger

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool

	pending int
	idle    chan struct{}

	succeeded atomic.Uint64
	failed    atomic.Uint64
	retried   atomic.Uint64
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	idle := make(chan struct{})
	close(idle)

	return &Queue{
		name:       name,
		handler:    handler,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		logger:     cfg.Logger,
		jobs:       make(chan Job, cfg.BufferSize),
		idle:       idle,
	}
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i + 1)
	}
	q.started = true
	q.logger.Info("queue started", zap.String("queue", q.name), zap.Int("workers", q.workers))
}

// Stop cancels workers and waits for them to exit. Jobs still buffered are
// dropped.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Info("queue stopped", zap.String("queue", q.name))
}

// Enqueue pushes a job onto the queue, blocking while the buffer is full.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	q.track(1)
	if err := q.push(ctx, job); err != nil {
		q.track(-1)
		return err
	}
	return nil
}

// Wait blocks until every enqueued job has succeeded or run out of retries,
// or ctx ends.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports job outcome counters.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Succeeded: q.succeeded.Load(),
		Failed:    q.failed.Load(),
		Retried:   q.retried.Load(),
	}
}

func (q *Queue) push(ctx context.Context, job Job) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	}
}

func (q *Queue) track(delta int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == 0 && delta > 0 {
		q.idle = make(chan struct{})
	}
	q.pending += delta
	if q.pending == 0 {
		close(q.idle)
	}
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			if err := q.limiter.Wait(q.ctx); err != nil {
				return
			}
			if err := q.handler(q.ctx, job); err != nil {
				q.handleFailure(workerID, job, err)
				continue
			}
			q.succeeded.Add(1)
			q.track(-1)
		}
	}
}

func (q *Queue) handleFailure(workerID int, job Job, err error) {
	job.Attempt++
	fields := []zap.Field{
		zap.String("queue", q.name),
		zap.Int("worker", workerID),
		zap.String("job_id", job.ID),
		zap.String("run_id", job.RunID),
		zap.String("event_id", job.EventID),
		zap.Int("attempt", job.Attempt),
		zap.Error(err),
	}
	if job.Attempt > q.maxRetries {
		q.logger.Error("job exceeded retries", fields...)
		q.failed.Add(1)
		q.track(-1)
		return
	}
	q.logger.Warn("job failed, retrying", fields...)
	q.retried.Add(1)

	go func(j Job) {
		timer := time.NewTimer(q.retryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
		case <-timer.C:
			if err := q.push(q.ctx, j); err == nil {
				return
			}
			q.logger.Error("failed to requeue job", zap.String("queue", q.name), zap.String("job_id", j.ID))
		}
		q.failed.Add(1)
		q.track(-1)
	}(job)
}
