package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrDuplicate is returned when a job with the same uniqueness key is already pending.
var ErrDuplicate = errors.New("job already enqueued")

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Key      string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// Locker guards uniqueness keys so one item is never processed twice concurrently.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	LockTTL    time.Duration
	Locker     Locker
	Logger     *zap.Logger
	OnDepth    func(queue string, depth int)
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks an error as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped by Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Queue is a lightweight in-memory job dispatcher backed by goroutines.
type Queue struct {
	name    string
	handler Handler

	workers    int
	bufferSize int
	maxRetries int
	retryDelay time.Duration
	lockTTL    time.Duration
	locker     Locker
	logger     *zap.Logger
	onDepth    func(string, int)

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewQueue builds a new queue with the provided handler. A negative MaxRetries disables retries.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	if cfg.Locker == nil {
		cfg.Locker = NewMemoryLocker()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:       name,
		handler:    handler,
		workers:    cfg.Workers,
		bufferSize: cfg.BufferSize,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		lockTTL:    cfg.LockTTL,
		locker:     cfg.Locker,
		logger:     cfg.Logger,
		onDepth:    cfg.OnDepth,
		jobs:       make(chan Job, cfg.BufferSize),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

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
	q.logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.workers)
}

// Stop cancels workers and waits for them to exit. Jobs still buffered are
// dropped and their uniqueness keys released.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	dropped := q.drain()
	q.logger.Sugar().Infow("queue stopped", "queue", q.name, "dropped", dropped)
}

func (q *Queue) drain() int {
	dropped := 0
	for {
		select {
		case job := <-q.jobs:
			q.release(job)
			dropped++
		default:
			return dropped
		}
	}
}

// Enqueue pushes a job onto the queue. Jobs carrying a Key are rejected with
// ErrDuplicate while another job with the same key is pending or running.
func (q *Queue) Enqueue(job Job) error {
	ctx, err := q.running()
	if err != nil {
		return err
	}
	if err := q.acquire(ctx, job); err != nil {
		return err
	}
	if err := q.push(ctx, job); err != nil {
		q.release(job)
		return err
	}
	return nil
}

// EnqueueAfter schedules a job to be pushed once delay has elapsed. The
// uniqueness key is taken immediately.
func (q *Queue) EnqueueAfter(job Job, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(job)
	}
	ctx, err := q.running()
	if err != nil {
		return err
	}
	if err := q.acquire(ctx, job); err != nil {
		return err
	}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			q.release(job)
		case <-timer.C:
			if err := q.push(ctx, job); err != nil {
				q.release(job)
				q.logger.Sugar().Errorw("failed to push delayed job", "queue", q.name, "job_id", job.ID, "error", err)
			}
		}
	}()
	return nil
}

func (q *Queue) running() (context.Context, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		return nil, fmt.Errorf("queue %s not started", q.name)
	}
	return q.ctx, nil
}

func (q *Queue) acquire(ctx context.Context, job Job) error {
	if job.Key == "" {
		return nil
	}
	ok, err := q.locker.Acquire(ctx, q.lockKey(job), q.lockTTL)
	if err != nil {
		return fmt.Errorf("queue %s acquire %s: %w", q.name, job.Key, err)
	}
	if !ok {
		return fmt.Errorf("queue %s key %s: %w", q.name, job.Key, ErrDuplicate)
	}
	return nil
}

func (q *Queue) release(job Job) {
	if job.Key == "" {
		return
	}
	if err := q.locker.Release(context.Background(), q.lockKey(job)); err != nil {
		q.logger.Sugar().Warnw("failed to release job key", "queue", q.name, "key", job.Key, "error", err)
	}
}

func (q *Queue) lockKey(job Job) string {
	return q.name + ":" + job.Key
}

func (q *Queue) push(ctx context.Context, job Job) error {
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		q.reportDepth()
		return nil
	}
}

func (q *Queue) reportDepth() {
	if q.onDepth != nil {
		q.onDepth(q.name, len(q.jobs))
	}
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.reportDepth()
			if err := q.handler(q.ctx, job); err != nil {
				q.handleFailure(job, err)
				continue
			}
			q.release(job)
		}
	}
}

func (q *Queue) handleFailure(job Job, err error) {
	job.Attempt++
	if IsPermanent(err) || job.Attempt > q.maxRetries {
		q.release(job)
		q.logger.Sugar().Errorw("job failed", "queue", q.name, "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "error", err)
		return
	}
	q.logger.Sugar().Warnw("job failed, retrying", "queue", q.name, "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "error", err)

	q.wg.Add(1)
	go func(j Job) {
		defer q.wg.Done()
		timer := time.NewTimer(q.retryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			q.release(j)
			return
		case <-timer.C:
			// the key is still held by this job, so push directly
			if err := q.push(q.ctx, j); err != nil {
				q.release(j)
				q.logger.Sugar().Errorw("failed to requeue job", "queue", q.name, "job_id", j.ID, "error", err)
			}
		}
	}(job)
}
