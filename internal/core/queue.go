package core

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wiffzack/printspool/internal/config"
)

const (
	DefaultMaxTries = 3
	maxBackoff      = 5 * time.Minute
	idlePoll        = 10 * time.Millisecond
)

type QueueStats struct {
	Queued    int `json:"queued"`
	InFlight  int `json:"in_flight"`
	Delayed   int `json:"delayed"`
	Completed int `json:"completed"`
	Retried   int `json:"retried"`
	Dropped   int `json:"dropped"`
}

// Queue is an unbounded priority queue of print jobs drained by a single
// worker. Higher invoice ids are served first, equal ids in arrival order.
type Queue struct {
	processor Processor
	hooks     []JobHook
	config    *config.QueueConfig
	logger    *zap.Logger

	mu       sync.Mutex
	items    jobHeap
	seq      uint64
	inFlight bool
	delayed  int
	stats    QueueStats
	notify   chan struct{}

	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

func NewQueue(p Processor, cfg *config.QueueConfig, logger *zap.Logger, hooks ...JobHook) *Queue {
	var c config.QueueConfig
	if cfg != nil {
		c = *cfg
	}
	if c.MaxTries < 1 {
		c.MaxTries = DefaultMaxTries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Queue{
		processor: p,
		hooks:     hooks,
		config:    &c,
		logger:    logger,
		notify:    make(chan struct{}, 1),
	}
}

func (q *Queue) AddHook(h JobHook) {
	q.mu.Lock()
	q.hooks = append(q.hooks, h)
	q.mu.Unlock()
}

// Enqueue never blocks and never fails.
func (q *Queue) Enqueue(invoiceID int64, template string, output OutputKind) Job {
	job := &Job{
		ID:         uuid.NewString(),
		InvoiceID:  invoiceID,
		Template:   template,
		Output:     output,
		EnqueuedAt: time.Now(),
	}
	q.emit(EventJobQueued, job, nil, 0)
	ret := *job
	q.push(job)
	return ret
}

// Restore puts a job back with its recorded id and try count, as found in
// the journal after a restart.
func (q *Queue) Restore(job Job) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	q.emit(EventJobQueued, &job, nil, 0)
	q.push(&job)
}

func (q *Queue) push(job *Job) {
	q.mu.Lock()
	q.seq++
	job.seq = q.seq
	heap.Push(&q.items, job)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dequeue blocks until a job is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	return q.dequeue(ctx, false)
}

// dequeue pops the next job; with claim set the job is marked in flight
// under the same lock so WaitIdle never sees a gap.
func (q *Queue) dequeue(ctx context.Context, claim bool) (*Job, error) {
	for {
		q.mu.Lock()
		if q.items.Len() > 0 {
			job := heap.Pop(&q.items).(*Job)
			if claim {
				q.inFlight = true
			}
			q.mu.Unlock()
			return job, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.Queued = q.items.Len()
	stats.Delayed = q.delayed
	if q.inFlight {
		stats.InFlight = 1
	}
	return stats
}

func (q *Queue) Start() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.running = true
	q.cancel = cancel
	q.doneCh = make(chan struct{})
	q.mu.Unlock()

	go q.worker(ctx)
}

// Stop halts the worker after the job in flight, if any, has finished.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.cancel()
	done := q.doneCh
	q.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitIdle returns once nothing is queued, in flight or waiting for a
// retry delay.
func (q *Queue) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(idlePoll)
	defer ticker.Stop()

	for {
		q.mu.Lock()
		idle := q.items.Len() == 0 && !q.inFlight && q.delayed == 0
		q.mu.Unlock()
		if idle {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer close(q.doneCh)

	for {
		job, err := q.dequeue(ctx, true)
		if err != nil {
			return
		}
		q.processJob(context.WithoutCancel(ctx), job)
	}
}

func (q *Queue) processJob(ctx context.Context, job *Job) {
	defer func() {
		q.mu.Lock()
		q.inFlight = false
		q.mu.Unlock()
	}()

	start := time.Now()
	q.emit(EventJobStarted, job, nil, 0)

	err := q.run(ctx, job)
	if err != nil {
		q.handleJobFailure(job, err, time.Since(start))
		return
	}

	q.mu.Lock()
	q.stats.Completed++
	q.mu.Unlock()

	q.logger.Info("print job completed", jobFields(job)...)
	q.emit(EventJobCompleted, job, nil, time.Since(start))
}

func (q *Queue) run(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return q.processor.Process(ctx, job)
}

func (q *Queue) handleJobFailure(job *Job, err error, elapsed time.Duration) {
	job.Tries++

	fields := append(jobFields(job),
		zap.Error(err),
		zap.String("error_kind", string(Classify(err))),
	)
	q.logger.Warn("print job failed", fields...)

	if !IsRetryable(err) || job.Tries >= q.config.MaxTries {
		q.mu.Lock()
		q.stats.Dropped++
		q.mu.Unlock()

		q.logger.Error("print job permanently failed", fields...)
		q.emit(EventJobFailed, job, err, elapsed)
		return
	}

	q.mu.Lock()
	q.stats.Retried++
	q.mu.Unlock()
	q.emit(EventJobRetrying, job, err, elapsed)

	delay := q.calculateBackoff(job.Tries - 1)
	if delay <= 0 {
		q.push(job)
		return
	}

	q.mu.Lock()
	q.delayed++
	q.mu.Unlock()
	time.AfterFunc(delay, func() {
		q.push(job)
		q.mu.Lock()
		q.delayed--
		q.mu.Unlock()
	})
}

func (q *Queue) calculateBackoff(retryCount int) time.Duration {
	baseDelay := q.config.RetryDelay
	if baseDelay <= 0 {
		return 0
	}
	backoff := baseDelay * time.Duration(1<<uint(retryCount))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

func (q *Queue) emit(t JobEventType, job *Job, err error, d time.Duration) {
	q.mu.Lock()
	hooks := q.hooks
	q.mu.Unlock()

	ev := JobEvent{Type: t, Job: *job, Err: err, Duration: d, Timestamp: time.Now()}
	for _, h := range hooks {
		h.OnJobEvent(ev)
	}
}

func jobFields(job *Job) []zap.Field {
	return []zap.Field{
		zap.Int64("invoice_id", job.InvoiceID),
		zap.String("job_id", job.ID),
		zap.String("template", job.Template),
		zap.String("output", string(job.Output)),
		zap.Int("try", job.Tries),
	}
}

type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].InvoiceID != h[j].InvoiceID {
		return h[i].InvoiceID > h[j].InvoiceID
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*Job)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return job
}
