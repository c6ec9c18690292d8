package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wiffzack/printspool/internal/config"
)

type fakeProcessor struct {
	mu    sync.Mutex
	calls []*Job
	fn    func(job *Job, call int) error
}

func (p *fakeProcessor) Process(_ context.Context, job *Job) error {
	p.mu.Lock()
	snapshot := *job
	p.calls = append(p.calls, &snapshot)
	n := len(p.calls)
	fn := p.fn
	p.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn(job, n)
}

func (p *fakeProcessor) invoiceIDs() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]int64, len(p.calls))
	for i, c := range p.calls {
		ids[i] = c.InvoiceID
	}
	return ids
}

type recordingHook struct {
	mu     sync.Mutex
	events []JobEvent
}

func (h *recordingHook) OnJobEvent(ev JobEvent) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
}

func (h *recordingHook) types() []JobEventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]JobEventType, len(h.events))
	for i, ev := range h.events {
		out[i] = ev.Type
	}
	return out
}

func runUntilIdle(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	q.Start()
	require.NoError(t, q.WaitIdle(ctx))
	require.NoError(t, q.Stop(ctx))
}

func TestQueue_ServesHigherInvoiceIDsFirst(t *testing.T) {
	p := &fakeProcessor{}
	q := NewQueue(p, nil, nil)

	q.Enqueue(5, "invoice", OutputEscPos)
	q.Enqueue(3, "invoice", OutputEscPos)
	q.Enqueue(8, "invoice", OutputEscPos)

	runUntilIdle(t, q)

	assert.Equal(t, []int64{8, 5, 3}, p.invoiceIDs())
}

func TestQueue_EqualIDsAreFIFO(t *testing.T) {
	p := &fakeProcessor{}
	q := NewQueue(p, nil, nil)

	q.Enqueue(7, "first", OutputEscPos)
	q.Enqueue(7, "second", OutputHTML)
	q.Enqueue(7, "third", OutputEscPos)

	runUntilIdle(t, q)

	require.Len(t, p.calls, 3)
	assert.Equal(t, "first", p.calls[0].Template)
	assert.Equal(t, "second", p.calls[1].Template)
	assert.Equal(t, "third", p.calls[2].Template)
}

func TestQueue_RetriedJobYieldsToNewerInvoices(t *testing.T) {
	var q *Queue
	p := &fakeProcessor{}
	p.fn = func(job *Job, call int) error {
		if call == 1 {
			q.Enqueue(9, "invoice", OutputEscPos)
			return fmt.Errorf("printer busy: %w", ErrIO)
		}
		return nil
	}
	q = NewQueue(p, nil, nil)

	q.Enqueue(5, "invoice", OutputEscPos)
	q.Enqueue(3, "invoice", OutputEscPos)

	runUntilIdle(t, q)

	assert.Equal(t, []int64{5, 9, 5, 3}, p.invoiceIDs())
	assert.Equal(t, 1, p.calls[2].Tries)
}

func TestQueue_DropsAfterThreeFailures(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	hook := &recordingHook{}
	p := &fakeProcessor{fn: func(*Job, int) error {
		return fmt.Errorf("write spool: %w", ErrIO)
	}}
	q := NewQueue(p, &config.QueueConfig{MaxTries: 3}, zap.New(obsCore), hook)

	q.Enqueue(42, "invoice", OutputEscPos)
	runUntilIdle(t, q)

	assert.Len(t, p.calls, 3, "no fourth attempt")
	assert.Equal(t, 3, logs.FilterMessage("print job failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("print job permanently failed").Len())

	dropped := logs.FilterMessage("print job permanently failed").All()[0]
	assert.Equal(t, zapcore.ErrorLevel, dropped.Level)
	assert.Equal(t, int64(42), dropped.ContextMap()["invoice_id"])
	assert.Equal(t, int64(3), dropped.ContextMap()["try"])
	assert.Equal(t, "io", dropped.ContextMap()["error_kind"])

	assert.Equal(t, []JobEventType{
		EventJobQueued,
		EventJobStarted, EventJobRetrying,
		EventJobStarted, EventJobRetrying,
		EventJobStarted, EventJobFailed,
	}, hook.types())

	stats := q.Stats()
	assert.Equal(t, 1, stats.Dropped)
	assert.Equal(t, 2, stats.Retried)
	assert.Equal(t, 0, stats.Completed)
}

func TestQueue_DefaultMaxTriesLeavesCallerConfig(t *testing.T) {
	p := &fakeProcessor{fn: func(*Job, int) error {
		return fmt.Errorf("write spool: %w", ErrIO)
	}}
	cfg := &config.QueueConfig{}
	q := NewQueue(p, cfg, nil)

	q.Enqueue(7, "invoice", OutputEscPos)
	runUntilIdle(t, q)

	assert.Len(t, p.calls, DefaultMaxTries)
	assert.Equal(t, 0, cfg.MaxTries, "caller config is not written to")
}

func TestQueue_MissingDataIsDroppedImmediately(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	p := &fakeProcessor{fn: func(*Job, int) error {
		return fmt.Errorf("fetch invoice 1: %w", ErrDataNotFound)
	}}
	q := NewQueue(p, nil, zap.New(obsCore))

	q.Enqueue(1, "invoice", OutputEscPos)
	runUntilIdle(t, q)

	assert.Len(t, p.calls, 1)
	assert.Equal(t, 1, logs.FilterMessage("print job failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("print job permanently failed").Len())
}

func TestQueue_RecoversFromPanickingProcessor(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	p := &fakeProcessor{fn: func(job *Job, call int) error {
		if call == 1 {
			panic("nil template")
		}
		return nil
	}}
	q := NewQueue(p, nil, zap.New(obsCore))

	q.Enqueue(2, "invoice", OutputEscPos)
	q.Enqueue(1, "invoice", OutputEscPos)
	runUntilIdle(t, q)

	assert.Equal(t, []int64{2, 2, 1}, p.invoiceIDs())
	failed := logs.FilterMessage("print job failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "panic", failed[0].ContextMap()["error_kind"])
	assert.Equal(t, 2, q.Stats().Completed)
}

func TestQueue_RetryDelay(t *testing.T) {
	p := &fakeProcessor{fn: func(job *Job, call int) error {
		if call == 1 {
			return ErrIO
		}
		return nil
	}}
	q := NewQueue(p, &config.QueueConfig{MaxTries: 3, RetryDelay: 20 * time.Millisecond}, nil)

	q.Enqueue(10, "invoice", OutputEscPos)
	start := time.Now()
	runUntilIdle(t, q)

	assert.Len(t, p.calls, 2)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, 1, q.Stats().Completed)
}

func TestQueue_CalculateBackoff(t *testing.T) {
	q := NewQueue(nil, &config.QueueConfig{RetryDelay: time.Second}, nil)
	assert.Equal(t, time.Second, q.calculateBackoff(0))
	assert.Equal(t, 2*time.Second, q.calculateBackoff(1))
	assert.Equal(t, 4*time.Second, q.calculateBackoff(2))
	assert.Equal(t, 5*time.Minute, q.calculateBackoff(12))

	q = NewQueue(nil, &config.QueueConfig{}, nil)
	assert.Zero(t, q.calculateBackoff(3))
	assert.Equal(t, DefaultMaxTries, q.config.MaxTries)
}

func TestQueue_ConcurrentEnqueue(t *testing.T) {
	q := NewQueue(&fakeProcessor{}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			q.Enqueue(id, "invoice", OutputEscPos)
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, 50, q.Len())

	var last int64 = 1 << 62
	for i := 0; i < 50; i++ {
		job, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		assert.Less(t, job.InvoiceID, last)
		last = job.InvoiceID
	}
}

func TestQueue_DequeueHonoursContext(t *testing.T) {
	q := NewQueue(&fakeProcessor{}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestQueue_RestoreKeepsTries(t *testing.T) {
	p := &fakeProcessor{fn: func(*Job, int) error { return ErrIO }}
	q := NewQueue(p, nil, nil)

	q.Restore(Job{ID: "job-1", InvoiceID: 3, Template: "invoice", Output: OutputEscPos, Tries: 2})
	runUntilIdle(t, q)

	require.Len(t, p.calls, 1)
	assert.Equal(t, "job-1", p.calls[0].ID)
	assert.Equal(t, 1, q.Stats().Dropped)
}

func TestQueue_EnqueueAssignsIDs(t *testing.T) {
	q := NewQueue(&fakeProcessor{}, nil, nil)

	a := q.Enqueue(1, "invoice", OutputEscPos)
	b := q.Enqueue(1, "invoice", OutputEscPos)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Zero(t, a.Tries)
	assert.False(t, a.EnqueuedAt.IsZero())
}

func TestQueue_StopWithoutStart(t *testing.T) {
	q := NewQueue(&fakeProcessor{}, nil, nil)
	assert.NoError(t, q.Stop(context.Background()))
}
