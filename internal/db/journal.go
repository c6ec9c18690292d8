package db

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wiffzack/printspool/internal/core"
)

const (
	journalBuffer = 1024
	purgeInterval = 24 * time.Hour
)

// Journal persists job lifecycle events so an operator can see what was
// printed and a restart can pick up where the last run stopped. Writes
// happen on a background goroutine; OnJobEvent never blocks.
type Journal struct {
	ops       *JobOperations
	logger    *zap.Logger
	retention time.Duration

	events chan core.JobEvent
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func NewJournal(database *sql.DB, retentionDays int, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &Journal{
		ops:       NewJobOperations(database),
		logger:    logger,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		events:    make(chan core.JobEvent, journalBuffer),
		stopCh:    make(chan struct{}),
	}

	j.wg.Add(1)
	go j.writer()
	if j.retention > 0 {
		j.wg.Add(1)
		go j.purgeLoop()
	}
	return j
}

func (j *Journal) Operations() *JobOperations {
	return j.ops
}

func (j *Journal) OnJobEvent(ev core.JobEvent) {
	select {
	case j.events <- ev:
	default:
		j.logger.Warn("journal buffer full, event dropped",
			zap.String("event", string(ev.Type)),
			zap.String("job_id", ev.Job.ID),
		)
	}
}

// Close flushes pending events and stops the background work.
func (j *Journal) Close() {
	j.once.Do(func() {
		close(j.stopCh)
		j.wg.Wait()
	})
}

// Recover re-enqueues every job the journal still considers unfinished,
// keeping its id and try count.
func (j *Journal) Recover(ctx context.Context, restore func(core.Job)) (int, error) {
	records, err := j.ops.UnfinishedJobs(ctx)
	if err != nil {
		return 0, err
	}

	for _, r := range records {
		restore(core.Job{
			ID:         r.ID,
			InvoiceID:  r.InvoiceID,
			Template:   r.Template,
			Output:     core.OutputKind(r.Output),
			Tries:      r.RetryCount,
			EnqueuedAt: r.CreatedAt,
		})
	}
	return len(records), nil
}

func (j *Journal) writer() {
	defer j.wg.Done()

	for {
		select {
		case ev := <-j.events:
			j.write(ev)
		case <-j.stopCh:
			for {
				select {
				case ev := <-j.events:
					j.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (j *Journal) write(ev core.JobEvent) {
	ctx := context.Background()
	job := ev.Job
	at := ev.Timestamp.UTC()

	var err error
	switch ev.Type {
	case core.EventJobQueued:
		err = j.ops.RecordQueued(ctx, &JobRecord{
			ID:         job.ID,
			InvoiceID:  job.InvoiceID,
			Template:   job.Template,
			Output:     string(job.Output),
			RetryCount: job.Tries,
			CreatedAt:  job.EnqueuedAt,
		})
	case core.EventJobStarted:
		err = j.ops.MarkProcessing(ctx, job.ID, job.Tries, at)
	case core.EventJobCompleted:
		err = j.ops.MarkCompleted(ctx, job.ID, job.Tries, at)
		if err == nil {
			err = j.ops.IncrementCounter(ctx, at, string(job.Output))
		}
	case core.EventJobRetrying:
		err = j.ops.MarkRetrying(ctx, job.ID, job.Tries, string(core.Classify(ev.Err)), errText(ev.Err), at)
	case core.EventJobFailed:
		err = j.ops.MarkFailed(ctx, job.ID, job.Tries, string(core.Classify(ev.Err)), errText(ev.Err), at)
	}

	if err != nil {
		j.logger.Error("failed to journal job event",
			zap.String("event", string(ev.Type)),
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}

func (j *Journal) purgeLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	j.Purge(context.Background())
	for {
		select {
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.Purge(context.Background())
		}
	}
}

// Purge removes finished jobs older than the retention period.
func (j *Journal) Purge(ctx context.Context) {
	n, err := j.ops.PurgeFinished(ctx, time.Now().Add(-j.retention))
	if err != nil {
		j.logger.Error("failed to purge journal", zap.Error(err))
		return
	}
	if n > 0 {
		j.logger.Info("journal purged", zap.Int64("jobs", n))
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
