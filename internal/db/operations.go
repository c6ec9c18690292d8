package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const counterDateLayout = "2006-01-02"

var ErrJobNotFound = errors.New("job not found")

type JobOperations struct {
	db *sql.DB
}

func NewJobOperations(db *sql.DB) *JobOperations {
	return &JobOperations{db: db}
}

func (o *JobOperations) RecordQueued(ctx context.Context, j *JobRecord) error {
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	_, err := o.db.ExecContext(ctx, UpsertQueuedJob,
		j.ID, j.InvoiceID, j.Template, j.Output, j.RetryCount, j.CreatedAt.UTC(), now)
	if err != nil {
		return fmt.Errorf("failed to record queued job: %w", err)
	}
	return nil
}

func (o *JobOperations) MarkProcessing(ctx context.Context, id string, retryCount int, at time.Time) error {
	return o.exec(ctx, "mark job processing", MarkJobProcessing, retryCount, at.UTC(), at.UTC(), id)
}

func (o *JobOperations) MarkCompleted(ctx context.Context, id string, retryCount int, at time.Time) error {
	return o.exec(ctx, "mark job completed", MarkJobCompleted, retryCount, at.UTC(), at.UTC(), id)
}

func (o *JobOperations) MarkRetrying(ctx context.Context, id string, retryCount int, kind, message string, at time.Time) error {
	return o.exec(ctx, "mark job retrying", MarkJobRetrying, retryCount, kind, message, at.UTC(), id)
}

func (o *JobOperations) MarkFailed(ctx context.Context, id string, retryCount int, kind, message string, at time.Time) error {
	return o.exec(ctx, "mark job failed", MarkJobFailed, retryCount, kind, message, at.UTC(), at.UTC(), id)
}

func (o *JobOperations) exec(ctx context.Context, what, query string, args ...any) error {
	if _, err := o.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	return nil
}

func (o *JobOperations) GetJob(ctx context.Context, id string) (*JobRecord, error) {
	j, err := scanJob(o.db.QueryRowContext(ctx, GetJobByID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

func (o *JobOperations) ListJobs(ctx context.Context, filter JobFilter) ([]*JobRecord, error) {
	var conditions []string
	var args []any

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.InvoiceID > 0 {
		conditions = append(conditions, "invoice_id = ?")
		args = append(args, filter.InvoiceID)
	}

	query := "SELECT " + jobColumns + " FROM print_jobs"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?"

	limit := 100
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	args = append(args, limit, filter.Offset)

	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// UnfinishedJobs returns jobs that were queued, running or waiting for a
// retry when the process last stopped, oldest first.
func (o *JobOperations) UnfinishedJobs(ctx context.Context) ([]*JobRecord, error) {
	rows, err := o.db.QueryContext(ctx, ListUnfinishedJobs)
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (o *JobOperations) PurgeFinished(ctx context.Context, before time.Time) (int64, error) {
	res, err := o.db.ExecContext(ctx, PurgeFinishedJobs, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge finished jobs: %w", err)
	}
	return res.RowsAffected()
}

func (o *JobOperations) IncrementCounter(ctx context.Context, day time.Time, output string) error {
	return o.exec(ctx, "increment print counter", IncrementCounter, day.Format(counterDateLayout), output)
}

func (o *JobOperations) ListCounters(ctx context.Context, since time.Time) ([]*PrintCounter, error) {
	rows, err := o.db.QueryContext(ctx, ListCounters, since.Format(counterDateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to list print counters: %w", err)
	}
	defer rows.Close()

	var counters []*PrintCounter
	for rows.Next() {
		c := &PrintCounter{}
		if err := rows.Scan(&c.Date, &c.Output, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan print counter: %w", err)
		}
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*JobRecord, error) {
	j := &JobRecord{}
	var startedAt, completedAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.InvoiceID, &j.Template, &j.Output, &j.Status, &j.RetryCount,
		&j.ErrorKind, &j.ErrorMessage, &j.CreatedAt, &startedAt, &completedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	return j, nil
}

func scanJobs(rows *sql.Rows) ([]*JobRecord, error) {
	var jobs []*JobRecord
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
