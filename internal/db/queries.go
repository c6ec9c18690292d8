package db

const jobColumns = `id, invoice_id, template, output, status, retry_count, error_kind, error_message,
	created_at, started_at, completed_at, updated_at`

const (
	UpsertQueuedJob = `
		INSERT INTO print_jobs (id, invoice_id, template, output, status, retry_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = 'pending', retry_count = excluded.retry_count, updated_at = excluded.updated_at
	`

	MarkJobProcessing = `
		UPDATE print_jobs SET status = 'processing', retry_count = ?, started_at = ?, updated_at = ?
		WHERE id = ?
	`

	MarkJobCompleted = `
		UPDATE print_jobs SET status = 'completed', retry_count = ?, error_kind = '', error_message = '',
			completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	MarkJobRetrying = `
		UPDATE print_jobs SET status = 'retrying', retry_count = ?, error_kind = ?, error_message = ?, updated_at = ?
		WHERE id = ?
	`

	MarkJobFailed = `
		UPDATE print_jobs SET status = 'failed', retry_count = ?, error_kind = ?, error_message = ?,
			completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	GetJobByID = `SELECT ` + jobColumns + ` FROM print_jobs WHERE id = ?`

	ListUnfinishedJobs = `
		SELECT ` + jobColumns + ` FROM print_jobs
		WHERE status IN ('pending', 'processing', 'retrying')
		ORDER BY created_at ASC
	`

	PurgeFinishedJobs = `
		DELETE FROM print_jobs
		WHERE status IN ('completed', 'failed') AND completed_at IS NOT NULL AND completed_at < ?
	`
)

const (
	IncrementCounter = `
		INSERT INTO print_counters (date, output, count) VALUES (?, ?, 1)
		ON CONFLICT (date, output) DO UPDATE SET count = count + 1
	`

	ListCounters = `
		SELECT date, output, count FROM print_counters
		WHERE date >= ? ORDER BY date DESC, output ASC
	`
)
