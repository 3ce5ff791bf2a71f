package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/courier/internal/storage"
)

const defaultMaxAttempts = 5

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Queue struct {
	db          *sql.DB
	dialect     storage.Dialect
	maxAttempts int
}

// New returns a queue. maxAttempts applies to requests that leave it unset.
func New(db *sql.DB, dialect storage.Dialect, maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Queue{db: db, dialect: dialect, maxAttempts: maxAttempts}
}

func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	return q.enqueue(ctx, q.db, req)
}

// EnqueueTx enqueues inside the caller's transaction so the job commits or
// rolls back together with the row that produced it.
func (q *Queue) EnqueueTx(ctx context.Context, tx *sql.Tx, req EnqueueRequest) (string, error) {
	return q.enqueue(ctx, tx, req)
}

func (q *Queue) enqueue(ctx context.Context, ex execer, req EnqueueRequest) (string, error) {
	if req.Kind == "" {
		return "", fmt.Errorf("kind is empty")
	}
	if req.EventID == "" {
		return "", fmt.Errorf("event_id is empty")
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.maxAttempts
	}

	id := uuid.NewString()
	now := storage.FormatTime(time.Now())

	_, err := ex.ExecContext(ctx, q.dialect.Rebind(`
INSERT INTO relay_jobs(id, kind, event_id, status, attempt, max_attempts, created_at)
VALUES(?, ?, ?, ?, 1, ?, ?);
`), id, req.Kind, req.EventID, StatusQueued, maxAttempts, now)
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

// Dequeue claims the oldest runnable job and marks it running. Returns
// (nil, nil) if nothing is runnable.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	nowS := storage.FormatTime(time.Now())

	lock := ""
	if q.dialect == storage.DialectPostgres {
		lock = " FOR UPDATE SKIP LOCKED"
	}

	row := q.db.QueryRowContext(ctx, q.dialect.Rebind(`
WITH next AS (
  SELECT id
  FROM relay_jobs
  WHERE status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)
  ORDER BY created_at ASC, id ASC
  LIMIT 1`+lock+`
)
UPDATE relay_jobs
SET status = ?, started_at = ?
WHERE id IN (SELECT id FROM next)
RETURNING `+jobColumns+`;
`), StatusQueued, nowS, StatusRunning, nowS)

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	return j, nil
}

// Complete marks a job terminal and appends a row to relay_job_log.
func (q *Queue) Complete(ctx context.Context, jobID string, status Status, lastError *string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is empty")
	}
	if status != StatusSucceeded && status != StatusDead {
		return fmt.Errorf("invalid terminal status: %q", status)
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		kind, eventID, createdAt string
		attempt                  int
	)
	err = tx.QueryRowContext(ctx, q.dialect.Rebind(`
SELECT kind, event_id, attempt, created_at FROM relay_jobs WHERE id = ?;
`), jobID).Scan(&kind, &eventID, &attempt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("load job for completion: %w", err)
	}

	completedAt := storage.FormatTime(time.Now())

	if _, err := tx.ExecContext(ctx, q.dialect.Rebind(`
UPDATE relay_jobs
SET status = ?, completed_at = ?, last_error = ?, next_retry_at = NULL
WHERE id = ?;
`), status, completedAt, lastError, jobID); err != nil {
		return fmt.Errorf("update job completion: %w", err)
	}

	logID := fmt.Sprintf("%s-%d", jobID, attempt)
	if _, err := tx.ExecContext(ctx, q.dialect.Rebind(`
INSERT INTO relay_job_log(id, job_id, kind, event_id, status, attempt, created_at, completed_at, last_error)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`), logID, jobID, kind, eventID, status, attempt, createdAt, completedAt, lastError); err != nil {
		return fmt.Errorf("insert relay_job_log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Retry puts a running job back in the queue for another attempt at nextRetryAt.
func (q *Queue) Retry(ctx context.Context, jobID string, attempt int, nextRetryAt time.Time, lastError string) error {
	res, err := q.db.ExecContext(ctx, q.dialect.Rebind(`
UPDATE relay_jobs
SET status = ?, attempt = ?, next_retry_at = ?, last_error = ?, started_at = NULL
WHERE id = ?;
`), StatusQueued, attempt, storage.FormatTime(nextRetryAt), lastError, jobID)
	if err != nil {
		return fmt.Errorf("retry job: %w", err)
	}
	return requireOneRow(res)
}

// FindJobsByStatus returns all jobs in status, oldest first.
func (q *Queue) FindJobsByStatus(ctx context.Context, status Status) ([]*Job, error) {
	rows, err := q.db.QueryContext(ctx, q.dialect.Rebind(`
SELECT `+jobColumns+`
FROM relay_jobs
WHERE status = ?
ORDER BY created_at ASC, id ASC;
`), status)
	if err != nil {
		return nil, fmt.Errorf("find jobs by status: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

// FindJobsByEvent returns every relay job enqueued for eventID, oldest first.
func (q *Queue) FindJobsByEvent(ctx context.Context, eventID string) ([]*Job, error) {
	rows, err := q.db.QueryContext(ctx, q.dialect.Rebind(`
SELECT `+jobColumns+`
FROM relay_jobs
WHERE event_id = ?
ORDER BY created_at ASC, id ASC;
`), eventID)
	if err != nil {
		return nil, fmt.Errorf("find jobs by event: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// GetJob returns one job by id.
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	row := q.db.QueryRowContext(ctx, q.dialect.Rebind(`SELECT `+jobColumns+` FROM relay_jobs WHERE id = ?;`), jobID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// UpdateJobForRecovery rewrites an orphaned job found at startup.
func (q *Queue) UpdateJobForRecovery(ctx context.Context, jobID string, newStatus Status, newAttempt int, nextRetryAt *time.Time, lastError string) error {
	var (
		next      any
		errVal    any
		completed any
	)
	if nextRetryAt != nil {
		next = storage.FormatTime(*nextRetryAt)
	}
	if lastError != "" {
		errVal = lastError
	}
	if newStatus == StatusDead {
		completed = storage.FormatTime(time.Now())
	}

	res, err := q.db.ExecContext(ctx, q.dialect.Rebind(`
UPDATE relay_jobs
SET status = ?, attempt = ?, next_retry_at = ?, last_error = COALESCE(?, last_error), completed_at = ?, started_at = NULL
WHERE id = ?;
`), newStatus, newAttempt, next, errVal, completed, jobID)
	if err != nil {
		return fmt.Errorf("update job for recovery: %w", err)
	}
	return requireOneRow(res)
}

// PruneJobLogs deletes terminal jobs and log rows older than retention.
func (q *Queue) PruneJobLogs(ctx context.Context, retention time.Duration) error {
	cutoff := storage.FormatTime(time.Now().Add(-retention))

	if _, err := q.db.ExecContext(ctx, q.dialect.Rebind(`DELETE FROM relay_job_log WHERE completed_at < ?;`), cutoff); err != nil {
		return fmt.Errorf("prune relay_job_log: %w", err)
	}
	if _, err := q.db.ExecContext(ctx, q.dialect.Rebind(`
DELETE FROM relay_jobs WHERE status IN (?, ?) AND completed_at < ?;
`), StatusSucceeded, StatusDead, cutoff); err != nil {
		return fmt.Errorf("prune relay_jobs: %w", err)
	}
	return nil
}

// Depth returns the number of queued or running jobs.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, q.dialect.Rebind(`
SELECT COUNT(*) FROM relay_jobs WHERE status IN (?, ?);
`), StatusQueued, StatusRunning).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

const jobColumns = `id, kind, event_id, status, attempt, max_attempts, created_at, started_at, completed_at, next_retry_at, last_error`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var (
		j                                      Job
		statusS, createdAtS                    string
		startedAtS, completedAtS, nextRetryAtS sql.NullString
		lastError                              sql.NullString
	)
	if err := s.Scan(
		&j.ID, &j.Kind, &j.EventID, &statusS, &j.Attempt, &j.MaxAttempts,
		&createdAtS, &startedAtS, &completedAtS, &nextRetryAtS, &lastError,
	); err != nil {
		return nil, err
	}

	j.Status = Status(statusS)
	j.CreatedAt = storage.ParseTime(createdAtS)
	j.StartedAt = storage.ParseNullTime(startedAtS)
	j.CompletedAt = storage.ParseNullTime(completedAtS)
	j.NextRetryAt = storage.ParseNullTime(nextRetryAtS)
	if lastError.Valid {
		j.LastError = &lastError.String
	}
	return &j, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}
