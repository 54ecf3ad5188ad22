package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobwatch/internal/common"
	"github.com/ternarybob/jobwatch/internal/models"
)

// TaskQueue is the durable queue of per-URL inference work.
type TaskQueue struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewTaskQueue creates a new task queue instance
func NewTaskQueue(db *SQLiteDB, logger arbor.ILogger) *TaskQueue {
	return &TaskQueue{db: db, logger: logger}
}

// AddTasks inserts one PENDING task per URL with INSERT OR IGNORE semantics
// keyed on (site, url), deduplicating URLs arriving from separate diffs.
// Returns the number of rows actually created.
func (q *TaskQueue) AddTasks(ctx context.Context, site string, urls []string) (int64, error) {
	if len(urls) == 0 {
		return 0, nil
	}
	now := common.NowEpochMs()

	tx, err := q.db.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin task insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO job_tasks(site, url, status, created_ts_ms, updated_ts_ms)
		VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare task insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, u := range urls {
		res, err := stmt.ExecContext(ctx, site, u, models.StatusPending, now, now)
		if err != nil {
			return 0, fmt.Errorf("failed to insert task for %s: %w", u, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit task insert: %w", err)
	}
	return inserted, nil
}

// Claim atomically transitions the oldest eligible PENDING or FAILED task to
// IN_PROGRESS for owner. FAILED rows are eligible once their backoff window
// has elapsed. Returns nil when nothing is claimable or the race was lost.
func (q *TaskQueue) Claim(ctx context.Context, owner string) (*models.JobTask, error) {
	now := common.NowEpochMs()

	row := q.db.db.QueryRowContext(ctx, `
		SELECT id, site, url, status, created_ts_ms, updated_ts_ms, attempts, COALESCE(last_error, '')
		FROM job_tasks
		WHERE status IN (?, ?)
		  AND (backoff_until_ms IS NULL OR backoff_until_ms <= ?)
		ORDER BY created_ts_ms ASC
		LIMIT 1`,
		models.StatusPending, models.StatusFailed, now)

	var task models.JobTask
	err := row.Scan(&task.ID, &task.Site, &task.URL, &task.Status,
		&task.CreatedTsMs, &task.UpdatedTsMs, &task.Attempts, &task.LastError)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select pending task: %w", err)
	}

	res, err := q.db.db.ExecContext(ctx, `
		UPDATE job_tasks
		SET status = ?, owner = ?, updated_ts_ms = ?, attempts = attempts + 1
		WHERE id = ? AND status IN (?, ?)`,
		models.StatusInProgress, owner, now, task.ID, models.StatusPending, models.StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to claim task %d: %w", task.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected != 1 {
		return nil, nil
	}
	return &task, nil
}

// Complete transitions the task for url to DONE.
func (q *TaskQueue) Complete(ctx context.Context, url string) error {
	_, err := q.db.db.ExecContext(ctx, `
		UPDATE job_tasks SET status = ?, updated_ts_ms = ? WHERE url = ?`,
		models.StatusDone, common.NowEpochMs(), url)
	if err != nil {
		return fmt.Errorf("failed to complete task for %s: %w", url, err)
	}
	return nil
}

// Fail records the error on the task for url and sets a backoff window. The
// task becomes claimable again once the window elapses.
func (q *TaskQueue) Fail(ctx context.Context, url, errMsg string, backoffMs int64) error {
	now := common.NowEpochMs()
	_, err := q.db.db.ExecContext(ctx, `
		UPDATE job_tasks
		SET status = ?, last_error = ?, backoff_until_ms = ?, updated_ts_ms = ?
		WHERE url = ?`,
		models.StatusFailed, errMsg, now+backoffMs, now, url)
	if err != nil {
		return fmt.Errorf("failed to fail task for %s: %w", url, err)
	}
	return nil
}

// ReapStuck resets IN_PROGRESS tasks not updated within timeoutMs back to
// PENDING with owner cleared. Returns the number of rows reaped.
func (q *TaskQueue) ReapStuck(ctx context.Context, timeoutMs int64) (int64, error) {
	now := common.NowEpochMs()
	res, err := q.db.db.ExecContext(ctx, `
		UPDATE job_tasks
		SET status = ?, owner = NULL, updated_ts_ms = ?
		WHERE status = ?
		  AND updated_ts_ms <= ?`,
		models.StatusPending, now, models.StatusInProgress, now-timeoutMs)
	if err != nil {
		return 0, fmt.Errorf("failed to reap stuck tasks: %w", err)
	}
	return res.RowsAffected()
}

// CountByStatus returns the number of tasks in the given status.
func (q *TaskQueue) CountByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := q.db.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM job_tasks WHERE status = ?", status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}
