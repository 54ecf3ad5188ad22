package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobwatch/internal/common"
	"github.com/ternarybob/jobwatch/internal/models"
)

// DiffQueue is the durable queue of pending diff expansions.
type DiffQueue struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewDiffQueue creates a new diff queue instance
func NewDiffQueue(db *SQLiteDB, logger arbor.ILogger) *DiffQueue {
	return &DiffQueue{db: db, logger: logger}
}

// Enqueue inserts a diff row. Returns true if the row was created, false when
// an identical (site, diff_hash) row already exists. An existing row is never
// updated.
func (q *DiffQueue) Enqueue(ctx context.Context, site, diffHash string, addedURLs []string) (bool, error) {
	if addedURLs == nil {
		addedURLs = []string{}
	}
	urlsJSON, err := json.Marshal(addedURLs)
	if err != nil {
		return false, fmt.Errorf("failed to serialize added urls: %w", err)
	}

	_, err = q.db.db.ExecContext(ctx, `
		INSERT INTO diff_queue(site, created_ts_ms, diff_hash, added_urls_json)
		VALUES(?, ?, ?, ?)`,
		site, common.NowEpochMs(), diffHash, string(urlsJSON))
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to enqueue diff: %w", err)
	}
	return true, nil
}

// Claim atomically transitions the oldest eligible PENDING diff to
// IN_PROGRESS for owner, incrementing attempts. Returns nil when the queue is
// empty or the guarded update lost a race; the returned record carries the
// pre-claim row contents with the parsed URL list.
func (q *DiffQueue) Claim(ctx context.Context, owner string) (*models.DiffRecord, error) {
	now := common.NowEpochMs()

	row := q.db.db.QueryRowContext(ctx, `
		SELECT id, site, created_ts_ms, diff_hash, added_urls_json, status, attempts, COALESCE(last_error, '')
		FROM diff_queue
		WHERE status = ?
		  AND (backoff_until_ms IS NULL OR backoff_until_ms <= ?)
		ORDER BY created_ts_ms ASC
		LIMIT 1`,
		models.StatusPending, now)

	var (
		rec      models.DiffRecord
		urlsJSON string
	)
	err := row.Scan(&rec.ID, &rec.Site, &rec.CreatedTsMs, &rec.DiffHash, &urlsJSON,
		&rec.Status, &rec.Attempts, &rec.LastError)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select pending diff: %w", err)
	}
	if err := json.Unmarshal([]byte(urlsJSON), &rec.AddedURLs); err != nil {
		return nil, fmt.Errorf("corrupt added_urls_json on diff %d: %w", rec.ID, err)
	}

	// Guarded update doubles as the claim CAS: zero rows affected means
	// another worker won the race and the claim returns nothing.
	res, err := q.db.db.ExecContext(ctx, `
		UPDATE diff_queue
		SET status = ?, owner = ?, claimed_ts_ms = ?, updated_ts_ms = ?, attempts = attempts + 1
		WHERE id = ? AND status = ?`,
		models.StatusInProgress, owner, now, now, rec.ID, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to claim diff %d: %w", rec.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected != 1 {
		return nil, nil
	}
	return &rec, nil
}

// MarkDone transitions a diff to DONE.
func (q *DiffQueue) MarkDone(ctx context.Context, diffID int64) error {
	_, err := q.db.db.ExecContext(ctx, `
		UPDATE diff_queue SET status = ?, updated_ts_ms = ? WHERE id = ?`,
		models.StatusDone, common.NowEpochMs(), diffID)
	if err != nil {
		return fmt.Errorf("failed to mark diff %d done: %w", diffID, err)
	}
	return nil
}

// MarkFailed records the error and returns the diff to PENDING with a backoff
// window.
func (q *DiffQueue) MarkFailed(ctx context.Context, diffID int64, errMsg string, backoffMs int64) error {
	now := common.NowEpochMs()
	_, err := q.db.db.ExecContext(ctx, `
		UPDATE diff_queue
		SET status = ?, last_error = ?, backoff_until_ms = ?, updated_ts_ms = ?
		WHERE id = ?`,
		models.StatusPending, errMsg, now+backoffMs, now, diffID)
	if err != nil {
		return fmt.Errorf("failed to mark diff %d failed: %w", diffID, err)
	}
	return nil
}

// ReapStuck resets IN_PROGRESS diffs whose claim is older than timeoutMs back
// to PENDING with owner cleared. Returns the number of rows reaped.
func (q *DiffQueue) ReapStuck(ctx context.Context, timeoutMs int64) (int64, error) {
	now := common.NowEpochMs()
	res, err := q.db.db.ExecContext(ctx, `
		UPDATE diff_queue
		SET status = ?, owner = NULL, claimed_ts_ms = NULL, updated_ts_ms = ?
		WHERE status = ?
		  AND claimed_ts_ms IS NOT NULL
		  AND claimed_ts_ms <= ?`,
		models.StatusPending, now, models.StatusInProgress, now-timeoutMs)
	if err != nil {
		return 0, fmt.Errorf("failed to reap stuck diffs: %w", err)
	}
	return res.RowsAffected()
}

// Clear deletes every diff row. Administrative tooling.
func (q *DiffQueue) Clear(ctx context.Context) (int64, error) {
	res, err := q.db.db.ExecContext(ctx, "DELETE FROM diff_queue")
	if err != nil {
		return 0, fmt.Errorf("failed to clear diff queue: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of rows currently in the queue, any status.
func (q *DiffQueue) Count(ctx context.Context) (int, error) {
	var count int
	if err := q.db.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM diff_queue").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count diff queue: %w", err)
	}
	return count, nil
}

// isUniqueViolation detects SQLite unique constraint errors without tying the
// caller to driver error codes.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
