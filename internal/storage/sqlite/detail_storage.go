package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobwatch/internal/common"
	"github.com/ternarybob/jobwatch/internal/models"
)

// DetailStorage persists terminal inference results.
type DetailStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewDetailStorage creates a new job detail storage instance
func NewDetailStorage(db *SQLiteDB, logger arbor.ILogger) *DetailStorage {
	return &DetailStorage{db: db, logger: logger}
}

// Upsert creates or replaces the detail row for (site, url). A conflict
// replaces title, min_years, include_job, exclude_reason, raw_json and
// updated_ts_ms but never clears emailed_ts_ms or digest_id.
func (s *DetailStorage) Upsert(ctx context.Context, d models.JobDetail) error {
	now := common.NowEpochMs()
	include := 0
	if d.IncludeJob {
		include = 1
	}

	var excludeReason sql.NullString
	if d.ExcludeReason != "" {
		excludeReason = sql.NullString{String: d.ExcludeReason, Valid: true}
	}

	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO job_details(
			site, url, job_title, min_years, include_job, exclude_reason, raw_json,
			created_ts_ms, updated_ts_ms
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(site, url) DO UPDATE SET
			job_title=excluded.job_title,
			min_years=excluded.min_years,
			include_job=excluded.include_job,
			exclude_reason=excluded.exclude_reason,
			raw_json=excluded.raw_json,
			updated_ts_ms=excluded.updated_ts_ms`,
		d.Site, d.URL, d.JobTitle, d.MinYears, include, excludeReason, d.RawJSON, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert job detail for %s: %w", d.URL, err)
	}
	return nil
}

// ListReadyForEmail returns up to limit detail rows below the experience
// threshold that have never been emailed, most recent first.
func (s *DetailStorage) ListReadyForEmail(ctx context.Context, thresholdYears, limit int) ([]models.JobDetail, error) {
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT site, url, COALESCE(job_title, ''), min_years, created_ts_ms
		FROM job_details
		WHERE min_years < ?
		  AND emailed_ts_ms IS NULL
		ORDER BY created_ts_ms DESC
		LIMIT ?`,
		thresholdYears, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select jobs ready for email: %w", err)
	}
	defer rows.Close()

	var out []models.JobDetail
	for rows.Next() {
		var d models.JobDetail
		if err := rows.Scan(&d.Site, &d.URL, &d.JobTitle, &d.MinYears, &d.CreatedTsMs); err != nil {
			return nil, fmt.Errorf("failed to scan job detail: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// MarkEmailed sets emailed_ts_ms and digest_id on the given URLs, only where
// emailed_ts_ms is still NULL, so racing digest runs cannot double-mark a
// row. Returns the number of rows actually marked.
func (s *DetailStorage) MarkEmailed(ctx context.Context, urls []string, digestID string) (int64, error) {
	if len(urls) == 0 {
		return 0, nil
	}
	now := common.NowEpochMs()

	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin mark-emailed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE job_details
		SET emailed_ts_ms = ?, digest_id = ?
		WHERE url = ? AND emailed_ts_ms IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare mark-emailed: %w", err)
	}
	defer stmt.Close()

	var marked int64
	for _, u := range urls {
		res, err := stmt.ExecContext(ctx, now, digestID, u)
		if err != nil {
			return 0, fmt.Errorf("failed to mark %s emailed: %w", u, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		marked += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit mark-emailed: %w", err)
	}
	return marked, nil
}

// Get returns the detail row for (site, url), or nil when absent.
func (s *DetailStorage) Get(ctx context.Context, site, url string) (*models.JobDetail, error) {
	row := s.db.db.QueryRowContext(ctx, `
		SELECT id, site, url, COALESCE(job_title, ''), min_years, include_job,
		       COALESCE(exclude_reason, ''), COALESCE(raw_json, ''),
		       created_ts_ms, updated_ts_ms, COALESCE(emailed_ts_ms, 0), COALESCE(digest_id, '')
		FROM job_details
		WHERE site = ? AND url = ?`, site, url)

	var (
		d       models.JobDetail
		include int
	)
	err := row.Scan(&d.ID, &d.Site, &d.URL, &d.JobTitle, &d.MinYears, &include,
		&d.ExcludeReason, &d.RawJSON, &d.CreatedTsMs, &d.UpdatedTsMs, &d.EmailedTsMs, &d.DigestID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job detail for %s: %w", url, err)
	}
	d.IncludeJob = include != 0
	return &d, nil
}
