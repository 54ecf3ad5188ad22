package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobwatch/internal/models"
)

// SnapshotStorage persists link snapshots: the append-only history and the
// per-site current row.
type SnapshotStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewSnapshotStorage creates a new snapshot storage instance
func NewSnapshotStorage(db *SQLiteDB, logger arbor.ILogger) *SnapshotStorage {
	return &SnapshotStorage{db: db, logger: logger}
}

// GetCurrentLinks returns the current snapshot's link list for a site, or nil
// when the site has never been snapshotted.
func (s *SnapshotStorage) GetCurrentLinks(ctx context.Context, site string) ([]string, error) {
	var linksJSON string
	err := s.db.db.QueryRowContext(ctx,
		"SELECT links_json FROM current_snapshot WHERE site = ?", site).Scan(&linksJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read current snapshot for %s: %w", site, err)
	}

	var links []string
	if err := json.Unmarshal([]byte(linksJSON), &links); err != nil {
		return nil, fmt.Errorf("corrupt links_json for %s: %w", site, err)
	}
	return links, nil
}

// GetCurrent returns the full current snapshot row for a site, or nil.
func (s *SnapshotStorage) GetCurrent(ctx context.Context, site string) (*models.Snapshot, error) {
	row := s.db.db.QueryRowContext(ctx,
		"SELECT site, url, ts_ms, snapshot_hash, links_json FROM current_snapshot WHERE site = ?", site)

	var (
		snap      models.Snapshot
		linksJSON string
	)
	err := row.Scan(&snap.Site, &snap.URL, &snap.TsMs, &snap.SnapshotHash, &linksJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read current snapshot for %s: %w", site, err)
	}
	if err := json.Unmarshal([]byte(linksJSON), &snap.Links); err != nil {
		return nil, fmt.Errorf("corrupt links_json for %s: %w", site, err)
	}
	return &snap, nil
}

// Upsert commits one snapshot in a single transaction: always appends to the
// history table, then replaces the current row for the site. Rollback on any
// failure leaves the prior state intact.
func (s *SnapshotStorage) Upsert(ctx context.Context, snap models.Snapshot) error {
	links := snap.Links
	if links == nil {
		links = []string{}
	}
	linksJSON, err := json.Marshal(links)
	if err != nil {
		return fmt.Errorf("failed to serialize links: %w", err)
	}

	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots(site, url, ts_ms, snapshot_hash, links_json)
		VALUES(?, ?, ?, ?, ?)`,
		snap.Site, snap.URL, snap.TsMs, snap.SnapshotHash, string(linksJSON))
	if err != nil {
		return fmt.Errorf("failed to append snapshot history: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO current_snapshot(site, url, ts_ms, snapshot_hash, links_json)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(site) DO UPDATE SET
			url=excluded.url,
			ts_ms=excluded.ts_ms,
			snapshot_hash=excluded.snapshot_hash,
			links_json=excluded.links_json`,
		snap.Site, snap.URL, snap.TsMs, snap.SnapshotHash, string(linksJSON))
	if err != nil {
		return fmt.Errorf("failed to upsert current snapshot: %w", err)
	}

	return tx.Commit()
}

// HistoryCount returns the number of history rows for a site (all sites when
// site is empty).
func (s *SnapshotStorage) HistoryCount(ctx context.Context, site string) (int, error) {
	var (
		count int
		err   error
	)
	if site == "" {
		err = s.db.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots").Scan(&count)
	} else {
		err = s.db.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots WHERE site = ?", site).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

// ClearCurrent deletes every current-snapshot row. Administrative tooling for
// re-seeding only; history is never touched.
func (s *SnapshotStorage) ClearCurrent(ctx context.Context) (int64, error) {
	res, err := s.db.db.ExecContext(ctx, "DELETE FROM current_snapshot")
	if err != nil {
		return 0, fmt.Errorf("failed to clear current snapshots: %w", err)
	}
	return res.RowsAffected()
}
