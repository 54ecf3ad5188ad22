package snapshot

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobwatch/internal/common"
	"github.com/ternarybob/jobwatch/internal/diffing"
	"github.com/ternarybob/jobwatch/internal/linkfetch"
	"github.com/ternarybob/jobwatch/internal/models"
	"github.com/ternarybob/jobwatch/internal/storage/sqlite"
)

// SeedResult records the outcome of one target during seeding.
type SeedResult struct {
	Company      string `json:"company"`
	URL          string `json:"url"`
	OK           bool   `json:"ok"`
	Error        string `json:"error,omitempty"`
	LinkCount    int    `json:"link_count"`
	SnapshotHash string `json:"snapshot_hash,omitempty"`
}

// SeedReport summarizes a seeding run.
type SeedReport struct {
	ClearedFirst      bool         `json:"cleared_current_first"`
	CompanyCountTotal int          `json:"company_count_total"`
	CompanyOKCount    int          `json:"company_ok_count"`
	CompanyFailCount  int          `json:"company_fail_count"`
	Results           []SeedResult `json:"results"`
}

// Seeder establishes baseline snapshots without producing diffs. First runs
// against a fresh database go through it so the watcher does not alert on
// every link a page already carries.
type Seeder struct {
	fetcher     linkfetch.Fetcher
	snapshots   *sqlite.SnapshotStorage
	maxWorkers  int
	stopOnError bool
	logger      arbor.ILogger

	dbMu sync.Mutex
}

// NewSeeder creates a snapshot seeder.
func NewSeeder(fetcher linkfetch.Fetcher, snapshots *sqlite.SnapshotStorage, maxWorkers int, stopOnError bool, logger arbor.ILogger) *Seeder {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Seeder{
		fetcher:     fetcher,
		snapshots:   snapshots,
		maxWorkers:  maxWorkers,
		stopOnError: stopOnError,
		logger:      logger,
	}
}

// Run fetches every target and writes full replacement snapshots. When
// clearFirst is set, all current-snapshot rows are deleted before seeding.
func (s *Seeder) Run(ctx context.Context, targets []models.Target, clearFirst bool) (SeedReport, error) {
	if clearFirst {
		deleted, err := s.snapshots.ClearCurrent(ctx)
		if err != nil {
			return SeedReport{}, err
		}
		s.logger.Info().Int64("deleted", deleted).Msg("cleared current snapshots before seeding")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg        sync.WaitGroup
		resultsMu sync.Mutex
	)
	sem := make(chan struct{}, s.maxWorkers)
	results := make([]SeedResult, 0, len(targets))

	for _, target := range targets {
		if runCtx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(t models.Target) {
			defer wg.Done()
			defer func() { <-sem }()

			if runCtx.Err() != nil {
				return
			}

			res := s.seedOne(runCtx, t)

			resultsMu.Lock()
			results = append(results, res)
			resultsMu.Unlock()

			if !res.OK && s.stopOnError {
				s.logger.Error().Str("company", t.Company).Msg("stop on error, cancelling pending targets")
				cancel()
			}
		}(target)
	}
	wg.Wait()

	report := SeedReport{
		ClearedFirst:      clearFirst,
		CompanyCountTotal: len(targets),
		Results:           results,
	}
	for _, res := range results {
		if res.OK {
			report.CompanyOKCount++
		} else {
			report.CompanyFailCount++
		}
	}

	s.logger.Info().
		Int("total", report.CompanyCountTotal).
		Int("ok", report.CompanyOKCount).
		Int("fail", report.CompanyFailCount).
		Msg("seed done")

	return report, nil
}

func (s *Seeder) seedOne(ctx context.Context, t models.Target) SeedResult {
	fetched, err := s.fetcher.FetchLinks(ctx, t.URL)
	if err != nil {
		s.logger.Error().Err(err).Str("company", t.Company).Str("url", t.URL).Msg("seed failed")
		return SeedResult{Company: t.Company, URL: t.URL, OK: false, Error: err.Error()}
	}
	links := diffing.DedupePreserveOrder(fetched.Links)
	hash := diffing.SnapshotHash(links)

	s.dbMu.Lock()
	err = s.snapshots.Upsert(ctx, models.Snapshot{
		Site:         t.Company,
		URL:          t.URL,
		TsMs:         common.NowEpochMs(),
		SnapshotHash: hash,
		Links:        links,
	})
	s.dbMu.Unlock()
	if err != nil {
		s.logger.Error().Err(err).Str("company", t.Company).Msg("seed commit failed")
		return SeedResult{Company: t.Company, URL: t.URL, OK: false, Error: err.Error()}
	}

	s.logger.Info().
		Str("company", t.Company).
		Bool("ok", true).
		Int64("node_ms", fetched.DurationMs).
		Int("link_count", len(links)).
		Str("snapshot_hash", hash).
		Msg("seed done")

	return SeedResult{
		Company:      t.Company,
		URL:          t.URL,
		OK:           true,
		LinkCount:    len(links),
		SnapshotHash: hash,
	}
}
