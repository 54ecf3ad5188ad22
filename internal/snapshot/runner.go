package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobwatch/internal/common"
	"github.com/ternarybob/jobwatch/internal/diffing"
	"github.com/ternarybob/jobwatch/internal/linkfetch"
	"github.com/ternarybob/jobwatch/internal/models"
	"github.com/ternarybob/jobwatch/internal/storage/sqlite"
)

// CompanyResult records the outcome of one target within a batch run.
type CompanyResult struct {
	Company       string `json:"company"`
	URL           string `json:"url"`
	OK            bool   `json:"ok"`
	Error         string `json:"error,omitempty"`
	OldLinkCount  int    `json:"old_link_count"`
	NewLinkCount  int    `json:"new_link_count"`
	AddedURLCount int    `json:"added_url_count"`
	DiffEnqueued  bool   `json:"diff_enqueued"`
}

// BatchReport summarizes a full snapshot run across every target.
type BatchReport struct {
	RunID             string          `json:"run_id"`
	CompanyCountTotal int             `json:"company_count_total"`
	CompanyOKCount    int             `json:"company_ok_count"`
	CompanyFailCount  int             `json:"company_fail_count"`
	StartedTsMs       int64           `json:"started_ts_ms"`
	EndedTsMs         int64           `json:"ended_ts_ms"`
	DurationMs        int64           `json:"duration_ms"`
	Results           []CompanyResult `json:"results"`
}

// Runner snapshots careers pages and enqueues diffs for new links. Fetches run
// in parallel up to MaxWorkers; database reads and the enqueue-then-upsert
// commit are serialized so two targets never interleave their writes.
type Runner struct {
	fetcher     linkfetch.Fetcher
	snapshots   *sqlite.SnapshotStorage
	diffs       *sqlite.DiffQueue
	maxWorkers  int
	stopOnError bool
	logger      arbor.ILogger

	dbMu sync.Mutex
}

// NewRunner creates a snapshot runner. maxWorkers below 1 means serial.
func NewRunner(fetcher linkfetch.Fetcher, snapshots *sqlite.SnapshotStorage, diffs *sqlite.DiffQueue, maxWorkers int, stopOnError bool, logger arbor.ILogger) *Runner {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Runner{
		fetcher:     fetcher,
		snapshots:   snapshots,
		diffs:       diffs,
		maxWorkers:  maxWorkers,
		stopOnError: stopOnError,
		logger:      logger,
	}
}

// RunBatch processes every target and returns the per-company report. A
// failing target never aborts its siblings unless stop-on-error is set, in
// which case pending targets are cancelled.
func (r *Runner) RunBatch(ctx context.Context, targets []models.Target) BatchReport {
	started := common.NowEpochMs()
	batchStart := time.Now()
	runID := common.NewRunID()

	r.logger.Info().
		Str("run_id", runID).
		Int("targets", len(targets)).
		Int("max_workers", r.maxWorkers).
		Bool("stop_on_error", r.stopOnError).
		Msg("batch start")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg        sync.WaitGroup
		resultsMu sync.Mutex
	)
	sem := make(chan struct{}, r.maxWorkers)
	results := make([]CompanyResult, 0, len(targets))

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

			res := r.runOne(runCtx, t)

			resultsMu.Lock()
			results = append(results, res)
			resultsMu.Unlock()

			if !res.OK && r.stopOnError {
				r.logger.Error().Str("company", t.Company).Msg("stop on error, cancelling pending targets")
				cancel()
			}
		}(target)
	}
	wg.Wait()

	ended := common.NowEpochMs()
	report := BatchReport{
		RunID:             runID,
		CompanyCountTotal: len(targets),
		StartedTsMs:       started,
		EndedTsMs:         ended,
		DurationMs:        ended - started,
		Results:           results,
	}
	for _, res := range results {
		if res.OK {
			report.CompanyOKCount++
		} else {
			report.CompanyFailCount++
		}
	}

	r.logger.Info().
		Str("run_id", runID).
		Int("total", report.CompanyCountTotal).
		Int("ok", report.CompanyOKCount).
		Int("fail", report.CompanyFailCount).
		Int64("wall_ms", time.Since(batchStart).Milliseconds()).
		Msg("batch done")

	return report
}

// runOne snapshots a single target: read the previous links, fetch the page,
// diff, enqueue when links were added, then commit the new snapshot. The
// enqueue and the snapshot upsert happen under the runner lock so the diff is
// always enqueued before the snapshot that supersedes it becomes current.
func (r *Runner) runOne(ctx context.Context, t models.Target) CompanyResult {
	start := time.Now()
	r.logger.Info().Str("company", t.Company).Str("url", t.URL).Msg("company start")

	r.dbMu.Lock()
	oldLinks, err := r.snapshots.GetCurrentLinks(ctx, t.Company)
	r.dbMu.Unlock()
	if err != nil {
		return r.failed(t, err)
	}

	fetched, err := r.fetcher.FetchLinks(ctx, t.URL)
	if err != nil {
		return r.failed(t, err)
	}
	newLinks := diffing.DedupePreserveOrder(fetched.Links)

	added, removed := diffing.DiffLinks(oldLinks, newLinks)
	payload := diffing.BuildPayload(t.Company, added)

	r.dbMu.Lock()
	diffEnqueued, err := r.commit(ctx, t, newLinks, payload)
	r.dbMu.Unlock()
	if err != nil {
		return r.failed(t, err)
	}

	r.logger.Info().
		Str("company", t.Company).
		Bool("ok", true).
		Int64("total_ms", time.Since(start).Milliseconds()).
		Int64("node_ms", fetched.DurationMs).
		Int("old", len(oldLinks)).
		Int("new", len(newLinks)).
		Int("added", len(payload.AddedURLs)).
		Int("removed", len(removed)).
		Bool("diff_enqueued", diffEnqueued).
		Msg("company done")

	return CompanyResult{
		Company:       t.Company,
		URL:           t.URL,
		OK:            true,
		OldLinkCount:  len(oldLinks),
		NewLinkCount:  len(newLinks),
		AddedURLCount: len(payload.AddedURLs),
		DiffEnqueued:  diffEnqueued,
	}
}

func (r *Runner) commit(ctx context.Context, t models.Target, newLinks []string, payload diffing.Payload) (bool, error) {
	diffEnqueued := false
	if len(payload.AddedURLs) > 0 {
		created, err := r.diffs.Enqueue(ctx, t.Company, payload.DiffHash, payload.AddedURLs)
		if err != nil {
			return false, err
		}
		diffEnqueued = created
	}

	err := r.snapshots.Upsert(ctx, models.Snapshot{
		Site:         t.Company,
		URL:          t.URL,
		TsMs:         common.NowEpochMs(),
		SnapshotHash: diffing.SnapshotHash(newLinks),
		Links:        newLinks,
	})
	if err != nil {
		return false, err
	}
	return diffEnqueued, nil
}

func (r *Runner) failed(t models.Target, err error) CompanyResult {
	r.logger.Error().Err(err).Str("company", t.Company).Str("url", t.URL).Msg("company failed")
	return CompanyResult{Company: t.Company, URL: t.URL, OK: false, Error: err.Error()}
}
