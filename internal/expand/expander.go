package expand

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobwatch/internal/common"
	"github.com/ternarybob/jobwatch/internal/storage/sqlite"
)

// Expander turns claimed diffs into per-URL job tasks. Expansion is
// idempotent: tasks insert with ignore-on-duplicate semantics, so a diff that
// crashes mid-expansion can be reclaimed and replayed safely.
type Expander struct {
	diffs     *sqlite.DiffQueue
	tasks     *sqlite.TaskQueue
	backoffMs int64
	logger    arbor.ILogger
}

// NewExpander creates a diff expander. backoffMs delays retries of failed
// expansions.
func NewExpander(diffs *sqlite.DiffQueue, tasks *sqlite.TaskQueue, backoffMs int64, logger arbor.ILogger) *Expander {
	return &Expander{diffs: diffs, tasks: tasks, backoffMs: backoffMs, logger: logger}
}

// ExpandOne claims the oldest pending diff and fans its URLs out into the
// task queue, dropping non-http and blocklisted URLs. Returns the number of
// tasks created, or -1 when no diff was claimable.
func (e *Expander) ExpandOne(ctx context.Context, owner string) (int64, error) {
	rec, err := e.diffs.Claim(ctx, owner)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return -1, nil
	}

	urls := make([]string, 0, len(rec.AddedURLs))
	for _, u := range rec.AddedURLs {
		if u == "" || common.ShouldSkipURL(u) {
			continue
		}
		urls = append(urls, u)
	}

	inserted, err := e.tasks.AddTasks(ctx, rec.Site, urls)
	if err != nil {
		if ferr := e.diffs.MarkFailed(ctx, rec.ID, err.Error(), e.backoffMs); ferr != nil {
			e.logger.Error().Err(ferr).Int64("diff_id", rec.ID).Msg("failed to record diff failure")
		}
		return 0, err
	}

	if err := e.diffs.MarkDone(ctx, rec.ID); err != nil {
		return 0, err
	}

	e.logger.Info().
		Str("site", rec.Site).
		Int64("diff_id", rec.ID).
		Int("urls", len(rec.AddedURLs)).
		Int64("inserted_tasks", inserted).
		Msg("expanded diff")

	return inserted, nil
}
