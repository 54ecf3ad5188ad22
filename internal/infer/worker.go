package infer

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobwatch/internal/common"
	"github.com/ternarybob/jobwatch/internal/expand"
	"github.com/ternarybob/jobwatch/internal/extract"
	"github.com/ternarybob/jobwatch/internal/models"
	"github.com/ternarybob/jobwatch/internal/storage/sqlite"
)

// Outcome describes what a single worker pass accomplished.
type Outcome int

const (
	// OutcomeIdle means no task was claimable.
	OutcomeIdle Outcome = iota
	// OutcomeSkipped means the claimed task carried an invalid URL and was
	// completed without inference.
	OutcomeSkipped
	// OutcomeProcessed means a task ran through extraction and was completed.
	OutcomeProcessed
	// OutcomeFailed means extraction failed and the task was returned to the
	// queue with a backoff window.
	OutcomeFailed
)

// Options tune the worker loop.
type Options struct {
	Owner          string
	PollSleep      time.Duration
	StaleAfter     time.Duration
	BackoffMs      int64
	ThresholdYears int
	// MaxJobs stops the loop after this many successful extractions; zero
	// means run forever.
	MaxJobs int
}

// Worker drains the task queue: each pass reaps stale claims, expands one
// pending diff inline and runs extraction on one claimed task. Multiple
// workers may share one database; the claim updates arbitrate.
type Worker struct {
	diffs    *sqlite.DiffQueue
	tasks    *sqlite.TaskQueue
	details  *sqlite.DetailStorage
	expander *expand.Expander
	engine   extract.Engine
	opts     Options
	logger   arbor.ILogger
}

// NewWorker creates an inference worker.
func NewWorker(diffs *sqlite.DiffQueue, tasks *sqlite.TaskQueue, details *sqlite.DetailStorage,
	expander *expand.Expander, engine extract.Engine, opts Options, logger arbor.ILogger) *Worker {
	if opts.Owner == "" {
		opts.Owner = common.Owner()
	}
	if opts.PollSleep <= 0 {
		opts.PollSleep = 2 * time.Second
	}
	return &Worker{
		diffs:    diffs,
		tasks:    tasks,
		details:  details,
		expander: expander,
		engine:   engine,
		opts:     opts,
		logger:   logger,
	}
}

// Run loops until ctx is cancelled or MaxJobs extractions have completed.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().
		Str("owner", w.opts.Owner).
		Int("max_jobs", w.opts.MaxJobs).
		Msg("inference worker start")

	processed := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		outcome, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("worker pass failed")
		}

		if outcome == OutcomeProcessed {
			processed++
			if w.opts.MaxJobs > 0 && processed >= w.opts.MaxJobs {
				w.logger.Info().Int("count", processed).Msg("max jobs reached")
				return nil
			}
		}

		if outcome == OutcomeIdle {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.opts.PollSleep):
			}
		}
	}
}

// RunOnce performs a single worker pass. The returned error covers storage
// failures only; extraction failures are absorbed into the task's retry state
// and reported as OutcomeFailed.
func (w *Worker) RunOnce(ctx context.Context) (Outcome, error) {
	staleMs := w.opts.StaleAfter.Milliseconds()
	if reaped, err := w.diffs.ReapStuck(ctx, staleMs); err != nil {
		return OutcomeIdle, err
	} else if reaped > 0 {
		w.logger.Warn().Int64("reaped", reaped).Msg("reaped stuck diffs")
	}
	if reaped, err := w.tasks.ReapStuck(ctx, staleMs); err != nil {
		return OutcomeIdle, err
	} else if reaped > 0 {
		w.logger.Warn().Int64("reaped", reaped).Msg("reaped stuck tasks")
	}

	if _, err := w.expander.ExpandOne(ctx, w.opts.Owner); err != nil {
		w.logger.Error().Err(err).Msg("diff expansion failed")
	}

	task, err := w.tasks.Claim(ctx, w.opts.Owner)
	if err != nil {
		return OutcomeIdle, err
	}
	if task == nil {
		return OutcomeIdle, nil
	}

	if common.ShouldSkipURL(task.URL) {
		w.logger.Info().Str("site", task.Site).Str("url", task.URL).Msg("job skipped, invalid url")
		if err := w.tasks.Complete(ctx, task.URL); err != nil {
			return OutcomeIdle, err
		}
		return OutcomeSkipped, nil
	}

	result, err := w.engine.Extract(ctx, task.URL)
	if err != nil {
		w.logger.Error().Err(err).Str("site", task.Site).Str("url", task.URL).Msg("job failed")
		if ferr := w.tasks.Fail(ctx, task.URL, err.Error(), w.opts.BackoffMs); ferr != nil {
			return OutcomeIdle, ferr
		}
		return OutcomeFailed, nil
	}

	includeJob := result.MinYears < w.opts.ThresholdYears
	excludeReason := ""
	if !includeJob {
		excludeReason = fmt.Sprintf("min_years_gte_%d", w.opts.ThresholdYears)
	}

	err = w.details.Upsert(ctx, models.JobDetail{
		Site:          task.Site,
		URL:           task.URL,
		JobTitle:      result.JobTitle,
		MinYears:      result.MinYears,
		IncludeJob:    includeJob,
		ExcludeReason: excludeReason,
		RawJSON:       result.RawJSON,
	})
	if err != nil {
		// Detail write failed: leave the task retryable instead of losing
		// the result on a completed task.
		if ferr := w.tasks.Fail(ctx, task.URL, err.Error(), w.opts.BackoffMs); ferr != nil {
			return OutcomeIdle, ferr
		}
		return OutcomeFailed, err
	}

	if err := w.tasks.Complete(ctx, task.URL); err != nil {
		return OutcomeIdle, err
	}

	title := result.JobTitle
	if len(title) > 80 {
		title = title[:80]
	}
	w.logger.Info().
		Str("site", task.Site).
		Int("min_years", result.MinYears).
		Str("title", title).
		Msg("job done")

	return OutcomeProcessed, nil
}
