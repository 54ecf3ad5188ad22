package infer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobwatch/internal/common"
	"github.com/ternarybob/jobwatch/internal/expand"
	"github.com/ternarybob/jobwatch/internal/models"
	"github.com/ternarybob/jobwatch/internal/storage/sqlite"
)

// fakeEngine serves canned extraction results keyed by URL.
type fakeEngine struct {
	results map[string]models.ExtractionResult
	fails   map[string]error
	calls   []string
}

func (f *fakeEngine) Extract(_ context.Context, url string) (models.ExtractionResult, error) {
	f.calls = append(f.calls, url)
	if err, ok := f.fails[url]; ok {
		return models.ExtractionResult{}, err
	}
	return f.results[url], nil
}

type fixture struct {
	diffs   *sqlite.DiffQueue
	tasks   *sqlite.TaskQueue
	details *sqlite.DetailStorage
	engine  *fakeEngine
	worker  *Worker
}

func setupWorker(t *testing.T, engine *fakeEngine) *fixture {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := sqlite.NewSQLiteDB(logger, &common.StoreConfig{
		Path:          filepath.Join(t.TempDir(), "state.sqlite3"),
		BusyTimeoutMS: 30000,
		WALMode:       false,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	diffs := sqlite.NewDiffQueue(db, logger)
	tasks := sqlite.NewTaskQueue(db, logger)
	details := sqlite.NewDetailStorage(db, logger)
	expander := expand.NewExpander(diffs, tasks, 30_000, logger)

	worker := NewWorker(diffs, tasks, details, expander, engine, Options{
		Owner:          "test-worker:1",
		PollSleep:      time.Millisecond,
		StaleAfter:     10 * time.Minute,
		BackoffMs:      30_000,
		ThresholdYears: 4,
	}, logger)

	return &fixture{diffs: diffs, tasks: tasks, details: details, engine: engine, worker: worker}
}

func TestRunOnceIdleOnEmptyQueues(t *testing.T) {
	fx := setupWorker(t, &fakeEngine{})

	outcome, err := fx.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeIdle, outcome)
	assert.Empty(t, fx.engine.calls)
}

func TestRunOnceExpandsDiffAndProcessesTask(t *testing.T) {
	url := "https://acme.test/jobs/1"
	fx := setupWorker(t, &fakeEngine{results: map[string]models.ExtractionResult{
		url: {JobTitle: "Backend Engineer", MinYears: 2, RawJSON: `{"min_years":2}`},
	}})
	ctx := context.Background()

	_, err := fx.diffs.Enqueue(ctx, "ACME", "hash-1", []string{url})
	require.NoError(t, err)

	// Same pass expands the diff and processes the resulting task
	outcome, err := fx.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	detail, err := fx.details.Get(ctx, "ACME", url)
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, "Backend Engineer", detail.JobTitle)
	assert.Equal(t, 2, detail.MinYears)
	assert.True(t, detail.IncludeJob)
	assert.Empty(t, detail.ExcludeReason)

	done, err := fx.tasks.CountByStatus(ctx, models.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, 1, done)
}

func TestRunOnceExcludesSeniorRoles(t *testing.T) {
	url := "https://acme.test/jobs/staff"
	fx := setupWorker(t, &fakeEngine{results: map[string]models.ExtractionResult{
		url: {JobTitle: "Staff Engineer", MinYears: 8},
	}})
	ctx := context.Background()

	_, err := fx.tasks.AddTasks(ctx, "ACME", []string{url})
	require.NoError(t, err)

	outcome, err := fx.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	detail, err := fx.details.Get(ctx, "ACME", url)
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.False(t, detail.IncludeJob)
	assert.Equal(t, "min_years_gte_4", detail.ExcludeReason)
}

func TestRunOnceThresholdBoundary(t *testing.T) {
	url := "https://acme.test/jobs/mid"
	fx := setupWorker(t, &fakeEngine{results: map[string]models.ExtractionResult{
		url: {JobTitle: "Engineer III", MinYears: 4},
	}})
	ctx := context.Background()

	_, err := fx.tasks.AddTasks(ctx, "ACME", []string{url})
	require.NoError(t, err)

	_, err = fx.worker.RunOnce(ctx)
	require.NoError(t, err)

	// Exactly the threshold is excluded: the comparison is strict
	detail, err := fx.details.Get(ctx, "ACME", url)
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.False(t, detail.IncludeJob)
}

func TestRunOnceSkipsInvalidURLWithoutExtraction(t *testing.T) {
	url := "https://errors.edgesuite.net/err"
	fx := setupWorker(t, &fakeEngine{})
	ctx := context.Background()

	_, err := fx.tasks.AddTasks(ctx, "ACME", []string{url})
	require.NoError(t, err)

	outcome, err := fx.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Empty(t, fx.engine.calls)

	done, err := fx.tasks.CountByStatus(ctx, models.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	detail, err := fx.details.Get(ctx, "ACME", url)
	require.NoError(t, err)
	assert.Nil(t, detail)
}

func TestRunOnceFailureSetsBackoff(t *testing.T) {
	url := "https://acme.test/jobs/broken"
	fx := setupWorker(t, &fakeEngine{fails: map[string]error{
		url: errors.New("pipeline_timeout after 2m0s"),
	}})
	ctx := context.Background()

	_, err := fx.tasks.AddTasks(ctx, "ACME", []string{url})
	require.NoError(t, err)

	outcome, err := fx.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	failed, err := fx.tasks.CountByStatus(ctx, models.StatusFailed)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	// Backoff window still open: the next pass finds nothing claimable
	outcome, err = fx.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIdle, outcome)
}

func TestRunStopsAfterMaxJobs(t *testing.T) {
	urls := []string{"https://acme.test/jobs/1", "https://acme.test/jobs/2", "https://acme.test/jobs/3"}
	engine := &fakeEngine{results: map[string]models.ExtractionResult{}}
	for _, u := range urls {
		engine.results[u] = models.ExtractionResult{JobTitle: "Engineer", MinYears: 1}
	}
	fx := setupWorker(t, engine)
	fx.worker.opts.MaxJobs = 2
	ctx := context.Background()

	_, err := fx.tasks.AddTasks(ctx, "ACME", urls)
	require.NoError(t, err)

	require.NoError(t, fx.worker.Run(ctx))

	done, err := fx.tasks.CountByStatus(ctx, models.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, 2, done)

	pending, err := fx.tasks.CountByStatus(ctx, models.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	fx := setupWorker(t, &fakeEngine{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := fx.worker.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
