package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobwatch/internal/common"
	"github.com/ternarybob/jobwatch/internal/models"
)

func setupTestDB(t *testing.T) *SQLiteDB {
	t.Helper()

	config := &common.StoreConfig{
		Path:          filepath.Join(t.TempDir(), "state.sqlite3"),
		BusyTimeoutMS: 30000,
		WALMode:       false,
	}

	logger := arbor.NewLogger()
	db, err := NewSQLiteDB(logger, config)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestMigrationsIdempotent(t *testing.T) {
	db := setupTestDB(t)

	// Running migrate again must be a no-op, including the column backfill
	require.NoError(t, db.migrate())
	require.NoError(t, db.migrate())
}

func TestSnapshotUpsertAppendsHistoryAndReplacesCurrent(t *testing.T) {
	db := setupTestDB(t)
	logger := arbor.NewLogger()
	snaps := NewSnapshotStorage(db, logger)
	ctx := context.Background()

	links, err := snaps.GetCurrentLinks(ctx, "ACME")
	require.NoError(t, err)
	assert.Nil(t, links)

	first := models.Snapshot{
		Site: "ACME", URL: "https://acme.test/jobs", TsMs: 1000,
		SnapshotHash: "h1", Links: []string{"p1", "p2"},
	}
	require.NoError(t, snaps.Upsert(ctx, first))

	second := first
	second.TsMs = 2000
	second.SnapshotHash = "h2"
	second.Links = []string{"p1", "p2", "p4"}
	require.NoError(t, snaps.Upsert(ctx, second))

	count, err := snaps.HistoryCount(ctx, "ACME")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	cur, err := snaps.GetCurrent(ctx, "ACME")
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, int64(2000), cur.TsMs)
	assert.Equal(t, "h2", cur.SnapshotHash)
	assert.Equal(t, []string{"p1", "p2", "p4"}, cur.Links)
}

func TestSnapshotZeroLinksOverwritesCurrent(t *testing.T) {
	db := setupTestDB(t)
	snaps := NewSnapshotStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, snaps.Upsert(ctx, models.Snapshot{
		Site: "ACME", URL: "u", TsMs: 1, SnapshotHash: "h1", Links: []string{"p1"},
	}))
	require.NoError(t, snaps.Upsert(ctx, models.Snapshot{
		Site: "ACME", URL: "u", TsMs: 2, SnapshotHash: "h0", Links: nil,
	}))

	links, err := snaps.GetCurrentLinks(ctx, "ACME")
	require.NoError(t, err)
	assert.Empty(t, links)
	assert.NotNil(t, links) // empty list, not "never snapshotted"
}

func TestDiffEnqueueIdempotence(t *testing.T) {
	db := setupTestDB(t)
	diffs := NewDiffQueue(db, arbor.NewLogger())
	ctx := context.Background()

	created, err := diffs.Enqueue(ctx, "ACME", "hash-1", []string{"p4"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = diffs.Enqueue(ctx, "ACME", "hash-1", []string{"p4"})
	require.NoError(t, err)
	assert.False(t, created)

	count, err := diffs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Same hash under another site is a distinct diff
	created, err = diffs.Enqueue(ctx, "Other", "hash-1", []string{"p4"})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestDiffClaimLifecycle(t *testing.T) {
	db := setupTestDB(t)
	diffs := NewDiffQueue(db, arbor.NewLogger())
	ctx := context.Background()

	_, err := diffs.Enqueue(ctx, "ACME", "h1", []string{"p4", "p5"})
	require.NoError(t, err)

	rec, err := diffs.Claim(ctx, "host:1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "ACME", rec.Site)
	assert.Equal(t, []string{"p4", "p5"}, rec.AddedURLs)

	// Nothing else is pending
	rec2, err := diffs.Claim(ctx, "host:2")
	require.NoError(t, err)
	assert.Nil(t, rec2)

	require.NoError(t, diffs.MarkDone(ctx, rec.ID))

	rec3, err := diffs.Claim(ctx, "host:1")
	require.NoError(t, err)
	assert.Nil(t, rec3)
}

func TestDiffFailureReturnsToPendingWithBackoff(t *testing.T) {
	db := setupTestDB(t)
	diffs := NewDiffQueue(db, arbor.NewLogger())
	ctx := context.Background()

	_, err := diffs.Enqueue(ctx, "ACME", "h1", []string{"p4"})
	require.NoError(t, err)

	rec, err := diffs.Claim(ctx, "host:1")
	require.NoError(t, err)
	require.NotNil(t, rec)

	// Long backoff keeps the row out of the claim pool
	require.NoError(t, diffs.MarkFailed(ctx, rec.ID, "boom", 60_000))
	rec2, err := diffs.Claim(ctx, "host:1")
	require.NoError(t, err)
	assert.Nil(t, rec2)

	// Elapsed backoff makes it claimable again, carrying the recorded error
	require.NoError(t, diffs.MarkFailed(ctx, rec.ID, "boom", -1))
	rec3, err := diffs.Claim(ctx, "host:1")
	require.NoError(t, err)
	require.NotNil(t, rec3)
	assert.Equal(t, "boom", rec3.LastError)
	assert.Equal(t, 1, rec3.Attempts) // pre-claim contents of the second claim
}

func TestDiffReapClaimRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	diffs := NewDiffQueue(db, arbor.NewLogger())
	ctx := context.Background()

	_, err := diffs.Enqueue(ctx, "ACME", "h1", []string{"p4"})
	require.NoError(t, err)

	rec, err := diffs.Claim(ctx, "host:1")
	require.NoError(t, err)
	require.NotNil(t, rec)

	// A fresh claim is not stale yet
	reaped, err := diffs.ReapStuck(ctx, 10*60*1000)
	require.NoError(t, err)
	assert.Zero(t, reaped)

	// With a zero threshold the claim is immediately stale
	reaped, err = diffs.ReapStuck(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reaped)

	again, err := diffs.Claim(ctx, "host:2")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, rec.ID, again.ID)
}

func TestTaskQueueDedupeAndOrdering(t *testing.T) {
	db := setupTestDB(t)
	tasks := NewTaskQueue(db, arbor.NewLogger())
	ctx := context.Background()

	n, err := tasks.AddTasks(ctx, "ACME", []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// p2 arriving from a second diff is deduplicated at the boundary
	n, err = tasks.AddTasks(ctx, "ACME", []string{"p2", "p3"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = tasks.AddTasks(ctx, "ACME", nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	pending, err := tasks.CountByStatus(ctx, models.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 3, pending)

	first, err := tasks.Claim(ctx, "host:1")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "p1", first.URL)
}

func TestTaskFailThenReclaim(t *testing.T) {
	db := setupTestDB(t)
	tasks := NewTaskQueue(db, arbor.NewLogger())
	ctx := context.Background()

	_, err := tasks.AddTasks(ctx, "ACME", []string{"p1"})
	require.NoError(t, err)

	task, err := tasks.Claim(ctx, "host:1")
	require.NoError(t, err)
	require.NotNil(t, task)

	require.NoError(t, tasks.Fail(ctx, "p1", "pipeline_timeout", 60_000))

	// Backoff window still open
	blocked, err := tasks.Claim(ctx, "host:1")
	require.NoError(t, err)
	assert.Nil(t, blocked)

	require.NoError(t, tasks.Fail(ctx, "p1", "pipeline_timeout", -1))
	again, err := tasks.Claim(ctx, "host:1")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, models.StatusFailed, again.Status)
	assert.Equal(t, "pipeline_timeout", again.LastError)
}

func TestTaskCompleteRemovesFromPool(t *testing.T) {
	db := setupTestDB(t)
	tasks := NewTaskQueue(db, arbor.NewLogger())
	ctx := context.Background()

	_, err := tasks.AddTasks(ctx, "ACME", []string{"p1"})
	require.NoError(t, err)

	task, err := tasks.Claim(ctx, "host:1")
	require.NoError(t, err)
	require.NotNil(t, task)
	require.NoError(t, tasks.Complete(ctx, "p1"))

	none, err := tasks.Claim(ctx, "host:1")
	require.NoError(t, err)
	assert.Nil(t, none)

	done, err := tasks.CountByStatus(ctx, models.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, 1, done)
}

func TestTaskReapStuck(t *testing.T) {
	db := setupTestDB(t)
	tasks := NewTaskQueue(db, arbor.NewLogger())
	ctx := context.Background()

	_, err := tasks.AddTasks(ctx, "ACME", []string{"p1"})
	require.NoError(t, err)

	task, err := tasks.Claim(ctx, "host:1")
	require.NoError(t, err)
	require.NotNil(t, task)

	reaped, err := tasks.ReapStuck(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reaped)

	again, err := tasks.Claim(ctx, "host:2")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, task.ID, again.ID)
	assert.Equal(t, 1, again.Attempts) // pre-claim contents: the first claim's increment
}

func TestDetailUpsertPreservesEmailedFields(t *testing.T) {
	db := setupTestDB(t)
	details := NewDetailStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, details.Upsert(ctx, models.JobDetail{
		Site: "ACME", URL: "p1", JobTitle: "Engineer", MinYears: 3,
		IncludeJob: true, RawJSON: `{"min_years":3}`,
	}))

	_, err := details.MarkEmailed(ctx, []string{"p1"}, "digest-1")
	require.NoError(t, err)

	// Re-inference replaces the result fields but keeps the email marking
	require.NoError(t, details.Upsert(ctx, models.JobDetail{
		Site: "ACME", URL: "p1", JobTitle: "Senior Engineer", MinYears: 5,
		IncludeJob: false, ExcludeReason: "min_years_gte_4", RawJSON: `{"min_years":5}`,
	}))

	d, err := details.Get(ctx, "ACME", "p1")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "Senior Engineer", d.JobTitle)
	assert.Equal(t, 5, d.MinYears)
	assert.False(t, d.IncludeJob)
	assert.Equal(t, "min_years_gte_4", d.ExcludeReason)
	assert.NotZero(t, d.EmailedTsMs)
	assert.Equal(t, "digest-1", d.DigestID)
}

func TestEmailSelectionAndMarking(t *testing.T) {
	db := setupTestDB(t)
	details := NewDetailStorage(db, arbor.NewLogger())
	ctx := context.Background()

	for _, d := range []models.JobDetail{
		{Site: "A", URL: "p1", JobTitle: "Junior", MinYears: 0, IncludeJob: true},
		{Site: "A", URL: "p2", JobTitle: "Mid", MinYears: 3, IncludeJob: true},
		{Site: "B", URL: "p3", JobTitle: "Staff", MinYears: 5, IncludeJob: false, ExcludeReason: "min_years_gte_4"},
	} {
		require.NoError(t, details.Upsert(ctx, d))
	}

	ready, err := details.ListReadyForEmail(ctx, 4, 200)
	require.NoError(t, err)
	require.Len(t, ready, 2)
	for _, d := range ready {
		assert.Less(t, d.MinYears, 4)
	}

	marked, err := details.MarkEmailed(ctx, []string{"p1", "p2"}, "digest-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)

	// Selection monotonicity: marked rows never reappear
	ready, err = details.ListReadyForEmail(ctx, 4, 200)
	require.NoError(t, err)
	assert.Empty(t, ready)

	// A racing second digest marks nothing
	marked, err = details.MarkEmailed(ctx, []string{"p1", "p2"}, "digest-2")
	require.NoError(t, err)
	assert.Zero(t, marked)

	d, err := details.Get(ctx, "A", "p1")
	require.NoError(t, err)
	assert.Equal(t, "digest-1", d.DigestID)
}

func TestEmailSelectionLimit(t *testing.T) {
	db := setupTestDB(t)
	details := NewDetailStorage(db, arbor.NewLogger())
	ctx := context.Background()

	for _, url := range []string{"p1", "p2", "p3"} {
		require.NoError(t, details.Upsert(ctx, models.JobDetail{
			Site: "A", URL: url, MinYears: 1, IncludeJob: true,
		}))
	}

	ready, err := details.ListReadyForEmail(ctx, 4, 2)
	require.NoError(t, err)
	assert.Len(t, ready, 2)
}
