package expand

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobwatch/internal/common"
	"github.com/ternarybob/jobwatch/internal/models"
	"github.com/ternarybob/jobwatch/internal/storage/sqlite"
)

func setupQueues(t *testing.T) (*sqlite.DiffQueue, *sqlite.TaskQueue) {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := sqlite.NewSQLiteDB(logger, &common.StoreConfig{
		Path:          filepath.Join(t.TempDir(), "state.sqlite3"),
		BusyTimeoutMS: 30000,
		WALMode:       false,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return sqlite.NewDiffQueue(db, logger), sqlite.NewTaskQueue(db, logger)
}

func TestExpandOneCreatesTasksAndCompletesDiff(t *testing.T) {
	diffs, tasks := setupQueues(t)
	ctx := context.Background()

	created, err := diffs.Enqueue(ctx, "ACME", "hash-1", []string{
		"https://acme.test/jobs/1",
		"https://acme.test/jobs/2",
	})
	require.NoError(t, err)
	require.True(t, created)

	e := NewExpander(diffs, tasks, 30_000, arbor.NewLogger())
	inserted, err := e.ExpandOne(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), inserted)

	pending, err := tasks.CountByStatus(ctx, models.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	// Diff is DONE: nothing further to claim
	rec, err := diffs.Claim(ctx, "worker-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestExpandOneFiltersInvalidAndBlockedURLs(t *testing.T) {
	diffs, tasks := setupQueues(t)
	ctx := context.Background()

	_, err := diffs.Enqueue(ctx, "ACME", "hash-1", []string{
		"https://acme.test/jobs/1",
		"ftp://acme.test/jobs/2",
		"not a url",
		"https://errors.edgesuite.net/oops",
		"",
	})
	require.NoError(t, err)

	e := NewExpander(diffs, tasks, 30_000, arbor.NewLogger())
	inserted, err := e.ExpandOne(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)

	pending, err := tasks.CountByStatus(ctx, models.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestExpandOneEmptyQueue(t *testing.T) {
	diffs, tasks := setupQueues(t)

	e := NewExpander(diffs, tasks, 30_000, arbor.NewLogger())
	inserted, err := e.ExpandOne(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), inserted)
}

func TestExpandOneDeduplicatesAcrossDiffs(t *testing.T) {
	diffs, tasks := setupQueues(t)
	ctx := context.Background()

	_, err := diffs.Enqueue(ctx, "ACME", "hash-1", []string{"https://acme.test/jobs/1"})
	require.NoError(t, err)
	_, err = diffs.Enqueue(ctx, "ACME", "hash-2", []string{"https://acme.test/jobs/1", "https://acme.test/jobs/2"})
	require.NoError(t, err)

	e := NewExpander(diffs, tasks, 30_000, arbor.NewLogger())

	inserted, err := e.ExpandOne(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)

	// Second diff re-lists an already-tasked URL; only the new one inserts
	inserted, err = e.ExpandOne(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)

	pending, err := tasks.CountByStatus(ctx, models.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)
}
