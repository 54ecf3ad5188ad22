package digest

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/jobwatch/internal/models"
)

func readAudit(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestAppendAuditCreatesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "emailed_jobs.csv")
	loc, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)

	// 2026-01-02 16:05:06 UTC is 9:05:06 AM in Denver (MST)
	now := time.Date(2026, 1, 2, 16, 5, 6, 0, time.UTC)
	jobs := []models.JobDetail{
		{Site: "ACME", URL: "https://acme.test/jobs/1", JobTitle: "Backend Engineer", MinYears: 2},
	}

	require.NoError(t, AppendAudit(path, jobs, now, loc))
	require.NoError(t, AppendAudit(path, jobs, now, loc))

	rows := readAudit(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"emailed_date", "emailed_time", "site", "url", "job_title", "min_years"}, rows[0])
	assert.Equal(t, []string{"2026-01-02", "9:05:06 AM", "ACME", "https://acme.test/jobs/1", "Backend Engineer", "2"}, rows[1])
	assert.Equal(t, rows[1], rows[2])
}

func TestAppendAuditAfternoonTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.csv")
	loc, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)

	// 2026-07-01 21:15:00 UTC is 3:15:00 PM in Denver (MDT)
	now := time.Date(2026, 7, 1, 21, 15, 0, 0, time.UTC)
	require.NoError(t, AppendAudit(path, []models.JobDetail{{Site: "ACME", URL: "u", MinYears: 0}}, now, loc))

	rows := readAudit(t, path)
	assert.Equal(t, "2026-07-01", rows[1][0])
	assert.Equal(t, "3:15:00 PM", rows[1][1])
}

func TestAppendAuditQuotesCommas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.csv")
	jobs := []models.JobDetail{
		{Site: "ACME, Inc.", URL: "https://acme.test/jobs/1", JobTitle: `Engineer, "Platform"`, MinYears: 3},
	}
	require.NoError(t, AppendAudit(path, jobs, time.Now(), time.UTC))

	rows := readAudit(t, path)
	assert.Equal(t, "ACME, Inc.", rows[1][2])
	assert.Equal(t, `Engineer, "Platform"`, rows[1][4])
}
