package digest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/jobwatch/internal/models"
)

var sampleJobs = []models.JobDetail{
	{Site: "ACME", URL: "https://acme.test/jobs/1", JobTitle: "Backend Engineer", MinYears: 2},
	{Site: "Globex", URL: "https://globex.test/jobs/9", JobTitle: "SRE", MinYears: 0},
}

func TestFormatMarkdown(t *testing.T) {
	got := FormatMarkdown(sampleJobs)

	assert.True(t, strings.HasPrefix(got, "# Job alerts\n"))
	assert.Contains(t, got, "Total new jobs: 2")
	assert.Contains(t, got, "| Company | Job title | URL | Min years |")
	assert.Contains(t, got, "| ACME | Backend Engineer | [Link](https://acme.test/jobs/1) | 2 |")
	assert.Contains(t, got, "| Globex | SRE | [Link](https://globex.test/jobs/9) | 0 |")
}

func TestFormatMarkdownFallbacks(t *testing.T) {
	got := FormatMarkdown([]models.JobDetail{{Site: "  ", JobTitle: "", URL: "", MinYears: 1}})
	assert.Contains(t, got, "| Unknown | Untitled | Link | 1 |")
}

func TestFormatPlaintext(t *testing.T) {
	got := FormatPlaintext(sampleJobs)

	assert.True(t, strings.HasPrefix(got, "Job alerts\n"))
	assert.Contains(t, got, "Total new jobs: 2")
	assert.Contains(t, got, "- ACME | Backend Engineer | min years: 2")
	assert.Contains(t, got, "  https://acme.test/jobs/1")
}

func TestFormatHTML(t *testing.T) {
	got, err := FormatHTML(sampleJobs)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(got, "<html><body>"))
	assert.True(t, strings.HasSuffix(got, "</body></html>"))
	assert.Contains(t, got, "<table>")
	assert.Contains(t, got, `<a href="https://acme.test/jobs/1">Link</a>`)
	assert.Contains(t, got, "Backend Engineer")
}

func TestFormatHTMLEscapesContent(t *testing.T) {
	got, err := FormatHTML([]models.JobDetail{
		{Site: "Evil <script>", JobTitle: "1 & 2", URL: "https://x.test/a", MinYears: 1},
	})
	require.NoError(t, err)

	assert.NotContains(t, got, "<script>")
	assert.Contains(t, got, "&lt;script&gt;")
	assert.Contains(t, got, "1 &amp; 2")
}
