package digest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ternarybob/jobwatch/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var htmlRenderer = goldmark.New(goldmark.WithExtensions(extension.Table))

// FormatMarkdown renders the digest as a markdown table, one row per job in
// the order given (callers pass most recent first).
func FormatMarkdown(jobs []models.JobDetail) string {
	var b strings.Builder
	b.WriteString("# Job alerts\n\n")
	fmt.Fprintf(&b, "Total new jobs: %d\n\n", len(jobs))
	b.WriteString("| Company | Job title | URL | Min years |\n")
	b.WriteString("|---|---|---|---|\n")

	for _, j := range jobs {
		site := orDefault(j.Site, "Unknown")
		title := orDefault(j.JobTitle, "Untitled")
		link := "Link"
		if url := strings.TrimSpace(j.URL); url != "" {
			link = fmt.Sprintf("[Link](%s)", url)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %d |\n", site, title, link, j.MinYears)
	}

	return strings.TrimSpace(b.String()) + "\n"
}

// FormatPlaintext renders the digest for the text/plain alternative.
func FormatPlaintext(jobs []models.JobDetail) string {
	var b strings.Builder
	b.WriteString("Job alerts\n\n")
	fmt.Fprintf(&b, "Total new jobs: %d\n\n", len(jobs))

	for _, j := range jobs {
		site := orDefault(j.Site, "Unknown")
		title := orDefault(j.JobTitle, "Untitled")
		fmt.Fprintf(&b, "- %s | %s | min years: %d\n", site, title, j.MinYears)
		if url := strings.TrimSpace(j.URL); url != "" {
			fmt.Fprintf(&b, "  %s\n", url)
		}
	}

	return strings.TrimSpace(b.String()) + "\n"
}

// FormatHTML renders the digest for the text/html alternative by converting
// the markdown form.
func FormatHTML(jobs []models.JobDetail) (string, error) {
	var out bytes.Buffer
	if err := htmlRenderer.Convert([]byte(FormatMarkdown(jobs)), &out); err != nil {
		return "", fmt.Errorf("failed to render digest HTML: %w", err)
	}
	return "<html><body>" + out.String() + "</body></html>", nil
}

func orDefault(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	return s
}
