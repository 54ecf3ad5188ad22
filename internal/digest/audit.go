package digest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ternarybob/jobwatch/internal/models"
)

var auditHeader = []string{"emailed_date", "emailed_time", "site", "url", "job_title", "min_years"}

// AppendAudit appends one row per job to the audit CSV, creating the file and
// header when needed. Timestamps are rendered in loc with separate date and
// 12-hour time columns. The append happens before the digest is sent so the
// attached CSV always includes the jobs it announces.
func AppendAudit(csvPath string, jobs []models.JobDetail, now time.Time, loc *time.Location) error {
	if loc != nil {
		now = now.In(loc)
	}
	emailedDate := now.Format("2006-01-02")
	emailedTime := now.Format("3:04:05 PM")

	if dir := filepath.Dir(csvPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create audit directory: %w", err)
		}
	}

	writeHeader := true
	if info, err := os.Stat(csvPath); err == nil && info.Size() > 0 {
		writeHeader = false
	}

	f, err := os.OpenFile(csvPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit CSV %s: %w", csvPath, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(auditHeader); err != nil {
			return fmt.Errorf("failed to write audit header: %w", err)
		}
	}
	for _, j := range jobs {
		row := []string{emailedDate, emailedTime, j.Site, j.URL, j.JobTitle, strconv.Itoa(j.MinYears)}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write audit row for %s: %w", j.URL, err)
		}
	}
	w.Flush()
	return w.Error()
}
