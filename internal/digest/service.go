package digest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobwatch/internal/common"
	"github.com/ternarybob/jobwatch/internal/models"
	"github.com/ternarybob/jobwatch/internal/storage/sqlite"
)

// Options tune a digest run.
type Options struct {
	ThresholdYears int
	Limit          int
	AuditCSV       string
	DisplayZone    string
}

// RunResult summarizes one digest run.
type RunResult struct {
	DigestID string `json:"digest_id"`
	Selected int    `json:"selected"`
	Sent     bool   `json:"sent"`
	Marked   int64  `json:"marked"`
}

// Service selects never-emailed matching jobs, appends them to the audit CSV,
// sends one digest email and marks the rows emailed. Safe to run on a
// schedule: an empty selection sends nothing, and the guarded mark means a
// racing run cannot email the same row twice.
type Service struct {
	details *sqlite.DetailStorage
	sender  Sender
	opts    Options
	logger  arbor.ILogger
}

// NewService creates a digest service.
func NewService(details *sqlite.DetailStorage, sender Sender, opts Options, logger arbor.ILogger) *Service {
	return &Service{details: details, sender: sender, opts: opts, logger: logger}
}

// Run performs one digest pass.
func (s *Service) Run(ctx context.Context) (RunResult, error) {
	digestID := common.NewDigestID(common.Owner())
	result := RunResult{DigestID: digestID}

	jobs, err := s.details.ListReadyForEmail(ctx, s.opts.ThresholdYears, s.opts.Limit)
	if err != nil {
		return result, err
	}
	if len(jobs) == 0 {
		s.logger.Info().Msg("no jobs ready")
		return result, nil
	}

	// Safety filter on top of the query, in case a row slipped through with
	// a stale min_years.
	filtered := make([]models.JobDetail, 0, len(jobs))
	for _, j := range jobs {
		if j.MinYears < s.opts.ThresholdYears {
			filtered = append(filtered, j)
		}
	}
	jobs = filtered
	result.Selected = len(jobs)
	if len(jobs) == 0 {
		s.logger.Info().Msg("no jobs ready after filter")
		return result, nil
	}

	textBody := FormatPlaintext(jobs)
	htmlBody, err := FormatHTML(jobs)
	if err != nil {
		return result, err
	}
	subject := fmt.Sprintf("Job alerts (%d new)", len(jobs))

	// Audit rows are appended before the send so the attached CSV includes
	// this digest's jobs. An audit failure is logged but never blocks the
	// email.
	loc, err := time.LoadLocation(s.opts.DisplayZone)
	if err != nil {
		s.logger.Warn().Err(err).Str("zone", s.opts.DisplayZone).Msg("falling back to UTC for audit timestamps")
		loc = time.UTC
	}
	if err := AppendAudit(s.opts.AuditCSV, jobs, time.Now(), loc); err != nil {
		s.logger.Error().Err(err).Str("path", s.opts.AuditCSV).Msg("failed to append audit CSV")
	}

	msg := Message{
		Subject:  subject,
		TextBody: textBody,
		HTMLBody: htmlBody,
	}
	if data, err := os.ReadFile(s.opts.AuditCSV); err == nil {
		msg.AttachmentName = filepath.Base(s.opts.AuditCSV)
		msg.AttachmentCSV = data
	}

	if err := s.sender.Send(ctx, msg); err != nil {
		return result, fmt.Errorf("failed to send digest: %w", err)
	}
	result.Sent = true

	urls := make([]string, len(jobs))
	for i, j := range jobs {
		urls[i] = j.URL
	}
	marked, err := s.details.MarkEmailed(ctx, urls, digestID)
	if err != nil {
		return result, err
	}
	result.Marked = marked

	s.logger.Info().
		Int64("count", marked).
		Str("digest_id", digestID).
		Msg("email sent")

	return result, nil
}
