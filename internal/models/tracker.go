package models

// Queue row status values. Diff rows move PENDING -> IN_PROGRESS -> DONE,
// returning to PENDING on failure. Job tasks additionally use FAILED, which
// stays claimable once the backoff window has elapsed.
const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusFailed     = "FAILED"
	StatusDone       = "DONE"
)

// Target is one configured careers page to watch.
type Target struct {
	Company string
	URL     string
}

// Snapshot is the full deduplicated link list observed for one site at one
// instant. Stored twice: appended to history and upserted as the current row.
type Snapshot struct {
	Site         string
	URL          string
	TsMs         int64
	SnapshotHash string
	Links        []string
}

// DiffRecord is one pending expansion of newly added URLs for a site.
// (Site, DiffHash) is unique; re-enqueueing the same diff is a no-op.
type DiffRecord struct {
	ID             int64
	Site           string
	CreatedTsMs    int64
	DiffHash       string
	AddedURLs      []string
	Status         string
	Attempts       int
	LastError      string
	Owner          string
	ClaimedTsMs    int64
	UpdatedTsMs    int64
	BackoffUntilMs int64
}

// JobTask is one unit of per-URL inference work. (Site, URL) is unique.
type JobTask struct {
	ID             int64
	Site           string
	URL            string
	Status         string
	CreatedTsMs    int64
	UpdatedTsMs    int64
	Owner          string
	Attempts       int
	LastError      string
	BackoffUntilMs int64
}

// JobDetail is the terminal inference result for one URL. Updated in place on
// re-inference; EmailedTsMs and DigestID are set exactly once by the digest
// emitter and never cleared by upserts.
type JobDetail struct {
	ID            int64
	Site          string
	URL           string
	JobTitle      string
	MinYears      int
	IncludeJob    bool
	ExcludeReason string
	RawJSON       string
	CreatedTsMs   int64
	UpdatedTsMs   int64
	EmailedTsMs   int64
	DigestID      string
}

// ExtractionResult is the structured output of the experience extraction
// engine for one URL.
type ExtractionResult struct {
	JobTitle string `json:"job_title"`
	MinYears int    `json:"min_years"`
	RawJSON  string `json:"-"`
}
