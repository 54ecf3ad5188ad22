package linkfetch

import "context"

// Result is the outcome of one link extraction call for a single page URL.
type Result struct {
	Links      []string
	RawStderr  string
	DurationMs int64
}

// Fetcher harvests the raw link list from one careers-page URL. The snapshot
// runner deduplicates and diffs the result; fetchers only extract.
type Fetcher interface {
	FetchLinks(ctx context.Context, url string) (Result, error)
}
