package linkfetch

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// NodeClient invokes the external Node link extractor: `<node-bin> index.js
// <url>` in the configured working directory. Stdout carries one link per
// line; a nonzero exit fails the target without writing any state.
type NodeClient struct {
	nodeBin string
	workdir string
	timeout time.Duration
	logger  arbor.ILogger
}

// NewNodeClient creates a subprocess-backed link fetcher.
func NewNodeClient(nodeBin, workdir string, timeout time.Duration, logger arbor.ILogger) *NodeClient {
	return &NodeClient{
		nodeBin: nodeBin,
		workdir: workdir,
		timeout: timeout,
		logger:  logger,
	}
}

// FetchLinks runs the extractor for url and returns the whitespace-trimmed,
// non-blank stdout lines.
func (c *NodeClient) FetchLinks(ctx context.Context, url string) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()

	cmd := exec.CommandContext(runCtx, c.nodeBin, "index.js", url)
	cmd.Dir = c.workdir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	res := Result{
		RawStderr:  stderr.String(),
		DurationMs: elapsed,
	}

	c.logger.Debug().
		Str("url", url).
		Int64("node_ms", elapsed).
		Int("stdout_bytes", stdout.Len()).
		Int("stderr_bytes", stderr.Len()).
		Msg("node extractor finished")

	if runCtx.Err() == context.DeadlineExceeded {
		return res, fmt.Errorf("node extractor timed out after %s", c.timeout)
	}
	if err != nil {
		preview := strings.ReplaceAll(strings.TrimSpace(stderr.String()), "\n", "\\n")
		if len(preview) > 1000 {
			preview = preview[:1000]
		}
		return res, fmt.Errorf("node extractor failed: %w stderr=%s", err, preview)
	}

	for _, line := range strings.Split(stdout.String(), "\n") {
		if s := strings.TrimSpace(line); s != "" {
			res.Links = append(res.Links, s)
		}
	}
	return res, nil
}
