package extract

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobwatch/internal/models"
)

// ExecEngine drives the external two-stage extraction pipeline:
//
//	<node-bin> <puppeteer-script> <url> | <python-bin> <extractor>
//
// Stage A renders the posting and emits {job_title, text} JSON; stage B reads
// that on stdin and emits the {min_years} result. Each stage runs in its own
// process group so a timeout can signal the whole group; the browser stage
// spawns Chrome children that must not survive it.
type ExecEngine struct {
	nodeBin         string
	puppeteerScript string
	pythonBin       string
	extractorPath   string
	timeout         time.Duration
	logger          arbor.ILogger
}

// NewExecEngine creates a subprocess-backed extraction engine.
func NewExecEngine(nodeBin, puppeteerScript, pythonBin, extractorPath string, timeout time.Duration, logger arbor.ILogger) *ExecEngine {
	return &ExecEngine{
		nodeBin:         nodeBin,
		puppeteerScript: puppeteerScript,
		pythonBin:       pythonBin,
		extractorPath:   extractorPath,
		timeout:         timeout,
		logger:          logger,
	}
}

// Extract runs the pipeline for url and parses stage B's stdout. On timeout
// the process groups receive SIGTERM, then SIGKILL after a grace period, and
// the task fails with "pipeline_timeout".
func (e *ExecEngine) Extract(ctx context.Context, url string) (models.ExtractionResult, error) {
	stageA := exec.Command(e.nodeBin, e.puppeteerScript, url)
	stageB := exec.Command(e.pythonBin, e.extractorPath)
	setProcessGroup(stageA)
	setProcessGroup(stageB)

	pipe, err := stageA.StdoutPipe()
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("failed to create pipeline: %w", err)
	}
	stageB.Stdin = pipe

	var errA, outB, errB bytes.Buffer
	stageA.Stderr = &errA
	stageB.Stdout = &outB
	stageB.Stderr = &errB

	if err := stageA.Start(); err != nil {
		return models.ExtractionResult{}, fmt.Errorf("failed to start browser stage: %w", err)
	}
	if err := stageB.Start(); err != nil {
		killGroup(stageA)
		stageA.Wait()
		return models.ExtractionResult{}, fmt.Errorf("failed to start extractor stage: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- stageB.Wait()
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-timer.C:
		e.terminate(stageA, stageB)
		<-done
		stageA.Wait()
		return models.ExtractionResult{}, fmt.Errorf("pipeline_timeout after %s", e.timeout)
	case <-ctx.Done():
		e.terminate(stageA, stageB)
		<-done
		stageA.Wait()
		return models.ExtractionResult{}, ctx.Err()
	}

	errAWait := stageA.Wait()

	if errAWait != nil {
		return models.ExtractionResult{}, fmt.Errorf("puppeteer_failed: %w stderr=%s", errAWait, stderrPreview(&errA))
	}
	if waitErr != nil {
		return models.ExtractionResult{}, fmt.Errorf("extract_experience_failed: %w stderr=%s", waitErr, stderrPreview(&errB))
	}

	return ParseResult(outB.String())
}

// terminate signals both stage process groups, escalating from SIGTERM to
// SIGKILL after a short grace period.
func (e *ExecEngine) terminate(stageA, stageB *exec.Cmd) {
	e.logger.Warn().Msg("extraction pipeline timed out, terminating process groups")

	termGroup(stageB)
	termGroup(stageA)
	time.Sleep(1 * time.Second)
	killGroup(stageB)
	killGroup(stageA)
}

func stderrPreview(buf *bytes.Buffer) string {
	s := strings.ReplaceAll(strings.TrimSpace(buf.String()), "\n", "\\n")
	if len(s) > 800 {
		s = s[:800]
	}
	return s
}
