package linkfetch

import (
	"context"
	"fmt"
	neturl "net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// ChromedpFetcher renders the careers page with headless Chrome in-process and
// harvests anchor links from the rendered DOM. Functionally equivalent to the
// Node extractor subprocess without the extra runtime.
type ChromedpFetcher struct {
	timeout  time.Duration
	waitTime time.Duration
	limiter  *rate.Limiter
	logger   arbor.ILogger
}

// NewChromedpFetcher creates a browser-backed link fetcher. ratePerSecond
// bounds how often pages are fetched across all targets.
func NewChromedpFetcher(timeout time.Duration, ratePerSecond float64, logger arbor.ILogger) *ChromedpFetcher {
	return &ChromedpFetcher{
		timeout:  timeout,
		waitTime: 3 * time.Second,
		limiter:  rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		logger:   logger,
	}
}

// FetchLinks renders url and returns every same-document http(s) anchor in
// DOM order.
func (f *ChromedpFetcher) FetchLinks(ctx context.Context, url string) (Result, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	start := time.Now()

	html, err := f.renderPage(ctx, url)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return Result{DurationMs: elapsed}, err
	}

	links, err := extractAnchors(html, url)
	if err != nil {
		return Result{DurationMs: elapsed}, err
	}

	f.logger.Debug().
		Str("url", url).
		Int64("node_ms", elapsed).
		Int("links", len(links)).
		Msg("chromedp extraction finished")

	return Result{Links: links, DurationMs: elapsed}, nil
}

// RenderPageText renders url and returns the rendered HTML. Shared with the
// native extraction engine, which normalizes it to text before inference.
func (f *ChromedpFetcher) RenderPageText(ctx context.Context, url string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return f.renderPage(ctx, url)
}

func (f *ChromedpFetcher) renderPage(ctx context.Context, url string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(
		runCtx,
		append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent("Jobwatch/1.0 (Careers Page Watcher)"),
		)...,
	)
	defer allocatorCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	defer browserCancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(f.waitTime), // Wait for JavaScript to render
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", url, err)
	}
	return html, nil
}

// extractAnchors pulls href values out of rendered HTML, resolves them
// against the page URL and keeps absolute http(s) links in first-seen order.
func extractAnchors(html, pageURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rendered HTML: %w", err)
	}

	base, err := neturl.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL %s: %w", pageURL, err)
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := neturl.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		s := abs.String()
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		links = append(links, s)
	})
	return links, nil
}
