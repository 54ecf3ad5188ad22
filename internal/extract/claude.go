package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobwatch/internal/linkfetch"
	"github.com/ternarybob/jobwatch/internal/models"
)

const extractionSystemPrompt = `You are an information extraction system.

Your task:
Extract the MINIMUM required years of professional experience from the job description.

Rules:
- Ignore degrees entirely (BS, MS, PhD).
- Ignore preferred qualifications unless explicitly required.
- If multiple experience numbers appear, choose the LOWEST.
- Do NOT infer from job title.
- If entry-level or new grad, return 0.
- If unclear, return 0.
- Never guess.

Return ONLY valid JSON:

{
  "min_years": number
}`

// ClaudeEngine renders the posting with headless Chrome, normalizes it to
// markdown and asks Claude for the minimum required years. It replaces both
// pipeline subprocesses with in-process calls.
type ClaudeEngine struct {
	renderer  *linkfetch.ChromedpFetcher
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	converter *md.Converter
	logger    arbor.ILogger
}

// NewClaudeEngine creates an in-process extraction engine backed by the
// Anthropic API.
func NewClaudeEngine(renderer *linkfetch.ChromedpFetcher, apiKey, model string, timeout time.Duration, logger arbor.ILogger) *ClaudeEngine {
	return &ClaudeEngine{
		renderer:  renderer,
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: 256,
		timeout:   timeout,
		converter: md.NewConverter("", true, nil),
		logger:    logger,
	}
}

// Extract renders url, trims the page text to the experience-relevant lines
// and asks the model for the minimum years. The job title is taken from the
// document <title>.
func (e *ClaudeEngine) Extract(ctx context.Context, url string) (models.ExtractionResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	html, err := e.renderer.RenderPageText(runCtx, url)
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("page_render_failed: %w", err)
	}

	title := pageTitle(html)
	text, err := e.converter.ConvertString(html)
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("failed to normalize page text: %w", err)
	}

	trimmed := TrimJobText(text)
	if strings.TrimSpace(trimmed) == "" {
		return models.ExtractionResult{}, fmt.Errorf("rendered page produced no text for %s", url)
	}

	minYears, raw, err := e.askMinYears(runCtx, trimmed)
	if err != nil {
		return models.ExtractionResult{}, err
	}

	e.logger.Debug().
		Str("url", url).
		Str("job_title", title).
		Int("min_years", minYears).
		Msg("claude extraction finished")

	return models.ExtractionResult{JobTitle: title, MinYears: minYears, RawJSON: raw}, nil
}

func (e *ClaudeEngine) askMinYears(ctx context.Context, jobText string) (int, string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: e.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: extractionSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(jobText)),
		},
	}
	params.Temperature = anthropic.Float(0)

	resp, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return 0, "", fmt.Errorf("claude_api_failed: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	raw := out.String()

	// The model occasionally wraps the JSON in a fenced code block.
	body := strings.TrimSpace(raw)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")

	var parsed struct {
		MinYears json.RawMessage `json:"min_years"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &parsed); err != nil {
		// Unparseable answers count as "unclear", not as task failures.
		e.logger.Warn().Str("response", preview(raw, 200)).Msg("claude returned non-JSON, treating as zero years")
		return 0, raw, nil
	}
	return coerceMinYears(parsed.MinYears), raw, nil
}

// pageTitle returns the document <title>, or empty when absent.
func pageTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func preview(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	if len(s) > n {
		return s[:n]
	}
	return s
}
