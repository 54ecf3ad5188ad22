package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/jobwatch/internal/models"
)

// rawResult is the wire shape emitted by the extraction stage. min_years may
// legitimately arrive as a float; anything else is coerced to zero.
type rawResult struct {
	JobTitle string          `json:"job_title"`
	MinYears json.RawMessage `json:"min_years"`
}

// ParseResult decodes the extractor's stdout. The document must be valid
// JSON; inside it, min_years coerces to a non-negative integer (invalid,
// missing or negative values collapse to 0, matching the extractor contract)
// and job_title is trimmed.
func ParseResult(raw string) (models.ExtractionResult, error) {
	trimmed := strings.TrimSpace(raw)

	var r rawResult
	if err := json.Unmarshal([]byte(trimmed), &r); err != nil {
		preview := trimmed
		if len(preview) > 800 {
			preview = preview[:800]
		}
		return models.ExtractionResult{}, fmt.Errorf("invalid extractor JSON: %w raw=%s", err, preview)
	}

	return models.ExtractionResult{
		JobTitle: strings.TrimSpace(r.JobTitle),
		MinYears: coerceMinYears(r.MinYears),
		RawJSON:  trimmed,
	}, nil
}

func coerceMinYears(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0
	}
	if f < 0 {
		return 0
	}
	return int(f)
}
