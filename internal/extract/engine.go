package extract

import (
	"context"

	"github.com/ternarybob/jobwatch/internal/models"
)

// Engine produces the structured experience-extraction result for one job
// posting URL. Two implementations exist: the external subprocess pipeline
// and the in-process browser + LLM engine. Both honor the per-task timeout
// through ctx.
type Engine interface {
	Extract(ctx context.Context, url string) (models.ExtractionResult, error)
}
