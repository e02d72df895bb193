package preflight

import (
	"context"
	"fmt"

	"github.com/contextweaver/contextweaver/internal/embed"
)

// CheckEmbedderReachable probes the configured HTTP embedder with a short
// Available call so doctor can report a clear "can't reach the embedding
// service" diagnosis instead of an opaque failure mid-index.
func (c *Checker) CheckEmbedderReachable(ctx context.Context, embedder embed.Embedder) CheckResult {
	result := CheckResult{
		Name:     "embedder_reachable",
		Required: false, // indexing still proceeds; the first real call will surface the error
	}

	if embedder == nil {
		result.Status = StatusWarn
		result.Message = "no embedder configured"
		return result
	}

	if !embedder.Available(ctx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("embedding service unreachable (model %s)", embedder.ModelName())
		result.Details = "check CONTEXTWEAVER_EMBEDDING_BASE_URL and CONTEXTWEAVER_EMBEDDING_API_KEY"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("embedding service reachable (model %s, %d dims)", embedder.ModelName(), embedder.Dimensions())
	return result
}
