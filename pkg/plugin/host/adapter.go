package host

import (
	"context"

	"github.com/spetr/mcp-knowledge/pkg/plugin/shared"
	"github.com/spetr/mcp-knowledge/pkg/provider"
)

// EmbeddingAdapter adapts a plugin EmbeddingProvider to the
// provider.EmbeddingProvider interface.
type EmbeddingAdapter struct {
	plugin shared.EmbeddingProvider
}

// NewEmbeddingAdapter creates a new embedding adapter.
func NewEmbeddingAdapter(p shared.EmbeddingProvider) *EmbeddingAdapter {
	return &EmbeddingAdapter{plugin: p}
}

// Name returns the provider name.
func (a *EmbeddingAdapter) Name() string {
	return a.plugin.Name()
}

// Embed generates embeddings for the given texts.
func (a *EmbeddingAdapter) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	// Check context before calling plugin
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return a.plugin.Embed(texts)
}

// Dimensions returns the embedding dimensions.
func (a *EmbeddingAdapter) Dimensions() int {
	return a.plugin.Dimensions()
}

// MaxBatchSize returns the maximum batch size.
func (a *EmbeddingAdapter) MaxBatchSize() int {
	return a.plugin.MaxBatchSize()
}

// Warmup warms up the provider.
func (a *EmbeddingAdapter) Warmup(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return a.plugin.Warmup()
}

// Close closes the provider.
func (a *EmbeddingAdapter) Close() error {
	return a.plugin.Close()
}

// Ensure EmbeddingAdapter implements provider.EmbeddingProvider
var _ provider.EmbeddingProvider = (*EmbeddingAdapter)(nil)
