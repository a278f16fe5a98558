// Package builtin registers all built-in providers with the default registry.
package builtin

import (
	simpleChunker "github.com/spetr/mcp-knowledge/builtin/chunking/simple"
	ollamaEmbed "github.com/spetr/mcp-knowledge/builtin/embedding/ollama"
	openaiEmbed "github.com/spetr/mcp-knowledge/builtin/embedding/openai"
	"github.com/spetr/mcp-knowledge/pkg/provider"
)

func init() {
	// Register embedding providers
	provider.RegisterEmbedding("ollama", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return ollamaEmbed.New(ollamaEmbed.Config{
			Endpoint:   cfg.Endpoint,
			Model:      cfg.Model,
			BatchSize:  cfg.BatchSize,
			Dimensions: cfg.Dimensions,
		}), nil
	})

	provider.RegisterEmbedding("openai", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return openaiEmbed.New(openaiEmbed.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.Endpoint,
			Model:      cfg.Model,
			BatchSize:  cfg.BatchSize,
			Dimensions: cfg.Dimensions,
		}), nil
	})

	// Register chunking strategies
	provider.RegisterChunking("simple", func(cfg provider.ChunkingConfig) (provider.Chunker, error) {
		return simpleChunker.New(simpleChunker.Config{
			MaxChunkSize: cfg.MaxChunkSize,
		}), nil
	})
}
