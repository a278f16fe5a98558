package provider

// Chunker splits document content into embeddable spans. A document may
// legitimately produce several chunks, each stored as its own vector row.
type Chunker interface {
	// Name returns the chunker name (e.g., "simple").
	Name() string

	// Chunk splits text into spans no larger than the configured maximum.
	// Returns at least one chunk for non-empty input.
	Chunk(text string) []string
}

// ChunkingConfig contains configuration for chunkers.
type ChunkingConfig struct {
	Strategy     string // "simple"
	MaxChunkSize int    // max characters per chunk
}
