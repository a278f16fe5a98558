// Package simple implements a paragraph-based chunking strategy for document
// content. Paragraphs are packed into chunks up to the size limit; a single
// oversized paragraph is split hard at the limit.
package simple

import (
	"strings"
	"unicode/utf8"

	"github.com/spetr/mcp-knowledge/pkg/provider"
)

// Default values
const (
	DefaultMaxChunkSize = 2000 // characters per chunk
)

// Config contains configuration for simple chunking.
type Config struct {
	MaxChunkSize int // Maximum chunk size in characters
}

// Chunker implements a simple paragraph-based chunking strategy.
type Chunker struct {
	config Config
}

// New creates a new simple chunker.
func New(cfg Config) *Chunker {
	if cfg.MaxChunkSize == 0 {
		cfg.MaxChunkSize = DefaultMaxChunkSize
	}
	return &Chunker{config: cfg}
}

// Name returns the strategy name.
func (c *Chunker) Name() string {
	return "simple"
}

// Chunk splits text into spans on paragraph boundaries, packing adjacent
// paragraphs until the size limit is reached.
func (c *Chunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	max := c.config.MaxChunkSize
	if len(text) <= max {
		return []string{text}
	}

	paragraphs := strings.Split(text, "\n\n")

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		// A single paragraph larger than the limit is split hard, backing
		// up to a rune boundary so no chunk carries a bisected rune.
		for len(para) > max {
			flush()
			cut := runeCut(para, max)
			chunks = append(chunks, para[:cut])
			para = strings.TrimSpace(para[cut:])
		}
		if para == "" {
			continue
		}

		if current.Len() > 0 && current.Len()+len(para)+2 > max {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks
}

// runeCut returns the largest cut point <= max that falls on a rune
// boundary of s. Requires len(s) > max.
func runeCut(s string, max int) int {
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		return max
	}
	return cut
}

// Ensure Chunker implements Chunker interface
var _ provider.Chunker = (*Chunker)(nil)
