// Package kb implements the knowledge base: the orchestrator that pairs the
// relational record store with its vector indexes and drives the
// embed -> encode -> dual-write pipeline.
package kb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spetr/mcp-knowledge/internal/store/sqlite"
	"github.com/spetr/mcp-knowledge/pkg/provider"
	"github.com/spetr/mcp-knowledge/pkg/types"
	"github.com/spetr/mcp-knowledge/pkg/vec"
)

// KnowledgeBase composes the record store with one vector index per entity
// kind. Callers never address the indexes directly; every dual write goes
// through one transaction here, with embedding done before the transaction
// opens so no network call holds a write lock.
type KnowledgeBase struct {
	store     *sqlite.Store
	docIndex  *sqlite.VectorIndex
	msgIndex  *sqlite.VectorIndex
	embedding provider.EmbeddingProvider
	chunker   provider.Chunker
}

// Config contains knowledge base dependencies.
type Config struct {
	Store     *sqlite.Store
	Embedding provider.EmbeddingProvider
	Chunker   provider.Chunker // optional; nil embeds documents whole
}

// New creates a knowledge base over an open store.
func New(cfg Config) *KnowledgeBase {
	return &KnowledgeBase{
		store:     cfg.Store,
		docIndex:  cfg.Store.DocumentIndex(),
		msgIndex:  cfg.Store.MessageIndex(),
		embedding: cfg.Embedding,
		chunker:   cfg.Chunker,
	}
}

// Store exposes the relational record store for read paths and account and
// channel upserts, which carry no embeddings.
func (k *KnowledgeBase) Store() *sqlite.Store {
	return k.store
}

// AddDocument stores or replaces the document under docID together with the
// embeddings of its content. The relational row and its vector rows commit
// or roll back as one unit; a provider failure aborts before anything is
// written.
func (k *KnowledgeBase) AddDocument(ctx context.Context, docID, content string) (int64, error) {
	chunks := k.chunkContent(content)

	blobs, err := k.embedAll(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("add document %s: %w", docID, err)
	}

	tx, err := k.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	id, err := k.store.UpsertDocumentTx(tx, docID, content)
	if err != nil {
		return 0, err
	}

	// Replace, not append: stale vectors from the previous content go away
	// in the same transaction.
	if err := k.docIndex.DeleteTx(tx, id); err != nil {
		return 0, err
	}
	if err := k.docIndex.InsertTx(tx, id, blobs); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("add document %s: commit: %w", docID, err)
	}

	slog.Debug("document stored", "doc_id", docID, "row_id", id, "vectors", len(blobs))
	return id, nil
}

// AddMessage appends a message and the embedding of its text content in one
// transaction. Only the content field is embedded, not the metadata.
func (k *KnowledgeBase) AddMessage(ctx context.Context, channelID, accountID int64, role, content string, replyToID *int64) (int64, error) {
	blobs, err := k.embedAll(ctx, []string{content})
	if err != nil {
		return 0, fmt.Errorf("add message: %w", err)
	}

	tx, err := k.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	id, err := k.store.InsertMessageTx(tx, channelID, accountID, role, content, replyToID)
	if err != nil {
		return 0, err
	}

	if err := k.msgIndex.InsertTx(tx, id, blobs); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("add message: commit: %w", err)
	}

	slog.Debug("message stored", "id", id, "channel", channelID, "account", accountID)
	return id, nil
}

// SearchDocuments returns up to k documents nearest to the query text,
// ascending by distance. A vector row whose document has been deleted is
// skipped silently rather than raised.
func (k *KnowledgeBase) SearchDocuments(ctx context.Context, query string, limit int) ([]*types.DocumentMatch, error) {
	matches, err := k.knn(ctx, k.docIndex, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}

	var results []*types.DocumentMatch
	for _, m := range matches {
		doc, err := k.store.GetDocumentByRowID(ctx, m.RowID)
		if err != nil {
			return nil, fmt.Errorf("search documents: %w", err)
		}
		if doc == nil {
			slog.Debug("skipping stale vector row", "row_id", m.RowID)
			continue
		}
		results = append(results, &types.DocumentMatch{
			Distance: m.Distance,
			DocID:    doc.DocID,
			Document: doc,
		})
	}
	return results, nil
}

// SearchMessages returns up to k messages nearest to the query text,
// ascending by distance.
func (k *KnowledgeBase) SearchMessages(ctx context.Context, query string, limit int) ([]*types.MessageMatch, error) {
	matches, err := k.knn(ctx, k.msgIndex, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}

	var results []*types.MessageMatch
	for _, m := range matches {
		msg, err := k.store.GetMessage(ctx, m.RowID)
		if err != nil {
			return nil, fmt.Errorf("search messages: %w", err)
		}
		if msg == nil {
			slog.Debug("skipping stale vector row", "row_id", m.RowID)
			continue
		}
		results = append(results, &types.MessageMatch{
			Distance: m.Distance,
			ID:       msg.ID,
			Message:  msg,
		})
	}
	return results, nil
}

// UpsertAccount registers or touches a conversational participant.
func (k *KnowledgeBase) UpsertAccount(ctx context.Context, name, source, sourceID string) (int64, error) {
	return k.store.UpsertAccount(ctx, name, source, sourceID)
}

// UpsertChannel registers or updates a conversation context.
func (k *KnowledgeBase) UpsertChannel(ctx context.Context, channelID, kind, name string) (int64, error) {
	return k.store.UpsertChannel(ctx, channelID, kind, name)
}

// RecentMessages returns the newest messages in a channel.
func (k *KnowledgeBase) RecentMessages(ctx context.Context, channelID int64, limit int) ([]*types.Message, error) {
	return k.store.ListRecentMessages(ctx, channelID, limit)
}

// MessagesBetween returns the conversation between two accounts since a time.
func (k *KnowledgeBase) MessagesBetween(ctx context.Context, a, b int64, since time.Time, limit int) ([]*types.Message, error) {
	return k.store.ListMessagesBetween(ctx, a, b, since, limit)
}

// chunkContent splits document content for embedding. Without a chunker the
// whole content is a single span.
func (k *KnowledgeBase) chunkContent(content string) []string {
	if k.chunker == nil {
		if content == "" {
			return nil
		}
		return []string{content}
	}
	return k.chunker.Chunk(content)
}

// embedAll embeds the spans and encodes each vector, validating the
// dimension against the store before any transaction opens.
func (k *KnowledgeBase) embedAll(ctx context.Context, texts []string) ([][]byte, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := k.embedding.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", types.ErrEmbeddingFailed, len(vectors), len(texts))
	}

	blobs := make([][]byte, len(vectors))
	for i, v := range vectors {
		if len(v) != k.store.Dimensions() {
			return nil, fmt.Errorf("%w: dimension %d, store expects %d", types.ErrEmbeddingFailed, len(v), k.store.Dimensions())
		}
		blobs[i] = vec.Encode(v)
	}
	return blobs, nil
}

// knn embeds the query and runs it against one index.
func (k *KnowledgeBase) knn(ctx context.Context, index *sqlite.VectorIndex, query string, limit int) ([]sqlite.Match, error) {
	vectors, err := k.embedding.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingFailed, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d embeddings for query", types.ErrEmbeddingFailed, len(vectors))
	}
	return index.KNN(ctx, vec.Encode(vectors[0]), limit)
}
