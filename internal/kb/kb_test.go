package kb

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spetr/mcp-knowledge/internal/store/sqlite"
	"github.com/spetr/mcp-knowledge/pkg/provider"
	"github.com/spetr/mcp-knowledge/pkg/types"
)

// fakeEmbedder returns fixed vectors keyed by input text, so tests can
// place documents at known distances from a query.
type fakeEmbedder struct {
	vocab map[string][]float64
	err   error
}

var _ provider.EmbeddingProvider = (*fakeEmbedder)(nil)

func (f *fakeEmbedder) Name() string      { return "fake" }
func (f *fakeEmbedder) Dimensions() int   { return 4 }
func (f *fakeEmbedder) MaxBatchSize() int { return 16 }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if v, ok := f.vocab[text]; ok {
			out[i] = v
		} else {
			out[i] = []float64{0, 0, 0, 1}
		}
	}
	return out, nil
}

func (f *fakeEmbedder) Warmup(context.Context) error { return nil }
func (f *fakeEmbedder) Close() error                 { return nil }

// pipeChunker splits on "|", standing in for a real chunking strategy.
type pipeChunker struct{}

func (pipeChunker) Name() string { return "pipe" }

func (pipeChunker) Chunk(text string) []string {
	return strings.Split(text, "|")
}

func newTestKB(t *testing.T, embedder provider.EmbeddingProvider, chunker provider.Chunker) *KnowledgeBase {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "kb.db"), 4)
	if err != nil {
		if strings.Contains(err.Error(), "sqlite-vec") {
			t.Skip("sqlite-vec not available in this environment")
		}
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return New(Config{Store: store, Embedding: embedder, Chunker: chunker})
}

func TestAddDocumentAndSearch(t *testing.T) {
	embedder := &fakeEmbedder{vocab: map[string][]float64{
		"kubernetes runbook": {1, 0, 0, 0},
		"cake recipe":        {0, 1, 0, 0},
		"how do I deploy":    {0.9, 0.1, 0, 0},
	}}
	kb := newTestKB(t, embedder, nil)
	ctx := context.Background()

	if _, err := kb.AddDocument(ctx, "runbook", "kubernetes runbook"); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}
	if _, err := kb.AddDocument(ctx, "recipe", "cake recipe"); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}

	matches, err := kb.SearchDocuments(ctx, "how do I deploy", 2)
	if err != nil {
		t.Fatalf("SearchDocuments failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].DocID != "runbook" {
		t.Errorf("best match = %q, want %q", matches[0].DocID, "runbook")
	}
	if matches[0].Document.Content != "kubernetes runbook" {
		t.Errorf("best match content = %q", matches[0].Document.Content)
	}
	if matches[0].Distance > matches[1].Distance {
		t.Errorf("distances not ascending: %v > %v", matches[0].Distance, matches[1].Distance)
	}
}

func TestAddDocumentChunked(t *testing.T) {
	embedder := &fakeEmbedder{vocab: map[string][]float64{
		"part one": {1, 0, 0, 0},
		"part two": {0, 1, 0, 0},
	}}
	kb := newTestKB(t, embedder, pipeChunker{})
	ctx := context.Background()

	if _, err := kb.AddDocument(ctx, "split", "part one|part two"); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}

	stats, err := kb.Store().Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Documents != 1 {
		t.Errorf("documents = %d, want 1", stats.Documents)
	}
	if stats.DocVectors != 2 {
		t.Errorf("doc vectors = %d, want 2", stats.DocVectors)
	}

	// Either chunk's vector retrieves the whole document.
	matches, err := kb.SearchDocuments(ctx, "part two", 1)
	if err != nil {
		t.Fatalf("SearchDocuments failed: %v", err)
	}
	if len(matches) != 1 || matches[0].DocID != "split" {
		t.Fatalf("got %+v, want doc split", matches)
	}
	if matches[0].Document.Content != "part one|part two" {
		t.Errorf("content = %q, want full document", matches[0].Document.Content)
	}
}

func TestReAddDocumentReplacesEmbeddings(t *testing.T) {
	embedder := &fakeEmbedder{vocab: map[string][]float64{
		"old text": {0, 1, 0, 0},
		"new text": {1, 0, 0, 0},
		"query":    {1, 0, 0, 0},
	}}
	kb := newTestKB(t, embedder, nil)
	ctx := context.Background()

	id1, err := kb.AddDocument(ctx, "doc1", "old text")
	if err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}
	id2, err := kb.AddDocument(ctx, "doc1", "new text")
	if err != nil {
		t.Fatalf("re-add failed: %v", err)
	}
	if id2 != id1 {
		t.Errorf("re-add returned id %d, want %d", id2, id1)
	}

	stats, err := kb.Store().Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Documents != 1 {
		t.Errorf("documents = %d, want 1", stats.Documents)
	}
	if stats.DocVectors != 1 {
		t.Errorf("doc vectors = %d, want 1 (old embedding should be gone)", stats.DocVectors)
	}

	matches, err := kb.SearchDocuments(ctx, "query", 1)
	if err != nil {
		t.Fatalf("SearchDocuments failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Document.Content != "new text" {
		t.Fatalf("got %+v, want updated content", matches)
	}
	if matches[0].Distance != 0 {
		t.Errorf("distance = %v, want 0 for exact new vector", matches[0].Distance)
	}
}

func TestAddDocumentEmbedFailureLeavesStoreUnchanged(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("model unavailable")}
	kb := newTestKB(t, embedder, nil)
	ctx := context.Background()

	_, err := kb.AddDocument(ctx, "doc1", "content")
	if err == nil {
		t.Fatal("expected error from failing provider")
	}
	if !errors.Is(err, types.ErrEmbeddingFailed) {
		t.Errorf("error %v does not wrap ErrEmbeddingFailed", err)
	}

	stats, err := kb.Store().Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Documents != 0 || stats.DocVectors != 0 {
		t.Errorf("store not clean after failure: %+v", stats)
	}
}

func TestAddDocumentDimensionMismatch(t *testing.T) {
	// Provider claims 4 dims but returns 3.
	embedder := &fakeEmbedder{vocab: map[string][]float64{
		"short": {1, 0, 0},
	}}
	kb := newTestKB(t, embedder, nil)

	_, err := kb.AddDocument(context.Background(), "doc1", "short")
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if !errors.Is(err, types.ErrEmbeddingFailed) {
		t.Errorf("error %v does not wrap ErrEmbeddingFailed", err)
	}
}

func TestSearchSkipsStaleVectorRows(t *testing.T) {
	embedder := &fakeEmbedder{vocab: map[string][]float64{
		"keep":  {1, 0, 0, 0},
		"gone":  {0.9, 0, 0, 0},
		"query": {1, 0, 0, 0},
	}}
	kb := newTestKB(t, embedder, nil)
	ctx := context.Background()

	if _, err := kb.AddDocument(ctx, "keep", "keep"); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}
	if _, err := kb.AddDocument(ctx, "gone", "gone"); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}

	// Remove one relational row out from under its vector.
	tx, err := kb.Store().Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE doc_id = ?`, "gone"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	matches, err := kb.SearchDocuments(ctx, "query", 5)
	if err != nil {
		t.Fatalf("SearchDocuments failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1 (stale row skipped)", len(matches))
	}
	if matches[0].DocID != "keep" {
		t.Errorf("match = %q, want %q", matches[0].DocID, "keep")
	}
}

func TestAddMessageAndSearch(t *testing.T) {
	embedder := &fakeEmbedder{vocab: map[string][]float64{
		"the deploy is broken": {1, 0, 0, 0},
		"lunch plans":          {0, 1, 0, 0},
		"deployment problems":  {0.95, 0.05, 0, 0},
	}}
	kb := newTestKB(t, embedder, nil)
	ctx := context.Background()

	accountID, err := kb.UpsertAccount(ctx, "alice", "discord", "alice#1")
	if err != nil {
		t.Fatalf("UpsertAccount failed: %v", err)
	}
	channelID, err := kb.UpsertChannel(ctx, "chan-1", "discord", "ops")
	if err != nil {
		t.Fatalf("UpsertChannel failed: %v", err)
	}

	msgID, err := kb.AddMessage(ctx, channelID, accountID, "user", "the deploy is broken", nil)
	if err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}
	if _, err := kb.AddMessage(ctx, channelID, accountID, "user", "lunch plans", nil); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	matches, err := kb.SearchMessages(ctx, "deployment problems", 1)
	if err != nil {
		t.Fatalf("SearchMessages failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].ID != msgID {
		t.Errorf("match id = %d, want %d", matches[0].ID, msgID)
	}
	if matches[0].Message.Content != "the deploy is broken" {
		t.Errorf("content = %q", matches[0].Message.Content)
	}
	if matches[0].Message.Role != "user" {
		t.Errorf("role = %q, want user", matches[0].Message.Role)
	}
}

func TestAddMessageConstraintRollsBackVector(t *testing.T) {
	embedder := &fakeEmbedder{vocab: map[string][]float64{}}
	kb := newTestKB(t, embedder, nil)
	ctx := context.Background()

	_, err := kb.AddMessage(ctx, 9999, 9999, "user", "orphan", nil)
	if err == nil {
		t.Fatal("expected constraint violation")
	}
	if !errors.Is(err, types.ErrConstraint) {
		t.Errorf("error %v does not wrap ErrConstraint", err)
	}

	stats, err := kb.Store().Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Messages != 0 || stats.MsgVectors != 0 {
		t.Errorf("store not clean after rollback: %+v", stats)
	}
}
