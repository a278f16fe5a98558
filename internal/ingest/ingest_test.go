package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spetr/mcp-knowledge/internal/kb"
	"github.com/spetr/mcp-knowledge/internal/store/sqlite"
)

type stubEmbedder struct{}

func (stubEmbedder) Name() string      { return "stub" }
func (stubEmbedder) Dimensions() int   { return 4 }
func (stubEmbedder) MaxBatchSize() int { return 16 }

func (stubEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0, 0, 0}
	}
	return out, nil
}

func (stubEmbedder) Warmup(context.Context) error { return nil }
func (stubEmbedder) Close() error                 { return nil }

func newTestKB(t *testing.T) *kb.KnowledgeBase {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "ingest.db"), 4)
	if err != nil {
		if strings.Contains(err.Error(), "sqlite-vec") {
			t.Skip("sqlite-vec not available in this environment")
		}
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return kb.New(kb.Config{Store: store, Embedding: stubEmbedder{}})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestScan(t *testing.T) {
	knowledge := newTestKB(t)
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "readme.md"), "top level doc")
	writeFile(t, filepath.Join(dir, "notes", "meeting.md"), "nested doc")
	writeFile(t, filepath.Join(dir, "binary.png"), "not a doc")
	writeFile(t, filepath.Join(dir, ".hidden", "secret.md"), "hidden dir doc")

	ing, err := New(Config{
		KB:      knowledge,
		Dir:     dir,
		Include: []string{"**/*.md"},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer ing.Close()

	ctx := context.Background()
	count, err := ing.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if count != 2 {
		t.Errorf("ingested %d files, want 2", count)
	}

	doc, err := knowledge.Store().GetDocument(ctx, "notes/meeting.md")
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if doc == nil || doc.Content != "nested doc" {
		t.Errorf("got %+v, want nested doc", doc)
	}

	if doc, _ := knowledge.Store().GetDocument(ctx, "binary.png"); doc != nil {
		t.Error("excluded file was ingested")
	}
}

func TestScanRespectsExclude(t *testing.T) {
	knowledge := newTestKB(t)
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "keep.md"), "keep")
	writeFile(t, filepath.Join(dir, "drafts", "wip.md"), "draft")

	ing, err := New(Config{
		KB:      knowledge,
		Dir:     dir,
		Include: []string{"**/*.md"},
		Exclude: []string{"drafts/**"},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer ing.Close()

	count, err := ing.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if count != 1 {
		t.Errorf("ingested %d files, want 1", count)
	}
}

func TestWatchPicksUpNewFile(t *testing.T) {
	knowledge := newTestKB(t)
	dir := t.TempDir()

	ing, err := New(Config{
		KB:           knowledge,
		Dir:          dir,
		Include:      []string{"**/*.md"},
		DebounceTime: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ing.Watch(ctx) }()

	// Give the watcher a moment to register the directory.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "new.md"), "created after watch started")

	deadline := time.Now().Add(5 * time.Second)
	for {
		doc, err := knowledge.Store().GetDocument(ctx, "new.md")
		if err != nil {
			t.Fatalf("GetDocument failed: %v", err)
		}
		if doc != nil {
			if doc.Content != "created after watch started" {
				t.Errorf("content = %q", doc.Content)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("document never ingested")
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned error: %v", err)
	}
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"**/*.md", "readme.md", true},
		{"**/*.md", "a/b/c.md", true},
		{"**/*.md", "a/b/c.txt", false},
		{"drafts/**", "drafts/wip.md", true},
		{"drafts/**", "notes/wip.md", false},
		{"*.txt", "todo.txt", true},
	}
	for _, tt := range tests {
		if got := matchGlob(tt.pattern, tt.path); got != tt.want {
			t.Errorf("matchGlob(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}
