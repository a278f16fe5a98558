package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/spetr/mcp-knowledge/internal/config"
	"github.com/spetr/mcp-knowledge/internal/kb"
	"github.com/spetr/mcp-knowledge/internal/store/sqlite"
)

type stubEmbedder struct{}

func (stubEmbedder) Name() string      { return "stub" }
func (stubEmbedder) Dimensions() int   { return 4 }
func (stubEmbedder) MaxBatchSize() int { return 16 }

// Embed maps the first byte of each text onto one axis so distinct texts
// land at distinct points.
func (stubEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v := make([]float64, 4)
		if len(text) > 0 {
			v[int(text[0])%4] = 1
		}
		out[i] = v
	}
	return out, nil
}

func (stubEmbedder) Warmup(context.Context) error { return nil }
func (stubEmbedder) Close() error                 { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "mcp.db"), 4)
	if err != nil {
		if strings.Contains(err.Error(), "sqlite-vec") {
			t.Skip("sqlite-vec not available in this environment")
		}
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	knowledge := kb.New(kb.Config{Store: store, Embedding: stubEmbedder{}})

	srv, err := New(Config{Config: config.DefaultConfig(), KB: knowledge})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return srv
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text payload of a successful tool result.
func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result.IsError {
		t.Fatalf("tool returned error: %+v", result.Content)
	}
	if len(result.Content) == 0 {
		t.Fatal("tool returned no content")
	}
	text, ok := mcp.AsTextContent(result.Content[0])
	if !ok {
		t.Fatalf("unexpected content type: %T", result.Content[0])
	}
	return text.Text
}

func TestHandleAddAndGetDocument(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleAddDocument(ctx, callRequest(map[string]any{
		"doc_id":  "notes/onboarding",
		"content": "welcome to the team",
	}))
	if err != nil {
		t.Fatalf("handleAddDocument failed: %v", err)
	}
	resultText(t, result)

	result, err = srv.handleGetDocument(ctx, callRequest(map[string]any{
		"doc_id": "notes/onboarding",
	}))
	if err != nil {
		t.Fatalf("handleGetDocument failed: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(resultText(t, result)), &doc); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if doc["content"] != "welcome to the team" {
		t.Errorf("content = %v", doc["content"])
	}
}

func TestHandleAddDocumentMissingArgs(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.handleAddDocument(context.Background(), callRequest(map[string]any{
		"content": "no id",
	}))
	if err != nil {
		t.Fatalf("handler errored instead of returning tool error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for missing doc_id")
	}
}

func TestHandleSearchKnowledge(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	for _, doc := range []struct{ id, content string }{
		{"a", "alpha doc"},
		{"b", "bravo doc"},
	} {
		if _, err := srv.handleAddDocument(ctx, callRequest(map[string]any{
			"doc_id": doc.id, "content": doc.content,
		})); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	result, err := srv.handleSearchKnowledge(ctx, callRequest(map[string]any{
		"query": "alpha doc",
		"limit": 1,
	}))
	if err != nil {
		t.Fatalf("handleSearchKnowledge failed: %v", err)
	}

	var matches []map[string]any
	if err := json.Unmarshal([]byte(resultText(t, result)), &matches); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(matches) != 1 || matches[0]["doc_id"] != "a" {
		t.Errorf("got %v, want doc a", matches)
	}
}

func TestHandleLogMessageAndRecent(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleLogMessage(ctx, callRequest(map[string]any{
		"channel_id":        "chan-ops",
		"channel_kind":      "discord",
		"channel_name":      "ops",
		"account_name":      "alice",
		"account_source_id": "alice#1",
		"content":           "deploy finished",
	}))
	if err != nil {
		t.Fatalf("handleLogMessage failed: %v", err)
	}
	resultText(t, result)

	result, err = srv.handleRecentMessages(ctx, callRequest(map[string]any{
		"channel_id": "chan-ops",
	}))
	if err != nil {
		t.Fatalf("handleRecentMessages failed: %v", err)
	}

	var messages []map[string]any
	if err := json.Unmarshal([]byte(resultText(t, result)), &messages); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}
	if messages[0]["content"] != "deploy finished" || messages[0]["role"] != "user" {
		t.Errorf("unexpected message: %v", messages[0])
	}

	// Unknown channel is a tool error.
	result, err = srv.handleRecentMessages(ctx, callRequest(map[string]any{
		"channel_id": "nope",
	}))
	if err != nil {
		t.Fatalf("handleRecentMessages failed: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for unknown channel")
	}
}

func TestHandleListChannels(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	for _, ch := range []struct{ id, kind string }{
		{"d-general", "discord"},
		{"d-random", "discord"},
		{"t-news", "telegram"},
	} {
		if _, err := srv.kb.UpsertChannel(ctx, ch.id, ch.kind, ""); err != nil {
			t.Fatalf("UpsertChannel failed: %v", err)
		}
	}

	result, err := srv.handleListChannels(ctx, callRequest(map[string]any{
		"kind": "discord",
	}))
	if err != nil {
		t.Fatalf("handleListChannels failed: %v", err)
	}

	var channels []map[string]any
	if err := json.Unmarshal([]byte(resultText(t, result)), &channels); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(channels) != 2 {
		t.Fatalf("got %d channels, want 2", len(channels))
	}
	for _, ch := range channels {
		if ch["kind"] != "discord" {
			t.Errorf("channel %v has wrong kind", ch)
		}
	}

	// Missing kind is a tool error.
	result, err = srv.handleListChannels(ctx, callRequest(nil))
	if err != nil {
		t.Fatalf("handleListChannels failed: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for missing kind")
	}
}

func TestHandleConversationBetween(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	log := func(name, sourceID, content string, replyTo int) {
		t.Helper()
		args := map[string]any{
			"channel_id":        "dm-1",
			"channel_kind":      "discord",
			"account_name":      name,
			"account_source_id": sourceID,
			"content":           content,
		}
		if replyTo > 0 {
			args["reply_to_id"] = replyTo
		}
		result, err := srv.handleLogMessage(ctx, callRequest(args))
		if err != nil {
			t.Fatalf("handleLogMessage failed: %v", err)
		}
		resultText(t, result)
	}
	log("alice", "alice#1", "hi bob", 0)
	log("bob", "bob#1", "hi alice", 1)
	log("carol", "carol#1", "unrelated", 0)

	result, err := srv.handleConversationBetween(ctx, callRequest(map[string]any{
		"account_a": 1,
		"account_b": 2,
	}))
	if err != nil {
		t.Fatalf("handleConversationBetween failed: %v", err)
	}

	var messages []map[string]any
	if err := json.Unmarshal([]byte(resultText(t, result)), &messages); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0]["content"] != "hi bob" || messages[1]["content"] != "hi alice" {
		t.Errorf("unexpected order: %v", messages)
	}

	// Missing account ids are a tool error.
	result, err = srv.handleConversationBetween(ctx, callRequest(map[string]any{
		"account_a": 1,
	}))
	if err != nil {
		t.Fatalf("handleConversationBetween failed: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for missing account_b")
	}
}

func TestHandleGetStats(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	if _, err := srv.handleAddDocument(ctx, callRequest(map[string]any{
		"doc_id": "d1", "content": "stats doc",
	})); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	result, err := srv.handleGetStats(ctx, callRequest(nil))
	if err != nil {
		t.Fatalf("handleGetStats failed: %v", err)
	}

	var stats map[string]any
	if err := json.Unmarshal([]byte(resultText(t, result)), &stats); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if stats["documents"] != float64(1) {
		t.Errorf("documents = %v, want 1", stats["documents"])
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{3 * 1024 * 1024, "3.00 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
