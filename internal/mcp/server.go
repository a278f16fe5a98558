// Package mcp implements the MCP server for the knowledge base.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/spetr/mcp-knowledge/internal/config"
	"github.com/spetr/mcp-knowledge/internal/kb"
)

// Server implements the MCP server.
type Server struct {
	mcpServer *server.MCPServer
	config    *config.Config
	kb        *kb.KnowledgeBase
}

// Config contains server configuration.
type Config struct {
	Config *config.Config
	KB     *kb.KnowledgeBase
}

// New creates a new MCP server.
func New(cfg Config) (*Server, error) {
	s := &Server{
		config: cfg.Config,
		kb:     cfg.KB,
	}

	mcpServer := server.NewMCPServer(
		"mcp-knowledge",
		"0.1.0",
		server.WithLogging(),
	)

	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s, nil
}

// registerTools registers all MCP tools.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	// add_document - Store a document and index it for semantic search
	mcpServer.AddTool(mcp.NewTool("add_document",
		mcp.WithDescription("Store a document in the knowledge base and index it for semantic search"),
		mcp.WithString("doc_id", mcp.Required(), mcp.Description("Stable document identifier")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Document content")),
	), s.handleAddDocument)

	// get_document - Fetch a document by identifier
	mcpServer.AddTool(mcp.NewTool("get_document",
		mcp.WithDescription("Get a stored document by its identifier"),
		mcp.WithString("doc_id", mcp.Required(), mcp.Description("Document identifier")),
	), s.handleGetDocument)

	// search_knowledge - Semantic document search
	mcpServer.AddTool(mcp.NewTool("search_knowledge",
		mcp.WithDescription("Search stored documents by semantic similarity"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 10)")),
	), s.handleSearchKnowledge)

	// search_messages - Semantic message search
	mcpServer.AddTool(mcp.NewTool("search_messages",
		mcp.WithDescription("Search logged messages by semantic similarity"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 10)")),
	), s.handleSearchMessages)

	// log_message - Record a conversational message
	mcpServer.AddTool(mcp.NewTool("log_message",
		mcp.WithDescription("Record a message, registering its channel and author as needed"),
		mcp.WithString("channel_id", mcp.Required(), mcp.Description("External channel identifier")),
		mcp.WithString("channel_kind", mcp.Description("Channel kind (e.g., discord, slack)")),
		mcp.WithString("channel_name", mcp.Description("Human-readable channel name")),
		mcp.WithString("account_name", mcp.Required(), mcp.Description("Author display name")),
		mcp.WithString("account_source", mcp.Description("Author platform (defaults to channel kind)")),
		mcp.WithString("account_source_id", mcp.Required(), mcp.Description("Author identifier on the platform")),
		mcp.WithString("role", mcp.Description("Message role (default: user)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Message content")),
		mcp.WithNumber("reply_to_id", mcp.Description("Internal id of the message being replied to")),
	), s.handleLogMessage)

	// recent_messages - Latest messages in a channel
	mcpServer.AddTool(mcp.NewTool("recent_messages",
		mcp.WithDescription("Get the most recent messages in a channel"),
		mcp.WithString("channel_id", mcp.Required(), mcp.Description("External channel identifier")),
		mcp.WithNumber("limit", mcp.Description("Maximum messages (default 20)")),
	), s.handleRecentMessages)

	// list_channels - Channels of a given kind
	mcpServer.AddTool(mcp.NewTool("list_channels",
		mcp.WithDescription("List known channels of a given kind"),
		mcp.WithString("kind", mcp.Required(), mcp.Description("Channel kind (e.g., discord, slack)")),
	), s.handleListChannels)

	// conversation_between - Messages exchanged between two accounts
	mcpServer.AddTool(mcp.NewTool("conversation_between",
		mcp.WithDescription("Get messages exchanged between two accounts, oldest first"),
		mcp.WithNumber("account_a", mcp.Required(), mcp.Description("Internal id of the first account")),
		mcp.WithNumber("account_b", mcp.Required(), mcp.Description("Internal id of the second account")),
		mcp.WithString("since", mcp.Description("RFC3339 lower bound on message time")),
		mcp.WithNumber("limit", mcp.Description("Maximum messages (default 50)")),
	), s.handleConversationBetween)

	// get_stats - Knowledge base statistics
	mcpServer.AddTool(mcp.NewTool("get_stats",
		mcp.WithDescription("Get knowledge base statistics"),
	), s.handleGetStats)
}

func (s *Server) handleAddDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID := req.GetString("doc_id", "")
	if docID == "" {
		return mcp.NewToolResultError("doc_id is required"), nil
	}
	content := req.GetString("content", "")
	if content == "" {
		return mcp.NewToolResultError("content is required"), nil
	}

	id, err := s.kb.AddDocument(ctx, docID, content)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add document: %v", err)), nil
	}

	result := map[string]any{
		"doc_id": docID,
		"row_id": id,
	}
	jsonResult, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(jsonResult)), nil
}

func (s *Server) handleGetDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID := req.GetString("doc_id", "")
	if docID == "" {
		return mcp.NewToolResultError("doc_id is required"), nil
	}

	doc, err := s.kb.Store().GetDocument(ctx, docID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get document: %v", err)), nil
	}
	if doc == nil {
		return mcp.NewToolResultError("document not found"), nil
	}

	result := map[string]any{
		"doc_id":  doc.DocID,
		"content": doc.Content,
	}
	jsonResult, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(jsonResult)), nil
}

func (s *Server) handleSearchKnowledge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	limit := req.GetInt("limit", s.defaultLimit())

	matches, err := s.kb.SearchDocuments(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	var formatted []map[string]any
	for _, m := range matches {
		formatted = append(formatted, map[string]any{
			"doc_id":   m.DocID,
			"distance": m.Distance,
			"content":  m.Document.Content,
		})
	}

	jsonResult, _ := json.MarshalIndent(formatted, "", "  ")
	return mcp.NewToolResultText(string(jsonResult)), nil
}

func (s *Server) handleSearchMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	limit := req.GetInt("limit", s.defaultLimit())

	matches, err := s.kb.SearchMessages(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	var formatted []map[string]any
	for _, m := range matches {
		formatted = append(formatted, map[string]any{
			"id":         m.ID,
			"distance":   m.Distance,
			"channel_id": m.Message.ChannelID,
			"account_id": m.Message.AccountID,
			"role":       m.Message.Role,
			"content":    m.Message.Content,
			"created_at": m.Message.CreatedAt.Format(time.RFC3339),
		})
	}

	jsonResult, _ := json.MarshalIndent(formatted, "", "  ")
	return mcp.NewToolResultText(string(jsonResult)), nil
}

func (s *Server) handleLogMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	channelID := req.GetString("channel_id", "")
	if channelID == "" {
		return mcp.NewToolResultError("channel_id is required"), nil
	}
	accountName := req.GetString("account_name", "")
	if accountName == "" {
		return mcp.NewToolResultError("account_name is required"), nil
	}
	accountSourceID := req.GetString("account_source_id", "")
	if accountSourceID == "" {
		return mcp.NewToolResultError("account_source_id is required"), nil
	}
	content := req.GetString("content", "")
	if content == "" {
		return mcp.NewToolResultError("content is required"), nil
	}

	kind := req.GetString("channel_kind", "unknown")
	source := req.GetString("account_source", kind)
	role := req.GetString("role", "user")

	var replyTo *int64
	if v := req.GetInt("reply_to_id", 0); v > 0 {
		id := int64(v)
		replyTo = &id
	}

	accountID, err := s.kb.UpsertAccount(ctx, accountName, source, accountSourceID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to upsert account: %v", err)), nil
	}
	chanRowID, err := s.kb.UpsertChannel(ctx, channelID, kind, req.GetString("channel_name", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to upsert channel: %v", err)), nil
	}

	msgID, err := s.kb.AddMessage(ctx, chanRowID, accountID, role, content, replyTo)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to log message: %v", err)), nil
	}

	result := map[string]any{
		"id":         msgID,
		"channel_id": chanRowID,
		"account_id": accountID,
	}
	jsonResult, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(jsonResult)), nil
}

func (s *Server) handleRecentMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	channelID := req.GetString("channel_id", "")
	if channelID == "" {
		return mcp.NewToolResultError("channel_id is required"), nil
	}
	limit := req.GetInt("limit", 20)

	channel, err := s.kb.Store().GetChannelByChannelID(ctx, channelID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to look up channel: %v", err)), nil
	}
	if channel == nil {
		return mcp.NewToolResultError("channel not found"), nil
	}

	messages, err := s.kb.RecentMessages(ctx, channel.ID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list messages: %v", err)), nil
	}

	var formatted []map[string]any
	for _, m := range messages {
		entry := map[string]any{
			"id":         m.ID,
			"account_id": m.AccountID,
			"role":       m.Role,
			"content":    m.Content,
			"created_at": m.CreatedAt.Format(time.RFC3339),
		}
		if m.ReplyToID != nil {
			entry["reply_to_id"] = *m.ReplyToID
		}
		formatted = append(formatted, entry)
	}

	jsonResult, _ := json.MarshalIndent(formatted, "", "  ")
	return mcp.NewToolResultText(string(jsonResult)), nil
}

func (s *Server) handleListChannels(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind := req.GetString("kind", "")
	if kind == "" {
		return mcp.NewToolResultError("kind is required"), nil
	}

	channels, err := s.kb.Store().ListChannelsByKind(ctx, kind)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list channels: %v", err)), nil
	}

	var formatted []map[string]any
	for _, ch := range channels {
		formatted = append(formatted, map[string]any{
			"id":         ch.ID,
			"channel_id": ch.ChannelID,
			"kind":       ch.Kind,
			"name":       ch.Name,
		})
	}

	jsonResult, _ := json.MarshalIndent(formatted, "", "  ")
	return mcp.NewToolResultText(string(jsonResult)), nil
}

func (s *Server) handleConversationBetween(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	accountA := int64(req.GetInt("account_a", 0))
	accountB := int64(req.GetInt("account_b", 0))
	if accountA <= 0 || accountB <= 0 {
		return mcp.NewToolResultError("account_a and account_b are required"), nil
	}
	limit := req.GetInt("limit", 50)

	var since time.Time
	if v := req.GetString("since", ""); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid since timestamp: %v", err)), nil
		}
		since = parsed.UTC()
	}

	messages, err := s.kb.MessagesBetween(ctx, accountA, accountB, since, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list messages: %v", err)), nil
	}

	var formatted []map[string]any
	for _, m := range messages {
		formatted = append(formatted, map[string]any{
			"id":         m.ID,
			"channel_id": m.ChannelID,
			"account_id": m.AccountID,
			"role":       m.Role,
			"content":    m.Content,
			"created_at": m.CreatedAt.Format(time.RFC3339),
		})
	}

	jsonResult, _ := json.MarshalIndent(formatted, "", "  ")
	return mcp.NewToolResultText(string(jsonResult)), nil
}

func (s *Server) handleGetStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.kb.Store().Stats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
	}

	result := map[string]any{
		"accounts":          stats.Accounts,
		"channels":          stats.Channels,
		"messages":          stats.Messages,
		"documents":         stats.Documents,
		"document_vectors":  stats.DocVectors,
		"message_vectors":   stats.MsgVectors,
		"db_size":           formatBytes(stats.DBSizeBytes),
		"embedding_model":   s.config.Embedding.Model,
		"chunking_strategy": s.config.Chunking.Strategy,
	}
	jsonResult, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(jsonResult)), nil
}

func (s *Server) defaultLimit() int {
	if s.config != nil && s.config.Search.DefaultLimit > 0 {
		return s.config.Search.DefaultLimit
	}
	return 10
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
