// mcp-knowledge is an MCP server for a persistent knowledge base with
// semantic retrieval.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	_ "github.com/spetr/mcp-knowledge/builtin" // registers built-in providers
	"github.com/spetr/mcp-knowledge/internal/config"
	"github.com/spetr/mcp-knowledge/internal/ingest"
	"github.com/spetr/mcp-knowledge/internal/kb"
	"github.com/spetr/mcp-knowledge/internal/mcp"
	"github.com/spetr/mcp-knowledge/internal/store/sqlite"
	"github.com/spetr/mcp-knowledge/pkg/plugin/host"
	"github.com/spetr/mcp-knowledge/pkg/provider"
)

var (
	version   = "0.1.0"
	cfgFile   string
	logLevel  string
	logFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mcp-knowledge",
	Short: "MCP server for a persistent knowledge base",
	Long: `mcp-knowledge is an MCP server that stores documents and
conversation logs and retrieves them by semantic similarity.

It supports:
- Multiple embedding providers (Ollama, OpenAI, external plugins)
- Document chunking for long texts
- Message logging with accounts and channels
- Directory ingestion with file watching`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mcp-knowledge %s\n", version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start MCP server",
	Run: func(cmd *cobra.Command, args []string) {
		stdio, _ := cmd.Flags().GetBool("stdio")
		runServe(stdio)
	},
}

var addCmd = &cobra.Command{
	Use:   "add <doc-id> [file]",
	Short: "Add a document to the knowledge base",
	Long:  `Add a document to the knowledge base. Content is read from the given file, or from stdin when no file is provided.`,
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		file := ""
		if len(args) > 1 {
			file = args[1]
		}
		runAdd(args[0], file)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the knowledge base",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		messages, _ := cmd.Flags().GetBool("messages")
		runSearch(args[0], limit, messages)
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent <channel-id>",
	Short: "Show the most recent messages in a channel",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		runRecent(args[0], limit)
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Ingest a directory of documents",
	Long:  `Ingest every matching file in a directory as a document. With --watch, keep running and re-ingest files as they change.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := ""
		if len(args) > 0 {
			dir = args[0]
		}
		watch, _ := cmd.Flags().GetBool("watch")
		debounce, _ := cmd.Flags().GetInt("debounce")
		runIngest(dir, watch, debounce)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	Run: func(cmd *cobra.Command, args []string) {
		runStats()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration",
	Run: func(cmd *cobra.Command, args []string) {
		runConfigInit()
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Run: func(cmd *cobra.Command, args []string) {
		runConfigValidate()
	},
}

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Plugin management",
}

var pluginListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available embedding plugins",
	Run: func(cmd *cobra.Command, args []string) {
		runPluginList()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: .mcp-knowledge/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	serveCmd.Flags().Bool("stdio", false, "use stdio transport (for MCP)")

	searchCmd.Flags().IntP("limit", "l", 10, "maximum results")
	searchCmd.Flags().BoolP("messages", "m", false, "search messages instead of documents")

	recentCmd.Flags().IntP("limit", "l", 20, "maximum messages")

	ingestCmd.Flags().BoolP("watch", "w", false, "keep watching for changes")
	ingestCmd.Flags().Int("debounce", 500, "debounce time in milliseconds")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	pluginCmd.AddCommand(pluginListCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(pluginCmd)
}

func setupLogging() {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// createEmbedding creates the embedding provider named by config and warms
// it up. A warmup failure is logged, not fatal; the provider may still come
// up before the first embed call.
func createEmbedding(ctx context.Context, cfg *config.Config, plugins *host.Manager) (provider.EmbeddingProvider, error) {
	embedding, err := newEmbedding(cfg, plugins)
	if err != nil {
		return nil, err
	}
	if err := embedding.Warmup(ctx); err != nil {
		slog.Warn("embedding warmup failed", "error", err)
	}
	return embedding, nil
}

// newEmbedding constructs the provider named by config, falling back to the
// plugin directory for unknown providers.
func newEmbedding(cfg *config.Config, plugins *host.Manager) (provider.EmbeddingProvider, error) {
	if provider.DefaultRegistry.HasEmbedding(cfg.Embedding.Provider) {
		return provider.DefaultRegistry.CreateEmbedding(cfg.Embedding.Provider, provider.EmbeddingConfig{
			Provider:   cfg.Embedding.Provider,
			Model:      cfg.Embedding.Model,
			Endpoint:   cfg.Embedding.Endpoint,
			APIKey:     cfg.Embedding.APIKey,
			BatchSize:  cfg.Embedding.BatchSize,
			Dimensions: cfg.Embedding.Dimensions,
		})
	}

	if plugins != nil {
		loaded, err := plugins.LoadPlugin(cfg.Embedding.Provider)
		if err == nil {
			return host.NewEmbeddingAdapter(loaded.Embedding), nil
		}
		return nil, fmt.Errorf("unsupported embedding provider %s: %w", cfg.Embedding.Provider, err)
	}

	return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
}

// createChunker creates the chunking strategy named by config. A nil
// chunker means documents are embedded whole.
func createChunker(cfg *config.Config) provider.Chunker {
	if cfg.Chunking.Strategy == "none" {
		return nil
	}

	strategy := cfg.Chunking.Strategy
	if !provider.DefaultRegistry.HasChunking(strategy) {
		strategy = "simple"
	}
	chunker, err := provider.DefaultRegistry.CreateChunking(strategy, provider.ChunkingConfig{
		Strategy:     strategy,
		MaxChunkSize: cfg.Chunking.MaxChunkSize,
	})
	if err != nil {
		return nil
	}
	return chunker
}

// openKnowledgeBase loads config and wires the store, the embedding
// provider and the chunker together. The returned cleanup closes
// everything.
func openKnowledgeBase() (*kb.KnowledgeBase, *config.Config, func(), error) {
	cwd, _ := os.Getwd()

	cfg, warnings, err := config.Load(cwd)
	if err != nil {
		return nil, nil, nil, err
	}
	for _, w := range warnings {
		slog.Warn(w)
	}

	var plugins *host.Manager
	if cfg.Plugins.Dir != "" {
		plugins = host.NewManager(cfg.Plugins.Dir)
	}

	embedding, err := createEmbedding(context.Background(), cfg, plugins)
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := sqlite.Open(cfg.StorePath(cwd), cfg.Embedding.Dimensions)
	if err != nil {
		embedding.Close()
		if plugins != nil {
			plugins.UnloadAll()
		}
		return nil, nil, nil, err
	}

	knowledge := kb.New(kb.Config{
		Store:     store,
		Embedding: embedding,
		Chunker:   createChunker(cfg),
	})

	cleanup := func() {
		if err := store.Close(); err != nil {
			slog.Warn("failed to close store", "error", err)
		}
		if err := embedding.Close(); err != nil {
			slog.Warn("failed to close embedding provider", "error", err)
		}
		if plugins != nil {
			plugins.UnloadAll()
		}
	}

	return knowledge, cfg, cleanup, nil
}

func runServe(stdio bool) {
	slog.Info("starting MCP server", "stdio", stdio)

	knowledge, cfg, cleanup, err := openKnowledgeBase()
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
		cleanup()
		slog.Info("shutdown complete")
		os.Exit(0)
	}()

	defer func() {
		signal.Stop(sigChan)
		cleanup()
	}()

	server, err := mcp.New(mcp.Config{
		Config: cfg,
		KB:     knowledge,
	})
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if stdio {
		slog.Info("MCP server running (press Ctrl+C to stop)")
		if err := server.ServeStdio(); err != nil {
			if ctx.Err() != nil {
				slog.Info("server stopped")
			} else {
				slog.Error("server error", "error", err)
				os.Exit(1)
			}
		}
	} else {
		fmt.Println("HTTP transport not implemented. Use --stdio for MCP.")
		os.Exit(1)
	}
}

func runAdd(docID, file string) {
	var content []byte
	var err error

	if file == "" || file == "-" {
		content, err = io.ReadAll(os.Stdin)
	} else {
		content, err = os.ReadFile(file)
	}
	if err != nil {
		slog.Error("failed to read content", "error", err)
		os.Exit(1)
	}
	if len(content) == 0 {
		slog.Error("no content to add")
		os.Exit(1)
	}

	knowledge, _, cleanup, err := openKnowledgeBase()
	if err != nil {
		slog.Error("failed to open knowledge base", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	start := time.Now()
	if _, err := knowledge.AddDocument(context.Background(), docID, string(content)); err != nil {
		slog.Error("failed to add document", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Added %s (%d bytes) in %s\n", docID, len(content), time.Since(start).Round(time.Millisecond))
}

func runSearch(query string, limit int, messages bool) {
	knowledge, cfg, cleanup, err := openKnowledgeBase()
	if err != nil {
		slog.Error("failed to open knowledge base", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	if limit <= 0 {
		limit = cfg.Search.DefaultLimit
	}

	ctx := context.Background()

	if messages {
		matches, err := knowledge.SearchMessages(ctx, query, limit)
		if err != nil {
			slog.Error("search failed", "error", err)
			os.Exit(1)
		}
		if len(matches) == 0 {
			fmt.Println("No results.")
			return
		}
		for i, m := range matches {
			fmt.Printf("%d. [%.4f] %s %s: %s\n",
				i+1, m.Distance,
				m.Message.CreatedAt.Format("2006-01-02 15:04"),
				m.Message.Role, m.Message.Content)
		}
		return
	}

	matches, err := knowledge.SearchDocuments(ctx, query, limit)
	if err != nil {
		slog.Error("search failed", "error", err)
		os.Exit(1)
	}
	if len(matches) == 0 {
		fmt.Println("No results.")
		return
	}
	for i, m := range matches {
		preview := m.Document.Content
		if len(preview) > 120 {
			cut := 120
			for cut > 0 && !utf8.RuneStart(preview[cut]) {
				cut--
			}
			preview = preview[:cut] + "..."
		}
		fmt.Printf("%d. [%.4f] %s\n   %s\n", i+1, m.Distance, m.DocID, preview)
	}
}

func runRecent(channelID string, limit int) {
	knowledge, _, cleanup, err := openKnowledgeBase()
	if err != nil {
		slog.Error("failed to open knowledge base", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx := context.Background()

	channel, err := knowledge.Store().GetChannelByChannelID(ctx, channelID)
	if err != nil {
		slog.Error("failed to look up channel", "error", err)
		os.Exit(1)
	}
	if channel == nil {
		fmt.Printf("Channel not found: %s\n", channelID)
		os.Exit(1)
	}

	msgs, err := knowledge.RecentMessages(ctx, channel.ID, limit)
	if err != nil {
		slog.Error("failed to list messages", "error", err)
		os.Exit(1)
	}
	for _, m := range msgs {
		fmt.Printf("[%s] #%d %s: %s\n",
			m.CreatedAt.Format("2006-01-02 15:04:05"), m.ID, m.Role, m.Content)
	}
}

func runIngest(dir string, watch bool, debounceMs int) {
	knowledge, cfg, cleanup, err := openKnowledgeBase()
	if err != nil {
		slog.Error("failed to open knowledge base", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	if dir == "" {
		dir = cfg.Ingest.Dir
	}
	if dir == "" {
		slog.Error("no ingest directory given (set ingest.dir or pass one)")
		os.Exit(1)
	}

	ing, err := ingest.New(ingest.Config{
		KB:           knowledge,
		Dir:          dir,
		Include:      cfg.Ingest.Include,
		Exclude:      cfg.Ingest.Exclude,
		DebounceTime: time.Duration(debounceMs) * time.Millisecond,
	})
	if err != nil {
		slog.Error("failed to create ingestor", "error", err)
		os.Exit(1)
	}
	defer ing.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !watch {
		count, err := ing.Scan(ctx)
		if err != nil {
			slog.Error("scan failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Ingested %d documents from %s\n", count, dir)
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := ing.Watch(ctx); err != nil && ctx.Err() == nil {
		slog.Error("watch failed", "error", err)
		os.Exit(1)
	}
}

func runStats() {
	knowledge, cfg, cleanup, err := openKnowledgeBase()
	if err != nil {
		slog.Error("failed to open knowledge base", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	stats, err := knowledge.Store().Stats()
	if err != nil {
		slog.Error("failed to get stats", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Accounts:         %d\n", stats.Accounts)
	fmt.Printf("Channels:         %d\n", stats.Channels)
	fmt.Printf("Messages:         %d\n", stats.Messages)
	fmt.Printf("Documents:        %d\n", stats.Documents)
	fmt.Printf("Document vectors: %d\n", stats.DocVectors)
	fmt.Printf("Message vectors:  %d\n", stats.MsgVectors)
	fmt.Printf("Database size:    %s\n", formatBytes(stats.DBSizeBytes))
	fmt.Printf("Embedding:        %s/%s (%d dims)\n",
		cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Dimensions)
}

func runConfigInit() {
	cwd, _ := os.Getwd()
	cfg := config.DefaultConfig()

	if err := config.Save(cwd, cfg); err != nil {
		slog.Error("failed to save config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Created config at %s\n", config.ConfigPath(cwd))
}

func runConfigValidate() {
	cwd, _ := os.Getwd()

	cfg, warnings, err := config.Load(cwd)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	for _, w := range warnings {
		fmt.Printf("Warning: %s\n", w)
	}

	errs := config.Validate(cfg)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Printf("Error: %v\n", e)
		}
		os.Exit(1)
	}

	fmt.Println("Configuration is valid")
}

func runPluginList() {
	cwd, _ := os.Getwd()

	cfg, _, err := config.Load(cwd)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Plugins.Dir == "" {
		fmt.Println("No plugin directory configured (set plugins.dir)")
		return
	}

	manager := host.NewManager(cfg.Plugins.Dir)
	plugins, err := manager.DiscoverPlugins()
	if err != nil {
		slog.Error("failed to discover plugins", "error", err)
		os.Exit(1)
	}

	if len(plugins) == 0 {
		fmt.Printf("No plugins found in %s\n", cfg.Plugins.Dir)
		return
	}
	for _, name := range plugins {
		fmt.Println(name)
	}
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
