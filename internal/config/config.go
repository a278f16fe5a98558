// Package config handles configuration loading and validation.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete configuration.
type Config struct {
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Chunking  ChunkingConfig  `mapstructure:"chunking" yaml:"chunking"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Search    SearchConfig    `mapstructure:"search" yaml:"search"`
	Ingest    IngestConfig    `mapstructure:"ingest" yaml:"ingest"`
	Plugins   PluginsConfig   `mapstructure:"plugins" yaml:"plugins"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider" yaml:"provider"`     // ollama, openai
	Model      string `mapstructure:"model" yaml:"model"`           // model name
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint"`     // API endpoint
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`       // API key
	BatchSize  int    `mapstructure:"batch_size" yaml:"batch_size"` // texts per batch
	Dimensions int    `mapstructure:"dimensions" yaml:"dimensions"` // embedding dimension
}

// ChunkingConfig contains chunking strategy configuration.
type ChunkingConfig struct {
	Strategy     string `mapstructure:"strategy" yaml:"strategy"`             // simple, none
	MaxChunkSize int    `mapstructure:"max_chunk_size" yaml:"max_chunk_size"` // max characters per chunk
}

// StoreConfig contains database configuration.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"` // SQLite database path
}

// SearchConfig contains search configuration.
type SearchConfig struct {
	DefaultLimit int `mapstructure:"default_limit" yaml:"default_limit"` // default result limit
}

// IngestConfig contains document ingestion configuration.
type IngestConfig struct {
	Dir     string   `mapstructure:"dir" yaml:"dir"`         // directory to watch for documents
	Include []string `mapstructure:"include" yaml:"include"` // glob patterns to include
	Exclude []string `mapstructure:"exclude" yaml:"exclude"` // glob patterns to exclude
}

// PluginsConfig contains provider plugin configuration.
type PluginsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"` // directory scanned for plugin binaries
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			BatchSize:  32,
			Dimensions: 1536,
		},
		Chunking: ChunkingConfig{
			Strategy:     "simple",
			MaxChunkSize: 2000,
		},
		Search: SearchConfig{
			DefaultLimit: 10,
		},
		Ingest: IngestConfig{
			Include: []string{"**/*.md", "**/*.txt"},
			Exclude: []string{"**/.git/**", "**/node_modules/**"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ConfigDir returns the path to the .mcp-knowledge directory.
func ConfigDir(root string) string {
	return filepath.Join(root, ".mcp-knowledge")
}

// ConfigPath returns the path to config.yaml.
func ConfigPath(root string) string {
	return filepath.Join(ConfigDir(root), "config.yaml")
}

// StorePath returns the database path, honoring an explicit override.
func (c *Config) StorePath(root string) string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(ConfigDir(root), "knowledge.db")
}

// Load loads configuration from file, falling back to defaults.
func Load(root string) (*Config, []string, error) {
	cfg := DefaultConfig()
	warnings := []string{}

	configPath := ConfigPath(root)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		warnings = append(warnings, "No config file found, using defaults")
		return cfg, warnings, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply defaults for missing values
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
		warnings = append(warnings, "Using default embedding provider: openai")
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}

	if cfg.Chunking.Strategy == "" {
		cfg.Chunking.Strategy = "simple"
	}
	if cfg.Chunking.MaxChunkSize == 0 {
		cfg.Chunking.MaxChunkSize = 2000
	}

	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}

	// The key can come from the environment instead of the file.
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return cfg, warnings, nil
}

// Save saves configuration to file.
func Save(root string, cfg *Config) error {
	configDir := ConfigDir(root)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(ConfigPath(root))
	v.SetConfigType("yaml")

	v.Set("embedding", cfg.Embedding)
	v.Set("chunking", cfg.Chunking)
	v.Set("store", cfg.Store)
	v.Set("search", cfg.Search)
	v.Set("ingest", cfg.Ingest)
	v.Set("plugins", cfg.Plugins)
	v.Set("logging", cfg.Logging)

	return v.WriteConfig()
}

// Validate validates the configuration.
func Validate(cfg *Config) []error {
	var errs []error

	validEmbeddingProviders := map[string]bool{
		"ollama": true, "openai": true,
	}
	if !validEmbeddingProviders[cfg.Embedding.Provider] && cfg.Plugins.Dir == "" {
		errs = append(errs, fmt.Errorf("invalid embedding provider: %s", cfg.Embedding.Provider))
	}
	if cfg.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("invalid embedding dimensions: %d", cfg.Embedding.Dimensions))
	}
	if cfg.Embedding.Provider == "openai" && cfg.Embedding.APIKey == "" {
		errs = append(errs, fmt.Errorf("openai provider requires an API key"))
	}

	validChunkingStrategies := map[string]bool{
		"simple": true, "none": true, "": true,
	}
	if !validChunkingStrategies[cfg.Chunking.Strategy] {
		errs = append(errs, fmt.Errorf("invalid chunking strategy: %s", cfg.Chunking.Strategy))
	}

	if cfg.Search.DefaultLimit <= 0 {
		errs = append(errs, fmt.Errorf("invalid default search limit: %d", cfg.Search.DefaultLimit))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid log level: %s", cfg.Logging.Level))
	}

	return errs
}

// Hash returns a hash of the configuration that affects stored embeddings.
// A changed hash means existing vectors were produced under different
// settings and searches may be degraded until documents are re-added.
func (c *Config) Hash() string {
	data := fmt.Sprintf("%s:%s:%d:%s:%d",
		c.Embedding.Provider,
		c.Embedding.Model,
		c.Embedding.Dimensions,
		c.Chunking.Strategy,
		c.Chunking.MaxChunkSize,
	)
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}
