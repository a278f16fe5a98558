package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateEmbeddingProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantErr  bool
	}{
		{"ollama", false},
		{"openai", false},
		{"voyage", true},
		{"", true},
		{"OLLAMA", true}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Embedding.Provider = tt.provider
			cfg.Embedding.APIKey = "test-key"
			errs := Validate(cfg)

			hasErr := len(errs) > 0
			if hasErr != tt.wantErr {
				t.Errorf("Validate(provider=%q) errs=%v, wantErr=%v", tt.provider, errs, tt.wantErr)
			}
		})
	}
}

func TestValidateUnknownProviderAllowedWithPlugins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.Provider = "custom"
	cfg.Plugins.Dir = "/opt/plugins"

	if errs := Validate(cfg); len(errs) > 0 {
		t.Errorf("unexpected errors with plugin dir set: %v", errs)
	}
}

func TestValidateOpenAIRequiresAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.Provider = "openai"
	cfg.Embedding.APIKey = ""

	if errs := Validate(cfg); len(errs) == 0 {
		t.Error("expected error for openai without API key")
	}
}

func TestValidateDimensions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.APIKey = "test-key"
	cfg.Embedding.Dimensions = 0

	if errs := Validate(cfg); len(errs) == 0 {
		t.Error("expected error for zero dimensions")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	root := t.TempDir()

	cfg, warnings, err := Load(root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(warnings) == 0 {
		t.Error("expected a warning about missing config file")
	}
	if cfg.Embedding.Provider != "openai" || cfg.Embedding.Dimensions != 1536 {
		t.Errorf("unexpected defaults: %+v", cfg.Embedding)
	}
	if cfg.Search.DefaultLimit != 10 {
		t.Errorf("default search limit = %d, want 10", cfg.Search.DefaultLimit)
	}
}

func TestLoadPartialConfigFillsDefaults(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(ConfigDir(root), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	yaml := "embedding:\n  provider: ollama\n  endpoint: http://localhost:11434\n"
	if err := os.WriteFile(ConfigPath(root), []byte(yaml), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, _, err := Load(root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("provider = %q, want ollama", cfg.Embedding.Provider)
	}
	if cfg.Embedding.BatchSize != 32 {
		t.Errorf("batch size = %d, want default 32", cfg.Embedding.BatchSize)
	}
	if cfg.Chunking.Strategy != "simple" {
		t.Errorf("chunking strategy = %q, want default simple", cfg.Chunking.Strategy)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	root := t.TempDir()

	cfg := DefaultConfig()
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.Model = "nomic-embed-text"
	cfg.Embedding.Dimensions = 768
	cfg.Store.Path = filepath.Join(root, "custom.db")

	if err := Save(root, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, _, err := Load(root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Embedding.Model != "nomic-embed-text" {
		t.Errorf("model = %q, want nomic-embed-text", loaded.Embedding.Model)
	}
	if loaded.Embedding.Dimensions != 768 {
		t.Errorf("dimensions = %d, want 768", loaded.Embedding.Dimensions)
	}
	if loaded.StorePath(root) != cfg.Store.Path {
		t.Errorf("store path = %q, want %q", loaded.StorePath(root), cfg.Store.Path)
	}
}

func TestHashTracksEmbeddingSettings(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	if a.Hash() != b.Hash() {
		t.Error("identical configs should hash equal")
	}

	b.Embedding.Model = "text-embedding-3-large"
	if a.Hash() == b.Hash() {
		t.Error("model change should change hash")
	}
}
