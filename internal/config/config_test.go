package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty provider", func(c *Config) { c.Provider = "" }, "provider is required"},
		{"unknown provider", func(c *Config) { c.Provider = "cohere" }, "invalid provider"},
		{"empty model", func(c *Config) { c.Model = "" }, "model is required"},
		{"bad embedding provider", func(c *Config) { c.EmbeddingProvider = "x" }, "invalid embedding_provider"},
		{"bad backend", func(c *Config) { c.IndexBackend = "redis" }, "invalid index_backend"},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, "data_dir is required"},
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }, "chunk_size"},
		{"negative overlap", func(c *Config) { c.ChunkOverlap = -1 }, "chunk_overlap"},
		{"overlap >= size", func(c *Config) { c.ChunkOverlap = c.ChunkSize }, "chunk_overlap"},
		{"zero k", func(c *Config) { c.TopK = 0 }, "top_k"},
		{"zero budget", func(c *Config) { c.HistoryBudget = 0 }, "history_budget"},
		{"bad temperature", func(c *Config) { c.Temperature = 3 }, "temperature"},
		{"zero timeout", func(c *Config) { c.GenerateTimeoutSec = 0 }, "generate_timeout_sec"},
		{"negative retries", func(c *Config) { c.GenerateRetries = -1 }, "generate_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ChunkSize != 1000 || cfg.ChunkOverlap != 200 || cfg.TopK != 4 {
		t.Errorf("unexpected defaults: chunk=%d overlap=%d k=%d", cfg.ChunkSize, cfg.ChunkOverlap, cfg.TopK)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".docsentry.yml")
	content := "provider: openai\nmodel: gpt-4o\nchunk_size: 500\nchunk_overlap: 50\nserver:\n  port: 9999\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != ProviderOpenAI {
		t.Errorf("provider = %s, want openai", cfg.Provider)
	}
	if cfg.ChunkSize != 500 || cfg.ChunkOverlap != 50 {
		t.Errorf("chunking = %d/%d, want 500/50", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	// Untouched fields keep their defaults.
	if cfg.TopK != 4 {
		t.Errorf("top_k = %d, want default 4", cfg.TopK)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DOCSENTRY_MODEL", "gemini-1.5-pro")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "gemini-1.5-pro" {
		t.Errorf("model = %s, want env override gemini-1.5-pro", cfg.Model)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yml")

	cfg := DefaultConfig()
	cfg.Model = "gpt-4o"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Model != "gpt-4o" {
		t.Errorf("model = %s, want gpt-4o", loaded.Model)
	}
}
