package cmd

import (
	"fmt"
	"os"

	"github.com/docsentry/docsentry/internal/config"
	"github.com/docsentry/docsentry/internal/db"
	"github.com/docsentry/docsentry/internal/embeddings"
	"github.com/docsentry/docsentry/internal/index"
	"github.com/docsentry/docsentry/internal/llm"
)

// loadConfig loads and validates the config, with a hint when it is missing.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `docsentry init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// createEmbedderFromConfig creates an embeddings.Embedder based on config.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	provider := cfg.EmbeddingProvider
	if provider == "" {
		provider = cfg.Provider
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = config.DefaultEmbeddingModel(provider)
	}

	switch provider {
	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI embeddings")
		}
		return embeddings.NewOpenAIEmbedder(apiKey, model), nil
	case config.ProviderGoogle:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderGoogle))
		if apiKey == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY environment variable is required for Google embeddings")
		}
		return embeddings.NewGoogleEmbedder(apiKey, model, ""), nil
	case config.ProviderOllama:
		return embeddings.NewOllamaEmbedder(model, 768, os.Getenv("OLLAMA_HOST")), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", provider)
	}
}

// createLLMProviderFromConfig creates an LLM provider based on config,
// wrapping it with a rate limiter when one is configured.
func createLLMProviderFromConfig(cfg *config.Config) (llm.Provider, error) {
	provider, err := llm.NewProvider(string(cfg.Provider), cfg.Model)
	if err != nil {
		return nil, err
	}
	if cfg.RateLimitRPM > 0 {
		provider = llm.NewRateLimitedProvider(provider, cfg.RateLimitRPM)
	}
	return provider, nil
}

// createIndexFromConfig creates the configured vector index backend.
func createIndexFromConfig(cfg *config.Config, database *db.DB, embedder embeddings.Embedder) (index.Index, error) {
	switch cfg.IndexBackend {
	case config.IndexMemory:
		return index.NewMemoryIndex(embedder)
	case config.IndexSQLite, "":
		return index.NewSQLiteIndex(database), nil
	default:
		return nil, fmt.Errorf("unsupported index backend %q", cfg.IndexBackend)
	}
}
