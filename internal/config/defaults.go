package config

// embeddingPresets maps each provider to its default embedding model.
var embeddingPresets = map[ProviderType]string{
	ProviderOpenAI: "text-embedding-3-small",
	ProviderGoogle: "text-embedding-004",
	ProviderOllama: "nomic-embed-text",
}

// modelPresets maps each provider to its default generation model.
var modelPresets = map[ProviderType]string{
	ProviderOpenAI: "gpt-4o-mini",
	ProviderGoogle: "gemini-1.5-flash",
	ProviderOllama: "llama3",
}

// DefaultExcludes are glob patterns skipped during bulk ingestion by default.
var DefaultExcludes = []string{
	".git/**",
	"node_modules/**",
	"**/*.tmp",
	"**/~$*",
}

// DefaultConfig returns a Config with the reference defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:          ProviderGoogle,
		Model:             modelPresets[ProviderGoogle],
		EmbeddingProvider: ProviderGoogle,
		EmbeddingModel:    embeddingPresets[ProviderGoogle],

		DataDir:      "data",
		IndexBackend: IndexSQLite,

		ChunkSize:    1000,
		ChunkOverlap: 200,

		TopK:          4,
		HistoryBudget: 2048,
		Temperature:   0.7,

		GenerateTimeoutSec: 30,
		GenerateRetries:    2,
		RateLimitRPM:       0,

		Include: []string{"**/*.pdf", "**/*.txt", "**/*.md"},
		Exclude: DefaultExcludes,

		Server: ServerConfig{
			Port:     8080,
			AllowAll: false,
		},
	}
}

// DefaultModel returns the default generation model for a provider.
func DefaultModel(p ProviderType) string {
	if m, ok := modelPresets[p]; ok {
		return m
	}
	return modelPresets[ProviderGoogle]
}

// DefaultEmbeddingModel returns the default embedding model for a provider.
func DefaultEmbeddingModel(p ProviderType) string {
	if m, ok := embeddingPresets[p]; ok {
		return m
	}
	return embeddingPresets[ProviderGoogle]
}
