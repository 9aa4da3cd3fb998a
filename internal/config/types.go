package config

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderGoogle ProviderType = "google"
	ProviderOllama ProviderType = "ollama"
)

// IndexBackend selects the vector index implementation.
type IndexBackend string

const (
	// IndexSQLite persists chunks and embeddings in the SQLite database.
	IndexSQLite IndexBackend = "sqlite"
	// IndexMemory keeps the index in memory only (dev and tests).
	IndexMemory IndexBackend = "memory"
)

// Config is the top-level docsentry configuration, corresponding to .docsentry.yml.
type Config struct {
	Provider          ProviderType `yaml:"provider" koanf:"provider"`
	Model             string       `yaml:"model" koanf:"model"`
	EmbeddingProvider ProviderType `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel    string       `yaml:"embedding_model" koanf:"embedding_model"`

	DataDir      string       `yaml:"data_dir" koanf:"data_dir"`
	IndexBackend IndexBackend `yaml:"index_backend" koanf:"index_backend"`

	ChunkSize    int `yaml:"chunk_size" koanf:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" koanf:"chunk_overlap"`

	TopK          int     `yaml:"top_k" koanf:"top_k"`
	HistoryBudget int     `yaml:"history_budget" koanf:"history_budget"`
	Temperature   float64 `yaml:"temperature" koanf:"temperature"`

	GenerateTimeoutSec int `yaml:"generate_timeout_sec" koanf:"generate_timeout_sec"`
	GenerateRetries    int `yaml:"generate_retries" koanf:"generate_retries"`
	RateLimitRPM       int `yaml:"rate_limit_rpm" koanf:"rate_limit_rpm"`

	Include []string `yaml:"include" koanf:"include"`
	Exclude []string `yaml:"exclude" koanf:"exclude"`

	Server ServerConfig `yaml:"server" koanf:"server"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int  `yaml:"port" koanf:"port"`
	AllowAll bool `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}
