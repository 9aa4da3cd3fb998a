package config

import (
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to the given path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to docsentry! Let's configure your document QA service.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Generation provider.
	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"google", "openai", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	cfg.Provider = ProviderType(providerStr)
	cfg.Model = DefaultModel(cfg.Provider)

	// 2. Embedding provider (defaults to the generation provider).
	embedPrompt := promptui.Select{
		Label: "Select embedding provider",
		Items: []string{providerStr, "google", "openai", "ollama"},
	}
	_, embedStr, err := embedPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("embedding provider selection: %w", err)
	}
	cfg.EmbeddingProvider = ProviderType(embedStr)
	cfg.EmbeddingModel = DefaultEmbeddingModel(cfg.EmbeddingProvider)

	// 3. Index backend.
	backendPrompt := promptui.Select{
		Label: "Select vector index backend",
		Items: []string{
			"sqlite (durable, survives restarts)",
			"memory (fast, rebuilt on every start)",
		},
	}
	backendIdx, _, err := backendPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("index backend selection: %w", err)
	}
	cfg.IndexBackend = []IndexBackend{IndexSQLite, IndexMemory}[backendIdx]

	// 4. Data directory.
	dataPrompt := promptui.Prompt{
		Label:   "Data directory",
		Default: cfg.DataDir,
	}
	dataDir, err := dataPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("data directory prompt: %w", err)
	}
	cfg.DataDir = dataDir

	// 5. Server port.
	portPrompt := promptui.Prompt{
		Label:   "HTTP port",
		Default: strconv.Itoa(cfg.Server.Port),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 65535 {
				return fmt.Errorf("enter a port between 1 and 65535")
			}
			return nil
		},
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("port prompt: %w", err)
	}
	cfg.Server.Port, _ = strconv.Atoi(portStr)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if err := cfg.Save(path); err != nil {
		return nil, err
	}

	fmt.Println()
	fmt.Printf("Configuration written to %s\n", path)
	apiVar := APIKeyEnvVar(cfg.Provider)
	if apiVar != "" {
		fmt.Printf("Remember to set %s before starting the server.\n", apiVar)
	}

	return cfg, nil
}
