package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for an Assistant.
//
// Example:
//
//	config := &core.Config{
//	    LLM: core.LLMConfig{
//	        Provider: "openai",
//	        APIKey:   "sk-...",
//	        Model:    "gpt-4o-mini",
//	    },
//	    TextEmbedder: core.EmbedderConfig{
//	        Provider:   "openai",
//	        APIKey:     "sk-...",
//	        Model:      "text-embedding-3-small",
//	        Dimensions: 1536,
//	    },
//	    VectorStore: core.VectorStoreConfig{
//	        Provider: "sqlite",
//	        Config: map[string]interface{}{
//	            "db_path": "./memories.db",
//	        },
//	    },
//	}
type Config struct {
	// LLM contains LLM provider configuration for answer generation.
	LLM LLMConfig `json:"llm"`

	// TextEmbedder embeds text-born content (text, documents, audio
	// transcripts) into the text space.
	TextEmbedder EmbedderConfig `json:"text_embedder"`

	// ImageEmbedder embeds image references into the image space.
	// Optional; image ingestion fails cleanly when absent.
	ImageEmbedder *EmbedderConfig `json:"image_embedder,omitempty"`

	// VectorStore contains vector store configuration.
	VectorStore VectorStoreConfig `json:"vector_store"`

	// Lifecycle tunes the confidence model (optional).
	Lifecycle *LifecycleConfig `json:"lifecycle,omitempty"`

	// LogFile, when set, mirrors logs as JSON to the given file in
	// addition to text on stderr.
	LogFile string `json:"log_file,omitempty"`
}

// LLMConfig contains configuration for the LLM provider.
//
// Supported providers: openai (and any OpenAI-compatible endpoint via
// BaseURL).
type LLMConfig struct {
	// Provider is the LLM provider name.
	Provider string `json:"provider"`

	// APIKey is the API key for the LLM provider.
	APIKey string `json:"api_key"`

	// Model is the model name to use.
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional).
	BaseURL string `json:"base_url,omitempty"`
}

// EmbedderConfig contains configuration for an embedding provider.
type EmbedderConfig struct {
	// Provider is the embedding provider name.
	Provider string `json:"provider"`

	// APIKey is the API key for the embedding provider.
	APIKey string `json:"api_key"`

	// Model is the embedding model name.
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional).
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the dimension of the embedding vectors.
	Dimensions int `json:"dimensions,omitempty"`

	// RequestsPerSecond caps the embedding request rate. Zero disables
	// limiting.
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`
}

// VectorStoreConfig contains configuration for the vector store.
//
// Supported providers: sqlite, postgres, oceanbase, memory.
type VectorStoreConfig struct {
	// Provider is the vector store provider name.
	Provider string `json:"provider"`

	// Config contains provider-specific configuration.
	// For SQLite: db_path, table
	// For PostgreSQL: host, port, user, password, db_name, table, ssl_mode
	// For OceanBase: host, port, user, password, db_name, table
	Config map[string]interface{} `json:"config"`
}

// LifecycleConfig tunes the confidence model.
type LifecycleConfig struct {
	// MergeThreshold is the cosine similarity at or above which ingestion
	// reinforces instead of creating. Defaults to 0.85.
	MergeThreshold float64 `json:"merge_threshold,omitempty"`

	// MinScore is the default combined-score retrieval threshold.
	// Defaults to 0.2.
	MinScore float64 `json:"min_score,omitempty"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - DATABASE_PROVIDER (sqlite, postgres, oceanbase, memory)
//   - SQLITE_PATH, SQLITE_TABLE
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, etc.
//   - OCEANBASE_HOST, OCEANBASE_PORT, OCEANBASE_USER, OCEANBASE_PASSWORD, etc.
//   - LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_BASE_URL
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL,
//     EMBEDDING_BASE_URL, EMBEDDING_DIMS, EMBEDDING_RPS
//   - IMAGE_EMBEDDING_API_KEY, IMAGE_EMBEDDING_MODEL,
//     IMAGE_EMBEDDING_BASE_URL, IMAGE_EMBEDDING_DIMS
//   - LOG_FILE
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("DATABASE_PROVIDER", "sqlite")

	vectorStoreConfig := make(map[string]interface{})
	switch provider {
	case "sqlite":
		vectorStoreConfig = map[string]interface{}{
			"db_path": getEnvOrDefault("SQLITE_PATH", "./memories.db"),
			"table":   getEnvOrDefault("SQLITE_TABLE", "memories"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		vectorStoreConfig = map[string]interface{}{
			"host":     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":     port,
			"user":     getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password": os.Getenv("POSTGRES_PASSWORD"),
			"db_name":  getEnvOrDefault("POSTGRES_DATABASE", "memassist"),
			"table":    getEnvOrDefault("POSTGRES_TABLE", "memories"),
			"ssl_mode": getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "oceanbase":
		port, _ := strconv.Atoi(getEnvOrDefault("OCEANBASE_PORT", "2881"))
		vectorStoreConfig = map[string]interface{}{
			"host":     getEnvOrDefault("OCEANBASE_HOST", "127.0.0.1"),
			"port":     port,
			"user":     getEnvOrDefault("OCEANBASE_USER", "root@sys"),
			"password": os.Getenv("OCEANBASE_PASSWORD"),
			"db_name":  getEnvOrDefault("OCEANBASE_DATABASE", "memassist"),
			"table":    getEnvOrDefault("OCEANBASE_TABLE", "memories"),
		}
	}

	textDims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMS", "1536"))
	textRPS, _ := strconv.ParseFloat(getEnvOrDefault("EMBEDDING_RPS", "0"), 64)

	config := &Config{
		LLM: LLMConfig{
			Provider: getEnvOrDefault("LLM_PROVIDER", "openai"),
			APIKey:   os.Getenv("LLM_API_KEY"),
			Model:    getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
			BaseURL:  os.Getenv("LLM_BASE_URL"),
		},
		TextEmbedder: EmbedderConfig{
			Provider:          getEnvOrDefault("EMBEDDING_PROVIDER", "openai"),
			APIKey:            os.Getenv("EMBEDDING_API_KEY"),
			Model:             getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
			BaseURL:           os.Getenv("EMBEDDING_BASE_URL"),
			Dimensions:        textDims,
			RequestsPerSecond: textRPS,
		},
		VectorStore: VectorStoreConfig{
			Provider: provider,
			Config:   vectorStoreConfig,
		},
		LogFile: os.Getenv("LOG_FILE"),
	}

	// The image space is configured only when its model is named.
	if model := os.Getenv("IMAGE_EMBEDDING_MODEL"); model != "" {
		imageDims, _ := strconv.Atoi(getEnvOrDefault("IMAGE_EMBEDDING_DIMS", "512"))
		config.ImageEmbedder = &EmbedderConfig{
			Provider:   getEnvOrDefault("IMAGE_EMBEDDING_PROVIDER", "openai"),
			APIKey:     getEnvOrDefault("IMAGE_EMBEDDING_API_KEY", os.Getenv("EMBEDDING_API_KEY")),
			Model:      model,
			BaseURL:    os.Getenv("IMAGE_EMBEDDING_BASE_URL"),
			Dimensions: imageDims,
		}
	}

	return config, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}
	return &config, nil
}

// Validate validates the configuration.
//
// The LLM, text embedder, and vector store providers are required. The image
// embedder is optional.
func (c *Config) Validate() error {
	if c.LLM.Provider == "" {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	if c.TextEmbedder.Provider == "" {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	if c.VectorStore.Provider == "" {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search checks the current directory first, then up to 5 directory
// levels up, returning the first match.
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}
