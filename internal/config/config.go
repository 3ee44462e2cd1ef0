package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the Winnow server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Embeddings EmbeddingsConfig
	Engine     EngineConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type EmbeddingsConfig struct {
	Provider string
	Timeout  time.Duration
	OpenAI   OpenAIConfig
	Ollama   OllamaConfig
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

// EngineConfig tunes the deduplication batch loop.
type EngineConfig struct {
	SimilarityThreshold float64
	BatchSize           int
	MaxRetries          int
	BackoffBase         time.Duration
	ComparisonPool      string // "all" or "pending"
}

var validProviders = map[string]bool{
	"openai": true,
	"ollama": true,
	"mock":   true,
}

var validPoolScopes = map[string]bool{
	"all":     true,
	"pending": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("WINNOW_PORT", 8080),
			Env:  envString("WINNOW_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Embeddings: EmbeddingsConfig{
			Provider: os.Getenv("EMBEDDINGS_PROVIDER"),
			Timeout:  envDurationSecs("EMBEDDINGS_TIMEOUT_SECS", 30*time.Second),
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com"),
				Model:   envString("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			},
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			},
		},
		Engine: EngineConfig{
			SimilarityThreshold: envFloat("SIMILARITY_THRESHOLD", 0.85),
			BatchSize:           envInt("EMBEDDING_BATCH_SIZE", 20),
			MaxRetries:          envInt("MAX_RETRIES", 3),
			BackoffBase:         envDurationSecs("BACKOFF_BASE_SECONDS", time.Second),
			ComparisonPool:      envString("COMPARISON_POOL", "all"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Embeddings.Provider == "" {
		return fmt.Errorf("EMBEDDINGS_PROVIDER is required")
	}
	if !validProviders[c.Embeddings.Provider] {
		return fmt.Errorf("EMBEDDINGS_PROVIDER must be one of openai, ollama, mock; got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Provider == "openai" && c.Embeddings.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when EMBEDDINGS_PROVIDER is openai")
	}

	if c.Engine.SimilarityThreshold < 0 || c.Engine.SimilarityThreshold > 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in [0, 1], got %v", c.Engine.SimilarityThreshold)
	}
	if c.Engine.BatchSize <= 0 {
		return fmt.Errorf("EMBEDDING_BATCH_SIZE must be positive, got %d", c.Engine.BatchSize)
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative, got %d", c.Engine.MaxRetries)
	}
	if !validPoolScopes[c.Engine.ComparisonPool] {
		return fmt.Errorf("COMPARISON_POOL must be one of all, pending; got %q", c.Engine.ComparisonPool)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
