package embedding

import (
	"fmt"

	"github.com/winnowhq/winnow/internal/config"
	"github.com/winnowhq/winnow/internal/embedding/mock"
	"github.com/winnowhq/winnow/internal/embedding/ollama"
	"github.com/winnowhq/winnow/internal/embedding/openai"
	"github.com/winnowhq/winnow/pkg/models"
)

// NewProvider constructs the appropriate embedding provider based on config.
// Called once at server startup.
func NewProvider(cfg config.EmbeddingsConfig) (models.EmbeddingProvider, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewProvider(cfg.OpenAI, cfg.Timeout), nil
	case "ollama":
		return ollama.NewProvider(cfg.Ollama, cfg.Timeout), nil
	case "mock":
		return mock.NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q: must be one of openai, ollama, mock", cfg.Provider)
	}
}
