package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/winnowhq/winnow/internal/config"
	"github.com/winnowhq/winnow/pkg/models"
)

// Provider implements models.EmbeddingProvider using Ollama's embed API.
type Provider struct {
	cfg    config.OllamaConfig
	client *http.Client
}

func NewProvider(cfg config.OllamaConfig, timeout time.Duration) *Provider {
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string { return "ollama" }

func (p *Provider) Dimensions() int {
	switch p.cfg.Model {
	case "mxbai-embed-large":
		return 1024
	case "all-minilm":
		return 384
	default: // nomic-embed-text
		return 768
	}
}

func (p *Provider) Embed(ctx context.Context, texts []string) ([]models.Vector, error) {
	body, err := json.Marshal(embedRequest{
		Model: p.cfg.Model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding embed request: %w", err)
	}

	u := p.cfg.BaseURL + "/api/embed"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: ollama status %d", models.ErrRetryable, resp.StatusCode)
		}
		return nil, fmt.Errorf("ollama embed failed: status %d", resp.StatusCode)
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decoding ollama response: %w", err)
	}

	vectors := make([]models.Vector, len(embedResp.Embeddings))
	for i, e := range embedResp.Embeddings {
		vectors[i] = models.Vector(e)
	}
	return vectors, nil
}

// classifyTransportError maps transport-level failures to the retryable sentinel.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrRetryable, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", models.ErrRetryable, err)
	}

	return fmt.Errorf("%w: %v", models.ErrRetryable, err)
}

// --- Ollama API types ---

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Compile-time check that Provider implements EmbeddingProvider.
var _ models.EmbeddingProvider = (*Provider)(nil)
