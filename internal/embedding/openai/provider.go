package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/winnowhq/winnow/internal/config"
	"github.com/winnowhq/winnow/pkg/models"
)

// Provider implements models.EmbeddingProvider using the OpenAI embeddings API.
type Provider struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

func NewProvider(cfg config.OpenAIConfig, timeout time.Duration) *Provider {
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Dimensions() int {
	switch p.cfg.Model {
	case "text-embedding-3-large":
		return 3072
	default: // text-embedding-3-small, text-embedding-ada-002
		return 1536
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

	u := p.cfg.BaseURL + "/v1/embeddings"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: openai status %d", models.ErrRetryable, resp.StatusCode)
		}
		return nil, fmt.Errorf("openai embeddings failed: status %d", resp.StatusCode)
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decoding openai response: %w", err)
	}

	// The API documents response order by index; sort defensively anyway.
	sort.Slice(embedResp.Data, func(i, j int) bool {
		return embedResp.Data[i].Index < embedResp.Data[j].Index
	})

	vectors := make([]models.Vector, len(embedResp.Data))
	for i, d := range embedResp.Data {
		vectors[i] = models.Vector(d.Embedding)
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

// --- OpenAI API types ---

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []embedDatum `json:"data"`
}

type embedDatum struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// Compile-time check that Provider implements EmbeddingProvider.
var _ models.EmbeddingProvider = (*Provider)(nil)
