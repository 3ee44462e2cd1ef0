package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/winnowhq/winnow/pkg/models"
)

const dimensions = 8

// MockProvider satisfies models.EmbeddingProvider for testing and local
// development.
type MockProvider struct {
	Name_     string
	EmbedFunc func(ctx context.Context, texts []string) ([]models.Vector, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Dimensions() int { return dimensions }

func (m *MockProvider) Embed(ctx context.Context, texts []string) ([]models.Vector, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, texts)
	}
	vectors := make([]models.Vector, len(texts))
	for i, text := range texts {
		vectors[i] = DeterministicVector(text)
	}
	return vectors, nil
}

// NewMockProvider returns a MockProvider that derives a stable unit vector
// from each text's hash: identical texts always embed identically,
// different texts almost never land near each other.
func NewMockProvider() *MockProvider {
	return &MockProvider{Name_: "mock"}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		EmbedFunc: func(_ context.Context, _ []string) ([]models.Vector, error) {
			return nil, err
		},
	}
}

// NewFlakyProvider returns a MockProvider that fails the first n calls with
// err, then behaves like the default deterministic provider.
func NewFlakyProvider(n int, err error) *MockProvider {
	remaining := n
	return &MockProvider{
		Name_: "mock-flaky",
		EmbedFunc: func(_ context.Context, texts []string) ([]models.Vector, error) {
			if remaining > 0 {
				remaining--
				return nil, err
			}
			vectors := make([]models.Vector, len(texts))
			for i, text := range texts {
				vectors[i] = DeterministicVector(text)
			}
			return vectors, nil
		},
	}
}

// DeterministicVector maps text to a stable L2-normalized vector.
func DeterministicVector(text string) models.Vector {
	hash := sha256.Sum256([]byte(text))
	vec := make(models.Vector, dimensions)
	var norm float64
	for i := 0; i < dimensions; i++ {
		bits := binary.BigEndian.Uint32(hash[i*4 : i*4+4])
		// Spread components over [-1, 1).
		vec[i] = float32(bits)/float32(math.MaxUint32)*2 - 1
		norm += float64(vec[i]) * float64(vec[i])
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// Compile-time check that MockProvider implements EmbeddingProvider.
var _ models.EmbeddingProvider = (*MockProvider)(nil)
