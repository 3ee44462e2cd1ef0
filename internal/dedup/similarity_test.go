package dedup_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/winnowhq/winnow/internal/dedup"
	"github.com/winnowhq/winnow/pkg/models"
)

func suggestionWithEmbedding(v models.Vector) *models.Suggestion {
	return &models.Suggestion{
		ID:        uuid.New(),
		Type:      models.TypeEval,
		Status:    models.StatusPending,
		Embedding: v,
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a    models.Vector
		b    models.Vector
		want float64
	}{
		{
			name: "identical vectors",
			a:    models.Vector{1, 2, 3},
			b:    models.Vector{1, 2, 3},
			want: 1.0,
		},
		{
			name: "parallel vectors of different magnitude",
			a:    models.Vector{1, 2, 3},
			b:    models.Vector{2, 4, 6},
			want: 1.0,
		},
		{
			name: "orthogonal vectors",
			a:    models.Vector{1, 0},
			b:    models.Vector{0, 1},
			want: 0.0,
		},
		{
			name: "opposite vectors",
			a:    models.Vector{1, 0},
			b:    models.Vector{-1, 0},
			want: -1.0,
		},
		{
			name: "empty vectors",
			a:    models.Vector{},
			b:    models.Vector{},
			want: 0.0,
		},
		{
			name: "mismatched dimensions",
			a:    models.Vector{1, 2},
			b:    models.Vector{1, 2, 3},
			want: 0.0,
		},
		{
			name: "zero norm",
			a:    models.Vector{0, 0, 0},
			b:    models.Vector{1, 2, 3},
			want: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dedup.Cosine(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCosine_Symmetric(t *testing.T) {
	a := models.Vector{0.3, -0.7, 0.2, 0.9}
	b := models.Vector{-0.1, 0.4, 0.8, 0.5}

	assert.InDelta(t, dedup.Cosine(a, b), dedup.Cosine(b, a), 1e-12)
}

func TestFindBestMatch_EmptyPool(t *testing.T) {
	best, score := dedup.FindBestMatch(models.Vector{1, 0}, nil)
	assert.Nil(t, best)
	assert.Zero(t, score)
}

func TestFindBestMatch_PicksHighest(t *testing.T) {
	far := suggestionWithEmbedding(models.Vector{0, 1})
	near := suggestionWithEmbedding(models.Vector{0.9, 0.1})
	exact := suggestionWithEmbedding(models.Vector{1, 0})

	best, score := dedup.FindBestMatch(models.Vector{1, 0}, []*models.Suggestion{far, near, exact})
	require.NotNil(t, best)
	assert.Equal(t, exact.ID, best.ID)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestFindBestMatch_TieKeepsFirst(t *testing.T) {
	// Two pool entries with identical embeddings. The pool is ordered oldest
	// first, so the first occurrence must win the tie.
	first := suggestionWithEmbedding(models.Vector{1, 0})
	second := suggestionWithEmbedding(models.Vector{1, 0})

	best, _ := dedup.FindBestMatch(models.Vector{1, 0}, []*models.Suggestion{first, second})
	require.NotNil(t, best)
	assert.Equal(t, first.ID, best.ID)
}

func TestFindBestMatch_SkipsNothingOnNegativeScores(t *testing.T) {
	// Even a negative best similarity is still the best match; the threshold
	// decision belongs to the policy, not the scan.
	opposite := suggestionWithEmbedding(models.Vector{-1, 0})

	best, score := dedup.FindBestMatch(models.Vector{1, 0}, []*models.Suggestion{opposite})
	require.NotNil(t, best)
	assert.Equal(t, opposite.ID, best.ID)
	assert.InDelta(t, -1.0, score, 1e-9)
}
