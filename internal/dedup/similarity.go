// Package dedup decides whether a new failure pattern is an already-known
// issue or a new one, by comparing embeddings against the pool of existing
// suggestions.
package dedup

import (
	"math"

	"github.com/winnowhq/winnow/pkg/models"
)

// Cosine computes the cosine similarity dot(a,b) / (|a| * |b|).
// Returns 0 for zero-length, zero-magnitude, or mismatched vectors.
func Cosine(a, b models.Vector) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// FindBestMatch scans the full pool and returns the single highest-scoring
// suggestion with its score, or (nil, 0) for an empty pool. The comparison
// is a strict max, so on an exact score tie the suggestion encountered
// first wins; callers supply the pool ordered by created_at ascending, which
// makes the tie-break deterministic across runs. No approximate index: at
// this scale a full scan buys correctness for negligible cost.
func FindBestMatch(candidate models.Vector, pool []*models.Suggestion) (*models.Suggestion, float64) {
	var best *models.Suggestion
	var bestScore float64

	for _, suggestion := range pool {
		score := Cosine(candidate, suggestion.Embedding)
		if best == nil || score > bestScore {
			best = suggestion
			bestScore = score
		}
	}
	if best == nil {
		return nil, 0
	}
	return best, bestScore
}
