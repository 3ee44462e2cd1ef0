package dedup

import "github.com/winnowhq/winnow/pkg/models"

// DefaultThreshold is the inclusive similarity bound for merging.
const DefaultThreshold = 0.85

// DecisionKind is the terminal outcome of matching one pattern.
type DecisionKind int

const (
	// DecisionCreate spawns a new suggestion for the pattern.
	DecisionCreate DecisionKind = iota
	// DecisionMerge appends the pattern's lineage to an existing suggestion.
	DecisionMerge
)

func (k DecisionKind) String() string {
	if k == DecisionMerge {
		return "merge"
	}
	return "create"
}

// Decision is the outcome of Policy.Decide. Target is set only for merges;
// Score is the best match's similarity either way (0 for an empty pool).
type Decision struct {
	Kind   DecisionKind
	Target *models.Suggestion
	Score  float64
}

// Policy applies the similarity threshold to best-match results. The pool
// is an explicit argument on every call: an immutable snapshot fetched at
// run start and grown in-memory within the run, never hidden module state.
type Policy struct {
	Threshold float64
}

// NewPolicy returns a Policy with the given merge threshold; values outside
// (0, 1] fall back to DefaultThreshold.
func NewPolicy(threshold float64) Policy {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return Policy{Threshold: threshold}
}

// Decide matches the candidate embedding against the pool. A best score
// greater than or equal to the threshold (inclusive) merges into that
// suggestion; anything below, including an empty pool, creates.
func (p Policy) Decide(candidate models.Vector, pool []*models.Suggestion) Decision {
	best, score := FindBestMatch(candidate, pool)
	if best != nil && score >= p.Threshold {
		return Decision{Kind: DecisionMerge, Target: best, Score: score}
	}
	return Decision{Kind: DecisionCreate, Score: score}
}
