package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/winnowhq/winnow/pkg/models"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrConflict          = errors.New("write conflicted with existing record")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ComparisonScope selects which suggestions form the comparison pool.
type ComparisonScope string

const (
	// ScopeAll compares new patterns against every suggestion, so recurring
	// failures append lineage to approved/rejected suggestions too.
	ScopeAll ComparisonScope = "all"
	// ScopePending compares only against suggestions still under review;
	// recurrences of closed suggestions spawn fresh pending ones.
	ScopePending ComparisonScope = "pending"
)

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	CreateFailurePattern(ctx context.Context, pattern *models.FailurePattern) error
	ListUnprocessedPatterns(ctx context.Context, limit int) ([]*models.FailurePattern, error)
	MarkPatternProcessed(ctx context.Context, id uuid.UUID) error

	CreateSuggestion(ctx context.Context, suggestion *models.Suggestion) error
	MergeInto(ctx context.Context, suggestionID uuid.UUID, traceID string, similarityScore float64) (*models.Suggestion, error)
	UpdateSuggestionStatus(ctx context.Context, id uuid.UUID, newStatus models.SuggestionStatus, actor, notes string) (*models.Suggestion, error)
	ListForComparison(ctx context.Context, scope ComparisonScope) ([]*models.Suggestion, error)
	GetSuggestion(ctx context.Context, id uuid.UUID) (*models.Suggestion, error)
	ListSuggestions(ctx context.Context, filter SuggestionFilter) ([]*models.Suggestion, int, error)

	CreateRun(ctx context.Context, run *models.Run) error
	CompleteRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
}

// SuggestionFilter narrows and paginates suggestion listings.
type SuggestionFilter struct {
	Status   string
	Type     string
	Severity string
	Page     int
	Limit    int
}
