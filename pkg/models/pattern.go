package models

import (
	"time"

	"github.com/google/uuid"
)

// FailurePattern is one extracted, classified failure occurrence produced by
// the upstream extraction pipeline. This engine only reads it and flips
// Processed to true once the pattern has been folded into a suggestion.
type FailurePattern struct {
	ID               uuid.UUID      `db:"id"                json:"id"`
	FailureType      string         `db:"failure_type"      json:"failure_type"`
	TriggerCondition string         `db:"trigger_condition" json:"trigger_condition"`
	ArtifactType     SuggestionType `db:"artifact_type"     json:"artifact_type"`
	Severity         string         `db:"severity"          json:"severity"`
	Confidence       float64        `db:"confidence"        json:"confidence"`
	SourceTraceID    string         `db:"source_trace_id"   json:"source_trace_id"`
	Processed        bool           `db:"processed"         json:"processed"`
	CreatedAt        time.Time      `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"        json:"updated_at"`
}

// EmbeddingText is the canonical text sent to the embedding provider.
// Identical failure type + trigger condition must always produce identical
// text, so that the embedding cache deduplicates across patterns.
func (p *FailurePattern) EmbeddingText() string {
	return p.FailureType + ": " + p.TriggerCondition
}
