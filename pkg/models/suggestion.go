package models

import (
	"time"

	"github.com/google/uuid"
)

// SuggestionType classifies what kind of artifact a suggestion should
// eventually produce. It is inherited from the upstream pattern
// classification and never decided by this engine.
type SuggestionType string

const (
	TypeEval      SuggestionType = "eval"
	TypeGuardrail SuggestionType = "guardrail"
	TypeRunbook   SuggestionType = "runbook"
)

// IsValid reports whether t is one of the closed set of suggestion types.
func (t SuggestionType) IsValid() bool {
	switch t {
	case TypeEval, TypeGuardrail, TypeRunbook:
		return true
	}
	return false
}

// SuggestionStatus is the review state of a suggestion. The engine only ever
// writes pending; approved and rejected come from external reviewers.
type SuggestionStatus string

const (
	StatusPending  SuggestionStatus = "pending"
	StatusApproved SuggestionStatus = "approved"
	StatusRejected SuggestionStatus = "rejected"
)

// IsValid reports whether s is one of the closed set of statuses.
func (s SuggestionStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether the status has left review.
func (s SuggestionStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// SourceTrace is one lineage entry: the original trace that contributed a
// pattern to this suggestion, with the similarity score it merged at.
// The seeding entry of a new suggestion carries score 1.0.
type SourceTrace struct {
	TraceID         string    `db:"trace_id"         json:"trace_id"`
	AddedAt         time.Time `db:"added_at"         json:"added_at"`
	SimilarityScore float64   `db:"similarity_score" json:"similarity_score"`
}

// StatusHistoryEntry is one audit record of a status transition.
type StatusHistoryEntry struct {
	FromStatus SuggestionStatus `db:"from_status" json:"from_status"`
	ToStatus   SuggestionStatus `db:"to_status"   json:"to_status"`
	Actor      string           `db:"actor"       json:"actor"`
	Notes      string           `db:"notes"       json:"notes,omitempty"`
	ChangedAt  time.Time        `db:"changed_at"  json:"changed_at"`
}

// Suggestion is the deduplicated, reviewable unit representing one
// underlying issue, possibly backed by many failure patterns.
//
// SourceTraces is append-only: entries are never removed or reordered, and a
// persisted suggestion always has at least one. Embedding is owned
// exclusively by this engine and never exposed over the API.
type Suggestion struct {
	ID                uuid.UUID            `db:"id"                  json:"id"`
	Type              SuggestionType       `db:"type"                json:"type"`
	Status            SuggestionStatus     `db:"status"              json:"status"`
	Severity          string               `db:"severity"            json:"severity"`
	Embedding         Vector               `db:"embedding"           json:"-"`
	SourceTraces      []SourceTrace        `db:"-"                   json:"source_traces"`
	SimilarityGroupID uuid.UUID            `db:"similarity_group_id" json:"similarity_group_id"`
	StatusHistory     []StatusHistoryEntry `db:"-"                   json:"status_history,omitempty"`
	CreatedAt         time.Time            `db:"created_at"          json:"created_at"`
	UpdatedAt         time.Time            `db:"updated_at"          json:"updated_at"`
}
