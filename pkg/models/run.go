package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is the audit record of one batch deduplication cycle. The API returns
// the summary synchronously from POST /api/v1/runs; the row remains for
// GET /api/v1/runs/{run_id}.
type Run struct {
	ID                 uuid.UUID  `db:"id"                   json:"id"`
	Status             string     `db:"status"               json:"status"`
	BatchSize          int        `db:"batch_size"           json:"batch_size"`
	Processed          int        `db:"processed"            json:"processed"`
	Merged             int        `db:"merged"               json:"merged"`
	Created            int        `db:"created"              json:"created"`
	ErrorCount         int        `db:"error_count"          json:"error_count"`
	AvgMergeSimilarity float64    `db:"avg_merge_similarity" json:"avg_merge_similarity"`
	DurationMS         int64      `db:"duration_ms"          json:"duration_ms"`
	ErrorMessage       *string    `db:"error_message"        json:"error_message,omitempty"`
	StartedAt          time.Time  `db:"started_at"           json:"started_at"`
	CompletedAt        *time.Time `db:"completed_at"         json:"completed_at,omitempty"`
}
