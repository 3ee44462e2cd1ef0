package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/winnowhq/winnow/internal/api/response"
	"github.com/winnowhq/winnow/internal/store"
	"github.com/winnowhq/winnow/pkg/models"
)

// PatternCreator defines the store surface the ingest handler depends on.
type PatternCreator interface {
	CreateFailurePattern(ctx context.Context, pattern *models.FailurePattern) error
}

// NewIngestPatternHandler returns an http.HandlerFunc for POST /api/v1/patterns.
// Patterns land unprocessed; the next run folds them into suggestions.
func NewIngestPatternHandler(s PatternCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FailureType      string  `json:"failure_type"`
			TriggerCondition string  `json:"trigger_condition"`
			ArtifactType     string  `json:"artifact_type"`
			Severity         string  `json:"severity"`
			Confidence       float64 `json:"confidence"`
			SourceTraceID    string  `json:"source_trace_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.FailureType == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "failure_type is required", nil)
			return
		}
		if req.TriggerCondition == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "trigger_condition is required", nil)
			return
		}
		if req.SourceTraceID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "source_trace_id is required", nil)
			return
		}

		artifactType := models.SuggestionType(req.ArtifactType)
		if !artifactType.IsValid() {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"artifact_type must be one of eval, guardrail, runbook", nil)
			return
		}

		if req.Severity == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "severity is required", nil)
			return
		}
		if req.Confidence < 0 || req.Confidence > 1 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"confidence must be between 0 and 1", nil)
			return
		}

		now := time.Now().UTC()
		pattern := &models.FailurePattern{
			ID:               uuid.New(),
			FailureType:      req.FailureType,
			TriggerCondition: req.TriggerCondition,
			ArtifactType:     artifactType,
			Severity:         req.Severity,
			Confidence:       req.Confidence,
			SourceTraceID:    req.SourceTraceID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		if err := s.CreateFailurePattern(r.Context(), pattern); err != nil {
			if errors.Is(err, store.ErrConflict) {
				response.Error(w, http.StatusConflict, "CONFLICT",
					"A pattern with this ID already exists", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to store pattern", nil)
			return
		}

		response.Created(w, pattern)
	}
}
