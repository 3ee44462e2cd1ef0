package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/winnowhq/winnow/internal/api/middleware"
	"github.com/winnowhq/winnow/internal/api/response"
	"github.com/winnowhq/winnow/internal/store"
	"github.com/winnowhq/winnow/pkg/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// SuggestionStore defines the store surface the suggestion handlers depend on.
type SuggestionStore interface {
	ListSuggestions(ctx context.Context, filter store.SuggestionFilter) ([]*models.Suggestion, int, error)
	GetSuggestion(ctx context.Context, id uuid.UUID) (*models.Suggestion, error)
	UpdateSuggestionStatus(ctx context.Context, id uuid.UUID, newStatus models.SuggestionStatus, actor, notes string) (*models.Suggestion, error)
}

// NewListSuggestionsHandler returns an http.HandlerFunc for GET /api/v1/suggestions.
func NewListSuggestionsHandler(s SuggestionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if status := q.Get("status"); status != "" && !models.SuggestionStatus(status).IsValid() {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"status must be one of pending, approved, rejected", nil)
			return
		}
		if typ := q.Get("type"); typ != "" && !models.SuggestionType(typ).IsValid() {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"type must be one of eval, guardrail, runbook", nil)
			return
		}

		page := parseIntParam(q.Get("page"), 1)
		if page < 1 {
			page = 1
		}
		limit := parseIntParam(q.Get("limit"), defaultPageLimit)
		if limit < 1 {
			limit = defaultPageLimit
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}

		filter := store.SuggestionFilter{
			Status:   q.Get("status"),
			Type:     q.Get("type"),
			Severity: q.Get("severity"),
			Page:     page,
			Limit:    limit,
		}

		suggestions, total, err := s.ListSuggestions(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list suggestions", nil)
			return
		}

		response.Collection(w, suggestions, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}

// NewGetSuggestionHandler returns an http.HandlerFunc for
// GET /api/v1/suggestions/{suggestionID}. The response carries full lineage
// and status history.
func NewGetSuggestionHandler(s SuggestionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "suggestionID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid suggestion ID", nil)
			return
		}

		suggestion, err := s.GetSuggestion(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Suggestion not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to fetch suggestion", nil)
			return
		}

		response.JSON(w, suggestion)
	}
}

// NewUpdateSuggestionStatusHandler returns an http.HandlerFunc for
// POST /api/v1/suggestions/{suggestionID}/status. Only pending suggestions
// can transition, and only to approved or rejected.
func NewUpdateSuggestionStatusHandler(s SuggestionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "suggestionID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid suggestion ID", nil)
			return
		}

		var req struct {
			Status string `json:"status"`
			Actor  string `json:"actor"`
			Notes  string `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		newStatus := models.SuggestionStatus(req.Status)
		if !newStatus.Terminal() {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"status must be approved or rejected", nil)
			return
		}

		actor := req.Actor
		if actor == "" {
			if name, ok := mw.KeyName(r); ok {
				actor = name
			}
		}
		if actor == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "actor is required", nil)
			return
		}

		suggestion, err := s.UpdateSuggestionStatus(r.Context(), id, newStatus, actor, req.Notes)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Suggestion not found", nil)
			case errors.Is(err, store.ErrInvalidTransition):
				response.Error(w, http.StatusConflict, "INVALID_TRANSITION",
					"Suggestion is not pending", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to update suggestion status", nil)
			}
			return
		}

		response.JSON(w, suggestion)
	}
}

func parseIntParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
