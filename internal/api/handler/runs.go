package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/winnowhq/winnow/internal/api/response"
	"github.com/winnowhq/winnow/internal/engine"
	"github.com/winnowhq/winnow/internal/store"
	"github.com/winnowhq/winnow/pkg/models"
)

// Runner defines the interface the run trigger handler depends on.
type Runner interface {
	Run(ctx context.Context, batchSize int) (*engine.RunSummary, error)
}

// RunGetter defines the store surface for run lookups.
type RunGetter interface {
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
}

// NewTriggerRunHandler returns an http.HandlerFunc for POST /api/v1/runs.
// The run executes synchronously and its summary is the response body.
// Runs are mutually exclusive per process: a second trigger while one is in
// flight gets 409 rather than racing the shared pattern queue.
func NewTriggerRunHandler(runner Runner) http.HandlerFunc {
	var mu sync.Mutex
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BatchSize int `json:"batch_size"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.BatchSize < 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"batch_size must not be negative", nil)
			return
		}

		if !mu.TryLock() {
			response.Error(w, http.StatusConflict, "RUN_IN_PROGRESS",
				"Another run is already in progress", nil)
			return
		}
		defer mu.Unlock()

		summary, err := runner.Run(r.Context(), req.BatchSize)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "RUN_FAILED",
				"The run could not proceed", map[string]any{"message": err.Error()})
			return
		}

		response.JSON(w, summary)
	}
}

// NewGetRunHandler returns an http.HandlerFunc for GET /api/v1/runs/{runID}.
func NewGetRunHandler(s RunGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, err := uuid.Parse(chi.URLParam(r, "runID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid run ID", nil)
			return
		}

		run, err := s.GetRun(r.Context(), runID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Run not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to fetch run", nil)
			return
		}

		response.JSON(w, run)
	}
}
