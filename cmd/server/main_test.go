package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/winnowhq/winnow/internal/cache"
	"github.com/winnowhq/winnow/internal/store"
	"github.com/winnowhq/winnow/pkg/models"
)

// --- mock store ---

type testStore struct {
	pingErr error
}

func (s *testStore) Ping(_ context.Context) error { return s.pingErr }
func (s *testStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *testStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *testStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *testStore) ListAPIKeys(_ context.Context) ([]*models.APIKey, error)   { return nil, nil }
func (s *testStore) RevokeAPIKey(_ context.Context, _ uuid.UUID) error         { return nil }
func (s *testStore) CreateFailurePattern(_ context.Context, _ *models.FailurePattern) error {
	return nil
}
func (s *testStore) ListUnprocessedPatterns(_ context.Context, _ int) ([]*models.FailurePattern, error) {
	return nil, nil
}
func (s *testStore) MarkPatternProcessed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *testStore) CreateSuggestion(_ context.Context, _ *models.Suggestion) error {
	return nil
}
func (s *testStore) MergeInto(_ context.Context, _ uuid.UUID, _ string, _ float64) (*models.Suggestion, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) UpdateSuggestionStatus(_ context.Context, _ uuid.UUID, _ models.SuggestionStatus, _, _ string) (*models.Suggestion, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) ListForComparison(_ context.Context, _ store.ComparisonScope) ([]*models.Suggestion, error) {
	return nil, nil
}
func (s *testStore) GetSuggestion(_ context.Context, _ uuid.UUID) (*models.Suggestion, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) ListSuggestions(_ context.Context, _ store.SuggestionFilter) ([]*models.Suggestion, int, error) {
	return nil, 0, nil
}
func (s *testStore) CreateRun(_ context.Context, _ *models.Run) error   { return nil }
func (s *testStore) CompleteRun(_ context.Context, _ *models.Run) error { return nil }
func (s *testStore) GetRun(_ context.Context, _ uuid.UUID) (*models.Run, error) {
	return nil, store.ErrNotFound
}

var _ store.Store = (*testStore)(nil)

// --- mock cache ---

type testCache struct {
	pingErr error
}

func (c *testCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *testCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *testCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *testCache) Ping(_ context.Context) error                                     { return c.pingErr }
func (c *testCache) SetEmbedding(_ context.Context, _, _ string, _ models.Vector) error {
	return nil
}
func (c *testCache) GetEmbedding(_ context.Context, _, _ string) (models.Vector, bool, error) {
	return nil, false, nil
}
func (c *testCache) SetRunStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (c *testCache) GetRunStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (c *testCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

var _ cache.Cache = (*testCache)(nil)

// --- health handler tests ---

func TestHealthHandler_AllOK(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	services := data["services"].(map[string]any)
	assert.Equal(t, "ok", services["database"])
	assert.Equal(t, "ok", services["cache"])
}

func TestHealthHandler_DatabaseDegraded(t *testing.T) {
	h := healthHandler(&testStore{pingErr: errors.New("connection refused")}, &testCache{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DEGRADED", errObj["code"])
}

func TestHealthHandler_CacheDegraded(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{pingErr: errors.New("redis down")})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthHandler_BothDegraded(t *testing.T) {
	h := healthHandler(
		&testStore{pingErr: errors.New("db down")},
		&testCache{pingErr: errors.New("redis down")},
	)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// --- run() config validation tests ---

func TestRun_FailsOnMissingConfig(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "REDIS_URL", "EMBEDDINGS_PROVIDER",
	} {
		t.Setenv(key, "")
	}

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnInvalidDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "not-a-valid-url")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("EMBEDDINGS_PROVIDER", "mock")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect database")
}

// --- shutdown timeout constant test ---

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, shutdownTimeout)
}
