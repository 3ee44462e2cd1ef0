package embedding

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/winnowhq/winnow/internal/embedding/mock"
	"github.com/winnowhq/winnow/pkg/models"
)

// fakeCache is an in-memory Cache for unit tests.
type fakeCache struct {
	embeddings map[string]models.Vector
	getErr     error
	setErr     error
}

func newFakeCache() *fakeCache {
	return &fakeCache{embeddings: make(map[string]models.Vector)}
}

func (f *fakeCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }

func (f *fakeCache) Get(_ context.Context, _ string) ([]byte, bool, error) { return nil, false, nil }

func (f *fakeCache) Delete(_ context.Context, _ string) error { return nil }

func (f *fakeCache) Ping(_ context.Context) error { return nil }

func (f *fakeCache) SetEmbedding(_ context.Context, provider, textHash string, vector models.Vector) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.embeddings[provider+":"+textHash] = vector
	return nil
}

func (f *fakeCache) GetEmbedding(_ context.Context, provider, textHash string) (models.Vector, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	vec, ok := f.embeddings[provider+":"+textHash]
	return vec, ok, nil
}

func (f *fakeCache) SetRunStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}

func (f *fakeCache) GetRunStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}

func (f *fakeCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 0, nil
}

// sleepRecorder replaces time.Sleep and captures the backoff schedule.
func sleepRecorder(delays *[]time.Duration) func(time.Duration) {
	return func(d time.Duration) {
		*delays = append(*delays, d)
	}
}

func TestEmbedText_Single(t *testing.T) {
	svc := NewService(mock.NewMockProvider(), newFakeCache(), 20, 3, time.Second)

	vec, err := svc.EmbedText(context.Background(), "timeout: budget exceeded")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
}

func TestEmbedTexts_PreservesInputOrder(t *testing.T) {
	svc := NewService(mock.NewMockProvider(), newFakeCache(), 20, 3, time.Second)

	texts := []string{"a", "b", "c"}
	results := svc.EmbedTexts(context.Background(), texts)
	require.Len(t, results, 3)

	for i, text := range texts {
		require.NoError(t, results[i].Err)
		assert.Equal(t, mock.DeterministicVector(text), results[i].Vector)
	}
}

func TestEmbedTexts_DeduplicatesIdenticalTexts(t *testing.T) {
	var sent []string
	provider := &mock.MockProvider{
		Name_: "mock",
		EmbedFunc: func(_ context.Context, texts []string) ([]models.Vector, error) {
			sent = append(sent, texts...)
			vectors := make([]models.Vector, len(texts))
			for i, text := range texts {
				vectors[i] = mock.DeterministicVector(text)
			}
			return vectors, nil
		},
	}
	svc := NewService(provider, newFakeCache(), 20, 3, time.Second)

	results := svc.EmbedTexts(context.Background(), []string{"same", "same", "other"})
	require.Len(t, results, 3)
	for _, r := range results {
		require.NoError(t, r.Err)
	}

	assert.Len(t, sent, 2, "identical texts should reach the provider once")
	assert.Equal(t, results[0].Vector, results[1].Vector)
}

func TestEmbedTexts_CacheHitSkipsProvider(t *testing.T) {
	cached := models.Vector{1, 0, 0, 0, 0, 0, 0, 0}
	fc := newFakeCache()
	fc.embeddings["mock:"+TextHash("known text")] = cached

	calls := 0
	provider := &mock.MockProvider{
		Name_: "mock",
		EmbedFunc: func(_ context.Context, texts []string) ([]models.Vector, error) {
			calls++
			return nil, errors.New("should not be called")
		},
	}
	svc := NewService(provider, fc, 20, 3, time.Second)

	results := svc.EmbedTexts(context.Background(), []string{"known text"})
	require.NoError(t, results[0].Err)
	assert.Equal(t, cached, results[0].Vector)
	assert.Zero(t, calls)
}

func TestEmbedTexts_WritesToCache(t *testing.T) {
	fc := newFakeCache()
	svc := NewService(mock.NewMockProvider(), fc, 20, 3, time.Second)

	results := svc.EmbedTexts(context.Background(), []string{"fresh text"})
	require.NoError(t, results[0].Err)

	got, ok := fc.embeddings["mock:"+TextHash("fresh text")]
	require.True(t, ok)
	assert.Equal(t, results[0].Vector, got)
}

func TestEmbedTexts_CacheErrorsAreNonFatal(t *testing.T) {
	fc := newFakeCache()
	fc.getErr = errors.New("redis down")
	fc.setErr = errors.New("redis down")
	svc := NewService(mock.NewMockProvider(), fc, 20, 3, time.Second)

	results := svc.EmbedTexts(context.Background(), []string{"text"})
	require.NoError(t, results[0].Err)
	assert.NotEmpty(t, results[0].Vector)
}

func TestEmbedTexts_RetrySchedule(t *testing.T) {
	transient := fmt.Errorf("%w: throttled", models.ErrRetryable)
	provider := mock.NewFlakyProvider(2, transient)

	var delays []time.Duration
	svc := NewService(provider, newFakeCache(), 20, 3, time.Second)
	svc.sleep = sleepRecorder(&delays)

	results := svc.EmbedTexts(context.Background(), []string{"text"})
	require.NoError(t, results[0].Err)

	// Two failures before success: backoff doubles from the base.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestEmbedTexts_RetriesExhausted(t *testing.T) {
	transient := fmt.Errorf("%w: throttled", models.ErrRetryable)
	provider := mock.NewFailingProvider(transient)

	var delays []time.Duration
	svc := NewService(provider, newFakeCache(), 20, 2, time.Second)
	svc.sleep = sleepRecorder(&delays)

	results := svc.EmbedTexts(context.Background(), []string{"text"})
	require.Error(t, results[0].Err)
	assert.ErrorIs(t, results[0].Err, ErrEmbeddingUnavailable)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestEmbedTexts_FatalErrorSkipsRetries(t *testing.T) {
	provider := mock.NewFailingProvider(errors.New("invalid api key"))

	var delays []time.Duration
	svc := NewService(provider, newFakeCache(), 20, 3, time.Second)
	svc.sleep = sleepRecorder(&delays)

	results := svc.EmbedTexts(context.Background(), []string{"text"})
	require.Error(t, results[0].Err)
	assert.ErrorIs(t, results[0].Err, ErrEmbeddingUnavailable)
	assert.Empty(t, delays, "fatal errors must not be retried")
}

func TestEmbedTexts_IsolatesPoisonedItem(t *testing.T) {
	// A batch containing a poisoned text fails as a whole; the per-item
	// fallback must still embed the healthy neighbour.
	provider := &mock.MockProvider{
		Name_: "mock",
		EmbedFunc: func(_ context.Context, texts []string) ([]models.Vector, error) {
			for _, text := range texts {
				if text == "poison" {
					return nil, errors.New("token limit exceeded")
				}
			}
			vectors := make([]models.Vector, len(texts))
			for i, text := range texts {
				vectors[i] = mock.DeterministicVector(text)
			}
			return vectors, nil
		},
	}
	svc := NewService(provider, newFakeCache(), 20, 0, time.Second)

	results := svc.EmbedTexts(context.Background(), []string{"healthy", "poison"})
	require.Len(t, results, 2)

	require.NoError(t, results[0].Err)
	assert.Equal(t, mock.DeterministicVector("healthy"), results[0].Vector)

	require.Error(t, results[1].Err)
	assert.ErrorIs(t, results[1].Err, ErrEmbeddingUnavailable)
}

func TestEmbedTexts_VectorCountMismatch(t *testing.T) {
	provider := &mock.MockProvider{
		Name_: "mock",
		EmbedFunc: func(_ context.Context, texts []string) ([]models.Vector, error) {
			return []models.Vector{{1, 0}}, nil // always one vector
		},
	}
	svc := NewService(provider, newFakeCache(), 20, 0, time.Second)

	results := svc.EmbedTexts(context.Background(), []string{"a", "b"})
	// Batch mismatch triggers per-item fallback; item calls return one vector
	// for one text, so those succeed.
	require.NoError(t, results[0].Err)
	require.NoError(t, results[1].Err)

	res := svc.EmbedTexts(context.Background(), []string{"c", "c"})
	require.NoError(t, res[0].Err)
}

func TestTextHash_Stable(t *testing.T) {
	assert.Equal(t, TextHash("abc"), TextHash("abc"))
	assert.NotEqual(t, TextHash("abc"), TextHash("abd"))
	assert.Len(t, TextHash("abc"), 64)
}
