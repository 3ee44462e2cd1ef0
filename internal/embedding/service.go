package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/winnowhq/winnow/internal/cache"
	"github.com/winnowhq/winnow/pkg/models"
)

// Result is the per-text outcome of an embedding request. Exactly one of
// Vector and Err is set.
type Result struct {
	Vector models.Vector
	Err    error
}

// Service wraps a provider with content-addressed caching, bounded request
// batches, and an explicit retry loop with exponential backoff. Retry counts
// and the backoff schedule are plain data here, not hidden in a decorator:
// the sleep function is injectable so tests assert the 1s/2s/4s schedule
// without clocks.
type Service struct {
	provider    models.EmbeddingProvider
	cache       cache.Cache
	batchSize   int
	maxRetries  int
	backoffBase time.Duration
	sleep       func(time.Duration)
}

// NewService creates a Service. batchSize bounds how many texts go to the
// provider per call; maxRetries and backoffBase control the retry schedule
// for throttled/transient failures.
func NewService(provider models.EmbeddingProvider, ca cache.Cache, batchSize, maxRetries int, backoffBase time.Duration) *Service {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Service{
		provider:    provider,
		cache:       ca,
		batchSize:   batchSize,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		sleep:       time.Sleep,
	}
}

// Provider returns the name of the wrapped provider.
func (s *Service) Provider() string { return s.provider.Name() }

// EmbedText embeds a single text.
func (s *Service) EmbedText(ctx context.Context, text string) (models.Vector, error) {
	res := s.EmbedTexts(ctx, []string{text})[0]
	return res.Vector, res.Err
}

// EmbedTexts embeds all texts, returning one Result per input in input
// order. Cache hits never touch the provider; misses are deduplicated and
// sent in bounded batches. A batch that fails after all retries is broken
// up and retried per item, so one poisoned input cannot fail its
// neighbours.
func (s *Service) EmbedTexts(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))

	type pending struct {
		hash    string
		text    string
		indexes []int
		vector  models.Vector
		err     error
	}

	unique := make(map[string]*pending)
	var order []*pending
	for i, text := range texts {
		hash := TextHash(text)
		p, seen := unique[hash]
		if !seen {
			p = &pending{hash: hash, text: text}
			unique[hash] = p
			order = append(order, p)
		}
		p.indexes = append(p.indexes, i)
	}

	var misses []*pending
	for _, p := range order {
		vec, hit, err := s.cache.GetEmbedding(ctx, s.provider.Name(), p.hash)
		if err != nil {
			slog.Warn("embedding cache read failed", "error", err)
		}
		if hit {
			p.vector = vec
			continue
		}
		misses = append(misses, p)
	}

	for start := 0; start < len(misses); start += s.batchSize {
		end := start + s.batchSize
		if end > len(misses) {
			end = len(misses)
		}
		chunk := misses[start:end]

		chunkTexts := make([]string, len(chunk))
		for i, p := range chunk {
			chunkTexts[i] = p.text
		}

		vectors, err := s.embedWithRetry(ctx, chunkTexts)
		if err == nil {
			for i, p := range chunk {
				p.vector = vectors[i]
				s.storeInCache(ctx, p.hash, p.vector)
			}
			continue
		}

		if len(chunk) == 1 {
			chunk[0].err = err
			continue
		}

		// Isolate the failure: retry each item of the failed batch alone.
		for _, p := range chunk {
			vecs, itemErr := s.embedWithRetry(ctx, []string{p.text})
			if itemErr != nil {
				p.err = itemErr
				continue
			}
			p.vector = vecs[0]
			s.storeInCache(ctx, p.hash, p.vector)
		}
	}

	for _, p := range order {
		for _, i := range p.indexes {
			results[i] = Result{Vector: p.vector, Err: p.err}
		}
	}
	return results
}

// embedWithRetry calls the provider, retrying transient failures up to
// maxRetries times with doubling backoff. Fatal failures and exhausted
// retries both surface as ErrEmbeddingUnavailable.
func (s *Service) embedWithRetry(ctx context.Context, texts []string) ([]models.Vector, error) {
	delay := s.backoffBase
	for attempt := 0; ; attempt++ {
		vectors, err := s.provider.Embed(ctx, texts)
		if err == nil {
			if len(vectors) != len(texts) {
				return nil, fmt.Errorf("%w: expected %d vectors, got %d",
					ErrInvalidResponse, len(texts), len(vectors))
			}
			return vectors, nil
		}

		if !errors.Is(err, models.ErrRetryable) || attempt >= s.maxRetries {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
		}

		slog.Warn("embedding call failed, retrying",
			"provider", s.provider.Name(),
			"attempt", attempt+1,
			"backoff", delay.String(),
			"error", err)
		s.sleep(delay)
		delay *= 2
	}
}

func (s *Service) storeInCache(ctx context.Context, hash string, vector models.Vector) {
	if err := s.cache.SetEmbedding(ctx, s.provider.Name(), hash, vector); err != nil {
		slog.Warn("embedding cache write failed", "error", err)
	}
}

// TextHash is the content address of an embedding input.
func TextHash(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}
