// Package models contains shared data models used across the Winnow codebase.
package models

import (
	"context"
	"errors"
)

// ErrRetryable marks transient embedding failures (throttling, 5xx,
// transport errors). Providers wrap such errors so the caller's retry loop
// can distinguish them from fatal ones; anything not wrapping ErrRetryable
// fails immediately.
var ErrRetryable = errors.New("retryable embedding failure")

// Vector is a fixed-length text embedding. All vectors produced by one
// provider share the same dimensionality.
type Vector []float32

// EmbeddingProvider is the core interface that all embedding integrations
// must implement. Never call specific providers directly — always inject
// this interface.
type EmbeddingProvider interface {
	// Embed returns one vector per input text, in input order.
	// Implementations accept bounded batches; callers enforce the batch size.
	Embed(ctx context.Context, texts []string) ([]Vector, error)
	// Dimensions returns the dimensionality of vectors this provider emits.
	Dimensions() int
	// Name returns the provider identifier (e.g., "openai", "ollama").
	Name() string
}
