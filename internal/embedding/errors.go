package embedding

import "errors"

var (
	// ErrEmbeddingUnavailable means the provider failed after all retries
	// were exhausted (or failed fatally). The affected pattern is deferred
	// to the next cycle, never partially written.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	// ErrInvalidResponse means the provider returned a malformed or
	// mismatched result (wrong vector count). Never retried.
	ErrInvalidResponse = errors.New("embedding provider returned invalid response")
)
