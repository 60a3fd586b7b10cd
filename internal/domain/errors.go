package domain

import "errors"

// Failure kinds, matched with errors.Is. Failures local to one unit of work
// (one file, one request) are contained by the pipelines; failures affecting
// shared state integrity abort the operation that caused them.
var (
	// ErrEmptyQuestion rejects blank questions before any retrieval work.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrInvalidConfig marks a configuration error (bad chunk sizes,
	// non-positive topK). Rejected immediately, no side effects.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDimensionMismatch rejects an insertion whose embedding length
	// disagrees with the store's established dimensionality. The store is
	// left unchanged.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrBadFormat means a persisted store snapshot is unreadable. Fatal at
	// startup; never patched over into a partial store.
	ErrBadFormat = errors.New("unreadable store format")

	// ErrEmbedding and ErrGeneration wrap all gateway failure modes
	// (unavailable service, unsupported input, timeout) into one kind each.
	ErrEmbedding  = errors.New("embedding failed")
	ErrGeneration = errors.New("generation failed")
)
