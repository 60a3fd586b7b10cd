package vectorstore

import "ragserver/internal/domain"

// Storage holds chunk records and supports nearest-neighbor search.
// Implementations must be safe under concurrent insertion and search.
type Storage interface {
	// Insert makes the chunks searchable atomically: a concurrent search
	// observes either none or all of them.
	Insert(chunks []domain.Chunk) error
	// Search returns at most topK results with score >= minScore, ordered
	// by descending cosine similarity, ties broken by insertion order.
	Search(query []float32, topK int, minScore float32) ([]domain.SearchResult, error)
	// Persist and Load serialize the full collection to durable bytes and
	// back. Load of an incompatible snapshot fails rather than producing a
	// partial store.
	Persist() error
	Load() error
	Clear() error
	Count() int
}
