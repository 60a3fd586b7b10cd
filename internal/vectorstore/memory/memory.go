package memory

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"ragserver/internal/domain"
)

// Storage is an in-memory vector store using brute-force cosine similarity.
// The scan is O(n·d) per query, which is fine for the single-node collection
// sizes this service targets.
//
// The store exclusively owns its chunk records; search results carry copies.
type Storage struct {
	mu        sync.RWMutex
	path      string
	dimension int
	chunks    []domain.Chunk
}

// New creates an empty store. path is where Persist writes its snapshot;
// an empty path makes Persist a no-op (memory-only store).
func New(path string) *Storage {
	return &Storage{path: path}
}

// Insert appends a batch of chunks. The batch becomes searchable atomically:
// either every chunk is visible or none is. The store adopts the
// dimensionality of the first embedding ever inserted; any later mismatch
// rejects the whole batch and leaves the store unchanged.
func (s *Storage) Insert(chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	if dim == 0 {
		dim = len(chunks[0].Embedding)
		if dim == 0 {
			return fmt.Errorf("%w: chunk %q has no embedding", domain.ErrDimensionMismatch, chunks[0].ID)
		}
	}
	for _, c := range chunks {
		if len(c.Embedding) != dim {
			return fmt.Errorf("%w: chunk %q has dimension %d, store has %d",
				domain.ErrDimensionMismatch, c.ID, len(c.Embedding), dim)
		}
	}
	s.dimension = dim
	s.chunks = append(s.chunks, chunks...)
	return nil
}

// Search scans all stored vectors and returns at most topK results with
// score >= minScore, ordered by descending similarity. Ties keep insertion
// order. An empty store returns an empty result set.
func (s *Storage) Search(query []float32, topK int, minScore float32) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", domain.ErrInvalidConfig, topK)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]domain.SearchResult, 0, len(s.chunks))
	for i := range s.chunks {
		score := cosine(query, s.chunks[i].Embedding)
		if score < minScore {
			continue
		}
		results = append(results, domain.SearchResult{
			Chunk: copyChunk(s.chunks[i]),
			Score: score,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Clear drops all chunks. The adopted dimensionality is reset too, so the
// next insertion establishes it anew.
func (s *Storage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.dimension = 0
	return nil
}

// Count returns the number of stored chunks.
func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// cosine returns dot(a,b) / (|a||b|). A zero-magnitude vector (or a length
// mismatch) yields 0 rather than an error.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func copyChunk(c domain.Chunk) domain.Chunk {
	out := c
	out.Embedding = append([]float32(nil), c.Embedding...)
	return out
}

// Persist writes the full collection to the snapshot path; it is a no-op
// for a memory-only store. The write goes through a temp file and rename so
// a crash never leaves a truncated snapshot behind.
func (s *Storage) Persist() error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	snap := snapshot{
		Version:   snapshotVersion,
		Dimension: s.dimension,
		Chunks:    s.chunks,
	}
	data, err := encodeSnapshot(snap)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load replaces the store's contents with the persisted snapshot. A missing
// file leaves the store empty (first run). An undecodable or wrong-version
// file fails with a format error and the store is untouched.
func (s *Storage) Load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = snap.Dimension
	s.chunks = snap.Chunks
	return nil
}
