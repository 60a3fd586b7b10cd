package domain

import "context"

// Chunk is the unit of retrieval: a bounded span of document text stored
// together with its embedding.
type Chunk struct {
	ID        string
	Text      string
	SourceID  string
	Sequence  int
	Embedding []float32
}

// SearchResult is a matched chunk with its cosine similarity score in [-1, 1].
// Higher is better.
type SearchResult struct {
	Chunk Chunk
	Score float32
}

// Answer is the retrieval pipeline's output: the generated answer plus the
// ranked chunks it was conditioned on, for citation and debugging.
type Answer struct {
	Question string
	Text     string
	Sources  []SearchResult
}

// Embedder converts text into a fixed-length vector. Closer vectors mean
// closer meaning; no further semantics are assumed.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces an answer from an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
