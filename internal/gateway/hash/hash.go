package hash

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Embedder is a deterministic, model-free embedder: each lowercased token is
// hashed into one of dim buckets and the resulting bag-of-tokens vector is
// L2-normalized. Texts sharing vocabulary get similar vectors, which is
// enough for offline use and for exercising the retrieval pipeline without
// a live model. Same text, same vector, always.
type Embedder struct {
	dim int
}

// New creates an embedder with the given dimensionality (256 if not
// positive).
func New(dim int) *Embedder {
	if dim <= 0 {
		dim = 256
	}
	return &Embedder{dim: dim}
}

func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%uint32(e.dim)]++
	}
	l2normalize(vec)
	return vec, nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}

func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
