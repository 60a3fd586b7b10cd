package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ragserver/internal/domain"
	"ragserver/internal/vectorstore/memory"
)

// fakeEmbedder returns canned vectors keyed by text; unknown texts fail.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: no canned vector for %q", domain.ErrEmbedding, text)
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// fakeGenerator echoes the prompt it was given, so tests can assert on
// context assembly.
type fakeGenerator struct {
	err    error
	calls  int
	prompt string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return "generated from: " + prompt, nil
}

func threshold(v float32) *float32 { return &v }

func storeWith(t *testing.T, chunks ...domain.Chunk) *memory.Storage {
	t.Helper()
	s := memory.New("")
	require.NoError(t, s.Insert(chunks))
	return s
}

func newPipeline(t *testing.T, e domain.Embedder, g domain.Generator, s *memory.Storage, opts Options) *Pipeline {
	t.Helper()
	p, err := New(e, g, s, opts, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestAskRejectsBlankQuestion(t *testing.T) {
	emb := &fakeEmbedder{}
	gen := &fakeGenerator{}
	p := newPipeline(t, emb, gen, memory.New(""), Options{})

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := p.Ask(context.Background(), q)
		assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
	}
	assert.Zero(t, emb.calls, "validation must reject before any retrieval work")
	assert.Zero(t, gen.calls)
}

func TestAskEmptyStoreReturnsNoMatchWithoutGenerating(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{"anything?": {1, 0}}}
	gen := &fakeGenerator{}
	p := newPipeline(t, emb, gen, memory.New(""), Options{})

	ans, err := p.Ask(context.Background(), "anything?")
	require.NoError(t, err)
	assert.Equal(t, NoMatchAnswer, ans.Text)
	assert.Empty(t, ans.Sources)
	assert.Zero(t, gen.calls, "no-match must not invoke the generation gateway")
}

func TestAskAssemblesContextInRankedOrder(t *testing.T) {
	store := storeWith(t,
		domain.Chunk{ID: "1", Text: "second best", SourceID: "a.txt", Embedding: []float32{0.8, 0.6}},
		domain.Chunk{ID: "2", Text: "best match", SourceID: "a.txt", Embedding: []float32{1, 0}},
	)
	emb := &fakeEmbedder{vectors: map[string][]float32{"q?": {1, 0}}}
	gen := &fakeGenerator{}
	p := newPipeline(t, emb, gen, store, Options{MinScore: threshold(0.5)})

	ans, err := p.Ask(context.Background(), "q?")
	require.NoError(t, err)
	require.Len(t, ans.Sources, 2)
	assert.Equal(t, "best match", ans.Sources[0].Chunk.Text)

	assert.Contains(t, gen.prompt, "best match\n\nsecond best",
		"context must be ranked chunk texts separated by a blank line")
	assert.Contains(t, gen.prompt, "Question: q?")
	assert.Equal(t, "generated from: "+gen.prompt, ans.Text, "generator output is returned verbatim")
}

func TestAskSurfacesGatewayFailures(t *testing.T) {
	store := storeWith(t, domain.Chunk{ID: "1", Text: "x", Embedding: []float32{1, 0}})

	t.Run("embedding", func(t *testing.T) {
		emb := &fakeEmbedder{err: fmt.Errorf("%w: boom", domain.ErrEmbedding)}
		gen := &fakeGenerator{}
		p := newPipeline(t, emb, gen, store, Options{})
		_, err := p.Ask(context.Background(), "q?")
		assert.ErrorIs(t, err, domain.ErrEmbedding)
		assert.Zero(t, gen.calls)
	})

	t.Run("generation", func(t *testing.T) {
		emb := &fakeEmbedder{vectors: map[string][]float32{"q?": {1, 0}}}
		gen := &fakeGenerator{err: fmt.Errorf("%w: boom", domain.ErrGeneration)}
		p := newPipeline(t, emb, gen, store, Options{MinScore: threshold(0.5)})
		_, err := p.Ask(context.Background(), "q?")
		assert.ErrorIs(t, err, domain.ErrGeneration)
	})
}

func TestAskHonorsCancellation(t *testing.T) {
	store := storeWith(t, domain.Chunk{ID: "1", Text: "x", Embedding: []float32{1, 0}})
	emb := &fakeEmbedder{vectors: map[string][]float32{"q?": {1, 0}}}
	gen := &fakeGenerator{}
	p := newPipeline(t, emb, gen, store, Options{MinScore: threshold(0.5)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Ask(ctx, "q?")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, gen.calls, "a cancelled request must stop before generation")
}

func TestRetrieveMinScoreAboveRange(t *testing.T) {
	store := storeWith(t, domain.Chunk{ID: "1", Text: "x", Embedding: []float32{1, 0}})
	emb := &fakeEmbedder{vectors: map[string][]float32{"q?": {1, 0}}}
	p := newPipeline(t, emb, &fakeGenerator{}, store, Options{MinScore: threshold(1.1)})

	res, err := p.Retrieve(context.Background(), "q?")
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestExplicitZeroMinScoreKeepsWeakMatches(t *testing.T) {
	// An explicit 0 threshold is honored, not replaced with the 0.7
	// default; only a nil MinScore means "use the default".
	store := storeWith(t, domain.Chunk{ID: "1", Text: "weak", Embedding: []float32{0.6, 0.8}})
	emb := &fakeEmbedder{vectors: map[string][]float32{"q?": {1, 0}}}

	defaulted := newPipeline(t, emb, &fakeGenerator{}, store, Options{})
	res, err := defaulted.Retrieve(context.Background(), "q?")
	require.NoError(t, err)
	assert.Empty(t, res, "score 0.6 is below the 0.7 default")

	open := newPipeline(t, emb, &fakeGenerator{}, store, Options{MinScore: threshold(0)})
	res, err = open.Retrieve(context.Background(), "q?")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.InDelta(t, 0.6, res[0].Score, 1e-5)
}

func TestRetrieveRespectsTopK(t *testing.T) {
	chunks := make([]domain.Chunk, 8)
	for i := range chunks {
		chunks[i] = domain.Chunk{ID: fmt.Sprintf("%d", i), Text: "t", Embedding: []float32{1, 0}}
	}
	store := storeWith(t, chunks...)
	emb := &fakeEmbedder{vectors: map[string][]float32{"q?": {1, 0}}}
	p := newPipeline(t, emb, &fakeGenerator{}, store, Options{TopK: 3, MinScore: threshold(0.5)})

	res, err := p.Retrieve(context.Background(), "q?")
	require.NoError(t, err)
	assert.Len(t, res, 3)
}

func TestCustomTemplate(t *testing.T) {
	store := storeWith(t, domain.Chunk{ID: "1", Text: "ctx", Embedding: []float32{1, 0}})
	emb := &fakeEmbedder{vectors: map[string][]float32{"q?": {1, 0}}}
	gen := &fakeGenerator{}
	p := newPipeline(t, emb, gen, store, Options{
		MinScore: threshold(0.5),
		Template: "C={{.Context}} Q={{.Question}}",
	})

	_, err := p.Ask(context.Background(), "q?")
	require.NoError(t, err)
	assert.Equal(t, "C=ctx Q=q?", gen.prompt)
}

func TestBadTemplateIsConfigError(t *testing.T) {
	_, err := New(&fakeEmbedder{}, &fakeGenerator{}, memory.New(""), Options{Template: "{{.Oops"}, zap.NewNop())
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestIdenticalTextIsTopResultWithScoreOne(t *testing.T) {
	// A query embedded identically to a stored chunk must come back first
	// with similarity ~1.
	vec := []float32{0.3, 0.4, 0.5}
	store := storeWith(t,
		domain.Chunk{ID: "other", Text: "unrelated", Embedding: []float32{-0.5, 0.1, 0.2}},
		domain.Chunk{ID: "same", Text: "the exact text", Embedding: vec},
	)
	emb := &fakeEmbedder{vectors: map[string][]float32{"the exact text": vec}}
	p := newPipeline(t, emb, &fakeGenerator{}, store, Options{MinScore: threshold(-1)})

	res, err := p.Retrieve(context.Background(), "the exact text")
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "same", res[0].Chunk.ID)
	assert.InDelta(t, 1.0, res[0].Score, 1e-5)
}

func TestAnswerContainsRetrievedFact(t *testing.T) {
	// End-to-end over the pipeline with a generator that answers from its
	// context, mirroring the single-document "$7,000" scenario.
	store := storeWith(t, domain.Chunk{
		ID: "1", Text: "The limit is $7,000.", SourceID: "limits.txt", Embedding: []float32{1, 0},
	})
	emb := &fakeEmbedder{vectors: map[string][]float32{"What is the limit?": {0.95, 0.05}}}
	gen := &fakeGenerator{}
	p := newPipeline(t, emb, gen, store, Options{})

	ans, err := p.Ask(context.Background(), "What is the limit?")
	require.NoError(t, err)
	require.Len(t, ans.Sources, 1)
	assert.Greater(t, ans.Sources[0].Score, float32(0.7))
	assert.Equal(t, "limits.txt", ans.Sources[0].Chunk.SourceID)
	assert.True(t, strings.Contains(ans.Text, "$7,000"))
}
