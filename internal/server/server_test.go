package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ragserver/internal/chunker"
	"ragserver/internal/domain"
	"ragserver/internal/ingest"
	"ragserver/internal/parser"
	"ragserver/internal/retrieval"
	"ragserver/internal/vectorstore/memory"
)

// keywordEmbedder maps any text to a unit vector over two hand-picked
// keywords, so relevance is easy to reason about in assertions.
type keywordEmbedder struct {
	failing bool
}

func (e keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.failing {
		return nil, fmt.Errorf("%w: service down", domain.ErrEmbedding)
	}
	lower := strings.ToLower(text)
	vec := []float32{0.01, 0.01}
	if strings.Contains(lower, "limit") {
		vec[0] = 1
	}
	if strings.Contains(lower, "penguin") {
		vec[1] = 1
	}
	return vec, nil
}

func (e keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type staticGenerator struct {
	answer string
	err    error
}

func (g staticGenerator) Generate(context.Context, string) (string, error) {
	return g.answer, g.err
}

func newTestServer(t *testing.T, emb domain.Embedder, gen domain.Generator, docsDir string) (*httptest.Server, *memory.Storage) {
	t.Helper()
	store := memory.New("")
	ck, err := chunker.New(chunker.Config{TargetSize: 16, Overlap: 2, MinSize: 2, MaxSize: 32})
	require.NoError(t, err)

	minScore := float32(0.5)
	ing := ingest.New(parser.NewRegistry(), ck, emb, store, zap.NewNop())
	ret, err := retrieval.New(emb, gen, store, retrieval.Options{MinScore: &minScore}, zap.NewNop())
	require.NoError(t, err)

	ts := httptest.NewServer(New(ing, ret, docsDir, zap.NewNop()).Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, keywordEmbedder{}, staticGenerator{answer: "ok"}, t.TempDir())
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestIngestEndpointReportsCount(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeFile(dir, "limits.txt", "The annual limit is $7,000."))
	ts, store := newTestServer(t, keywordEmbedder{}, staticGenerator{answer: "x"}, dir)

	resp, err := http.Post(ts.URL+"/ingest", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		DocumentsIngested int `json:"documentsIngested"`
	}
	decode(t, resp, &body)
	assert.Equal(t, 1, body.DocumentsIngested)
	assert.Equal(t, 1, store.Count())
}

func TestIngestRebuildReplacesInsteadOfAppending(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeFile(dir, "limits.txt", "The annual limit is $7,000."))
	ts, store := newTestServer(t, keywordEmbedder{}, staticGenerator{answer: "x"}, dir)

	for i := 0; i < 2; i++ {
		resp, err := http.Post(ts.URL+"/ingest", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
	}
	require.Equal(t, 2, store.Count(), "plain re-ingestion appends duplicates")

	resp, err := http.Post(ts.URL+"/ingest?rebuild=true", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Message           string `json:"message"`
		DocumentsIngested int    `json:"documentsIngested"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "rebuild complete", body.Message)
	assert.Equal(t, 1, body.DocumentsIngested)
	assert.Equal(t, 1, store.Count())
}

func TestAskValidation(t *testing.T) {
	ts, _ := newTestServer(t, keywordEmbedder{}, staticGenerator{answer: "x"}, t.TempDir())

	resp, err := http.Post(ts.URL+"/ask", "application/json", strings.NewReader(`{"question":"  "}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/ask", "application/json", strings.NewReader(`{broken`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAskEndToEnd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeFile(dir, "limits.txt", "The annual limit is $7,000."))
	ts, _ := newTestServer(t, keywordEmbedder{}, staticGenerator{answer: "The limit is $7,000."}, dir)

	resp, err := http.Post(ts.URL+"/ingest", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Post(ts.URL+"/ask", "application/json",
		strings.NewReader(`{"question":"What is the limit?"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "What is the limit?", body.Question)
	assert.Contains(t, body.Answer, "$7,000")
}

func TestRetrieveEndpoint(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeFile(dir, "limits.txt", "The annual limit is $7,000."))
	ts, _ := newTestServer(t, keywordEmbedder{}, staticGenerator{answer: "x"}, dir)

	resp, err := http.Post(ts.URL+"/ingest", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/retrieve?question=what+is+the+limit")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Documents []struct {
			Content    string  `json:"content"`
			Source     string  `json:"source"`
			Similarity float32 `json:"similarity"`
		} `json:"documents"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Documents, 1)
	assert.Equal(t, "limits.txt", body.Documents[0].Source)
	assert.Contains(t, body.Documents[0].Content, "$7,000")
	assert.Greater(t, body.Documents[0].Similarity, float32(0.5))

	// Blank question is a client error.
	resp, err = http.Get(ts.URL + "/retrieve?question=")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGatewayFailureMapsToBadGatewayWithoutLeaking(t *testing.T) {
	ts, _ := newTestServer(t, keywordEmbedder{failing: true}, staticGenerator{answer: "x"}, t.TempDir())

	resp, err := http.Post(ts.URL+"/ask", "application/json", strings.NewReader(`{"question":"anything"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "embedding service unavailable", body["error"])
	assert.NotContains(t, body["error"], "service down", "upstream detail must not leak")
}

func TestAskNoMatchReturnsFixedAnswer(t *testing.T) {
	ts, _ := newTestServer(t, keywordEmbedder{}, staticGenerator{answer: "should not be called"}, t.TempDir())

	resp, err := http.Post(ts.URL+"/ask", "application/json", strings.NewReader(`{"question":"penguins?"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Answer string `json:"answer"`
	}
	decode(t, resp, &body)
	assert.Equal(t, retrieval.NoMatchAnswer, body.Answer)
}

func writeFile(dir, name, content string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644)
}
