package retrieval

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"ragserver/internal/domain"
	"ragserver/internal/vectorstore"
)

// Pipeline answers questions from the store: embed the question, search,
// assemble context from the ranked chunks, prompt the generation gateway.
// Requests are independent; the pipeline holds no per-request state.
type Pipeline struct {
	embedder  domain.Embedder
	generator domain.Generator
	store     vectorstore.Storage
	topK      int
	minScore  float32
	tmpl      *template.Template
	log       *zap.Logger
}

// Options tunes the pipeline. Zero TopK means 5. A nil MinScore means
// 0.7; pointing it at 0 keeps every result. Template overrides the
// default prompt template.
type Options struct {
	TopK     int
	MinScore *float32
	Template string
}

func New(e domain.Embedder, g domain.Generator, s vectorstore.Storage, opts Options, log *zap.Logger) (*Pipeline, error) {
	if opts.TopK == 0 {
		opts.TopK = 5
	}
	if opts.TopK < 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", domain.ErrInvalidConfig, opts.TopK)
	}
	minScore := float32(0.7)
	if opts.MinScore != nil {
		minScore = *opts.MinScore
	}
	tmpl, err := parseTemplate(opts.Template)
	if err != nil {
		return nil, fmt.Errorf("%w: bad prompt template: %v", domain.ErrInvalidConfig, err)
	}
	return &Pipeline{
		embedder:  e,
		generator: g,
		store:     s,
		topK:      opts.TopK,
		minScore:  minScore,
		tmpl:      tmpl,
		log:       log,
	}, nil
}

// Ask answers the question from stored context. When nothing scores above
// the threshold it returns the fixed no-match answer without invoking the
// generation gateway. The generator's output is returned verbatim together
// with the ranked supporting chunks.
func (p *Pipeline) Ask(ctx context.Context, question string) (domain.Answer, error) {
	results, err := p.Retrieve(ctx, question)
	if err != nil {
		return domain.Answer{}, err
	}
	if len(results) == 0 {
		return domain.Answer{Question: question, Text: NoMatchAnswer}, nil
	}

	prompt, err := p.buildPrompt(assembleContext(results), question)
	if err != nil {
		return domain.Answer{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Answer{}, err
	}
	text, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return domain.Answer{}, err
	}
	p.log.Info("answered question",
		zap.Int("sources", len(results)),
		zap.Float32("top_score", results[0].Score))
	return domain.Answer{Question: question, Text: text, Sources: results}, nil
}

// Retrieve exposes the pipeline up through search: the ranked chunks a
// question would be answered from, without calling the generation gateway.
func (p *Pipeline) Retrieve(ctx context.Context, question string) ([]domain.SearchResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.ErrEmptyQuestion
	}
	vec, err := p.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}
	return p.store.Search(vec, p.topK, p.minScore)
}

// assembleContext joins the ranked chunk texts with blank lines.
func assembleContext(results []domain.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Chunk.Text
	}
	return strings.Join(parts, "\n\n")
}
