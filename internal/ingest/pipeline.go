package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragserver/internal/chunker"
	"ragserver/internal/domain"
	"ragserver/internal/parser"
	"ragserver/internal/vectorstore"
)

// Pipeline turns a document directory into stored, searchable chunks:
// directory scan, parse, chunk, embed, insert.
//
// Re-running Ingest over the same directory inserts duplicate chunks;
// there is no upsert by source. Rebuild is the remedy: it clears the
// store first and indexes the directory from scratch.
type Pipeline struct {
	parser   *parser.Registry
	chunker  *chunker.TokenChunker
	embedder domain.Embedder
	store    vectorstore.Storage
	log      *zap.Logger
}

func New(p *parser.Registry, c *chunker.TokenChunker, e domain.Embedder, s vectorstore.Storage, log *zap.Logger) *Pipeline {
	return &Pipeline{parser: p, chunker: c, embedder: e, store: s, log: log}
}

// Ingest walks dir recursively and stores every supported document's
// chunks, returning the number of chunks stored. A parse or embedding
// failure for one file is logged and that file is skipped; chunks already
// stored from earlier files stay stored. A missing directory is created
// empty and 0 is returned, the first-run bootstrap case.
//
// After a run that stored chunks the store is persisted; a persist failure
// is returned alongside the count.
func (p *Pipeline) Ingest(ctx context.Context, dir string) (int, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create documents directory: %w", err)
		}
		p.log.Info("created empty documents directory", zap.String("dir", dir))
		return 0, nil
	}

	total := 0
	files := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !p.parser.Supported(path) {
			return nil
		}
		n, err := p.ingestFile(ctx, path)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.log.Warn("skipping file", zap.String("file", path), zap.Error(err))
			return nil
		}
		if n > 0 {
			files++
			total += n
		}
		return nil
	})
	if err != nil {
		return total, err
	}

	p.log.Info("ingestion complete", zap.Int("chunks", total), zap.Int("files", files))
	if total > 0 {
		if err := p.store.Persist(); err != nil {
			return total, fmt.Errorf("persist store: %w", err)
		}
	}
	return total, nil
}

// Rebuild drops every stored chunk and then ingests dir, so the store
// ends up holding exactly one copy of the directory's current contents.
func (p *Pipeline) Rebuild(ctx context.Context, dir string) (int, error) {
	if err := p.store.Clear(); err != nil {
		return 0, fmt.Errorf("clear store: %w", err)
	}
	p.log.Info("store cleared for rebuild", zap.String("dir", dir))
	count, err := p.Ingest(ctx, dir)
	if err != nil {
		return count, err
	}
	// Ingest persists only when it stored something; an empty rebuild still
	// has to write out the now-empty store.
	if count == 0 {
		if err := p.store.Persist(); err != nil {
			return 0, fmt.Errorf("persist store: %w", err)
		}
	}
	return count, nil
}

func (p *Pipeline) ingestFile(ctx context.Context, path string) (int, error) {
	text, err := p.parser.Parse(path)
	if err != nil {
		return 0, fmt.Errorf("parse: %w", err)
	}
	texts := p.chunker.Split(text)
	if len(texts) == 0 {
		return 0, nil
	}
	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}

	source := filepath.Base(path)
	chunks := make([]domain.Chunk, len(texts))
	for i := range texts {
		chunks[i] = domain.Chunk{
			ID:        uuid.NewString(),
			Text:      texts[i],
			SourceID:  source,
			Sequence:  i,
			Embedding: vecs[i],
		}
	}
	// One Insert per file: the batch is atomic, and a later file's failure
	// never rolls back chunks stored before it.
	if err := p.store.Insert(chunks); err != nil {
		return 0, fmt.Errorf("store: %w", err)
	}
	p.log.Debug("ingested file", zap.String("file", source), zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}
