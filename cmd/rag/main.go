package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ragserver/internal/chunker"
	"ragserver/internal/config"
	"ragserver/internal/domain"
	"ragserver/internal/gateway/hash"
	"ragserver/internal/gateway/openai"
	"ragserver/internal/ingest"
	"ragserver/internal/parser"
	"ragserver/internal/retrieval"
	"ragserver/internal/tui"
	"ragserver/internal/vectorstore/memory"
)

// rag is the interactive terminal client: ingest a document directory,
// then retrieve and ask against it in a TUI session.
func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "config.yaml", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal("failed to load config: %v", err)
	}
	if dir := flag.Arg(0); dir != "" {
		cfg.Documents.Path = dir
	}

	// TUI owns the terminal; keep zap quiet unless something is wrong.
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	zcfg.OutputPaths = []string{"stderr"}
	log, err := zcfg.Build()
	if err != nil {
		fatal("logger init failed: %v", err)
	}
	defer func() { _ = log.Sync() }()

	store := memory.New(cfg.Store.Path)
	if err := store.Load(); err != nil {
		fatal("failed to load store snapshot: %v", err)
	}

	ck, err := chunker.New(chunker.Config{
		TargetSize: cfg.Chunker.TargetSize,
		Overlap:    cfg.Chunker.Overlap,
		MinSize:    cfg.Chunker.MinSize,
		MaxSize:    cfg.Chunker.MaxSize,
	})
	if err != nil {
		fatal("invalid chunker config: %v", err)
	}

	embedder, generator, err := buildGateway(cfg)
	if err != nil {
		fatal("gateway init failed: %v", err)
	}

	ing := ingest.New(parser.NewRegistry(), ck, embedder, store, log)
	count, err := ing.Ingest(context.Background(), cfg.Documents.Path)
	if err != nil {
		fatal("ingest failed: %v", err)
	}

	ret, err := retrieval.New(embedder, generator, store, retrieval.Options{
		TopK:     cfg.Retrieval.TopK,
		MinScore: cfg.Retrieval.MinScore,
		Template: cfg.Retrieval.Template,
	}, log)
	if err != nil {
		fatal("invalid retrieval config: %v", err)
	}

	// Ctrl+r in the session drops the index and re-ingests the directory,
	// the escape hatch when re-running ingestion has piled up duplicates.
	rebuild := tui.RebuildFunc(func(ctx context.Context) (int, error) {
		return ing.Rebuild(ctx, cfg.Documents.Path)
	})

	header := fmt.Sprintf("Indexed %d chunk(s) this run, %d total from %s",
		count, store.Count(), cfg.Documents.Path)
	m := tui.New(ret, rebuild, header)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		fatal("%v", err)
	}
}

func buildGateway(cfg *config.AppConfig) (domain.Embedder, domain.Generator, error) {
	switch cfg.Gateway.Type {
	case "hash":
		h := cfg.Gateway.Hash
		return hash.New(h.Dimension), hash.NewGenerator(h.MaxSentences), nil
	default:
		client, err := openai.New(openai.Config{
			APIKeyEnv:      cfg.Gateway.OpenAI.APIKeyEnv,
			BaseURL:        cfg.Gateway.OpenAI.BaseURL,
			EmbeddingModel: cfg.Gateway.OpenAI.EmbeddingModel,
			ChatModel:      cfg.Gateway.OpenAI.ChatModel,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
