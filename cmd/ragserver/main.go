package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	"ragserver/internal/server"
	"ragserver/internal/vectorstore/memory"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "config.yaml", "Path to YAML config file")
	flag.Parse()

	log := newLogger()
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	store := memory.New(cfg.Store.Path)
	if err := store.Load(); err != nil {
		// An unreadable snapshot is never patched over into a partial store.
		log.Fatal("failed to load store snapshot", zap.String("path", cfg.Store.Path), zap.Error(err))
	}
	log.Info("store loaded", zap.Int("chunks", store.Count()))

	ck, err := chunker.New(chunker.Config{
		TargetSize: cfg.Chunker.TargetSize,
		Overlap:    cfg.Chunker.Overlap,
		MinSize:    cfg.Chunker.MinSize,
		MaxSize:    cfg.Chunker.MaxSize,
	})
	if err != nil {
		log.Fatal("invalid chunker config", zap.Error(err))
	}

	embedder, generator, err := buildGateway(cfg)
	if err != nil {
		log.Fatal("gateway init failed", zap.Error(err))
	}

	ing := ingest.New(parser.NewRegistry(), ck, embedder, store, log)
	ret, err := retrieval.New(embedder, generator, store, retrieval.Options{
		TopK:     cfg.Retrieval.TopK,
		MinScore: cfg.Retrieval.MinScore,
		Template: cfg.Retrieval.Template,
	}, log)
	if err != nil {
		log.Fatal("invalid retrieval config", zap.Error(err))
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(ing, ret, cfg.Documents.Path, log).Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
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

func newLogger() *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if os.Getenv("ENV") == "development" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if os.Getenv("LOG_LEVEL") == "debug" {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	log, err := zcfg.Build()
	if err != nil {
		panic(err)
	}
	return log
}
