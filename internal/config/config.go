package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"ragserver/internal/domain"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DocumentsConfig locates the source document directory.
type DocumentsConfig struct {
	Path string `yaml:"path"`
}

// StoreConfig configures the vector store snapshot.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ChunkerConfig bounds chunks in tokens.
type ChunkerConfig struct {
	TargetSize int `yaml:"target_size"`
	Overlap    int `yaml:"overlap"`
	MinSize    int `yaml:"min_size"`
	MaxSize    int `yaml:"max_size"`
}

// RetrievalConfig tunes query-time behavior. Template, if set, overrides
// the built-in prompt template; it receives .Context and .Question.
// MinScore is a pointer so an explicit 0 (keep every result) is
// distinguishable from an absent key, which defaults to 0.7.
type RetrievalConfig struct {
	TopK     int      `yaml:"top_k"`
	MinScore *float32 `yaml:"min_score"`
	Template string   `yaml:"template,omitempty"`
}

// OpenAIConfig configures the OpenAI-compatible gateway.
type OpenAIConfig struct {
	APIKeyEnv      string `yaml:"api_key_env"`
	BaseURL        string `yaml:"base_url"`
	EmbeddingModel string `yaml:"embedding_model"`
	ChatModel      string `yaml:"chat_model"`
}

// HashConfig configures the offline hash gateway.
type HashConfig struct {
	Dimension    int `yaml:"dimension"`
	MaxSentences int `yaml:"max_sentences"`
}

// GatewayConfig selects the embedding/generation gateway implementation.
type GatewayConfig struct {
	Type   string        `yaml:"type"` // "openai" or "hash"
	OpenAI *OpenAIConfig `yaml:"openai,omitempty"`
	Hash   *HashConfig   `yaml:"hash,omitempty"`
}

// AppConfig is the root application configuration.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Documents DocumentsConfig `yaml:"documents"`
	Store     StoreConfig     `yaml:"store"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Gateway   GatewayConfig   `yaml:"gateway"`
}

// Load reads a config from path. A missing file returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Documents.Path == "" {
		cfg.Documents.Path = "documents"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "data/store.gob"
	}
	if cfg.Chunker.TargetSize == 0 {
		cfg.Chunker.TargetSize = 512
		if cfg.Chunker.Overlap == 0 {
			cfg.Chunker.Overlap = 50
		}
	}
	if cfg.Chunker.MinSize == 0 {
		cfg.Chunker.MinSize = 5
	}
	if cfg.Chunker.MaxSize == 0 {
		cfg.Chunker.MaxSize = 1000
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.MinScore == nil {
		minScore := float32(0.7)
		cfg.Retrieval.MinScore = &minScore
	}
	if cfg.Gateway.Type == "" {
		cfg.Gateway.Type = "openai"
	}
	if cfg.Gateway.Type == "openai" && cfg.Gateway.OpenAI == nil {
		cfg.Gateway.OpenAI = &OpenAIConfig{}
	}
	if cfg.Gateway.Type == "hash" && cfg.Gateway.Hash == nil {
		cfg.Gateway.Hash = &HashConfig{}
	}
}

func validate(cfg *AppConfig) error {
	switch cfg.Gateway.Type {
	case "openai", "hash":
	default:
		return fmt.Errorf("%w: unknown gateway type %q", domain.ErrInvalidConfig, cfg.Gateway.Type)
	}
	if cfg.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrInvalidConfig, cfg.Retrieval.TopK)
	}
	return nil
}
