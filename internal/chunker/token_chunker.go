package chunker

import (
	"fmt"
	"strings"

	"ragserver/internal/domain"
)

// Config bounds chunks in tokens. A token is a whitespace-delimited word.
type Config struct {
	TargetSize int // tokens per chunk
	Overlap    int // tokens shared between consecutive chunks
	MinSize    int // tails below this are merged into the previous chunk
	MaxSize    int // hard cap; no chunk ever exceeds this
}

// Validate fails fast on configuration errors.
func (c Config) Validate() error {
	if c.TargetSize <= 0 {
		return fmt.Errorf("%w: target_size must be positive, got %d", domain.ErrInvalidConfig, c.TargetSize)
	}
	if c.Overlap < 0 || c.Overlap >= c.TargetSize {
		return fmt.Errorf("%w: overlap must satisfy 0 <= overlap < target_size, got %d", domain.ErrInvalidConfig, c.Overlap)
	}
	if c.MinSize < 0 || c.MinSize > c.TargetSize {
		// min_size above target_size would let the whole-document branch emit
		// a chunk longer than max_size.
		return fmt.Errorf("%w: min_size must satisfy 0 <= min_size <= target_size, got %d", domain.ErrInvalidConfig, c.MinSize)
	}
	if c.MaxSize < c.TargetSize {
		return fmt.Errorf("%w: max_size must be >= target_size, got %d", domain.ErrInvalidConfig, c.MaxSize)
	}
	return nil
}

// TokenChunker splits text into overlapping token-bounded chunks.
type TokenChunker struct {
	cfg Config
}

// New creates a chunker or fails with a validation error.
func New(cfg Config) (*TokenChunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &TokenChunker{cfg: cfg}, nil
}

// Split returns the ordered chunk texts for the input. It is a pure
// function: the same input and config always produce the same sequence.
// Runs of whitespace are normalized to single spaces in the output.
func (c *TokenChunker) Split(text string) []string {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) < c.cfg.MinSize {
		// A whole document shorter than min_size is emitted as-is rather
		// than dropped.
		return []string{strings.Join(tokens, " ")}
	}

	step := c.cfg.TargetSize - c.cfg.Overlap
	var chunks []string

	start := 0
	for {
		end := start + c.cfg.TargetSize
		if end >= len(tokens) {
			chunks = append(chunks, strings.Join(tokens[start:], " "))
			break
		}
		next := start + step
		if len(tokens)-next < c.cfg.MinSize {
			// The tail after this window is below min_size. Merge it into
			// the current chunk unless that would break the hard cap, in
			// which case the tail stands alone as a short final chunk.
			if len(tokens)-start <= c.cfg.MaxSize {
				chunks = append(chunks, strings.Join(tokens[start:], " "))
			} else {
				chunks = append(chunks, strings.Join(tokens[start:end], " "))
				chunks = append(chunks, strings.Join(tokens[end:], " "))
			}
			break
		}
		chunks = append(chunks, strings.Join(tokens[start:end], " "))
		start = next
	}

	return chunks
}
