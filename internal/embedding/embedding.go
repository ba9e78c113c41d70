// Package embedding turns text into vectors for neighbor search.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrUnavailable is returned when no embedding backend is configured.
var ErrUnavailable = errors.New("embedding service unavailable")

// Embedder produces a vector for one text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config selects and configures the backend.
type Config struct {
	Provider string // openai | ollama | none
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// LangChain wraps a langchaingo embedder.
type LangChain struct {
	impl    embeddings.Embedder
	timeout time.Duration
}

// New returns nil, nil for provider "none" or an empty provider.
func New(cfg Config) (*LangChain, error) {
	var client embeddings.EmbedderClient
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "none":
		return nil, nil
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		c, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("init openai embeddings: %w", err)
		}
		client = c
	case "ollama":
		c, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("init ollama embeddings: %w", err)
		}
		client = c
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	impl, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return &LangChain{impl: impl, timeout: cfg.Timeout}, nil
}

// Embed returns the vector for text.
func (l *LangChain) Embed(ctx context.Context, text string) ([]float32, error) {
	if l == nil || l.impl == nil {
		return nil, ErrUnavailable
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	vec, err := l.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embed query: empty vector")
	}
	return vec, nil
}

// Func adapts a function to Embedder.
type Func func(ctx context.Context, text string) ([]float32, error)

// Embed implements Embedder.
func (f Func) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}
