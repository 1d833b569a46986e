// Package provider adapts goframe's LLM/embedding clients — selected and
// constructed the way the teacher's internal/app.createEmbedder/createLLM do
// — into the domain's core.EmbeddingProvider and core.LLMProvider contracts.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sevigo/goframe/embeddings"
	"github.com/sevigo/goframe/llms/gemini"
	"github.com/sevigo/goframe/llms/ollama"

	"github.com/sevigo/codesentry/internal/config"
	"github.com/sevigo/codesentry/internal/embedindex"
)

// newOllamaHTTPClient gives Ollama calls a longer timeout budget than
// net/http's defaults; Ollama routinely takes multiple seconds per call.
func newOllamaHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: 2 * time.Minute}
}

// embeddingProvider adapts a goframe embeddings.Embedder into
// core.EmbeddingProvider, normalizing every vector to unit length and
// reporting a fixed, configured dimension.
type embeddingProvider struct {
	embedder embeddings.Embedder
	dim      int
}

// NewEmbeddingProvider builds the embeddings.Embedder selected by
// cfg.Embedding.Provider ("ollama" or "gemini") and wraps it as a
// core.EmbeddingProvider reporting cfg.Embedding.Dim.
func NewEmbeddingProvider(ctx context.Context, cfg config.EmbeddingConfig, logger *slog.Logger) (*embeddingProvider, error) {
	var backend embeddings.Embedder
	var err error

	switch cfg.Provider {
	case "gemini":
		backend, err = gemini.New(ctx,
			gemini.WithEmbeddingModel(cfg.Model),
			gemini.WithAPIKey(cfg.GeminiAPIKey),
		)
		if err != nil {
			return nil, fmt.Errorf("provider: create gemini embedder: %w", err)
		}
	case "ollama":
		backend, err = ollama.New(
			ollama.WithServerURL(cfg.OllamaHost),
			ollama.WithModel(cfg.Model),
			ollama.WithHTTPClient(newOllamaHTTPClient()),
			ollama.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("provider: create ollama embedder: %w", err)
		}
	default:
		return nil, fmt.Errorf("provider: unsupported embedding provider %q", cfg.Provider)
	}

	embedder, err := embeddings.NewEmbedder(backend)
	if err != nil {
		return nil, fmt.Errorf("provider: wrap embedder: %w", err)
	}

	return &embeddingProvider{embedder: embedder, dim: cfg.Dim}, nil
}

func (p *embeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("provider: embed query: %w", err)
	}
	return embedindex.Normalize(vec), nil
}

func (p *embeddingProvider) Dim() int {
	return p.dim
}
