package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/urdufact-go/internal/config"
	"github.com/raphaelgruber/urdufact-go/internal/metrics"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder embeds few-shot example keys for similarity selection. It checks
// vector dimensions when a dimension is configured.
type Embedder struct {
	model     embeddings.Embedder
	modelName string
	dimension int
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// embeddingClients builds the langchaingo client for each supported provider.
// Keys and hosts come from the chat model settings.
var embeddingClients = map[config.Provider]func(cfg config.Config) (embeddings.EmbedderClient, error){
	config.ProviderOllama: func(cfg config.Config) (embeddings.EmbedderClient, error) {
		return ollama.New(
			ollama.WithModel(cfg.Embedding.Model),
			ollama.WithServerURL(cfg.LLM.OllamaHost),
		)
	},
	config.ProviderOpenAI: func(cfg config.Config) (embeddings.EmbedderClient, error) {
		if cfg.LLM.OpenAIAPIKey == "" {
			return nil, errors.New("OpenAI API key required for embeddings")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.LLM.OpenAIAPIKey),
			openai.WithEmbeddingModel(cfg.Embedding.Model),
		}
		if cfg.LLM.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLM.OpenAIBaseURL))
		}
		return openai.New(opts...)
	},
}

// NewEmbedder creates the embedder selected by cfg.Embedding.
func NewEmbedder(cfg config.Config, collector *metrics.Collector) (*Embedder, error) {
	build, ok := embeddingClients[cfg.Embedding.Provider]
	if !ok {
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}
	client, err := build(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Embedding.Provider, err)
	}
	model, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", cfg.Embedding.Provider, err)
	}
	return NewEmbedderFrom(model, cfg.Embedding.Model, cfg.Embedding.Dimension, collector), nil
}

// NewEmbedderFrom wraps an existing langchaingo embedder. A zero dimension
// accepts vectors of any length.
func NewEmbedderFrom(model embeddings.Embedder, name string, dimension int, collector *metrics.Collector) *Embedder {
	return &Embedder{
		model:     model,
		modelName: name,
		dimension: dimension,
		metrics:   collector,
		logger:    slog.Default().With("component", "embedder", "model", name),
	}
}

// Embed returns the vector of a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per text, in order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	vectors, err := e.model.EmbedDocuments(ctx, texts)
	if err == nil {
		err = e.check(vectors, len(texts))
	}
	duration := time.Since(start)
	if e.metrics != nil {
		e.metrics.Observe(metrics.OpEmbedding, duration, err)
	}
	if err != nil {
		e.logger.Warn("embedding failed", "texts", len(texts), "duration_ms", duration.Milliseconds(), "error", err)
		return nil, fmt.Errorf("embed: %w", err)
	}

	e.logger.Debug("embedded texts", "texts", len(texts), "duration_ms", duration.Milliseconds())
	return vectors, nil
}

func (e *Embedder) check(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("got %d vectors for %d texts", len(vectors), want)
	}
	if e.dimension == 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != e.dimension {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), e.dimension)
		}
	}
	return nil
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.modelName
}
