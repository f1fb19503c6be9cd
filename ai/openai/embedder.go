package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	defaultMaxBatchSize  = 256
	defaultMaxTextLength = 8192
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder embeddings.Embedder
	model    string
	limits   ai.Limits
	logger   *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	limits := ai.Limits{MaxBatchSize: defaultMaxBatchSize, MaxTextLength: defaultMaxTextLength}
	if config.MaxBatchSize > 0 {
		limits.MaxBatchSize = config.MaxBatchSize
	}
	if config.MaxTextLength > 0 {
		limits.MaxTextLength = config.MaxTextLength
	}

	client, err := openai.New(
		openai.WithBaseURL(config.Host),
		openai.WithToken(config.APIKey),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, ai.Unavailable(err)
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(limits.MaxBatchSize),
	)
	if err != nil {
		return nil, ai.Unavailable(err)
	}

	return &Embedder{
		embedder: embedder,
		model:    config.EmbeddingModel,
		limits:   limits,
		logger:   slog.Default().With("component", "openai-embedder"),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
// The API decides whether vectors come back normalized, so normalize is left
// to the caller.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string, _ bool) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, ai.ClassifyTransportError(err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d texts", core.ErrValidation, len(vectors), len(texts))
	}
	return vectors, nil
}

// Limits returns the request limits.
func (e *Embedder) Limits() ai.Limits {
	return e.limits
}

// Normalizes reports false; OpenAI-compatible servers differ.
func (e *Embedder) Normalizes() bool {
	return false
}

// Model returns the embedding model identifier.
func (e *Embedder) Model() string {
	return e.model
}
