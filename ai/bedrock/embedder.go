package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
)

const (
	// DefaultMaxBatchSize is the number of texts grouped per embedding batch.
	DefaultMaxBatchSize = 25
	// DefaultMaxTextLength is the largest number of characters sent per text.
	DefaultMaxTextLength = 8192
)

type titanRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  *bool  `json:"normalize,omitempty"`
}

type titanResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// Embedder implements ai.Embedder with Amazon Titan text embeddings.
// Titan embeds one text per call, so a batch becomes sequential invocations.
type Embedder struct {
	runtime Runtime
	model   string
	dim     int
	limits  ai.Limits
	logger  *slog.Logger
}

func newEmbedder(runtime Runtime, config *ai.Config) *Embedder {
	limits := ai.Limits{MaxBatchSize: DefaultMaxBatchSize, MaxTextLength: DefaultMaxTextLength}
	if config.MaxBatchSize > 0 {
		limits.MaxBatchSize = config.MaxBatchSize
	}
	if config.MaxTextLength > 0 {
		limits.MaxTextLength = config.MaxTextLength
	}
	return &Embedder{
		runtime: runtime,
		model:   config.EmbeddingModel,
		dim:     config.Dimensions,
		limits:  limits,
		logger:  slog.Default().With("component", "bedrock-embedder"),
	}
}

// configurable reports whether the model accepts dimensions and normalize.
func (e *Embedder) configurable() bool {
	return strings.Contains(strings.ToLower(e.model), "embed-text-v2")
}

func (e *Embedder) request(text string, normalize bool) ([]byte, error) {
	req := titanRequest{InputText: text}
	if e.configurable() {
		req.Dimensions = e.dim
		req.Normalize = &normalize
	}
	return json.Marshal(req)
}

// EmbedTexts embeds each text with its own Titan invocation, in order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		body, err := e.request(text, normalize)
		if err != nil {
			return nil, err
		}
		raw, err := e.runtime.Invoke(ctx, e.model, body)
		if err != nil {
			return nil, err
		}
		var resp titanResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
		}
		if len(resp.Embedding) != e.dim {
			e.logger.Warn("embedding dimension mismatch", "model", e.model, "want", e.dim, "got", len(resp.Embedding))
			return nil, fmt.Errorf("%w: %w: want %d, got %d", core.ErrValidation, core.ErrDimensionMismatch, e.dim, len(resp.Embedding))
		}
		out = append(out, resp.Embedding)
	}
	return out, nil
}

// Limits returns the batch and text limits.
func (e *Embedder) Limits() ai.Limits {
	return e.limits
}

// Normalizes reports whether Titan normalizes server side for this model.
func (e *Embedder) Normalizes() bool {
	return e.configurable()
}

// Model returns the embedding model identifier.
func (e *Embedder) Model() string {
	return e.model
}
