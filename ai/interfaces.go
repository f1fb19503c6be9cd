package ai

import "context"

// Limits describes what a single embedding request may contain.
type Limits struct {
	// MaxBatchSize is the largest number of texts per request.
	MaxBatchSize int
	// MaxTextLength is the largest number of characters per text.
	MaxTextLength int
}

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedTexts generates one embedding per text, in input order.
	// Callers are expected to respect Limits; implementations may reject
	// batches that exceed them.
	// Throttling is reported as core.ErrProviderThrottled and connection
	// failures as core.ErrProviderUnavailable.
	EmbedTexts(ctx context.Context, texts []string, normalize bool) ([][]float32, error)

	// Limits returns the provider's request limits.
	Limits() Limits

	// Normalizes reports whether returned vectors are already unit length
	// when normalize is requested.
	Normalizes() bool

	// Model returns the embedding model identifier.
	Model() string
}

// Completer produces text from a prompt.
// Implementations must be thread-safe for concurrent use.
type Completer interface {
	// Complete returns the full completion for prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// Stream delivers the completion incrementally. onChunk is called once per
	// fragment in order; returning an error from onChunk stops the stream and
	// Stream returns that error. Cancelling ctx stops the stream as well.
	Stream(ctx context.Context, prompt string, onChunk func(string) error) error

	// Model returns the generation model identifier.
	Model() string
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Completer returns the text generation service.
	Completer() Completer

	// Close releases resources held by the provider and its services.
	Close() error
}
