package mock

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
)

// DefaultDimensions is the vector length produced by NewMockEmbedder.
const DefaultDimensions = 1536

// MockEmbedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields and is safe for
// concurrent use.
type MockEmbedder struct {
	// EmbedTextsFunc is called by EmbedTexts if set.
	// If nil, uses default deterministic behavior.
	EmbedTextsFunc func(ctx context.Context, texts []string, normalize bool) ([][]float32, error)

	dim     int
	limits  ai.Limits
	model   string
	mu      sync.Mutex
	calls   int
	batches [][]string
}

// NewMockEmbedder creates a mock embedder with default deterministic behavior.
// Note: Returns concrete type to allow test assertions via GetMockEmbedder().
func NewMockEmbedder() *MockEmbedder {
	return NewMockEmbedderWithDim(DefaultDimensions)
}

// NewMockEmbedderWithDim creates a mock embedder producing dim-length vectors.
func NewMockEmbedderWithDim(dim int) *MockEmbedder {
	return &MockEmbedder{
		dim:    dim,
		limits: ai.Limits{MaxBatchSize: 25, MaxTextLength: 8192},
		model:  "mock-embeddings",
	}
}

// WithEmbedTextsFunc sets custom behavior and returns the embedder for chaining.
func (m *MockEmbedder) WithEmbedTextsFunc(fn func(ctx context.Context, texts []string, normalize bool) ([][]float32, error)) *MockEmbedder {
	m.EmbedTextsFunc = fn
	return m
}

// WithLimits overrides the advertised request limits.
func (m *MockEmbedder) WithLimits(limits ai.Limits) *MockEmbedder {
	m.limits = limits
	return m
}

// EmbedTexts generates deterministic embeddings for multiple texts.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
	m.mu.Lock()
	m.calls++
	m.batches = append(m.batches, append([]string(nil), texts...))
	fn := m.EmbedTextsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, texts, normalize)
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = DeterministicVector(text, m.dim)
	}
	return embeddings, nil
}

// Limits returns the advertised request limits.
func (m *MockEmbedder) Limits() ai.Limits {
	return m.limits
}

// Normalizes reports true: default vectors are unit length.
func (m *MockEmbedder) Normalizes() bool {
	return true
}

// Model returns the mock model name.
func (m *MockEmbedder) Model() string {
	return m.model
}

// CallCount returns the number of EmbedTexts calls.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Batches returns a copy of every batch received, in call order.
func (m *MockEmbedder) Batches() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.batches))
	copy(out, m.batches)
	return out
}

// Reset clears the call history and custom behavior.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = 0
	m.batches = nil
	m.EmbedTextsFunc = nil
}

// DeterministicVector creates a unit-length vector from text.
// It uses FNV hash to ensure the same text always produces the same vector.
func DeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000)/1000.0 - 0.5
	}
	return core.NormalizeVector(vector)
}
