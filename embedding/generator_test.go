package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/ai/mock"
	"github.com/poiesic/docrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 8

func fastRetry() ai.RetryPolicy {
	return ai.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func newTestGenerator(t *testing.T, embedder ai.Embedder, opts ...Option) *Generator {
	t.Helper()
	opts = append([]Option{WithRetryPolicy(fastRetry()), WithPoolSize(2)}, opts...)
	g, err := New(embedder, testDim, opts...)
	require.NoError(t, err)
	t.Cleanup(g.Release)
	return g
}

// rawEmbedder returns constant, unnormalized vectors.
type rawEmbedder struct{}

func (rawEmbedder) EmbedTexts(_ context.Context, texts []string, _ bool) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, testDim)
		for j := range vec {
			vec[j] = 3
		}
		out[i] = vec
	}
	return out, nil
}
func (rawEmbedder) Limits() ai.Limits { return ai.Limits{MaxBatchSize: 4, MaxTextLength: 100} }
func (rawEmbedder) Normalizes() bool  { return false }
func (rawEmbedder) Model() string     { return "raw" }

// mapCache is an in-memory Cache.
type mapCache struct {
	mu   sync.Mutex
	data map[string][]float32
}

func (c *mapCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = vec
	return nil
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, testDim)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = New(mock.NewMockEmbedderWithDim(testDim), 0)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = New(mock.NewMockEmbedderWithDim(testDim), testDim, WithRetryPolicy(ai.RetryPolicy{}))
	assert.ErrorIs(t, err, ai.ErrInvalidMaxAttempts)
}

func TestEmbed_Empty(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDim(testDim)
	g := newTestGenerator(t, embedder)

	vecs, err := g.Embed(context.Background(), nil, true)
	require.NoError(t, err)
	assert.NotNil(t, vecs)
	assert.Empty(t, vecs)
	assert.Equal(t, 0, embedder.CallCount())
}

func TestEmbed_BatchesPreserveOrder(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDim(testDim).WithLimits(ai.Limits{MaxBatchSize: 2, MaxTextLength: 100})
	g := newTestGenerator(t, embedder)

	texts := []string{"a", "b", "c", "d", "e"}
	vecs, err := g.Embed(context.Background(), texts, true)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, text := range texts {
		assert.Equal(t, mock.DeterministicVector(text, testDim), vecs[i], "text %q", text)
	}

	batches := embedder.Batches()
	assert.Len(t, batches, 3)
	for _, b := range batches {
		assert.LessOrEqual(t, len(b), 2)
	}
	assert.False(t, g.Degraded())
}

func TestEmbed_TruncatesLongTexts(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDim(testDim).WithLimits(ai.Limits{MaxBatchSize: 25, MaxTextLength: 5})
	g := newTestGenerator(t, embedder)

	_, err := g.Embed(context.Background(), []string{"abcdefghij", "héllo wörld"}, true)
	require.NoError(t, err)

	batches := embedder.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"abcde", "héllo"}, batches[0])
}

func TestEmbed_RetriesThrottling(t *testing.T) {
	var calls atomic.Int32
	embedder := mock.NewMockEmbedderWithDim(testDim)
	embedder.WithEmbedTextsFunc(func(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
		if calls.Add(1) == 1 {
			return nil, ai.Throttled(errors.New("slow down"))
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.DeterministicVector(text, testDim)
		}
		return out, nil
	})
	g := newTestGenerator(t, embedder)

	vecs, err := g.Embed(context.Background(), []string{"x"}, true)
	require.NoError(t, err)
	assert.Equal(t, mock.DeterministicVector("x", testDim), vecs[0])
	assert.Equal(t, int32(2), calls.Load())
	assert.False(t, g.Degraded())
}

func TestEmbed_DegradesAfterRetryExhaustion(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDim(testDim)
	embedder.WithEmbedTextsFunc(func(context.Context, []string, bool) ([][]float32, error) {
		return nil, ai.Throttled(errors.New("slow down"))
	})
	g := newTestGenerator(t, embedder)

	texts := []string{"alpha", "beta"}
	vecs, err := g.Embed(context.Background(), texts, true)
	require.NoError(t, err)
	assert.True(t, g.Degraded())
	assert.Equal(t, 3, embedder.CallCount())
	for i, text := range texts {
		assert.Equal(t, Fallback(text, testDim, true), vecs[i])
	}

	// Later calls stay on the fallback without touching the provider.
	again, err := g.Embed(context.Background(), texts, true)
	require.NoError(t, err)
	assert.Equal(t, vecs, again)
	assert.Equal(t, 3, embedder.CallCount())

	g.Reset()
	assert.False(t, g.Degraded())
	_, err = g.Embed(context.Background(), texts, true)
	require.NoError(t, err)
	assert.Equal(t, 6, embedder.CallCount())
}

func TestEmbed_UnavailableDegradesImmediately(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDim(testDim)
	embedder.WithEmbedTextsFunc(func(context.Context, []string, bool) ([][]float32, error) {
		return nil, ai.Unavailable(errors.New("connection refused"))
	})
	g := newTestGenerator(t, embedder)

	vecs, err := g.Embed(context.Background(), []string{"q"}, true)
	require.NoError(t, err)
	assert.True(t, g.Degraded())
	assert.Equal(t, 1, embedder.CallCount())
	assert.Equal(t, Fallback("q", testDim, true), vecs[0])
}

func TestEmbed_WrongDimensionDegrades(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDim(testDim + 1)
	g := newTestGenerator(t, embedder)

	vecs, err := g.Embed(context.Background(), []string{"q"}, true)
	require.NoError(t, err)
	assert.True(t, g.Degraded())
	assert.Len(t, vecs[0], testDim)
}

func TestEmbed_ContextCancellation(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDim(testDim)
	g := newTestGenerator(t, embedder)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Embed(ctx, []string{"q"}, true)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, g.Degraded())

	ctx, cancel = context.WithCancel(context.Background())
	embedder.WithEmbedTextsFunc(func(ctx context.Context, _ []string, _ bool) ([][]float32, error) {
		cancel()
		return nil, ctx.Err()
	})
	_, err = g.Embed(ctx, []string{"q"}, true)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, g.Degraded())
}

func TestEmbed_NormalizesWhenProviderDoesNot(t *testing.T) {
	g := newTestGenerator(t, rawEmbedder{})

	vecs, err := g.Embed(context.Background(), []string{"a"}, true)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, core.Norm(vecs[0]), 1e-5)

	vecs, err = g.Embed(context.Background(), []string{"a"}, false)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, vecs[0][0], 1e-6)
}

func TestEmbed_UsesCache(t *testing.T) {
	cache := &mapCache{data: map[string][]float32{}}
	embedder := mock.NewMockEmbedderWithDim(testDim)
	g := newTestGenerator(t, embedder, WithCache(cache))

	first, err := g.Embed(context.Background(), []string{"a", "b"}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.CallCount())
	assert.Len(t, cache.data, 2)

	second, err := g.Embed(context.Background(), []string{"b", "c"}, true)
	require.NoError(t, err)
	assert.Equal(t, first[1], second[0])
	batches := embedder.Batches()
	assert.Equal(t, []string{"c"}, batches[len(batches)-1])
}

func TestEmbed_FallbackNotCached(t *testing.T) {
	cache := &mapCache{data: map[string][]float32{}}
	embedder := mock.NewMockEmbedderWithDim(testDim)
	embedder.WithEmbedTextsFunc(func(context.Context, []string, bool) ([][]float32, error) {
		return nil, ai.Unavailable(errors.New("down"))
	})
	g := newTestGenerator(t, embedder, WithCache(cache))

	_, err := g.Embed(context.Background(), []string{"a"}, true)
	require.NoError(t, err)
	assert.Empty(t, cache.data)
}

func TestEmbedQuery(t *testing.T) {
	g := newTestGenerator(t, mock.NewMockEmbedderWithDim(testDim))

	vec, err := g.EmbedQuery(context.Background(), "what is this?")
	require.NoError(t, err)
	assert.Len(t, vec, g.Dimension())
}

func TestFallback(t *testing.T) {
	a := Fallback("same text", 1536, true)
	b := Fallback("same text", 1536, true)
	c := Fallback("other text", 1536, true)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 1536)
	assert.InDelta(t, 1.0, core.Norm(a), 1e-4)

	raw := Fallback("same text", 16, false)
	assert.Len(t, raw, 16)
	assert.NotEqual(t, Fallback("same text", 16, true), raw)
}

func TestHealth(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDim(testDim)
	g := newTestGenerator(t, embedder)

	status := g.Health(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "mock-embeddings", status.Model)
	assert.False(t, status.Degraded)

	embedder.WithEmbedTextsFunc(func(context.Context, []string, bool) ([][]float32, error) {
		return nil, errors.New("boom")
	})
	status = g.Health(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, "boom", status.Detail)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, CacheKey("m", true, "x"), CacheKey("m", true, "x"))
	assert.NotEqual(t, CacheKey("m", true, "x"), CacheKey("m", false, "x"))
	assert.NotEqual(t, CacheKey("m", true, "x"), CacheKey("n", true, "x"))
}
