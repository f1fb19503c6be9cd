// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
)

// ErrEmbedderRequired is returned when New is called without an embedder.
var ErrEmbedderRequired = errors.New("embedder required")

// Generator turns texts into fixed-dimension vectors. It batches requests to
// the provider, retries throttling, and switches to deterministic fallback
// vectors once the provider fails. It is safe for concurrent use.
type Generator struct {
	embedder ai.Embedder
	dim      int
	retry    ai.RetryPolicy
	pool     *ants.Pool
	cache    Cache
	degraded atomic.Bool
	logger   *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator) error

// WithPoolSize sets how many batches may be in flight at once.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(g *Generator) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if g.pool != nil {
			g.pool.Release()
		}
		g.pool = pool
		return nil
	}
}

// WithRetryPolicy overrides the provider retry policy.
func WithRetryPolicy(policy ai.RetryPolicy) Option {
	return func(g *Generator) error {
		if err := policy.Validate(); err != nil {
			return err
		}
		g.retry = policy
		return nil
	}
}

// WithCache enables caching of provider-produced vectors.
func WithCache(cache Cache) Option {
	return func(g *Generator) error {
		g.cache = cache
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger.With("component", "embedding")
		return nil
	}
}

// New creates a Generator producing dim-length vectors with embedder.
func New(embedder ai.Embedder, dim int, opts ...Option) (*Generator, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", core.ErrValidation, dim)
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		embedder: embedder,
		dim:      dim,
		retry:    ai.DefaultRetryPolicy(),
		pool:     pool,
		logger:   slog.Default().With("component", "embedding"),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			g.Release()
			return nil, err
		}
	}
	return g, nil
}

// Release stops the batch worker pool.
func (g *Generator) Release() {
	if g.pool != nil {
		g.pool.Release()
	}
}

// Dimension returns the vector length every call produces.
func (g *Generator) Dimension() int {
	return g.dim
}

// Degraded reports whether fallback vectors are being served.
func (g *Generator) Degraded() bool {
	return g.degraded.Load()
}

// Reset leaves degraded mode so the next call tries the provider again.
func (g *Generator) Reset() {
	if g.degraded.Swap(false) {
		g.logger.Info("leaving degraded mode")
	}
}

// Model returns the provider's embedding model identifier.
func (g *Generator) Model() string {
	return g.embedder.Model()
}

// EmbedQuery embeds a single query text with normalization.
func (g *Generator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.Embed(ctx, []string{text}, true)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Embed returns one vector per text, in input order. Provider failures
// switch the generator to degraded mode and the whole call is answered with
// fallback vectors; only context errors are returned.
func (g *Generator) Embed(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prepared := g.truncate(texts)
	if g.degraded.Load() {
		return g.fallback(prepared, normalize), nil
	}

	results := make([][]float32, len(prepared))
	missing := g.fromCache(ctx, prepared, normalize, results)
	if len(missing) > 0 {
		err := g.embedMissing(ctx, prepared, missing, normalize, results)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			g.logger.Error("embedding provider failed, entering degraded mode",
				"model", g.embedder.Model(), "texts", len(prepared), "err", err)
			g.degraded.Store(true)
			return g.fallback(prepared, normalize), nil
		}
		g.toCache(ctx, prepared, missing, normalize, results)
	}
	return results, nil
}

// truncate caps every text at the provider's max length in runes.
func (g *Generator) truncate(texts []string) []string {
	limit := g.embedder.Limits().MaxTextLength
	if limit <= 0 {
		return texts
	}
	out := make([]string, len(texts))
	for i, text := range texts {
		runes := []rune(text)
		if len(runes) > limit {
			g.logger.Warn("truncating text to provider limit", "index", i, "length", len(runes), "limit", limit)
			text = string(runes[:limit])
		}
		out[i] = text
	}
	return out
}

// embedMissing embeds texts[idx] for every idx in missing, in parallel batches.
func (g *Generator) embedMissing(ctx context.Context, texts []string, missing []int, normalize bool, results [][]float32) error {
	batchSize := g.embedder.Limits().MaxBatchSize
	if batchSize <= 0 {
		batchSize = len(missing)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < len(missing); start += batchSize {
		end := min(start+batchSize, len(missing))
		indices := missing[start:end]

		wg.Add(1)
		err := g.pool.Submit(func() {
			defer wg.Done()
			vecs, err := g.embedBatch(ctx, texts, indices, normalize)
			if err != nil {
				fail(err)
				return
			}
			for j, idx := range indices {
				results[idx] = vecs[j]
			}
		})
		if err != nil {
			wg.Done()
			fail(err)
			break
		}
	}
	wg.Wait()
	return firstErr
}

// embedBatch sends one batch to the provider under the retry policy and
// checks what comes back.
func (g *Generator) embedBatch(ctx context.Context, texts []string, indices []int, normalize bool) ([][]float32, error) {
	batch := make([]string, len(indices))
	for j, idx := range indices {
		batch[j] = texts[idx]
	}

	var vecs [][]float32
	err := g.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		vecs, err = g.embedder.EmbedTexts(ctx, batch, normalize)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("%w: %w: sent %d texts, received %d vectors",
			core.ErrValidation, core.ErrLengthMismatch, len(batch), len(vecs))
	}
	for j, vec := range vecs {
		if err := core.ValidateVector(vec, g.dim); err != nil {
			return nil, err
		}
		if normalize && !g.embedder.Normalizes() {
			vecs[j] = core.NormalizeVector(vec)
		}
	}
	return vecs, nil
}

func (g *Generator) fallback(texts []string, normalize bool) [][]float32 {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = Fallback(text, g.dim, normalize)
	}
	return out
}

// Health embeds "test" with the provider, bypassing degraded mode.
func (g *Generator) Health(ctx context.Context) core.HealthStatus {
	status := core.HealthStatus{
		Component: "embedding",
		Model:     g.embedder.Model(),
		Degraded:  g.Degraded(),
	}
	vecs, err := g.embedder.EmbedTexts(ctx, []string{"test"}, true)
	switch {
	case err != nil:
		status.Detail = err.Error()
	case len(vecs) != 1 || len(vecs[0]) != g.dim:
		status.Detail = fmt.Sprintf("expected one vector of dimension %d", g.dim)
	default:
		status.Healthy = true
	}
	return status
}
