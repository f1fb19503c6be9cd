package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Cache stores provider-produced vectors. Implementations report a miss
// with ok == false and a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (vec []float32, ok bool, err error)
	Set(ctx context.Context, key string, vec []float32) error
}

// CacheKey identifies a vector by model, normalization and text digest.
func CacheKey(model string, normalize bool, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + model + ":" + strconv.FormatBool(normalize) + ":" + hex.EncodeToString(sum[:])
}

// fromCache fills results from the cache and returns the indices still missing.
func (g *Generator) fromCache(ctx context.Context, texts []string, normalize bool, results [][]float32) []int {
	missing := make([]int, 0, len(texts))
	for i, text := range texts {
		if g.cache == nil {
			missing = append(missing, i)
			continue
		}
		vec, ok, err := g.cache.Get(ctx, CacheKey(g.embedder.Model(), normalize, text))
		if err != nil {
			g.logger.Warn("embedding cache read failed", "err", err)
		}
		if !ok || len(vec) != g.dim {
			missing = append(missing, i)
			continue
		}
		results[i] = vec
	}
	return missing
}

func (g *Generator) toCache(ctx context.Context, texts []string, indices []int, normalize bool, results [][]float32) {
	if g.cache == nil {
		return
	}
	for _, idx := range indices {
		key := CacheKey(g.embedder.Model(), normalize, texts[idx])
		if err := g.cache.Set(ctx, key, results[idx]); err != nil {
			g.logger.Warn("embedding cache write failed", "err", err)
			return
		}
	}
}
