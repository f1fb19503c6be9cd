package embedding

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand/v2"

	"github.com/poiesic/docrag/core"
)

// Fallback returns a deterministic pseudo-random vector for text.
// The first eight bytes of the text's SHA-256 digest seed a PCG source that
// draws dim standard normal samples.
func Fallback(text string, dim int, normalize bool) []float32 {
	sum := sha256.Sum256([]byte(text))
	seed := binary.BigEndian.Uint64(sum[:8])
	rng := rand.New(rand.NewPCG(seed, seed))

	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(rng.NormFloat64())
	}
	if normalize {
		return core.NormalizeVector(vec)
	}
	return vec
}
