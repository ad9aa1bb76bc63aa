// Package embeddings defines the Provider interface for sentence-embedding
// backends.
//
// An embeddings provider maps text strings to dense float32 vectors used by
// the memory layer for semantic retrieval. All vectors produced by a single
// Provider instance share one fixed dimensionality and are L2-normalised, so
// cosine distance over them stays in [0, 2] and the store's score mapping
// holds.
//
// Implementations must be safe for concurrent use.
package embeddings

import (
	"context"
	"math"
)

// Provider is the abstraction over any text-embedding backend.
//
// Callers must not mix vectors from different Provider instances in the same
// similarity computation unless both use the same model and space.
type Provider interface {
	// Embed computes the unit-norm embedding vector for a single text string.
	// Returns a float32 slice of length Dimensions() or an error if the
	// request fails or ctx is cancelled.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for a slice of texts in a single
	// provider call. The returned slice has the same length as texts and the
	// i-th element corresponds to texts[i]. Partial results are not returned —
	// on error the entire slice is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// provider. Constant for the lifetime of the instance.
	Dimensions() int

	// ModelID returns the provider-specific model identifier, for logging and
	// the health endpoint.
	ModelID() string
}

// Normalize scales vec to unit L2 norm in place and returns it. A zero vector
// is returned unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := 1.0 / math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
	return vec
}
