// Package mock provides a deterministic test double for the
// embeddings.Provider interface.
//
// Provider derives a pseudo-random unit vector from an FNV hash of the input
// text, so equal texts always embed identically and distinct texts are almost
// always far apart. This makes retrieval tests meaningful without a live
// model.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"

	"github.com/foyer-ai/foyer/pkg/provider/embeddings"
)

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)

// Provider is a deterministic mock implementation of embeddings.Provider.
// The zero value is not usable; construct with New.
type Provider struct {
	dims int

	mu sync.Mutex

	// EmbedErr, if non-nil, is returned as the error from Embed and EmbedBatch.
	EmbedErr error

	// EmbedCalls records the texts passed to Embed and EmbedBatch, in order.
	EmbedCalls []string
}

// New returns a mock provider producing unit vectors of the given dimension.
func New(dims int) *Provider {
	return &Provider{dims: dims}
}

// Embed returns a deterministic unit vector derived from text.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	err := p.EmbedErr
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return p.vector(text), nil
}

// EmbedBatch returns one deterministic unit vector per input text.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the configured vector dimension.
func (p *Provider) Dimensions() int { return p.dims }

// ModelID identifies this provider in logs and health output.
func (p *Provider) ModelID() string { return "mock-embedder" }

// vector derives the embedding: a seeded Gaussian vector scaled to unit norm.
func (p *Provider) vector(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, p.dims)
	var sum float64
	for i := range vec {
		v := rng.NormFloat64()
		vec[i] = float32(v)
		sum += v * v
	}
	if sum == 0 {
		vec[0] = 1
		return vec
	}
	inv := 1 / math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
	return vec
}
