// Package speaker defines the Encoder interface for speaker-embedding
// backends.
//
// An encoder maps an utterance to a fixed-dimension voice embedding that can
// be compared against enrolled user fingerprints with cosine similarity. The
// embedding model itself is an external collaborator; this package only fixes
// the contract the identification logic depends on.
//
// Implementations must be safe for concurrent use.
package speaker

import (
	"context"

	"github.com/foyer-ai/foyer/pkg/audio"
)

// EmbeddingDim is the fingerprint dimension every encoder must produce.
// Enrolled fingerprints with any other shape are rejected at load time.
const EmbeddingDim = 256

// Encoder is the abstraction over any speaker-embedding backend.
type Encoder interface {
	// Encode computes the voice embedding for an utterance. The returned
	// vector has length [EmbeddingDim]. Implementations resample or otherwise
	// preprocess the clip to whatever the underlying model expects.
	Encode(ctx context.Context, clip audio.Clip) ([]float32, error)
}
