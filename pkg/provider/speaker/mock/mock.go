// Package mock provides a test double for the speaker.Encoder interface.
package mock

import (
	"context"
	"sync"

	"github.com/foyer-ai/foyer/pkg/audio"
	"github.com/foyer-ai/foyer/pkg/provider/speaker"
)

// Ensure Encoder implements speaker.Encoder at compile time.
var _ speaker.Encoder = (*Encoder)(nil)

// Encoder is a mock implementation of speaker.Encoder.
type Encoder struct {
	mu sync.Mutex

	// Embedding is returned by Encode. Tests typically construct it so that
	// its cosine similarity against chosen fingerprints hits the band under
	// test.
	Embedding []float32

	// Err, if non-nil, is returned as the error from Encode.
	Err error

	// CallCount is the number of times Encode was called.
	CallCount int
}

// Encode records the call and returns the configured embedding.
func (e *Encoder) Encode(context.Context, audio.Clip) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CallCount++
	return e.Embedding, e.Err
}
