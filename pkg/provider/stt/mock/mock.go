// Package mock provides a test double for the stt.Transcriber interface.
package mock

import (
	"context"
	"sync"

	"github.com/foyer-ai/foyer/pkg/audio"
	"github.com/foyer-ai/foyer/pkg/provider/stt"
)

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned by Transcribe.
	Result stt.Transcript

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// CallCount is the number of times Transcribe was called.
	CallCount int
}

// Transcribe records the call and returns the configured transcript.
func (m *Transcriber) Transcribe(context.Context, audio.Clip) (stt.Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	return m.Result, m.Err
}
