// Package mock provides a test double for the vad.Detector interface.
package mock

import (
	"sync"

	"github.com/foyer-ai/foyer/pkg/audio"
	"github.com/foyer-ai/foyer/pkg/provider/vad"
)

// Ensure Detector implements vad.Detector at compile time.
var _ vad.Detector = (*Detector)(nil)

// Detector is a mock implementation of vad.Detector.
type Detector struct {
	mu sync.Mutex

	// Result is returned by Detect.
	Result vad.Result

	// Err, if non-nil, is returned as the error from Detect.
	Err error

	// CallCount is the number of times Detect was called.
	CallCount int
}

// Detect records the call and returns the configured result.
func (d *Detector) Detect(audio.Clip) (vad.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCount++
	return d.Result, d.Err
}
