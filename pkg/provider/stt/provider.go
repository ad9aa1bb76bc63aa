// Package stt defines the Transcriber interface for batch speech-to-text
// backends.
//
// The voice pipeline works on finished utterances, not live streams, so the
// contract is a single blocking call per clip. The ASR model itself is an
// external collaborator (a whisper server in the reference deployment).
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/foyer-ai/foyer/pkg/audio"
)

// Transcript is the result of a batch transcription.
type Transcript struct {
	// Text is the transcribed text, empty when nothing was recognised.
	Text string

	// Language is the detected (or configured) BCP-47 language code, or
	// "unknown" when detection was not possible.
	Language string
}

// Transcriber is the abstraction over any batch ASR backend.
type Transcriber interface {
	// Transcribe converts a clip to text with language detection.
	// Implementations resample the clip to whatever the model expects.
	Transcribe(ctx context.Context, clip audio.Clip) (Transcript, error)
}
