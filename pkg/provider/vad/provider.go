// Package vad defines the Detector interface for voice-activity detection
// backends.
//
// A detector answers one question per clip: does this audio contain speech,
// and what fraction of it is speech? It gates the expensive speaker-id and
// transcription stages, so a detector should be cheap relative to them.
//
// Implementations must be safe for concurrent use.
package vad

import "github.com/foyer-ai/foyer/pkg/audio"

// Result is the outcome of a detection pass over a whole clip.
type Result struct {
	// HasSpeech reports whether any qualifying speech was found.
	HasSpeech bool

	// SpeechRatio is the fraction of the clip classified as speech, in [0, 1].
	SpeechRatio float64
}

// Detector is the abstraction over any VAD backend.
type Detector interface {
	// Detect analyses an entire clip and returns the detection result.
	// Returns an error only on internal failure; an all-silence clip is a
	// successful detection with HasSpeech=false.
	Detect(clip audio.Clip) (Result, error)
}
