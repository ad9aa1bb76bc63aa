// Package energy implements a windowed-RMS voice activity detector.
//
// The clip is split into fixed-duration windows; a window whose RMS energy
// exceeds the configured threshold counts as speech. The clip as a whole is
// classified as containing speech only when the total speech time reaches the
// minimum speech duration, which filters out clicks and pops.
//
// This is deliberately model-free: the detector only gates downstream stages
// and errs on the side of letting audio through (callers treat a detector
// failure as "assume speech").
package energy

import (
	"fmt"

	"github.com/foyer-ai/foyer/pkg/audio"
	"github.com/foyer-ai/foyer/pkg/provider/vad"
)

const (
	// DefaultThreshold is the RMS level (float32 sample scale, max 1.0) above
	// which a window is classified as speech. 0.01 corresponds to roughly
	// -40 dBFS, comfortably above electrical noise floors.
	DefaultThreshold = 0.01

	// DefaultWindowMs is the analysis window duration.
	DefaultWindowMs = 30

	// DefaultMinSpeechMs is the minimum accumulated speech duration for a clip
	// to count as containing speech.
	DefaultMinSpeechMs = 250
)

// Ensure Detector implements vad.Detector at compile time.
var _ vad.Detector = (*Detector)(nil)

// Detector is a windowed-RMS VAD. It is stateless per call and safe for
// concurrent use.
type Detector struct {
	threshold   float64
	windowMs    int
	minSpeechMs int
}

// Option is a functional option for Detector.
type Option func(*Detector)

// WithThreshold overrides the RMS speech threshold.
func WithThreshold(t float64) Option {
	return func(d *Detector) { d.threshold = t }
}

// WithWindowMs overrides the analysis window duration in milliseconds.
func WithWindowMs(ms int) Option {
	return func(d *Detector) { d.windowMs = ms }
}

// WithMinSpeechMs overrides the minimum accumulated speech duration in
// milliseconds.
func WithMinSpeechMs(ms int) Option {
	return func(d *Detector) { d.minSpeechMs = ms }
}

// New constructs a Detector with the package defaults, modified by opts.
func New(opts ...Option) *Detector {
	d := &Detector{
		threshold:   DefaultThreshold,
		windowMs:    DefaultWindowMs,
		minSpeechMs: DefaultMinSpeechMs,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect implements vad.Detector.
func (d *Detector) Detect(clip audio.Clip) (vad.Result, error) {
	if clip.SampleRate <= 0 {
		return vad.Result{}, fmt.Errorf("energy vad: invalid sample rate %d", clip.SampleRate)
	}
	if len(clip.Samples) == 0 {
		return vad.Result{}, nil
	}

	window := clip.SampleRate * d.windowMs / 1000
	if window <= 0 {
		window = 1
	}

	var speechSamples int
	for off := 0; off < len(clip.Samples); off += window {
		end := min(off+window, len(clip.Samples))
		if audio.RMS(clip.Samples[off:end]) >= d.threshold {
			speechSamples += end - off
		}
	}

	ratio := float64(speechSamples) / float64(len(clip.Samples))
	minSamples := clip.SampleRate * d.minSpeechMs / 1000
	if speechSamples < minSamples {
		return vad.Result{HasSpeech: false, SpeechRatio: ratio}, nil
	}
	return vad.Result{HasSpeech: true, SpeechRatio: ratio}, nil
}
