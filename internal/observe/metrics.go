// Package observe provides application-wide observability primitives for the
// foyer services: OpenTelemetry metrics, tracing helpers, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. Tests should use [NewMetrics]
// with a custom [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all foyer metrics.
const meterName = "github.com/foyer-ai/foyer"

// Metrics holds all OpenTelemetry metric instruments for a service.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// VADDuration tracks voice-activity-detection latency.
	VADDuration metric.Float64Histogram

	// SpeakerIDDuration tracks speaker-identification latency (encode + match).
	SpeakerIDDuration metric.Float64Histogram

	// TranscriptionDuration tracks batch transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// ChatDuration tracks chat-runtime inference latency.
	ChatDuration metric.Float64Histogram

	// EmbeddingDuration tracks embedding-request latency.
	EmbeddingDuration metric.Float64Histogram

	// GateDuration tracks learning-gate latency. Use with attribute:
	//   attribute.String("gate", "gate1"|"gate2a"|"gate2b")
	GateDuration metric.Float64Histogram

	// --- Counters ---

	// VoiceResults counts voice pipeline outcomes. Use with attribute:
	//   attribute.String("status", "identified"|"fallback"|"rejected"|"no_speech")
	VoiceResults metric.Int64Counter

	// GateVerdicts counts gate outcomes. Use with attributes:
	//   attribute.String("gate", ...), attribute.String("status", "pass"|"reject"|"error")
	GateVerdicts metric.Int64Counter

	// MemoryOps counts memory store operations. Use with attributes:
	//   attribute.String("op", "add"|"search"|"delete"), attribute.String("status", ...)
	MemoryOps metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for the pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.VADDuration, "foyer.vad.duration", "Latency of voice activity detection."},
		{&met.SpeakerIDDuration, "foyer.speaker_id.duration", "Latency of speaker identification."},
		{&met.TranscriptionDuration, "foyer.transcription.duration", "Latency of batch transcription."},
		{&met.ChatDuration, "foyer.chat.duration", "Latency of chat-runtime inference."},
		{&met.EmbeddingDuration, "foyer.embedding.duration", "Latency of embedding requests."},
		{&met.GateDuration, "foyer.gate.duration", "Latency of learning validation gates."},
		{&met.HTTPRequestDuration, "foyer.http.request.duration", "HTTP request processing time."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	if met.VoiceResults, err = m.Int64Counter("foyer.voice.results",
		metric.WithDescription("Voice pipeline outcomes by status."),
	); err != nil {
		return nil, err
	}
	if met.GateVerdicts, err = m.Int64Counter("foyer.gate.verdicts",
		metric.WithDescription("Learning gate outcomes by gate and status."),
	); err != nil {
		return nil, err
	}
	if met.MemoryOps, err = m.Int64Counter("foyer.memory.ops",
		metric.WithDescription("Memory store operations by op and status."),
	); err != nil {
		return nil, err
	}

	return met, nil
}
