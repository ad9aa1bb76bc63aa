package learning

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/foyer-ai/foyer/internal/observe"
)

// Pipeline drives a correction through the ordered gate sequence:
// G1 → personal-info tag → G2a → (G2b when warranted) → G3 submit.
//
// The sequence is strictly ordered per correction; pipelines for distinct
// corrections are independent.
type Pipeline struct {
	storage   *Storage
	gates     *Gates
	notifier  *Notifier
	threshold float64
	metrics   *observe.Metrics
}

// NewPipeline wires the pipeline driver. metrics may be nil.
func NewPipeline(storage *Storage, gates *Gates, notifier *Notifier, gate2aConfidenceThreshold float64, metrics *observe.Metrics) *Pipeline {
	return &Pipeline{
		storage:   storage,
		gates:     gates,
		notifier:  notifier,
		threshold: gate2aConfidenceThreshold,
		metrics:   metrics,
	}
}

// Process runs the automated gates for one correction and, when they all
// pass, parks it in human review. Storage write failures are logged and stop
// the pipeline; the correction then stays at its last persisted state.
func (p *Pipeline) Process(ctx context.Context, c *Correction) {
	log := slog.With("correction_id", c.ID)
	log.Info("starting pipeline")

	// Gate 1: sanity check.
	status, reason := p.timedGate1(ctx, c.Content)
	if err := p.storage.RecordGate1(c, status, reason); err != nil {
		log.Error("failed to persist gate1 result", "err", err)
		return
	}
	switch status {
	case GateReject:
		log.Info("rejected at gate1")
		return
	case GateError:
		log.Error("gate1 failed with error")
		return
	}
	log.Info("passed gate1")

	// Personal-info tag + Gate 2a: local fact-check (auto-pass on personal).
	status, confidence, reason, personal := p.timedGate2A(ctx, c.Content)
	c.PersonalInfo = personal
	if err := p.storage.RecordGate2A(c, status, confidence, reason); err != nil {
		log.Error("failed to persist gate2a result", "err", err)
		return
	}
	switch status {
	case GateReject:
		log.Info("rejected at gate2a")
		return
	case GateError:
		// Stops the pipeline but sets no dedicated final status; the
		// correction remains visible in processing state.
		log.Error("gate2a failed with error")
		return
	}
	log.Info("passed gate2a", "confidence", confidence)

	// Gate 2b: external fact-check, skipped for personal info or confident
	// local verdicts. Personal info must never reach the vendor.
	switch {
	case personal:
		log.Info("personal info, skipping gate2b")
	case confidence >= p.threshold:
		log.Info("confidence at or above threshold, skipping gate2b", "threshold", p.threshold)
	default:
		log.Info("confidence below threshold, calling gate2b", "threshold", p.threshold)
		status, reason = p.timedGate2B(ctx, c.Content)
		if err := p.storage.RecordGate2B(c, status, reason); err != nil {
			log.Error("failed to persist gate2b result", "err", err)
			return
		}
		if status == GateReject {
			log.Info("rejected at gate2b")
			return
		}
		log.Info("passed gate2b")
	}

	// Gate 3: park for human review and notify once.
	if err := p.storage.RecordGate3Pending(c); err != nil {
		log.Error("failed to persist gate3 submission", "err", err)
		return
	}
	p.notifier.NotifyReview(1)
	log.Info("submitted to gate3, awaiting admin review")
}

// timedGate1 runs gate 1 with metrics.
func (p *Pipeline) timedGate1(ctx context.Context, content string) (string, string) {
	start := time.Now()
	status, reason := p.gates.Gate1(ctx, content)
	p.recordGate(ctx, "gate1", status, start)
	return status, reason
}

// timedGate2A runs gate 2a with metrics.
func (p *Pipeline) timedGate2A(ctx context.Context, content string) (string, float64, string, bool) {
	start := time.Now()
	status, confidence, reason, personal := p.gates.Gate2A(ctx, content)
	p.recordGate(ctx, "gate2a", status, start)
	return status, confidence, reason, personal
}

// timedGate2B runs gate 2b with metrics.
func (p *Pipeline) timedGate2B(ctx context.Context, content string) (string, string) {
	start := time.Now()
	status, reason := p.gates.Gate2B(ctx, content)
	p.recordGate(ctx, "gate2b", status, start)
	return status, reason
}

// recordGate records one gate's duration and verdict when metrics are wired.
func (p *Pipeline) recordGate(ctx context.Context, gate, status string, start time.Time) {
	if p.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("gate", gate),
		attribute.String("status", status),
	)
	p.metrics.GateDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("gate", gate)))
	p.metrics.GateVerdicts.Add(ctx, 1, attrs)
}
