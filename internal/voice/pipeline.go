package voice

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/foyer-ai/foyer/internal/observe"
	"github.com/foyer-ai/foyer/pkg/audio"
	"github.com/foyer-ai/foyer/pkg/provider/stt"
	"github.com/foyer-ai/foyer/pkg/provider/vad"
)

// Result is the JSON body returned by /voice/process. Pointer fields
// serialise as null when the stage that fills them did not run.
type Result struct {
	Status               string   `json:"status"`
	UserID               *string  `json:"user_id"`
	Confidence           *float64 `json:"confidence"`
	Transcript           *string  `json:"transcript"`
	Language             *string  `json:"language"`
	AudioDurationSeconds float64  `json:"audio_duration_seconds"`
	Fallback             bool     `json:"fallback"`
	FallbackReason       *string  `json:"fallback_reason"`
	Error                string   `json:"error,omitempty"`
}

// Pipeline orchestrates VAD → speaker identification → transcription and
// appends one audit record per completed invocation.
//
// Degradation policy mirrors the component-init contract: a nil detector
// means VAD init failed and speech is assumed; a nil identifier is a hard
// error per request; a nil transcriber degrades transcripts to empty.
type Pipeline struct {
	detector    vad.Detector
	identifier  *Identifier
	transcriber stt.Transcriber
	audit       *AuditLogger
	metrics     *observe.Metrics

	vadStatus           string
	transcriptionStatus string
	whisperModel        string
}

// NewPipeline assembles a Pipeline from whatever components initialised.
// metrics may be nil.
func NewPipeline(detector vad.Detector, identifier *Identifier, transcriber stt.Transcriber, auditLog *AuditLogger, whisperModel string, metrics *observe.Metrics) *Pipeline {
	p := &Pipeline{
		detector:            detector,
		identifier:          identifier,
		transcriber:         transcriber,
		audit:               auditLog,
		metrics:             metrics,
		vadStatus:           "ok",
		transcriptionStatus: "ok",
		whisperModel:        whisperModel,
	}
	if detector == nil {
		p.vadStatus = "error"
	}
	if transcriber == nil {
		p.transcriptionStatus = "error"
	}
	return p
}

// Process runs one clip through the full pipeline.
func (p *Pipeline) Process(ctx context.Context, clip audio.Clip) Result {
	duration := clip.Duration()

	// Step 1: voice activity detection. A failed or missing detector assumes
	// speech so identification is never blocked by the cheap stage.
	if p.detector != nil {
		start := time.Now()
		detection, err := p.detector.Detect(clip)
		p.recordStage(ctx, p.metricVAD(), start)
		if err != nil {
			observe.Logger(ctx).Warn("vad failed, assuming speech", "err", err)
		} else if !detection.HasSpeech {
			observe.Logger(ctx).Info("no speech detected", "speech_ratio", detection.SpeechRatio)
			p.logAudit(ctx, EventNoSpeech, nil, nil, nil, duration)
			p.countResult(ctx, EventNoSpeech)
			return Result{
				Status:               "no_speech",
				AudioDurationSeconds: round2(duration),
			}
		}
	} else {
		observe.Logger(ctx).Warn("vad unavailable, skipping speech check")
	}

	// Step 2: speaker identification.
	if p.identifier == nil {
		observe.Logger(ctx).Error("speaker identification unavailable")
		return Result{
			Status:               "error",
			AudioDurationSeconds: round2(duration),
			Error:                "speaker identification unavailable",
		}
	}

	start := time.Now()
	ident, err := p.identifier.Identify(ctx, clip)
	p.recordStage(ctx, p.metricSpeakerID(), start)
	if err != nil {
		observe.Logger(ctx).Error("speaker identification failed", "err", err)
		ident = Identification{}
	}

	if ident.UserID == "" {
		observe.Logger(ctx).Info("speaker rejected", "confidence", ident.Confidence)
		p.logAudit(ctx, EventRejected, nil, ptr(ident.Confidence), nil, duration)
		p.countResult(ctx, EventRejected)
		return Result{
			Status:               "rejected",
			Confidence:           ptr(round2(ident.Confidence)),
			AudioDurationSeconds: round2(duration),
		}
	}

	// From here the request acts for the identified user; logs (including
	// the middleware's completion line) carry the identity.
	ctx = observe.WithUser(ctx, ident.UserID)

	// Step 3: transcription, for both identified and fallback outcomes.
	transcript, language := "", "unknown"
	if p.transcriber == nil {
		observe.Logger(ctx).Error("transcriber unavailable, returning empty transcript")
	} else {
		start = time.Now()
		tr, trErr := p.transcriber.Transcribe(ctx, clip)
		p.recordStage(ctx, p.metricTranscription(), start)
		if trErr != nil {
			observe.Logger(ctx).Warn("transcription failed", "err", trErr)
		} else {
			transcript, language = tr.Text, tr.Language
		}
	}

	status, event := "identified", EventIdentified
	if ident.Fallback {
		status, event = "fallback", EventFallback
	}

	var reason *string
	if ident.FallbackReason != "" {
		reason = ptr(ident.FallbackReason)
	}

	observe.Logger(ctx).Info("speaker "+status,
		"user_id", ident.UserID,
		"confidence", ident.Confidence,
	)
	p.logAudit(ctx, event, ptr(ident.UserID), ptr(ident.Confidence), reason, duration)
	p.countResult(ctx, event)

	return Result{
		Status:               status,
		UserID:               ptr(ident.UserID),
		Confidence:           ptr(round2(ident.Confidence)),
		Transcript:           ptr(transcript),
		Language:             ptr(language),
		AudioDurationSeconds: round2(duration),
		Fallback:             ident.Fallback,
		FallbackReason:       reason,
	}
}

// ReloadFingerprints clears and reloads the fingerprint table from disk.
func (p *Pipeline) ReloadFingerprints() (loaded, missing []string, err error) {
	if p.identifier == nil {
		return nil, nil, errIdentifierUnavailable
	}
	return p.identifier.Reload()
}

// Health reports component statuses for the health endpoint.
type Health struct {
	Status        string   `json:"status"`
	VAD           string   `json:"vad"`
	SpeakerID     string   `json:"speaker_id"`
	Transcription string   `json:"transcription"`
	LoadedUsers   []string `json:"loaded_users"`
	WhisperModel  string   `json:"whisper_model"`
}

// Health assembles the component statuses. The service is "ok" when speaker
// identification is at least degraded and transcription works; otherwise
// "degraded". VAD may fail without affecting overall status.
func (p *Pipeline) Health() Health {
	speakerStatus, loadedUsers := "error", []string{}
	if p.identifier != nil {
		speakerStatus, loadedUsers = p.identifier.Status()
	}

	healthy := (speakerStatus == "ok" || speakerStatus == "degraded") &&
		p.transcriptionStatus == "ok"

	status := "ok"
	if !healthy {
		status = "degraded"
	}

	return Health{
		Status:        status,
		VAD:           p.vadStatus,
		SpeakerID:     speakerStatus,
		Transcription: p.transcriptionStatus,
		LoadedUsers:   loadedUsers,
		WhisperModel:  p.whisperModel,
	}
}

// logAudit appends one audit record, logging (not failing) on write errors.
func (p *Pipeline) logAudit(ctx context.Context, event string, userID *string, confidence *float64, reason *string, duration float64) {
	if p.audit == nil {
		return
	}
	if err := p.audit.Log(event, userID, confidence, reason, duration); err != nil {
		observe.Logger(ctx).Error("failed to write audit record", "err", err)
	}
}

// countResult bumps the pipeline outcome counter when metrics are wired.
func (p *Pipeline) countResult(ctx context.Context, status string) {
	if p.metrics == nil {
		return
	}
	p.metrics.VoiceResults.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// recordStage records one stage duration when metrics are wired.
func (p *Pipeline) recordStage(ctx context.Context, h metric.Float64Histogram, start time.Time) {
	if h == nil {
		return
	}
	h.Record(ctx, time.Since(start).Seconds())
}

func (p *Pipeline) metricVAD() metric.Float64Histogram {
	if p.metrics == nil {
		return nil
	}
	return p.metrics.VADDuration
}

func (p *Pipeline) metricSpeakerID() metric.Float64Histogram {
	if p.metrics == nil {
		return nil
	}
	return p.metrics.SpeakerIDDuration
}

func (p *Pipeline) metricTranscription() metric.Float64Histogram {
	if p.metrics == nil {
		return nil
	}
	return p.metrics.TranscriptionDuration
}

// errIdentifierUnavailable is returned by ReloadFingerprints when speaker
// identification never initialised.
var errIdentifierUnavailable = errors.New("speaker identification not initialized")
