package voice

import (
	"bufio"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/foyer-ai/foyer/pkg/audio"
	"github.com/foyer-ai/foyer/pkg/npy"
	"github.com/foyer-ai/foyer/pkg/provider/speaker"
	speakermock "github.com/foyer-ai/foyer/pkg/provider/speaker/mock"
	"github.com/foyer-ai/foyer/pkg/provider/stt"
	sttmock "github.com/foyer-ai/foyer/pkg/provider/stt/mock"
	"github.com/foyer-ai/foyer/pkg/provider/vad"
	vadmock "github.com/foyer-ai/foyer/pkg/provider/vad/mock"
)

// newAudit returns an audit logger writing into a temp file plus a reader for
// its records.
func newAudit(t *testing.T) (*AuditLogger, func() []AuditRecord) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "access_log.jsonl")
	logger, err := NewAuditLogger(path)
	if err != nil {
		t.Fatalf("NewAuditLogger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })

	read := func() []AuditRecord {
		f, err := os.Open(path)
		if err != nil {
			t.Fatalf("open audit log: %v", err)
		}
		defer f.Close()
		var records []AuditRecord
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			var rec AuditRecord
			if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
				t.Fatalf("bad audit line %q: %v", sc.Text(), err)
			}
			records = append(records, rec)
		}
		return records
	}
	return logger, read
}

// newIdentifierWithDad enrolls dad and returns an identifier whose encoder
// yields cos(dad)=sim.
func newIdentifierWithDad(t *testing.T, sim float64) *Identifier {
	t.Helper()
	dir := t.TempDir()
	fp := make([]float32, speaker.EmbeddingDim)
	fp[0] = 1
	if err := npy.WriteVector(filepath.Join(dir, "dad.npy"), fp); err != nil {
		t.Fatalf("WriteVector: %v", err)
	}

	emb := make([]float32, speaker.EmbeddingDim)
	emb[0] = float32(sim)
	emb[1] = float32(math.Sqrt(1 - sim*sim))

	id, err := NewIdentifier(&speakermock.Encoder{Embedding: emb}, speakerCfg(dir))
	if err != nil {
		t.Fatalf("NewIdentifier: %v", err)
	}
	return id
}

func clip16k(seconds float64) audio.Clip {
	return audio.Clip{Samples: make([]float32, int(seconds*16000)), SampleRate: 16000}
}

func TestProcess_NoSpeechShortCircuits(t *testing.T) {
	t.Parallel()
	logger, read := newAudit(t)
	enc := &speakermock.Encoder{}
	id, err := NewIdentifier(enc, speakerCfg(t.TempDir()))
	if err != nil {
		t.Fatalf("NewIdentifier: %v", err)
	}
	transcriber := &sttmock.Transcriber{}
	p := NewPipeline(
		&vadmock.Detector{Result: vad.Result{HasSpeech: false, SpeechRatio: 0}},
		id, transcriber, logger, "base", nil,
	)

	res := p.Process(context.Background(), clip16k(2))
	if res.Status != "no_speech" {
		t.Errorf("status = %q", res.Status)
	}
	if res.UserID != nil || res.Transcript != nil {
		t.Error("user_id and transcript must be null")
	}
	if res.AudioDurationSeconds != 2 {
		t.Errorf("duration = %f", res.AudioDurationSeconds)
	}
	if enc.CallCount != 0 {
		t.Error("identifier must not run on no-speech")
	}
	if transcriber.CallCount != 0 {
		t.Error("transcriber must not run on no-speech")
	}

	records := read()
	if len(records) != 1 || records[0].Event != EventNoSpeech {
		t.Errorf("audit records = %+v, want one no_speech", records)
	}
}

func TestProcess_IdentifiedWithTranscript(t *testing.T) {
	t.Parallel()
	logger, read := newAudit(t)
	p := NewPipeline(
		&vadmock.Detector{Result: vad.Result{HasSpeech: true, SpeechRatio: 0.8}},
		newIdentifierWithDad(t, 0.87),
		&sttmock.Transcriber{Result: stt.Transcript{Text: "allume la lumière", Language: "fr"}},
		logger, "base", nil,
	)

	res := p.Process(context.Background(), clip16k(1.5))
	if res.Status != "identified" || res.Fallback {
		t.Fatalf("result = %+v", res)
	}
	if *res.UserID != "dad" {
		t.Errorf("user = %q", *res.UserID)
	}
	if math.Abs(*res.Confidence-0.87) > 0.001 {
		t.Errorf("confidence = %f", *res.Confidence)
	}
	if *res.Transcript != "allume la lumière" || *res.Language != "fr" {
		t.Errorf("transcript = %q lang = %q", *res.Transcript, *res.Language)
	}

	records := read()
	if len(records) != 1 || records[0].Event != EventIdentified || *records[0].UserID != "dad" {
		t.Errorf("audit = %+v", records)
	}
}

func TestProcess_RejectedSkipsTranscription(t *testing.T) {
	t.Parallel()
	logger, read := newAudit(t)
	transcriber := &sttmock.Transcriber{Result: stt.Transcript{Text: "should not run"}}
	p := NewPipeline(
		&vadmock.Detector{Result: vad.Result{HasSpeech: true}},
		newIdentifierWithDad(t, 0.40),
		transcriber, logger, "base", nil,
	)

	res := p.Process(context.Background(), clip16k(1))
	if res.Status != "rejected" {
		t.Fatalf("status = %q", res.Status)
	}
	if res.UserID != nil || res.Transcript != nil {
		t.Error("rejected result must have null user_id and transcript")
	}
	if math.Abs(*res.Confidence-0.40) > 0.001 {
		t.Errorf("confidence = %f", *res.Confidence)
	}
	if transcriber.CallCount != 0 {
		t.Error("transcriber must not run on rejection")
	}
	if records := read(); len(records) != 1 || records[0].Event != EventRejected {
		t.Errorf("audit = %+v", records)
	}
}

func TestProcess_TranscriberFailureDegrades(t *testing.T) {
	t.Parallel()
	logger, _ := newAudit(t)
	p := NewPipeline(
		&vadmock.Detector{Result: vad.Result{HasSpeech: true}},
		newIdentifierWithDad(t, 0.9),
		&sttmock.Transcriber{Err: context.DeadlineExceeded},
		logger, "base", nil,
	)

	res := p.Process(context.Background(), clip16k(1))
	if res.Status != "identified" {
		t.Fatalf("status = %q", res.Status)
	}
	if *res.Transcript != "" || *res.Language != "unknown" {
		t.Errorf("transcript = %q lang = %q, want empty/unknown", *res.Transcript, *res.Language)
	}
}

func TestProcess_NilDetectorAssumesSpeech(t *testing.T) {
	t.Parallel()
	logger, _ := newAudit(t)
	p := NewPipeline(nil, newIdentifierWithDad(t, 0.9),
		&sttmock.Transcriber{Result: stt.Transcript{Text: "ok", Language: "fr"}},
		logger, "base", nil,
	)
	res := p.Process(context.Background(), clip16k(1))
	if res.Status != "identified" {
		t.Errorf("status = %q, want identified despite missing VAD", res.Status)
	}
}

func TestProcess_NilIdentifierIsError(t *testing.T) {
	t.Parallel()
	logger, read := newAudit(t)
	p := NewPipeline(
		&vadmock.Detector{Result: vad.Result{HasSpeech: true}},
		nil, &sttmock.Transcriber{}, logger, "base", nil,
	)
	res := p.Process(context.Background(), clip16k(1))
	if res.Status != "error" || res.Error == "" {
		t.Errorf("result = %+v, want error status", res)
	}
	if records := read(); len(records) != 0 {
		t.Errorf("error results must not be audited, got %+v", records)
	}
}

func TestHealth_Statuses(t *testing.T) {
	t.Parallel()
	logger, _ := newAudit(t)

	p := NewPipeline(nil, newIdentifierWithDad(t, 0.9), &sttmock.Transcriber{}, logger, "base", nil)
	h := p.Health()
	if h.Status != "ok" {
		t.Errorf("status = %q, want ok (vad failure alone does not degrade)", h.Status)
	}
	if h.VAD != "error" || h.SpeakerID != "degraded" {
		t.Errorf("vad = %q speaker = %q", h.VAD, h.SpeakerID)
	}
	if h.WhisperModel != "base" {
		t.Errorf("whisper_model = %q", h.WhisperModel)
	}

	p = NewPipeline(nil, newIdentifierWithDad(t, 0.9), nil, logger, "base", nil)
	if h := p.Health(); h.Status != "degraded" || h.Transcription != "error" {
		t.Errorf("health = %+v, want degraded on missing transcriber", h)
	}
}
