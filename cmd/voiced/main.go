// Command voiced is the voice sidecar: it turns a raw audio upload into an
// identified speaker plus transcript via the VAD → speaker-id → transcription
// pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/foyer-ai/foyer/internal/config"
	"github.com/foyer-ai/foyer/internal/observe"
	"github.com/foyer-ai/foyer/internal/voice"
	"github.com/foyer-ai/foyer/pkg/provider/speaker/httpenc"
	"github.com/foyer-ai/foyer/pkg/provider/stt"
	"github.com/foyer-ai/foyer/pkg/provider/stt/whisper"
	"github.com/foyer-ai/foyer/pkg/provider/vad"
	"github.com/foyer-ai/foyer/pkg/provider/vad/energy"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "voiced.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadVoice(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voiced: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voiced: %v\n", err)
		}
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("voiced starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"embeddings_path", cfg.SpeakerID.EmbeddingsPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voiced"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer shutdownTelemetry(otelShutdown)

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Pipeline components ───────────────────────────────────────────────────
	// Each stage degrades independently: a failed VAD assumes speech, a failed
	// identifier produces error results, a failed transcriber yields empty
	// transcripts. Only the audit log is required for startup.
	var detector vad.Detector = energy.New(
		energy.WithThreshold(cfg.VAD.Threshold),
		energy.WithWindowMs(cfg.VAD.WindowMs),
		energy.WithMinSpeechMs(cfg.VAD.MinSpeechDurationMs),
	)

	var identifier *voice.Identifier
	encoder, err := httpenc.New(cfg.SpeakerID.EncoderURL)
	if err != nil {
		slog.Error("speaker encoder initialisation failed", "err", err)
	} else if identifier, err = voice.NewIdentifier(encoder, cfg.SpeakerID); err != nil {
		slog.Error("speaker identification initialisation failed", "err", err)
		identifier = nil
	}

	var transcriber stt.Transcriber
	if wp, err := whisper.New(cfg.Transcription.ServerURL,
		whisper.WithModel(cfg.Transcription.Model),
		whisper.WithLanguage(cfg.Transcription.Language),
		whisper.WithTimeout(time.Duration(cfg.Transcription.TimeoutSeconds)*time.Second),
	); err != nil {
		slog.Error("transcriber initialisation failed", "err", err)
	} else {
		transcriber = wp
	}

	audit, err := voice.NewAuditLogger(cfg.Audit.LogPath)
	if err != nil {
		slog.Error("failed to open audit log", "err", err)
		return 1
	}
	defer audit.Close()

	pipeline := voice.NewPipeline(detector, identifier, transcriber, audit, cfg.Transcription.Model, metrics)

	server := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: voice.NewServer(pipeline, metrics).Handler(),
	}

	slog.Info("voiced ready", "listen_addr", cfg.Server.ListenAddr)
	return serve(ctx, server)
}

// serve runs the HTTP server until the context is cancelled, then shuts it
// down gracefully.
func serve(ctx context.Context, server *http.Server) int {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// shutdownTelemetry flushes the OTel providers.
func shutdownTelemetry(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		slog.Error("telemetry shutdown error", "err", err)
	}
}

// newLogger builds the process-wide slog logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
