// Command learnd is the learning sidecar: it accepts user corrections and
// drives them through the four-stage validation pipeline before committing
// them to the LLM sidecar's memory.
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
	"github.com/foyer-ai/foyer/internal/learning"
	"github.com/foyer-ai/foyer/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "learnd.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadLearning(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "learnd: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "learnd: %v\n", err)
		}
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("learnd starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"llm_sidecar", cfg.LLMSidecar.BaseURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "learnd"})
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

	// ── Wiring ────────────────────────────────────────────────────────────────
	storage, err := learning.NewStorage(cfg.Storage.BasePath)
	if err != nil {
		slog.Error("failed to open correction store", "err", err)
		return 1
	}

	sidecar := learning.NewSidecarClient(cfg.LLMSidecar)

	vendor := learning.NewVendorClient(cfg.FactCheck)
	if vendor == nil {
		slog.Warn("external fact-check API key not configured — gate 2b will auto-pass",
			"env", cfg.FactCheck.APIKeyEnv)
	}

	gates := learning.NewGates(sidecar, cfg.Gates.PersonalInfoKeywords, vendor)
	notifier := learning.NewNotifier(cfg.Notification)
	pipeline := learning.NewPipeline(storage, gates, notifier, cfg.Gates.Gate2AConfidenceThreshold, metrics)
	srv := learning.NewServer(cfg, storage, pipeline, sidecar, metrics)

	server := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: srv.Handler(),
	}

	slog.Info("learnd ready", "listen_addr", cfg.Server.ListenAddr)
	code := serve(ctx, server)

	// Drain background pipeline runs before exiting so in-flight corrections
	// reach a persisted state.
	srv.Wait()
	return code
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
