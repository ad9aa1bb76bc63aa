// Command llmd is the LLM sidecar: retrieval-augmented chat against a local
// Ollama runtime, backed by a per-user pgvector memory store.
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

	"github.com/foyer-ai/foyer/internal/classify"
	"github.com/foyer-ai/foyer/internal/config"
	"github.com/foyer-ai/foyer/internal/inference"
	"github.com/foyer-ai/foyer/internal/llmserver"
	"github.com/foyer-ai/foyer/internal/observe"
	memorypg "github.com/foyer-ai/foyer/pkg/memory/postgres"
	embollama "github.com/foyer-ai/foyer/pkg/provider/embeddings/ollama"
	llmollama "github.com/foyer-ai/foyer/pkg/provider/llm/ollama"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "llmd.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadLLM(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "llmd: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "llmd: %v\n", err)
		}
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("llmd starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"fast_model", cfg.Ollama.Models.Fast,
		"full_model", cfg.Ollama.Models.Full,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "llmd"})
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

	// ── Embeddings + memory store ─────────────────────────────────────────────
	embedBase := cfg.Embeddings.BaseURL
	if embedBase == "" {
		embedBase = cfg.Ollama.BaseURL
	}
	embedder, err := embollama.New(embedBase, cfg.Embeddings.Model,
		embollama.WithDimensions(cfg.Embeddings.Dimensions),
		embollama.WithTimeout(time.Duration(cfg.Ollama.TimeoutSeconds)*time.Second),
	)
	if err != nil {
		slog.Error("failed to create embeddings provider", "err", err)
		return 1
	}

	store, err := memorypg.NewStore(ctx, cfg.Memory.PostgresDSN, embedder)
	if err != nil {
		slog.Error("failed to open memory store", "err", err)
		return 1
	}
	defer store.Close()
	slog.Info("memory store ready", "embedding_model", embedder.ModelID())

	// ── Classifier + inference engine ─────────────────────────────────────────
	classifier, err := classify.New(cfg.Classifier, cfg.UserProfiles)
	if err != nil {
		slog.Error("failed to create classifier", "err", err)
		return 1
	}

	// A missing runtime must not block startup; the health endpoint reports it.
	runtime := llmollama.New(cfg.Ollama.BaseURL,
		llmollama.WithTimeout(time.Duration(cfg.Ollama.TimeoutSeconds)*time.Second))
	engine := inference.New(cfg, classifier, store, runtime, metrics)

	server := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: llmserver.New(cfg, engine, store, metrics).Handler(),
	}

	slog.Info("llmd ready", "listen_addr", cfg.Server.ListenAddr)
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
