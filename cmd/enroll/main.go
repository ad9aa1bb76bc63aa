// Command enroll generates a voice fingerprint for a family member from one
// or more WAV samples and writes it as <user>.npy in the embeddings
// directory. Run the voice sidecar's /voice/reload-embeddings afterwards (or
// restart it) to pick the fingerprint up.
//
// Usage:
//
//	enroll -user dad -encoder-url http://localhost:10011 \
//	    -out data/voice/embeddings sample1.wav sample2.wav
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/foyer-ai/foyer/pkg/audio"
	"github.com/foyer-ai/foyer/pkg/npy"
	"github.com/foyer-ai/foyer/pkg/provider/speaker"
	"github.com/foyer-ai/foyer/pkg/provider/speaker/httpenc"
)

// knownUsers is the closed set of enrollable identities.
var knownUsers = []string{"dad", "mom", "teen", "child"}

func main() {
	os.Exit(run())
}

func run() int {
	user := flag.String("user", "", "user to enroll (dad, mom, teen, child)")
	encoderURL := flag.String("encoder-url", "http://localhost:10011", "speaker embedding service base URL")
	outDir := flag.String("out", "data/voice/embeddings", "fingerprint output directory")
	timeout := flag.Duration("timeout", 30*time.Second, "per-sample encoding timeout")
	flag.Parse()

	samples := flag.Args()
	if !slices.Contains(knownUsers, *user) {
		fmt.Fprintf(os.Stderr, "enroll: -user must be one of %v\n", knownUsers)
		return 2
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stderr, "enroll: at least one WAV sample is required")
		return 2
	}

	encoder, err := httpenc.New(*encoderURL, httpenc.WithTimeout(*timeout))
	if err != nil {
		slog.Error("failed to create encoder", "err", err)
		return 1
	}

	slog.Info("enrolling user", "user", *user, "samples", len(samples))

	sum := make([]float64, speaker.EmbeddingDim)
	for i, path := range samples {
		slog.Info("processing sample", "n", i+1, "of", len(samples), "file", filepath.Base(path))

		data, err := os.ReadFile(path)
		if err != nil {
			slog.Error("failed to read sample", "file", path, "err", err)
			return 1
		}
		clip, err := audio.Decode(data)
		if err != nil {
			slog.Error("failed to decode sample", "file", path, "err", err)
			return 1
		}

		embedding, err := encoder.Encode(context.Background(), clip)
		if err != nil {
			slog.Error("failed to encode sample", "file", path, "err", err)
			return 1
		}
		for j, v := range embedding {
			sum[j] += float64(v)
		}
	}

	// Average the per-sample embeddings into one fingerprint.
	fingerprint := make([]float32, speaker.EmbeddingDim)
	for i := range fingerprint {
		fingerprint[i] = float32(sum[i] / float64(len(samples)))
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		slog.Error("failed to create output directory", "err", err)
		return 1
	}
	outPath := filepath.Join(*outDir, *user+".npy")
	if err := npy.WriteVector(outPath, fingerprint); err != nil {
		slog.Error("failed to write fingerprint", "err", err)
		return 1
	}

	slog.Info("fingerprint written", "user", *user, "path", outPath, "samples", len(samples))
	return 0
}
