package voice

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/foyer-ai/foyer/internal/config"
	"github.com/foyer-ai/foyer/pkg/audio"
	"github.com/foyer-ai/foyer/pkg/npy"
	"github.com/foyer-ai/foyer/pkg/provider/speaker"
)

// Identification is the outcome of one speaker-identification attempt.
// An empty UserID means the attempt was rejected.
type Identification struct {
	// UserID is the identified (or fallback) user, empty when rejected.
	UserID string

	// Confidence is the best cosine similarity observed, in [0, 1].
	Confidence float64

	// Fallback reports whether the fallback hierarchy decided the user.
	Fallback bool

	// FallbackReason explains a fallback decision
	// ("single_candidate: <user>" or "ambiguous_candidates: [a, b]").
	FallbackReason string
}

// Identifier owns the enrolled fingerprint table and applies the three-tier
// confidence rule. The table is replaced wholesale on reload, so concurrent
// identifications see either the old or the new table, never a mix.
type Identifier struct {
	encoder        speaker.Encoder
	confidenceHigh float64
	confidenceLow  float64
	embeddingsPath string
	hierarchy      []string

	mu           sync.RWMutex
	fingerprints map[string][]float32
}

// NewIdentifier constructs an Identifier and performs the initial fingerprint
// load. A load with zero fingerprints is not an error — identification
// degrades to rejection until enrollment happens.
func NewIdentifier(encoder speaker.Encoder, cfg config.SpeakerIDConfig) (*Identifier, error) {
	if encoder == nil {
		return nil, fmt.Errorf("speaker id: encoder is required")
	}
	id := &Identifier{
		encoder:        encoder,
		confidenceHigh: cfg.ConfidenceHigh,
		confidenceLow:  cfg.ConfidenceLow,
		embeddingsPath: cfg.EmbeddingsPath,
		hierarchy:      slices.Clone(cfg.FallbackHierarchy),
		fingerprints:   map[string][]float32{},
	}
	if _, _, err := id.Reload(); err != nil {
		return nil, err
	}
	return id, nil
}

// Reload clears the in-memory fingerprint table and reloads from disk,
// returning the loaded and missing user lists. A fingerprint file whose
// on-disk shape does not match the required dimension is rejected and the
// user reported missing. The new table is swapped in atomically.
func (id *Identifier) Reload() (loaded, missing []string, err error) {
	if mkErr := os.MkdirAll(id.embeddingsPath, 0o755); mkErr != nil {
		return nil, nil, fmt.Errorf("speaker id: create embeddings directory: %w", mkErr)
	}

	table := map[string][]float32{}
	for _, user := range id.hierarchy {
		path := filepath.Join(id.embeddingsPath, user+".npy")
		vec, readErr := npy.ReadVector(path)
		if readErr != nil {
			if !os.IsNotExist(readErr) {
				slog.Warn("failed to load fingerprint", "user", user, "err", readErr)
			}
			missing = append(missing, user)
			continue
		}
		if len(vec) != speaker.EmbeddingDim {
			slog.Warn("fingerprint has wrong shape",
				"user", user, "got", len(vec), "want", speaker.EmbeddingDim)
			missing = append(missing, user)
			continue
		}
		table[user] = vec
		loaded = append(loaded, user)
	}

	if len(loaded) == 0 {
		slog.Warn("no fingerprints loaded — speaker identification will be degraded")
	}

	id.mu.Lock()
	id.fingerprints = table
	id.mu.Unlock()

	if loaded == nil {
		loaded = []string{}
	}
	if missing == nil {
		missing = []string{}
	}
	return loaded, missing, nil
}

// Identify encodes the clip and applies the three-tier decision rule.
// Boundary semantics: confidence ≥ high ⇒ identified, ≥ low ⇒ fallback band,
// strictly below low ⇒ rejected.
func (id *Identifier) Identify(ctx context.Context, clip audio.Clip) (Identification, error) {
	id.mu.RLock()
	table := id.fingerprints
	id.mu.RUnlock()

	if len(table) == 0 {
		return Identification{}, nil
	}

	embedding, err := id.encoder.Encode(ctx, clip)
	if err != nil {
		return Identification{}, fmt.Errorf("speaker id: encode: %w", err)
	}

	similarities := make(map[string]float64, len(table))
	bestUser, bestScore := "", -1.0
	for user, fingerprint := range table {
		sim := cosineSimilarity(embedding, fingerprint)
		similarities[user] = sim
		if sim > bestScore {
			bestUser, bestScore = user, sim
		}
	}

	return id.decide(similarities, bestUser, bestScore), nil
}

// decide applies the three-tier confidence rule.
func (id *Identifier) decide(similarities map[string]float64, bestUser string, bestScore float64) Identification {
	// Tier 1: high confidence — normal identification.
	if bestScore >= id.confidenceHigh {
		return Identification{UserID: bestUser, Confidence: bestScore}
	}

	// Tier 3: low confidence — reject.
	if bestScore < id.confidenceLow {
		return Identification{Confidence: bestScore}
	}

	// Tier 2: medium band — fall back to the most restrictive candidate.
	var candidates []string
	for user, score := range similarities {
		if score >= id.confidenceLow {
			candidates = append(candidates, user)
		}
	}
	slices.Sort(candidates)

	if len(candidates) == 1 {
		return Identification{
			UserID:         candidates[0],
			Confidence:     bestScore,
			Fallback:       true,
			FallbackReason: "single_candidate: " + candidates[0],
		}
	}

	return Identification{
		UserID:         id.mostRestrictive(candidates),
		Confidence:     bestScore,
		Fallback:       true,
		FallbackReason: fmt.Sprintf("ambiguous_candidates: [%s]", strings.Join(candidates, ", ")),
	}
}

// mostRestrictive returns the earliest hierarchy member present in
// candidates. The hierarchy is ordered most restrictive → least restrictive.
func (id *Identifier) mostRestrictive(candidates []string) string {
	for _, user := range id.hierarchy {
		if slices.Contains(candidates, user) {
			return user
		}
	}
	return candidates[0]
}

// Status reports the identifier state for the health endpoint: "ok" when
// every expected user has a fingerprint, "degraded" when some do, "error"
// when none do, plus the loaded user list.
func (id *Identifier) Status() (string, []string) {
	id.mu.RLock()
	defer id.mu.RUnlock()

	loaded := make([]string, 0, len(id.fingerprints))
	for user := range id.fingerprints {
		loaded = append(loaded, user)
	}
	slices.Sort(loaded)

	switch {
	case len(loaded) == 0:
		return "error", loaded
	case len(loaded) < len(id.hierarchy):
		return "degraded", loaded
	default:
		return "ok", loaded
	}
}

// cosineSimilarity computes the cosine similarity of two vectors, clamped to
// [0, 1].
func cosineSimilarity(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(0, math.Min(1, sim))
}
