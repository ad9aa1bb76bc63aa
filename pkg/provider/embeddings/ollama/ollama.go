// Package ollama provides an embeddings provider backed by a local Ollama
// server's native /api/embed endpoint.
//
// The provider is built for the memory layer's fixed-dimension contract: the
// pgvector schema bakes the vector dimension into its migration, so the
// dimension must be known *before* the store is constructed. [New] therefore
// resolves it eagerly — from an explicit option or from the built-in model
// table — and refuses to construct a provider whose dimension it cannot
// determine. Every response vector is then checked against that dimension,
// so a model swap on the Ollama side surfaces as an error instead of a
// silently corrupted index.
//
// Vectors are L2-normalised before being returned so the memory layer's
// cosine-distance score mapping (score = 1 − d/2) holds regardless of model.
//
// Example usage:
//
//	p, err := ollama.New("", "all-minilm") // http://localhost:11434, 384-d
//	if err != nil {
//	    log.Fatal(err)
//	}
//	vec, err := p.Embed(ctx, "Le code wifi est 1234")
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/foyer-ai/foyer/pkg/provider/embeddings"
)

// DefaultBaseURL is the default base URL for a locally running Ollama instance.
const DefaultBaseURL = "http://localhost:11434"

// Ensure Provider implements the embeddings.Provider interface at compile time.
var _ embeddings.Provider = (*Provider)(nil)

// Provider implements embeddings.Provider using a local Ollama server.
// It is immutable after construction and safe for concurrent use.
type Provider struct {
	baseURL    string
	model      string
	dims       int
	httpClient *http.Client
}

// config holds optional configuration collected from functional options.
type config struct {
	timeout    time.Duration
	dimensions int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout on the underlying HTTP client.
// A zero or negative value means no timeout (the default).
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithDimensions pins the embedding dimension explicitly. Required for
// models outside the built-in table; for known models it overrides the table
// (useful for models served with truncated dimensions).
func WithDimensions(dims int) Option {
	return func(c *config) {
		c.dimensions = dims
	}
}

// New constructs an Ollama Provider for model at baseURL (empty means
// [DefaultBaseURL]; a trailing slash is stripped).
//
// The dimension is resolved here, eagerly: WithDimensions wins, then the
// built-in table of deployment-supported models. A model with no resolvable
// dimension is a configuration error — set embeddings.dimensions.
func New(baseURL string, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama embeddings: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	dims := cfg.dimensions
	if dims == 0 {
		dims = knownDimensions(model)
	}
	if dims <= 0 {
		return nil, fmt.Errorf("ollama embeddings: dimension for model %q is unknown; configure it explicitly", model)
	}

	httpClient := &http.Client{}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	return &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dims:       dims,
		httpClient: httpClient,
	}, nil
}

// embedRequest is the JSON request body sent to Ollama's /api/embed endpoint.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse is the JSON response body returned by Ollama's /api/embed endpoint.
type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed implements embeddings.Provider by computing the unit-norm embedding
// vector for a single text string.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.callEmbed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed: %w", err)
	}
	return vecs[0], nil
}

// EmbedBatch implements embeddings.Provider by computing embedding vectors
// for a slice of texts in a single Ollama /api/embed request.
//
// Passing a nil or empty texts slice returns (nil, nil) without issuing any
// network request.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := p.callEmbed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed batch: %w", err)
	}
	return vecs, nil
}

// Dimensions implements embeddings.Provider. The value was resolved at
// construction and never changes.
func (p *Provider) Dimensions() int {
	return p.dims
}

// ModelID implements embeddings.Provider by returning the Ollama model name
// supplied at construction time.
func (p *Provider) ModelID() string {
	return p.model
}

// callEmbed sends one POST /api/embed request, validates that the server
// returned one vector of the expected dimension per input, and normalises
// each vector in place.
func (p *Provider) callEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{
		Model: p.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	for i, vec := range result.Embeddings {
		if len(vec) != p.dims {
			// The server-side model no longer matches the schema dimension.
			return nil, fmt.Errorf("model %q produced a %d-d vector, want %d — embedding model and memory schema have diverged",
				p.model, len(vec), p.dims)
		}
		embeddings.Normalize(result.Embeddings[i])
	}
	return result.Embeddings, nil
}

// knownDimensions returns the output dimension for the embedding models this
// deployment supports out of the box. Returns 0 for unknown models, which
// [New] treats as a configuration error.
func knownDimensions(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "all-minilm"):
		return 384
	case strings.Contains(lower, "nomic-embed-text"):
		return 768
	case strings.Contains(lower, "mxbai-embed-large"):
		return 1024
	default:
		return 0
	}
}
