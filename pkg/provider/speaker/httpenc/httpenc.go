// Package httpenc provides a speaker.Encoder backed by an HTTP embedding
// service.
//
// The service exposes POST /embed accepting a WAV file as multipart/form-data
// (field "file") and responding with JSON {"embedding": [ ... ]}. The clip is
// resampled to 16 kHz before upload, matching what common voice-encoder
// models expect.
package httpenc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/foyer-ai/foyer/pkg/audio"
	"github.com/foyer-ai/foyer/pkg/provider/speaker"
)

// modelSampleRate is the sample rate the encoder service expects.
const modelSampleRate = 16000

// Ensure Encoder implements speaker.Encoder at compile time.
var _ speaker.Encoder = (*Encoder)(nil)

// Encoder implements speaker.Encoder against an HTTP embedding service.
// It is safe for concurrent use.
type Encoder struct {
	serverURL  string
	httpClient *http.Client
}

// Option is a functional option for Encoder.
type Option func(*Encoder)

// WithTimeout sets a per-request timeout on the underlying HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(e *Encoder) {
		if d > 0 {
			e.httpClient.Timeout = d
		}
	}
}

// New constructs an Encoder for the embedding service at serverURL
// (e.g., "http://localhost:10011"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Encoder, error) {
	if serverURL == "" {
		return nil, errors.New("speaker encoder: serverURL must not be empty")
	}
	e := &Encoder{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Encode implements speaker.Encoder. It resamples the clip to 16 kHz, encodes
// it as WAV, uploads it, and validates the returned embedding dimension.
func (e *Encoder) Encode(ctx context.Context, clip audio.Clip) ([]float32, error) {
	samples := audio.Resample(clip.Samples, clip.SampleRate, modelSampleRate)
	wav := audio.Encode(samples, modelSampleRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, fmt.Errorf("speaker encoder: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("speaker encoder: write wav data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("speaker encoder: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL+"/embed", &body)
	if err != nil {
		return nil, fmt.Errorf("speaker encoder: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speaker encoder: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speaker encoder: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("speaker encoder: read response body: %w", err)
	}

	var result struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("speaker encoder: parse JSON response: %w", err)
	}
	if len(result.Embedding) != speaker.EmbeddingDim {
		return nil, fmt.Errorf("speaker encoder: expected %d-d embedding, got %d", speaker.EmbeddingDim, len(result.Embedding))
	}
	return result.Embedding, nil
}
