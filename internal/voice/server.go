package voice

import (
	"io"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foyer-ai/foyer/internal/httpapi"
	"github.com/foyer-ai/foyer/internal/observe"
	"github.com/foyer-ai/foyer/pkg/audio"
)

// maxUploadBytes bounds voice uploads (a minute of 48 kHz stereo PCM fits
// comfortably).
const maxUploadBytes = 32 << 20

// Server exposes the voice pipeline over HTTP.
type Server struct {
	pipeline *Pipeline
	metrics  *observe.Metrics
}

// NewServer constructs a Server. metrics may be nil in tests.
func NewServer(pipeline *Pipeline, metrics *observe.Metrics) *Server {
	return &Server{pipeline: pipeline, metrics: metrics}
}

// Handler returns the routed HTTP handler, wrapped in the observe middleware
// when metrics are present.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /voice/process", s.handleProcess)
	mux.HandleFunc("POST /voice/reload-embeddings", s.handleReload)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	if s.metrics != nil {
		return observe.Middleware("voiced", s.metrics)(mux)
	}
	return mux
}

// handleProcess accepts a multipart .wav upload and runs it through the
// pipeline. Requests spend their time in provider calls, so the per-request
// goroutine the server already provides is offloading enough — the accept
// loop never blocks on a clip.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		httpapi.Error(w, http.StatusBadRequest, "multipart field %q is required: %v", "file", err)
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".wav") {
		httpapi.Error(w, http.StatusBadRequest, "only WAV files are supported")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		httpapi.Error(w, http.StatusInternalServerError, "audio processing failed: %v", err)
		return
	}

	clip, err := audio.Decode(data)
	if err != nil {
		httpapi.Error(w, http.StatusInternalServerError, "audio processing failed: %v", err)
		return
	}

	result := s.pipeline.Process(r.Context(), clip)
	if result.Status == "error" {
		httpapi.WriteJSON(w, http.StatusInternalServerError, result)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, result)
}

// handleReload re-reads fingerprints from disk.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	loaded, missing, err := s.pipeline.ReloadFingerprints()
	if err != nil {
		httpapi.Error(w, http.StatusInternalServerError, "failed to reload embeddings: %v", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"status":        "reloaded",
		"loaded_users":  loaded,
		"missing_users": missing,
	})
}

// handleHealth reports component statuses; 200 for ok/degraded, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.pipeline.Health()
	status := http.StatusOK
	if health.Status != "ok" && health.Status != "degraded" {
		status = http.StatusServiceUnavailable
	}
	httpapi.WriteJSON(w, status, health)
}
