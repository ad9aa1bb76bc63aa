package learning

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foyer-ai/foyer/internal/config"
	"github.com/foyer-ai/foyer/internal/httpapi"
	"github.com/foyer-ai/foyer/internal/observe"
)

// adminReviewers are the only identities allowed to act on gate 3.
var adminReviewers = []string{"dad", "mom"}

// healthTimeout bounds the LLM-sidecar reachability probe.
const healthTimeout = 5 * time.Second

// Server exposes the learning sidecar's HTTP surface.
type Server struct {
	cfg      *config.LearningConfig
	storage  *Storage
	pipeline *Pipeline
	sidecar  *SidecarClient
	metrics  *observe.Metrics

	// background tracks in-flight pipeline runs so Wait can drain them on
	// shutdown.
	background sync.WaitGroup
}

// NewServer constructs a Server. metrics may be nil in tests.
func NewServer(cfg *config.LearningConfig, storage *Storage, pipeline *Pipeline, sidecar *SidecarClient, metrics *observe.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		storage:  storage,
		pipeline: pipeline,
		sidecar:  sidecar,
		metrics:  metrics,
	}
}

// Handler returns the routed HTTP handler, wrapped in the observe middleware
// when metrics are present.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /learning/submit", s.handleSubmit)
	mux.HandleFunc("GET /learning/status/{id}", s.handleStatus)
	mux.HandleFunc("GET /learning/pending", s.handlePending)
	mux.HandleFunc("POST /learning/review/{id}", s.handleReview)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	if s.metrics != nil {
		return observe.Middleware("learnd", s.metrics)(mux)
	}
	return mux
}

// Wait blocks until all background pipeline runs have finished. Called
// during graceful shutdown.
func (s *Server) Wait() {
	s.background.Wait()
}

// ── /learning/submit ─────────────────────────────────────────────────────────

type submitRequest struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// handleSubmit creates a correction, persists it in processing state, and
// responds immediately; the gate pipeline starts only after the response has
// been flushed to the client.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.Error(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.UserID == "" || req.Content == "" {
		httpapi.Error(w, http.StatusBadRequest, "user_id and content are required")
		return
	}

	ctx := observe.WithUser(r.Context(), req.UserID)

	c := NewCorrection(req.UserID, req.Content, req.Source)
	if err := s.storage.Save(c); err != nil {
		httpapi.Error(w, http.StatusInternalServerError, "failed to persist correction: %v", err)
		return
	}

	observe.Logger(ctx).Info("correction submitted", "correction_id", c.ID)

	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"id": c.ID, "status": StatusProcessing})
	// Push the response out before the first blocking gate call starts.
	_ = http.NewResponseController(w).Flush()

	// The request context dies with this handler; the pipeline outlives it
	// on a fresh context that keeps the submitting user for logging.
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.pipeline.Process(observe.WithUser(context.Background(), c.UserID), c)
	}()
}

// ── /learning/status/{id} ────────────────────────────────────────────────────

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	c, err := s.storage.Load(r.PathValue("id"))
	if err != nil {
		httpapi.Error(w, http.StatusInternalServerError, "failed to load correction: %v", err)
		return
	}
	if c == nil {
		httpapi.Error(w, http.StatusNotFound, "correction not found")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, c)
}

// ── /learning/pending ────────────────────────────────────────────────────────

type pendingItem struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Content     string `json:"content"`
	SubmittedAt string `json:"submitted_at"`
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.storage.ListPending()
	if err != nil {
		httpapi.Error(w, http.StatusInternalServerError, "failed to list pending: %v", err)
		return
	}

	items := make([]pendingItem, 0, len(pending))
	for _, c := range pending {
		items = append(items, pendingItem{
			ID:          c.ID,
			UserID:      c.UserID,
			Content:     c.Content,
			SubmittedAt: c.SubmittedAt,
		})
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"count": len(items), "items": items})
}

// ── /learning/review/{id} ────────────────────────────────────────────────────

type reviewRequest struct {
	Action   string `json:"action"`
	CallerID string `json:"caller_id"`
	Reason   string `json:"reason"`
}

type reviewResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	MemoryID string `json:"memory_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.Error(w, http.StatusBadRequest, "%v", err)
		return
	}

	if !slices.Contains(adminReviewers, req.CallerID) {
		httpapi.Error(w, http.StatusForbidden, "unauthorized: only dad or mom can review")
		return
	}

	c, err := s.storage.Load(r.PathValue("id"))
	if err != nil {
		httpapi.Error(w, http.StatusInternalServerError, "failed to load correction: %v", err)
		return
	}
	if c == nil {
		httpapi.Error(w, http.StatusNotFound, "correction not found")
		return
	}
	if c.FinalStatus != StatusPending {
		httpapi.Error(w, http.StatusBadRequest, "correction not pending review (status: %s)", c.FinalStatus)
		return
	}
	if req.Action != "approve" && req.Action != "reject" {
		httpapi.Error(w, http.StatusBadRequest, "action must be 'approve' or 'reject'")
		return
	}
	if req.Action == "reject" && req.Reason == "" {
		httpapi.Error(w, http.StatusBadRequest, "reason required for rejection")
		return
	}

	ctx := observe.WithUser(r.Context(), req.CallerID)
	observe.Logger(ctx).Info("reviewing correction",
		"correction_id", c.ID, "action", req.Action)

	if err := s.storage.RecordGate3Review(c, req.Action, req.CallerID, req.Reason); err != nil {
		httpapi.Error(w, http.StatusInternalServerError, "failed to persist review: %v", err)
		return
	}

	// An approval commits the correction to the LLM sidecar's memory. A
	// failed commit leaves the correction at approved so a later retry
	// remains legal.
	var memoryID string
	if req.Action == "approve" {
		memoryID, err = s.sidecar.MemoryAdd(ctx, c.UserID, c.Content, "learning_correction",
			map[string]any{
				"correction_id": c.ID,
				"submitted_at":  c.SubmittedAt,
			})
		if err != nil {
			observe.Logger(ctx).Error("failed to apply correction to memory",
				"correction_id", c.ID, "err", err)
		} else if err := s.storage.MarkApplied(c, memoryID); err != nil {
			httpapi.Error(w, http.StatusInternalServerError, "failed to persist applied state: %v", err)
			return
		}
	}

	httpapi.WriteJSON(w, http.StatusOK, reviewResponse{
		ID:       c.ID,
		Status:   c.FinalStatus,
		MemoryID: memoryID,
		Reason:   req.Reason,
	})
}

// ── /health ──────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	sidecarStatus := "unreachable"
	if s.sidecar.Reachable(ctx) {
		sidecarStatus = "reachable"
	}

	externalAPI := "not_configured"
	if s.cfg.FactCheck.APIKey() != "" {
		externalAPI = "configured"
	}

	storageStatus := "ok"
	pendingCount := 0
	if n, err := s.storage.PendingCount(); err != nil {
		storageStatus = "error"
	} else {
		pendingCount = n
	}
	if !s.storage.Healthy() {
		storageStatus = "error"
	}

	httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"llm_sidecar":   sidecarStatus,
		"external_api":  externalAPI,
		"pending_count": pendingCount,
		"storage":       storageStatus,
	})
}
