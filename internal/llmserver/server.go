// Package llmserver exposes the LLM sidecar's HTTP surface: chat, memory
// add/search/delete, the classifier debug endpoint, health, and metrics.
package llmserver

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/foyer-ai/foyer/internal/config"
	"github.com/foyer-ai/foyer/internal/httpapi"
	"github.com/foyer-ai/foyer/internal/inference"
	"github.com/foyer-ai/foyer/internal/observe"
	"github.com/foyer-ai/foyer/pkg/memory"
	"github.com/foyer-ai/foyer/pkg/provider/llm"
)

// healthTimeout bounds the runtime and store probes in the health handler.
const healthTimeout = 5 * time.Second

// Server holds the handlers' shared dependencies.
type Server struct {
	cfg     *config.LLMConfig
	engine  *inference.Engine
	store   memory.Store
	metrics *observe.Metrics
}

// New constructs a Server. metrics may be nil in tests.
func New(cfg *config.LLMConfig, engine *inference.Engine, store memory.Store, metrics *observe.Metrics) *Server {
	return &Server{cfg: cfg, engine: engine, store: store, metrics: metrics}
}

// Handler returns the routed HTTP handler, wrapped in the observe middleware
// when metrics are present.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /memory/add", s.handleMemoryAdd)
	mux.HandleFunc("POST /memory/search", s.handleMemorySearch)
	mux.HandleFunc("DELETE /memory/{user_id}/{memory_id}", s.handleMemoryDelete)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /classifier/explain", s.handleClassifierExplain)
	mux.Handle("GET /metrics", promhttp.Handler())

	if s.metrics != nil {
		return observe.Middleware("llmd", s.metrics)(mux)
	}
	return mux
}

// ── /chat ────────────────────────────────────────────────────────────────────

type chatRequest struct {
	UserID              string           `json:"user_id"`
	Message             string           `json:"message"`
	ConversationHistory []inference.Turn `json:"conversation_history"`
}

type chatResponse struct {
	Response     string   `json:"response"`
	ModelUsed    string   `json:"model_used"`
	MemoriesUsed []string `json:"memories_used"`
	UserID       string   `json:"user_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.Error(w, http.StatusBadRequest, "%v", err)
		return
	}
	if !memory.IsKnownUser(req.UserID) {
		httpapi.Error(w, http.StatusBadRequest, "unknown user_id: %q", req.UserID)
		return
	}
	ctx := observe.WithUser(r.Context(), req.UserID)

	result, err := s.engine.Chat(ctx, req.UserID, req.Message, req.ConversationHistory)
	if err != nil {
		// The runtime's own status and body are relayed when available.
		if se := llm.AsStatusError(err); se != nil {
			httpapi.Error(w, http.StatusServiceUnavailable, "inference failed: runtime returned %d: %s", se.StatusCode, se.Body)
			return
		}
		httpapi.Error(w, http.StatusServiceUnavailable, "inference failed: %v", err)
		return
	}

	memories := result.MemoriesUsed
	if memories == nil {
		memories = []string{}
	}
	httpapi.WriteJSON(w, http.StatusOK, chatResponse{
		Response:     result.Response,
		ModelUsed:    result.ModelUsed,
		MemoriesUsed: memories,
		UserID:       result.UserID,
	})
}

// ── /memory/add ──────────────────────────────────────────────────────────────

type memoryAddRequest struct {
	UserID   string         `json:"user_id"`
	Content  string         `json:"content"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleMemoryAdd(w http.ResponseWriter, r *http.Request) {
	var req memoryAddRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.Error(w, http.StatusBadRequest, "%v", err)
		return
	}
	if err := memory.ValidateAddUser(req.UserID); err != nil {
		httpapi.Error(w, http.StatusBadRequest, "unknown user_id: %q", req.UserID)
		return
	}
	if req.Source == "" {
		req.Source = "conversation"
	}
	ctx := observe.WithUser(r.Context(), req.UserID)

	id, err := s.store.Add(ctx, req.UserID, req.Content, req.Source, req.Metadata)
	s.recordMemoryOp(r, "add", err)
	if err != nil {
		httpapi.Error(w, http.StatusInternalServerError, "memory add failed: %v", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "added"})
}

// ── /memory/search ───────────────────────────────────────────────────────────

type memorySearchRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
	TopK   int    `json:"top_k"`
}

type memorySearchResult struct {
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
	Source    string  `json:"source"`
	Timestamp string  `json:"timestamp"`
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	var req memorySearchRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.Error(w, http.StatusBadRequest, "%v", err)
		return
	}
	if !memory.IsKnownUser(req.UserID) {
		httpapi.Error(w, http.StatusBadRequest, "unknown user_id: %q", req.UserID)
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}
	ctx := observe.WithUser(r.Context(), req.UserID)

	results, err := s.store.Search(ctx, req.UserID, req.Query, req.TopK)
	s.recordMemoryOp(r, "search", err)
	if err != nil {
		httpapi.Error(w, http.StatusInternalServerError, "memory search failed: %v", err)
		return
	}

	out := make([]memorySearchResult, 0, len(results))
	for _, res := range results {
		out = append(out, memorySearchResult{
			Content:   res.Content,
			Score:     res.Score,
			Source:    res.Source,
			Timestamp: res.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"results": out})
}

// ── /memory/{user_id}/{memory_id} ────────────────────────────────────────────

type memoryDeleteRequest struct {
	CallerID string `json:"caller_id"`
}

func (s *Server) handleMemoryDelete(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	memoryID := r.PathValue("memory_id")

	var req memoryDeleteRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.Error(w, http.StatusBadRequest, "%v", err)
		return
	}

	caller, ok := s.cfg.UserProfiles[req.CallerID]
	if !ok || caller.Role != config.RoleAdmin {
		httpapi.Error(w, http.StatusForbidden, "caller_id %q is not authorized to delete memories", req.CallerID)
		return
	}
	if !memory.IsKnownUser(userID) {
		httpapi.Error(w, http.StatusBadRequest, "unknown user_id: %q", userID)
		return
	}
	ctx := observe.WithUser(r.Context(), req.CallerID)

	deleted, err := s.store.Delete(ctx, userID, memoryID)
	s.recordMemoryOp(r, "delete", err)
	if err != nil {
		httpapi.Error(w, http.StatusInternalServerError, "memory delete failed: %v", err)
		return
	}
	if !deleted {
		httpapi.Error(w, http.StatusNotFound, "memory %q not found", memoryID)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted", "memory_id": memoryID})
}

// ── /health ──────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	runtimeStatus := "reachable"
	models, err := s.engine.ListRuntimeModels(ctx)
	if err != nil {
		runtimeStatus = "unreachable"
		models = s.engine.ConfiguredModels()
	}

	storeStatus := "ok"
	if !s.store.Healthy(ctx) {
		storeStatus = "error"
	}

	httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"ollama":           runtimeStatus,
		"chromadb":         storeStatus,
		"models_available": models,
	})
}

// ── /classifier/explain ──────────────────────────────────────────────────────

func (s *Server) handleClassifierExplain(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	message := q.Get("message")
	if userID == "" || message == "" {
		httpapi.Error(w, http.StatusBadRequest, "user_id and message query parameters are required")
		return
	}

	model, reason, err := s.engine.Explain(userID, message)
	if err != nil {
		httpapi.Error(w, http.StatusInternalServerError, "classification failed: %v", err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{
		"model_selected": model,
		"reason":         reason,
	})
}

// recordMemoryOp bumps the memory operations counter when metrics are wired.
func (s *Server) recordMemoryOp(r *http.Request, op string, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.MemoryOps.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status),
	))
}
