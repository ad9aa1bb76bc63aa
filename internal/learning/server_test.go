package learning

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/foyer-ai/foyer/internal/config"
)

// newLearningServer wires a full server over a fake LLM sidecar.
func newLearningServer(t *testing.T, sidecar *fakeLLMSidecar) (*Server, http.Handler, *Storage) {
	t.Helper()
	cfg := config.DefaultLearning()
	cfg.Storage.BasePath = t.TempDir()
	cfg.Notification.Enabled = false
	cfg.FactCheck.APIKeyEnv = "FOYER_TEST_UNSET_KEY"

	storage, err := NewStorage(cfg.Storage.BasePath)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	client := sidecar.client()
	gates := NewGates(client, cfg.Gates.PersonalInfoKeywords, nil)
	pipeline := NewPipeline(storage, gates, NewNotifier(cfg.Notification), cfg.Gates.Gate2AConfidenceThreshold, nil)
	srv := NewServer(cfg, storage, pipeline, client, nil)
	return srv, srv.Handler(), storage
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmit_ReturnsProcessingThenReachesPending(t *testing.T) {
	t.Parallel()
	sidecar := newFakeLLMSidecar(t, `{"verdict": "pass", "reason": "ok"}`)
	srv, h, storage := newLearningServer(t, sidecar)

	rec := doJSON(t, h, http.MethodPost, "/learning/submit", map[string]string{
		"user_id": "mom", "content": "Ma fille s'appelle Alice",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Status != StatusProcessing || resp.ID == "" {
		t.Fatalf("resp = %+v", resp)
	}

	// The pipeline runs after the response; drain it.
	srv.Wait()

	c, err := storage.Load(resp.ID)
	if err != nil || c == nil {
		t.Fatalf("Load: %v / %v", c, err)
	}
	if c.FinalStatus != StatusPending {
		t.Errorf("final status = %s, want pending", c.FinalStatus)
	}
	if !c.PersonalInfo {
		t.Error("personal_info should be set")
	}
}

func TestSubmit_RequiresUserAndContent(t *testing.T) {
	t.Parallel()
	sidecar := newFakeLLMSidecar(t)
	_, h, _ := newLearningServer(t, sidecar)

	rec := doJSON(t, h, http.MethodPost, "/learning/submit", map[string]string{"user_id": "dad"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStatus_NotFound(t *testing.T) {
	t.Parallel()
	sidecar := newFakeLLMSidecar(t)
	_, h, _ := newLearningServer(t, sidecar)

	rec := doJSON(t, h, http.MethodGet, "/learning/status/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestReview_ApproveAppliesToMemory(t *testing.T) {
	t.Parallel()
	sidecar := newFakeLLMSidecar(t)
	_, h, storage := newLearningServer(t, sidecar)

	c := NewCorrection("mom", "Ma fille s'appelle Alice", "")
	if err := storage.RecordGate3Pending(c); err != nil {
		t.Fatalf("RecordGate3Pending: %v", err)
	}

	rec := doJSON(t, h, http.MethodPost, "/learning/review/"+c.ID, map[string]string{
		"action": "approve", "caller_id": "dad",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp reviewResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Status != StatusApplied || resp.MemoryID != "mem-fixed-id" {
		t.Errorf("resp = %+v", resp)
	}

	got, _ := storage.Load(c.ID)
	if got.FinalStatus != StatusApplied || got.MemoryID != "mem-fixed-id" || got.AppliedAt == "" {
		t.Errorf("stored = %+v", got)
	}
	if _, adds := sidecar.calls(); adds != 1 {
		t.Errorf("memory adds = %d, want 1", adds)
	}
}

func TestReview_FailedCommitLeavesApproved(t *testing.T) {
	t.Parallel()
	sidecar := newFakeLLMSidecar(t)
	sidecar.memoryAddFail = true
	_, h, storage := newLearningServer(t, sidecar)

	c := NewCorrection("dad", "un fait", "")
	storage.RecordGate3Pending(c)

	rec := doJSON(t, h, http.MethodPost, "/learning/review/"+c.ID, map[string]string{
		"action": "approve", "caller_id": "mom",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp reviewResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Status != StatusApproved || resp.MemoryID != "" {
		t.Errorf("resp = %+v", resp)
	}

	got, _ := storage.Load(c.ID)
	if got.FinalStatus != StatusApproved {
		t.Errorf("stored status = %s, want approved for later retry", got.FinalStatus)
	}
}

func TestReview_RejectRequiresReason(t *testing.T) {
	t.Parallel()
	sidecar := newFakeLLMSidecar(t)
	_, h, storage := newLearningServer(t, sidecar)

	c := NewCorrection("teen", "x", "")
	storage.RecordGate3Pending(c)

	rec := doJSON(t, h, http.MethodPost, "/learning/review/"+c.ID, map[string]string{
		"action": "reject", "caller_id": "dad",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/learning/review/"+c.ID, map[string]string{
		"action": "reject", "caller_id": "dad", "reason": "faux",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got, _ := storage.Load(c.ID)
	if got.FinalStatus != StatusRejectedGate3 || got.Gate3.RejectReason != "faux" {
		t.Errorf("stored = %+v / %+v", got.FinalStatus, got.Gate3)
	}
}

func TestReview_NonAdminForbidden(t *testing.T) {
	t.Parallel()
	sidecar := newFakeLLMSidecar(t)
	_, h, storage := newLearningServer(t, sidecar)

	c := NewCorrection("child", "x", "")
	storage.RecordGate3Pending(c)

	for _, caller := range []string{"teen", "child", "stranger"} {
		rec := doJSON(t, h, http.MethodPost, "/learning/review/"+c.ID, map[string]string{
			"action": "approve", "caller_id": caller,
		})
		if rec.Code != http.StatusForbidden {
			t.Errorf("caller %s: status = %d, want 403", caller, rec.Code)
		}
	}
}

func TestReview_SecondReviewIs400(t *testing.T) {
	t.Parallel()
	sidecar := newFakeLLMSidecar(t)
	_, h, storage := newLearningServer(t, sidecar)

	c := NewCorrection("mom", "x", "")
	storage.RecordGate3Pending(c)

	rec := doJSON(t, h, http.MethodPost, "/learning/review/"+c.ID, map[string]string{
		"action": "approve", "caller_id": "dad",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("first review status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/learning/review/"+c.ID, map[string]string{
		"action": "approve", "caller_id": "dad",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("second review status = %d, want 400", rec.Code)
	}
}

func TestPendingList(t *testing.T) {
	t.Parallel()
	sidecar := newFakeLLMSidecar(t)
	_, h, storage := newLearningServer(t, sidecar)

	first := NewCorrection("dad", "premier", "")
	first.SubmittedAt = time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	storage.RecordGate3Pending(first)
	second := NewCorrection("mom", "second", "")
	storage.RecordGate3Pending(second)

	rec := doJSON(t, h, http.MethodGet, "/learning/pending", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Count int           `json:"count"`
		Items []pendingItem `json:"items"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Count != 2 || len(resp.Items) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Items[0].Content != "premier" {
		t.Errorf("items not sorted by submitted_at: %+v", resp.Items)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	sidecar := newFakeLLMSidecar(t)
	_, h, _ := newLearningServer(t, sidecar)

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var health struct {
		Status       string `json:"status"`
		LLMSidecar   string `json:"llm_sidecar"`
		ExternalAPI  string `json:"external_api"`
		PendingCount int    `json:"pending_count"`
		Storage      string `json:"storage"`
	}
	json.Unmarshal(rec.Body.Bytes(), &health)
	if health.LLMSidecar != "reachable" {
		t.Errorf("llm_sidecar = %q", health.LLMSidecar)
	}
	if health.ExternalAPI != "not_configured" {
		t.Errorf("external_api = %q", health.ExternalAPI)
	}
	if health.Storage != "ok" {
		t.Errorf("storage = %q", health.Storage)
	}
}
