package learning

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/foyer-ai/foyer/internal/config"
)

// fakeLLMSidecar emulates the LLM sidecar for gate and pipeline tests.
// Chat responses are served from a FIFO queue; /memory/add hands out ids.
type fakeLLMSidecar struct {
	mu            sync.Mutex
	chatResponses []string
	chatCalls     int
	memoryAdds    int
	memoryAddFail bool
	srv           *httptest.Server
}

func newFakeLLMSidecar(t *testing.T, chatResponses ...string) *fakeLLMSidecar {
	t.Helper()
	f := &fakeLLMSidecar{chatResponses: chatResponses}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.chatResponses) == 0 {
			http.Error(w, "no canned response", http.StatusInternalServerError)
			return
		}
		resp := f.chatResponses[0]
		f.chatResponses = f.chatResponses[1:]
		f.chatCalls++
		json.NewEncoder(w).Encode(map[string]string{"response": resp})
	})
	mux.HandleFunc("POST /memory/add", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.memoryAddFail {
			http.Error(w, "store down", http.StatusInternalServerError)
			return
		}
		f.memoryAdds++
		json.NewEncoder(w).Encode(map[string]string{"id": "mem-fixed-id", "status": "added"})
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeLLMSidecar) client() *SidecarClient {
	return NewSidecarClient(config.LLMSidecarConfig{
		BaseURL:        f.srv.URL,
		TimeoutSeconds: 5,
		GateUserID:     "dad",
	})
}

func (f *fakeLLMSidecar) calls() (chat, adds int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatCalls, f.memoryAdds
}

// fakeVendor emulates the external fact-check vendor's chat-completions API.
type fakeVendor struct {
	mu       sync.Mutex
	response string
	fail     bool
	calls    int
	srv      *httptest.Server
}

func newFakeVendor(t *testing.T, response string) *fakeVendor {
	t.Helper()
	f := &fakeVendor{response: response}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls++
		fail := f.fail
		resp := f.response
		f.mu.Unlock()
		if fail {
			http.Error(w, "vendor outage", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":   0,
				"message": map[string]any{"role": "assistant", "content": resp},
			}},
		})
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeVendor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// vendorClient builds a VendorClient pointed at the fake. The API key comes
// from a test-scoped env var, so callers must not use t.Parallel.
func (f *fakeVendor) vendorClient(t *testing.T) *VendorClient {
	t.Helper()
	t.Setenv("FOYER_TEST_FACTCHECK_KEY", "test-key")
	vc := NewVendorClient(config.FactCheckConfig{
		APIKeyEnv:      "FOYER_TEST_FACTCHECK_KEY",
		Model:          "gpt-4o-mini",
		MaxTokens:      256,
		TimeoutSeconds: 5,
		BaseURL:        f.srv.URL,
	})
	if vc == nil {
		t.Fatal("vendor client should be configured")
	}
	return vc
}

// defaultKeywords mirrors the shipped personal-info keyword defaults.
func defaultKeywords() []string {
	return config.DefaultLearning().Gates.PersonalInfoKeywords
}
