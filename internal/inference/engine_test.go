package inference_test

import (
	"context"
	"strings"
	"testing"

	"github.com/foyer-ai/foyer/internal/classify"
	"github.com/foyer-ai/foyer/internal/config"
	"github.com/foyer-ai/foyer/internal/inference"
	memorymock "github.com/foyer-ai/foyer/pkg/memory/mock"
	embmock "github.com/foyer-ai/foyer/pkg/provider/embeddings/mock"
	"github.com/foyer-ai/foyer/pkg/provider/llm"
	llmmock "github.com/foyer-ai/foyer/pkg/provider/llm/mock"
)

func newEngine(t *testing.T, runtime *llmmock.Provider) (*inference.Engine, *memorymock.Store) {
	t.Helper()
	cfg := config.DefaultLLM()
	classifier, err := classify.New(cfg.Classifier, cfg.UserProfiles)
	if err != nil {
		t.Fatalf("classify.New: %v", err)
	}
	store := memorymock.New(embmock.New(384))
	return inference.New(cfg, classifier, store, runtime, nil), store
}

func TestChat_AssemblesSystemHistoryUser(t *testing.T) {
	t.Parallel()
	runtime := &llmmock.Provider{ChatResult: "réponse"}
	engine, _ := newEngine(t, runtime)

	res, err := engine.Chat(context.Background(), "dad", "bonjour", []inference.Turn{
		{Role: "user", Content: "salut"},
		{Role: "assistant", Content: "salut!"},
		{Role: "tool", Content: "should be dropped"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if res.Response != "réponse" {
		t.Errorf("response = %q", res.Response)
	}
	if res.UserID != "dad" {
		t.Errorf("user_id = %q", res.UserID)
	}

	calls := runtime.Calls()
	if len(calls) != 1 {
		t.Fatalf("runtime calls = %d, want 1", len(calls))
	}
	msgs := calls[0].Messages
	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want 4 (system + 2 history + user)", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[1].Role != "user" || msgs[2].Role != "assistant" || msgs[3].Role != "user" {
		t.Errorf("roles = %s %s %s %s", msgs[0].Role, msgs[1].Role, msgs[2].Role, msgs[3].Role)
	}
	if msgs[3].Content != "bonjour" {
		t.Errorf("final user message = %q", msgs[3].Content)
	}
}

func TestChat_InjectsMemoriesIntoSystemPrompt(t *testing.T) {
	t.Parallel()
	runtime := &llmmock.Provider{ChatResult: "ok"}
	engine, store := newEngine(t, runtime)

	ctx := context.Background()
	if _, err := store.Add(ctx, "mom", "Le médecin est le Dr Blanc", "conversation", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}

	res, err := engine.Chat(ctx, "mom", "Le médecin est le Dr Blanc", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(res.MemoriesUsed) == 0 {
		t.Fatal("expected memories to be retrieved")
	}

	system := runtime.Calls()[0].Messages[0].Content
	if !strings.Contains(system, "Relevant context from memory:") {
		t.Errorf("system prompt missing memory block: %q", system)
	}
	if !strings.Contains(system, "- Le médecin est le Dr Blanc") {
		t.Errorf("system prompt missing memory line: %q", system)
	}
}

func TestChat_NoMemoryBlockWhenEmpty(t *testing.T) {
	t.Parallel()
	runtime := &llmmock.Provider{ChatResult: "ok"}
	engine, _ := newEngine(t, runtime)

	if _, err := engine.Chat(context.Background(), "dad", "bonjour", nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	system := runtime.Calls()[0].Messages[0].Content
	if strings.Contains(system, "Relevant context from memory") {
		t.Errorf("unexpected memory block in %q", system)
	}
}

func TestChat_ModelSelectionFollowsClassifier(t *testing.T) {
	t.Parallel()
	runtime := &llmmock.Provider{ChatResult: "ok"}
	engine, _ := newEngine(t, runtime)

	// Conversational keyword → fast model.
	if _, err := engine.Chat(context.Background(), "dad", "bonjour", nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got := runtime.Calls()[0].Model; got != config.DefaultLLM().Ollama.Models.Fast {
		t.Errorf("model = %q, want fast model", got)
	}

	// Complexity keyword → full model.
	if _, err := engine.Chat(context.Background(), "dad", "analyse ce document", nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got := runtime.Calls()[1].Model; got != config.DefaultLLM().Ollama.Models.Full {
		t.Errorf("model = %q, want full model", got)
	}
}

func TestChat_RuntimeFailurePropagates(t *testing.T) {
	t.Parallel()
	runtime := &llmmock.Provider{ChatErr: &llm.StatusError{StatusCode: 500, Body: "runtime exploded"}}
	engine, _ := newEngine(t, runtime)

	_, err := engine.Chat(context.Background(), "dad", "bonjour", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	se := llm.AsStatusError(err)
	if se == nil || se.StatusCode != 500 {
		t.Errorf("err = %v, want wrapped StatusError 500", err)
	}
}

func TestExplain(t *testing.T) {
	t.Parallel()
	engine, _ := newEngine(t, &llmmock.Provider{})
	model, reason, err := engine.Explain("teen", "explique tout en détail s'il te plaît")
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if model != config.DefaultLLM().Ollama.Models.Fast {
		t.Errorf("model = %q, want fast model (teen override)", model)
	}
	if !strings.Contains(reason, "teen") {
		t.Errorf("reason = %q", reason)
	}
}
