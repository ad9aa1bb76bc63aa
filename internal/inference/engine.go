// Package inference composes the classifier, the memory store, and the chat
// runtime into the single chat operation of the LLM sidecar.
//
// The pipeline per request: classify the query to pick the fast or full
// model, retrieve relevant memories for the user, assemble the message list
// (system prompt + memory block + history + user message), and call the
// runtime's non-streaming chat endpoint.
package inference

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/foyer-ai/foyer/internal/classify"
	"github.com/foyer-ai/foyer/internal/config"
	"github.com/foyer-ai/foyer/internal/observe"
	"github.com/foyer-ai/foyer/pkg/memory"
	"github.com/foyer-ai/foyer/pkg/provider/llm"
)

// defaultSystemPrompt is used when a user has no configured profile.
const defaultSystemPrompt = "You are a helpful assistant."

// Turn is one prior exchange in the conversation history. Only "user" and
// "assistant" roles are forwarded to the runtime; anything else is dropped.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result is the outcome of one chat pipeline run.
type Result struct {
	// Response is the assistant message content from the runtime.
	Response string

	// ModelUsed is the resolved runtime model name.
	ModelUsed string

	// MemoriesUsed lists the retrieved memory contents injected into the
	// prompt, most relevant first.
	MemoriesUsed []string

	// UserID echoes the requesting user.
	UserID string
}

// Engine drives the chat pipeline. It owns no connections itself — the
// runtime provider holds the long-lived HTTP client — and is safe for
// concurrent use.
type Engine struct {
	cfg        *config.LLMConfig
	classifier classify.Classifier
	store      memory.Store
	runtime    llm.Provider
	metrics    *observe.Metrics
}

// New constructs an Engine. metrics may be nil (e.g., in tests).
func New(cfg *config.LLMConfig, classifier classify.Classifier, store memory.Store, runtime llm.Provider, metrics *observe.Metrics) *Engine {
	return &Engine{
		cfg:        cfg,
		classifier: classifier,
		store:      store,
		runtime:    runtime,
		metrics:    metrics,
	}
}

// Chat runs the full pipeline for one user message.
//
// Memory retrieval failures degrade to an empty memory list rather than
// failing the chat; runtime failures are returned unwrapped enough for the
// HTTP boundary to recover the runtime's status and body via
// [llm.AsStatusError].
func (e *Engine) Chat(ctx context.Context, userID, message string, history []Turn) (*Result, error) {
	// 1. Classify and resolve the model name.
	decision := e.classifier.Classify(userID, message)
	model, err := e.ResolveModel(decision.ModelKey)
	if err != nil {
		return nil, err
	}

	// 2. Retrieve memories (own collection + shared).
	var memoriesUsed []string
	results, err := e.store.Search(ctx, userID, message, e.cfg.Memory.ChatTopK)
	if err != nil {
		observe.Logger(ctx).Warn("memory retrieval failed, continuing without context",
			"user_id", userID, "err", err)
	} else {
		for _, r := range results {
			memoriesUsed = append(memoriesUsed, r.Content)
		}
	}

	// 3. Assemble the message list.
	messages := e.buildMessages(userID, message, memoriesUsed, history)

	// 4. Call the runtime.
	start := time.Now()
	response, err := e.runtime.Chat(ctx, llm.ChatRequest{Model: model, Messages: messages})
	if e.metrics != nil {
		e.metrics.ChatDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("model", model)))
	}
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	return &Result{
		Response:     response,
		ModelUsed:    model,
		MemoriesUsed: memoriesUsed,
		UserID:       userID,
	}, nil
}

// Explain returns the resolved model name and classification reason for a
// query without touching the runtime or the memory store.
func (e *Engine) Explain(userID, message string) (model string, reason string, err error) {
	decision := e.classifier.Classify(userID, message)
	model, err = e.ResolveModel(decision.ModelKey)
	if err != nil {
		return "", "", err
	}
	return model, decision.Reason, nil
}

// ResolveModel converts a fast/full key to the configured runtime model name.
func (e *Engine) ResolveModel(key classify.ModelKey) (string, error) {
	switch key {
	case classify.ModelFast:
		return e.cfg.Ollama.Models.Fast, nil
	case classify.ModelFull:
		return e.cfg.Ollama.Models.Full, nil
	default:
		return "", fmt.Errorf("inference: unknown model key %q", key)
	}
}

// ConfiguredModels returns the two model names from config, used by the
// health endpoint when the runtime cannot be reached.
func (e *Engine) ConfiguredModels() []string {
	return []string{e.cfg.Ollama.Models.Fast, e.cfg.Ollama.Models.Full}
}

// ListRuntimeModels proxies the runtime's model listing.
func (e *Engine) ListRuntimeModels(ctx context.Context) ([]string, error) {
	return e.runtime.ListModels(ctx)
}

// buildMessages assembles [system, …history, user]. When memories are
// present, a "Relevant context from memory:" block is appended to the system
// prompt with each memory on its own "- " line.
func (e *Engine) buildMessages(userID, userMessage string, memories []string, history []Turn) []llm.Message {
	systemPrompt := defaultSystemPrompt
	if profile, ok := e.cfg.UserProfiles[userID]; ok && profile.SystemPrompt != "" {
		systemPrompt = profile.SystemPrompt
	}

	if len(memories) > 0 {
		var b strings.Builder
		b.WriteString(systemPrompt)
		b.WriteString("\n\nRelevant context from memory:\n")
		for i, m := range memories {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString("- ")
			b.WriteString(m)
		}
		systemPrompt = b.String()
	}

	messages := []llm.Message{{Role: "system", Content: systemPrompt}}
	for _, turn := range history {
		if turn.Role == "user" || turn.Role == "assistant" {
			messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
		}
	}
	return append(messages, llm.Message{Role: "user", Content: userMessage})
}
