// Package mock provides a test double for the llm.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/foyer-ai/foyer/pkg/provider/llm"
)

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// ChatResult is returned by Chat when ChatFunc is nil.
	ChatResult string

	// ChatErr, if non-nil, is returned as the error from Chat.
	ChatErr error

	// ChatFunc, if non-nil, computes the Chat response per call.
	ChatFunc func(req llm.ChatRequest) (string, error)

	// Models is returned by ListModels.
	Models []string

	// ListModelsErr, if non-nil, is returned as the error from ListModels.
	ListModelsErr error

	// ChatCalls records every request passed to Chat, in order.
	ChatCalls []llm.ChatRequest
}

// Chat records the call and returns the configured response.
func (p *Provider) Chat(_ context.Context, req llm.ChatRequest) (string, error) {
	p.mu.Lock()
	p.ChatCalls = append(p.ChatCalls, req)
	fn := p.ChatFunc
	res, err := p.ChatResult, p.ChatErr
	p.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return res, err
}

// ListModels returns the configured model list.
func (p *Provider) ListModels(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Models, p.ListModelsErr
}

// Calls returns a snapshot of recorded Chat requests.
func (p *Provider) Calls() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.ChatRequest, len(p.ChatCalls))
	copy(out, p.ChatCalls)
	return out
}
