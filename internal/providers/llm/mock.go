package llm

import (
	"context"
	"errors"
	"sync"

	"github.com/lodestone-kg/lodestone/internal/providers"
)

// MockProvider replays a scripted sequence of responses. Each Complete call
// consumes the next response in order; when the script is exhausted the
// final response repeats.
type MockProvider struct {
	mu        sync.Mutex
	responses []*providers.ChatResponse
	errs      []error
	idx       int

	// Requests records every request for assertion in tests.
	Requests []providers.ChatRequest
}

// NewMockProvider creates a mock with the given scripted responses.
func NewMockProvider(responses ...*providers.ChatResponse) *MockProvider {
	return &MockProvider{responses: responses}
}

// Script replaces the remaining responses.
func (p *MockProvider) Script(responses ...*providers.ChatResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = responses
	p.errs = nil
	p.idx = 0
}

// ScriptError inserts an error at the next call position.
func (p *MockProvider) ScriptError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, err)
}

func (p *MockProvider) Name() string                 { return "mock-llm" }
func (p *MockProvider) Type() providers.ProviderType { return providers.ProviderTypeLLM }
func (p *MockProvider) Available() bool              { return true }
func (p *MockProvider) ModelName() string            { return "mock-chat-model" }

func (p *MockProvider) RateLimit() providers.RateLimitConfig {
	return providers.RateLimitConfig{RequestsPerMinute: 100000, BurstSize: 1000}
}

// Complete returns the next scripted response or error.
func (p *MockProvider) Complete(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.Requests = append(p.Requests, req)

	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return nil, err
	}

	if len(p.responses) == 0 {
		return nil, errors.New("mock llm has no scripted responses")
	}

	resp := p.responses[p.idx]
	if p.idx < len(p.responses)-1 {
		p.idx++
	}
	return resp, nil
}

// TextResponse builds a content-only response, for scripting convenience.
func TextResponse(content string) *providers.ChatResponse {
	return &providers.ChatResponse{Content: content}
}
