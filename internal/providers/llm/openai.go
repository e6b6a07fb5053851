// Package llm provides chat-completion access for knowledge extraction,
// entity unification, and community summarization.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/lodestone-kg/lodestone/internal/errkind"
	"github.com/lodestone-kg/lodestone/internal/providers"
)

const openaiDefaultModel = "gpt-4o-mini"

// OpenAIProvider implements LLMProvider against any OpenAI-compatible chat
// completion endpoint. Calls are paced by a minimum inter-call interval and
// retried with backoff on transient failures.
type OpenAIProvider struct {
	client      *openai.Client
	apiKey      string
	model       string
	maxRetries  int
	backoff     time.Duration
	pacer       *rate.Limiter
	rateLimiter *providers.RateLimiter
}

// OpenAIOption configures the OpenAIProvider.
type OpenAIOption func(*OpenAIProvider)

// WithModel sets the model to use.
func WithModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL sets the API base URL for OpenAI-compatible endpoints.
func WithBaseURL(baseURL string) OpenAIOption {
	return func(p *OpenAIProvider) {
		if baseURL != "" {
			cfg := openai.DefaultConfig(p.apiKey)
			cfg.BaseURL = baseURL
			p.client = openai.NewClientWithConfig(cfg)
		}
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.apiKey = key
		p.client = openai.NewClient(key)
	}
}

// WithMaxRetries sets the retry count for transient failures.
func WithMaxRetries(n int) OpenAIOption {
	return func(p *OpenAIProvider) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

// WithCallInterval sets the minimum interval between calls.
func WithCallInterval(interval time.Duration) OpenAIOption {
	return func(p *OpenAIProvider) {
		if interval > 0 {
			p.pacer = rate.NewLimiter(rate.Every(interval), 1)
		}
	}
}

// WithErrorBackoff sets the base delay applied after a failed call.
func WithErrorBackoff(backoff time.Duration) OpenAIOption {
	return func(p *OpenAIProvider) {
		if backoff > 0 {
			p.backoff = backoff
		}
	}
}

// NewOpenAIProvider creates a new OpenAI-compatible chat provider.
func NewOpenAIProvider(opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{
		model:      openaiDefaultModel,
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
		pacer:      rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		p.client = openai.NewClient(p.apiKey)
	}

	p.rateLimiter = providers.NewRateLimiter(p.RateLimit())

	return p
}

// Name returns the provider's unique identifier.
func (p *OpenAIProvider) Name() string {
	return "openai-chat"
}

// Type returns the provider type.
func (p *OpenAIProvider) Type() providers.ProviderType {
	return providers.ProviderTypeLLM
}

// Available returns true if the provider is configured and ready.
func (p *OpenAIProvider) Available() bool {
	return p.apiKey != ""
}

// RateLimit returns the rate limit configuration.
func (p *OpenAIProvider) RateLimit() providers.RateLimitConfig {
	return providers.RateLimitConfig{
		RequestsPerMinute: 60,
		TokensPerMinute:   150000,
		BurstSize:         10,
	}
}

// ModelName returns the model identifier used by this provider.
func (p *OpenAIProvider) ModelName() string {
	return p.model
}

// Complete issues one chat completion, pacing and retrying as configured.
func (p *OpenAIProvider) Complete(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	if !p.Available() {
		return nil, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("openai chat provider not available; API key not set"))
	}

	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed; %w", err)
	}

	apiReq := p.buildRequest(req)

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err := p.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := p.client.CreateChatCompletion(ctx, apiReq)
		if err == nil {
			return p.parseResponse(&resp)
		}
		lastErr = classifyAPIError(err)

		if !errkind.Retryable(lastErr) {
			break
		}

		delay := p.backoff * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("chat completion failed after %d attempts; %w", p.maxRetries+1, lastErr)
}

func (p *OpenAIProvider) buildRequest(req providers.ChatRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		messages = append(messages, msg)
	}

	apiReq := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: messages,
	}
	if req.Temperature > 0 {
		apiReq.Temperature = float32(req.Temperature)
	}
	if req.MaxTokens > 0 {
		apiReq.MaxTokens = req.MaxTokens
	}

	for _, t := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	return apiReq
}

func (p *OpenAIProvider) parseResponse(resp *openai.ChatCompletionResponse) (*providers.ChatResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, errkind.New(errkind.KindExternalPermanent,
			errors.New("no choices in completion response"))
	}

	choice := resp.Choices[0]
	out := &providers.ChatResponse{
		Content:    choice.Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
	}

	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, providers.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return out, nil
}

// classifyAPIError maps SDK errors onto the error taxonomy so the retry
// loop can distinguish transient from permanent failures.
func classifyAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return errkind.FromStatusCode(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return errkind.FromStatusCode(reqErr.HTTPStatusCode, err)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, http.ErrHandlerTimeout) {
		return errkind.New(errkind.KindExternalTransient, err)
	}
	return errkind.New(errkind.KindExternalTransient, err)
}
