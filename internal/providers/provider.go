// Package providers defines the external AI provider contracts used by the
// ingestion core: batched embeddings and chat completions with tool calls.
package providers

import (
	"context"
)

// ProviderType represents the type of provider.
type ProviderType string

const (
	ProviderTypeLLM        ProviderType = "llm"
	ProviderTypeEmbeddings ProviderType = "embeddings"
)

// Provider is the base interface for all providers.
type Provider interface {
	// Name returns the provider's unique identifier.
	Name() string

	// Type returns the provider type.
	Type() ProviderType

	// Available returns true if the provider is configured and ready.
	Available() bool

	// RateLimit returns the rate limit configuration for this provider.
	RateLimit() RateLimitConfig
}

// RateLimitConfig defines rate limiting parameters for a provider.
type RateLimitConfig struct {
	RequestsPerMinute int
	TokensPerMinute   int
	BurstSize         int
}

// Role constants for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single chat message in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant messages that request tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name is the tool name on tool-role messages.
	Name string `json:"name,omitempty"`
}

// ToolCall is a model-emitted request to execute a tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON
}

// ToolDefinition describes a tool exposed to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON schema
}

// ChatRequest is a completion request.
type ChatRequest struct {
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
	MaxTokens   int
}

// ChatResponse is the provider's answer: either final content or a
// non-empty list of tool calls the caller must execute before re-invoking.
type ChatResponse struct {
	Content    string
	ToolCalls  []ToolCall
	TokensUsed int
}

// LLMProvider issues chat completions, optionally with tool schemas.
type LLMProvider interface {
	Provider

	// Complete issues one completion call. When Tools is provided and the
	// model emits tool calls, ToolCalls in the response is non-empty and
	// the caller is responsible for executing them and appending
	// tool-role messages before re-invocation.
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ModelName returns the model identifier used by this provider.
	ModelName() string
}

// EmbeddingsProvider generates vector embeddings from content.
type EmbeddingsProvider interface {
	Provider

	// EmbedBatch generates embeddings for multiple texts in one call.
	// The result has exactly one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName returns the name of the embedding model.
	ModelName() string

	// Dimensions returns the dimensionality of the embedding vectors.
	Dimensions() int
}
