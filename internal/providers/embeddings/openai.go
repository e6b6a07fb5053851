// Package embeddings provides embedding vector generation for chunks,
// entities, and community summaries via OpenAI-compatible APIs.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lodestone-kg/lodestone/internal/errkind"
	"github.com/lodestone-kg/lodestone/internal/providers"
)

const (
	openaiDefaultBaseURL  = "https://api.openai.com/v1"
	openaiDefaultEmbModel = "text-embedding-3-small"
)

// OpenAIEmbeddingsProvider implements EmbeddingsProvider against any
// OpenAI-compatible embeddings endpoint.
type OpenAIEmbeddingsProvider struct {
	apiKey      string
	baseURL     string
	model       string
	dimensions  int
	httpClient  *http.Client
	rateLimiter *providers.RateLimiter
}

// OpenAIEmbeddingsOption configures the OpenAIEmbeddingsProvider.
type OpenAIEmbeddingsOption func(*OpenAIEmbeddingsProvider)

// WithEmbeddingsModel sets the model to use.
func WithEmbeddingsModel(model string) OpenAIEmbeddingsOption {
	return func(p *OpenAIEmbeddingsProvider) {
		p.model = model
	}
}

// WithEmbeddingsBaseURL sets the API base URL, for OpenAI-compatible
// endpoints such as DashScope or a local gateway.
func WithEmbeddingsBaseURL(baseURL string) OpenAIEmbeddingsOption {
	return func(p *OpenAIEmbeddingsProvider) {
		if baseURL != "" {
			p.baseURL = baseURL
		}
	}
}

// WithEmbeddingsAPIKey sets the API key.
func WithEmbeddingsAPIKey(key string) OpenAIEmbeddingsOption {
	return func(p *OpenAIEmbeddingsProvider) {
		p.apiKey = key
	}
}

// WithEmbeddingsDimensions sets the embedding dimensions.
func WithEmbeddingsDimensions(dims int) OpenAIEmbeddingsOption {
	return func(p *OpenAIEmbeddingsProvider) {
		if dims > 0 {
			p.dimensions = dims
		}
	}
}

// WithEmbeddingsHTTPClient sets the HTTP client to use.
func WithEmbeddingsHTTPClient(client *http.Client) OpenAIEmbeddingsOption {
	return func(p *OpenAIEmbeddingsProvider) {
		p.httpClient = client
	}
}

// NewOpenAIEmbeddingsProvider creates a new OpenAI-compatible embeddings
// provider.
func NewOpenAIEmbeddingsProvider(opts ...OpenAIEmbeddingsOption) *OpenAIEmbeddingsProvider {
	p := &OpenAIEmbeddingsProvider{
		baseURL:    openaiDefaultBaseURL,
		model:      openaiDefaultEmbModel,
		dimensions: 1536,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}

	for _, opt := range opts {
		opt(p)
	}

	p.rateLimiter = providers.NewRateLimiter(p.RateLimit())

	return p
}

// Name returns the provider's unique identifier.
func (p *OpenAIEmbeddingsProvider) Name() string {
	return "openai-embeddings"
}

// Type returns the provider type.
func (p *OpenAIEmbeddingsProvider) Type() providers.ProviderType {
	return providers.ProviderTypeEmbeddings
}

// Available returns true if the provider is configured and ready.
func (p *OpenAIEmbeddingsProvider) Available() bool {
	return p.apiKey != ""
}

// RateLimit returns the rate limit configuration.
func (p *OpenAIEmbeddingsProvider) RateLimit() providers.RateLimitConfig {
	return providers.RateLimitConfig{
		RequestsPerMinute: 500,
		TokensPerMinute:   1000000,
		BurstSize:         50,
	}
}

// ModelName returns the name of the embedding model.
func (p *OpenAIEmbeddingsProvider) ModelName() string {
	return p.model
}

// Dimensions returns the dimensionality of the embedding vectors.
func (p *OpenAIEmbeddingsProvider) Dimensions() int {
	return p.dimensions
}

// EmbedBatch generates embeddings for multiple texts in one API call.
// The result always has one vector per input, in input order.
func (p *OpenAIEmbeddingsProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !p.Available() {
		return nil, errkind.New(errkind.KindInputInvalid,
			fmt.Errorf("openai embeddings provider not available; API key not set"))
	}
	if len(texts) == 0 {
		return nil, nil
	}

	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed; %w", err)
	}

	requestBody := map[string]any{
		"model": p.model,
		"input": texts,
	}

	// dimensions is only honored by models that support truncation
	if p.model == "text-embedding-3-small" || p.model == "text-embedding-3-large" {
		requestBody["dimensions"] = p.dimensions
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request; %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request; %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, errkind.New(errkind.KindExternalTransient,
			fmt.Errorf("API request failed; %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errkind.New(errkind.KindExternalTransient,
			fmt.Errorf("failed to read response; %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errkind.FromStatusCode(resp.StatusCode,
			fmt.Errorf("API error %d: %s", resp.StatusCode, string(body)))
	}

	var apiResp openaiEmbeddingsResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response; %w", err)
	}

	if len(apiResp.Data) != len(texts) {
		return nil, errkind.New(errkind.KindExternalPermanent,
			fmt.Errorf("embedding count mismatch: got %d, want %d", len(apiResp.Data), len(texts)))
	}

	// API may return data out of order; place by index
	vectors := make([][]float32, len(texts))
	for _, d := range apiResp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, errkind.New(errkind.KindExternalPermanent,
				fmt.Errorf("embedding index %d out of range", d.Index))
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vectors[d.Index] = vec
	}

	for i, vec := range vectors {
		if vec == nil {
			return nil, errkind.New(errkind.KindExternalPermanent,
				fmt.Errorf("missing embedding for input %d", i))
		}
	}

	return vectors, nil
}

// openaiEmbeddingsResponse represents the embeddings API response.
type openaiEmbeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}
