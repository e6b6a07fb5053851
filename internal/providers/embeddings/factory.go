package embeddings

import (
	"net/http"
	"time"

	"github.com/lodestone-kg/lodestone/internal/config"
	"github.com/lodestone-kg/lodestone/internal/providers"
)

// FromConfig builds the embeddings provider selected by configuration. The
// mock provider yields deterministic vectors for offline operation and tests.
func FromConfig(cfg config.EmbeddingsConfig) providers.EmbeddingsProvider {
	if cfg.Provider == "mock" {
		dims := cfg.Dimensions
		if dims <= 0 {
			dims = 1536
		}
		return NewMockEmbeddingsProvider(dims)
	}

	opts := []OpenAIEmbeddingsOption{
		WithEmbeddingsAPIKey(cfg.ResolveAPIKey()),
		WithEmbeddingsBaseURL(cfg.BaseURL),
		WithEmbeddingsDimensions(cfg.Dimensions),
	}
	if cfg.Model != "" {
		opts = append(opts, WithEmbeddingsModel(cfg.Model))
	}
	if cfg.TimeoutSeconds > 0 {
		opts = append(opts, WithEmbeddingsHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		}))
	}
	return NewOpenAIEmbeddingsProvider(opts...)
}
