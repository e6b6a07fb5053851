package embeddings

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lodestone-kg/lodestone/internal/cache"
	"github.com/lodestone-kg/lodestone/internal/errkind"
	"github.com/lodestone-kg/lodestone/internal/providers"
)

const (
	defaultBatchSize  = 50
	defaultMaxRetries = 3
	retryBaseDelay    = 500 * time.Millisecond
)

// Service wraps an EmbeddingsProvider with batching, a bounded cache, retry
// with exponential backoff, and a deterministic degraded fallback so that
// ingestion never stalls on a persistently failing embedding backend.
type Service struct {
	provider   providers.EmbeddingsProvider
	cache      *cache.EmbeddingCache
	batchSize  int
	maxRetries int
	logger     *slog.Logger
}

// ServiceOption configures the embedding service.
type ServiceOption func(*Service)

// WithBatchSize sets the maximum number of texts per provider call.
func WithBatchSize(size int) ServiceOption {
	return func(s *Service) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithCacheSize sets the capacity of the embedding cache.
func WithCacheSize(size int) ServiceOption {
	return func(s *Service) {
		s.cache = cache.NewEmbeddingCache(size)
	}
}

// WithMaxRetries sets the retry count for transient provider failures.
func WithMaxRetries(n int) ServiceOption {
	return func(s *Service) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates an embedding service around the given provider.
func NewService(provider providers.EmbeddingsProvider, opts ...ServiceOption) *Service {
	s := &Service{
		provider:   provider,
		cache:      cache.NewEmbeddingCache(1024),
		batchSize:  defaultBatchSize,
		maxRetries: defaultMaxRetries,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Dimensions returns the dimensionality of generated vectors.
func (s *Service) Dimensions() int {
	return s.provider.Dimensions()
}

// Embed generates one embedding per input text, in input order. Cached texts
// are served without a provider call; the remainder is batched. When the
// provider fails permanently or exhausts retries, each missing vector is
// replaced by a deterministic hash-derived unit vector and the degradation
// is logged, so downstream similarity stays stable rather than crashing.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))

	// Serve what we can from cache
	var missing []int
	for i, text := range texts {
		if vec, ok := s.cache.Get(text); ok {
			results[i] = vec
			continue
		}
		missing = append(missing, i)
	}

	for start := 0; start < len(missing); start += s.batchSize {
		end := start + s.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		batchTexts := make([]string, len(batch))
		for j, idx := range batch {
			batchTexts[j] = texts[idx]
		}

		vectors, err := s.embedWithRetry(ctx, batchTexts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("embedding provider unavailable, using degraded fallback vectors",
				"provider", s.provider.Name(),
				"batch_size", len(batchTexts),
				"error", err,
			)
			vectors = make([][]float32, len(batchTexts))
			for j, text := range batchTexts {
				vectors[j] = DeterministicVector(text, s.provider.Dimensions())
			}
			// Fallback vectors are not cached; a recovered provider
			// should replace them on the next request.
			for j, idx := range batch {
				results[idx] = vectors[j]
			}
			continue
		}

		for j, idx := range batch {
			results[idx] = vectors[j]
			s.cache.Put(texts[idx], vectors[j])
		}
	}

	return results, nil
}

// EmbedOne is a convenience wrapper for a single text.
func (s *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (s *Service) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		vectors, err := s.provider.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if !errkind.Retryable(err) {
			break
		}
	}
	return nil, fmt.Errorf("embed batch of %d failed; %w", len(texts), lastErr)
}
