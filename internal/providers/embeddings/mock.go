package embeddings

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"errors"
	"math"
	"sync"

	"github.com/lodestone-kg/lodestone/internal/providers"
)

var errMockFailure = errors.New("mock embeddings failure")

// MockEmbeddingsProvider returns deterministic pseudo-random vectors derived
// from each input's hash. The same text always maps to the same unit vector,
// which makes similarity scores stable across test runs.
type MockEmbeddingsProvider struct {
	dimensions int
	failures   int // remaining calls to fail

	mu    sync.Mutex
	Calls int
}

// NewMockEmbeddingsProvider creates a mock provider with the given
// dimensionality.
func NewMockEmbeddingsProvider(dimensions int) *MockEmbeddingsProvider {
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &MockEmbeddingsProvider{dimensions: dimensions}
}

// FailNext makes the next n EmbedBatch calls return an error.
func (p *MockEmbeddingsProvider) FailNext(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = n
}

func (p *MockEmbeddingsProvider) Name() string                 { return "mock-embeddings" }
func (p *MockEmbeddingsProvider) Type() providers.ProviderType { return providers.ProviderTypeEmbeddings }
func (p *MockEmbeddingsProvider) Available() bool              { return true }
func (p *MockEmbeddingsProvider) ModelName() string            { return "mock-embedding-model" }
func (p *MockEmbeddingsProvider) Dimensions() int              { return p.dimensions }

func (p *MockEmbeddingsProvider) RateLimit() providers.RateLimitConfig {
	return providers.RateLimitConfig{RequestsPerMinute: 100000, BurstSize: 1000}
}

// EmbedBatch generates one deterministic vector per input.
func (p *MockEmbeddingsProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.Calls++
	if p.failures > 0 {
		p.failures--
		p.mu.Unlock()
		return nil, errMockFailure
	}
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = DeterministicVector(text, p.dimensions)
	}
	return vectors, nil
}

// DeterministicVector derives a unit vector from the hash of text. Used by
// the mock provider and as the degraded fallback when the real provider is
// persistently unavailable.
func DeterministicVector(text string, dimensions int) []float32 {
	sum := md5.Sum([]byte(text))
	seed := binary.BigEndian.Uint64(sum[:8])

	// xorshift64 keyed by the text hash
	state := seed
	if state == 0 {
		state = 0x9e3779b97f4a7c15
	}
	vec := make([]float32, dimensions)
	var norm float64
	for i := range vec {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		v := float64(int64(state))/float64(math.MaxInt64)*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}
