package unify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lodestone-kg/lodestone/internal/config"
	"github.com/lodestone-kg/lodestone/internal/graphstore"
	"github.com/lodestone-kg/lodestone/internal/model"
	"github.com/lodestone-kg/lodestone/internal/providers/embeddings"
)

// Sampler gathers candidate entities from the existing graph for a batch of
// newly extracted entities, according to the unification mode.
type Sampler struct {
	store      graphstore.Store
	embedder   *embeddings.Service
	sampleSize int
	prescreen  float64
	timeout    time.Duration
	logger     *slog.Logger
}

// NewSampler creates a graph sampler.
func NewSampler(store graphstore.Store, embedder *embeddings.Service, cfg config.UnificationConfig, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	sampleSize := cfg.SampleSize
	if sampleSize <= 0 {
		sampleSize = 50
	}
	timeout := time.Duration(cfg.SampleTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Sampler{
		store:      store,
		embedder:   embedder,
		sampleSize: sampleSize,
		prescreen:  cfg.PrescreenThreshold,
		timeout:    timeout,
		logger:     logger,
	}
}

// Gather returns new entities plus graph-sampled candidates, deduplicated
// by id. Sampling failures degrade to new-entities-only: unification then
// only deduplicates within the document, which is safe.
func (s *Sampler) Gather(ctx context.Context, mode Mode, newEntities []*model.Entity) []Candidate {
	candidates := make([]Candidate, 0, len(newEntities))
	seen := make(map[string]bool, len(newEntities))
	for _, e := range newEntities {
		candidates = append(candidates, Candidate{Entity: e})
		seen[e.ID] = true
		seen[e.NodeID()] = true
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sampled, err := s.sample(ctx, mode, newEntities)
	if err != nil {
		s.logger.Warn("graph sampling failed, unifying within document only",
			"mode", string(mode), "error", err)
		return candidates
	}

	for _, e := range sampled {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		candidates = append(candidates, Candidate{Entity: e, FromGraph: true})
	}
	return candidates
}

func (s *Sampler) sample(ctx context.Context, mode Mode, newEntities []*model.Entity) ([]*model.Entity, error) {
	switch mode {
	case ModeIncremental:
		return s.sampleIncremental(ctx, newEntities)
	case ModeSampling:
		return s.sampleByType(ctx, newEntities)
	case ModeGlobalSemantic:
		return s.sampleSemantic(ctx, newEntities, s.sampleSize)
	default:
		return nil, fmt.Errorf("unknown unification mode %q", mode)
	}
}

// sampleIncremental combines per-type samples with vector neighbors of each
// new entity.
func (s *Sampler) sampleIncremental(ctx context.Context, newEntities []*model.Entity) ([]*model.Entity, error) {
	byType, err := s.sampleByType(ctx, newEntities)
	if err != nil {
		return nil, err
	}
	neighbors, err := s.sampleSemantic(ctx, newEntities, 10)
	if err != nil {
		return byType, nil
	}
	return append(byType, neighbors...), nil
}

// sampleByType pulls a bounded sample of each type present in the input.
func (s *Sampler) sampleByType(ctx context.Context, newEntities []*model.Entity) ([]*model.Entity, error) {
	types := make(map[string]bool)
	for _, e := range newEntities {
		types[e.Type] = true
	}

	var sampled []*model.Entity
	for t := range types {
		entities, err := s.store.SampleEntitiesByType(ctx, t, s.sampleSize)
		if err != nil {
			return nil, err
		}
		sampled = append(sampled, entities...)
	}
	return sampled, nil
}

// sampleSemantic finds vector neighbors of each new entity above the
// prescreen threshold.
func (s *Sampler) sampleSemantic(ctx context.Context, newEntities []*model.Entity, k int) ([]*model.Entity, error) {
	var missing []int
	var texts []string
	for i, e := range newEntities {
		if len(e.Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, e.EmbeddingText())
		}
	}
	if len(missing) > 0 {
		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		for j, idx := range missing {
			newEntities[idx].Embedding = vectors[j]
		}
	}

	var sampled []*model.Entity
	for _, e := range newEntities {
		neighbors, err := s.store.VectorSearchEntities(ctx, e.Embedding, k, s.prescreen)
		if err != nil {
			return nil, err
		}
		sampled = append(sampled, neighbors...)
	}
	return sampled, nil
}
