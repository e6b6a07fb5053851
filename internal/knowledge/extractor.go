// Package knowledge extracts entities and relations from chunks using an
// LLM, with a pattern-based fallback when the model is unavailable or
// returns unusable output.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lodestone-kg/lodestone/internal/config"
	"github.com/lodestone-kg/lodestone/internal/errkind"
	"github.com/lodestone-kg/lodestone/internal/model"
	"github.com/lodestone-kg/lodestone/internal/providers"
)

// ExtractionResult holds what was pulled from one chunk.
type ExtractionResult struct {
	ChunkID   string
	Entities  []*model.Entity
	Relations []*model.Relation

	// Fallback is true when pattern extraction produced the result
	// because the LLM returned unusable output.
	Fallback bool

	// Skipped is true when the provider stayed unreachable through every
	// retry; the chunk contributes nothing and the pipeline moves on.
	Skipped bool
}

// Extractor turns chunk text into entities and relations.
type Extractor struct {
	llm           providers.LLMProvider
	entityTypes   []string
	relationTypes []string
	minEntityConf float64
	minRelConf    float64
	maxRetries    int
	callInterval  time.Duration
	logger        *slog.Logger
}

// ExtractorOption configures the extractor.
type ExtractorOption func(*Extractor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// NewExtractor creates an extractor using the given LLM provider and
// extraction configuration.
func NewExtractor(llm providers.LLMProvider, cfg config.ExtractionConfig, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		llm:           llm,
		entityTypes:   cfg.EntityTypes,
		relationTypes: cfg.RelationTypes,
		minEntityConf: cfg.MinEntityConfidence,
		minRelConf:    cfg.MinRelationConfidence,
		maxRetries:    cfg.MaxRetries,
		callInterval:  time.Duration(cfg.CallIntervalMs) * time.Millisecond,
		logger:        slog.Default(),
	}
	if len(e.entityTypes) == 0 {
		e.entityTypes = config.DefaultEntityTypes
	}
	if len(e.relationTypes) == 0 {
		e.relationTypes = config.DefaultRelationTypes
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Extract pulls entities and relations from one chunk. Transient provider
// failures are retried with exponential backoff; once retries are exhausted
// the chunk is skipped with a warning. Unusable model output goes to the
// pattern fallback instead, since the provider itself is still answering.
func (e *Extractor) Extract(ctx context.Context, chunk *model.Chunk) (*ExtractionResult, error) {
	req := providers.ChatRequest{
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: extractionSystemPrompt},
			{Role: providers.RoleUser, Content: buildExtractionPrompt(chunk.Content, e.entityTypes, e.relationTypes)},
		},
		Temperature: 0.1,
	}

	var lastErr error
	parseFailed := false
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.callInterval * time.Duration(1<<(attempt-1))):
			}
		}

		resp, err := e.llm.Complete(ctx, req)
		if err != nil {
			lastErr = err
			parseFailed = false
			if !errkind.Retryable(err) {
				break
			}
			continue
		}

		raw, err := parseExtractionJSON(resp.Content)
		if err != nil {
			lastErr = fmt.Errorf("unparseable extraction output; %w", err)
			parseFailed = true
			continue
		}

		result := e.validate(chunk, raw)
		return result, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if parseFailed {
		e.logger.Warn("llm output unusable, using pattern fallback",
			"chunk_id", chunk.ID,
			"error", lastErr,
		)
		return e.fallbackExtract(chunk), nil
	}

	e.logger.Warn("llm provider unavailable, skipping chunk",
		"chunk_id", chunk.ID,
		"error", lastErr,
	)
	return &ExtractionResult{ChunkID: chunk.ID, Skipped: true}, nil
}

// validate filters raw output against the closed type sets and confidence
// floors, remaps unknown types, drops relations whose endpoints were not
// extracted, and assigns deterministic per-chunk IDs.
func (e *Extractor) validate(chunk *model.Chunk, raw *rawExtraction) *ExtractionResult {
	result := &ExtractionResult{ChunkID: chunk.ID}

	byName := make(map[string]*model.Entity)
	for _, re := range raw.Entities {
		name := strings.TrimSpace(re.Name)
		if n := utf8.RuneCountInString(name); n < 2 || n > 100 {
			continue
		}
		if re.Confidence < e.minEntityConf {
			continue
		}
		if _, dup := byName[strings.ToLower(name)]; dup {
			continue
		}

		entity := &model.Entity{
			ID:          model.ExtractedEntityID(chunk.ID, len(result.Entities)),
			Name:        name,
			Type:        e.remapEntityType(re.Type),
			Description: strings.TrimSpace(re.Description),
			Confidence:  clamp01(re.Confidence),
			DocumentID:  chunk.DocumentID,
			ChunkIDs:    []string{chunk.ID},
			CreatedAt:   time.Now(),
		}
		locateMention(entity, chunk)

		byName[strings.ToLower(name)] = entity
		result.Entities = append(result.Entities, entity)
	}

	seen := make(map[string]bool)
	for _, rr := range raw.Relations {
		if rr.Confidence < e.minRelConf {
			continue
		}
		src, okS := byName[strings.ToLower(strings.TrimSpace(rr.Source))]
		dst, okT := byName[strings.ToLower(strings.TrimSpace(rr.Target))]
		if !okS || !okT || src == dst {
			continue
		}

		relType := e.remapRelationType(rr.Type)
		key := src.ID + "|" + dst.ID + "|" + relType
		if seen[key] {
			continue
		}
		seen[key] = true

		result.Relations = append(result.Relations, &model.Relation{
			ID:          model.ExtractedRelationID(chunk.ID, len(result.Relations)),
			SourceID:    src.ID,
			TargetID:    dst.ID,
			Type:        relType,
			Description: strings.TrimSpace(rr.Description),
			Confidence:  clamp01(rr.Confidence),
			ChunkID:     chunk.ID,
			DocumentID:  chunk.DocumentID,
			CreatedAt:   time.Now(),
		})
	}

	return result
}

func (e *Extractor) remapEntityType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	for _, allowed := range e.entityTypes {
		if t == allowed {
			return t
		}
	}
	return "concept"
}

func (e *Extractor) remapRelationType(t string) string {
	t = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(t, " ", "_")))
	for _, allowed := range e.relationTypes {
		if t == allowed {
			return t
		}
	}
	return "related_to"
}

// locateMention records where the entity name first appears in the chunk,
// with offsets relative to the document via the chunk's start offset.
func locateMention(entity *model.Entity, chunk *model.Chunk) {
	idx := strings.Index(strings.ToLower(chunk.Content), strings.ToLower(entity.Name))
	if idx < 0 {
		return
	}
	entity.StartChar = chunk.StartChar + idx
	entity.EndChar = entity.StartChar + len(entity.Name)
	entity.SourceText = snippet(chunk.Content, idx, len(entity.Name))
}

// snippet returns the mention with a little surrounding context.
func snippet(content string, idx, length int) string {
	const pad = 60
	start := idx - pad
	if start < 0 {
		start = 0
	}
	end := idx + length + pad
	if end > len(content) {
		end = len(content)
	}
	return strings.TrimSpace(content[start:end])
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
