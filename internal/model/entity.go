package model

import "time"

// Entity is a typed claim that a named real-world object appears in one or
// more chunks. Before unification an entity belongs to the chunk it was
// extracted from; after unification ChunkIDs is the canonical membership.
type Entity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`

	Properties map[string]any `json:"properties,omitempty"`

	Confidence float64 `json:"confidence"`
	SourceText string  `json:"source_text,omitempty"`
	StartChar  int     `json:"start_char"`
	EndChar    int     `json:"end_char"`

	Aliases   []string  `json:"aliases,omitempty"`
	Embedding []float32 `json:"-"`

	QualityScore    float64 `json:"quality_score"`
	ImportanceScore float64 `json:"importance_score"`

	// MergedFrom records prior entity ids collapsed into this one.
	MergedFrom []string `json:"merged_from,omitempty"`
	// ChunkIDs is the set of chunks the entity appears in. Canonical
	// source of chunk membership after deduplication.
	ChunkIDs []string `json:"chunk_ids,omitempty"`

	DocumentID int64     `json:"document_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// NodeID returns the deterministic graph node id for this entity.
func (e *Entity) NodeID() string {
	return EntityNodeID(e.Name, e.Type)
}

// EmbeddingText is the canonical textual representation used when an
// entity's embedding must be generated on demand.
func (e *Entity) EmbeddingText() string {
	return e.Name + " 类型:" + e.Type + " 描述:" + e.Description
}

// HasChunk reports whether the entity is recorded as appearing in chunkID.
func (e *Entity) HasChunk(chunkID string) bool {
	for _, id := range e.ChunkIDs {
		if id == chunkID {
			return true
		}
	}
	return false
}

// AddChunk records chunk membership, keeping the set deduplicated.
func (e *Entity) AddChunk(chunkID string) {
	if chunkID == "" || e.HasChunk(chunkID) {
		return
	}
	e.ChunkIDs = append(e.ChunkIDs, chunkID)
}
