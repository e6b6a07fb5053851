package model

import "time"

// Relation is a directed, typed claim between two entities grounded in a
// specific chunk. Both endpoints must exist in the same extraction.
type Relation struct {
	ID string `json:"id"`

	SourceID   string `json:"source_entity_id"`
	SourceName string `json:"source_name"`
	TargetID   string `json:"target_entity_id"`
	TargetName string `json:"target_name"`

	Type        string `json:"type"`
	Description string `json:"description,omitempty"`

	Properties map[string]any `json:"properties,omitempty"`

	Confidence float64 `json:"confidence"`
	SourceText string  `json:"source_text,omitempty"`
	ChunkID    string  `json:"chunk_id"`

	DocumentID int64     `json:"document_id"`
	CreatedAt  time.Time `json:"created_at"`
}
