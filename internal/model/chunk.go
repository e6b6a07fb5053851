package model

import "time"

// ChunkType classifies a chunk's role within the document structure.
type ChunkType string

const (
	ChunkContent    ChunkType = "content"
	ChunkHeading    ChunkType = "heading"
	ChunkSection    ChunkType = "section"
	ChunkSubsection ChunkType = "subsection"
)

// Chunk is an ordered fragment of a document's preprocessed text.
// Immutable once created.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID int64  `json:"document_id"`
	Index      int    `json:"index"`

	Content   string `json:"content"`
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`

	WordCount      int `json:"word_count"`
	ParagraphCount int `json:"paragraph_count"`

	Type         ChunkType `json:"type"`
	SectionTitle string    `json:"section_title,omitempty"`
	HeadingLevel int       `json:"heading_level,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// Embedding is attached by the embed pipeline step.
	Embedding []float32 `json:"-"`
}
