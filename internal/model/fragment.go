package model

// Graph node labels.
const (
	LabelDocument  = "Document"
	LabelChunk     = "Chunk"
	LabelEntity    = "Entity"
	LabelCommunity = "Community"
)

// Graph edge types.
const (
	EdgePartOf          = "PART_OF"          // Chunk -> Document
	EdgeFirstChunk      = "FIRST_CHUNK"      // Document -> first Chunk
	EdgeNextChunk       = "NEXT_CHUNK"       // Chunk -> next Chunk
	EdgeHasEntity       = "HAS_ENTITY"       // Chunk -> Entity
	EdgeRelationship    = "RELATIONSHIP"     // Entity -> Entity (typed via property)
	EdgeInCommunity     = "IN_COMMUNITY"     // Entity -> Community
	EdgeParentCommunity = "PARENT_COMMUNITY" // Community level k -> level k+1
)

// Node is a graph node staged for writing.
type Node struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
	// Embedding is written as a vector property when non-empty.
	Embedding []float32 `json:"-"`
}

// Edge is a typed, directed graph edge staged for writing.
type Edge struct {
	ID         string         `json:"id"`
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// GraphFragment is the graph contribution of a single processed document:
// one Document node, one node per chunk, one node per unique entity, and
// the structural plus semantic edges between them.
type GraphFragment struct {
	DocumentID int64   `json:"document_id"`
	Nodes      []*Node `json:"nodes"`
	Edges      []*Edge `json:"edges"`
}

// NodeByID returns the node with the given id, or nil.
func (f *GraphFragment) NodeByID(id string) *Node {
	for _, n := range f.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
