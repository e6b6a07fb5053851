// Package fragment assembles the per-document graph fragment from chunks
// and validated extraction output, and validates it before it reaches the
// graph store.
package fragment

import (
	"strings"
	"time"

	"github.com/lodestone-kg/lodestone/internal/model"
)

// Builder produces GraphFragments with deterministic node and edge ids.
type Builder struct{}

// NewBuilder creates a fragment builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build assembles the fragment for one document. Entities arriving with an
// extraction-time id collapse onto their canonical `(name, type)` node;
// entities that already carry a canonical graph id keep it, so merged
// primaries stay stable. Relations follow their endpoints through that
// mapping.
func (b *Builder) Build(doc *model.Document, chunks []*model.Chunk, entities []*model.Entity, relations []*model.Relation) *model.GraphFragment {
	fragment := &model.GraphFragment{DocumentID: doc.ID}

	docNodeID := documentNodeID(doc.ID)
	fragment.Nodes = append(fragment.Nodes, &model.Node{
		ID:    docNodeID,
		Label: model.LabelDocument,
		Properties: map[string]any{
			"id":            docNodeID,
			"postgresql_id": doc.ID,
			"file_name":     doc.Name,
			"file_type":     doc.FileType,
			"file_size":     doc.Location.Size,
			"created_at":    doc.CreatedAt.Unix(),
		},
	})

	for _, chunk := range chunks {
		fragment.Nodes = append(fragment.Nodes, &model.Node{
			ID:    chunk.ID,
			Label: model.LabelChunk,
			Properties: map[string]any{
				"id":              chunk.ID,
				"document_id":     chunk.DocumentID,
				"chunk_index":     int64(chunk.Index),
				"content":         chunk.Content,
				"start_char":      int64(chunk.StartChar),
				"end_char":        int64(chunk.EndChar),
				"word_count":      int64(chunk.WordCount),
				"paragraph_count": int64(chunk.ParagraphCount),
				"chunk_type":      string(chunk.Type),
				"section_title":   chunk.SectionTitle,
				"heading_level":   int64(chunk.HeadingLevel),
				"created_at":      chunk.CreatedAt.Unix(),
			},
			Embedding: chunk.Embedding,
		})
	}

	// Chunk ordering edges
	if len(chunks) > 0 {
		b.addEdge(fragment, docNodeID, chunks[0].ID, model.EdgeFirstChunk, nil)
	}
	for i, chunk := range chunks {
		b.addEdge(fragment, chunk.ID, docNodeID, model.EdgePartOf, nil)
		if i+1 < len(chunks) {
			b.addEdge(fragment, chunk.ID, chunks[i+1].ID, model.EdgeNextChunk, nil)
		}
	}

	// Collapse entities onto canonical nodes
	nodeIDFor := make(map[string]string, len(entities))
	entityNodes := make(map[string]*model.Node)
	for _, e := range entities {
		nodeID := canonicalEntityID(e)
		nodeIDFor[e.ID] = nodeID

		node, exists := entityNodes[nodeID]
		if !exists {
			node = &model.Node{
				ID:    nodeID,
				Label: model.LabelEntity,
				Properties: map[string]any{
					"id":                  nodeID,
					"name":                e.Name,
					"entity_type":         e.Type,
					"description":         e.Description,
					"confidence":          e.Confidence,
					"aliases":             append([]string{}, e.Aliases...),
					"chunk_ids":           []string{},
					"document_id":         e.DocumentID,
					"source_text_excerpt": e.SourceText,
					"merged_from":         append([]string{}, e.MergedFrom...),
					"created_at":          time.Now().Unix(),
				},
				Embedding: e.Embedding,
			}
			for k, v := range model.SanitizeProperties(e.Properties) {
				if _, taken := node.Properties[k]; !taken {
					node.Properties[k] = v
				}
			}
			entityNodes[nodeID] = node
			fragment.Nodes = append(fragment.Nodes, node)
		} else {
			// A higher-confidence sighting refreshes the description
			if e.Confidence > node.Properties["confidence"].(float64) {
				node.Properties["confidence"] = e.Confidence
				if e.Description != "" {
					node.Properties["description"] = e.Description
				}
			}
			if len(node.Embedding) == 0 {
				node.Embedding = e.Embedding
			}
		}

		chunkIDs := node.Properties["chunk_ids"].([]string)
		for _, cid := range e.ChunkIDs {
			if !containsString(chunkIDs, cid) {
				chunkIDs = append(chunkIDs, cid)
			}
		}
		node.Properties["chunk_ids"] = chunkIDs
	}

	// HAS_ENTITY from every mentioning chunk. Merged primaries can carry
	// chunk ids from earlier documents; only this fragment's chunks get
	// edges here.
	chunkSet := make(map[string]bool, len(chunks))
	for _, chunk := range chunks {
		chunkSet[chunk.ID] = true
	}
	for _, node := range entityNodes {
		for _, cid := range node.Properties["chunk_ids"].([]string) {
			if chunkSet[cid] {
				b.addEdge(fragment, cid, node.ID, model.EdgeHasEntity, nil)
			}
		}
	}

	// Typed relations between canonical entity nodes. The edge id hashes
	// the relation type, not the RELATIONSHIP label, so two differently
	// typed relations between the same pair stay distinct.
	seenEdges := make(map[string]bool)
	for _, rel := range relations {
		srcID, okS := nodeIDFor[rel.SourceID]
		dstID, okT := nodeIDFor[rel.TargetID]
		if !okS || !okT || srcID == dstID {
			continue
		}
		id := model.EdgeID(srcID, dstID, rel.Type)
		if seenEdges[id] {
			continue
		}
		seenEdges[id] = true
		fragment.Edges = append(fragment.Edges, &model.Edge{
			ID:       id,
			SourceID: srcID,
			TargetID: dstID,
			Type:     model.EdgeRelationship,
			Properties: map[string]any{
				"relationship_type": rel.Type,
				"description":       rel.Description,
				"confidence":        rel.Confidence,
				"chunk_id":          rel.ChunkID,
			},
		})
	}

	return fragment
}

// addEdge appends an edge unless an identical (src, dst, type) edge exists.
func (b *Builder) addEdge(fragment *model.GraphFragment, srcID, dstID, edgeType string, props map[string]any) {
	id := model.EdgeID(srcID, dstID, edgeType)
	for _, e := range fragment.Edges {
		if e.ID == id {
			return
		}
	}
	fragment.Edges = append(fragment.Edges, &model.Edge{
		ID:         id,
		SourceID:   srcID,
		TargetID:   dstID,
		Type:       edgeType,
		Properties: props,
	})
}

func canonicalEntityID(e *model.Entity) string {
	if strings.HasPrefix(e.ID, "entity_") {
		return e.ID
	}
	return model.EntityNodeID(e.Name, e.Type)
}

func documentNodeID(docID int64) string {
	return model.DocumentNodeID(docID)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
