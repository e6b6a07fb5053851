package graphstore

import (
	"context"
	"fmt"

	"github.com/lodestone-kg/lodestone/internal/errkind"
	"github.com/lodestone-kg/lodestone/internal/model"
)

// allowedEdgeTypes guards label interpolation: edge types become Cypher
// labels, so only the known relationship set may pass through.
var allowedEdgeTypes = map[string]bool{
	model.EdgePartOf:          true,
	model.EdgeFirstChunk:      true,
	model.EdgeNextChunk:       true,
	model.EdgeHasEntity:       true,
	model.EdgeRelationship:    true,
	model.EdgeInCommunity:     true,
	model.EdgeParentCommunity: true,
}

// WriteFragment persists a fragment: nodes first, then edges, all through
// the ordered write queue so edges never race their endpoints. Entity nodes
// that already exist accumulate chunk ids instead of being overwritten.
func (s *FalkorStore) WriteFragment(ctx context.Context, fragment *model.GraphFragment) error {
	if fragment == nil || (len(fragment.Nodes) == 0 && len(fragment.Edges) == 0) {
		return nil
	}

	for _, node := range fragment.Nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.writeNode(node); err != nil {
			return fmt.Errorf("writing node %s; %w", node.ID, err)
		}
	}

	for _, edge := range fragment.Edges {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.writeEdge(edge); err != nil {
			return fmt.Errorf("writing edge %s; %w", edge.ID, err)
		}
	}

	s.logger.Debug("fragment written",
		"document_id", fragment.DocumentID,
		"nodes", len(fragment.Nodes),
		"edges", len(fragment.Edges))

	return nil
}

func (s *FalkorStore) writeNode(node *model.Node) error {
	switch node.Label {
	case model.LabelEntity:
		return s.writeEntityNode(node)
	default:
		return s.writeGenericNode(node)
	}
}

// writeGenericNode upserts a Document or Chunk node, replacing properties.
func (s *FalkorStore) writeGenericNode(node *model.Node) error {
	query := fmt.Sprintf("MERGE (n:%s {id: '%s'}) SET %s",
		node.Label, escapeString(node.ID), cypherSet("n", node.Properties))

	if len(node.Embedding) > 0 {
		query += ", n.embedding = " + vecf32Literal(node.Embedding)
	}

	return s.writeSync(query, nil)
}

// writeEntityNode upserts an Entity node. On match, scalar fields refresh
// only when previously empty, and chunk_ids grows by the ids not already
// present; the canonical node id stays stable across documents.
func (s *FalkorStore) writeEntityNode(node *model.Node) error {
	props := make(map[string]any, len(node.Properties))
	for k, v := range node.Properties {
		props[k] = v
	}
	chunkIDs, _ := props["chunk_ids"].([]string)
	delete(props, "chunk_ids")

	query := fmt.Sprintf(`
		MERGE (e:Entity {id: '%s'})
		ON CREATE SET %s, e.chunk_ids = %s
		ON MATCH SET e.chunk_ids = e.chunk_ids + [x IN %s WHERE NOT x IN e.chunk_ids]`,
		escapeString(node.ID),
		cypherSet("e", props),
		cypherValue(chunkIDs),
		cypherValue(chunkIDs))

	if len(node.Embedding) > 0 {
		query += "\n\t\tSET e.embedding = " + vecf32Literal(node.Embedding)
	}

	return s.writeSync(query, nil)
}

func (s *FalkorStore) writeEdge(edge *model.Edge) error {
	if !allowedEdgeTypes[edge.Type] {
		return errkind.New(errkind.KindLogic,
			fmt.Errorf("unknown edge type %q", edge.Type))
	}

	props := make(map[string]any, len(edge.Properties)+1)
	for k, v := range edge.Properties {
		props[k] = v
	}
	props["id"] = edge.ID

	query := fmt.Sprintf(`
		MATCH (a {id: '%s'}), (b {id: '%s'})
		MERGE (a)-[r:%s {id: '%s'}]->(b)
		SET %s`,
		escapeString(edge.SourceID),
		escapeString(edge.TargetID),
		edge.Type,
		escapeString(edge.ID),
		cypherSet("r", props))

	return s.writeSync(query, nil)
}
