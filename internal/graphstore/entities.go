package graphstore

import (
	"context"
	"fmt"

	falkordb "github.com/FalkorDB/falkordb-go/v2"

	"github.com/lodestone-kg/lodestone/internal/model"
)

// entityReturn is the projection used everywhere an entity is hydrated.
// scanEntity depends on this column order.
const entityReturn = "e.id, e.name, e.entity_type, e.description, e.confidence, " +
	"e.aliases, e.chunk_ids, e.document_id, e.merged_from, e.embedding"

func scanEntity(record *falkordb.Record) *model.Entity {
	return &model.Entity{
		ID:          asString(record.GetByIndex(0)),
		Name:        asString(record.GetByIndex(1)),
		Type:        asString(record.GetByIndex(2)),
		Description: asString(record.GetByIndex(3)),
		Confidence:  asFloat64(record.GetByIndex(4)),
		Aliases:     asStringSlice(record.GetByIndex(5)),
		ChunkIDs:    asStringSlice(record.GetByIndex(6)),
		DocumentID:  asInt64(record.GetByIndex(7)),
		MergedFrom:  asStringSlice(record.GetByIndex(8)),
		Embedding:   asVector(record.GetByIndex(9)),
	}
}

// EntityByID retrieves one entity node by its canonical id.
func (s *FalkorStore) EntityByID(ctx context.Context, id string) (*model.Entity, error) {
	query := fmt.Sprintf("MATCH (e:Entity {id: '%s'}) RETURN %s", escapeString(id), entityReturn)

	result, err := s.read(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	if !result.Next() {
		return nil, nil
	}
	return scanEntity(result.Record()), nil
}

// FindEntityByNameType finds an entity whose canonical name and type match.
// The canonical id is derived from both, so this is an id lookup.
func (s *FalkorStore) FindEntityByNameType(ctx context.Context, name, entityType string) (*model.Entity, error) {
	return s.EntityByID(ctx, model.EntityNodeID(name, entityType))
}

// SampleEntitiesByType returns up to limit entities of one type, highest
// confidence first so unification compares against the best-established
// graph nodes.
func (s *FalkorStore) SampleEntitiesByType(ctx context.Context, entityType string, limit int) ([]*model.Entity, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(
		"MATCH (e:Entity {entity_type: '%s'}) RETURN %s ORDER BY e.confidence DESC LIMIT %d",
		escapeString(entityType), entityReturn, limit)

	result, err := s.read(ctx, query, nil)
	if err != nil {
		return nil, err
	}

	var entities []*model.Entity
	for result.Next() {
		entities = append(entities, scanEntity(result.Record()))
	}
	return entities, nil
}

// EntitiesByDocument returns every entity reachable from the document's
// chunks, deduplicated by id.
func (s *FalkorStore) EntitiesByDocument(ctx context.Context, documentID int64) ([]*model.Entity, error) {
	query := fmt.Sprintf(
		"MATCH (c:Chunk {document_id: %d})-[:HAS_ENTITY]->(e:Entity) RETURN DISTINCT %s",
		documentID, entityReturn)

	result, err := s.read(ctx, query, nil)
	if err != nil {
		return nil, err
	}

	var entities []*model.Entity
	seen := make(map[string]bool)
	for result.Next() {
		e := scanEntity(result.Record())
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		entities = append(entities, e)
	}
	return entities, nil
}

// VectorSearchEntities runs a KNN query over the entity vector index and
// filters by minimum cosine similarity. FalkorDB yields distance; cosine
// similarity is 1 - distance.
func (s *FalkorStore) VectorSearchEntities(ctx context.Context, vec []float32, k int, minScore float64) ([]*model.Entity, error) {
	if k <= 0 {
		k = 10
	}
	query := fmt.Sprintf(`
		CALL db.idx.vector.queryNodes('Entity', 'embedding', %d, %s)
		YIELD node AS e, score
		RETURN %s, score`,
		k, vecf32Literal(vec), entityReturn)

	result, err := s.read(ctx, query, nil)
	if err != nil {
		return nil, err
	}

	var entities []*model.Entity
	for result.Next() {
		record := result.Record()
		similarity := 1 - asFloat64(record.GetByIndex(10))
		if similarity < minScore {
			continue
		}
		entities = append(entities, scanEntity(record))
	}
	return entities, nil
}

// IncidentEdge is one edge touching a node, with enough context to rewire it.
type IncidentEdge struct {
	ID       string
	Type     string
	OtherID  string
	Outgoing bool
	Props    map[string]any
}

// IncidentEdges returns every edge touching the node, both directions.
func (s *FalkorStore) IncidentEdges(ctx context.Context, nodeID string) ([]*IncidentEdge, error) {
	query := fmt.Sprintf(`
		MATCH (n {id: '%s'})-[r]->(m)
		RETURN r.id, type(r), m.id, true, r.relationship_type
		UNION
		MATCH (n {id: '%s'})<-[r]-(m)
		RETURN r.id, type(r), m.id, false, r.relationship_type`,
		escapeString(nodeID), escapeString(nodeID))

	result, err := s.read(ctx, query, nil)
	if err != nil {
		return nil, err
	}

	var edges []*IncidentEdge
	for result.Next() {
		record := result.Record()
		edge := &IncidentEdge{
			ID:      asString(record.GetByIndex(0)),
			Type:    asString(record.GetByIndex(1)),
			OtherID: asString(record.GetByIndex(2)),
			Props:   map[string]any{},
		}
		if out, ok := record.GetByIndex(3).(bool); ok {
			edge.Outgoing = out
		}
		if rt := asString(record.GetByIndex(4)); rt != "" {
			edge.Props["relationship_type"] = rt
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

// UpdateEntityAfterMerge rewrites the primary's merged fields in one write.
func (s *FalkorStore) UpdateEntityAfterMerge(ctx context.Context, e *model.Entity) error {
	props := map[string]any{
		"name":        e.Name,
		"description": e.Description,
		"aliases":     e.Aliases,
		"confidence":  e.Confidence,
		"merge_count": int64(len(e.MergedFrom)),
		"merged_from": e.MergedFrom,
		"updated_at":  nowUnix(),
	}
	query := fmt.Sprintf("MATCH (e:Entity {id: '%s'}) SET %s",
		escapeString(e.ID), cypherSet("e", props))
	return s.writeSync(query, nil)
}

// CreateRelationshipEdge creates one RELATIONSHIP edge if an equivalent
// edge (same endpoints and relationship_type) does not exist.
func (s *FalkorStore) CreateRelationshipEdge(ctx context.Context, srcID, dstID, relType string, props map[string]any) error {
	merged := make(map[string]any, len(props)+1)
	for k, v := range props {
		merged[k] = v
	}
	merged["relationship_type"] = relType
	merged["id"] = model.EdgeID(srcID, dstID, relType)

	query := fmt.Sprintf(`
		MATCH (a:Entity {id: '%s'}), (b:Entity {id: '%s'})
		MERGE (a)-[r:RELATIONSHIP {relationship_type: '%s'}]->(b)
		SET %s`,
		escapeString(srcID), escapeString(dstID), escapeString(relType),
		cypherSet("r", merged))

	return s.writeSync(query, nil)
}

// DeleteEntityNode detach-deletes an entity node and all incident edges.
func (s *FalkorStore) DeleteEntityNode(ctx context.Context, id string) error {
	query := fmt.Sprintf("MATCH (e:Entity {id: '%s'}) DETACH DELETE e", escapeString(id))
	return s.writeSync(query, nil)
}

// DeleteDocumentGraph removes a document node, its chunks, and entities
// mentioned only by this document's chunks.
func (s *FalkorStore) DeleteDocumentGraph(ctx context.Context, documentID int64) error {
	orphanQuery := fmt.Sprintf(`
		MATCH (c:Chunk {document_id: %d})-[:HAS_ENTITY]->(e:Entity)
		WHERE NOT EXISTS {
			MATCH (o:Chunk)-[:HAS_ENTITY]->(e) WHERE o.document_id <> %d
		}
		DETACH DELETE e`, documentID, documentID)
	if err := s.writeSync(orphanQuery, nil); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		MATCH (d:Document {postgresql_id: %d})
		OPTIONAL MATCH (c:Chunk)-[:PART_OF]->(d)
		DETACH DELETE c, d`, documentID)
	return s.writeSync(query, nil)
}

// Counts returns node totals per label.
func (s *FalkorStore) Counts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, label := range []string{model.LabelDocument, model.LabelChunk, model.LabelEntity, model.LabelCommunity} {
		query := fmt.Sprintf("MATCH (n:%s) RETURN count(n)", label)
		result, err := s.read(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		if result.Next() {
			counts[label] = asInt64(result.Record().GetByIndex(0))
		}
	}
	return counts, nil
}
