package graphstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/lodestone-kg/lodestone/internal/model"
)

// EntityAdjacency projects the entity subgraph as an undirected weighted
// adjacency map; edge weight is the count of parallel RELATIONSHIP edges
// between the endpoints.
func (s *FalkorStore) EntityAdjacency(ctx context.Context) (map[string]map[string]float64, error) {
	adjacency := make(map[string]map[string]float64)

	// Every entity appears, including isolated ones
	nodeResult, err := s.read(ctx, "MATCH (e:Entity) RETURN e.id", nil)
	if err != nil {
		return nil, err
	}
	for nodeResult.Next() {
		id := asString(nodeResult.Record().GetByIndex(0))
		if id != "" {
			adjacency[id] = make(map[string]float64)
		}
	}

	edgeResult, err := s.read(ctx, `
		MATCH (a:Entity)-[r:RELATIONSHIP]->(b:Entity)
		RETURN a.id, b.id, count(r)`, nil)
	if err != nil {
		return nil, err
	}
	for edgeResult.Next() {
		record := edgeResult.Record()
		src := asString(record.GetByIndex(0))
		dst := asString(record.GetByIndex(1))
		weight := asFloat64(record.GetByIndex(2))
		if src == "" || dst == "" || src == dst {
			continue
		}
		if adjacency[src] == nil {
			adjacency[src] = make(map[string]float64)
		}
		if adjacency[dst] == nil {
			adjacency[dst] = make(map[string]float64)
		}
		adjacency[src][dst] += weight
		adjacency[dst][src] += weight
	}

	return adjacency, nil
}

// ReplaceCommunities drops every community node and membership edge and
// clears the communities property on entities, preparing a full recompute.
func (s *FalkorStore) ReplaceCommunities(ctx context.Context) error {
	if err := s.writeSync("MATCH (c:Community) DETACH DELETE c", nil); err != nil {
		return fmt.Errorf("dropping community nodes; %w", err)
	}
	if err := s.writeSync("MATCH (e:Entity) SET e.communities = NULL", nil); err != nil {
		return fmt.Errorf("clearing entity communities; %w", err)
	}
	return nil
}

// WriteCommunity persists one community node and IN_COMMUNITY edges from
// each member entity.
func (s *FalkorStore) WriteCommunity(ctx context.Context, c *model.Community) error {
	props := map[string]any{
		"id":         c.ID,
		"level":      int64(c.Level),
		"weight":     c.Weight,
		"rank":       c.Rank,
		"created_at": nowUnix(),
	}
	query := fmt.Sprintf("MERGE (co:Community {id: '%s'}) SET %s",
		escapeString(c.ID), cypherSet("co", props))
	if err := s.writeSync(query, nil); err != nil {
		return err
	}

	for _, entityID := range c.EntityIDs {
		linkQuery := fmt.Sprintf(`
			MATCH (e:Entity {id: '%s'}), (co:Community {id: '%s'})
			MERGE (e)-[:IN_COMMUNITY]->(co)`,
			escapeString(entityID), escapeString(c.ID))
		if err := s.writeSync(linkQuery, nil); err != nil {
			return err
		}
	}
	return nil
}

// LinkParentCommunity adds a PARENT_COMMUNITY edge from a level-k community
// to its containing level-k+1 community.
func (s *FalkorStore) LinkParentCommunity(ctx context.Context, childID, parentID string) error {
	query := fmt.Sprintf(`
		MATCH (c:Community {id: '%s'}), (p:Community {id: '%s'})
		MERGE (c)-[:PARENT_COMMUNITY]->(p)`,
		escapeString(childID), escapeString(parentID))
	return s.writeSync(query, nil)
}

// SetEntityCommunities stores the entity's cluster id per level.
func (s *FalkorStore) SetEntityCommunities(ctx context.Context, entityID string, levels []int64) error {
	query := fmt.Sprintf("MATCH (e:Entity {id: '%s'}) SET e.communities = %s",
		escapeString(entityID), cypherValue(levels))
	return s.writeSync(query, nil)
}

// CommunityStats computes weight (distinct chunks mentioning members) and
// rank (distinct documents those chunks belong to).
func (s *FalkorStore) CommunityStats(ctx context.Context, communityID string) (int64, int64, error) {
	query := fmt.Sprintf(`
		MATCH (e:Entity)-[:IN_COMMUNITY]->(co:Community {id: '%s'})
		OPTIONAL MATCH (c:Chunk)-[:HAS_ENTITY]->(e)
		OPTIONAL MATCH (c)-[:PART_OF]->(d:Document)
		RETURN count(DISTINCT c), count(DISTINCT d)`,
		escapeString(communityID))

	result, err := s.read(ctx, query, nil)
	if err != nil {
		return 0, 0, err
	}
	if !result.Next() {
		return 0, 0, nil
	}
	record := result.Record()
	return asInt64(record.GetByIndex(0)), asInt64(record.GetByIndex(1)), nil
}

// UpdateCommunitySummary stores the generated title, summary, and summary
// embedding on the community node.
func (s *FalkorStore) UpdateCommunitySummary(ctx context.Context, id, title, summary string, embedding []float32) error {
	props := map[string]any{
		"title":      title,
		"summary":    summary,
		"updated_at": nowUnix(),
	}
	query := fmt.Sprintf("MATCH (co:Community {id: '%s'}) SET %s",
		escapeString(id), cypherSet("co", props))
	if len(embedding) > 0 {
		query += ", co.embedding = " + vecf32Literal(embedding)
	}
	return s.writeSync(query, nil)
}

// CommunityMembers returns the member entities of a community.
func (s *FalkorStore) CommunityMembers(ctx context.Context, communityID string) ([]*model.Entity, error) {
	query := fmt.Sprintf(
		"MATCH (e:Entity)-[:IN_COMMUNITY]->(co:Community {id: '%s'}) RETURN %s",
		escapeString(communityID), entityReturn)

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

// RelationsAmong returns RELATIONSHIP edges whose endpoints are both in the
// given id set.
func (s *FalkorStore) RelationsAmong(ctx context.Context, entityIDs []string) ([]*IncidentEdge, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	quoted := make([]string, len(entityIDs))
	for i, id := range entityIDs {
		quoted[i] = "'" + escapeString(id) + "'"
	}
	idList := "[" + strings.Join(quoted, ", ") + "]"

	query := fmt.Sprintf(`
		MATCH (a:Entity)-[r:RELATIONSHIP]->(b:Entity)
		WHERE a.id IN %s AND b.id IN %s
		RETURN r.id, a.id, b.id, r.relationship_type`, idList, idList)

	result, err := s.read(ctx, query, nil)
	if err != nil {
		return nil, err
	}

	var edges []*IncidentEdge
	for result.Next() {
		record := result.Record()
		edges = append(edges, &IncidentEdge{
			ID:       asString(record.GetByIndex(0)),
			Type:     model.EdgeRelationship,
			OtherID:  asString(record.GetByIndex(2)),
			Outgoing: true,
			Props: map[string]any{
				"source_id":         asString(record.GetByIndex(1)),
				"relationship_type": asString(record.GetByIndex(3)),
			},
		})
	}
	return edges, nil
}
