package graphstore

import (
	"context"
	"fmt"
)

// coreIndexes speed up the lookups every pipeline step performs.
var coreIndexes = []string{
	"CREATE INDEX FOR (d:Document) ON (d.id)",
	"CREATE INDEX FOR (d:Document) ON (d.postgresql_id)",
	"CREATE INDEX FOR (c:Chunk) ON (c.id)",
	"CREATE INDEX FOR (c:Chunk) ON (c.document_id)",
	"CREATE INDEX FOR (e:Entity) ON (e.id)",
	"CREATE INDEX FOR (e:Entity) ON (e.name)",
	"CREATE INDEX FOR (e:Entity) ON (e.entity_type)",
	"CREATE INDEX FOR (co:Community) ON (co.id)",
	"CREATE INDEX FOR (co:Community) ON (co.level)",
}

// initSchema creates all indexes. Safe to call repeatedly: existing-index
// errors are logged at debug and ignored.
func (s *FalkorStore) initSchema(ctx context.Context) error {
	for _, query := range coreIndexes {
		if _, err := s.graph.Query(query, nil, nil); err != nil {
			s.logger.Debug("schema query", "query", query, "error", err)
		}
	}

	if err := s.initVectorIndex(ctx, "Entity", "embedding"); err != nil {
		s.logger.Warn("failed to create entity vector index", "error", err)
	}
	if err := s.initVectorIndex(ctx, "Chunk", "embedding"); err != nil {
		s.logger.Warn("failed to create chunk vector index", "error", err)
	}

	return nil
}

// initVectorIndex creates an HNSW cosine vector index on label.property.
func (s *FalkorStore) initVectorIndex(ctx context.Context, label, property string) error {
	query := fmt.Sprintf(`
		CREATE VECTOR INDEX FOR (n:%s) ON (n.%s)
		OPTIONS {
			indexType: 'HNSW',
			dimension: %d,
			similarityFunction: 'cosine'
		}
	`, label, property, s.dims)

	if _, err := s.graph.Query(query, nil, nil); err != nil {
		// Older FalkorDB versions use the procedure form
		altQuery := fmt.Sprintf(
			"CALL db.idx.vector.createNodeIndex('%s', '%s', %d, 'cosine')",
			label, property, s.dims)
		if _, altErr := s.graph.Query(altQuery, nil, nil); altErr != nil {
			s.logger.Debug("vector index creation failed",
				"label", label,
				"primary_error", err,
				"alt_error", altErr)
		}
	}

	return nil
}

// EnsureCommunityIndexes creates the vector index over community embeddings
// and the full-text index over community summaries.
func (s *FalkorStore) EnsureCommunityIndexes(ctx context.Context) error {
	if err := s.initVectorIndex(ctx, "Community", "embedding"); err != nil {
		return err
	}

	ftQuery := "CALL db.idx.fulltext.createNodeIndex('Community', 'summary', 'title')"
	if _, err := s.graph.Query(ftQuery, nil, nil); err != nil {
		s.logger.Debug("fulltext index creation", "error", err)
	}

	return nil
}
