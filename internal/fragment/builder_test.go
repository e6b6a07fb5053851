package fragment

import (
	"testing"
	"time"

	"github.com/lodestone-kg/lodestone/internal/model"
)

func testDocument() *model.Document {
	return &model.Document{
		ID:        5,
		OwnerID:   1,
		Name:      "notes.md",
		FileType:  "md",
		CreatedAt: time.Now(),
	}
}

func testChunks(docID int64) []*model.Chunk {
	contents := []string{"first chunk text", "second chunk text", "third chunk text"}
	chunks := make([]*model.Chunk, len(contents))
	for i, content := range contents {
		chunks[i] = &model.Chunk{
			ID:         model.ChunkID(docID, i, content),
			DocumentID: docID,
			Index:      i,
			Content:    content,
			CreatedAt:  time.Now(),
		}
	}
	return chunks
}

func edgesOfType(f *model.GraphFragment, edgeType string) []*model.Edge {
	var out []*model.Edge
	for _, e := range f.Edges {
		if e.Type == edgeType {
			out = append(out, e)
		}
	}
	return out
}

func TestBuild_StructuralEdges(t *testing.T) {
	b := NewBuilder()
	doc := testDocument()
	chunks := testChunks(doc.ID)

	frag := b.Build(doc, chunks, nil, nil)
	if err := Validate(frag); err != nil {
		t.Fatalf("fragment failed validation: %v", err)
	}

	// 1 document node + 3 chunk nodes
	if len(frag.Nodes) != 4 {
		t.Fatalf("expected 4 nodes, got %d", len(frag.Nodes))
	}

	first := edgesOfType(frag, model.EdgeFirstChunk)
	if len(first) != 1 {
		t.Fatalf("expected exactly 1 FIRST_CHUNK edge, got %d", len(first))
	}
	if first[0].SourceID != "doc_5" || first[0].TargetID != chunks[0].ID {
		t.Errorf("FIRST_CHUNK edge wrong: %s -> %s", first[0].SourceID, first[0].TargetID)
	}

	next := edgesOfType(frag, model.EdgeNextChunk)
	if len(next) != 2 {
		t.Fatalf("expected 2 NEXT_CHUNK edges, got %d", len(next))
	}

	partOf := edgesOfType(frag, model.EdgePartOf)
	if len(partOf) != 3 {
		t.Fatalf("expected 3 PART_OF edges, got %d", len(partOf))
	}
	for _, e := range partOf {
		if e.TargetID != "doc_5" {
			t.Errorf("PART_OF edge should target the document, got %s", e.TargetID)
		}
	}
}

func TestBuild_EntityCollapse(t *testing.T) {
	b := NewBuilder()
	doc := testDocument()
	chunks := testChunks(doc.ID)

	// Same (name, type) extracted from two different chunks
	entities := []*model.Entity{
		{
			ID: "c0_entity_0", Name: "Apple Inc.", Type: "organization",
			Description: "fruit company", Confidence: 0.7,
			ChunkIDs: []string{chunks[0].ID},
		},
		{
			ID: "c1_entity_0", Name: "Apple Inc.", Type: "organization",
			Description: "technology company", Confidence: 0.95,
			ChunkIDs: []string{chunks[1].ID},
		},
	}

	frag := b.Build(doc, chunks, entities, nil)
	if err := Validate(frag); err != nil {
		t.Fatalf("fragment failed validation: %v", err)
	}

	nodeID := model.EntityNodeID("Apple Inc.", "organization")
	node := frag.NodeByID(nodeID)
	if node == nil {
		t.Fatalf("canonical entity node %q missing", nodeID)
	}

	// 1 doc + 3 chunks + 1 collapsed entity
	if len(frag.Nodes) != 5 {
		t.Errorf("duplicate sightings should collapse to one node, got %d nodes", len(frag.Nodes))
	}

	if node.Properties["confidence"].(float64) != 0.95 {
		t.Errorf("higher-confidence sighting should win, got %v", node.Properties["confidence"])
	}
	if node.Properties["description"].(string) != "technology company" {
		t.Errorf("description should refresh with the higher-confidence sighting")
	}

	chunkIDs := node.Properties["chunk_ids"].([]string)
	if len(chunkIDs) != 2 {
		t.Errorf("entity should accumulate both chunk memberships, got %v", chunkIDs)
	}

	hasEntity := edgesOfType(frag, model.EdgeHasEntity)
	if len(hasEntity) != 2 {
		t.Errorf("expected HAS_ENTITY from both mentioning chunks, got %d", len(hasEntity))
	}
}

func TestBuild_RelationsFollowCollapse(t *testing.T) {
	b := NewBuilder()
	doc := testDocument()
	chunks := testChunks(doc.ID)

	entities := []*model.Entity{
		{ID: "e1", Name: "Steve Jobs", Type: "person", Confidence: 0.9, ChunkIDs: []string{chunks[0].ID}},
		{ID: "e2", Name: "Apple Inc.", Type: "organization", Confidence: 0.9, ChunkIDs: []string{chunks[0].ID}},
		{ID: "e3", Name: "apple inc.", Type: "organization", Confidence: 0.8, ChunkIDs: []string{chunks[1].ID}},
	}
	relations := []*model.Relation{
		{ID: "r1", SourceID: "e1", TargetID: "e2", Type: "founded", Confidence: 0.9, ChunkID: chunks[0].ID},
		// Same semantic edge via the collapsed duplicate
		{ID: "r2", SourceID: "e1", TargetID: "e3", Type: "founded", Confidence: 0.8, ChunkID: chunks[1].ID},
		// Self-relation after collapse must be dropped
		{ID: "r3", SourceID: "e2", TargetID: "e3", Type: "related_to", Confidence: 0.9, ChunkID: chunks[0].ID},
	}

	frag := b.Build(doc, chunks, entities, relations)
	if err := Validate(frag); err != nil {
		t.Fatalf("fragment failed validation: %v", err)
	}

	rels := edgesOfType(frag, model.EdgeRelationship)
	if len(rels) != 1 {
		t.Fatalf("expected 1 deduplicated relation edge, got %d", len(rels))
	}
	if rels[0].Properties["relationship_type"] != "founded" {
		t.Errorf("relation type property = %v", rels[0].Properties["relationship_type"])
	}

	personID := model.EntityNodeID("Steve Jobs", "person")
	orgID := model.EntityNodeID("Apple Inc.", "organization")
	if rels[0].SourceID != personID || rels[0].TargetID != orgID {
		t.Errorf("relation endpoints not canonical: %s -> %s", rels[0].SourceID, rels[0].TargetID)
	}
}

func TestBuild_KeepsCanonicalIDsStable(t *testing.T) {
	b := NewBuilder()
	doc := testDocument()
	chunks := testChunks(doc.ID)

	// An entity arriving with a graph-canonical id (a merged primary) keeps it
	merged := &model.Entity{
		ID: "entity_abcd1234", Name: "Apple", Type: "organization",
		Confidence: 0.9, ChunkIDs: []string{chunks[0].ID},
	}
	frag := b.Build(doc, chunks, []*model.Entity{merged}, nil)

	if frag.NodeByID("entity_abcd1234") == nil {
		t.Error("pre-assigned canonical id should be preserved")
	}
	if frag.NodeByID(model.EntityNodeID("Apple", "organization")) != nil {
		t.Error("merged primary should not spawn a second node under the hash id")
	}
}

func TestValidate_Failures(t *testing.T) {
	base := func() *model.GraphFragment {
		return &model.GraphFragment{
			DocumentID: 1,
			Nodes: []*model.Node{
				{ID: "a", Label: model.LabelEntity},
				{ID: "b", Label: model.LabelEntity},
			},
			Edges: []*model.Edge{
				{ID: "e1", SourceID: "a", TargetID: "b", Type: model.EdgeRelationship},
			},
		}
	}

	if err := Validate(base()); err != nil {
		t.Fatalf("valid fragment rejected: %v", err)
	}

	dupNode := base()
	dupNode.Nodes = append(dupNode.Nodes, &model.Node{ID: "a", Label: model.LabelEntity})
	if err := Validate(dupNode); err == nil {
		t.Error("duplicate node id should fail validation")
	}

	dupEdge := base()
	dupEdge.Edges = append(dupEdge.Edges, &model.Edge{ID: "e1", SourceID: "a", TargetID: "b"})
	if err := Validate(dupEdge); err == nil {
		t.Error("duplicate edge id should fail validation")
	}

	dangling := base()
	dangling.Edges[0].TargetID = "missing"
	if err := Validate(dangling); err == nil {
		t.Error("edge with missing endpoint should fail validation")
	}

	emptyID := base()
	emptyID.Nodes[0].ID = ""
	if err := Validate(emptyID); err == nil {
		t.Error("empty node id should fail validation")
	}
}
