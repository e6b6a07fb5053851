package merger

import (
	"context"
	"sync"
	"testing"

	"github.com/lodestone-kg/lodestone/internal/graphstore"
	"github.com/lodestone-kg/lodestone/internal/model"
)

// fakeGraph holds entities and edges in memory, enough of graphstore.Store
// for the merger to run against.
type fakeGraph struct {
	mu       sync.Mutex
	entities map[string]*model.Entity
	edges    []*fakeEdge

	relationshipCalls int
}

type fakeEdge struct {
	src, dst, typ, relType string
}

func newFakeGraph(entities ...*model.Entity) *fakeGraph {
	g := &fakeGraph{entities: make(map[string]*model.Entity)}
	for _, e := range entities {
		g.entities[e.ID] = e
	}
	return g
}

func (g *fakeGraph) addEdge(src, dst, typ, relType string) {
	g.edges = append(g.edges, &fakeEdge{src: src, dst: dst, typ: typ, relType: relType})
}

func (g *fakeGraph) Start(ctx context.Context) error { return nil }
func (g *fakeGraph) Stop(ctx context.Context) error  { return nil }
func (g *fakeGraph) IsConnected() bool               { return true }

func (g *fakeGraph) WriteFragment(ctx context.Context, fragment *model.GraphFragment) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range fragment.Edges {
		g.addEdge(e.SourceID, e.TargetID, e.Type, "")
	}
	return nil
}

func (g *fakeGraph) EntityByID(ctx context.Context, id string) (*model.Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.entities[id], nil
}

func (g *fakeGraph) FindEntityByNameType(ctx context.Context, name, entityType string) (*model.Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.entities {
		if e.Name == name && e.Type == entityType {
			return e, nil
		}
	}
	return nil, nil
}

func (g *fakeGraph) SampleEntitiesByType(ctx context.Context, entityType string, limit int) ([]*model.Entity, error) {
	return nil, nil
}

func (g *fakeGraph) EntitiesByDocument(ctx context.Context, documentID int64) ([]*model.Entity, error) {
	return nil, nil
}

func (g *fakeGraph) VectorSearchEntities(ctx context.Context, vec []float32, k int, minScore float64) ([]*model.Entity, error) {
	return nil, nil
}

func (g *fakeGraph) IncidentEdges(ctx context.Context, nodeID string) ([]*graphstore.IncidentEdge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*graphstore.IncidentEdge
	for _, e := range g.edges {
		switch nodeID {
		case e.src:
			out = append(out, &graphstore.IncidentEdge{
				Type: e.typ, OtherID: e.dst, Outgoing: true,
				Props: map[string]any{"relationship_type": e.relType},
			})
		case e.dst:
			out = append(out, &graphstore.IncidentEdge{
				Type: e.typ, OtherID: e.src, Outgoing: false,
				Props: map[string]any{"relationship_type": e.relType},
			})
		}
	}
	return out, nil
}

func (g *fakeGraph) UpdateEntityAfterMerge(ctx context.Context, e *model.Entity) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entities[e.ID] = e
	return nil
}

func (g *fakeGraph) CreateRelationshipEdge(ctx context.Context, srcID, dstID, relType string, props map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.relationshipCalls++
	g.addEdge(srcID, dstID, model.EdgeRelationship, relType)
	return nil
}

func (g *fakeGraph) DeleteEntityNode(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entities, id)
	kept := g.edges[:0]
	for _, e := range g.edges {
		if e.src != id && e.dst != id {
			kept = append(kept, e)
		}
	}
	g.edges = kept
	return nil
}

func (g *fakeGraph) EntityAdjacency(ctx context.Context) (map[string]map[string]float64, error) {
	return nil, nil
}
func (g *fakeGraph) ReplaceCommunities(ctx context.Context) error { return nil }
func (g *fakeGraph) WriteCommunity(ctx context.Context, c *model.Community) error {
	return nil
}
func (g *fakeGraph) LinkParentCommunity(ctx context.Context, childID, parentID string) error {
	return nil
}
func (g *fakeGraph) SetEntityCommunities(ctx context.Context, entityID string, levels []int64) error {
	return nil
}
func (g *fakeGraph) CommunityStats(ctx context.Context, communityID string) (int64, int64, error) {
	return 0, 0, nil
}
func (g *fakeGraph) UpdateCommunitySummary(ctx context.Context, id, title, summary string, embedding []float32) error {
	return nil
}
func (g *fakeGraph) EnsureCommunityIndexes(ctx context.Context) error { return nil }
func (g *fakeGraph) CommunityMembers(ctx context.Context, communityID string) ([]*model.Entity, error) {
	return nil, nil
}
func (g *fakeGraph) RelationsAmong(ctx context.Context, entityIDs []string) ([]*graphstore.IncidentEdge, error) {
	return nil, nil
}
func (g *fakeGraph) DeleteDocumentGraph(ctx context.Context, documentID int64) error { return nil }
func (g *fakeGraph) Counts(ctx context.Context) (map[string]int64, error)            { return nil, nil }

var _ graphstore.Store = (*fakeGraph)(nil)

func (g *fakeGraph) relationshipEdges(src, dst string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, e := range g.edges {
		if e.typ == model.EdgeRelationship && e.src == src && e.dst == dst {
			n++
		}
	}
	return n
}

func TestApply_MergeIsIdempotent(t *testing.T) {
	g := newFakeGraph(
		&model.Entity{ID: "g1", Name: "Apple Inc.", Type: "organization", Confidence: 0.8},
		&model.Entity{ID: "g2", Name: "Apple", Type: "organization", Confidence: 0.7, Aliases: []string{"AAPL"}},
		&model.Entity{ID: "g3", Name: "Steve Jobs", Type: "person", Confidence: 0.9},
	)
	g.addEdge("g2", "g3", model.EdgeRelationship, "founded_by")

	m := New(g)
	op := Operation{
		PrimaryID:    "g1",
		DuplicateIDs: []string{"g2"},
		MergedName:   "Apple Inc.",
		EntityType:   "organization",
		Confidence:   0.95,
	}

	results, err := m.Apply(context.Background(), []Operation{op})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if results[0].Merged != 1 || results[0].Skipped != 0 {
		t.Fatalf("first apply: merged=%d skipped=%d, want 1/0", results[0].Merged, results[0].Skipped)
	}

	primary := g.entities["g1"]
	if primary.Confidence != 0.9 {
		t.Errorf("confidence after bump = %f, want 0.9", primary.Confidence)
	}
	wantAliases := []string{"AAPL", "Apple"}
	if len(primary.Aliases) != 2 || primary.Aliases[0] != wantAliases[0] || primary.Aliases[1] != wantAliases[1] {
		t.Errorf("aliases = %v, want %v", primary.Aliases, wantAliases)
	}
	if _, ok := g.entities["g2"]; ok {
		t.Error("duplicate node should be deleted")
	}
	if g.relationshipEdges("g1", "g3") != 1 {
		t.Error("duplicate's edge should be rewired onto the primary")
	}

	// Re-applying the same operation is a no-op.
	results, err = m.Apply(context.Background(), []Operation{op})
	if err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}
	if results[0].Merged != 0 || results[0].Skipped != 1 {
		t.Fatalf("second apply: merged=%d skipped=%d, want 0/1", results[0].Merged, results[0].Skipped)
	}

	primary = g.entities["g1"]
	if primary.Confidence != 0.9 {
		t.Errorf("re-apply must not bump confidence again, got %f", primary.Confidence)
	}
	if len(primary.Aliases) != 2 {
		t.Errorf("re-apply must reproduce the same alias list, got %v", primary.Aliases)
	}
	if g.relationshipEdges("g1", "g3") != 1 {
		t.Error("re-apply must not duplicate rewired edges")
	}
}

func TestMergeFields_AliasCapOrderedByLength(t *testing.T) {
	m := New(newFakeGraph(), WithAliasMax(3))
	primary := &model.Entity{ID: "p", Name: "International Business Machines", Type: "organization"}
	duplicates := []*model.Entity{
		{ID: "d1", Name: "IBM", Aliases: []string{"Big Blue", "I.B.M."}},
		{ID: "d2", Name: "IBM Corporation", Aliases: []string{"International Business Machines"}},
	}

	m.mergeFields(primary, duplicates, Operation{})

	want := []string{"IBM", "I.B.M.", "Big Blue"}
	if len(primary.Aliases) != len(want) {
		t.Fatalf("aliases = %v, want %v", primary.Aliases, want)
	}
	for i := range want {
		if primary.Aliases[i] != want[i] {
			t.Errorf("alias[%d] = %q, want %q", i, primary.Aliases[i], want[i])
		}
	}
}

func TestMergeFields_ConfidenceBumpCapped(t *testing.T) {
	m := New(newFakeGraph())
	primary := &model.Entity{ID: "p", Name: "Apple Inc.", Confidence: 0.95}

	m.mergeFields(primary, []*model.Entity{{ID: "d", Name: "Apple"}}, Operation{})

	if primary.Confidence != 1.0 {
		t.Errorf("confidence = %f, want capped at 1.0", primary.Confidence)
	}
}

func TestApply_RewireSkipsExistingTriples(t *testing.T) {
	g := newFakeGraph(
		&model.Entity{ID: "g1", Name: "Apple Inc.", Type: "organization"},
		&model.Entity{ID: "g2", Name: "Apple", Type: "organization"},
		&model.Entity{ID: "g3", Name: "Steve Jobs", Type: "person"},
		&model.Entity{ID: "g4", Name: "Cupertino", Type: "location"},
	)
	// Primary and duplicate both relate to g3 the same way; only the g4
	// edge is new.
	g.addEdge("g1", "g3", model.EdgeRelationship, "founded_by")
	g.addEdge("g2", "g3", model.EdgeRelationship, "founded_by")
	g.addEdge("g2", "g4", model.EdgeRelationship, "located_in")

	m := New(g)
	_, err := m.Apply(context.Background(), []Operation{{
		PrimaryID:    "g1",
		DuplicateIDs: []string{"g2"},
	}})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if g.relationshipCalls != 1 {
		t.Errorf("expected exactly 1 rewired edge, got %d", g.relationshipCalls)
	}
	if g.relationshipEdges("g1", "g3") != 1 {
		t.Error("existing (other, type, direction) triple should not be duplicated")
	}
	if g.relationshipEdges("g1", "g4") != 1 {
		t.Error("new relation should be rewired onto the primary")
	}
}

func TestApply_MissingPrimaryResolvedByNameType(t *testing.T) {
	g := newFakeGraph(
		&model.Entity{ID: "g1", Name: "Apple Inc.", Type: "organization", Confidence: 0.8},
		&model.Entity{ID: "g2", Name: "Apple", Type: "organization", Confidence: 0.7},
	)

	m := New(g)
	results, err := m.Apply(context.Background(), []Operation{{
		PrimaryID:    "stale_extraction_id",
		DuplicateIDs: []string{"g2"},
		MergedName:   "Apple Inc.",
		EntityType:   "organization",
	}})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if results[0].PrimaryID != "g1" {
		t.Errorf("primary should resolve by name and type, got %s", results[0].PrimaryID)
	}
	if results[0].Merged != 1 {
		t.Errorf("merged = %d, want 1", results[0].Merged)
	}
}

func TestApply_InvalidatesCachesForTouchedNodes(t *testing.T) {
	g := newFakeGraph(
		&model.Entity{ID: "g1", Name: "Apple Inc.", Type: "organization"},
		&model.Entity{ID: "g2", Name: "Apple", Type: "organization"},
	)

	var invalidated []string
	m := New(g, WithInvalidator(func(id string) { invalidated = append(invalidated, id) }))

	if _, err := m.Apply(context.Background(), []Operation{{
		PrimaryID:    "g1",
		DuplicateIDs: []string{"g2"},
	}}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	want := map[string]bool{"g1": true, "g2": true}
	for _, id := range invalidated {
		delete(want, id)
	}
	if len(want) != 0 {
		t.Errorf("missing invalidations: %v (got %v)", want, invalidated)
	}
}

func TestNodeLocks_OverlappingOperationsSerialize(t *testing.T) {
	locks := newNodeLocks()

	unlock := locks.lockAll([]string{"b", "a"})
	acquired := make(chan struct{})
	go func() {
		u := locks.lockAll([]string{"a", "c"})
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("overlapping lock set should block until release")
	default:
	}

	unlock()
	<-acquired
}
