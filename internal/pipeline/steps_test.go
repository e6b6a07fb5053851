package pipeline

import (
	"testing"

	"github.com/lodestone-kg/lodestone/internal/model"
	"github.com/lodestone-kg/lodestone/internal/unify"
)

func TestMergeOperations_MapsToGraphNodeIDs(t *testing.T) {
	candidates := []unify.Candidate{
		{Entity: &model.Entity{ID: "entity_1111aaaa", Name: "Apple Inc.", Type: "organization"}, FromGraph: true},
		{Entity: &model.Entity{ID: "c0_entity_0", Name: "Apple", Type: "organization"}},
	}
	result := &unify.Result{MergeGroups: []unify.MergeGroup{{
		PrimaryID:    "entity_1111aaaa",
		DuplicateIDs: []string{"c0_entity_0"},
		MergedName:   "Apple Inc.",
		Confidence:   0.97,
	}}}

	ops := mergeOperations(result, candidates)
	if len(ops) != 1 {
		t.Fatalf("expected 1 operation, got %d", len(ops))
	}
	if ops[0].PrimaryID != "entity_1111aaaa" {
		t.Errorf("graph-canonical primary id should pass through, got %s", ops[0].PrimaryID)
	}
	want := model.EntityNodeID("Apple", "organization")
	if len(ops[0].DuplicateIDs) != 1 || ops[0].DuplicateIDs[0] != want {
		t.Errorf("duplicate should map to its node id %s, got %v", want, ops[0].DuplicateIDs)
	}
}

func TestMergeOperations_DropsAlreadyUnifiedDuplicates(t *testing.T) {
	// Two sightings of the same (name, type) share a node id after the
	// fragment write, so the merge is a no-op in the graph.
	candidates := []unify.Candidate{
		{Entity: &model.Entity{ID: "c0_entity_0", Name: "Apple Inc.", Type: "organization"}},
		{Entity: &model.Entity{ID: "c1_entity_0", Name: "apple inc.", Type: "organization"}},
	}
	result := &unify.Result{MergeGroups: []unify.MergeGroup{{
		PrimaryID:    "c0_entity_0",
		DuplicateIDs: []string{"c1_entity_0"},
		Confidence:   0.99,
	}}}

	if ops := mergeOperations(result, candidates); len(ops) != 0 {
		t.Errorf("same-node merge should produce no operations, got %+v", ops)
	}
}

func TestMergeOperations_SkipsUnknownIDs(t *testing.T) {
	candidates := []unify.Candidate{
		{Entity: &model.Entity{ID: "c0_entity_0", Name: "Apple", Type: "organization"}},
	}
	result := &unify.Result{MergeGroups: []unify.MergeGroup{
		{PrimaryID: "ghost", DuplicateIDs: []string{"c0_entity_0"}, Confidence: 0.99},
		{PrimaryID: "c0_entity_0", DuplicateIDs: []string{"ghost"}, Confidence: 0.99},
	}}

	if ops := mergeOperations(result, candidates); len(ops) != 0 {
		t.Errorf("groups referencing unknown ids should be skipped, got %+v", ops)
	}
}
