package community

import (
	"fmt"
	"reflect"
	"testing"
)

// twoCliques builds two dense 4-node cliques joined by a single weak bridge.
func twoCliques() ([]string, map[string]map[string]float64) {
	nodes := []string{"a1", "a2", "a3", "a4", "b1", "b2", "b3", "b4"}
	adjacency := make(map[string]map[string]float64)
	link := func(x, y string, w float64) {
		if adjacency[x] == nil {
			adjacency[x] = make(map[string]float64)
		}
		if adjacency[y] == nil {
			adjacency[y] = make(map[string]float64)
		}
		adjacency[x][y] = w
		adjacency[y][x] = w
	}

	for _, group := range [][]string{{"a1", "a2", "a3", "a4"}, {"b1", "b2", "b3", "b4"}} {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				link(group[i], group[j], 3)
			}
		}
	}
	link("a1", "b1", 0.5)
	return nodes, adjacency
}

func TestHierarchy_SeparatesCliques(t *testing.T) {
	nodes, adjacency := twoCliques()
	levels := Hierarchy(nodes, adjacency, 3)
	if len(levels) == 0 {
		t.Fatal("expected at least one level")
	}

	base := levels[0]
	if len(base.Assignment) != len(nodes) {
		t.Fatalf("assignment length %d, want %d", len(base.Assignment), len(nodes))
	}

	// All a-nodes share a cluster, all b-nodes share another
	aCluster := base.Assignment[0]
	for i := 1; i < 4; i++ {
		if base.Assignment[i] != aCluster {
			t.Errorf("node %s not clustered with a1", nodes[i])
		}
	}
	bCluster := base.Assignment[4]
	for i := 5; i < 8; i++ {
		if base.Assignment[i] != bCluster {
			t.Errorf("node %s not clustered with b1", nodes[i])
		}
	}
	if aCluster == bCluster {
		t.Error("weakly bridged cliques should land in different clusters")
	}
}

func TestHierarchy_Deterministic(t *testing.T) {
	nodes, adjacency := twoCliques()
	first := Hierarchy(nodes, adjacency, 3)

	for run := 0; run < 5; run++ {
		again := Hierarchy(nodes, adjacency, 3)
		if len(again) != len(first) {
			t.Fatalf("run %d produced %d levels, want %d", run, len(again), len(first))
		}
		for l := range first {
			if !reflect.DeepEqual(first[l].Assignment, again[l].Assignment) {
				t.Fatalf("run %d level %d assignment differs:\n%v\n%v",
					run, l, first[l].Assignment, again[l].Assignment)
			}
		}
	}
}

func TestHierarchy_ClusterLabelsAreCompact(t *testing.T) {
	nodes, adjacency := twoCliques()
	levels := Hierarchy(nodes, adjacency, 3)

	for l, level := range levels {
		seen := make(map[int]bool)
		maxLabel := -1
		for _, c := range level.Assignment {
			seen[c] = true
			if c > maxLabel {
				maxLabel = c
			}
		}
		if maxLabel != len(seen)-1 {
			t.Errorf("level %d labels not compact: max %d with %d clusters", l, maxLabel, len(seen))
		}
		for c, members := range level.Clusters {
			for _, m := range members {
				if level.Assignment[m] != c {
					t.Errorf("level %d cluster map inconsistent for node %d", l, m)
				}
			}
		}
	}
}

func TestHierarchy_UpperLevelsCoarsen(t *testing.T) {
	// Ring of 4 cliques: hierarchical clustering should coarsen upward
	var nodes []string
	adjacency := make(map[string]map[string]float64)
	link := func(x, y string, w float64) {
		if adjacency[x] == nil {
			adjacency[x] = make(map[string]float64)
		}
		if adjacency[y] == nil {
			adjacency[y] = make(map[string]float64)
		}
		adjacency[x][y] = w
		adjacency[y][x] = w
	}

	var groups [][]string
	for g := 0; g < 4; g++ {
		var group []string
		for n := 0; n < 4; n++ {
			group = append(group, fmt.Sprintf("g%d_n%d", g, n))
		}
		groups = append(groups, group)
		nodes = append(nodes, group...)
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				link(group[i], group[j], 5)
			}
		}
	}
	for g := 0; g < 4; g++ {
		link(groups[g][0], groups[(g+1)%4][0], 1)
	}

	levels := Hierarchy(nodes, adjacency, 3)
	if len(levels) < 2 {
		t.Fatalf("expected a multi-level hierarchy, got %d levels", len(levels))
	}

	for l := 1; l < len(levels); l++ {
		prev := len(levels[l-1].Clusters)
		curr := len(levels[l].Clusters)
		if curr > prev {
			t.Errorf("level %d has more clusters (%d) than level %d (%d)", l, curr, l-1, prev)
		}

		// Levels must nest: every cluster at level l-1 maps into exactly
		// one cluster at level l
		parent := make(map[int]int)
		for node, c := range levels[l-1].Assignment {
			up := levels[l].Assignment[node]
			if known, ok := parent[c]; ok && known != up {
				t.Errorf("cluster %d at level %d splits across parents %d and %d", c, l-1, known, up)
			}
			parent[c] = up
		}
	}
}

func TestHierarchy_EmptyAndSingle(t *testing.T) {
	if levels := Hierarchy(nil, nil, 3); levels != nil {
		t.Errorf("empty graph should yield no levels, got %v", levels)
	}

	levels := Hierarchy([]string{"solo"}, map[string]map[string]float64{}, 3)
	if len(levels) != 1 {
		t.Fatalf("single node should yield one level, got %d", len(levels))
	}
	if len(levels[0].Clusters) != 1 {
		t.Errorf("single node should form one cluster")
	}
}
