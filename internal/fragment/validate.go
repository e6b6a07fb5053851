package fragment

import (
	"fmt"

	"github.com/lodestone-kg/lodestone/internal/errkind"
	"github.com/lodestone-kg/lodestone/internal/model"
)

// Validate checks fragment integrity: unique node ids, unique edge ids, and
// every edge endpoint present in the fragment. A violation aborts the write
// because a partial fragment would corrupt the graph.
func Validate(fragment *model.GraphFragment) error {
	nodeIDs := make(map[string]bool, len(fragment.Nodes))
	for _, node := range fragment.Nodes {
		if node.ID == "" {
			return errkind.New(errkind.KindLogic,
				fmt.Errorf("fragment for document %d has a node with empty id", fragment.DocumentID))
		}
		if nodeIDs[node.ID] {
			return errkind.New(errkind.KindLogic,
				fmt.Errorf("duplicate node id %q in fragment for document %d", node.ID, fragment.DocumentID))
		}
		nodeIDs[node.ID] = true
	}

	edgeIDs := make(map[string]bool, len(fragment.Edges))
	for _, edge := range fragment.Edges {
		if edgeIDs[edge.ID] {
			return errkind.New(errkind.KindLogic,
				fmt.Errorf("duplicate edge id %q in fragment for document %d", edge.ID, fragment.DocumentID))
		}
		edgeIDs[edge.ID] = true

		if !nodeIDs[edge.SourceID] {
			return errkind.New(errkind.KindLogic,
				fmt.Errorf("edge %q references missing source node %q", edge.ID, edge.SourceID))
		}
		if !nodeIDs[edge.TargetID] {
			return errkind.New(errkind.KindLogic,
				fmt.Errorf("edge %q references missing target node %q", edge.ID, edge.TargetID))
		}
	}

	return nil
}
