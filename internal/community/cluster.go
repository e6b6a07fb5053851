// Package community computes the hierarchical community structure of the
// entity graph and persists it with LLM-generated titles and summaries.
package community

import (
	"sort"
)

// weightedEdge is one neighbor in the compact adjacency list.
type weightedEdge struct {
	to     int
	weight float64
}

// Level holds one level of the hierarchy: a cluster id per node index.
type Level struct {
	Assignment []int
	Clusters   map[int][]int
}

// Hierarchy runs modularity-optimizing clustering level by level. Level 0
// is the finest partition of the original graph; each following level
// clusters the aggregated community graph of the previous one. Node order
// is fixed by the caller, so a fixed graph reproduces the same partition.
func Hierarchy(nodes []string, adjacency map[string]map[string]float64, maxLevels int) []Level {
	if len(nodes) == 0 || maxLevels <= 0 {
		return nil
	}

	index := make(map[string]int, len(nodes))
	for i, id := range nodes {
		index[id] = i
	}

	adj := make([][]weightedEdge, len(nodes))
	totalWeight := 0.0
	for i, id := range nodes {
		neighbors := adjacency[id]
		keys := make([]string, 0, len(neighbors))
		for other := range neighbors {
			keys = append(keys, other)
		}
		sort.Strings(keys)
		for _, other := range keys {
			j, ok := index[other]
			if !ok || j == i {
				continue
			}
			adj[i] = append(adj[i], weightedEdge{to: j, weight: neighbors[other]})
			if j > i {
				totalWeight += neighbors[other]
			}
		}
	}

	var levels []Level
	current := adj
	size := len(nodes)

	// membership[i] maps an original node to its cluster in the level
	// being built; starts as identity at the finest granularity.
	membership := make([]int, len(nodes))
	for i := range membership {
		membership[i] = i
	}

	for levelNum := 0; levelNum < maxLevels; levelNum++ {
		assignment := localMove(current, size, totalWeight)
		assignment = renumber(assignment)

		composed := make([]int, len(nodes))
		for i := range nodes {
			composed[i] = assignment[membership[i]]
		}

		level := Level{Assignment: composed, Clusters: make(map[int][]int)}
		for i, c := range composed {
			level.Clusters[c] = append(level.Clusters[c], i)
		}
		levels = append(levels, level)

		clusterCount := len(level.Clusters)
		if clusterCount == size || clusterCount <= 1 {
			break
		}

		// Aggregate: communities become nodes, inter-community weights sum
		current = aggregate(current, assignment, clusterCount)
		membership = composed
		size = clusterCount
	}

	return levels
}

// localMove runs greedy modularity passes: each node moves to the
// neighboring community with the best gain until a full pass moves nothing.
func localMove(adj [][]weightedEdge, n int, totalWeight float64) []int {
	community := make([]int, n)
	strength := make([]float64, n)
	for i := range community {
		community[i] = i
		for _, e := range adj[i] {
			strength[i] += e.weight
		}
	}

	m2 := 2.0 * totalWeight
	if m2 == 0 {
		return community
	}

	commStrength := make(map[int]float64, n)
	for i := range community {
		commStrength[community[i]] += strength[i]
	}

	const maxPasses = 20
	for pass := 0; pass < maxPasses; pass++ {
		moved := false
		for i := 0; i < n; i++ {
			commWeights := make(map[int]float64)
			for _, e := range adj[i] {
				commWeights[community[e.to]] += e.weight
			}

			currentComm := community[i]
			ki := strength[i]
			removeDelta := commWeights[currentComm]/m2 - (commStrength[currentComm]*ki)/(m2*m2)

			bestComm := currentComm
			bestGain := 0.0

			// Deterministic candidate order
			cands := make([]int, 0, len(commWeights))
			for c := range commWeights {
				cands = append(cands, c)
			}
			sort.Ints(cands)

			for _, c := range cands {
				if c == currentComm {
					continue
				}
				gain := (commWeights[c]/m2 - (commStrength[c]*ki)/(m2*m2)) - removeDelta
				if gain > bestGain {
					bestGain = gain
					bestComm = c
				}
			}

			if bestComm != currentComm {
				commStrength[currentComm] -= ki
				commStrength[bestComm] += ki
				community[i] = bestComm
				moved = true
			}
		}
		if !moved {
			break
		}
	}

	return community
}

// renumber maps arbitrary community labels onto 0..k-1 in order of first
// appearance.
func renumber(assignment []int) []int {
	relabel := make(map[int]int)
	out := make([]int, len(assignment))
	next := 0
	for i, c := range assignment {
		id, ok := relabel[c]
		if !ok {
			id = next
			relabel[c] = id
			next++
		}
		out[i] = id
	}
	return out
}

// aggregate collapses each community into one node, summing edge weights
// between communities and dropping internal edges.
func aggregate(adj [][]weightedEdge, assignment []int, clusterCount int) [][]weightedEdge {
	sums := make([]map[int]float64, clusterCount)
	for i := range sums {
		sums[i] = make(map[int]float64)
	}

	for i, edges := range adj {
		ci := assignment[i]
		for _, e := range edges {
			cj := assignment[e.to]
			if ci == cj {
				continue
			}
			sums[ci][cj] += e.weight
		}
	}

	out := make([][]weightedEdge, clusterCount)
	for ci, neighbors := range sums {
		keys := make([]int, 0, len(neighbors))
		for cj := range neighbors {
			keys = append(keys, cj)
		}
		sort.Ints(keys)
		for _, cj := range keys {
			// Each undirected edge was counted from both sides
			out[ci] = append(out[ci], weightedEdge{to: cj, weight: neighbors[cj]})
		}
	}
	return out
}
