// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package simplegraph holds the untyped undirected graph consumed by the
// featurize and components commands, together with the structural
// algorithms the featurizer reports on it: connected components, k-cores
// and coreness values, k-trusses, eigenvector centrality, and clustering
// coefficients.
//
// A Graph is built once from plain (source, target) id pairs and never
// mutates afterwards, so every method is safe for unsynchronized
// concurrent use. Nodes materialize from edges only; an id that appears
// in no surviving pair does not exist in the graph.
package simplegraph

import (
	"slices"
)

// Graph is an immutable undirected graph over int64 node ids.
type Graph struct {
	adj       map[int64]map[int64]struct{}
	ids       []int64
	edgeCount int
}

// FromPairs builds a graph from undirected (source, target) pairs.
//
// Description:
//
//	Self-loops are dropped and repeated pairs collapse to a single edge
//	regardless of orientation. The resulting graph is frozen; callers
//	may share it across goroutines freely.
//
// Inputs:
//   - pairs: undirected edges as (source, target) id pairs.
//
// Outputs:
//   - *Graph: the deduplicated graph.
func FromPairs(pairs [][2]int64) *Graph {
	adj := make(map[int64]map[int64]struct{})
	ensure := func(id int64) map[int64]struct{} {
		set, ok := adj[id]
		if !ok {
			set = make(map[int64]struct{})
			adj[id] = set
		}
		return set
	}
	edges := 0
	for _, p := range pairs {
		a, b := p[0], p[1]
		if a == b {
			continue
		}
		na := ensure(a)
		if _, dup := na[b]; dup {
			continue
		}
		na[b] = struct{}{}
		ensure(b)[a] = struct{}{}
		edges++
	}
	ids := make([]int64, 0, len(adj))
	for id := range adj {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return &Graph{adj: adj, ids: ids, edgeCount: edges}
}

// NodeCount returns the number of nodes with at least one edge.
func (g *Graph) NodeCount() int {
	return len(g.ids)
}

// EdgeCount returns the number of distinct undirected edges.
func (g *Graph) EdgeCount() int {
	return g.edgeCount
}

// Has reports whether id exists in the graph.
func (g *Graph) Has(id int64) bool {
	_, ok := g.adj[id]
	return ok
}

// HasEdge reports whether an edge joins a and b.
func (g *Graph) HasEdge(a, b int64) bool {
	_, ok := g.adj[a][b]
	return ok
}

// Degree returns the number of neighbors of id, zero when absent.
func (g *Graph) Degree(id int64) int {
	return len(g.adj[id])
}

// IDs returns the node ids in ascending order.
func (g *Graph) IDs() []int64 {
	return slices.Clone(g.ids)
}

// Neighbors returns the neighbor ids of id in ascending order.
func (g *Graph) Neighbors(id int64) []int64 {
	nbrs := make([]int64, 0, len(g.adj[id]))
	for u := range g.adj[id] {
		nbrs = append(nbrs, u)
	}
	slices.Sort(nbrs)
	return nbrs
}

// ConnectedComponents returns the components of the graph. Components
// are ordered by their smallest member and members ascend within each
// component.
func (g *Graph) ConnectedComponents() [][]int64 {
	return g.componentsExcluding(nil, nil)
}

// componentsExcluding runs BFS with the given nodes and edges treated
// as absent. Either set may be nil. Excluded nodes never appear in any
// component; a node whose every edge is cut forms a singleton.
func (g *Graph) componentsExcluding(cutNodes map[int64]struct{}, cutEdges map[[2]int64]struct{}) [][]int64 {
	visited := make(map[int64]struct{}, len(g.ids))
	var comps [][]int64
	for _, seed := range g.ids {
		if _, off := cutNodes[seed]; off {
			continue
		}
		if _, seen := visited[seed]; seen {
			continue
		}
		visited[seed] = struct{}{}
		comp := []int64{seed}
		queue := []int64{seed}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			for u := range g.adj[v] {
				if _, off := cutNodes[u]; off {
					continue
				}
				if cutEdges != nil {
					if _, off := cutEdges[edgeKey(v, u)]; off {
						continue
					}
				}
				if _, seen := visited[u]; seen {
					continue
				}
				visited[u] = struct{}{}
				comp = append(comp, u)
				queue = append(queue, u)
			}
		}
		slices.Sort(comp)
		comps = append(comps, comp)
	}
	return comps
}

// edgeKey normalizes an undirected edge to its (low, high) form.
func edgeKey(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}
