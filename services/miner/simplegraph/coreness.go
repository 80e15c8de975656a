// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package simplegraph

import (
	"cmp"
	"slices"
)

// KCores returns the connected components of the k-core, the maximal
// subgraph in which every node keeps at least k neighbors. Components
// are ordered by smallest member, members ascending. A k of zero or
// less returns the components of the whole graph.
func (g *Graph) KCores(k int) [][]int64 {
	removed := make(map[int64]struct{})
	g.kCores(k, removed)
	return g.componentsExcluding(removed, nil)
}

// kCores extends removed until every surviving node has at least k
// surviving neighbors. Nodes already in removed stay removed, so
// successive calls with increasing k continue peeling from the previous
// core instead of starting over.
func (g *Graph) kCores(k int, removed map[int64]struct{}) {
	if k <= 0 {
		return
	}
	deg := make(map[int64]int, len(g.ids))
	var queue []int64
	for _, id := range g.ids {
		if _, off := removed[id]; off {
			continue
		}
		d := 0
		for u := range g.adj[id] {
			if _, off := removed[u]; !off {
				d++
			}
		}
		deg[id] = d
		if d < k {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		v := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if _, off := removed[v]; off {
			continue
		}
		removed[v] = struct{}{}
		for u := range g.adj[v] {
			if _, off := removed[u]; off {
				continue
			}
			deg[u]--
			if deg[u] == k-1 {
				queue = append(queue, u)
			}
		}
	}
}

// CorenessValues returns each node's coreness, the largest k for which
// the node belongs to the k-core.
//
// Description:
//
//	Runs the Batagelj-Zaversnik bin-sort peel: nodes are ordered by
//	degree, bucket boundaries track where each degree class starts, and
//	processing a node demotes its not-yet-processed higher-coreness
//	neighbors by one bucket. Runs in O(nodes + edges).
//
// Outputs:
//   - map[int64]int: coreness keyed by node id, one entry per node.
func (g *Graph) CorenessValues() map[int64]int {
	n := len(g.ids)
	coreness := make(map[int64]int, n)
	if n == 0 {
		return coreness
	}
	for _, id := range g.ids {
		coreness[id] = len(g.adj[id])
	}
	nodes := slices.Clone(g.ids)
	slices.SortFunc(nodes, func(a, b int64) int {
		if c := cmp.Compare(coreness[a], coreness[b]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	binStarts := degreeBinStarts(nodes, coreness)
	pos := make(map[int64]int, n)
	for i, id := range nodes {
		pos[id] = i
	}
	live := make(map[int64]map[int64]struct{}, n)
	for _, id := range g.ids {
		set := make(map[int64]struct{}, len(g.adj[id]))
		for u := range g.adj[id] {
			set[u] = struct{}{}
		}
		live[id] = set
	}
	for i := 0; i < n; i++ {
		v := nodes[i]
		nbrs := make([]int64, 0, len(live[v]))
		for u := range live[v] {
			nbrs = append(nbrs, u)
		}
		slices.Sort(nbrs)
		for _, u := range nbrs {
			if coreness[u] <= coreness[v] {
				continue
			}
			delete(live[u], v)
			du := coreness[u]
			pu := pos[u]
			pw := binStarts[du]
			w := nodes[pw]
			nodes[pu], nodes[pw] = nodes[pw], nodes[pu]
			pos[u], pos[w] = pw, pu
			binStarts[du]++
			coreness[u]--
		}
	}
	return coreness
}

// degreeBinStarts returns, for each degree value d, the index in the
// degree-sorted node slice where nodes of degree d begin. Degrees
// absent from the graph inherit the next class's start.
func degreeBinStarts(nodes []int64, degree map[int64]int) []int {
	starts := []int{0}
	current := 0
	for i, id := range nodes {
		d := degree[id]
		if d > current {
			for j := current + 1; j <= d; j++ {
				starts = append(starts, i)
			}
			current = d
		}
	}
	return starts
}
