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

// Truss is one connected component of a k-truss.
type Truss struct {
	// Nodes are the member node ids, ascending.
	Nodes []int64
	// Edges are the member edges as (low, high) pairs in lexicographic
	// order.
	Edges [][2]int64
}

// KTrusses returns the connected components of the k-truss, the maximal
// subgraph in which every edge closes at least k-2 triangles. Trusses
// are ordered by smallest member node. Meaningful for k of three or
// more; smaller k degrades to the plain connected components.
//
// Description:
//
//	Peels the (k-1)-core first, since every k-truss edge needs k-2
//	common neighbors and so both endpoints need degree k-1. Then drops
//	edges whose endpoints share fewer than k-2 surviving neighbors
//	until none remain, and groups the surviving edges by component.
func (g *Graph) KTrusses(k int) []Truss {
	removed := make(map[int64]struct{})
	g.kCores(k-1, removed)
	return g.trussesExcluding(k, removed)
}

// trussesExcluding peels edges over the subgraph that excludes removed
// nodes. The removed set is read, never written.
func (g *Graph) trussesExcluding(k int, removed map[int64]struct{}) []Truss {
	live := make(map[int64]map[int64]struct{}, len(g.ids))
	var edges [][2]int64
	for _, id := range g.ids {
		if _, off := removed[id]; off {
			continue
		}
		set := make(map[int64]struct{}, len(g.adj[id]))
		for u := range g.adj[id] {
			if _, off := removed[u]; off {
				continue
			}
			set[u] = struct{}{}
			if id < u {
				edges = append(edges, [2]int64{id, u})
			}
		}
		live[id] = set
	}
	slices.SortFunc(edges, compareEdge)

	alive := make(map[[2]int64]struct{}, len(edges))
	for _, e := range edges {
		alive[e] = struct{}{}
	}
	support := k - 2
	for {
		changed := false
		for _, e := range edges {
			if _, ok := alive[e]; !ok {
				continue
			}
			if commonNeighbors(live[e[0]], live[e[1]]) < support {
				delete(alive, e)
				delete(live[e[0]], e[1])
				delete(live[e[1]], e[0])
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	cut := make(map[[2]int64]struct{}, len(edges)-len(alive))
	for _, e := range edges {
		if _, ok := alive[e]; !ok {
			cut[e] = struct{}{}
		}
	}
	comps := g.componentsExcluding(removed, cut)
	compIndex := make(map[int64]int, len(g.ids))
	for i, comp := range comps {
		for _, id := range comp {
			compIndex[id] = i
		}
	}
	compEdges := make([][][2]int64, len(comps))
	for _, e := range edges {
		if _, ok := alive[e]; !ok {
			continue
		}
		i := compIndex[e[0]]
		compEdges[i] = append(compEdges[i], e)
	}
	var trusses []Truss
	for i, comp := range comps {
		if len(compEdges[i]) == 0 {
			continue
		}
		trusses = append(trusses, Truss{Nodes: comp, Edges: compEdges[i]})
	}
	return trusses
}

// compareEdge orders (low, high) edge pairs lexicographically.
func compareEdge(a, b [2]int64) int {
	if c := cmp.Compare(a[0], b[0]); c != 0 {
		return c
	}
	return cmp.Compare(a[1], b[1])
}
