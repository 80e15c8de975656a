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

// TriangleCount returns the number of triangles through id.
func (g *Graph) TriangleCount(id int64) int {
	nbrs, ok := g.adj[id]
	if !ok {
		return 0
	}
	// Each triangle (id, u, w) is seen once from u and once from w.
	total := 0
	for u := range nbrs {
		total += commonNeighbors(g.adj[u], nbrs)
	}
	return total / 2
}

// ClusteringCoefficient returns the local clustering coefficient of id,
// the fraction of the node's neighbor pairs that are themselves
// adjacent. The second return is false when the node has fewer than two
// neighbors and the coefficient is undefined.
func (g *Graph) ClusteringCoefficient(id int64) (float64, bool) {
	nbrs := g.adj[id]
	d := len(nbrs)
	if d < 2 {
		return 0, false
	}
	links := 0
	for u := range nbrs {
		links += commonNeighbors(g.adj[u], nbrs)
	}
	// links counts every closed pair twice, as does d*(d-1) count the
	// unordered pairs.
	return float64(links) / float64(d*(d-1)), true
}

// AvgClustering averages the defined local coefficients. A graph with
// no node of degree two or more reports zero.
func (g *Graph) AvgClustering() float64 {
	var sum float64
	defined := 0
	for _, id := range g.ids {
		if c, ok := g.ClusteringCoefficient(id); ok {
			sum += c
			defined++
		}
	}
	if defined == 0 {
		return 0
	}
	return sum / float64(defined)
}

// Transitivity returns the global ratio of closed triples to connected
// triples. A graph with no connected triple reports zero.
func (g *Graph) Transitivity() float64 {
	triangles := 0
	triples := 0
	for _, id := range g.ids {
		triangles += g.TriangleCount(id)
		d := len(g.adj[id])
		triples += d * (d - 1) / 2
	}
	if triples == 0 {
		return 0
	}
	// Summing per-node triangle counts tallies each triangle three
	// times, matching the three triples it closes.
	return float64(triangles) / float64(triples)
}

// commonNeighbors counts the ids present in both sets.
func commonNeighbors(a, b map[int64]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for u := range a {
		if _, ok := b[u]; ok {
			n++
		}
	}
	return n
}
