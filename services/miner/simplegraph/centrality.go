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
	"gonum.org/v1/gonum/mat"
)

// Power iteration defaults used by the featurizer.
const (
	DefaultCentralityEpsilon = 0.001
	DefaultCentralityMaxIter = 1000
)

// EigenvectorCentrality returns each node's eigenvector centrality,
// normalized so the most central node scores one.
//
// Description:
//
//	Power iteration over the adjacency matrix: the vector starts
//	uniform, is repeatedly multiplied through, and is rescaled by its
//	maximum entry each round. Iteration stops when the L1 distance
//	between successive vectors drops to eps or maxIter rounds have
//	run. An edgeless graph scores every node zero.
//
// Inputs:
//   - eps: convergence threshold on the L1 step distance.
//   - maxIter: iteration cap for graphs that converge slowly.
//
// Outputs:
//   - map[int64]float64: centrality keyed by node id, one entry per
//     node.
func (g *Graph) EigenvectorCentrality(eps float64, maxIter int) map[int64]float64 {
	n := len(g.ids)
	out := make(map[int64]float64, n)
	if n == 0 {
		return out
	}
	index := make(map[int64]int, n)
	for i, id := range g.ids {
		index[id] = i
	}
	adj := mat.NewSymDense(n, nil)
	for i, id := range g.ids {
		for u := range g.adj[id] {
			if j := index[u]; j > i {
				adj.SetSym(i, j, 1)
			}
		}
	}
	prev := mat.NewVecDense(n, nil)
	cur := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		cur.SetVec(i, 1/float64(n))
	}
	var diff mat.VecDense
	for iter := 0; iter < maxIter; iter++ {
		prev.CopyVec(cur)
		cur.MulVec(adj, prev)
		max := mat.Max(cur)
		if max == 0 {
			break
		}
		cur.ScaleVec(1/max, cur)
		diff.SubVec(prev, cur)
		if mat.Norm(&diff, 1) <= eps {
			break
		}
	}
	for i, id := range g.ids {
		out[id] = cur.AtVec(i)
	}
	return out
}
