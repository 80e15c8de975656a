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
	"context"
	"math"
	"time"
)

// Features is the structural summary the featurize command emits per
// graph. Core and truss fields count connected components of the
// subgraph at the named threshold. Float fields are truncated to three
// decimals.
type Features struct {
	Nodes            int     `json:"num_nodes"`
	Edges            int     `json:"num_edges"`
	Cores2           int     `json:"num_2_cores"`
	Cores4           int     `json:"num_4_cores"`
	Cores8           int     `json:"num_8_cores"`
	Cores16          int     `json:"num_16_cores"`
	Trusses3         int     `json:"num_3_trusses"`
	Trusses5         int     `json:"num_5_trusses"`
	Trusses9         int     `json:"num_9_trusses"`
	Trusses17        int     `json:"num_17_trusses"`
	Components       int     `json:"num_connected_components"`
	LargestComponent int     `json:"size_of_largest_cc"`
	Centrality       float64 `json:"evcent"`
	Clustering       float64 `json:"clust_coef"`
	Transitivity     float64 `json:"transitivity"`
}

// ComputeFeatures runs the full featurizer over g.
//
// Description:
//
//	Counts components, k-cores and k-trusses at doubling thresholds,
//	mean eigenvector centrality, average clustering, and transitivity.
//	The core peel accumulates across thresholds: the 4-core peel
//	resumes from the 2-core survivors, and each truss threshold reuses
//	the matching core's removals.
//
// Inputs:
//   - ctx: carries the trace span; the computation itself does not
//     block.
//   - g: the graph to summarize.
//
// Outputs:
//   - *Features: the populated summary.
//
// Thread Safety: safe for concurrent use with any other read of g.
func ComputeFeatures(ctx context.Context, g *Graph) *Features {
	start := time.Now()
	ctx, span := startFeaturizeSpan(ctx, g.NodeCount(), g.EdgeCount())
	defer span.End()

	f := &Features{Nodes: g.NodeCount(), Edges: g.EdgeCount()}
	for _, comp := range g.ConnectedComponents() {
		f.Components++
		if len(comp) > f.LargestComponent {
			f.LargestComponent = len(comp)
		}
	}

	removed := make(map[int64]struct{})
	g.kCores(2, removed)
	f.Cores2 = len(g.componentsExcluding(removed, nil))
	f.Trusses3 = len(g.trussesExcluding(3, removed))
	g.kCores(4, removed)
	f.Cores4 = len(g.componentsExcluding(removed, nil))
	f.Trusses5 = len(g.trussesExcluding(5, removed))
	g.kCores(8, removed)
	f.Cores8 = len(g.componentsExcluding(removed, nil))
	f.Trusses9 = len(g.trussesExcluding(9, removed))
	g.kCores(16, removed)
	f.Cores16 = len(g.componentsExcluding(removed, nil))
	f.Trusses17 = len(g.trussesExcluding(17, removed))

	cent := g.EigenvectorCentrality(DefaultCentralityEpsilon, DefaultCentralityMaxIter)
	if len(cent) > 0 {
		var sum float64
		for _, v := range cent {
			sum += v
		}
		f.Centrality = roundDown3(sum / float64(len(cent)))
	}
	f.Clustering = roundDown3(g.AvgClustering())
	f.Transitivity = roundDown3(g.Transitivity())

	setFeaturizeSpanResult(span, f.Components, f.LargestComponent)
	recordFeaturizeMetrics(ctx, time.Since(start))
	return f
}

// roundDown3 truncates v to three decimal places.
func roundDown3(v float64) float64 {
	return math.Floor(v*1000) / 1000
}
