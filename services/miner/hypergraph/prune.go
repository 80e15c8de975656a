// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hypergraph

import (
	"context"
	"fmt"
	"time"

	"github.com/AleutianAI/trawl/services/miner/typespec"
)

// Prune returns a reduced frozen graph in which every core node has
// degree at least minDegree and every non-core node retains at least
// one edge.
//
// Description:
//
//	Removing a low-degree core node can push its neighbors below the
//	threshold, so pruning peels iteratively until a fixed point. Only
//	core nodes are held to minDegree; non-core nodes are dropped once
//	all their edges are gone. The receiver is never modified.
//
// Inputs:
//   - ctx: checked once per peel round.
//   - minDegree: the minimum surviving core degree. Values <= 0 return
//     the receiver unchanged.
//
// Outputs:
//   - *Graph: a new frozen graph, or the receiver when minDegree <= 0
//     or nothing was removed.
//   - error: ErrNotFrozen when called before Freeze, ErrBuildCancelled
//     on context cancellation.
//
// Thread Safety: safe for concurrent use on a frozen graph.
func (g *Graph) Prune(ctx context.Context, minDegree int) (*Graph, error) {
	if !g.IsFrozen() {
		return nil, ErrNotFrozen
	}
	if minDegree <= 0 {
		return g, nil
	}

	start := time.Now()
	ctx, span := startPruneSpan(ctx, minDegree, len(g.nodes))
	defer span.End()

	// Live degree per node; removals decrement neighbors.
	degrees := make(map[NodeID]int, len(g.nodes))
	for id, n := range g.nodes {
		degrees[id] = n.degree
	}
	removed := make(map[NodeID]struct{})

	// Seed the peel queue with core nodes already under threshold.
	var queue []NodeID
	for _, id := range g.coreIDs {
		if degrees[id] < minDegree {
			queue = append(queue, id)
			removed[id] = struct{}{}
		}
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBuildCancelled, err)
		}
		id := queue[0]
		queue = queue[1:]

		for v, k := range g.nodes[id].ties {
			if _, gone := removed[v]; gone {
				continue
			}
			degrees[v] -= k
			nv := g.nodes[v]
			if nv.typ == typespec.CoreTypeID {
				if degrees[v] < minDegree {
					queue = append(queue, v)
					removed[v] = struct{}{}
				}
			} else if degrees[v] == 0 {
				removed[v] = struct{}{}
			}
		}
	}

	if len(removed) == 0 {
		setPruneSpanResult(span, 0, len(g.nodes))
		return g, nil
	}

	out := g.filtered(func(id NodeID) bool {
		_, gone := removed[id]
		return !gone
	})

	recordPruneMetrics(ctx, time.Since(start), len(removed))
	setPruneSpanResult(span, len(removed), len(out.nodes))
	return out, nil
}

// filtered copies the graph keeping only nodes accepted by keep,
// together with edges whose endpoints both survive. The result is
// frozen.
func (g *Graph) filtered(keep func(NodeID) bool) *Graph {
	out := &Graph{
		spec:    g.spec,
		nodes:   make(map[NodeID]*node),
		options: g.options,
		state:   ReadOnly,
	}
	for id, n := range g.nodes {
		if !keep(id) {
			continue
		}
		cp := &node{
			id:   id,
			typ:  n.typ,
			rel:  make([]map[NodeID]struct{}, len(n.rel)),
			ties: make(map[NodeID]int),
		}
		for slot, set := range n.rel {
			if set == nil {
				continue
			}
			for v := range set {
				if !keep(v) {
					continue
				}
				if cp.rel[slot] == nil {
					cp.rel[slot] = make(map[NodeID]struct{})
				}
				cp.rel[slot][v] = struct{}{}
				cp.ties[v]++
				cp.degree++
				// Each surviving edge is visited from both ends.
				if id < v {
					out.edgeCount++
				}
			}
		}
		out.nodes[id] = cp
	}
	out.freezeIndexes()
	out.BuiltAtMilli = time.Now().UnixMilli()
	return out
}
