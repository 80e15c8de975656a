// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package clique defines the candidate value type for typed quasi-clique
// mining, together with the scoring function that ranks candidates in a
// beam.
//
// A Candidate is an immutable snapshot of one partial clique: a set of
// core nodes, non-core nodes grouped by type, and cached edge counters.
// Expansion never mutates; WithAdded returns a new value while the
// parent stays usable, so parallel workers expand shared parents with
// no coordination beyond read-only hypergraph lookups.
//
// # Density Model
//
// Three derived densities drive scoring and reporting:
//   - global density: fraction of possible core-core edges present.
//   - local density: per core node, the fraction of its possible
//     candidate-internal edges present.
//   - type density: per non-core type, the fraction of possible
//     core-to-type edges present.
//
// Possible-edge counts between a core node and a non-core type are
// scaled by the type's relation multiplicity (the number of declared
// relations between the core type and that type), keeping every
// density within [0, 1] when a node pair can be tied by more than one
// relation. A density whose denominator is zero is defined as 1.
//
// # Thread Safety
//
// Candidates are immutable after construction and safe to share across
// goroutines.
package clique

import (
	"fmt"
	"maps"
	"slices"

	"github.com/AleutianAI/trawl/services/miner/hypergraph"
	"github.com/AleutianAI/trawl/services/miner/typespec"
)

// Candidate is one typed quasi-clique under construction. The zero
// value is not usable; construct with Seed or SeedSet and grow with
// WithAdded.
type Candidate struct {
	g       *hypergraph.Graph
	members map[hypergraph.NodeID]typespec.TypeID

	// counts[t] is the number of members of type t; the slot at
	// typespec.CoreTypeID holds the core count.
	counts []int

	// coreEdges counts core-core edges inside the candidate.
	// typeEdges[t] counts edges between core members and non-core
	// members of type t; slot 0 is unused.
	coreEdges int
	typeEdges []int

	// incident[v] is the number of candidate-internal edges at member v.
	incident map[hypergraph.NodeID]int

	// frontier holds nodes adjacent to at least one member but not
	// themselves members.
	frontier map[hypergraph.NodeID]struct{}

	key uint64
}

// Seed creates a single-node candidate.
//
// Description:
//
//	The candidate starts with zero edge counters and a frontier equal
//	to the node's neighborhood. Core and non-core nodes may both serve
//	as seeds; a non-core seed simply begins with an empty core set.
//
// Inputs:
//   - g: the frozen hypergraph to mine.
//   - id: the starting node.
//
// Outputs:
//   - *Candidate: the one-node candidate.
//   - error: ErrNilGraph or ErrUnknownNode.
func Seed(g *hypergraph.Graph, id hypergraph.NodeID) (*Candidate, error) {
	return SeedSet(g, []hypergraph.NodeID{id})
}

// SeedSet creates a candidate from an explicit node set, such as a
// caller-supplied starting clique.
//
// Description:
//
//	Nodes are inserted in slice order with counters maintained
//	incrementally, exactly as WithAdded would. Duplicate ids collapse
//	silently. The first unknown node aborts with ErrUnknownNode before
//	any search work happens.
//
// Inputs:
//   - g: the frozen hypergraph to mine.
//   - ids: the starting nodes; must be non-empty.
//
// Outputs:
//   - *Candidate: the seeded candidate.
//   - error: ErrNilGraph, ErrEmptySeed, or ErrUnknownNode.
func SeedSet(g *hypergraph.Graph, ids []hypergraph.NodeID) (*Candidate, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	if len(ids) == 0 {
		return nil, ErrEmptySeed
	}
	nt := g.Spec().NumNonCoreTypes()
	c := &Candidate{
		g:         g,
		members:   make(map[hypergraph.NodeID]typespec.TypeID, len(ids)),
		counts:    make([]int, nt+1),
		typeEdges: make([]int, nt+1),
		incident:  make(map[hypergraph.NodeID]int, len(ids)),
		frontier:  make(map[hypergraph.NodeID]struct{}),
	}
	for _, id := range ids {
		if c.Has(id) {
			continue
		}
		typ, ok := g.NodeType(id)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
		}
		c.add(id, typ)
	}
	return c, nil
}

// WithAdded returns a new candidate containing id, leaving the receiver
// untouched.
//
// Description:
//
//	Counters update incrementally from one pass over the node's
//	adjacency: exactly the edges the node contributes to existing
//	members are added, classified as core-core or per-non-core-type.
//
// Inputs:
//   - id: the node to insert; normally drawn from Expansion().
//
// Outputs:
//   - *Candidate: the grown candidate.
//   - error: ErrInvalidExpansion when id is already a member,
//     ErrUnknownNode when the graph does not contain it.
func (c *Candidate) WithAdded(id hypergraph.NodeID) (*Candidate, error) {
	if c.Has(id) {
		return nil, fmt.Errorf("%w: node %d already present", ErrInvalidExpansion, id)
	}
	typ, ok := c.g.NodeType(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	cp := c.clone()
	cp.add(id, typ)
	return cp, nil
}

// add inserts a node and updates every cached counter in one adjacency
// pass. Callers guarantee the node is absent and exists in the graph.
func (c *Candidate) add(id hypergraph.NodeID, typ typespec.TypeID) {
	c.members[id] = typ
	c.counts[typ]++
	c.incident[id] = 0
	c.key += splitmix64(uint64(id))
	delete(c.frontier, id)

	for v, k := range c.g.NeighborTies(id) {
		vt, in := c.members[v]
		if !in {
			c.frontier[v] = struct{}{}
			continue
		}
		c.incident[id] += k
		c.incident[v] += k
		switch {
		case typ == typespec.CoreTypeID && vt == typespec.CoreTypeID:
			c.coreEdges += k
		case typ == typespec.CoreTypeID:
			c.typeEdges[vt] += k
		default:
			c.typeEdges[typ] += k
		}
	}
}

// clone copies the candidate for an expansion step.
func (c *Candidate) clone() *Candidate {
	return &Candidate{
		g:         c.g,
		members:   maps.Clone(c.members),
		counts:    slices.Clone(c.counts),
		coreEdges: c.coreEdges,
		typeEdges: slices.Clone(c.typeEdges),
		incident:  maps.Clone(c.incident),
		frontier:  maps.Clone(c.frontier),
		key:       c.key,
	}
}

// Graph returns the hypergraph the candidate was seeded against.
func (c *Candidate) Graph() *hypergraph.Graph {
	return c.g
}

// Has reports whether id is a member.
func (c *Candidate) Has(id hypergraph.NodeID) bool {
	_, in := c.members[id]
	return in
}

// Size returns the total member count.
func (c *Candidate) Size() int {
	return len(c.members)
}

// CoreCount returns the number of core members.
func (c *Candidate) CoreCount() int {
	return c.counts[typespec.CoreTypeID]
}

// NonCoreCount returns the number of non-core members.
func (c *Candidate) NonCoreCount() int {
	return len(c.members) - c.CoreCount()
}

// Count returns the number of members of one type. The core type's slot
// reports the core count; out-of-range types report 0.
func (c *Candidate) Count(t typespec.TypeID) int {
	if int(t) < 0 || int(t) >= len(c.counts) {
		return 0
	}
	return c.counts[t]
}

// Key returns the candidate's canonical node-set key. Two candidates
// holding the same node set always share a key regardless of insertion
// order.
func (c *Candidate) Key() uint64 {
	return c.key
}

// CoreEdges returns the cached count of core-core edges inside the
// candidate.
func (c *Candidate) CoreEdges() int {
	return c.coreEdges
}

// TypeEdges returns the cached count of edges between core members and
// non-core members of type t. Out-of-range types report 0.
func (c *Candidate) TypeEdges(t typespec.TypeID) int {
	if int(t) <= 0 || int(t) >= len(c.typeEdges) {
		return 0
	}
	return c.typeEdges[t]
}

// CoreMembers returns the core node ids sorted ascending.
func (c *Candidate) CoreMembers() []hypergraph.NodeID {
	out := make([]hypergraph.NodeID, 0, c.CoreCount())
	for id, typ := range c.members {
		if typ == typespec.CoreTypeID {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// NonCoreMembers returns the non-core node ids sorted ascending.
func (c *Candidate) NonCoreMembers() []hypergraph.NodeID {
	out := make([]hypergraph.NodeID, 0, c.NonCoreCount())
	for id, typ := range c.members {
		if typ != typespec.CoreTypeID {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// Expansion returns the candidate's growth frontier: every node
// adjacent to at least one member and not itself a member, sorted
// ascending.
func (c *Candidate) Expansion() []hypergraph.NodeID {
	out := make([]hypergraph.NodeID, 0, len(c.frontier))
	for v := range c.frontier {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// GlobalDensity returns the fraction of possible core-core edges
// present among core members. Defined as 1 when fewer than two core
// members exist.
func (c *Candidate) GlobalDensity() float64 {
	n := c.CoreCount()
	if n < 2 {
		return 1
	}
	return float64(c.coreEdges) / float64(n*(n-1)/2)
}

// LocalDensity returns one core member's local density: its
// candidate-internal edge count over the possible count given the
// other core members and the multiplicity-scaled non-core composition.
// The second result is false when id is not a core member.
func (c *Candidate) LocalDensity(id hypergraph.NodeID) (float64, bool) {
	typ, in := c.members[id]
	if !in || typ != typespec.CoreTypeID {
		return 0, false
	}
	return c.coreLocalDensity(id), true
}

// coreLocalDensity computes local density for a known core member.
func (c *Candidate) coreLocalDensity(id hypergraph.NodeID) float64 {
	spec := c.g.Spec()
	possible := c.CoreCount() - 1
	for t := 1; t < len(c.counts); t++ {
		possible += c.counts[t] * spec.Multiplicity(typespec.TypeID(t))
	}
	if possible == 0 {
		return 1
	}
	return float64(c.incident[id]) / float64(possible)
}

// MinLocalDensity returns the minimum local density across core
// members, or 1 when the candidate has none.
func (c *Candidate) MinLocalDensity() float64 {
	min := 1.0
	for id, typ := range c.members {
		if typ != typespec.CoreTypeID {
			continue
		}
		if d := c.coreLocalDensity(id); d < min {
			min = d
		}
	}
	return min
}

// TypeDensity returns the fraction of possible core-to-non-core edges
// present for one non-core type, scaled by the type's relation
// multiplicity. Defined as 1 when no such edge is possible, including
// for out-of-range types.
func (c *Candidate) TypeDensity(t typespec.TypeID) float64 {
	if int(t) <= 0 || int(t) >= len(c.counts) {
		return 1
	}
	possible := c.CoreCount() * c.counts[t] * c.g.Spec().Multiplicity(t)
	if possible == 0 {
		return 1
	}
	return float64(c.typeEdges[t]) / float64(possible)
}
