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
	"iter"
	"slices"

	"github.com/AleutianAI/trawl/services/miner/typespec"
)

// NodeID identifies a node in the hypergraph. IDs are caller-assigned
// and carry no ordering semantics beyond tie-breaking.
type NodeID int64

// GraphState represents the lifecycle state of a graph.
type GraphState int

const (
	// Building indicates the graph is accepting nodes and edges.
	Building GraphState = iota
	// ReadOnly indicates the graph is frozen and immutable.
	ReadOnly
)

// String returns a human-readable state name.
func (s GraphState) String() string {
	switch s {
	case Building:
		return "building"
	case ReadOnly:
		return "read-only"
	default:
		return "unknown"
	}
}

// Edge is a single input tuple for graph construction. A and B are the
// endpoint node IDs, TypeA and TypeB their declared type names, and
// Relation the relation name. Core-core edges use typespec.CoreRelation.
// Orientation does not matter; the builder normalizes endpoints against
// the spec.
type Edge struct {
	A        NodeID `json:"a"`
	TypeA    string `json:"type_a"`
	B        NodeID `json:"b"`
	TypeB    string `json:"type_b"`
	Relation string `json:"relation"`
}

// node is the internal adjacency record. Neighbor sets are indexed by
// relation slot: declared relations use their RelationID, the implicit
// core-core relation uses slot NumRelations.
type node struct {
	id     NodeID
	typ    typespec.TypeID
	rel    []map[NodeID]struct{}
	ties   map[NodeID]int
	degree int
}

// Graph is a typed hypergraph. It is mutable only through a Builder;
// after Freeze() every method is safe for unsynchronized concurrent use.
type Graph struct {
	spec  *typespec.Spec
	nodes map[NodeID]*node

	// Populated at Freeze(), sorted ascending by NodeID.
	coreIDs    []NodeID
	nonCoreIDs []NodeID

	edgeCount int
	state     GraphState
	options   GraphOptions

	// BuiltAtMilli records when Freeze() completed, in Unix milliseconds.
	BuiltAtMilli int64
}

// GraphStats summarizes a frozen graph.
type GraphStats struct {
	Nodes        int            `json:"nodes"`
	Edges        int            `json:"edges"`
	CoreNodes    int            `json:"core_nodes"`
	NonCoreNodes int            `json:"non_core_nodes"`
	ByType       map[string]int `json:"by_type"`
}

// coreSlot returns the adjacency slot used for core-core edges.
func (g *Graph) coreSlot() int {
	return g.spec.NumRelations()
}

// numSlots returns the number of relation slots per node.
func (g *Graph) numSlots() int {
	return g.spec.NumRelations() + 1
}

// Spec returns the type spec the graph was built against.
func (g *Graph) Spec() *typespec.Spec {
	return g.spec
}

// State returns the current lifecycle state.
func (g *Graph) State() GraphState {
	return g.state
}

// IsFrozen reports whether the graph has been frozen.
func (g *Graph) IsFrozen() bool {
	return g.state == ReadOnly
}

// NodeCount returns the total number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the total number of distinct edges. Parallel edges
// under the same relation collapse to one; the same node pair under
// different relations counts once per relation.
func (g *Graph) EdgeCount() int {
	return g.edgeCount
}

// Has reports whether a node exists.
func (g *Graph) Has(id NodeID) bool {
	_, ok := g.nodes[id]
	return ok
}

// NodeType returns the type of a node and whether it exists.
func (g *Graph) NodeType(id NodeID) (typespec.TypeID, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return 0, false
	}
	return n.typ, true
}

// IsCore reports whether a node exists and has the core type.
func (g *Graph) IsCore(id NodeID) bool {
	n, ok := g.nodes[id]
	return ok && n.typ == typespec.CoreTypeID
}

// Degree returns the number of distinct edges incident to a node, or 0
// when the node does not exist. Each (neighbor, relation) pair counts
// once.
func (g *Graph) Degree(id NodeID) int {
	n, ok := g.nodes[id]
	if !ok {
		return 0
	}
	return n.degree
}

// Ties returns the number of distinct relations connecting two nodes.
// The result is 0 when either node is absent or no edge exists.
func (g *Graph) Ties(a, b NodeID) int {
	n, ok := g.nodes[a]
	if !ok {
		return 0
	}
	return n.ties[b]
}

// Neighbors iterates the nodes adjacent to id under a single declared
// relation. Iteration order is unspecified.
func (g *Graph) Neighbors(id NodeID, rel typespec.RelationID) iter.Seq[NodeID] {
	return func(yield func(NodeID) bool) {
		n, ok := g.nodes[id]
		if !ok || int(rel) < 0 || int(rel) >= g.spec.NumRelations() {
			return
		}
		for v := range n.rel[rel] {
			if !yield(v) {
				return
			}
		}
	}
}

// CoreNeighbors iterates the core nodes adjacent to id under the
// implicit core-core relation. Iteration order is unspecified.
func (g *Graph) CoreNeighbors(id NodeID) iter.Seq[NodeID] {
	return func(yield func(NodeID) bool) {
		n, ok := g.nodes[id]
		if !ok {
			return
		}
		for v := range n.rel[g.coreSlot()] {
			if !yield(v) {
				return
			}
		}
	}
}

// NeighborTies iterates every neighbor of id together with the number
// of distinct relations tying the pair. Iteration order is unspecified;
// callers needing determinism must collect and sort.
func (g *Graph) NeighborTies(id NodeID) iter.Seq2[NodeID, int] {
	return func(yield func(NodeID, int) bool) {
		n, ok := g.nodes[id]
		if !ok {
			return
		}
		for v, k := range n.ties {
			if !yield(v, k) {
				return
			}
		}
	}
}

// CoreIDs returns the core node IDs sorted ascending. The slice is
// owned by the graph and must not be modified. Empty until Freeze().
func (g *Graph) CoreIDs() []NodeID {
	return g.coreIDs
}

// NonCoreIDs returns the non-core node IDs sorted ascending. The slice
// is owned by the graph and must not be modified. Empty until Freeze().
func (g *Graph) NonCoreIDs() []NodeID {
	return g.nonCoreIDs
}

// CoreCount returns the number of core nodes in a frozen graph.
func (g *Graph) CoreCount() int {
	return len(g.coreIDs)
}

// NonCoreCount returns the number of non-core nodes in a frozen graph.
func (g *Graph) NonCoreCount() int {
	return len(g.nonCoreIDs)
}

// Stats returns summary counts for the graph. Safe to call at any
// lifecycle state; type histogram keys are declared type names.
func (g *Graph) Stats() GraphStats {
	st := GraphStats{
		Nodes:  len(g.nodes),
		Edges:  g.edgeCount,
		ByType: make(map[string]int, g.spec.NumNonCoreTypes()+1),
	}
	for _, n := range g.nodes {
		if n.typ == typespec.CoreTypeID {
			st.CoreNodes++
		} else {
			st.NonCoreNodes++
		}
		st.ByType[g.spec.TypeName(n.typ)]++
	}
	return st
}

// freezeIndexes collects and sorts the ID slices. Called exactly once
// by Builder.Freeze and by internal rebuilds.
func (g *Graph) freezeIndexes() {
	g.coreIDs = g.coreIDs[:0]
	g.nonCoreIDs = g.nonCoreIDs[:0]
	for id, n := range g.nodes {
		if n.typ == typespec.CoreTypeID {
			g.coreIDs = append(g.coreIDs, id)
		} else {
			g.nonCoreIDs = append(g.nonCoreIDs, id)
		}
	}
	slices.Sort(g.coreIDs)
	slices.Sort(g.nonCoreIDs)
}
