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

// Default capacity limits for graph construction.
const (
	// DefaultMaxNodes limits graphs to 1M nodes.
	DefaultMaxNodes = 1_000_000

	// DefaultMaxEdges limits graphs to 10M edges.
	DefaultMaxEdges = 10_000_000
)

// GraphOptions configures graph capacity limits.
type GraphOptions struct {
	// MaxNodes limits the number of nodes (0 = use default).
	MaxNodes int

	// MaxEdges limits the number of edges (0 = use default).
	MaxEdges int
}

// DefaultGraphOptions returns the default capacity configuration.
func DefaultGraphOptions() GraphOptions {
	return GraphOptions{
		MaxNodes: DefaultMaxNodes,
		MaxEdges: DefaultMaxEdges,
	}
}

// GraphOption is a functional option for graph construction.
type GraphOption func(*GraphOptions)

// WithMaxNodes sets the maximum node capacity.
func WithMaxNodes(n int) GraphOption {
	return func(o *GraphOptions) {
		if n > 0 {
			o.MaxNodes = n
		}
	}
}

// WithMaxEdges sets the maximum edge capacity.
func WithMaxEdges(n int) GraphOption {
	return func(o *GraphOptions) {
		if n > 0 {
			o.MaxEdges = n
		}
	}
}

// Builder accumulates nodes and edges and produces an immutable Graph.
// Not safe for concurrent use.
type Builder struct {
	g      *Graph
	frozen bool
}

// NewBuilder creates a builder for the given type spec.
//
// Description:
//
//	Initializes an empty graph in the Building state. Nodes normally
//	materialize implicitly from AddEdge; AddNode exists for declaring
//	isolated nodes ahead of edges (seed lists, degree baselines).
//
// Inputs:
//   - spec: the type spec edges will be validated against. Must be
//     non-nil.
//   - opts: optional capacity overrides.
//
// Outputs:
//   - *Builder: ready to accept edges.
//
// Example:
//
//	b := hypergraph.NewBuilder(spec, hypergraph.WithMaxNodes(50_000))
//	for _, e := range edges {
//	    if err := b.AddEdge(e); err != nil { ... }
//	}
//	g, err := b.Freeze(ctx)
func NewBuilder(spec *typespec.Spec, opts ...GraphOption) *Builder {
	options := DefaultGraphOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Builder{
		g: &Graph{
			spec:    spec,
			nodes:   make(map[NodeID]*node),
			state:   Building,
			options: options,
		},
	}
}

// AddNode declares a node with an explicit type. Adding an existing
// node with the same type is a no-op; a different type returns
// ErrTypeConflict.
func (b *Builder) AddNode(id NodeID, typeName string) error {
	if b.frozen {
		return ErrGraphFrozen
	}
	typ, ok := b.g.spec.TypeIDOf(typeName)
	if !ok {
		return fmt.Errorf("%w: node %d has undeclared type %q", ErrInvalidNode, id, typeName)
	}
	_, err := b.ensureNode(id, typ)
	return err
}

// AddEdge validates an edge against the spec and inserts it. Endpoint
// nodes materialize on first mention. Exact duplicate edges (same
// endpoints, same relation) are idempotent no-ops.
//
// Errors:
//   - ErrGraphFrozen: Freeze() was already called.
//   - ErrInvalidEdge: self-loop, undeclared type, or undeclared
//     relation for the endpoint types.
//   - ErrTypeConflict: an endpoint was previously seen with a
//     different type.
//   - ErrMaxNodesExceeded, ErrMaxEdgesExceeded: capacity reached.
func (b *Builder) AddEdge(e Edge) error {
	if b.frozen {
		return ErrGraphFrozen
	}
	if e.A == e.B {
		return fmt.Errorf("%w: self-loop on node %d", ErrInvalidEdge, e.A)
	}

	ends, err := b.g.spec.ResolveEdge(e.TypeA, e.TypeB, e.Relation)
	if err != nil {
		return fmt.Errorf("%w: (%d %q)-[%q]-(%d %q): %v",
			ErrInvalidEdge, e.A, e.TypeA, e.Relation, e.B, e.TypeB, err)
	}

	var slot int
	var typA, typB typespec.TypeID
	if ends.NonCoreType == typespec.CoreTypeID {
		slot = b.g.coreSlot()
		typA, typB = typespec.CoreTypeID, typespec.CoreTypeID
	} else {
		slot = int(ends.Relation)
		if ends.Swapped {
			typA, typB = ends.NonCoreType, typespec.CoreTypeID
		} else {
			typA, typB = typespec.CoreTypeID, ends.NonCoreType
		}
	}

	na, err := b.ensureNode(e.A, typA)
	if err != nil {
		return err
	}
	nb, err := b.ensureNode(e.B, typB)
	if err != nil {
		return err
	}

	if na.rel[slot] != nil {
		if _, dup := na.rel[slot][e.B]; dup {
			return nil
		}
	}
	if b.g.edgeCount >= b.g.options.MaxEdges {
		return fmt.Errorf("%w: limit %d", ErrMaxEdgesExceeded, b.g.options.MaxEdges)
	}

	link(na, e.B, slot)
	link(nb, e.A, slot)
	b.g.edgeCount++
	return nil
}

// ensureNode fetches or creates a node, enforcing type consistency and
// the node capacity limit.
func (b *Builder) ensureNode(id NodeID, typ typespec.TypeID) (*node, error) {
	if n, ok := b.g.nodes[id]; ok {
		if n.typ != typ {
			return nil, fmt.Errorf("%w: node %d is %q, not %q",
				ErrTypeConflict, id, b.g.spec.TypeName(n.typ), b.g.spec.TypeName(typ))
		}
		return n, nil
	}
	if len(b.g.nodes) >= b.g.options.MaxNodes {
		return nil, fmt.Errorf("%w: limit %d", ErrMaxNodesExceeded, b.g.options.MaxNodes)
	}
	n := &node{
		id:   id,
		typ:  typ,
		rel:  make([]map[NodeID]struct{}, b.g.numSlots()),
		ties: make(map[NodeID]int),
	}
	b.g.nodes[id] = n
	return n, nil
}

// link inserts a directed half-edge into a node's adjacency.
func link(n *node, to NodeID, slot int) {
	if n.rel[slot] == nil {
		n.rel[slot] = make(map[NodeID]struct{})
	}
	n.rel[slot][to] = struct{}{}
	n.ties[to]++
	n.degree++
}

// Freeze finalizes the graph and transitions it to ReadOnly.
//
// Description:
//
//	Sorts the per-kind node indexes, stamps the build time, and hands
//	out the immutable graph. The builder cannot be reused afterwards.
//
// Inputs:
//   - ctx: checked once before finalizing; a cancelled context returns
//     ErrBuildCancelled.
//
// Outputs:
//   - *Graph: the frozen graph.
//   - error: ErrBuildCancelled or ErrGraphFrozen on double freeze.
//
// Thread Safety: must be called from the single building goroutine.
func (b *Builder) Freeze(ctx context.Context) (*Graph, error) {
	if b.frozen {
		return nil, ErrGraphFrozen
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildCancelled, err)
	}

	start := time.Now()
	ctx, span := startBuildSpan(ctx, len(b.g.nodes), b.g.edgeCount)
	defer span.End()

	b.g.freezeIndexes()
	b.g.state = ReadOnly
	b.g.BuiltAtMilli = time.Now().UnixMilli()
	b.frozen = true

	recordBuildMetrics(ctx, time.Since(start), len(b.g.nodes), b.g.edgeCount)
	setBuildSpanResult(span, len(b.g.coreIDs), len(b.g.nonCoreIDs))
	return b.g, nil
}

// Build constructs a frozen graph from a slice of edges in one call.
//
// Description:
//
//	Convenience wrapper around NewBuilder + AddEdge + Freeze. The first
//	invalid edge aborts the build; callers wanting to skip bad rows
//	should drive a Builder directly.
//
// Inputs:
//   - ctx: cancellation checked between edges every cancelCheckStride
//     insertions and again at Freeze.
//   - spec: the type spec to validate against.
//   - edges: input tuples in any order.
//   - opts: optional capacity overrides.
//
// Outputs:
//   - *Graph: the frozen graph.
//   - error: the first construction error, annotated with the edge
//     index.
func Build(ctx context.Context, spec *typespec.Spec, edges []Edge, opts ...GraphOption) (*Graph, error) {
	b := NewBuilder(spec, opts...)
	for i, e := range edges {
		if i%cancelCheckStride == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBuildCancelled, err)
			}
		}
		if err := b.AddEdge(e); err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}
	}
	return b.Freeze(ctx)
}

// cancelCheckStride bounds how many edges are inserted between context
// cancellation checks during a bulk build.
const cancelCheckStride = 4096
