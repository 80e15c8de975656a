// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hypergraph provides the typed hypergraph store for clique mining.
//
// A typed hypergraph holds nodes of one core type and several non-core
// types, with edges validated against a typespec.Spec: every edge either
// connects a core node to a non-core node under a declared relation, or
// connects two core nodes under the implicit core-core relation.
//
// # Ownership Model
//
// The graph owns all of its internal state:
//   - Edges are copied in by value; the caller keeps nothing aliased.
//   - Neighbor sets returned by query iterators must not be retained
//     across graph rebuilds (Prune returns a new graph).
//
// # Thread Safety
//
// A Builder is NOT safe for concurrent use. It is designed for:
//   - Single-writer access during the build phase (AddNode, AddEdge calls)
//   - Read-only access through the Graph after Freeze() is called
//
// After Freeze(), the graph can be safely read from any number of
// goroutines with no locking; no writer exists post-construction.
//
// # Lifecycle
//
// A typical graph lifecycle:
//  1. Create with NewBuilder(spec)
//  2. Feed with AddEdge() calls (nodes materialize from edges)
//  3. Call Freeze() to obtain the immutable *Graph
//  4. Query with Neighbors(), Degree(), Ties(), etc.
//  5. Optionally derive a reduced graph with Prune()
package hypergraph

import "errors"

// Sentinel errors for hypergraph operations.
var (
	// ErrGraphFrozen is returned when attempting to modify a frozen graph.
	// Once Freeze() is called the graph becomes read-only and no further
	// nodes or edges can be added.
	ErrGraphFrozen = errors.New("hypergraph is frozen and cannot be modified")

	// ErrInvalidEdge is returned when an edge violates the type spec:
	// undeclared endpoint type, undeclared relation for the endpoint
	// types, or a self-loop.
	ErrInvalidEdge = errors.New("edge violates type spec")

	// ErrInvalidNode is returned when adding a node with an undeclared
	// type name.
	ErrInvalidNode = errors.New("invalid node")

	// ErrTypeConflict is returned when an edge or node re-declares an
	// existing node with a different type.
	ErrTypeConflict = errors.New("node type conflict")

	// ErrMaxNodesExceeded is returned when the graph has reached its
	// configured maximum node capacity.
	ErrMaxNodesExceeded = errors.New("maximum node count exceeded")

	// ErrMaxEdgesExceeded is returned when the graph has reached its
	// configured maximum edge capacity.
	ErrMaxEdgesExceeded = errors.New("maximum edge count exceeded")

	// ErrBuildCancelled is returned when a build operation is cancelled
	// via context.
	ErrBuildCancelled = errors.New("build cancelled")

	// ErrNotFrozen is returned by operations that require a frozen graph,
	// such as Prune.
	ErrNotFrozen = errors.New("hypergraph is still building")
)
