// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package beam runs the quasi-clique beam search over a frozen typed
// hypergraph.
//
// # Search Model
//
// The engine keeps a fixed-width beam of candidate cliques. Each epoch
// every not-yet-expanded candidate emits one child per frontier node,
// the children are scored, merged with the unexpanded originals,
// deduplicated by canonical key, ranked, and the beam is truncated back
// to its configured width. Because the originals always survive the
// merge, the head of the beam never regresses and the best score is
// non-decreasing across epochs. A run ends when the epoch budget is
// exhausted, when the best score has sat still for the configured
// stagnation window, or when every beam entry has already been expanded
// and the beam therefore reached a fixed point.
//
// # Thread Safety
//
// Expansion work is spread across a bounded worker pool. Workers share
// only the read-only hypergraph and the read-only visited-key set;
// every candidate they produce is a fresh value, and all merging,
// ranking, and best-result tracking happens on the calling goroutine at
// the epoch barrier. An Engine itself is not safe for concurrent Run
// calls; build one Engine per run or serialize callers.
//
// # Determinism
//
// Seed sampling draws from a PCG generator keyed by Options.RandSeed,
// and the ranking order is total (score, core count, total size,
// canonical key), so two runs over the same graph with the same options
// produce bit-identical results regardless of worker scheduling.
package beam

import "errors"

var (
	// ErrNilGraph indicates the engine was constructed without a graph.
	ErrNilGraph = errors.New("beam: nil graph")

	// ErrInvalidOptions indicates an out-of-range configuration value.
	// The wrapped message names the offending field and value.
	ErrInvalidOptions = errors.New("beam: invalid options")
)
