// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package input parses tab-separated edge streams into batches ready for
// graph construction.
//
// Three row shapes are understood:
//
//   - Typed edge row: graph_id, core_id, noncore_id, core_type, relation,
//     noncore_type. Core-core edges carry the core type on both sides and
//     the implicit core-core relation name.
//   - Seed row: graph_id, node_id, node_type. Seed rows name the members
//     of a clique found by an earlier process; the miner starts its search
//     from them. A seed row may also appear padded to the six-column edge
//     shape with the trailing three columns empty.
//   - Simple edge row: graph_id, source_id, target_id. Consumed by the
//     featurizer and the component finder. The graph id is free text and
//     is interned to a sequential numeric id on first appearance.
//
// # Batch Model
//
// Rows are expected ordered by graph id. Readers return one Batch per
// contiguous run of rows sharing a graph id, so a stream holding many
// graphs is processed one graph at a time with bounded memory. A graph id
// that reappears later in the stream starts a new batch; the file loaders
// merge such splits.
//
// # Strictness
//
// A row that does not parse, references an undeclared type or relation,
// or puts a non-core type in the core column fails the read immediately
// with the offending line number. A reader never emits an edge the graph
// builder would reject.
package input

import "errors"

// ErrMalformedRow is returned for a row whose shape is wrong: bad column
// count, a non-integer id field, a self-loop, or a core column that does
// not hold the core type. Schema-level failures (undeclared types or
// relations) carry the typespec sentinels instead.
var ErrMalformedRow = errors.New("malformed row")
