// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"github.com/AleutianAI/trawl/services/miner/hypergraph"
	"github.com/AleutianAI/trawl/services/miner/typespec"
)

// Column counts for the supported row shapes. Seed rows may be padded to
// the edge shape with empty trailing columns.
const (
	seedColumns   = 3
	edgeColumns   = 6
	simpleColumns = 3
)

// Scanner buffer sizing. Rows are short; the cap guards against
// unterminated garbage input.
const (
	scanBufferSize = 64 * 1024
	maxLineSize    = 1024 * 1024
)

// SeedNode is one member of a seed clique named in the input stream.
type SeedNode struct {
	ID   hypergraph.NodeID
	Type string
}

// Batch holds every row read for one graph id: the edges to build the
// graph from and any seed clique members.
type Batch struct {
	GraphID int64
	Edges   []hypergraph.Edge
	Seeds   []SeedNode
}

// typedRow is one parsed line, either an edge or a seed member.
type typedRow struct {
	graphID int64
	edge    hypergraph.Edge
	seed    SeedNode
	isEdge  bool
}

// TypedReader reads typed edge and seed rows from a tab-separated stream
// and groups them into one Batch per contiguous run of rows sharing a
// graph id.
//
// Thread Safety: a TypedReader is not safe for concurrent use.
type TypedReader struct {
	spec    *typespec.Spec
	scanner *bufio.Scanner
	line    int
	pending *typedRow
	done    bool
}

// NewTypedReader returns a reader that validates every row against the
// given type schema before emitting it.
//
// Description:
//
//	The reader owns row-shape and schema validation: ids must be
//	integers, edge rows must name the core type in the core column, and
//	the (core type, relation, non-core type) combination must be
//	declared by the schema. Edges it emits are accepted by the graph
//	builder as-is.
//
// Inputs:
//
//	r - Row stream, one row per line. CRLF line endings are tolerated.
//	spec - Type schema to validate against. Must be non-nil.
//
// Outputs:
//
//	*TypedReader - Reader positioned before the first row.
func NewTypedReader(r io.Reader, spec *typespec.Spec) *TypedReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, scanBufferSize), maxLineSize)
	return &TypedReader{spec: spec, scanner: sc}
}

// Next returns the batch for the next contiguous run of rows sharing a
// graph id.
//
// Outputs:
//
//	*Batch - Edges and seed members for one graph id, in row order.
//	error - io.EOF when the stream is exhausted; ErrMalformedRow or a
//	        typespec sentinel, tagged with the line number, when a row
//	        is rejected; the underlying read error otherwise.
func (tr *TypedReader) Next() (*Batch, error) {
	if tr.spec == nil {
		return nil, errors.New("nil type spec")
	}

	var batch *Batch
	if tr.pending != nil {
		batch = newBatch(tr.pending)
		tr.pending = nil
	}

	for !tr.done {
		tr.line++
		if !tr.scanner.Scan() {
			tr.done = true
			if err := tr.scanner.Err(); err != nil {
				return nil, fmt.Errorf("line %d: %w", tr.line, err)
			}
			break
		}
		text := tr.scanner.Text()
		if text == "" {
			continue
		}

		row, err := tr.parseRow(text)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			batch = newBatch(row)
			continue
		}
		if row.graphID != batch.GraphID {
			tr.pending = row
			return batch, nil
		}
		appendRow(batch, row)
	}

	if batch != nil {
		return batch, nil
	}
	return nil, io.EOF
}

// All returns an iterator over the remaining batches. Iteration stops
// after the first error; the pair carrying the error has a nil batch.
// The terminal io.EOF is not yielded.
func (tr *TypedReader) All() iter.Seq2[*Batch, error] {
	return func(yield func(*Batch, error) bool) {
		for {
			batch, err := tr.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(batch, nil) {
				return
			}
		}
	}
}

func newBatch(row *typedRow) *Batch {
	b := &Batch{GraphID: row.graphID}
	appendRow(b, row)
	return b
}

func appendRow(b *Batch, row *typedRow) {
	if row.isEdge {
		b.Edges = append(b.Edges, row.edge)
	} else {
		b.Seeds = append(b.Seeds, row.seed)
	}
}

// parseRow classifies one line. Six fields with a non-empty fourth field
// make an edge row; three fields, or six with the trailing three empty,
// make a seed row.
func (tr *TypedReader) parseRow(text string) (*typedRow, error) {
	fields := strings.Split(text, "\t")
	switch len(fields) {
	case seedColumns:
		return tr.parseSeed(fields)
	case edgeColumns:
		if fields[3] != "" {
			return tr.parseEdge(fields)
		}
		if fields[4] != "" || fields[5] != "" {
			return nil, fmt.Errorf("%w: line %d: seed row carries a relation or type in its trailing columns",
				ErrMalformedRow, tr.line)
		}
		return tr.parseSeed(fields[:seedColumns])
	default:
		return nil, fmt.Errorf("%w: line %d: expected %d or %d tab-separated fields, got %d",
			ErrMalformedRow, tr.line, seedColumns, edgeColumns, len(fields))
	}
}

func (tr *TypedReader) parseSeed(fields []string) (*typedRow, error) {
	graphID, err := tr.parseID(fields[0], "graph id")
	if err != nil {
		return nil, err
	}
	nodeID, err := tr.parseID(fields[1], "node id")
	if err != nil {
		return nil, err
	}
	typeName := fields[2]
	if _, ok := tr.spec.TypeIDOf(typeName); !ok {
		return nil, fmt.Errorf("line %d: seed node %d: %w: %q",
			tr.line, nodeID, typespec.ErrUnknownType, typeName)
	}
	return &typedRow{
		graphID: graphID,
		seed:    SeedNode{ID: hypergraph.NodeID(nodeID), Type: typeName},
	}, nil
}

func (tr *TypedReader) parseEdge(fields []string) (*typedRow, error) {
	graphID, err := tr.parseID(fields[0], "graph id")
	if err != nil {
		return nil, err
	}
	coreID, err := tr.parseID(fields[1], "core id")
	if err != nil {
		return nil, err
	}
	nonCoreID, err := tr.parseID(fields[2], "noncore id")
	if err != nil {
		return nil, err
	}
	if coreID == nonCoreID {
		return nil, fmt.Errorf("%w: line %d: self-loop on node %d",
			ErrMalformedRow, tr.line, coreID)
	}

	coreType, relation, nonCoreType := fields[3], fields[4], fields[5]
	if typ, ok := tr.spec.TypeIDOf(coreType); !ok || typ != typespec.CoreTypeID {
		return nil, fmt.Errorf("%w: line %d: core column holds type %q, want %q",
			ErrMalformedRow, tr.line, coreType, tr.spec.CoreType())
	}
	if _, err := tr.spec.ResolveEdge(coreType, nonCoreType, relation); err != nil {
		return nil, fmt.Errorf("line %d: %w", tr.line, err)
	}

	return &typedRow{
		graphID: graphID,
		isEdge:  true,
		edge: hypergraph.Edge{
			A:        hypergraph.NodeID(coreID),
			TypeA:    coreType,
			B:        hypergraph.NodeID(nonCoreID),
			TypeB:    nonCoreType,
			Relation: relation,
		},
	}, nil
}

func (tr *TypedReader) parseID(field, what string) (int64, error) {
	v, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: line %d: bad %s %q",
			ErrMalformedRow, tr.line, what, field)
	}
	return v, nil
}
