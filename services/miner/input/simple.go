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
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SimpleBatch holds the edge list for one untyped graph. GraphID is the
// interned numeric id; Name is the graph id text as it appeared on the
// wire. Each edge is a (source, target) pair.
type SimpleBatch struct {
	GraphID int64
	Name    string
	Edges   [][2]int64
}

// simpleRow is one parsed untyped edge line.
type simpleRow struct {
	graphID int64
	source  int64
	target  int64
}

// SimpleReader reads three-column untyped edge rows for the featurizer
// and the component finder. Graph ids are free text and are interned to
// sequential numeric ids, starting at zero, in order of first
// appearance; the original text stays available through GraphName and on
// each SimpleBatch.
//
// Thread Safety: a SimpleReader is not safe for concurrent use.
type SimpleReader struct {
	scanner *bufio.Scanner
	line    int
	ids     map[string]int64
	names   []string
	pending *simpleRow
	done    bool
}

// NewSimpleReader returns a reader positioned before the first row.
func NewSimpleReader(r io.Reader) *SimpleReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, scanBufferSize), maxLineSize)
	return &SimpleReader{scanner: sc, ids: make(map[string]int64)}
}

// Next returns the batch for the next contiguous run of rows sharing a
// graph id. It reports io.EOF when the stream is exhausted.
func (sr *SimpleReader) Next() (*SimpleBatch, error) {
	var batch *SimpleBatch
	if sr.pending != nil {
		batch = sr.newBatch(sr.pending)
		sr.pending = nil
	}

	for !sr.done {
		sr.line++
		if !sr.scanner.Scan() {
			sr.done = true
			if err := sr.scanner.Err(); err != nil {
				return nil, fmt.Errorf("line %d: %w", sr.line, err)
			}
			break
		}
		text := sr.scanner.Text()
		if text == "" {
			continue
		}

		row, err := sr.parseRow(text)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			batch = sr.newBatch(row)
			continue
		}
		if row.graphID != batch.GraphID {
			sr.pending = row
			return batch, nil
		}
		batch.Edges = append(batch.Edges, [2]int64{row.source, row.target})
	}

	if batch != nil {
		return batch, nil
	}
	return nil, io.EOF
}

// GraphName returns the original graph id text for an interned id.
func (sr *SimpleReader) GraphName(id int64) (string, bool) {
	if id < 0 || id >= int64(len(sr.names)) {
		return "", false
	}
	return sr.names[id], true
}

func (sr *SimpleReader) newBatch(row *simpleRow) *SimpleBatch {
	return &SimpleBatch{
		GraphID: row.graphID,
		Name:    sr.names[row.graphID],
		Edges:   [][2]int64{{row.source, row.target}},
	}
}

func (sr *SimpleReader) parseRow(text string) (*simpleRow, error) {
	fields := strings.Split(text, "\t")
	if len(fields) != simpleColumns {
		return nil, fmt.Errorf("%w: line %d: expected %d tab-separated fields, got %d",
			ErrMalformedRow, sr.line, simpleColumns, len(fields))
	}
	if fields[0] == "" {
		return nil, fmt.Errorf("%w: line %d: empty graph id", ErrMalformedRow, sr.line)
	}
	source, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: line %d: bad source id %q",
			ErrMalformedRow, sr.line, fields[1])
	}
	target, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: line %d: bad target id %q",
			ErrMalformedRow, sr.line, fields[2])
	}
	return &simpleRow{graphID: sr.intern(fields[0]), source: source, target: target}, nil
}

// intern maps graph id text to a stable numeric id.
func (sr *SimpleReader) intern(name string) int64 {
	if id, ok := sr.ids[name]; ok {
		return id
	}
	id := int64(len(sr.names))
	sr.ids[name] = id
	sr.names = append(sr.names, name)
	return id
}
