// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package output renders mining results for downstream consumers.
//
// Three renderings are provided:
//
//   - Short rows: one tab-separated row per clique holding the graph id,
//     score, node counts, space-joined member ids, space-joined non-core
//     type names, and the global density.
//   - Long rows: one tab-separated row per clique member holding the
//     graph id, clique id, node id, and node type. The clique id groups
//     members back into cliques when several are printed per graph.
//   - JSON documents: the full run result including per-core-node local
//     densities, per-type densities, the epoch count, and the stop
//     reason.
//
// Member ids arrive sorted ascending from the engine and are rendered in
// that order. Writers do not buffer; wrap the destination in a
// bufio.Writer when writing many rows.
package output

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/AleutianAI/trawl/services/miner/beam"
	"github.com/AleutianAI/trawl/services/miner/hypergraph"
)

// NewCliqueID returns a fresh clique identifier.
func NewCliqueID() string {
	return uuid.NewString()
}

// ShortWriter renders one row per clique.
type ShortWriter struct {
	w io.Writer
}

// NewShortWriter returns a short-format writer targeting w.
func NewShortWriter(w io.Writer) *ShortWriter {
	return &ShortWriter{w: w}
}

// WriteClique writes the short row for one clique: graph id, score, core
// count, non-core count, core ids, non-core ids, non-core type names,
// global density.
func (sw *ShortWriter) WriteClique(graphID int64, c *beam.Clique) error {
	if c == nil {
		return errors.New("nil clique")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d\t%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
		graphID,
		formatFloat(c.Score),
		len(c.CoreNodes),
		len(c.NonCoreNodes),
		joinIDs(c.CoreNodes),
		joinIDs(c.NonCoreNodes),
		strings.Join(c.NonCoreTypes, " "),
		formatFloat(c.GlobalDensity),
	)
	_, err := io.WriteString(sw.w, b.String())
	return err
}

// LongWriter renders one row per clique member. Core members come first,
// tagged with the core type name the writer was built with, then
// non-core members tagged with their own types.
type LongWriter struct {
	w        io.Writer
	coreType string
}

// NewLongWriter returns a long-format writer targeting w. coreType is
// the type name printed for core members.
func NewLongWriter(w io.Writer, coreType string) *LongWriter {
	return &LongWriter{w: w, coreType: coreType}
}

// WriteClique writes one row per member of the clique, all sharing the
// given clique id.
func (lw *LongWriter) WriteClique(graphID int64, cliqueID string, c *beam.Clique) error {
	if c == nil {
		return errors.New("nil clique")
	}
	if len(c.NonCoreNodes) != len(c.NonCoreTypes) {
		return fmt.Errorf("clique has %d non-core nodes but %d type names",
			len(c.NonCoreNodes), len(c.NonCoreTypes))
	}
	var b strings.Builder
	for _, id := range c.CoreNodes {
		fmt.Fprintf(&b, "%d\t%s\t%d\t%s\n", graphID, cliqueID, id, lw.coreType)
	}
	for i, id := range c.NonCoreNodes {
		fmt.Fprintf(&b, "%d\t%s\t%d\t%s\n", graphID, cliqueID, id, c.NonCoreTypes[i])
	}
	_, err := io.WriteString(lw.w, b.String())
	return err
}

// formatFloat renders a score or density with the shortest digit string
// that round-trips.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func joinIDs(ids []hypergraph.NodeID) string {
	if len(ids) == 0 {
		return ""
	}
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatInt(int64(id), 10))
	}
	return b.String()
}
